/*
Copyright © 2025 blacktop

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in
all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
THE SOFTWARE.
*/
package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/apex/log"
	"github.com/fatih/color"
	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/blacktop/blobkeep/internal/config"
	"github.com/blacktop/blobkeep/internal/planner"
	"github.com/blacktop/blobkeep/internal/record"
	"github.com/blacktop/blobkeep/internal/utils"
)

func init() {
	rootCmd.AddCommand(saveCmd)
	saveCmd.Flags().Bool("all", false, "save blobs for every record under the blobs directory")
	saveCmd.Flags().BoolP("dry-run", "n", false, "print the tsschecker runs without executing them")
	viper.BindPFlag("save.all", saveCmd.Flags().Lookup("all"))
	viper.BindPFlag("save.dry-run", saveCmd.Flags().Lookup("dry-run"))
}

// saveCmd represents the save command
var saveCmd = &cobra.Command{
	Use:     "save [RECORD]...",
	Aliases: []string{"s"},
	Short:   "Save SHSH blobs for device blob configs",
	Example: heredoc.Doc(`
		# Save blobs for one record
		❯ blobkeep save blobs/xr/iPhone11,8-1A2B3C-17.0.mkdn

		# Show what would run for every record
		❯ blobkeep save --all --dry-run`),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {

		if viper.GetBool("verbose") {
			log.SetLevel(log.DebugLevel)
		}
		color.NoColor = viper.GetBool("no-color")

		conf, err := config.LoadConfig()
		if err != nil {
			return err
		}

		paths := args
		if viper.GetBool("save.all") {
			if paths, err = recordPaths(conf.Blobs); err != nil {
				return err
			}
		}
		if len(paths) == 0 {
			return fmt.Errorf("no records given (pass RECORD paths or --all)")
		}

		gw := newGateway(conf)
		dryRun := viper.GetBool("save.dry-run")
		if !dryRun {
			if err := gw.CheckSigningTool(); err != nil {
				return err
			}
		}

		var errs *multierror.Error
		for _, path := range paths {
			rec, err := record.Open(path)
			if err != nil {
				errs = multierror.Append(errs, err)
				continue
			}

			log.Infof("Saving blobs for %s (%s %s)", color.New(color.Bold).Sprint(rec.Nickname), rec.DeviceID, rec.VersionSuffix())
			ep := planner.New(filepath.Dir(path)).Plan(rec)

			if dryRun {
				for _, s := range ep.Skipped {
					utils.Indent(log.Warn, 2)(fmt.Sprintf("Skipping %s: %s", s.Mode, s.Reason))
				}
				for _, p := range ep.Plans {
					utils.Indent(log.Info, 2)(p.String())
				}
				continue
			}

			// tool failures are reported, not fatal
			if err := planner.Execute(gw, ep); err != nil {
				log.Errorf("%s: %v", path, err)
				continue
			}
			utils.Indent(log.Info, 2)(color.GreenString("Done"))
		}

		return errs.ErrorOrNil()
	},
}
