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
	"errors"
	"fmt"
	"os"

	"github.com/AlecAivazis/survey/v2/terminal"
	"github.com/MakeNowJust/heredoc/v2"
	"github.com/apex/log"
	"github.com/fatih/color"
	"github.com/sergi/go-diff/diffmatchpatch"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/blacktop/blobkeep/internal/config"
	"github.com/blacktop/blobkeep/internal/editor"
	"github.com/blacktop/blobkeep/internal/record"
	"github.com/blacktop/blobkeep/internal/utils"
)

func init() {
	rootCmd.AddCommand(collectCmd)
	collectCmd.Flags().StringP("answers", "a", "", "YAML file of answers keyed by field label (non-interactive)")
	collectCmd.Flags().Bool("diff", false, "show what changed when editing an existing record")
	viper.BindPFlag("collect.answers", collectCmd.Flags().Lookup("answers"))
	viper.BindPFlag("collect.diff", collectCmd.Flags().Lookup("diff"))
}

// collectCmd represents the collect command
var collectCmd = &cobra.Command{
	Use:     "collect [RECORD]",
	Aliases: []string{"c", "edit"},
	Short:   "Create or edit a device blob config",
	Example: heredoc.Doc(`
		# Create a new record under the blobs directory
		❯ blobkeep collect

		# Edit an existing record (stored values are the defaults)
		❯ blobkeep collect blobs/xr/iPhone11,8-1A2B3C-17.0.mkdn --diff

		# Build a record from an answers file
		❯ blobkeep collect --answers xr.yaml`),
	Args:          cobra.MaximumNArgs(1),
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

		var (
			existing     record.Fields
			existingPath string
			previous     []byte
		)
		if len(args) > 0 {
			existingPath = args[0]
			existing, err = record.Load(existingPath)
			if err != nil {
				return err
			}
			previous, _ = os.ReadFile(existingPath)
			log.Infof("Editing %s", color.New(color.Bold).Sprint(existingPath))
		} else {
			log.Info("Creating a new blob config")
		}

		var src editor.FieldSource = editor.SurveySource{}
		if answers := viper.GetString("collect.answers"); len(answers) > 0 {
			if src, err = editor.LoadScriptedSource(answers); err != nil {
				return err
			}
		}

		e := &editor.Editor{
			Source:  src,
			Fetcher: newGateway(conf),
			BaseDir: conf.Blobs,
		}

		res, err := e.Edit(existing, existingPath)
		if err != nil {
			if errors.Is(err, terminal.InterruptErr) {
				log.Warn("Exiting...")
				return nil
			}
			return fmt.Errorf("failed to collect blob config: %w", err)
		}

		log.Infof("Saved config to %s", color.New(color.Bold, color.FgGreen).Sprint(res.Path))
		if len(existingPath) > 0 && res.Path != existingPath {
			utils.Indent(log.Warn, 2)(fmt.Sprintf("Previous record kept at %s", existingPath))
		}
		if res.Manifest != nil {
			utils.Indent(log.Info, 2)(fmt.Sprintf("Manifest: %s", res.Manifest))
		}

		if viper.GetBool("collect.diff") && len(previous) > 0 {
			dmp := diffmatchpatch.New()
			diffs := dmp.DiffMain(string(previous), string(record.Marshal(res.Record)), false)
			if len(diffs) > 2 {
				diffs = dmp.DiffCleanupSemantic(diffs)
				diffs = dmp.DiffCleanupEfficiency(diffs)
			}
			if len(diffs) == 1 && diffs[0].Type == diffmatchpatch.DiffEqual {
				log.Info("No differences found")
			} else {
				log.Info("Differences found")
				fmt.Println(dmp.DiffPrettyText(diffs))
			}
		}

		return nil
	},
}
