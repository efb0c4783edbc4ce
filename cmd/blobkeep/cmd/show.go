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
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/alecthomas/chroma/v2/quick"
	"github.com/apex/log"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/blacktop/blobkeep/internal/planner"
	"github.com/blacktop/blobkeep/internal/record"
)

func init() {
	rootCmd.AddCommand(showCmd)
	showCmd.Flags().BoolP("json", "j", false, "print the record labels and values as JSON")
	showCmd.Flags().BoolP("yaml", "y", false, "print the record labels and values as YAML")
	showCmd.Flags().BoolP("plan", "p", false, "print the tsschecker runs the record expands to")
	showCmd.MarkFlagsMutuallyExclusive("json", "yaml")
	viper.BindPFlag("show.json", showCmd.Flags().Lookup("json"))
	viper.BindPFlag("show.yaml", showCmd.Flags().Lookup("yaml"))
	viper.BindPFlag("show.plan", showCmd.Flags().Lookup("plan"))
}

// showCmd represents the show command
var showCmd = &cobra.Command{
	Use:   "show RECORD",
	Short: "Print a device blob config",
	Example: heredoc.Doc(`
		❯ blobkeep show blobs/xr/iPhone11,8-1A2B3C-17.0.mkdn
		❯ blobkeep show blobs/xr/iPhone11,8-1A2B3C-17.0.mkdn --json
		❯ blobkeep show blobs/xr/iPhone11,8-1A2B3C-17.0.mkdn --plan`),
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {

		if viper.GetBool("verbose") {
			log.SetLevel(log.DebugLevel)
		}
		color.NoColor = viper.GetBool("no-color")

		path := filepath.Clean(args[0])

		rec, err := record.Open(path)
		if err != nil {
			return err
		}

		switch {
		case viper.GetBool("show.json"):
			out, err := json.MarshalIndent(record.Encode(rec), "", "  ")
			if err != nil {
				return fmt.Errorf("failed to marshal record: %w", err)
			}
			fmt.Println(string(out))
		case viper.GetBool("show.yaml"):
			out, err := yaml.Marshal(record.Encode(rec))
			if err != nil {
				return fmt.Errorf("failed to marshal record: %w", err)
			}
			fmt.Print(string(out))
		default:
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", path, err)
			}
			if viper.GetBool("color") && !viper.GetBool("no-color") {
				if err := quick.Highlight(os.Stdout, string(data), "md", "terminal256", "nord"); err != nil {
					return err
				}
			} else {
				fmt.Print(string(data))
			}
		}

		if viper.GetBool("show.plan") {
			ep := planner.New(filepath.Dir(path)).Plan(rec)
			fmt.Println()
			for _, s := range ep.Skipped {
				fmt.Printf("%s %s: %s\n", color.YellowString("skip"), s.Mode, s.Reason)
			}
			for _, p := range ep.Plans {
				fmt.Println(p)
			}
			if len(ep.Plans) == 0 && len(ep.Skipped) == 0 {
				log.Warnf("Restore type %q has no modes", rec.RestoreType)
			}
		}

		return nil
	},
}
