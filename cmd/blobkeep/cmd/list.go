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
	"strconv"

	"github.com/apex/log"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/blacktop/blobkeep/internal/config"
	"github.com/blacktop/blobkeep/internal/record"
	"github.com/blacktop/blobkeep/internal/table"
)

func init() {
	rootCmd.AddCommand(listCmd)
}

// listCmd represents the list command
var listCmd = &cobra.Command{
	Use:           "list",
	Aliases:       []string{"ls"},
	Short:         "List the device blob configs under the blobs directory",
	Args:          cobra.NoArgs,
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

		paths, err := recordPaths(conf.Blobs)
		if err != nil {
			return err
		}
		if len(paths) == 0 {
			log.Warnf("No records found in %s", conf.Blobs)
			return nil
		}

		tbl := table.New("Nickname", "Device", "ECID", "iOS", "Build", "Restore", "Cellular", "Path")
		if viper.GetBool("color") && !viper.GetBool("no-color") {
			tbl.SetStyle(table.ColorStyle())
		}
		for _, path := range paths {
			rec, err := record.Open(path)
			if err != nil {
				log.WithError(err).Warnf("Skipping %s", path)
				continue
			}
			tbl.Append(
				rec.Nickname,
				rec.DeviceID,
				rec.ECID,
				rec.IOSVersion,
				rec.BuildID,
				string(rec.RestoreType),
				strconv.FormatBool(rec.Cellular),
				path,
			)
		}

		if tbl.Len() == 0 {
			log.Warnf("No readable records in %s", conf.Blobs)
			return nil
		}

		fmt.Println(tbl.Render())

		return nil
	},
}
