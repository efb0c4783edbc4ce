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

	"github.com/AlecAivazis/survey/v2"
	"github.com/AlecAivazis/survey/v2/terminal"
	"github.com/MakeNowJust/heredoc/v2"
	"github.com/apex/log"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/blacktop/blobkeep/internal/apticket"
	"github.com/blacktop/blobkeep/internal/config"
	"github.com/blacktop/blobkeep/internal/ssh"
	"github.com/blacktop/blobkeep/internal/utils"
	"github.com/blacktop/blobkeep/internal/vault"
)

func init() {
	rootCmd.AddCommand(apticketCmd)
	apticketCmd.Flags().StringP("host", "t", "", "device IP or hostname")
	apticketCmd.Flags().StringP("port", "p", "", "ssh port (default 22)")
	apticketCmd.Flags().StringP("user", "u", "", "ssh user (default mobile)")
	apticketCmd.Flags().StringP("key", "i", "", "ssh key")
	apticketCmd.Flags().BoolP("insecure", "n", false, "ignore known_hosts")
	apticketCmd.Flags().StringP("output", "o", ".", "folder to save the apticket in")
	apticketCmd.Flags().BoolP("all", "a", false, "print every manifest property")
	apticketCmd.Flags().Bool("no-keyring", false, "do not read or store the device password in the keyring")
	apticketCmd.Flags().StringP("vault-password", "k", "", "password to unlock credential vault (only for file vaults)")
	apticketCmd.MarkFlagDirname("output")
	viper.BindPFlag("apticket.host", apticketCmd.Flags().Lookup("host"))
	viper.BindPFlag("ssh.port", apticketCmd.Flags().Lookup("port"))
	viper.BindPFlag("ssh.user", apticketCmd.Flags().Lookup("user"))
	viper.BindPFlag("ssh.key", apticketCmd.Flags().Lookup("key"))
	viper.BindPFlag("ssh.insecure", apticketCmd.Flags().Lookup("insecure"))
	viper.BindPFlag("apticket.output", apticketCmd.Flags().Lookup("output"))
	viper.BindPFlag("apticket.all", apticketCmd.Flags().Lookup("all"))
	viper.BindPFlag("apticket.no-keyring", apticketCmd.Flags().Lookup("no-keyring"))
	viper.BindPFlag("apticket.vault-password", apticketCmd.Flags().Lookup("vault-password"))
}

// apticketCmd represents the apticket command
var apticketCmd = &cobra.Command{
	Use:   "apticket",
	Short: "Pull the cryptex apticket off a jailbroken device and print its nonce hash",
	Example: heredoc.Doc(`
		# The device password is kept in the keyring after the first run
		❯ blobkeep apticket --host 192.168.1.20
		   • Connecting to mobile@192.168.1.20:22
		      • Copying apticket out of the cryptex preboot volume
		      • Found apticket: apticket.0011223344.im4m
		   • cnch: 9a6c...

		# Never read or store the password
		❯ blobkeep apticket --host 192.168.1.20 --no-keyring`),
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

		host := viper.GetString("apticket.host")
		if host == "" {
			if err := survey.AskOne(&survey.Input{Message: "Device IP:"}, &host, survey.WithValidator(survey.Required)); err != nil {
				if errors.Is(err, terminal.InterruptErr) {
					log.Warn("Exiting...")
					return nil
				}
				return err
			}
		}

		var vlt *vault.Vault
		if !viper.GetBool("apticket.no-keyring") {
			vlt, err = vault.Open(&vault.Config{
				Dir:      conf.Vault.Dir,
				Password: viper.GetString("apticket.vault-password"),
			})
			if err != nil {
				if errors.Is(err, terminal.InterruptErr) {
					log.Warn("Exiting...")
					return nil
				}
				log.WithError(err).Warn("Keyring unavailable, the password will not be stored")
				vlt = nil
			}
		}

		var password string
		stored := false
		if vlt != nil {
			password, err = vlt.Password(conf.SSH.User, host)
			switch {
			case err == nil:
				stored = true
				log.Debugf("Using password stored in keyring for %s@%s", conf.SSH.User, host)
			case errors.Is(err, terminal.InterruptErr):
				log.Warn("Exiting...")
				return nil
			case !errors.Is(err, vault.ErrNotFound):
				log.WithError(err).Warn("Failed to read password from keyring")
			}
		}
		if !stored {
			if err := survey.AskOne(&survey.Password{Message: "Sudo password on device:"}, &password); err != nil {
				if errors.Is(err, terminal.InterruptErr) {
					log.Warn("Exiting...")
					return nil
				}
				return err
			}
		}

		log.Infof("Connecting to %s@%s:%s", conf.SSH.User, host, conf.SSH.Port)
		cli, err := ssh.NewSSH(&ssh.Config{
			Host:     host,
			Port:     conf.SSH.Port,
			User:     conf.SSH.User,
			Pass:     password,
			Key:      conf.SSH.Key,
			Insecure: conf.SSH.Insecure,
		})
		if err != nil {
			if stored && ssh.IsAuthError(err) {
				if ferr := vlt.Forget(conf.SSH.User, host); ferr != nil {
					log.WithError(ferr).Warn("Failed to remove password from keyring")
				} else {
					utils.Indent(log.Warn, 2)("Stored password was rejected and has been removed from the keyring")
				}
			}
			return fmt.Errorf("failed to create ssh client: %w", err)
		}
		defer cli.Close()

		local, err := apticket.Fetch(cli, password, viper.GetString("apticket.output"))
		if err != nil {
			return fmt.Errorf("failed to fetch apticket: %w", err)
		}

		if vlt != nil && !stored {
			if err := vlt.SetPassword(conf.SSH.User, host, password); err != nil {
				log.WithError(err).Warn("Failed to store password in keyring")
			} else {
				utils.Indent(log.Debug, 2)("Stored password in keyring")
			}
		}
		log.Infof("Saved %s", color.New(color.Bold).Sprint(local))

		tk, err := apticket.Open(local)
		if err != nil {
			return err
		}

		cnch, err := tk.CryptexNonceHash()
		if err != nil {
			return err
		}
		log.Infof("%s: %s", apticket.CryptexNonceHashName, color.New(color.Bold, color.FgGreen).Sprint(cnch))

		if viper.GetBool("apticket.all") {
			fmt.Print(tk)
		}

		return nil
	},
}
