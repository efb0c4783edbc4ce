// Package vault keeps device SSH passwords in the system keyring
package vault

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/99designs/keyring"
	"github.com/AlecAivazis/survey/v2"
)

const (
	// ServiceName is the keyring service the passwords are stored under
	ServiceName = "io.blacktop.blobkeep"
	// AppName is the label of every stored item
	AppName = "blobkeep"
	// FileVaultName is the file backend's vault name
	FileVaultName = "blobkeep-vault"
)

// ErrNotFound is returned when no password is stored for a device
var ErrNotFound = keyring.ErrKeyNotFound

// Config is the vault configuration
type Config struct {
	// Dir holds the encrypted file vault when no system keyring is available
	Dir string
	// Password unlocks the file vault; prompted for when empty
	Password string
	// Backends restricts the keyring backends (all available when empty)
	Backends []keyring.BackendType
}

type credentials struct {
	Host     string `json:"host"`
	User     string `json:"user"`
	Password string `json:"password"`
}

// Vault stores one password per user@host
type Vault struct {
	ring keyring.Keyring
}

// New returns a Vault over an already opened keyring
func New(ring keyring.Keyring) *Vault {
	return &Vault{ring: ring}
}

// Open opens (creating if needed) the credential vault
func Open(conf *Config) (*Vault, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName:                    ServiceName,
		AllowedBackends:                conf.Backends,
		KeychainSynchronizable:         false,
		KeychainAccessibleWhenUnlocked: true,
		KeychainTrustApplication:       true,
		FileDir:                        conf.Dir,
		FilePasswordFunc: func(string) (string, error) {
			if len(conf.Password) == 0 {
				msg := "Enter a password to decrypt your credentials vault: " + filepath.Join(conf.Dir, FileVaultName)
				if _, err := os.Stat(conf.Dir); errors.Is(err, os.ErrNotExist) {
					msg = "Enter a password to encrypt your credentials to vault: " + filepath.Join(conf.Dir, FileVaultName)
				}
				if err := survey.AskOne(&survey.Password{Message: msg}, &conf.Password); err != nil {
					return "", err
				}
			}
			return conf.Password, nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open vault: %w", err)
	}
	return New(ring), nil
}

func key(user, host string) string {
	return fmt.Sprintf("ssh:%s@%s", user, host)
}

// Password returns the stored password for user@host, or ErrNotFound
func (v *Vault) Password(user, host string) (string, error) {
	item, err := v.ring.Get(key(user, host))
	if err != nil {
		return "", err
	}
	var creds credentials
	if err := json.Unmarshal(item.Data, &creds); err != nil {
		return "", fmt.Errorf("failed to unmarshal keychain credentials for %s@%s: %w", user, host, err)
	}
	if len(creds.Password) == 0 {
		return "", ErrNotFound
	}
	return creds.Password, nil
}

// SetPassword stores password for user@host
func (v *Vault) SetPassword(user, host, password string) error {
	dat, err := json.Marshal(&credentials{
		Host:     host,
		User:     user,
		Password: password,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal keychain credentials: %w", err)
	}
	return v.ring.Set(keyring.Item{
		Key:         key(user, host),
		Data:        dat,
		Label:       AppName,
		Description: fmt.Sprintf("ssh password for %s@%s", user, host),
	})
}

// Forget removes the password stored for user@host
func (v *Vault) Forget(user, host string) error {
	if err := v.ring.Remove(key(user, host)); err != nil &&
		!errors.Is(err, keyring.ErrKeyNotFound) && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove keychain credentials for %s@%s: %w", user, host, err)
	}
	return nil
}
