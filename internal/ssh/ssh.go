// Package ssh is a small SSH client for pulling files off a jailbroken device.
package ssh

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// DefaultUser is the device account used when none is configured
const DefaultUser = "mobile"

// DefaultPort is the SSH port used when none is configured
const DefaultPort = "22"

func hostKeyCallback(path string) ssh.HostKeyCallback {
	return func(hostname string, remote net.Addr, key ssh.PublicKey) error {
		kh, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o600) //nolint:gomnd
		if err != nil {
			return fmt.Errorf("failed to open known_hosts: %w", err)
		}
		defer func() { _ = kh.Close() }()

		callback, err := knownhosts.New(kh.Name())
		if err != nil {
			return fmt.Errorf("failed to check known_hosts: %w", err)
		}

		if err := callback(hostname, remote, key); err != nil {
			var kerr *knownhosts.KeyError
			if errors.As(err, &kerr) {
				if len(kerr.Want) > 0 {
					return fmt.Errorf("possible man-in-the-middle attack: %w", err)
				}
				// unknown host, trust on first use
				fmt.Fprintln(kh, knownhosts.Line([]string{hostname}, key))
				return nil
			}
			return fmt.Errorf("failed to check known_hosts: %w", err)
		}
		return nil
	}
}

// IsAuthError reports whether err is the server rejecting every auth method
func IsAuthError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "unable to authenticate")
}

// Config is the configuration for an SSH connection
type Config struct {
	Host     string
	Port     string
	User     string
	Pass     string
	Key      string
	Insecure bool
	// KnownHosts defaults to ~/.ssh/known_hosts
	KnownHosts string
}

// SSH is an ssh object
type SSH struct {
	client *ssh.Client
	conf   *Config
}

func (conf *Config) clientConfig() (*ssh.ClientConfig, error) {
	if conf.User == "" {
		conf.User = DefaultUser
	}
	if conf.Port == "" {
		conf.Port = DefaultPort
	}

	sshConfig := &ssh.ClientConfig{
		User: conf.User,
		Auth: []ssh.AuthMethod{
			ssh.Password(conf.Pass),
		},
	}

	if len(conf.Key) > 0 {
		key, err := os.ReadFile(os.ExpandEnv(conf.Key))
		if err != nil {
			return nil, fmt.Errorf("failed to read private key: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, fmt.Errorf("failed to parse private key: %w", err)
		}
		sshConfig.Auth = append(sshConfig.Auth, ssh.PublicKeys(signer))
	}

	if conf.Insecure {
		sshConfig.HostKeyCallback = ssh.InsecureIgnoreHostKey()
		return sshConfig, nil
	}

	if conf.KnownHosts == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		conf.KnownHosts = filepath.Join(home, ".ssh", "known_hosts")
	}
	if err := os.MkdirAll(filepath.Dir(conf.KnownHosts), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", filepath.Dir(conf.KnownHosts), err)
	}
	sshConfig.HostKeyCallback = hostKeyCallback(conf.KnownHosts)

	return sshConfig, nil
}

// NewSSH creates a new SSH connection
func NewSSH(conf *Config) (*SSH, error) {
	sshConfig, err := conf.clientConfig()
	if err != nil {
		return nil, err
	}

	client, err := ssh.Dial("tcp", net.JoinHostPort(conf.Host, conf.Port), sshConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", conf.Host, err)
	}

	return &SSH{
		client: client,
		conf:   conf,
	}, nil
}

// Close closes the SSH connection
func (s *SSH) Close() error {
	return s.client.Close()
}

// CopyFromDevice copies a file from the remote device
func (s *SSH) CopyFromDevice(src, dst string) error {
	session, err := s.client.NewSession()
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	defer session.Close()

	f, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	r, err := session.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to get session stdout: %w", err)
	}

	if err := session.Start(fmt.Sprintf("cat %s", src)); err != nil {
		return fmt.Errorf("failed to copy %s from device to %s: %w", src, dst, err)
	}

	count, err := io.Copy(f, r)
	if err != nil {
		return fmt.Errorf("failed to copy %s from device: %w", src, err)
	}

	if err := session.Wait(); err != nil {
		return fmt.Errorf("failed to copy %s from device: %w", src, err)
	}

	if count == 0 {
		return fmt.Errorf("0 bytes copied from device for %s", src)
	}

	return nil
}

// RunCommand runs a command on the remote device
func (s *SSH) RunCommand(cmd string) error {
	session, err := s.client.NewSession()
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	defer session.Close()

	if out, err := session.CombinedOutput(cmd); err != nil {
		return fmt.Errorf("failed to run command: %w: %s", err, out)
	}

	return nil
}

// RunCommandWithOutput runs a command on the remote device and returns the output
func (s *SSH) RunCommandWithOutput(cmd string) (string, error) {
	session, err := s.client.NewSession()
	if err != nil {
		return "", fmt.Errorf("failed to create session: %w", err)
	}
	defer session.Close()

	output, err := session.Output(cmd)
	if err != nil {
		return "", fmt.Errorf("failed to run command: %w", err)
	}

	return string(output), nil
}
