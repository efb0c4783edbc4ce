// Package apticket pulls the cryptex1 apticket off a jailbroken device and
// reads the properties of its IM4M manifest.
package apticket

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/apex/log"
	"github.com/kballard/go-shellquote"

	"github.com/blacktop/blobkeep/internal/utils"
)

// CryptexTicketGlob is the live cryptex1 apticket on the device
const CryptexTicketGlob = "/private/preboot/cryptex1/current/apticket*"

// Remote runs commands on, and copies files from, a device
type Remote interface {
	RunCommand(cmd string) error
	RunCommandWithOutput(cmd string) (string, error)
	CopyFromDevice(src, dst string) error
}

// Fetch copies the cryptex1 apticket into outDir and returns its local path.
// The ticket is copied to the remote home directory with sudo first, since
// the preboot volume is not readable by the login user, and removed afterwards.
func Fetch(cli Remote, password, outDir string) (string, error) {
	utils.Indent(log.Info, 2)("Copying apticket out of the cryptex preboot volume")
	cp := fmt.Sprintf("echo %s | sudo -S cp %s ./", shellquote.Join(password), CryptexTicketGlob)
	if err := cli.RunCommand(cp); err != nil {
		return "", fmt.Errorf("failed to copy apticket with sudo: %w", err)
	}

	out, err := cli.RunCommandWithOutput("ls apticket.*.im4m")
	if err != nil {
		return "", fmt.Errorf("failed to find copied apticket: %w", err)
	}
	fields := strings.Fields(out)
	if len(fields) == 0 {
		return "", fmt.Errorf("no apticket.*.im4m found on device")
	}
	name := filepath.Base(fields[0])
	if len(fields) > 1 {
		log.Warnf("Found %d aptickets, using %s", len(fields), name)
	}
	utils.Indent(log.Info, 2)(fmt.Sprintf("Found apticket: %s", name))

	if err := os.MkdirAll(outDir, 0o750); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", outDir, err)
	}
	local := filepath.Join(outDir, name)
	if err := cli.CopyFromDevice(shellquote.Join(name), local); err != nil {
		return "", err
	}

	if err := cli.RunCommand("rm " + shellquote.Join(name)); err != nil {
		log.WithError(err).Warnf("Failed to remove %s from device", name)
	}

	return local, nil
}
