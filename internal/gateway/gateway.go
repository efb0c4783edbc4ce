// Package gateway runs the external tools blob saving depends on: the OTA
// manifest fetcher (pzb, or a built-in ranged zip reader) and tsschecker.
package gateway

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/apex/log"
	"github.com/dustin/go-humanize"

	"github.com/blacktop/blobkeep/internal/record"
	"github.com/blacktop/blobkeep/internal/utils"
)

const (
	// ManifestName is the name of the fetched OTA build manifest
	ManifestName = record.ManifestName
	// ManifestZipPath is where the build manifest lives inside an OTA zip
	ManifestZipPath = "AssetData/boot/BuildManifest.plist"
)

// ManifestFetchError is returned when the fetch did not produce a manifest
type ManifestFetchError struct {
	URL  string
	Path string
}

func (e *ManifestFetchError) Error() string {
	return fmt.Sprintf("%s not found after fetching %s (looked in %s)", ManifestName, e.URL, e.Path)
}

// Config is the gateway configuration
type Config struct {
	Tsschecker string
	Pzb        string
	// Native fetches the manifest with ranged HTTP reads instead of pzb
	Native   bool
	Proxy    string
	Insecure bool

	Stdout io.Writer
	Stderr io.Writer
}

// Gateway invokes the external tools
type Gateway struct {
	conf *Config
}

// New returns a Gateway
func New(conf *Config) *Gateway {
	if conf.Tsschecker == "" {
		conf.Tsschecker = "tsschecker"
	}
	if conf.Pzb == "" {
		conf.Pzb = "pzb"
	}
	if conf.Stdout == nil {
		conf.Stdout = os.Stdout
	}
	if conf.Stderr == nil {
		conf.Stderr = os.Stderr
	}
	return &Gateway{conf: conf}
}

// CheckSigningTool verifies tsschecker can be found
func (g *Gateway) CheckSigningTool() error {
	if _, err := exec.LookPath(g.conf.Tsschecker); err != nil {
		return fmt.Errorf("tsschecker not found (set tools.tsschecker in the config): %w", err)
	}
	return nil
}

// CheckManifestTool verifies pzb can be found (no-op for the native fetcher)
func (g *Gateway) CheckManifestTool() error {
	if g.conf.Native {
		return nil
	}
	if _, err := exec.LookPath(g.conf.Pzb); err != nil {
		return fmt.Errorf("pzb not found (set tools.pzb or manifest.native in the config): %w", err)
	}
	return nil
}

// FetchManifest fetches the OTA build manifest at url into a scratch
// directory, then moves it to {destDir}/BuildManifest.plist.
func (g *Gateway) FetchManifest(url, destDir string) error {
	if err := g.CheckManifestTool(); err != nil {
		return err
	}
	if err := os.MkdirAll(destDir, 0o750); err != nil {
		return fmt.Errorf("failed to create %s: %w", destDir, err)
	}

	scratch, err := os.MkdirTemp("", "blobkeep-manifest")
	if err != nil {
		return fmt.Errorf("failed to create scratch directory: %w", err)
	}
	defer os.RemoveAll(scratch)

	if g.conf.Native {
		err = fetchRemoteManifest(url, scratch, &RemoteConfig{
			Proxy:    g.conf.Proxy,
			Insecure: g.conf.Insecure,
		})
	} else {
		err = g.runPzb(url, scratch)
	}
	if err != nil {
		return err
	}

	dest, err := relocate(url, scratch, destDir)
	if err != nil {
		return err
	}
	if fi, err := os.Stat(dest); err == nil {
		utils.Indent(log.Info, 2)(fmt.Sprintf("Saved %s (%s)", dest, humanize.Bytes(uint64(fi.Size()))))
	}
	return nil
}

func (g *Gateway) runPzb(url, dir string) error {
	cmd := exec.Command(g.conf.Pzb, "-g", ManifestZipPath, url)
	cmd.Dir = dir
	cmd.Stdout = g.conf.Stdout
	cmd.Stderr = g.conf.Stderr
	log.WithField("cmd", cmd.String()).Debug("Running pzb")
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("pzb failed: %w", err)
	}
	return nil
}

// relocate moves the fetched manifest out of the scratch directory
func relocate(url, scratch, destDir string) (string, error) {
	src := filepath.Join(scratch, ManifestName)
	if _, err := os.Stat(src); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", &ManifestFetchError{URL: url, Path: scratch}
		}
		return "", fmt.Errorf("failed to stat fetched manifest: %w", err)
	}
	dest := filepath.Join(destDir, ManifestName)
	if err := move(src, dest); err != nil {
		return "", fmt.Errorf("failed to move %s to %s: %w", src, dest, err)
	}
	return dest, nil
}

// move renames src to dst, falling back to copy+remove across filesystems
func move(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}

// RunSigningCheck runs tsschecker with args and returns its exit status.
// The tool's own output goes straight to the operator.
func (g *Gateway) RunSigningCheck(args []string) (int, error) {
	cmd := exec.Command(g.conf.Tsschecker, args...)
	cmd.Stdout = g.conf.Stdout
	cmd.Stderr = g.conf.Stderr
	log.WithField("cmd", cmd.String()).Debug("Running tsschecker")
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return exitErr.ExitCode(), nil
		}
		return -1, fmt.Errorf("failed to run %s: %w", g.conf.Tsschecker, err)
	}
	return 0, nil
}
