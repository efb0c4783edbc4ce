// Package manifest reads the OTA BuildManifest.plist fetched for a record
package manifest

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/blacktop/go-plist"
	"github.com/hashicorp/go-version"

	"github.com/blacktop/blobkeep/internal/record"
	"github.com/blacktop/blobkeep/internal/utils"
)

// BuildManifest is the subset of BuildManifest.plist blob saving cares about
type BuildManifest struct {
	BuildIdentities       []BuildIdentity `plist:"BuildIdentities,omitempty"`
	ManifestVersion       int             `plist:"ManifestVersion,omitempty"`
	ProductBuildVersion   string          `plist:"ProductBuildVersion,omitempty"`
	ProductVersion        string          `plist:"ProductVersion,omitempty"`
	SupportedProductTypes []string        `plist:"SupportedProductTypes,omitempty"`
}

type BuildIdentity struct {
	ApProductType string       `plist:"Ap,ProductType,omitempty"`
	ApBoardID     string       `plist:"ApBoardID,omitempty"`
	ApChipID      string       `plist:"ApChipID,omitempty"`
	Info          IdentityInfo `plist:"Info,omitempty"`
}

type IdentityInfo struct {
	BuildNumber     string `plist:"BuildNumber,omitempty"`
	DeviceClass     string `plist:"DeviceClass,omitempty"`
	RestoreBehavior string `plist:"RestoreBehavior,omitempty"`
	Variant         string `plist:"Variant,omitempty"`
}

func (b *BuildManifest) String() string {
	return fmt.Sprintf("%s (%s) for %s", b.ProductVersion, b.ProductBuildVersion, strings.Join(b.SupportedProductTypes, ", "))
}

// Parse parses BuildManifest.plist data
func Parse(data []byte) (*BuildManifest, error) {
	bm := &BuildManifest{}
	if err := plist.NewDecoder(bytes.NewReader(data)).Decode(bm); err != nil {
		return nil, fmt.Errorf("failed to decode BuildManifest.plist: %w", err)
	}
	return bm, nil
}

// Open reads and parses the BuildManifest.plist at path
func Open(path string) (*BuildManifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return Parse(data)
}

// Supports reports whether the manifest lists the device
func (b *BuildManifest) Supports(device string) bool {
	if utils.StrSliceHas(b.SupportedProductTypes, device) {
		return true
	}
	for _, bi := range b.BuildIdentities {
		if strings.EqualFold(bi.ApProductType, device) {
			return true
		}
	}
	return false
}

// Check compares the manifest with the record and returns every mismatch
func (b *BuildManifest) Check(rec *record.ConfigRecord) []string {
	var problems []string

	if len(rec.DeviceID) > 0 && !b.Supports(rec.DeviceID) {
		problems = append(problems, fmt.Sprintf("manifest does not list device %s (supports %s)",
			rec.DeviceID, strings.Join(b.SupportedProductTypes, ", ")))
	}

	if len(rec.BuildID) > 0 && len(b.ProductBuildVersion) > 0 && !strings.EqualFold(rec.BuildID, b.ProductBuildVersion) {
		problems = append(problems, fmt.Sprintf("manifest build %s does not match record build %s",
			b.ProductBuildVersion, rec.BuildID))
	}

	if len(b.ProductVersion) > 0 && len(rec.IOSVersion) > 0 {
		want, err := version.NewVersion(rec.IOSVersion)
		if err != nil {
			problems = append(problems, fmt.Sprintf("record iOS version %q is not a version: %v", rec.IOSVersion, err))
			return problems
		}
		got, err := version.NewVersion(b.ProductVersion)
		if err != nil {
			problems = append(problems, fmt.Sprintf("manifest ProductVersion %q is not a version: %v", b.ProductVersion, err))
			return problems
		}
		if !got.Equal(want) {
			problems = append(problems, fmt.Sprintf("manifest is for iOS %s but record is for iOS %s", got, want))
		}
	}

	return problems
}
