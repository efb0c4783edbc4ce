// Package editor builds new SHSH blob configuration records and amends
// existing ones from answers supplied by a FieldSource.
package editor

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/apex/log"

	"github.com/blacktop/blobkeep/internal/manifest"
	"github.com/blacktop/blobkeep/internal/record"
	"github.com/blacktop/blobkeep/internal/utils"
)

// ManifestFetcher fetches an OTA build manifest into a device directory
type ManifestFetcher interface {
	FetchManifest(url, destDir string) error
}

// Editor creates or amends configuration records
type Editor struct {
	Source  FieldSource
	Fetcher ManifestFetcher
	// BaseDir is the root of the per-device directories
	BaseDir string
}

// Result is the outcome of an edit
type Result struct {
	Record *record.ConfigRecord
	Path   string
	// Manifest is the fetched build manifest, nil when none was fetched
	Manifest *manifest.BuildManifest
}

// ask asks for label, keeping the existing value when the answer is empty.
// Required fields are asked again until they get a value.
func (e *Editor) ask(label, prompt string, existing record.Fields, optional bool) (string, error) {
	def := existing.Get(label)
	for {
		v, err := e.Source.Ask(Field{
			Label:    label,
			Prompt:   prompt,
			Default:  def,
			Optional: optional,
		})
		if err != nil {
			return "", err
		}
		if v = strings.TrimSpace(v); len(v) > 0 {
			return v, nil
		}
		if len(def) > 0 {
			return def, nil
		}
		if optional {
			return "", nil
		}
		log.Warn((&UserInputError{Label: label}).Error())
	}
}

func (e *Editor) askRestoreType(existing record.Fields) (record.RestoreType, error) {
	stored := record.RestoreType(existing.Get(record.LabelRestoreType))
	var def string
	if c := stored.Choice(); len(c) > 0 {
		for _, choice := range record.RestoreChoices {
			if strings.HasPrefix(choice, c+")") {
				def = choice
			}
		}
	}
	answer, err := e.Source.Ask(Field{
		Label:    record.LabelRestoreType,
		Prompt:   "Restore type",
		Default:  def,
		Optional: true,
		Choices:  record.RestoreChoices,
	})
	if err != nil {
		return "", err
	}
	return record.ParseRestoreChoice(answer, stored), nil
}

// Edit builds a record from existing (empty for a new record) and the field
// source answers, then writes it. existingPath is the file existing was
// loaded from; its directory is reused for the new record.
func (e *Editor) Edit(existing record.Fields, existingPath string) (*Result, error) {
	if e.Source == nil {
		return nil, errors.New("editor: no field source")
	}
	if existing == nil {
		existing = record.Fields{}
	}

	var (
		rec = &record.ConfigRecord{}
		err error
	)

	if rec.Nickname, err = e.ask(record.LabelNickname, "Device nickname", existing, false); err != nil {
		return nil, err
	}
	rec.Nickname = strings.ReplaceAll(rec.Nickname, " ", "-")

	if rec.DeviceID, err = e.ask(record.LabelDeviceID, "Device identifier (e.g. iPhone11,8)", existing, false); err != nil {
		return nil, err
	}
	if rec.ECID, err = e.ask(record.LabelECID, "ECID", existing, false); err != nil {
		return nil, err
	}
	if rec.IOSVersion, err = e.ask(record.LabelIOSVersion, "iOS version (e.g. 16.7.1)", existing, false); err != nil {
		return nil, err
	}
	if rec.BuildID, err = e.ask(record.LabelBuildID, "Build ID (optional, for betas)", existing, true); err != nil {
		return nil, err
	}

	deviceDir := filepath.Join(e.BaseDir, rec.Nickname)
	if len(existingPath) > 0 {
		deviceDir = filepath.Dir(existingPath)
	}
	if err := os.MkdirAll(deviceDir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create device directory %s: %w", deviceDir, err)
	}

	if rec.RestoreType, err = e.askRestoreType(existing); err != nil {
		return nil, err
	}

	var bm *manifest.BuildManifest
	rec.OTAURL = existing.Get(record.LabelOTAURL)
	if rec.RestoreType.NeedsManifest() {
		if rec.OTAURL, err = e.ask(record.LabelOTAURL, "OTA URL", existing, false); err != nil {
			return nil, err
		}
		if e.Fetcher == nil {
			return nil, errors.New("editor: OTA restore requested but no manifest fetcher configured")
		}
		utils.Indent(log.Info, 2)(fmt.Sprintf("Fetching %s", record.ManifestName))
		if err := e.Fetcher.FetchManifest(rec.OTAURL, deviceDir); err != nil {
			return nil, fmt.Errorf("failed to download %s: %w", record.ManifestName, err)
		}
		if bm, err = manifest.Open(record.ManifestPath(deviceDir)); err != nil {
			log.WithError(err).Warn("Fetched manifest could not be read")
		}
	}

	if rec.APNonce, err = e.ask(record.LabelAPNonce, "APNonce", existing, false); err != nil {
		return nil, err
	}
	if rec.Generator, err = e.ask(record.LabelGenerator, "Generator", existing, false); err != nil {
		return nil, err
	}

	// below iOS 16 the cryptex pair is always cleared, whatever was stored
	rec.Cryptex1Seed = ""
	rec.EntangledCryptex1Nonce = ""
	if rec.HasCryptex() {
		if rec.Cryptex1Seed, err = e.ask(record.LabelCryptexSeed, "Cryptex1 Seed", existing, false); err != nil {
			return nil, err
		}
		if rec.EntangledCryptex1Nonce, err = e.ask(record.LabelCryptexNonce, "Entangled Cryptex1 Nonce", existing, false); err != nil {
			return nil, err
		}
	}

	cellular, err := e.ask(record.LabelCellular, "Cellular device? (true/false)", existing, false)
	if err != nil {
		return nil, err
	}
	rec.Cellular = record.IsTruthy(cellular)

	rec.BasebandSNUM = record.BasebandNA
	if rec.Cellular {
		if rec.BasebandSNUM, err = e.ask(record.LabelBasebandSNUM, "Baseband SNUM", existing, false); err != nil {
			return nil, err
		}
	}

	if bm != nil {
		for _, problem := range bm.Check(rec) {
			log.Warn(problem)
		}
	}

	path := filepath.Join(deviceDir, rec.Filename())
	if err := record.Save(path, rec); err != nil {
		return nil, err
	}

	return &Result{
		Record:   rec,
		Path:     path,
		Manifest: bm,
	}, nil
}
