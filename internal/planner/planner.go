// Package planner expands a configuration record into the tsschecker runs
// needed to save its blobs.
package planner

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/apex/log"
	"github.com/fatih/color"
	"github.com/hashicorp/go-multierror"

	"github.com/blacktop/blobkeep/internal/record"
	"github.com/blacktop/blobkeep/internal/utils"
)

// tsschecker flags
const (
	flagDevice      = "-d"
	flagECID        = "-e"
	flagSave        = "-s"
	flagAPNonce     = "--apnonce"
	flagGenerator   = "-g"
	flagSavePath    = "--save-path"
	flagCryptexSeed = "-x"
	flagCryptexNon  = "-t"
	flagBuildID     = "--buildid"
	flagIOSVersion  = "-i"
	flagManifest    = "-m"
	flagOTA         = "-o"
	flagUpdate      = "-u"
	flagErase       = "-E"
	flagNoBaseband  = "-b"
	flagBasebandSN  = "-c"
)

// SigningChecker runs the signing check tool
type SigningChecker interface {
	RunSigningCheck(args []string) (int, error)
}

// Plan is one tsschecker run
type Plan struct {
	Mode      record.RestoreType
	OutputDir string
	Args      []string
}

func (p Plan) String() string {
	return fmt.Sprintf("%s: tsschecker %s", p.Mode, strings.Join(p.Args, " "))
}

// Skip is a mode that could not be planned
type Skip struct {
	Mode   record.RestoreType
	Reason string
}

// ExecutionPlan is the ordered set of runs for a record
type ExecutionPlan struct {
	Record  *record.ConfigRecord
	Plans   []Plan
	Skipped []Skip
}

// Planner plans the runs for records kept in one device directory
type Planner struct {
	baseDir string
}

// New returns a Planner for the device directory baseDir
func New(baseDir string) *Planner {
	return &Planner{baseDir: baseDir}
}

// ManifestPath is the OTA build manifest the ota mode needs
func (p *Planner) ManifestPath() string {
	return record.ManifestPath(p.baseDir)
}

// OutputDir is where blobs for mode are saved
func (p *Planner) OutputDir(rec *record.ConfigRecord, mode record.RestoreType) string {
	return filepath.Join(p.baseDir, "shsh", rec.IOSVersion+"-"+string(mode))
}

// Plan expands rec into one run per restore mode, in mode order.
// The ota mode is skipped when the build manifest is missing.
func (p *Planner) Plan(rec *record.ConfigRecord) *ExecutionPlan {
	ep := &ExecutionPlan{Record: rec}

	for _, mode := range rec.RestoreType.Modes() {
		if mode == record.RestoreOTA {
			if _, err := os.Stat(p.ManifestPath()); err != nil {
				ep.Skipped = append(ep.Skipped, Skip{
					Mode:   mode,
					Reason: fmt.Sprintf("%s not found", p.ManifestPath()),
				})
				continue
			}
		}
		out := p.OutputDir(rec, mode)
		ep.Plans = append(ep.Plans, Plan{
			Mode:      mode,
			OutputDir: out,
			Args:      p.args(rec, mode, out),
		})
	}

	return ep
}

func (p *Planner) args(rec *record.ConfigRecord, mode record.RestoreType, out string) []string {
	args := []string{
		flagDevice, rec.DeviceID,
		flagECID, rec.ECID,
		flagSave,
		flagAPNonce, rec.APNonce,
		flagGenerator, rec.Generator,
		flagSavePath, out,
	}

	if rec.HasCryptex() {
		args = append(args, flagCryptexSeed, rec.Cryptex1Seed, flagCryptexNon, rec.EntangledCryptex1Nonce)
	}

	if len(rec.BuildID) > 0 {
		args = append(args, flagBuildID, rec.BuildID)
	} else {
		args = append(args, flagIOSVersion, rec.IOSVersion)
	}

	switch mode {
	case record.RestoreOTA:
		args = append(args, flagManifest, p.ManifestPath(), flagOTA)
	case record.RestoreUpdate:
		args = append(args, flagUpdate)
	case record.RestoreErase:
		args = append(args, flagErase)
	}

	if !rec.Cellular {
		args = append(args, flagNoBaseband)
	} else if rec.SendBaseband() {
		args = append(args, flagBasebandSN, rec.BasebandSNUM)
	}

	return args
}

// Execute runs every plan in order. A failing run does not stop the
// ones after it; all failures are returned together.
func Execute(runner SigningChecker, ep *ExecutionPlan) error {
	var errs *multierror.Error

	if ep.Record != nil && !ep.Record.RestoreType.Valid() {
		log.Warnf("Restore type %q has no modes, nothing to save", ep.Record.RestoreType)
	}

	for _, s := range ep.Skipped {
		log.WithField("mode", s.Mode).Warnf("Skipping: %s", s.Reason)
	}

	for _, plan := range ep.Plans {
		log.WithField("mode", plan.Mode).Info("Saving blobs")
		utils.Indent(log.Info, 2)(fmt.Sprintf("Output: %s", color.New(color.Bold).Sprint(plan.OutputDir)))

		if err := os.MkdirAll(plan.OutputDir, 0o750); err != nil {
			errs = multierror.Append(errs, &ExternalToolFailure{
				Mode:   plan.Mode,
				Status: -1,
				Err:    fmt.Errorf("failed to create %s: %w", plan.OutputDir, err),
			})
			continue
		}

		status, err := runner.RunSigningCheck(plan.Args)
		if err != nil || status != 0 {
			failure := &ExternalToolFailure{Mode: plan.Mode, Status: status, Err: err}
			log.WithField("mode", plan.Mode).Warn(failure.Error())
			errs = multierror.Append(errs, failure)
		}
	}

	return errs.ErrorOrNil()
}
