// Package record holds the SHSH blob configuration record and its on-disk
// markdown codec.
package record

import (
	"path/filepath"
	"strconv"
	"strings"
)

// BasebandNA is the Baseband SNUM stored for non-cellular devices
const BasebandNA = "N/A"

// Ext is the extension of record files
const Ext = ".mkdn"

// ManifestName is the OTA build manifest kept next to a device's records
const ManifestName = "BuildManifest.plist"

// ManifestPath returns the OTA build manifest path for a device directory
func ManifestPath(dir string) string {
	return filepath.Join(dir, ManifestName)
}

// RestoreType is the restore path a signing ticket is requested for
type RestoreType string

const (
	RestoreOTA    RestoreType = "ota"
	RestoreUpdate RestoreType = "update"
	RestoreErase  RestoreType = "erase"
	RestoreAll    RestoreType = "all"
)

var restoreChoices = map[string]RestoreType{
	"1": RestoreOTA,
	"2": RestoreUpdate,
	"3": RestoreErase,
	"4": RestoreAll,
}

// RestoreChoices are the menu entries offered for the restore type, in menu order
var RestoreChoices = []string{"1) OTA", "2) Update", "3) Erase", "4) ALL"}

// ParseRestoreChoice maps a 1-4 menu choice to a RestoreType.
// Anything it does not recognize (including an empty answer) yields fallback.
func ParseRestoreChoice(choice string, fallback RestoreType) RestoreType {
	choice = strings.TrimSpace(choice)
	if i := strings.Index(choice, ")"); i > 0 {
		choice = choice[:i]
	}
	if rt, ok := restoreChoices[choice]; ok {
		return rt
	}
	return fallback
}

// Choice returns the menu number for the restore type or "" when it has none
func (rt RestoreType) Choice() string {
	for k, v := range restoreChoices {
		if v == rt {
			return k
		}
	}
	return ""
}

// Valid reports whether rt is one of the known restore types
func (rt RestoreType) Valid() bool {
	return rt.Choice() != ""
}

// NeedsManifest reports whether the restore type includes the OTA path
func (rt RestoreType) NeedsManifest() bool {
	return rt == RestoreOTA || rt == RestoreAll
}

// Modes expands the restore type into the ordered list of concrete modes.
// The order of `all` is fixed: update, erase, ota.
func (rt RestoreType) Modes() []RestoreType {
	switch rt {
	case RestoreAll:
		return []RestoreType{RestoreUpdate, RestoreErase, RestoreOTA}
	case RestoreOTA, RestoreUpdate, RestoreErase:
		return []RestoreType{rt}
	default:
		return nil
	}
}

// IOSMajor returns the integer before the first '.' of an iOS version
func IOSMajor(version string) (int, bool) {
	major, _, _ := strings.Cut(version, ".")
	n, err := strconv.Atoi(strings.TrimSpace(major))
	if err != nil {
		return 0, false
	}
	return n, true
}

// IsTruthy reports whether a free text yes/no answer means yes
func IsTruthy(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "yes", "y":
		return true
	}
	return false
}

// ConfigRecord is one device's restore configuration
type ConfigRecord struct {
	Nickname               string      `mapstructure:"Nickname" json:"nickname" yaml:"nickname"`
	DeviceID               string      `mapstructure:"Device ID" json:"device_id" yaml:"device_id"`
	ECID                   string      `mapstructure:"ECID" json:"ecid" yaml:"ecid"`
	IOSVersion             string      `mapstructure:"iOS Version" json:"ios_version" yaml:"ios_version"`
	BuildID                string      `mapstructure:"Build ID" json:"build_id,omitempty" yaml:"build_id,omitempty"`
	RestoreType            RestoreType `mapstructure:"Restore Type" json:"restore_type" yaml:"restore_type"`
	OTAURL                 string      `mapstructure:"OTA URL" json:"ota_url,omitempty" yaml:"ota_url,omitempty"`
	APNonce                string      `mapstructure:"APNonce" json:"apnonce" yaml:"apnonce"`
	Generator              string      `mapstructure:"Generator" json:"generator" yaml:"generator"`
	Cryptex1Seed           string      `mapstructure:"Cryptex1 Seed" json:"cryptex1_seed,omitempty" yaml:"cryptex1_seed,omitempty"`
	EntangledCryptex1Nonce string      `mapstructure:"Entangled Cryptex1 Nonce" json:"entangled_cryptex1_nonce,omitempty" yaml:"entangled_cryptex1_nonce,omitempty"`
	Cellular               bool        `mapstructure:"Cellular" json:"cellular" yaml:"cellular"`
	BasebandSNUM           string      `mapstructure:"Baseband SNUM" json:"baseband_snum" yaml:"baseband_snum"`
}

// Major returns the major iOS version of the record
func (r *ConfigRecord) Major() (int, bool) {
	return IOSMajor(r.IOSVersion)
}

// HasCryptex reports whether the record's iOS version carries cryptex parameters (iOS 16+)
func (r *ConfigRecord) HasCryptex() bool {
	major, ok := r.Major()
	return ok && major >= 16
}

// SafeECID returns the ECID without colons or spaces
func (r *ConfigRecord) SafeECID() string {
	return strings.NewReplacer(":", "", " ", "").Replace(r.ECID)
}

// VersionSuffix is the Build ID when set, otherwise the iOS version
func (r *ConfigRecord) VersionSuffix() string {
	if len(r.BuildID) > 0 {
		return r.BuildID
	}
	return r.IOSVersion
}

// Filename is the record's file name: {DeviceID}-{ECID}-{suffix}.mkdn
func (r *ConfigRecord) Filename() string {
	return r.DeviceID + "-" + r.SafeECID() + "-" + r.VersionSuffix() + Ext
}

// SendBaseband reports whether a baseband SNUM should be sent with the request
func (r *ConfigRecord) SendBaseband() bool {
	return r.Cellular && len(r.BasebandSNUM) > 0 && r.BasebandSNUM != BasebandNA
}
