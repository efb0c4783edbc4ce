package record

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"regexp"
	"strconv"

	"github.com/mitchellh/mapstructure"
)

// Record labels as they appear in the markdown file
const (
	LabelNickname     = "Nickname"
	LabelDeviceID     = "Device ID"
	LabelECID         = "ECID"
	LabelIOSVersion   = "iOS Version"
	LabelBuildID      = "Build ID"
	LabelRestoreType  = "Restore Type"
	LabelOTAURL       = "OTA URL"
	LabelAPNonce      = "APNonce"
	LabelGenerator    = "Generator"
	LabelCryptexSeed  = "Cryptex1 Seed"
	LabelCryptexNonce = "Entangled Cryptex1 Nonce"
	LabelCellular     = "Cellular"
	LabelBasebandSNUM = "Baseband SNUM"
)

const title = "# SHSH Blob Configuration"

// Fields is a parsed record: label -> value
type Fields map[string]string

// Get returns the value stored for label or ""
func (f Fields) Get(label string) string {
	if f == nil {
		return ""
	}
	return f[label]
}

type field struct {
	label string
	value func(*ConfigRecord) string
}

type section struct {
	name   string
	fields []field
}

var layout = []section{
	{"Device", []field{
		{LabelNickname, func(r *ConfigRecord) string { return r.Nickname }},
		{LabelDeviceID, func(r *ConfigRecord) string { return r.DeviceID }},
		{LabelECID, func(r *ConfigRecord) string { return r.ECID }},
		{LabelIOSVersion, func(r *ConfigRecord) string { return r.IOSVersion }},
		{LabelBuildID, func(r *ConfigRecord) string { return r.BuildID }},
	}},
	{"Restore", []field{
		{LabelRestoreType, func(r *ConfigRecord) string { return string(r.RestoreType) }},
		{LabelOTAURL, func(r *ConfigRecord) string { return r.OTAURL }},
	}},
	{"Security", []field{
		{LabelAPNonce, func(r *ConfigRecord) string { return r.APNonce }},
		{LabelGenerator, func(r *ConfigRecord) string { return r.Generator }},
		{LabelCryptexSeed, func(r *ConfigRecord) string { return r.Cryptex1Seed }},
		{LabelCryptexNonce, func(r *ConfigRecord) string { return r.EntangledCryptex1Nonce }},
	}},
	{"Baseband", []field{
		{LabelCellular, func(r *ConfigRecord) string { return strconv.FormatBool(r.Cellular) }},
		{LabelBasebandSNUM, func(r *ConfigRecord) string { return r.BasebandSNUM }},
	}},
}

var lineRE = regexp.MustCompile("\\*\\*(.+?):\\*\\*\\s*`(.*?)`")

// Marshal renders the record as a markdown document.
// Values are written verbatim; backticks and newlines are not supported.
func Marshal(r *ConfigRecord) []byte {
	var buf bytes.Buffer
	buf.WriteString(title + "\n")
	for _, sec := range layout {
		fmt.Fprintf(&buf, "\n## %s\n", sec.name)
		for _, f := range sec.fields {
			fmt.Fprintf(&buf, "- **%s:** `%s`\n", f.label, f.value(r))
		}
	}
	return buf.Bytes()
}

// Encode returns the label/value pairs Marshal writes
func Encode(r *ConfigRecord) Fields {
	out := make(Fields)
	for _, sec := range layout {
		for _, f := range sec.fields {
			out[f.label] = f.value(r)
		}
	}
	return out
}

// Parse extracts every `**Label:** `value`` line regardless of section.
// Missing labels are simply absent.
func Parse(r io.Reader) (Fields, error) {
	out := make(Fields)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if m := lineRE.FindStringSubmatch(scanner.Text()); m != nil {
			out[m[1]] = m[2]
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read record: %w", err)
	}
	return out, nil
}

// ParseBytes is Parse over an in-memory document
func ParseBytes(data []byte) (Fields, error) {
	return Parse(bytes.NewReader(data))
}

func cellularHook(from, to reflect.Type, data any) (any, error) {
	if from.Kind() == reflect.String && to.Kind() == reflect.Bool {
		return IsTruthy(data.(string)), nil
	}
	return data, nil
}

// Decode converts parsed fields into a ConfigRecord
func Decode(fields Fields) (*ConfigRecord, error) {
	var rec ConfigRecord
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: cellularHook,
		Result:     &rec,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create record decoder: %w", err)
	}
	if err := dec.Decode(map[string]string(fields)); err != nil {
		return nil, fmt.Errorf("failed to decode record: %w", err)
	}
	return &rec, nil
}

// Load reads and parses the record at path
func Load(path string) (Fields, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &MissingRecordError{Path: path}
		}
		return nil, fmt.Errorf("failed to open record %s: %w", path, err)
	}
	fields, err := ParseBytes(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return fields, nil
}

// Open loads and decodes the record at path
func Open(path string) (*ConfigRecord, error) {
	fields, err := Load(path)
	if err != nil {
		return nil, err
	}
	return Decode(fields)
}

// Save writes the record to path, creating the parent directory if needed
func Save(path string, r *ConfigRecord) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("failed to create record directory: %w", err)
	}
	if err := os.WriteFile(path, Marshal(r), 0o644); err != nil {
		return fmt.Errorf("failed to write record %s: %w", path, err)
	}
	return nil
}
