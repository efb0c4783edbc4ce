package record

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestIOSMajor(t *testing.T) {
	tests := []struct {
		name    string
		version string
		want    int
		wantOK  bool
	}{
		{"three part", "16.7.1", 16, true},
		{"two part", "15.7", 15, true},
		{"major only", "17", 17, true},
		{"beta build", "18.0", 18, true},
		{"not a number", "abc", 0, false},
		{"empty", "", 0, false},
		{"leading dot", ".1", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := IOSMajor(tt.version)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("IOSMajor(%q) = %d, %v, want %d, %v", tt.version, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestRestoreType_Modes(t *testing.T) {
	tests := []struct {
		rt   RestoreType
		want []RestoreType
	}{
		{RestoreAll, []RestoreType{RestoreUpdate, RestoreErase, RestoreOTA}},
		{RestoreOTA, []RestoreType{RestoreOTA}},
		{RestoreUpdate, []RestoreType{RestoreUpdate}},
		{RestoreErase, []RestoreType{RestoreErase}},
		{"", nil},
		{"restore", nil},
	}
	for _, tt := range tests {
		t.Run(string(tt.rt), func(t *testing.T) {
			if got := tt.rt.Modes(); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Modes() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseRestoreChoice(t *testing.T) {
	tests := []struct {
		choice   string
		fallback RestoreType
		want     RestoreType
	}{
		{"1", "", RestoreOTA},
		{"2", RestoreAll, RestoreUpdate},
		{"3", "", RestoreErase},
		{"4", "", RestoreAll},
		{"4) ALL", "", RestoreAll},
		{"", RestoreErase, RestoreErase},
		{"9", RestoreUpdate, RestoreUpdate},
		{"ota", "", ""},
	}
	for _, tt := range tests {
		if got := ParseRestoreChoice(tt.choice, tt.fallback); got != tt.want {
			t.Errorf("ParseRestoreChoice(%q, %q) = %q, want %q", tt.choice, tt.fallback, got, tt.want)
		}
	}
}

func TestIsTruthy(t *testing.T) {
	for _, s := range []string{"true", "True", "YES", "y", " yes "} {
		if !IsTruthy(s) {
			t.Errorf("IsTruthy(%q) = false", s)
		}
	}
	for _, s := range []string{"false", "no", "n", "", "1", "N/A"} {
		if IsTruthy(s) {
			t.Errorf("IsTruthy(%q) = true", s)
		}
	}
}

func TestConfigRecord_Filename(t *testing.T) {
	tests := []struct {
		name string
		rec  ConfigRecord
		want string
	}{
		{
			name: "ios version suffix",
			rec:  ConfigRecord{DeviceID: "iPhone11,8", ECID: "1A2B3C", IOSVersion: "15.7"},
			want: "iPhone11,8-1A2B3C-15.7.mkdn",
		},
		{
			name: "build id wins",
			rec:  ConfigRecord{DeviceID: "iPhone11,8", ECID: "1A2B3C", IOSVersion: "17.0", BuildID: "21A5248v"},
			want: "iPhone11,8-1A2B3C-21A5248v.mkdn",
		},
		{
			name: "ecid normalized",
			rec:  ConfigRecord{DeviceID: "iPad7,5", ECID: "00:1A 2B:3C", IOSVersion: "16.7.1"},
			want: "iPad7,5-001A2B3C-16.7.1.mkdn",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.rec.Filename(); got != tt.want {
				t.Errorf("Filename() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestConfigRecord_SendBaseband(t *testing.T) {
	tests := []struct {
		cellular bool
		snum     string
		want     bool
	}{
		{false, "N/A", false},
		{false, "1234", false},
		{true, "N/A", false},
		{true, "", false},
		{true, "1234", true},
	}
	for _, tt := range tests {
		r := ConfigRecord{Cellular: tt.cellular, BasebandSNUM: tt.snum}
		if got := r.SendBaseband(); got != tt.want {
			t.Errorf("SendBaseband(cellular=%v, snum=%q) = %v, want %v", tt.cellular, tt.snum, got, tt.want)
		}
	}
}

func testRecord() *ConfigRecord {
	return &ConfigRecord{
		Nickname:               "my-phone",
		DeviceID:               "iPhone11,8",
		ECID:                   "1A2B3C",
		IOSVersion:             "17.0",
		BuildID:                "21A329",
		RestoreType:            RestoreAll,
		OTAURL:                 "https://updates.cdn-apple.com/ota.zip",
		APNonce:                "aa11",
		Generator:              "0x1111111111111111",
		Cryptex1Seed:           "0xdeadbeef",
		EntangledCryptex1Nonce: "cafe",
		Cellular:               true,
		BasebandSNUM:           "9999",
	}
}

func TestRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		rec  *ConfigRecord
	}{
		{"full", testRecord()},
		{"empty", &ConfigRecord{}},
		{"legacy wifi", &ConfigRecord{
			Nickname:     "old-ipad",
			DeviceID:     "iPad6,11",
			ECID:         "ABCDEF",
			IOSVersion:   "15.7",
			RestoreType:  RestoreErase,
			APNonce:      "00",
			Generator:    "0x1",
			BasebandSNUM: BasebandNA,
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fields, err := ParseBytes(Marshal(tt.rec))
			if err != nil {
				t.Fatalf("ParseBytes() error = %v", err)
			}
			if diff := cmp.Diff(Encode(tt.rec), fields); diff != "" {
				t.Errorf("parsed fields mismatch (-want +got):\n%s", diff)
			}
			got, err := Decode(fields)
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if diff := cmp.Diff(tt.rec, got); diff != "" {
				t.Errorf("round trip mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestMarshal_Layout(t *testing.T) {
	out := string(Marshal(testRecord()))
	for _, want := range []string{
		"# SHSH Blob Configuration",
		"## Device\n- **Nickname:** `my-phone`",
		"## Restore\n- **Restore Type:** `all`",
		"## Security\n- **APNonce:** `aa11`",
		"## Baseband\n- **Cellular:** `true`\n- **Baseband SNUM:** `9999`",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Marshal() missing %q in:\n%s", want, out)
		}
	}
	if strings.Index(out, "## Device") > strings.Index(out, "## Restore") ||
		strings.Index(out, "## Restore") > strings.Index(out, "## Security") ||
		strings.Index(out, "## Security") > strings.Index(out, "## Baseband") {
		t.Errorf("sections out of order:\n%s", out)
	}
}

func TestParse_Tolerant(t *testing.T) {
	doc := strings.Join([]string{
		"# whatever",
		"- **Device ID:** `iPhone10,3`",
		"some prose that is ignored",
		"## Unknown",
		"- **ECID:** `ABC`",
		"- **Cellular:** `True`",
	}, "\n")
	fields, err := Parse(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	want := Fields{"Device ID": "iPhone10,3", "ECID": "ABC", "Cellular": "True"}
	if diff := cmp.Diff(want, fields); diff != "" {
		t.Errorf("Parse() mismatch (-want +got):\n%s", diff)
	}
	rec, err := Decode(fields)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if !rec.Cellular {
		t.Error("Decode() Cellular = false for stored \"True\"")
	}
	if rec.IOSVersion != "" || rec.BuildID != "" {
		t.Errorf("absent labels should decode empty, got %+v", rec)
	}
}

func TestLoad_Missing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nope.mkdn")
	_, err := Load(path)
	var missing *MissingRecordError
	if !errors.As(err, &missing) {
		t.Fatalf("Load() error = %v, want *MissingRecordError", err)
	}
	if missing.Path != path {
		t.Errorf("MissingRecordError.Path = %s, want %s", missing.Path, path)
	}
}

func TestSaveOpen(t *testing.T) {
	rec := testRecord()
	path := filepath.Join(t.TempDir(), "blobs", rec.Nickname, rec.Filename())
	if err := Save(path, rec); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	got, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if diff := cmp.Diff(rec, got); diff != "" {
		t.Errorf("Open() mismatch (-want +got):\n%s", diff)
	}

	// overwrite in place
	rec.APNonce = "bb22"
	if err := Save(path, rec); err != nil {
		t.Fatalf("Save() overwrite error = %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	fields, err := ParseBytes(data)
	if err != nil {
		t.Fatalf("ParseBytes() error = %v", err)
	}
	if fields.Get(LabelAPNonce) != "bb22" {
		t.Errorf("overwrite not persisted:\n%s", data)
	}
}

func TestLoad_Unreadable(t *testing.T) {
	// a single line longer than the scanner buffer
	data := append([]byte("- **Nickname:** `"), bytes.Repeat([]byte("x"), 128*1024)...)
	data = append(data, "`\n"...)

	if fields, err := ParseBytes(data); err == nil {
		t.Errorf("ParseBytes() = %v, want an error", fields)
	}

	path := filepath.Join(t.TempDir(), "huge.mkdn")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("Load() should fail for an unreadable record")
	}
	var mre *MissingRecordError
	if _, err := Load(path); errors.As(err, &mre) {
		t.Error("an unreadable record is not a missing one")
	}
}
