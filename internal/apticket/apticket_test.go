package apticket

import (
	"bytes"
	"encoding/asn1"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func der(t *testing.T, v any) []byte {
	t.Helper()
	b, err := asn1.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func constructed(t *testing.T, class, tag int, parts ...[]byte) []byte {
	t.Helper()
	return der(t, asn1.RawValue{Class: class, Tag: tag, IsCompound: true, Bytes: bytes.Join(parts, nil)})
}

func seq(t *testing.T, parts ...[]byte) []byte {
	return constructed(t, asn1.ClassUniversal, asn1.TagSequence, parts...)
}

func set(t *testing.T, parts ...[]byte) []byte {
	return constructed(t, asn1.ClassUniversal, asn1.TagSet, parts...)
}

func tagOf(name string) int {
	return int(name[0])<<24 | int(name[1])<<16 | int(name[2])<<8 | int(name[3])
}

func private(t *testing.T, name string, body []byte) []byte {
	return constructed(t, asn1.ClassPrivate, tagOf(name), body)
}

func prop(t *testing.T, name string, value any) []byte {
	return private(t, name, seq(t, der(t, name), der(t, value)))
}

var cnch = []byte{0xde, 0xad, 0xbe, 0xef, 0x01, 0x02}

func testTicket(t *testing.T) []byte {
	t.Helper()
	manp := private(t, "MANP", seq(t,
		der(t, "MANP"),
		set(t,
			prop(t, "cnch", cnch),
			prop(t, "ECID", int64(0x1A2B3C)),
			prop(t, "CPRO", true),
			prop(t, "tstp", int64(1700000000)),
		),
	))
	img := private(t, "ginf", seq(t,
		der(t, "ginf"),
		set(t, prop(t, "DGST", []byte{0x01, 0x02})),
	))
	manb := private(t, "MANB", seq(t, der(t, "MANB"), set(t, manp, img)))
	return seq(t, der(t, "IM4M"), der(t, 0), set(t, manb), der(t, []byte("signature")))
}

func TestParse(t *testing.T) {
	tk, err := Parse(testTicket(t))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	hash, err := tk.CryptexNonceHash()
	if err != nil {
		t.Fatalf("CryptexNonceHash() error = %v", err)
	}
	if hash != "deadbeef0102" {
		t.Errorf("CryptexNonceHash() = %s, want deadbeef0102", hash)
	}

	if v, ok := tk.Property("ECID"); !ok || v != int64(0x1A2B3C) {
		t.Errorf("ECID = %v, %v", v, ok)
	}
	if v, ok := tk.Property("CPRO"); !ok || v != true {
		t.Errorf("CPRO = %v, %v", v, ok)
	}
	if v, ok := tk.Property("tstp"); !ok || !v.(time.Time).Equal(time.Unix(1700000000, 0)) {
		t.Errorf("tstp = %v, %v", v, ok)
	}

	if len(tk.Images) != 1 || tk.Images[0].Name != "ginf" || len(tk.Images[0].Properties) != 1 {
		t.Errorf("Images = %+v", tk.Images)
	}

	if s := tk.String(); !strings.Contains(s, "cnch: deadbeef0102") {
		t.Errorf("String() = %q, missing cnch", s)
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data func(t *testing.T) []byte
	}{
		{"garbage", func(t *testing.T) []byte { return []byte("not der") }},
		{"wrong magic", func(t *testing.T) []byte {
			return seq(t, der(t, "IMG4"), der(t, 0), set(t, der(t, 1)))
		}},
		{"trailing data", func(t *testing.T) []byte {
			return append(testTicket(t), 0x00)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse(tt.data(t)); err == nil {
				t.Error("Parse() should fail")
			}
		})
	}
}

func TestCryptexNonceHash_Missing(t *testing.T) {
	tk := &Ticket{Properties: []Property{{Name: "ECID", Value: int64(1)}}}
	if _, err := tk.CryptexNonceHash(); err == nil {
		t.Error("CryptexNonceHash() without cnch should fail")
	}
}

type fakeRemote struct {
	commands []string
	lsOutput string
	copied   map[string]string
	cpErr    error
}

func (f *fakeRemote) RunCommand(cmd string) error {
	f.commands = append(f.commands, cmd)
	if strings.Contains(cmd, "sudo") {
		return f.cpErr
	}
	return nil
}

func (f *fakeRemote) RunCommandWithOutput(cmd string) (string, error) {
	f.commands = append(f.commands, cmd)
	return f.lsOutput, nil
}

func (f *fakeRemote) CopyFromDevice(src, dst string) error {
	if f.copied == nil {
		f.copied = map[string]string{}
	}
	f.copied[src] = dst
	return os.WriteFile(dst, []byte("im4m"), 0o644)
}

func TestFetch(t *testing.T) {
	out := filepath.Join(t.TempDir(), "tickets")
	remote := &fakeRemote{lsOutput: "apticket.0011223344.im4m\n"}

	local, err := Fetch(remote, "it's secret", out)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if want := filepath.Join(out, "apticket.0011223344.im4m"); local != want {
		t.Errorf("Fetch() = %s, want %s", local, want)
	}
	if _, err := os.Stat(local); err != nil {
		t.Errorf("local apticket missing: %v", err)
	}

	want := []string{
		`echo 'it'\''s secret' | sudo -S cp /private/preboot/cryptex1/current/apticket* ./`,
		"ls apticket.*.im4m",
		"rm apticket.0011223344.im4m",
	}
	if len(remote.commands) != len(want) {
		t.Fatalf("commands = %q, want %q", remote.commands, want)
	}
	for i := range want {
		if remote.commands[i] != want[i] {
			t.Errorf("command %d = %q, want %q", i, remote.commands[i], want[i])
		}
	}
}

func TestFetch_Errors(t *testing.T) {
	if _, err := Fetch(&fakeRemote{cpErr: errors.New("sudo: incorrect password")}, "x", t.TempDir()); err == nil {
		t.Error("Fetch() should fail when sudo cp fails")
	}
	if _, err := Fetch(&fakeRemote{lsOutput: "  \n"}, "x", t.TempDir()); err == nil {
		t.Error("Fetch() should fail when no apticket was copied")
	}
}
