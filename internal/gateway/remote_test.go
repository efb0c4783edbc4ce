package gateway

import (
	"archive/zip"
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// otaServer serves an in-memory OTA zip holding files, with range support
func otaServer(t *testing.T, files map[string]string) string {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write([]byte(body)); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	data := buf.Bytes()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.ServeContent(w, r, "ota.zip", time.Unix(1700000000, 0), bytes.NewReader(data))
	}))
	t.Cleanup(srv.Close)
	return srv.URL + "/ota.zip"
}

func TestFetchManifest_Native(t *testing.T) {
	url := otaServer(t, map[string]string{
		"AssetData/boot/Firmware/all_flash/iBoot.im4p": "iboot",
		ManifestZipPath: "<plist>manifest</plist>",
		"payload.bom":   "bom",
	})
	dest := filepath.Join(t.TempDir(), "my-phone")

	// pzb must not be needed
	g := New(&Config{Native: true, Pzb: filepath.Join(t.TempDir(), "missing-pzb")})
	if err := g.FetchManifest(url, dest); err != nil {
		t.Fatalf("FetchManifest() error = %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dest, ManifestName))
	if err != nil {
		t.Fatalf("manifest not relocated: %v", err)
	}
	if string(data) != "<plist>manifest</plist>" {
		t.Errorf("manifest = %q, want <plist>manifest</plist>", data)
	}
}

func TestFetchManifest_NativeMissing(t *testing.T) {
	url := otaServer(t, map[string]string{
		"AssetData/boot/Restore.plist": "<plist/>",
	})
	dest := t.TempDir()

	err := New(&Config{Native: true}).FetchManifest(url, dest)
	var mfe *ManifestFetchError
	if !errors.As(err, &mfe) {
		t.Fatalf("FetchManifest() error = %v, want *ManifestFetchError", err)
	}
	if mfe.URL != url {
		t.Errorf("ManifestFetchError.URL = %s, want %s", mfe.URL, url)
	}
	if fileExists(filepath.Join(dest, ManifestName)) {
		t.Error("manifest written although the OTA has none")
	}
}

func TestFetchManifest_NativeNotZip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.ServeContent(w, r, "ota.zip", time.Unix(1700000000, 0), bytes.NewReader([]byte("not a zip archive")))
	}))
	defer srv.Close()

	err := New(&Config{Native: true}).FetchManifest(srv.URL+"/ota.zip", t.TempDir())
	if err == nil {
		t.Fatal("FetchManifest() should fail for a file that is not a zip")
	}
	var mfe *ManifestFetchError
	if errors.As(err, &mfe) {
		t.Errorf("a bad archive should not be reported as a missing manifest: %v", err)
	}
}
