package gateway

import (
	"archive/zip"
	"crypto/tls"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/apex/log"
	"github.com/blacktop/ranger"
	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/pkg/errors"
	"golang.org/x/net/http/httpproxy"
)

const userAgent = "blobkeep/1.0 (+https://github.com/blacktop/blobkeep)"

// RemoteConfig is the remote reader config
type RemoteConfig struct {
	Proxy    string
	Insecure bool
}

// getProxy returns the proxy func for the http transport
func getProxy(proxy string) func(*http.Request) (*url.URL, error) {
	if len(proxy) > 0 {
		proxyURL, err := url.Parse(proxy)
		if err != nil {
			log.WithError(err).Error("bad proxy url")
			return http.ProxyFromEnvironment
		}
		log.Debugf("proxy set to: %s", proxyURL)
		return http.ProxyURL(proxyURL)
	}

	conf := httpproxy.FromEnvironment()
	if len(conf.HTTPProxy) > 0 || len(conf.HTTPSProxy) > 0 {
		log.WithFields(log.Fields{
			"http_proxy":  conf.HTTPProxy,
			"https_proxy": conf.HTTPSProxy,
			"no_proxy":    conf.NoProxy,
		}).Debugf("proxy info from environment")
	}

	return http.ProxyFromEnvironment
}

// NewRemoteZipReader returns a zip reader over a remote archive using HTTP range requests
func NewRemoteZipReader(zipURL string, config *RemoteConfig) (*zip.Reader, error) {
	u, err := url.Parse(zipURL)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse url")
	}

	reader, err := ranger.NewReader(&ranger.HTTPRanger{
		URL:       u,
		UserAgent: userAgent,
		Client: &http.Client{
			Transport: &http.Transport{
				Proxy:           getProxy(config.Proxy),
				TLSClientConfig: &tls.Config{InsecureSkipVerify: config.Insecure},
			},
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create ranger reader")
	}

	length, err := reader.Length()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get reader length")
	}

	zr, err := zip.NewReader(reader, length)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create zip reader")
	}

	return zr, nil
}

// fetchRemoteManifest extracts the OTA build manifest from the remote zip into dir
func fetchRemoteManifest(zipURL, dir string, config *RemoteConfig) error {
	s := spinner.New(spinner.CharSets[38], 100*time.Millisecond)
	s.Prefix = color.BlueString("   • Fetching %s... ", ManifestName)
	s.Start()
	defer s.Stop()

	zr, err := NewRemoteZipReader(zipURL, config)
	if err != nil {
		return errors.Wrapf(err, "failed to open remote OTA %s", zipURL)
	}

	// a missing entry is not an error here, relocate reports it
	return extractZipFile(zr, ManifestZipPath, filepath.Join(dir, ManifestName))
}

func extractZipFile(zr *zip.Reader, name, dest string) error {
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return errors.Wrapf(err, "failed to open %s in zip", name)
		}
		defer rc.Close()

		out, err := os.Create(dest)
		if err != nil {
			return errors.Wrapf(err, "failed to create %s", dest)
		}
		defer out.Close()

		if _, err := io.Copy(out, rc); err != nil {
			return errors.Wrapf(err, "failed to extract %s", name)
		}
		return nil
	}
	log.Debugf("%s not found in remote zip", name)
	return nil
}
