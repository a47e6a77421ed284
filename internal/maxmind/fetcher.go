package maxmind

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/CiscoSE/MaxmindAsnImporter/internal/config"
	"github.com/CiscoSE/MaxmindAsnImporter/internal/util"
)

// Fetcher retrieves the ASN dataset and its version marker from MaxMind's
// licensed download endpoints.
type Fetcher struct {
	httpClient *http.Client
	versionURL string
	datasetURL string
	licenseKey string
}

// NewFetcher creates a Fetcher for the given endpoints. Both URLs are
// requested with the license key appended as a query parameter; timeout and
// proxy behavior come from the HTTP settings.
func NewFetcher(versionURL, datasetURL, licenseKey string, httpCfg config.HTTPConfig) *Fetcher {
	return &Fetcher{
		httpClient: &http.Client{
			Timeout: time.Duration(httpCfg.Timeout),
			Transport: &http.Transport{
				Proxy: util.ProxyFunc(httpCfg),
			},
		},
		versionURL: versionURL,
		datasetURL: datasetURL,
		licenseKey: licenseKey,
	}
}

// Version fetches the current dataset version marker. MaxMind serves the MD5
// of the dataset file; the importer treats it as an opaque string and only
// ever compares it byte-for-byte against the last imported one.
func (f *Fetcher) Version(ctx context.Context) (string, error) {
	body, err := f.get(ctx, f.versionURL)
	if err != nil {
		return "", fmt.Errorf("fetch dataset version: %w", err)
	}
	defer body.Close()

	data, err := io.ReadAll(io.LimitReader(body, 1024))
	if err != nil {
		return "", fmt.Errorf("read dataset version: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// Download streams the dataset archive to a temp file and returns its path.
// The caller owns the file and removes it when done.
func (f *Fetcher) Download(ctx context.Context) (string, error) {
	log.Info("fetching address ranges from MaxMind")

	body, err := f.get(ctx, f.datasetURL)
	if err != nil {
		return "", fmt.Errorf("fetch dataset archive: %w", err)
	}
	defer body.Close()

	tmp, err := os.CreateTemp("", "maxmind-asn-*.zip")
	if err != nil {
		return "", fmt.Errorf("create archive file: %w", err)
	}

	if _, err := io.Copy(tmp, body); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("write archive file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("close archive file: %w", err)
	}

	log.Debug("downloaded dataset archive", "path", tmp.Name())
	return tmp.Name(), nil
}

func (f *Fetcher) get(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	licensed, err := f.withLicense(rawURL)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, licensed, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status: %d %s", resp.StatusCode, resp.Status)
	}
	return resp.Body, nil
}

func (f *Fetcher) withLicense(rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse endpoint URL: %w", err)
	}
	q := parsed.Query()
	q.Set("license_key", f.licenseKey)
	parsed.RawQuery = q.Encode()
	return parsed.String(), nil
}
