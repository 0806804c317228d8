package ingest

import (
	"archive/zip"
	"context"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/extent-cli/internal/resilience"
)

// DwCAOccurrenceFile is the core table of a Darwin Core archive, as served by
// GBIF occurrence downloads. It is tab-delimited.
const DwCAOccurrenceFile = "occurrence.txt"

const defaultUserAgent = "extent-cli"

// Downloader fetches occurrence files over HTTP(S).
type Downloader struct {
	Client    *http.Client
	Retry     resilience.RetryPolicy
	UserAgent string
}

// NewDownloader returns a Downloader with a bounded client timeout.
func NewDownloader(timeout time.Duration, retry resilience.RetryPolicy) *Downloader {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Downloader{
		Client:    &http.Client{Timeout: timeout},
		Retry:     retry,
		UserAgent: defaultUserAgent,
	}
}

// IsRemote reports whether src is an http or https URL.
func IsRemote(src string) bool {
	u, err := url.Parse(src)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// Fetch downloads rawURL into dir and returns the path of an importable file.
// ZIP archives are extracted; the Darwin Core occurrence table is preferred,
// otherwise the first entry with a supported extension is used.
func (d *Downloader) Fetch(ctx context.Context, rawURL, dir string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", eris.Wrap(err, "ingest: parse url")
	}
	name := path.Base(u.Path)
	if name == "" || name == "." || name == "/" {
		name = "download"
	}
	dest := filepath.Join(dir, name)

	contentType, err := resilience.Retry(ctx, d.Retry, func(ctx context.Context) (string, error) {
		return d.downloadToFile(ctx, rawURL, dest)
	})
	if err != nil {
		return "", err
	}
	zap.L().Debug("downloaded occurrence file",
		zap.String("url", rawURL),
		zap.String("path", dest),
		zap.String("content_type", contentType),
	)

	if strings.EqualFold(filepath.Ext(dest), ".zip") || strings.Contains(contentType, "zip") {
		return extractOccurrences(dest, filepath.Join(dir, "extracted"))
	}
	return dest, nil
}

func (d *Downloader) downloadToFile(ctx context.Context, rawURL, dest string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", eris.Wrap(err, "ingest: create request")
	}
	req.Header.Set("User-Agent", d.UserAgent)

	client := d.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", eris.Wrap(err, "ingest: download")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		err := eris.Errorf("ingest: unexpected status %d from %s", resp.StatusCode, rawURL)
		if resilience.IsTransientStatus(resp.StatusCode) {
			return "", resilience.Transient(err, resp.StatusCode)
		}
		return "", err
	}

	out, err := os.Create(dest)
	if err != nil {
		return "", eris.Wrap(err, "ingest: create file")
	}
	defer out.Close() //nolint:errcheck

	if _, err := io.Copy(out, resp.Body); err != nil {
		return "", eris.Wrap(err, "ingest: write file")
	}
	return resp.Header.Get("Content-Type"), nil
}

func extractOccurrences(zipPath, destDir string) (string, error) {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return "", eris.Wrap(err, "ingest: open archive")
	}
	defer r.Close() //nolint:errcheck

	var pick *zip.File
	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		if path.Base(f.Name) == DwCAOccurrenceFile {
			pick = f
			break
		}
		if pick == nil && importable(f.Name) {
			pick = f
		}
	}
	if pick == nil {
		return "", eris.Errorf("ingest: no importable file in archive %s", filepath.Base(zipPath))
	}
	if strings.EqualFold(path.Ext(pick.Name), ".shp") {
		// Shapefiles need their .dbf and .shx siblings.
		stem := strings.TrimSuffix(pick.Name, path.Ext(pick.Name))
		for _, f := range r.File {
			if f != pick && strings.TrimSuffix(f.Name, path.Ext(f.Name)) == stem {
				if _, err := extractEntry(f, destDir); err != nil {
					return "", err
				}
			}
		}
	}
	return extractEntry(pick, destDir)
}

func importable(name string) bool {
	_, err := DetectFormat(name)
	return err == nil
}

func extractEntry(f *zip.File, destDir string) (string, error) {
	destPath := filepath.Join(destDir, f.Name)
	if !strings.HasPrefix(filepath.Clean(destPath), filepath.Clean(destDir)+string(os.PathSeparator)) {
		return "", eris.Errorf("ingest: illegal archive path %q", f.Name)
	}
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return "", eris.Wrap(err, "ingest: create directory")
	}

	rc, err := f.Open()
	if err != nil {
		return "", eris.Wrap(err, "ingest: open archive entry")
	}
	defer rc.Close() //nolint:errcheck

	out, err := os.Create(destPath)
	if err != nil {
		return "", eris.Wrap(err, "ingest: create file")
	}
	defer out.Close() //nolint:errcheck

	if _, err := io.Copy(out, rc); err != nil {
		return "", eris.Wrap(err, "ingest: extract file")
	}
	return destPath, nil
}
