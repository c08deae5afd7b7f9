package dispatch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
)

// objectStore is the slice of the MinIO client the fetcher needs.
type objectStore interface {
	FGetObject(ctx context.Context, bucketName, objectName, filePath string, opts minio.GetObjectOptions) error
}

// Fetcher materializes a data source locator into a local file. Plain
// paths pass through untouched; http(s):// and s3:// locators download
// into the build's work directory.
type Fetcher struct {
	httpClient *http.Client
	objects    objectStore // nil when no object store is configured
}

func NewFetcher(objects objectStore) *Fetcher {
	// No client timeout: OSM extracts run to gigabytes, and the job
	// context already bounds the whole build.
	return &Fetcher{httpClient: &http.Client{}, objects: objects}
}

func (f *Fetcher) Fetch(ctx context.Context, locator, destDir string) (string, error) {
	switch {
	case strings.HasPrefix(locator, "http://"), strings.HasPrefix(locator, "https://"):
		return f.fetchHTTP(ctx, locator, destDir)
	case strings.HasPrefix(locator, "s3://"):
		return f.fetchS3(ctx, locator, destDir)
	default:
		return locator, nil
	}
}

func (f *Fetcher) fetchHTTP(ctx context.Context, rawURL, destDir string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("download %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download %s: status %d", rawURL, resp.StatusCode)
	}

	dest := filepath.Join(destDir, remoteName(rawURL))
	out, err := os.Create(dest)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", dest, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, resp.Body); err != nil {
		return "", fmt.Errorf("write %s: %w", dest, err)
	}
	return dest, nil
}

func (f *Fetcher) fetchS3(ctx context.Context, locator, destDir string) (string, error) {
	if f.objects == nil {
		return "", fmt.Errorf("locator %s needs an object store but none is configured", locator)
	}

	u, err := url.Parse(locator)
	if err != nil {
		return "", fmt.Errorf("parse locator %s: %w", locator, err)
	}
	bucket := u.Host
	object := strings.TrimPrefix(u.Path, "/")
	if bucket == "" || object == "" {
		return "", fmt.Errorf("locator %s: want s3://bucket/key", locator)
	}

	dest := filepath.Join(destDir, path.Base(object))
	if err := f.objects.FGetObject(ctx, bucket, object, dest, minio.GetObjectOptions{}); err != nil {
		return "", fmt.Errorf("fetch s3://%s/%s: %w", bucket, object, err)
	}
	return dest, nil
}

// remoteName picks a file name for a downloaded URL.
func remoteName(rawURL string) string {
	if u, err := url.Parse(rawURL); err == nil {
		if name := path.Base(u.Path); name != "" && name != "." && name != "/" {
			return name
		}
	}
	return "source.dat"
}
