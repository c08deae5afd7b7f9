package dispatch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/minio/minio-go/v7"
)

type fakeObjectStore struct {
	bucket  string
	object  string
	content string
	err     error
}

func (f *fakeObjectStore) FGetObject(ctx context.Context, bucketName, objectName, filePath string, opts minio.GetObjectOptions) error {
	f.bucket = bucketName
	f.object = objectName
	if f.err != nil {
		return f.err
	}
	return os.WriteFile(filePath, []byte(f.content), 0o644)
}

func TestFetchLocalPathPassesThrough(t *testing.T) {
	f := NewFetcher(nil)

	got, err := f.Fetch(context.Background(), "/data/europe/france.pbf", t.TempDir())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if got != "/data/europe/france.pbf" {
		t.Errorf("expected pass-through path, got %s", got)
	}
}

func TestFetchHTTPDownloads(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/extracts/france.pbf" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("pbf-bytes"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	f := NewFetcher(nil)

	got, err := f.Fetch(context.Background(), srv.URL+"/extracts/france.pbf", dir)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if got != filepath.Join(dir, "france.pbf") {
		t.Errorf("expected download into work dir, got %s", got)
	}

	data, err := os.ReadFile(got)
	if err != nil {
		t.Fatalf("read downloaded file: %v", err)
	}
	if string(data) != "pbf-bytes" {
		t.Errorf("expected pbf-bytes, got %q", data)
	}
}

func TestFetchHTTPBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	f := NewFetcher(nil)

	_, err := f.Fetch(context.Background(), srv.URL+"/missing.pbf", t.TempDir())
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "status 404") {
		t.Errorf("expected status in error, got %q", err.Error())
	}
}

func TestFetchS3Downloads(t *testing.T) {
	store := &fakeObjectStore{content: "pbf-bytes"}
	dir := t.TempDir()
	f := NewFetcher(store)

	got, err := f.Fetch(context.Background(), "s3://geodata/extracts/france.pbf", dir)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if store.bucket != "geodata" {
		t.Errorf("expected bucket geodata, got %s", store.bucket)
	}
	if store.object != "extracts/france.pbf" {
		t.Errorf("expected object extracts/france.pbf, got %s", store.object)
	}
	if got != filepath.Join(dir, "france.pbf") {
		t.Errorf("expected download into work dir, got %s", got)
	}

	data, err := os.ReadFile(got)
	if err != nil {
		t.Fatalf("read downloaded file: %v", err)
	}
	if string(data) != "pbf-bytes" {
		t.Errorf("expected pbf-bytes, got %q", data)
	}
}

func TestFetchS3WithoutStore(t *testing.T) {
	f := NewFetcher(nil)

	_, err := f.Fetch(context.Background(), "s3://geodata/extracts/france.pbf", t.TempDir())
	if err == nil {
		t.Fatal("expected error when no object store is configured")
	}
}

func TestFetchS3MalformedLocator(t *testing.T) {
	f := NewFetcher(&fakeObjectStore{})

	for _, locator := range []string{"s3://", "s3://bucket-only"} {
		if _, err := f.Fetch(context.Background(), locator, t.TempDir()); err == nil {
			t.Errorf("expected error for locator %q", locator)
		}
	}
}
