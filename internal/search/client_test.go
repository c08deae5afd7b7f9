package search

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/geodex-labs/geodex/internal/config"
)

func testClient(url string) *Client {
	return NewClient(config.SearchConfig{URL: url, Timeout: 5 * time.Second})
}

func TestClient_Ping_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			t.Errorf("expected request to /, got %s", r.URL.Path)
		}
		w.Write([]byte(`{"cluster_name":"geodex"}`))
	}))
	defer srv.Close()

	if err := testClient(srv.URL).Ping(context.Background()); err != nil {
		t.Errorf("expected ping to succeed, got %v", err)
	}
}

func TestClient_Ping_Down(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	if err := testClient(srv.URL).Ping(context.Background()); err == nil {
		t.Error("expected ping to fail on 503")
	}

	srv.Close()
	if err := testClient(srv.URL).Ping(context.Background()); err == nil {
		t.Error("expected ping to fail when unreachable")
	}
}

func TestClient_DocumentCount(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/osm_fr/_count" {
			t.Errorf("expected request to /osm_fr/_count, got %s", r.URL.Path)
		}
		w.Write([]byte(`{"count":52714,"_shards":{"total":1}}`))
	}))
	defer srv.Close()

	count, err := testClient(srv.URL).DocumentCount(context.Background(), "osm_fr")
	if err != nil {
		t.Fatalf("DocumentCount: %v", err)
	}
	if count != 52714 {
		t.Errorf("expected 52714 documents, got %d", count)
	}
}

func TestClient_DocumentCount_MissingIndex(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"index_not_found_exception"}`))
	}))
	defer srv.Close()

	if _, err := testClient(srv.URL).DocumentCount(context.Background(), "osm_xx"); err == nil {
		t.Error("expected error for missing index")
	}
}
