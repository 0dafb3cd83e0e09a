package ingest

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func TestFetchArchive(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("archive-bytes"))
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "catalog.tar.bz2")
	if err := FetchArchive(context.Background(), srv.Client(), srv.URL, dest); err != nil {
		t.Fatalf("FetchArchive: %v", err)
	}

	b, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("read dest: %v", err)
	}
	if string(b) != "archive-bytes" {
		t.Errorf("dest content = %q", b)
	}
}

func TestFetchArchiveOverwrites(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("new"))
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "catalog.tar.bz2")
	if err := os.WriteFile(dest, []byte("old-and-much-longer"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := FetchArchive(context.Background(), srv.Client(), srv.URL, dest); err != nil {
		t.Fatalf("FetchArchive: %v", err)
	}
	b, _ := os.ReadFile(dest)
	if string(b) != "new" {
		t.Errorf("dest content = %q, want overwrite", b)
	}
}

func TestFetchArchiveNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "catalog.tar.bz2")
	err := FetchArchive(context.Background(), srv.Client(), srv.URL, dest)
	if err == nil {
		t.Fatal("want error for 404")
	}
	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("error %T, want *FetchError", err)
	}
	if _, statErr := os.Stat(dest); statErr == nil {
		t.Error("dest file should not exist after failed fetch")
	}
}
