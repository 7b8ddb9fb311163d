package uploads

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

func TestHTTPStoreUpload(t *testing.T) {
	var gotPath, gotAuth, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	store := NewHTTPStore(srv.URL, "uploads", "s3cret")
	url, err := store.Upload(context.Background(), "p1/file.txt", strings.NewReader("hello"), "text/plain")
	if err != nil {
		t.Fatal(err)
	}

	if gotPath != "/object/uploads/p1/file.txt" {
		t.Fatalf("unexpected upload path: %s", gotPath)
	}
	if gotAuth != "Bearer s3cret" {
		t.Fatalf("unexpected auth header: %s", gotAuth)
	}
	if gotBody != "hello" {
		t.Fatalf("body not streamed: %q", gotBody)
	}
	want := srv.URL + "/object/public/uploads/p1/file.txt"
	if url != want {
		t.Fatalf("public URL mismatch: %s vs %s", url, want)
	}
}

func TestHTTPStoreUploadFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bucket full", http.StatusInsufficientStorage)
	}))
	defer srv.Close()

	store := NewHTTPStore(srv.URL, "uploads", "")
	if _, err := store.Upload(context.Background(), "x", strings.NewReader("data"), ""); err == nil {
		t.Fatal("expected error on 5xx response")
	}
}

func TestUploadAllPartialFailure(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 2 {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	store := NewHTTPStore(srv.URL, "uploads", "")
	projectID := uuid.New()
	files := []File{
		{Name: "ok-1.png", ContentType: "image/png", Size: 3, Reader: strings.NewReader("one")},
		{Name: "bad.png", ContentType: "image/png", Size: 3, Reader: strings.NewReader("two")},
		{Name: "ok-2.png", ContentType: "image/png", Size: 5, Reader: strings.NewReader("three")},
	}

	attachments, skipped := UploadAll(context.Background(), store, projectID, files, zerolog.Nop())

	if len(attachments) != 2 {
		t.Fatalf("expected 2 attachments, got %d", len(attachments))
	}
	if len(skipped) != 1 || skipped[0] != "bad.png" {
		t.Fatalf("expected bad.png skipped, got %v", skipped)
	}
	for _, a := range attachments {
		if a.ID == "" || a.URL == "" {
			t.Fatalf("attachment missing ID or URL: %+v", a)
		}
		if a.Type != "image/png" {
			t.Fatalf("content type not carried: %+v", a)
		}
	}
	if attachments[0].Name != "ok-1.png" || attachments[1].Name != "ok-2.png" {
		t.Fatal("surviving files out of order")
	}
}

func TestObjectPathSanitizes(t *testing.T) {
	projectID := uuid.New()
	now := time.UnixMilli(1700000000000)

	path := ObjectPath(projectID, "../../etc/passwd", now)
	if strings.Contains(path, "..") {
		t.Fatalf("path traversal survived: %s", path)
	}
	if !strings.HasPrefix(path, projectID.String()+"/1700000000000-") {
		t.Fatalf("unexpected path shape: %s", path)
	}

	empty := ObjectPath(projectID, "", now)
	if !strings.HasSuffix(empty, "-file") {
		t.Fatalf("empty filename not defaulted: %s", empty)
	}
}
