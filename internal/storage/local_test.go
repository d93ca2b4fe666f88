package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func TestLocalUploadAndDelete(t *testing.T) {
	root := t.TempDir()
	store := Local{Root: root, BaseURL: "/uploads", MaxBytes: 1024, AllowedTypes: []string{"image/png"}}
	ctx := context.Background()

	url, err := store.Upload(ctx, Object{Name: "pole.png", Data: pngHeader}, "issues", "ISS-0001")
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if !strings.HasPrefix(url, "/uploads/issues/ISS-0001/") || !strings.HasSuffix(url, ".png") {
		t.Fatalf("unexpected url %s", url)
	}
	disk := filepath.Join(root, "issues", "ISS-0001", filepath.Base(url))
	if _, err := os.Stat(disk); err != nil {
		t.Fatalf("file not written: %v", err)
	}
	if err := store.Delete(ctx, url); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := os.Stat(disk); !os.IsNotExist(err) {
		t.Fatalf("file still present: %v", err)
	}
}

func TestLocalUploadRejects(t *testing.T) {
	store := Local{Root: t.TempDir(), BaseURL: "/uploads", MaxBytes: 8, AllowedTypes: []string{"image/png"}}
	ctx := context.Background()
	if _, err := store.Upload(ctx, Object{Data: pngHeader}, "issues", "x"); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
	store.MaxBytes = 1024
	if _, err := store.Upload(ctx, Object{Data: []byte("plain text body")}, "issues", "x"); !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("expected ErrUnsupportedType, got %v", err)
	}
	if _, err := store.Upload(ctx, Object{}, "issues", "x"); err == nil {
		t.Fatalf("expected error for empty file")
	}
}
