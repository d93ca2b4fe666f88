package storage

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Object is one file handed to a Store.
type Object struct {
	Name        string
	ContentType string
	Data        []byte
}

// Store persists uploaded files and returns durable URLs for them.
type Store interface {
	Upload(ctx context.Context, obj Object, category, folder string) (string, error)
	Delete(ctx context.Context, url string) error
}

var (
	ErrTooLarge        = errors.New("file exceeds size limit")
	ErrUnsupportedType = errors.New("file type not allowed")
)

// Local writes files below Root and serves them under BaseURL.
type Local struct {
	Root         string
	BaseURL      string
	MaxBytes     int64
	AllowedTypes []string
}

func (l Local) Upload(ctx context.Context, obj Object, category, folder string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(obj.Data) == 0 {
		return "", errors.New("empty file")
	}
	if l.MaxBytes > 0 && int64(len(obj.Data)) > l.MaxBytes {
		return "", ErrTooLarge
	}
	ctype := obj.ContentType
	if ctype == "" {
		ctype = http.DetectContentType(obj.Data)
	}
	if i := strings.Index(ctype, ";"); i >= 0 {
		ctype = strings.TrimSpace(ctype[:i])
	}
	if !l.allowed(ctype) {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedType, ctype)
	}
	category, folder = clean(category), clean(folder)
	if category == "" || folder == "" {
		return "", errors.New("category and folder required")
	}
	name := uuid.NewString() + extension(obj.Name, ctype)
	dir := filepath.Join(l.Root, category, folder)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(filepath.Join(dir, name), obj.Data, 0o644); err != nil {
		return "", err
	}
	return strings.TrimRight(l.BaseURL, "/") + "/" + path.Join(category, folder, name), nil
}

func (l Local) Delete(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	base := strings.TrimRight(l.BaseURL, "/") + "/"
	if !strings.HasPrefix(url, base) {
		return fmt.Errorf("url %s not served by this store", url)
	}
	rel := path.Clean("/" + strings.TrimPrefix(url, base))
	err := os.Remove(filepath.Join(l.Root, filepath.FromSlash(rel)))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (l Local) allowed(ctype string) bool {
	if len(l.AllowedTypes) == 0 {
		return true
	}
	for _, t := range l.AllowedTypes {
		if strings.EqualFold(t, ctype) {
			return true
		}
	}
	return false
}

func clean(segment string) string {
	segment = strings.TrimSpace(segment)
	segment = strings.ReplaceAll(segment, "..", "")
	segment = strings.Trim(strings.ReplaceAll(segment, "\\", "/"), "/")
	return strings.ReplaceAll(segment, "/", "-")
}

func extension(name, ctype string) string {
	if ext := strings.ToLower(filepath.Ext(name)); ext != "" && len(ext) <= 6 {
		return ext
	}
	switch ctype {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	}
	if exts, _ := mime.ExtensionsByType(ctype); len(exts) > 0 {
		return exts[0]
	}
	return ""
}
