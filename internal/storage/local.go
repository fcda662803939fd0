package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/JonMunkholm/listing-import/internal/media"
)

// Local stores objects under a directory. Keys may contain slashes.
type Local struct {
	baseDir   string
	urlPrefix string
}

var _ media.ObjectStore = (*Local)(nil)

func NewLocal(baseDir, urlPrefix string) *Local {
	return &Local{baseDir: baseDir, urlPrefix: strings.TrimRight(urlPrefix, "/")}
}

// path maps key into baseDir, rejecting keys that would escape it.
func (l *Local) path(key string) (string, error) {
	clean := filepath.Clean("/" + filepath.FromSlash(key))
	if clean == string(filepath.Separator) || strings.Contains(key, "..") {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	return filepath.Join(l.baseDir, clean), nil
}

func (l *Local) Put(ctx context.Context, key string, body []byte, _ string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dst, err := l.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("local put %s: %w", key, err)
	}

	// Write then rename so readers never see a partial object.
	tmp := dst + ".tmp"
	if err := os.WriteFile(tmp, body, 0o644); err != nil {
		return fmt.Errorf("local put %s: %w", key, err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("local put %s: %w", key, err)
	}
	return nil
}

// Delete removes keys. Missing objects count as deleted.
func (l *Local) Delete(_ context.Context, keys []string) (int, error) {
	deleted := 0
	var errs []error
	for _, k := range keys {
		p, err := l.path(k)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, fmt.Errorf("local delete %s: %w", k, err))
			continue
		}
		deleted++
	}
	return deleted, errors.Join(errs...)
}

func (l *Local) URL(key string) string {
	return l.urlPrefix + "/" + strings.TrimLeft(key, "/")
}

func (l *Local) String() string { return fmt.Sprintf("local(%s)", l.baseDir) }
