// Package media is the object bucket behind chat attachments. Objects are
// written under <root>/<actor id>/<random>.<ext> and served read-only.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

var (
	ErrTooLarge  = errors.New("file is too large")
	ErrEmptyFile = errors.New("file is empty")
)

// URLPrefix is the path the bucket is served under.
const URLPrefix = "/media/"

type Store struct {
	root      string
	publicURL string
	maxBytes  int64
}

func NewStore(root, publicURL string, maxBytes int64) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create media root: %w", err)
	}
	return &Store{root: root, publicURL: strings.TrimRight(publicURL, "/"), maxBytes: maxBytes}, nil
}

func (s *Store) MaxBytes() int64 { return s.maxBytes }

// Save writes r under the actor's namespace and returns the public URL.
// Reads past the limit fail with ErrTooLarge and leave nothing behind.
func (s *Store) Save(ctx context.Context, actorID, filename string, r io.Reader) (string, error) {
	if actorID == "" || strings.ContainsAny(actorID, `/\.`) {
		return "", fmt.Errorf("invalid actor id %q", actorID)
	}

	key := path.Join(actorID, uuid.NewString()+extension(filename))
	dst := filepath.Join(s.root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", err
	}

	f, err := os.CreateTemp(filepath.Dir(dst), ".upload-*")
	if err != nil {
		return "", err
	}
	tmp := f.Name()
	defer os.Remove(tmp) // no-op after a successful rename

	n, err := io.Copy(f, io.LimitReader(&ctxReader{ctx: ctx, r: r}, s.maxBytes+1))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", err
	}
	if n > s.maxBytes {
		return "", ErrTooLarge
	}
	if n == 0 {
		return "", ErrEmptyFile
	}
	if err := os.Rename(tmp, dst); err != nil {
		return "", err
	}
	return s.publicURL + URLPrefix + key, nil
}

// Handler serves stored objects. Directory listings are refused.
func (s *Store) Handler() http.Handler {
	files := http.StripPrefix(strings.TrimSuffix(URLPrefix, "/"), http.FileServer(http.Dir(s.root)))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}
		files.ServeHTTP(w, r)
	})
}

func extension(filename string) string {
	ext := strings.ToLower(path.Ext(filename))
	if len(ext) < 2 || len(ext) > 8 || strings.ContainsAny(ext[1:], `/\.`) {
		return ".bin"
	}
	return ext
}

// ctxReader stops an upload copy once the request is gone.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
