// Package tokenstore implements session.TokenStore.
package tokenstore

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/techshop/internal/domain/session"
)

// Key is the well-known key the token is stored under.
const Key = "token"

var _ session.TokenStore = (*File)(nil)

// File keeps the token in a small JSON document on disk. Other keys found in
// the document are preserved on write.
type File struct {
	path string
	mu   sync.Mutex
}

// NewFile returns a File store backed by path. The file and its directory are
// created on first Save.
func NewFile(path string) *File {
	return &File{path: path}
}

// DefaultPath returns the per-user session file location.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", errors.Wrap(err, "user config dir")
	}
	return filepath.Join(dir, "techshop", "session.json"), nil
}

// Path returns the backing file path.
func (f *File) Path() string { return f.path }

// Load returns the stored token or session.ErrNoToken.
func (f *File) Load(_ context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	doc, err := f.read()
	if err != nil {
		return "", err
	}
	token := doc[Key]
	if token == "" {
		return "", session.ErrNoToken
	}
	return token, nil
}

// Save stores token, replacing any previous one.
func (f *File) Save(_ context.Context, token string) error {
	if token == "" {
		return errors.New("save token: empty token")
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	doc, err := f.read()
	if err != nil {
		return err
	}
	doc[Key] = token
	return f.write(doc)
}

// Remove deletes the stored token. Removing when nothing is stored is not an
// error.
func (f *File) Remove(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	doc, err := f.read()
	if err != nil {
		return err
	}
	if _, ok := doc[Key]; !ok {
		return nil
	}
	delete(doc, Key)
	if len(doc) == 0 {
		if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return errors.Wrap(err, "remove session file")
		}
		return nil
	}
	return f.write(doc)
}

func (f *File) read() (map[string]string, error) {
	doc := make(map[string]string)
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return doc, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "read session file")
	}
	if len(data) == 0 {
		return doc, nil
	}
	if err := jx.DecodeBytes(data).Obj(func(d *jx.Decoder, key string) error {
		if d.Next() != jx.String {
			return d.Skip()
		}
		v, err := d.Str()
		doc[key] = v
		return err
	}); err != nil {
		return nil, errors.Wrap(err, "decode session file")
	}
	return doc, nil
}

// write replaces the file atomically via a temp file in the same directory.
func (f *File) write(doc map[string]string) error {
	var e jx.Encoder
	e.ObjStart()
	for k, v := range doc {
		e.FieldStart(k)
		e.Str(v)
	}
	e.ObjEnd()

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return errors.Wrap(err, "create session dir")
	}
	tmp, err := os.CreateTemp(dir, ".session-*")
	if err != nil {
		return errors.Wrap(err, "create temp file")
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(e.Bytes()); err != nil {
		_ = tmp.Close()
		return errors.Wrap(err, "write session file")
	}
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return errors.Wrap(err, "chmod session file")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "close session file")
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return errors.Wrap(err, "replace session file")
	}
	return nil
}
