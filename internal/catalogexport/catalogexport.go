// Package catalogexport writes and reads gzip-compressed catalog snapshots.
package catalogexport

import (
	"io"
	"os"
	"path/filepath"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	pgzip "github.com/klauspost/pgzip"

	"github.com/xenking/techshop/internal/backend"
	"github.com/xenking/techshop/internal/domain/product"
)

const readBufSize = 32 * 1024

// Write encodes products as a JSON array in the backend wire format and
// writes it gzip-compressed to w.
func Write(w io.Writer, products []product.Product) error {
	var e jx.Encoder
	e.ArrStart()
	for _, p := range products {
		backend.EncodeProduct(&e, p)
	}
	e.ArrEnd()

	gz := pgzip.NewWriter(w)
	if _, err := gz.Write(e.Bytes()); err != nil {
		_ = gz.Close()
		return errors.Wrap(err, "write catalog")
	}
	if err := gz.Close(); err != nil {
		return errors.Wrap(err, "flush catalog")
	}
	return nil
}

// Read decodes a catalog written by Write.
func Read(r io.Reader) ([]product.Product, error) {
	gz, err := pgzip.NewReader(r)
	if err != nil {
		return nil, errors.Wrap(err, "create gzip reader")
	}
	defer func() { _ = gz.Close() }()

	products, err := backend.DecodeProducts(jx.Decode(gz, readBufSize))
	if err != nil {
		return nil, errors.Wrap(err, "read catalog")
	}
	return products, nil
}

// WriteFile writes the catalog to path, replacing any existing file.
func WriteFile(path string, products []product.Product) (rerr error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, "create export dir")
	}
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "create %s", path)
	}
	defer func() {
		if err := f.Close(); err != nil && rerr == nil {
			rerr = errors.Wrapf(err, "close %s", path)
		}
	}()
	return Write(f, products)
}

// ReadFile reads a catalog written by WriteFile.
func ReadFile(path string) ([]product.Product, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()
	return Read(f)
}
