// Package sha256 fingerprints fetched documents.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
)

// Digest tees written bytes into a SHA-256 state and counts them.
type Digest struct {
	w     io.Writer
	h     hash.Hash
	count int64
}

// NewDigest wraps w so every byte written to it is also hashed.
func NewDigest(w io.Writer) *Digest {
	return &Digest{w: w, h: sha256.New()}
}

// Write forwards p to the wrapped writer and hashes what was written.
func (d *Digest) Write(p []byte) (int, error) {
	n, err := d.w.Write(p)
	d.h.Write(p[:n])
	d.count += int64(n)
	return n, err
}

// Sum returns the hex digest of the bytes written so far.
func (d *Digest) Sum() string {
	return hex.EncodeToString(d.h.Sum(nil))
}

// Len returns the number of bytes written so far.
func (d *Digest) Len() int64 {
	return d.count
}

// File hashes the file at path and returns its hex digest and size.
func File(path string) (string, int64, error) {
	// #nosec G304 -- callers pass paths inside the destination directory.
	f, err := os.Open(path)
	if err != nil {
		return "", 0, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck // read-only handle
	d := NewDigest(io.Discard)
	if _, err := io.Copy(d, f); err != nil {
		return "", 0, fmt.Errorf("hash %s: %w", path, err)
	}
	return d.Sum(), d.Len(), nil
}
