// Package compress provides gzip helpers for request body compression on
// providers that accept Content-Encoding: gzip (DashScope).
package compress

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
)

// MinSize is the payload size below which compression is skipped; gzip
// overhead eats any gain on small chat requests.
const MinSize = 1024

// Gzip compresses data at the default level.
func Gzip(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("gzip write: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("gzip close: %w", err)
	}
	return buf.Bytes(), nil
}

// Gunzip decompresses gzip data.
func Gunzip(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("gzip reader: %w", err)
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("gunzip: %w", err)
	}
	return out, nil
}

// MaybeGzip compresses data when it is at least MinSize bytes and the
// compressed form is actually smaller. The second return value reports
// whether compression was applied.
func MaybeGzip(data []byte) ([]byte, bool, error) {
	if len(data) < MinSize {
		return data, false, nil
	}
	compressed, err := Gzip(data)
	if err != nil {
		return nil, false, err
	}
	if len(compressed) >= len(data) {
		return data, false, nil
	}
	return compressed, true, nil
}
