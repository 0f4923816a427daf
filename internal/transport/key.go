package transport

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// ConnectionKeyHeader carries the shared connection key on the upgrade request.
const ConnectionKeyHeader = "X-Connection-Key"

// EnsureConnectionKey returns the configured key, or generates one and writes it to path with mode 0600.
// generated reports whether the caller owns the key file and should remove it at exit.
func EnsureConnectionKey(configured, path string) (key string, generated bool, err error) {
	if configured = strings.TrimSpace(configured); configured != "" {
		return configured, false, nil
	}

	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	key = hex.EncodeToString(buf)

	if path == "" {
		return key, true, nil
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", false, err
		}
	}
	if err := os.WriteFile(path, []byte(key+"\n"), 0o600); err != nil {
		return "", false, err
	}

	return key, true, nil
}

// RemoveKeyFile deletes a generated key file. A missing file is not an error.
func RemoveKeyFile(path string) error {
	if path == "" {
		return nil
	}

	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}

	return nil
}

// keyMatches checks the connection key from the header or the "key" query parameter.
func keyMatches(r *http.Request, key string) bool {
	got := r.Header.Get(ConnectionKeyHeader)
	if got == "" {
		got = r.URL.Query().Get("key")
	}

	return got != "" && subtle.ConstantTimeCompare([]byte(got), []byte(key)) == 1
}
