package storage

import (
	"errors"
	"fmt"
	"os"
)

// ErrExist is returned by WriteFileExclusive when destPath already exists.
var ErrExist = os.ErrExist

// WriteFileExclusive writes data to a temporary file in tmpDir and then
// hard-links it to destPath. The link either creates destPath with its
// complete contents or fails because destPath already exists; readers never
// observe a partially written file and an existing file is never replaced.
func WriteFileExclusive(tmpDir string, destPath string, data []byte) error {
	tmp, err := os.CreateTemp(tmpDir, "write-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	// Best-effort cleanup; once linked the data lives on under destPath.
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Link(tmp.Name(), destPath); err != nil {
		if errors.Is(err, os.ErrExist) {
			return ErrExist
		}
		return fmt.Errorf("link %s: %w", destPath, err)
	}

	return nil
}
