package upload

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"

	"github.com/zeebo/blake3"
)

// ChecksumAlgorithm names the digest accumulated over an upload's bytes.
type ChecksumAlgorithm string

const (
	ChecksumMD5    ChecksumAlgorithm = "md5"
	ChecksumSHA256 ChecksumAlgorithm = "sha256"
	ChecksumBLAKE3 ChecksumAlgorithm = "blake3"
)

// ParseChecksumAlgorithm parses a checksum algorithm name. The empty string
// selects md5.
func ParseChecksumAlgorithm(name string) (ChecksumAlgorithm, error) {
	switch ChecksumAlgorithm(name) {
	case "", ChecksumMD5:
		return ChecksumMD5, nil
	case ChecksumSHA256:
		return ChecksumSHA256, nil
	case ChecksumBLAKE3:
		return ChecksumBLAKE3, nil
	default:
		return "", fmt.Errorf("unknown checksum algorithm: %q", name)
	}
}

func (a ChecksumAlgorithm) newHash() (hash.Hash, error) {
	switch a {
	case ChecksumMD5:
		return md5.New(), nil
	case ChecksumSHA256:
		return sha256.New(), nil
	case ChecksumBLAKE3:
		return blake3.New(), nil
	default:
		return nil, fmt.Errorf("unknown checksum algorithm: %q", string(a))
	}
}

// checksum is a running digest fed with chunk payloads in the order they
// are persisted.
type checksum struct {
	algorithm ChecksumAlgorithm
	h         hash.Hash
}

func newChecksum(algorithm ChecksumAlgorithm) (*checksum, error) {
	h, err := algorithm.newHash()
	if err != nil {
		return nil, err
	}
	return &checksum{algorithm: algorithm, h: h}, nil
}

func (c *checksum) update(p []byte) {
	// hash.Hash.Write never returns an error.
	_, _ = c.h.Write(p)
}

// hex returns the digest of everything seen so far without resetting it.
func (c *checksum) hex() string {
	return hex.EncodeToString(c.h.Sum(nil))
}
