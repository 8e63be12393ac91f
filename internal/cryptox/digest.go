// Package cryptox holds the content digest used to fingerprint staged
// payloads.
package cryptox

import (
	"encoding/hex"
	"hash"
	"io"

	"golang.org/x/crypto/blake2b"
)

// DigestName labels digests produced by this package.
const DigestName = "blake2b-256"

// NewDigest returns an unkeyed BLAKE2b-256 hash.
func NewDigest() hash.Hash {
	h, err := blake2b.New256(nil)
	if err != nil {
		// only possible with an oversized key
		panic(err)
	}
	return h
}

// DigestHex reads r to EOF and returns its hex digest and length.
func DigestHex(r io.Reader) (string, int64, error) {
	h := NewDigest()
	n, err := io.Copy(h, r)
	if err != nil {
		return "", n, err
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}
