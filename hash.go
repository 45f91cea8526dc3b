// Package packageindex indexes a directory of Python distribution archives.
//
// The root package holds the content digest primitives shared by the catalog
// builder and the HTTP layer.
package packageindex

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/zeebo/blake3"
)

// HashSize is the size of a BLAKE3 hash in bytes (256 bits).
const HashSize = 32

// chunkSize is the read size used when streaming files through the hashers.
const chunkSize = 8192

// Hash represents a BLAKE3 256-bit digest. It identifies archive content
// independently of the index digests advertised to clients.
type Hash [HashSize]byte

// String returns the hex-encoded representation of the hash.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// ShortString returns a shortened hex representation for display.
func (h Hash) ShortString() string {
	return hex.EncodeToString(h[:8])
}

// IsZero returns true if the hash is all zeros (uninitialized).
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// MarshalText implements encoding.TextMarshaler.
func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (h *Hash) UnmarshalText(text []byte) error {
	if len(text) != HashSize*2 {
		return fmt.Errorf("invalid hash length: expected %d hex chars, got %d", HashSize*2, len(text))
	}
	_, err := hex.Decode(h[:], text)
	return err
}

// ParseHash parses a hex-encoded hash string.
func ParseHash(s string) (Hash, error) {
	var h Hash
	if err := h.UnmarshalText([]byte(s)); err != nil {
		return Hash{}, err
	}
	return h, nil
}

// HashBytes computes the BLAKE3 hash of the given bytes.
func HashBytes(data []byte) Hash {
	return Hash(blake3.Sum256(data))
}

// Digests holds the hex-encoded digests of one archive.
// An empty field means the digest could not be computed.
type Digests struct {
	MD5    string `json:"md5,omitempty"`
	SHA256 string `json:"sha256,omitempty"`
	BLAKE3 string `json:"blake3,omitempty"`
}

// IsZero reports whether no digest was computed.
func (d Digests) IsZero() bool {
	return d == Digests{}
}

// Strongest returns the name and value of the strongest available digest
// suitable for a simple index URL fragment. BLAKE3 is not a hashlib name so it
// is never advertised.
func (d Digests) Strongest() (string, string) {
	switch {
	case d.SHA256 != "":
		return "sha256", d.SHA256
	case d.MD5 != "":
		return "md5", d.MD5
	default:
		return "", ""
	}
}

// DigestReader streams r through MD5, SHA-256 and BLAKE3 in a single pass.
// It returns the digests and the number of bytes read.
func DigestReader(r io.Reader) (Digests, int64, error) {
	md5h := md5.New()
	sha := sha256.New()
	b3 := blake3.New()
	w := io.MultiWriter(md5h, sha, b3)

	buf := make([]byte, chunkSize)
	n, err := io.CopyBuffer(w, r, buf)
	if err != nil {
		return Digests{}, n, fmt.Errorf("hashing content: %w", err)
	}

	var content Hash
	b3.Sum(content[:0])
	return Digests{
		MD5:    hex.EncodeToString(md5h.Sum(nil)),
		SHA256: hex.EncodeToString(sha.Sum(nil)),
		BLAKE3: content.String(),
	}, n, nil
}

// ComputeDigests hashes the file at path. It never fails: any open or read
// error, or an empty file, yields empty digests so the caller can still index
// the file.
func ComputeDigests(path string) Digests {
	f, err := os.Open(path)
	if err != nil {
		return Digests{}
	}
	defer func() { _ = f.Close() }()

	d, n, err := DigestReader(f)
	if err != nil || n == 0 {
		return Digests{}
	}
	return d
}

// HashingReader wraps a reader and computes the BLAKE3 hash as data is read.
type HashingReader struct {
	r io.Reader
	h *blake3.Hasher
	n int64
}

// NewHashingReader creates a reader that computes a hash as data is read.
func NewHashingReader(r io.Reader) *HashingReader {
	return &HashingReader{
		r: r,
		h: blake3.New(),
	}
}

// Read implements io.Reader.
func (hr *HashingReader) Read(p []byte) (int, error) {
	n, err := hr.r.Read(p)
	if n > 0 {
		_, _ = hr.h.Write(p[:n])
		hr.n += int64(n)
	}
	return n, err
}

// Sum returns the hash of all data read so far.
func (hr *HashingReader) Sum() Hash {
	var hash Hash
	hr.h.Sum(hash[:0])
	return hash
}

// BytesRead returns the total number of bytes read.
func (hr *HashingReader) BytesRead() int64 {
	return hr.n
}
