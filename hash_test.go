package packageindex

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHashString(t *testing.T) {
	// BLAKE3 hash of empty string
	h := HashBytes([]byte{})
	expected := "af1349b9f5f9a1a6a0404dea36dcc9499bcb25c9adc112b7cc9a93cae41f3262"
	require.Equal(t, expected, h.String())
}

func TestHashShortString(t *testing.T) {
	h := HashBytes([]byte("hello"))
	short := h.ShortString()
	require.Len(t, short, 16)
	require.True(t, strings.HasPrefix(h.String(), short))
}

func TestHashIsZero(t *testing.T) {
	var zero Hash
	require.True(t, zero.IsZero())

	h := HashBytes([]byte("test"))
	require.False(t, h.IsZero())
}

func TestParseHash(t *testing.T) {
	original := HashBytes([]byte("parse test"))

	parsed, err := ParseHash(original.String())
	require.NoError(t, err)
	require.Equal(t, original, parsed)
}

func TestParseHashInvalid(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"too short", "abc123"},
		{"too long", strings.Repeat("a", 128)},
		{"invalid hex", strings.Repeat("zz", 32)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseHash(tt.input)
			require.Error(t, err)
		})
	}
}

func TestDigestReaderKnownValues(t *testing.T) {
	d, n, err := DigestReader(strings.NewReader("hello"))
	require.NoError(t, err)
	require.Equal(t, int64(5), n)
	require.Equal(t, "5d41402abc4b2a76b9719d911017c592", d.MD5)
	require.Equal(t, "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824", d.SHA256)
	require.Equal(t, HashBytes([]byte("hello")).String(), d.BLAKE3)
}

func TestDigestReaderMatchesHashingReader(t *testing.T) {
	data := bytes.Repeat([]byte("0123456789abcdef"), 4096) // spans several chunks

	d, _, err := DigestReader(bytes.NewReader(data))
	require.NoError(t, err)

	hr := NewHashingReader(bytes.NewReader(data))
	_, err = bytes.NewBuffer(nil).ReadFrom(hr)
	require.NoError(t, err)
	require.Equal(t, int64(len(data)), hr.BytesRead())
	require.Equal(t, hr.Sum().String(), d.BLAKE3)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("disk on fire") }

func TestDigestReaderError(t *testing.T) {
	d, _, err := DigestReader(failingReader{})
	require.Error(t, err)
	require.True(t, d.IsZero())
}

func TestComputeDigestsDeterministic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pkg-1.0.tar.gz")
	require.NoError(t, os.WriteFile(path, []byte("some archive bytes"), 0o644))

	first := ComputeDigests(path)
	second := ComputeDigests(path)
	require.False(t, first.IsZero())
	require.Equal(t, first, second)
}

func TestComputeDigestsSingleByteChanges(t *testing.T) {
	dir := t.TempDir()
	base := bytes.Repeat([]byte{0x42}, 512)

	seenMD5 := make(map[string]int)
	seenSHA := make(map[string]int)
	for i := 0; i < 300; i++ {
		data := append([]byte(nil), base...)
		data[i%len(data)] ^= byte(1 + i/len(data))
		path := filepath.Join(dir, fmt.Sprintf("f%d.whl", i))
		require.NoError(t, os.WriteFile(path, data, 0o644))

		d := ComputeDigests(path)
		require.NotEmpty(t, d.MD5)
		require.NotEmpty(t, d.SHA256)

		prev, dup := seenMD5[d.MD5]
		require.False(t, dup, "md5 collision between inputs %d and %d", prev, i)
		prev, dup = seenSHA[d.SHA256]
		require.False(t, dup, "sha256 collision between inputs %d and %d", prev, i)
		seenMD5[d.MD5] = i
		seenSHA[d.SHA256] = i
	}
}

func TestComputeDigestsFailures(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing file", func(t *testing.T) {
		require.True(t, ComputeDigests(filepath.Join(dir, "nope.whl")).IsZero())
	})

	t.Run("directory", func(t *testing.T) {
		require.True(t, ComputeDigests(dir).IsZero())
	})

	t.Run("empty file", func(t *testing.T) {
		path := filepath.Join(dir, "broken.whl")
		require.NoError(t, os.WriteFile(path, nil, 0o644))
		require.True(t, ComputeDigests(path).IsZero())
	})
}

func TestDigestsStrongest(t *testing.T) {
	tests := []struct {
		name      string
		digests   Digests
		wantAlgo  string
		wantValue string
	}{
		{"sha256 preferred", Digests{MD5: "m", SHA256: "s", BLAKE3: "b"}, "sha256", "s"},
		{"md5 fallback", Digests{MD5: "m", BLAKE3: "b"}, "md5", "m"},
		{"blake3 never advertised", Digests{BLAKE3: "b"}, "", ""},
		{"none", Digests{}, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			algo, value := tt.digests.Strongest()
			require.Equal(t, tt.wantAlgo, algo)
			require.Equal(t, tt.wantValue, value)
		})
	}
}
