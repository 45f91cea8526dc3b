package version

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCompare(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"1.3.0", "1.2.0", 1},
		{"1.2.0", "1.3.0", -1},
		{"1.10.0", "1.9.0", 1}, // numeric, not lexical
		{"1.0", "1.0.0", 0},
		{"2.0.0", "2.0.0rc1", 1},
		{"2.0.0rc1", "2.0.0b2", 1},
		{"1.0.post1", "1.0", 1},
		{"1.0.dev1", "1.0a1", -1},
		{"1!0.1", "99.0", 1},
		{"0.0.0", "not-a-version", 1},
		{"not-a-version", "0.0.0", -1},
		{"garbage", "more garbage", 0},
		{"", "0.0.1", -1},
	}
	for _, tt := range tests {
		t.Run(tt.a+"_vs_"+tt.b, func(t *testing.T) {
			require.Equal(t, tt.want, Compare(tt.a, tt.b))
		})
	}
}

func TestParse(t *testing.T) {
	v := Parse("1.2.0")
	require.True(t, v.Valid())
	require.Equal(t, "1.2.0", v.String())

	bad := Parse("banana split")
	require.False(t, bad.Valid())
	require.Equal(t, "banana split", bad.String())

	var zero Version
	require.False(t, zero.Valid())
}

func TestValid(t *testing.T) {
	require.True(t, Valid("1.0"))
	// Release segments are uint64; larger ones are treated as unparseable.
	require.False(t, Valid("99999999999999999999.0"))
	require.Equal(t, -1, Compare("99999999999999999999.0", "0.1"))
	require.True(t, Valid("2024.1.15"))
	require.False(t, Valid("1.0-banana"))
	require.False(t, Valid(""))
}

func TestSortDescendingInvalidLast(t *testing.T) {
	versions := []string{"1.2.0", "oops", "1.10.0", "1.3.0rc1", "0.9", "1.3.0"}
	slices.SortStableFunc(versions, func(a, b string) int {
		return Compare(b, a)
	})
	require.Equal(t, []string{"1.10.0", "1.3.0", "1.3.0rc1", "1.2.0", "0.9", "oops"}, versions)
}
