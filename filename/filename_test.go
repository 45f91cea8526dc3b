package filename

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKind(t *testing.T) {
	tests := []struct {
		name string
		want ArchiveKind
	}{
		{"widget-1.2.0-py3-none-any.whl", KindWheel},
		{"widget-1.2.0.tar.gz", KindSdist},
		{"widget-1.2.0.zip", KindUnknown},
		{"widget-1.2.0.tar", KindUnknown},
		{"broken.whl", KindWheel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, Kind(tt.name))
			require.Equal(t, tt.want != KindUnknown, IsArchive(tt.name))
		})
	}
}

func TestStem(t *testing.T) {
	require.Equal(t, "widget-1.2.0", Stem("widget-1.2.0.tar.gz"))
	require.Equal(t, "broken", Stem("broken.whl"))
	require.Equal(t, "README", Stem("README"))
}

func TestParseWheel(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		want   Wheel
		wantOK bool
	}{
		{
			name:   "pure python",
			input:  "widget-1.2.0-py3-none-any.whl",
			want:   Wheel{Name: "widget", Version: "1.2.0", PythonTag: "py3", ABITag: "none", PlatformTag: "any"},
			wantOK: true,
		},
		{
			name:  "build tag",
			input: "numpy-1.26.4-1-cp312-cp312-manylinux_2_17_x86_64.whl",
			want: Wheel{
				Name: "numpy", Version: "1.26.4", BuildTag: "1",
				PythonTag: "cp312", ABITag: "cp312", PlatformTag: "manylinux_2_17_x86_64",
			},
			wantOK: true,
		},
		{
			name:   "name lower-cased only",
			input:  "My_Package-0.1-py2.py3-none-any.whl",
			want:   Wheel{Name: "my_package", Version: "0.1", PythonTag: "py2.py3", ABITag: "none", PlatformTag: "any"},
			wantOK: true,
		},
		{
			name:   "name only",
			input:  "broken.whl",
			want:   Wheel{Name: "broken"},
			wantOK: false,
		},
		{
			name:   "name and version without tags",
			input:  "widget-1.0.whl",
			want:   Wheel{Name: "widget", Version: "1.0"},
			wantOK: false,
		},
		{
			name:   "too many fields",
			input:  "a-b-c-d-e-f-g.whl",
			want:   Wheel{Name: "a", Version: "b"},
			wantOK: false,
		},
		{
			name:   "empty",
			input:  ".whl",
			want:   Wheel{},
			wantOK: false,
		},
		{
			name:   "empty name field",
			input:  "-1.0-py3-none-any.whl",
			want:   Wheel{Version: "1.0", PythonTag: "py3", ABITag: "none", PlatformTag: "any"},
			wantOK: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseWheel(tt.input)
			require.Equal(t, tt.wantOK, ok)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestParseSdist(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		want   Sdist
		wantOK bool
	}{
		{"simple", "widget-1.2.0.tar.gz", Sdist{Name: "widget", Version: "1.2.0"}, true},
		{"hyphenated name", "zope-interface-6.0.tar.gz", Sdist{Name: "zope-interface", Version: "6.0"}, true},
		{"mixed case", "Django-5.0.1.tar.gz", Sdist{Name: "django", Version: "5.0.1"}, true},
		{"prerelease", "pkg-2.0.0rc1.tar.gz", Sdist{Name: "pkg", Version: "2.0.0rc1"}, true},
		{"no hyphen", "broken.tar.gz", Sdist{Name: "broken"}, false},
		{"trailing hyphen", "broken-.tar.gz", Sdist{Name: "broken-"}, false},
		{"leading hyphen", "-1.0.tar.gz", Sdist{Name: "-1.0"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseSdist(tt.input)
			require.Equal(t, tt.wantOK, ok)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestFilenameRoundTrip(t *testing.T) {
	wheels := []string{
		"widget-1.2.0-py3-none-any.whl",
		"numpy-1.26.4-1-cp312-cp312-manylinux_2_17_x86_64.whl",
		"requests-2.31.0-py3-none-any.whl",
		"cryptography-42.0.5-cp39-abi3-macosx_10_12_universal2.whl",
	}
	for _, fn := range wheels {
		t.Run(fn, func(t *testing.T) {
			w, ok := ParseWheel(fn)
			require.True(t, ok)
			require.Equal(t, fn, w.String())
		})
	}

	sdists := []string{
		"widget-1.2.0.tar.gz",
		"zope-interface-6.0.tar.gz",
		"pkg-2.0.0.post1.tar.gz",
	}
	for _, fn := range sdists {
		t.Run(fn, func(t *testing.T) {
			s, ok := ParseSdist(fn)
			require.True(t, ok)
			require.Equal(t, fn, s.String())
		})
	}
}
