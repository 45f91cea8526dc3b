package metadata

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseSimpleFields(t *testing.T) {
	text := "Metadata-Version: 2.1\n" +
		"Name: widget\n" +
		"Version: 1.2.0\n" +
		"Summary:   test  \n" +
		"Home-page: https://example.com/widget\n" +
		"Author-email: Jane <jane@example.com>\n" +
		"Requires-Python: >=3.8\n"

	got := Parse(text)
	require.Equal(t, map[string]string{
		"metadata_version": "2.1",
		"name":             "widget",
		"version":          "1.2.0",
		"summary":          "test",
		"home_page":        "https://example.com/widget",
		"author_email":     "Jane <jane@example.com>",
		"requires_python":  ">=3.8",
	}, got)
}

func TestParseValueKeepsLaterColons(t *testing.T) {
	got := Parse("Home-page: https://example.com:8443/x\n")
	require.Equal(t, "https://example.com:8443/x", got["home_page"])
}

func TestParseDescriptionContinuation(t *testing.T) {
	text := "Name: widget\n" +
		"Description: First line\n" +
		"        second line\n" +
		"\n" +
		"        fourth line   \n" +
		"Author: Jane\n"

	got := Parse(text)
	require.Equal(t, "First line\n        second line\n\n        fourth line", got["description"])
	require.Equal(t, "Jane", got["author"])
	require.Equal(t, "widget", got["name"])
}

func TestParseDescriptionConsumesContinuationLines(t *testing.T) {
	// The indented line contains a colon; it must not become its own key.
	text := "Description: Usage\n" +
		"        Example: run it\n" +
		"Summary: s\n"

	got := Parse(text)
	require.Equal(t, "Usage\n        Example: run it", got["description"])
	_, ok := got["example"]
	require.False(t, ok)
	require.Equal(t, "s", got["summary"])
}

func TestParseDescriptionEmptyFirstLine(t *testing.T) {
	text := "Description:\n" +
		"        body only\n"

	got := Parse(text)
	require.Equal(t, "body only", got["description"])
}

func TestParseDescriptionAtEnd(t *testing.T) {
	text := "Description: tail\n\n\n"
	got := Parse(text)
	require.Equal(t, "tail", got["description"])
}

func TestParseDescriptionContentType(t *testing.T) {
	text := "Description-Content-Type: text/markdown\n" +
		"\n" +
		"Name: widget\n"

	got := Parse(text)
	require.Equal(t, "text/markdown", got["description_content_type"])
	require.Equal(t, "widget", got["name"])
}

func TestParseIgnoresLinesWithoutColon(t *testing.T) {
	text := "garbage line\nName: widget\nanother one\n"
	got := Parse(text)
	require.Equal(t, map[string]string{"name": "widget"}, got)
}

func TestParseCRLF(t *testing.T) {
	text := "Name: widget\r\nDescription: a\r\n        b\r\nVersion: 1.0\r\n"
	got := Parse(text)
	require.Equal(t, "widget", got["name"])
	require.Equal(t, "1.0", got["version"])
	require.Equal(t, "a\n        b", got["description"])
}

func TestParseRepeatedKeyKeepsLast(t *testing.T) {
	text := "Classifier: A\nClassifier: B\n"
	got := Parse(text)
	require.Equal(t, "B", got["classifier"])
}

func TestParseEmpty(t *testing.T) {
	require.Empty(t, Parse(""))
}

func TestNormalizeKey(t *testing.T) {
	require.Equal(t, "description_content_type", NormalizeKey("Description-Content-Type"))
	require.Equal(t, "name", NormalizeKey("NAME"))
}

func TestFromMap(t *testing.T) {
	f := FromMap(map[string]string{
		"name":            "widget",
		"version":         "1.2.0",
		"summary":         "test",
		"requires_python": ">=3.8",
	})
	require.Equal(t, "widget", f.Name)
	require.Equal(t, "1.2.0", f.Version)
	require.Equal(t, "test", f.Summary)
	require.Equal(t, ">=3.8", f.RequiresPython)
	require.Empty(t, f.Author)
}
