// Package metadata parses the PKG-INFO / METADATA key-value format found in
// Python distribution archives.
package metadata

import (
	"strings"
)

// continuationIndent marks a description continuation line.
const continuationIndent = "        "

// multiLineKeys are the raw header names whose values may continue on
// following indented or blank lines.
var multiLineKeys = map[string]bool{
	"Description":              true,
	"Description-Content-Type": true,
}

// Parse parses a metadata block into a map keyed by normalized field name
// (lower-cased, hyphens replaced with underscores).
//
// Lines without a colon are ignored. A repeated key keeps its last value.
func Parse(text string) map[string]string {
	fields := make(map[string]string)
	lines := strings.Split(text, "\n")

	for i := 0; i < len(lines); {
		line := strings.TrimSpace(lines[i])
		key, value, found := strings.Cut(line, ":")
		if line == "" || !found {
			i++
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		i++

		if multiLineKeys[key] {
			var body []string
			if value != "" {
				body = append(body, value)
			}
			for i < len(lines) && isContinuation(lines[i]) {
				body = append(body, strings.TrimRight(lines[i], " \t\r"))
				i++
			}
			value = strings.TrimSpace(strings.Join(body, "\n"))
		}

		fields[NormalizeKey(key)] = value
	}

	return fields
}

// NormalizeKey lower-cases a header name and replaces hyphens with
// underscores.
func NormalizeKey(key string) string {
	return strings.ReplaceAll(strings.ToLower(key), "-", "_")
}

func isContinuation(line string) bool {
	return strings.HasPrefix(line, continuationIndent) || strings.TrimSpace(line) == ""
}

// Fields is a typed view over the well-known metadata keys.
type Fields struct {
	MetadataVersion        string
	Name                   string
	Version                string
	Summary                string
	Author                 string
	AuthorEmail            string
	HomePage               string
	License                string
	RequiresPython         string
	Description            string
	DescriptionContentType string
}

// FromMap extracts the well-known fields from a parsed metadata map.
// Missing keys leave the corresponding field empty.
func FromMap(m map[string]string) Fields {
	return Fields{
		MetadataVersion:        m["metadata_version"],
		Name:                   m["name"],
		Version:                m["version"],
		Summary:                m["summary"],
		Author:                 m["author"],
		AuthorEmail:            m["author_email"],
		HomePage:               m["home_page"],
		License:                m["license"],
		RequiresPython:         m["requires_python"],
		Description:            m["description"],
		DescriptionContentType: m["description_content_type"],
	}
}
