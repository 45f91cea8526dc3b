package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/alecthomas/kong"
	"github.com/stretchr/testify/require"

	"github.com/wolfeidau/package-index/internal/archivetest"
)

// run parses args against a fresh CLI and runs the selected command.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var (
		cli CLI
		out bytes.Buffer
	)
	parser, err := kong.New(&cli,
		kong.Name("package-index"),
		kong.BindTo(io.Writer(&out), (*io.Writer)(nil)),
	)
	require.NoError(t, err)
	ctx, err := parser.Parse(args)
	require.NoError(t, err)
	err = ctx.Run(&cli.Globals)
	return out.String(), err
}

func setup(t *testing.T) (conf, data string) {
	t.Helper()
	dir := t.TempDir()
	data = filepath.Join(dir, "packages")
	archivetest.WriteWheel(t, data, "widget-1.2.0-py3-none-any.whl",
		archivetest.Metadata("Name", "widget", "Version", "1.2.0", "Summary", "Frobs widgets"))
	archivetest.WriteSdist(t, data, "widget/widget-1.0.tar.gz", "")
	archivetest.WriteFile(t, data, "gizmo-0.1.tar.gz", []byte("0123456789"))
	return filepath.Join(dir, "pypi.conf"), data
}

func TestListCommand(t *testing.T) {
	conf, data := setup(t)

	out, err := run(t, "-c", conf, "--data-dir", data, "list")
	require.NoError(t, err)
	require.Contains(t, out, "gizmo")
	require.Contains(t, out, "widget")
	require.Contains(t, out, "1.2.0")

	out, err = run(t, "-c", conf, "--data-dir", data, "list", "Widget")
	require.NoError(t, err)
	require.Contains(t, out, "widget-1.2.0-py3-none-any.whl")
	require.Contains(t, out, "widget/widget-1.0.tar.gz")

	_, err = run(t, "-c", conf, "--data-dir", data, "list", "missing")
	require.Error(t, err)
}

func TestListCommandEmpty(t *testing.T) {
	dir := t.TempDir()
	out, err := run(t, "-c", filepath.Join(dir, "pypi.conf"), "--data-dir", filepath.Join(dir, "empty"), "list")
	require.NoError(t, err)
	require.Contains(t, out, "No packages found.")
}

func TestSearchCommand(t *testing.T) {
	conf, data := setup(t)

	out, err := run(t, "-c", conf, "--data-dir", data, "search", "frobs")
	require.NoError(t, err)
	require.Contains(t, out, "widget")
	require.Contains(t, out, "Frobs widgets")

	out, err = run(t, "-c", conf, "--data-dir", data, "search", "nothing")
	require.NoError(t, err)
	require.Contains(t, out, "No packages match")
}

func TestStatsCommand(t *testing.T) {
	conf, data := setup(t)

	out, err := run(t, "-c", conf, "--data-dir", data, "stats")
	require.NoError(t, err)
	require.Contains(t, out, "Packages:   2")
	require.Contains(t, out, "Files:      3")
}

func TestDeleteCommand(t *testing.T) {
	conf, data := setup(t)

	out, err := run(t, "-c", conf, "--data-dir", data, "delete", "widget-1.0.tar.gz")
	require.NoError(t, err)
	require.Contains(t, out, "Deleted widget/widget-1.0.tar.gz")
	require.NoFileExists(t, filepath.Join(data, "widget", "widget-1.0.tar.gz"))

	out, err = run(t, "-c", conf, "--data-dir", data, "stats")
	require.NoError(t, err)
	require.Contains(t, out, "Files:      2")

	_, err = run(t, "-c", conf, "--data-dir", data, "delete", "widget-1.0.tar.gz")
	require.ErrorContains(t, err, "not found")
}

func TestInitCommand(t *testing.T) {
	conf := filepath.Join(t.TempDir(), "pypi.conf")

	_, err := run(t, "-c", conf, "init")
	require.NoError(t, err)
	data, err := os.ReadFile(conf)
	require.NoError(t, err)
	require.Contains(t, string(data), "[server]")

	_, err = run(t, "-c", conf, "init")
	require.ErrorContains(t, err, "--force")

	_, err = run(t, "-c", conf, "init", "--force")
	require.NoError(t, err)
}
