// Command package-index serves and manages a local Python package index.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/alecthomas/kong"
	"github.com/dustin/go-humanize"

	"github.com/wolfeidau/package-index/catalog"
	"github.com/wolfeidau/package-index/internal/config"
	"github.com/wolfeidau/package-index/internal/logging"
	"github.com/wolfeidau/package-index/server"
	"github.com/wolfeidau/package-index/storage"
	"github.com/wolfeidau/package-index/telemetry"
)

var version = "dev"

// Globals are flags shared by every command.
type Globals struct {
	Config  string `help:"Configuration file." short:"c" default:"pypi.conf" type:"path"`
	DataDir string `help:"Package directory, overrides the configuration." name:"data-dir" type:"path"`
}

// CLI is the command tree.
type CLI struct {
	Globals

	Serve  ServeCmd  `cmd:"" help:"Start the package index server."`
	List   ListCmd   `cmd:"" help:"List packages, or the files of one package."`
	Search SearchCmd `cmd:"" help:"Search package names, summaries and descriptions."`
	Stats  StatsCmd  `cmd:"" help:"Show catalog totals."`
	Delete DeleteCmd `cmd:"" help:"Delete a package file."`
	Init   InitCmd   `cmd:"" help:"Write a sample configuration file."`
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("package-index"),
		kong.Description("A local Python package index serving .whl and .tar.gz archives."),
		kong.UsageOnError(),
		kong.BindTo(io.Writer(os.Stdout), (*io.Writer)(nil)),
	)
	if err := ctx.Run(&cli.Globals); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// load reads configuration and applies global overrides.
func (g *Globals) load() (*config.Config, error) {
	cfg, err := config.Load(g.Config)
	if err != nil {
		return nil, err
	}
	if g.DataDir != "" {
		cfg.Server.DataDir = g.DataDir
	}
	return cfg, nil
}

// service opens the catalog for one-shot commands. Their logs go to stderr
// at warn level so command output stays clean.
func (g *Globals) service() (*catalog.Service, *storage.Filesystem, error) {
	cfg, err := g.load()
	if err != nil {
		return nil, nil, err
	}
	logger := slog.New(logging.NewHandler(os.Stderr, cfg.Log.Format, slog.LevelWarn, true))
	fs, err := storage.NewFilesystem(cfg.Server.DataDir)
	if err != nil {
		return nil, nil, err
	}
	b, err := catalog.NewBuilder(fs.Root(), catalog.WithLogger(logger), catalog.WithWorkers(cfg.Cache.Workers))
	if err != nil {
		return nil, nil, err
	}
	return catalog.NewService(b), fs, nil
}

// ServeCmd starts the HTTP server.
type ServeCmd struct {
	Host  string `help:"Host to bind to, overrides the configuration."`
	Port  int    `help:"Port to bind to, overrides the configuration."`
	Debug bool   `help:"Enable debug logging."`
}

func (c *ServeCmd) Run(g *Globals) error {
	cfg, err := g.load()
	if err != nil {
		return err
	}
	if c.Host != "" {
		cfg.Server.Host = c.Host
	}
	if c.Port != 0 {
		cfg.Server.Port = c.Port
	}
	if c.Debug {
		cfg.Server.Debug = true
		cfg.Log.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, closer, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = closer.Close() }()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownMetrics, err := telemetry.InitMetrics(ctx, telemetry.MetricsConfig{
		ServiceVersion:   version,
		OTLPEndpoint:     cfg.Metrics.OTLPEndpoint,
		EnablePrometheus: cfg.Metrics.Prometheus,
		FlushInterval:    cfg.Metrics.FlushInterval,
	})
	if err != nil {
		return fmt.Errorf("initializing metrics: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownMetrics(flushCtx)
	}()

	srv, err := server.New(server.Config{
		Address:         cfg.Server.Address(),
		DataDir:         cfg.Server.DataDir,
		MaxUploadSize:   cfg.Server.MaxFileSize,
		CacheMaxEntries: cfg.Cache.MaxEntries,
		SweepInterval:   cfg.Cache.SweepInterval,
		Watch:           cfg.Cache.Watch,
		Workers:         cfg.Cache.Workers,
		Logger:          logger,
	})
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	logger.Info("server started",
		"address", srv.Address(),
		"index_url", fmt.Sprintf("http://%s/simple/", srv.Address()),
		"data_dir", cfg.Server.DataDir,
		"max_file_size", humanize.IBytes(uint64(cfg.Server.MaxFileSize)),
	)

	select {
	case <-ctx.Done():
		logger.Info("received signal, shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// ListCmd prints packages or one package's files.
type ListCmd struct {
	Name string `arg:"" optional:"" help:"Package name."`
}

func (c *ListCmd) Run(g *Globals, out io.Writer) error {
	svc, _, err := g.service()
	if err != nil {
		return err
	}
	ctx := context.Background()
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	defer tw.Flush()

	if c.Name == "" {
		cat, err := svc.ListAll(ctx)
		if err != nil {
			return err
		}
		if len(cat) == 0 {
			fmt.Fprintln(out, "No packages found.")
			return nil
		}
		fmt.Fprintln(tw, "NAME\tLATEST\tFILES")
		for _, name := range cat.Names() {
			files := cat[name]
			fmt.Fprintf(tw, "%s\t%s\t%d\n", name, files[0].Version, len(files))
		}
		return nil
	}

	files, err := svc.ListVersions(ctx, c.Name)
	if err != nil {
		return err
	}
	fmt.Fprintln(tw, "VERSION\tFILE\tSIZE\tUPLOADED")
	for _, f := range files {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", f.Version, f.Path, humanize.IBytes(uint64(f.Size)), humanize.Time(f.ModifiedAt))
	}
	return nil
}

// SearchCmd searches the catalog.
type SearchCmd struct {
	Query string `arg:"" help:"Search text."`
}

func (c *SearchCmd) Run(g *Globals, out io.Writer) error {
	svc, _, err := g.service()
	if err != nil {
		return err
	}
	results, err := svc.Search(context.Background(), c.Query)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		fmt.Fprintf(out, "No packages match %q.\n", c.Query)
		return nil
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	defer tw.Flush()
	fmt.Fprintln(tw, "NAME\tVERSION\tSUMMARY")
	for _, r := range results {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", r.Name, r.LatestVersion, r.Summary)
	}
	return nil
}

// StatsCmd prints catalog totals.
type StatsCmd struct{}

func (c *StatsCmd) Run(g *Globals, out io.Writer) error {
	svc, _, err := g.service()
	if err != nil {
		return err
	}
	st, err := svc.Stats(context.Background())
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Packages:   %s\n", humanize.Comma(int64(st.PackageCount)))
	fmt.Fprintf(out, "Files:      %s\n", humanize.Comma(int64(st.FileCount)))
	fmt.Fprintf(out, "Total size: %s\n", humanize.IBytes(uint64(st.TotalBytes)))
	return nil
}

// DeleteCmd removes a package file. A running server drops its cached
// metadata through the watcher (cache.watch) or the sweeper
// (cache.sweep_interval); without either, the stale entry stays in memory
// until restart, although the file no longer appears in listings.
type DeleteCmd struct {
	File string `arg:"" help:"File name or path relative to the package directory."`
}

func (c *DeleteCmd) Run(g *Globals, out io.Writer) error {
	svc, fs, err := g.service()
	if err != nil {
		return err
	}
	ctx := context.Background()

	name := c.File
	if !strings.Contains(name, "/") {
		if f, err := svc.FindFile(ctx, name); err == nil {
			name = f.Path
		}
	}

	store := storage.NewInstrumented(fs, "filesystem")
	if err := store.Delete(ctx, name); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("file %s not found", c.File)
		}
		return err
	}
	fmt.Fprintf(out, "Deleted %s\n", name)
	return nil
}

// InitCmd writes a sample configuration.
type InitCmd struct {
	Force bool `help:"Overwrite an existing configuration file."`
}

func (c *InitCmd) Run(g *Globals, out io.Writer) error {
	if err := config.WriteSample(g.Config, c.Force); err != nil {
		if errors.Is(err, config.ErrConfigExists) {
			return fmt.Errorf("%s already exists, use --force to overwrite", g.Config)
		}
		return err
	}
	fmt.Fprintf(out, "Created configuration %s\n", g.Config)
	return nil
}
