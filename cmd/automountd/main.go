// automountd mounts removable block devices read-only as they appear and
// unmounts them as they go away.
//
// Devices are discovered through a directory of stable device links (normally
// /dev/disk/by-id). Each accepted device gets a working directory holding one
// mountpoint per volume, optionally exposed through label-named symlinks.
// Lifecycle events can be published to MQTT, journaled in SQLite and recorded
// in InfluxDB; a read-only HTTP API reports the current state.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/automountd/internal/api"
	"github.com/nerrad567/automountd/internal/autodir"
	"github.com/nerrad567/automountd/internal/automount"
	"github.com/nerrad567/automountd/internal/device"
	"github.com/nerrad567/automountd/internal/infrastructure/config"
	"github.com/nerrad567/automountd/internal/infrastructure/logging"
	"github.com/nerrad567/automountd/internal/metrics"
	"github.com/nerrad567/automountd/internal/mounttable"
	"github.com/nerrad567/automountd/internal/notify"
	"github.com/nerrad567/automountd/internal/osdev"
	"github.com/nerrad567/automountd/internal/process"
	"github.com/nerrad567/automountd/internal/watch"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// options are the command-line flags.
type options struct {
	configPath  string
	workdir     string
	showVersion bool
}

func parseFlags(args []string) (options, error) {
	var opts options
	fs := flag.NewFlagSet("automountd", flag.ContinueOnError)
	fs.StringVar(&opts.configPath, "config", getConfigPath(), "path to the YAML configuration file")
	fs.StringVar(&opts.workdir, "workdir", "", "working directory (overrides paths.working_directory)")
	fs.BoolVar(&opts.showVersion, "version", false, "print the version and exit")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if fs.NArg() > 0 {
		return opts, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	return opts, nil
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//   - args: Command-line arguments without the program name
//   - stdout: Destination for -version output
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context, args []string, stdout io.Writer) error {
	opts, err := parseFlags(args)
	if err != nil {
		return err
	}
	if opts.showVersion {
		fmt.Fprintf(stdout, "automountd %s (commit %s, built %s)\n", version, commit, date)
		return nil
	}

	// Use default logger until config is loaded
	log := logging.Default()

	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	log = logging.New(cfg.Logging, version)
	log.Info("starting automountd",
		"version", version,
		"commit", commit,
		"build_date", date,
		"config", opts.configPath,
		"working_directory", cfg.Paths.WorkingDirectory,
		"watch_directory", cfg.Paths.WatchDirectory,
	)

	// Metrics registry: our collectors plus the Go runtime.
	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	promMetrics := metrics.New(promRegistry)

	// External tools
	runner := process.NewRunner()
	runner.SetLogger(log.Component("process"))
	runner.SetObserver(promMetrics.ToolInvocation)

	env := autodir.NewEnv(runner, cfg.Tools)
	env.SetLogger(log.Component("autodir"))

	table := mounttable.New(cfg.Paths.WatchDirectory)

	registry := device.NewRegistry(osdev.New(runner, cfg.Tools), env)
	registry.SetLogger(log.Component("registry"))
	registry.SetMountpointResolver(table)

	core := automount.NewCore(automount.Config{
		WorkingDirectory: cfg.Paths.WorkingDirectory,
		SymlinkDirectory: cfg.Paths.SymlinkDirectory,
		DevicePrefixes:   cfg.Policy.DevicePrefixes,
		FSOptions:        cfg.Policy.FSMountOptions,
	}, registry, env)
	core.SetLogger(log.Component("automount"))
	core.SetMountLister(table)

	// Optional sinks. A sink that cannot start is logged and left out; the
	// automounter itself never depends on them.
	sinks := startSinks(ctx, cfg, log)
	defer sinks.Close()

	notifier := notify.NewMulti(notify.NewLogSink(log.Component("events")))
	notifier.SetLogger(log.Component("notify"))
	for _, s := range sinks.notifySinks() {
		notifier.Add(s)
	}
	core.SetNotifier(notifier)
	core.SetMetrics(registryObservers{promMetrics, sinks.influx})
	log.Info("notification sinks configured", "sinks", notifier.Sinks())

	// Event source
	watcher := watch.New(watch.Config{
		DevlinkDir:    cfg.Paths.WatchDirectory,
		MountpointDir: cfg.Paths.WatchMountpoints,
	})
	watcher.SetLogger(log.Component("watch"))

	runCtx, stop := context.WithCancel(ctx)
	defer stop()

	if err := watcher.Start(runCtx); err != nil {
		return fmt.Errorf("starting watcher: %w", err)
	}

	loop := automount.NewLoop(core)

	var apiServer *api.Server
	if cfg.API.Enabled {
		apiServer, err = api.New(api.Deps{
			Config:  cfg.API,
			Logger:  log.Component("api"),
			Devices: loop,
			Journal: sinks.journalRepo(),
			Metrics: promMetrics.Handler(),
			Checks:  sinks.healthChecks(),
			Version: version,
		})
		if err != nil {
			watcher.Close() //nolint:errcheck // startup failure path
			return fmt.Errorf("creating API server: %w", err)
		}
		if err := apiServer.Start(runCtx); err != nil {
			watcher.Close() //nolint:errcheck // startup failure path
			return fmt.Errorf("starting API server: %w", err)
		}
	} else {
		log.Info("status API disabled")
	}

	g, gctx := errgroup.WithContext(runCtx)

	// The loop returns on a signal, or when the watch directory disappears;
	// either way everything else stops with it.
	g.Go(func() error {
		defer stop()
		return loop.Run(gctx, watcher.Events())
	})
	g.Go(func() error {
		<-gctx.Done()
		return watcher.Close()
	})
	if apiServer != nil {
		g.Go(func() error {
			<-gctx.Done()
			return apiServer.Close()
		})
	}

	log.Info("initialisation complete, watching for devices")

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	log.Info("automountd stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses AUTOMOUNTD_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv(config.EnvPrefix + "CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// loadConfig loads the file and applies command-line overrides.
func loadConfig(opts options) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if opts.workdir != "" {
		cfg.Paths.WorkingDirectory = opts.workdir
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("validating config: %w", err)
		}
	}
	return cfg, nil
}
