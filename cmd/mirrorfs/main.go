// Package main provides the mirrorfs command: mount a host directory at a
// FUSE mount point and serve it until interrupted.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/ajaxzhan/mirrorfs/internal/config"
	"github.com/ajaxzhan/mirrorfs/internal/fs"
	"github.com/ajaxzhan/mirrorfs/internal/logging"
	"github.com/ajaxzhan/mirrorfs/internal/metrics"
	"github.com/ajaxzhan/mirrorfs/internal/server"
	"github.com/ajaxzhan/mirrorfs/internal/shim"
)

var version = "dev"

// options holds command-line flags. Flags that were set override the
// configuration file.
type options struct {
	configPath string
	readOnly   bool
	allowOther bool
	debug      bool
	directIO   bool
	exclude    []string
	fsName     string
	lockDir    string
	grpcAddr   string
	httpAddr   string
	logLevel   string
	logFormat  string
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "mirrorfs [flags] <mountpoint> <target>",
		Short: "Mirror a host directory at a FUSE mount point",
		Long: `Mounts a FUSE filesystem at <mountpoint> whose contents are the contents
of <target>. Every filesystem call on the mount is carried out on the
corresponding path under <target>; nothing is cached.

The mount stays up until the process receives SIGINT or SIGTERM.

Examples:
  mirrorfs /mnt/data /srv/data
  mirrorfs --read-only --exclude '*.log' --exclude 'secret/' /mnt/data /srv/data`,
		Version: version,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkTarget(args[1]); err != nil {
				return err
			}
			// Arguments are valid; later failures are not usage errors.
			cmd.SilenceUsage = true

			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg, args[0], args[1])
		},
	}

	bindFlags(cmd.Flags(), opts)

	return cmd
}

// bindFlags registers the command-line flags on flags.
func bindFlags(flags *pflag.FlagSet, opts *options) {
	flags.StringVarP(&opts.configPath, "config", "c", "", "Path to configuration file (YAML)")
	flags.BoolVar(&opts.readOnly, "read-only", false, "Reject every modification with EROFS")
	flags.BoolVar(&opts.allowOther, "allow-other", false, "Allow other users to access the mount")
	flags.BoolVar(&opts.debug, "debug", false, "Log every FUSE request")
	flags.BoolVar(&opts.directIO, "direct-io", false, "Bypass the kernel page cache for file data")
	flags.StringArrayVar(&opts.exclude, "exclude", nil, "Gitignore-style pattern to hide from the mount (repeatable)")
	flags.StringVar(&opts.fsName, "fs-name", "", "Filesystem name shown by mount(8)")
	flags.StringVar(&opts.lockDir, "lock-dir", "", "Directory for mount point lock files")
	flags.StringVar(&opts.grpcAddr, "grpc-addr", "", "gRPC health service address (empty disables)")
	flags.StringVar(&opts.httpAddr, "http-addr", "", "HTTP /metrics and /healthz address (empty disables)")
	flags.StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	flags.StringVar(&opts.logFormat, "log-format", "", "Log format: text, json")
}

// loadConfig reads the configuration file and applies flag overrides.
func loadConfig(cmd *cobra.Command, opts *options) (*config.Config, error) {
	cfg, err := config.LoadOrDefault(opts.configPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("read-only") {
		cfg.Mount.ReadOnly = opts.readOnly
	}
	if flags.Changed("allow-other") {
		cfg.Mount.AllowOther = opts.allowOther
	}
	if flags.Changed("debug") {
		cfg.Mount.Debug = opts.debug
	}
	if flags.Changed("direct-io") {
		cfg.Mount.DirectIO = opts.directIO
	}
	if flags.Changed("exclude") {
		cfg.Mount.Exclude = append(cfg.Mount.Exclude, opts.exclude...)
	}
	if flags.Changed("fs-name") {
		cfg.Mount.FsName = opts.fsName
	}
	if flags.Changed("lock-dir") {
		cfg.Lock.Dir = opts.lockDir
	}
	if flags.Changed("grpc-addr") {
		cfg.Server.GRPCAddr = opts.grpcAddr
	}
	if flags.Changed("http-addr") {
		cfg.Server.HTTPAddr = opts.httpAddr
	}
	if flags.Changed("log-level") {
		cfg.Logging.Level = opts.logLevel
	}
	if flags.Changed("log-format") {
		cfg.Logging.Format = opts.logFormat
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// checkTarget verifies that the target exists and is a directory.
func checkTarget(target string) error {
	info, err := os.Stat(target)
	if err != nil {
		return fmt.Errorf("target directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("target directory: %s is not a directory", target)
	}
	return nil
}

func run(ctx context.Context, cfg *config.Config, mountPoint, target string) error {
	if err := logging.Init(&logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	}); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer logging.Sync()
	logging.With(logging.String("session", uuid.NewString()))

	collector, err := metrics.NewCollector(nil)
	if err != nil {
		return fmt.Errorf("failed to create metrics collector: %w", err)
	}

	srv, err := server.New(&server.Config{
		GRPCAddr: cfg.Server.GRPCAddr,
		HTTPAddr: cfg.Server.HTTPAddr,
	}, collector.Handler())
	if err != nil {
		return fmt.Errorf("failed to create status server: %w", err)
	}

	observers := []shim.Observer{collector}
	if logging.DebugEnabled() {
		observers = append(observers, shim.LogObserver())
	}

	mfs, err := fs.New(&fs.Config{
		Target:            target,
		MountPoint:        mountPoint,
		FsName:            cfg.Mount.FsName,
		AllowOther:        cfg.Mount.AllowOther,
		ReadOnly:          cfg.Mount.ReadOnly,
		Debug:             cfg.Mount.Debug,
		DirectIO:          cfg.Mount.DirectIO,
		Exclude:           cfg.Mount.Exclude,
		LockDir:           cfg.Lock.Dir,
		UnmountRetries:    cfg.Mount.UnmountRetries,
		UnmountRetryDelay: cfg.Mount.GetUnmountRetryDelay(),
		Observer:          shim.Observers(observers...),
		OnStateChange: func(mounted bool) {
			srv.SetServing(mounted)
			collector.SetMounted(mounted)
		},
	})
	if err != nil {
		return err
	}
	if err := collector.TrackOpenHandles(mfs.Translator().OpenHandles); err != nil {
		return fmt.Errorf("failed to register handle gauge: %w", err)
	}

	logging.Info("Starting mirrorfs...",
		logging.String("mount_point", mfs.MountPoint()),
		logging.String("target", mfs.Target()),
		logging.Bool("read_only", cfg.Mount.ReadOnly),
		logging.Strings("exclude", cfg.Mount.Exclude),
	)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := mfs.Mount(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	if cfg.Server.GRPCAddr != "" || cfg.Server.HTTPAddr != "" {
		g.Go(func() error {
			return srv.Serve(gctx)
		})
	}

	err = g.Wait()
	if errors.Is(err, fs.ErrUnmounted) {
		logging.Info("Shutting down after external unmount")
		return nil
	}
	return err
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
