package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"dupfind/internal/config"
	"dupfind/internal/logging"
	"dupfind/internal/manifest"
	"dupfind/internal/progress"
	"dupfind/internal/report"
	"dupfind/internal/scan"
	"dupfind/internal/store"
)

// flags holds the raw command line values. They only override the config
// when set explicitly.
type flags struct {
	configPath string
	logFile    string
	logLevel   string
	format     string

	output        string
	appendTo      bool
	maxSize       string
	workers       int
	bufferSize    int
	algorithm     string
	mmap          bool
	mmapMin       string
	excludeHidden bool
	excludeDirs   []string
	patterns      []string
	absolute      bool
	db            string
	noProgress    bool
	showVersion   bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	f := &flags{}
	defaults := config.Default()

	rootCmd := &cobra.Command{
		Use:   "dupfind [flags] <directory>",
		Short: "Find duplicate files by content",
		Long: `Scans a directory tree, hashes every file and reports files with identical content.
A sorted manifest of every file and its hash is written as CSV for later comparison.
Example: dupfind -w 8 -m 1GiB -o photos.csv.zst ~/Pictures`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if f.showVersion {
				printVersion(cmd.OutOrStdout())
				return nil
			}
			return runScan(cmd, f, args)
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&f.configPath, "config", "c", "", "Config file (ini)")
	pf.StringVar(&f.logFile, "log-file", defaults.LogFile, `Log file ("-" for stderr, default under the temp directory)`)
	pf.StringVar(&f.logLevel, "log-level", defaults.LogLevel, "Log level: debug, info, warning, error")
	pf.StringVarP(&f.format, "format", "f", defaults.Format, "Report format: human or json")
	pf.StringVar(&f.db, "db", defaults.Database, "DuckDB database; scans are also stored here")

	fl := rootCmd.Flags()
	fl.StringVarP(&f.output, "output", "o", defaults.Manifest, "Manifest path (.zst suffix compresses)")
	fl.BoolVar(&f.appendTo, "append", defaults.Append, "Append to an existing manifest instead of refusing to overwrite it")
	fl.StringVarP(&f.maxSize, "max-size", "m", config.FormatSize(defaults.SizeThreshold), "Skip files larger than this (0 hashes everything)")
	fl.IntVarP(&f.workers, "workers", "w", defaults.Workers, "Number of hashing workers (0: number of CPU cores)")
	fl.IntVarP(&f.bufferSize, "buffer", "b", 1000, "Size of the internal buffers")
	fl.StringVarP(&f.algorithm, "algorithm", "a", defaults.Algorithm, "Hash algorithm")
	fl.BoolVar(&f.mmap, "mmap", defaults.UseMMap, "Memory-map large files while hashing")
	fl.StringVar(&f.mmapMin, "mmap-min", config.FormatSize(defaults.MinMMapSize), "Smallest file to memory-map")
	fl.BoolVar(&f.excludeHidden, "exclude-hidden", defaults.ExcludeHidden, "Skip hidden files and directories")
	fl.StringSliceVar(&f.excludeDirs, "exclude-dir", nil, "Directory names to skip (can be specified multiple times)")
	fl.StringSliceVarP(&f.patterns, "pattern", "p", nil, "Only scan files matching these patterns (can be specified multiple times)")
	fl.BoolVar(&f.absolute, "absolute", defaults.AbsolutePaths, "Report absolute paths")
	fl.BoolVar(&f.noProgress, "no-progress", !defaults.ShowProgress, "Disable the progress spinner")
	fl.BoolVarP(&f.showVersion, "version", "v", false, "Show version information")

	rootCmd.AddCommand(newCompareCmd(f), newConfigCmd(f), newDBCmd(f))
	return rootCmd
}

func newCompareCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "compare <manifestA> <manifestB>",
		Short: "Cross-reference two manifests by content hash",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, f, nil)
			if err != nil {
				return err
			}
			format, err := config.NormalizeFormat(cfg.Format)
			if err != nil {
				return err
			}
			if err := initLogging(cfg); err != nil {
				return err
			}
			defer logging.Close()

			left, err := manifest.ReadFile(args[0])
			if err != nil {
				return err
			}
			right, err := manifest.ReadFile(args[1])
			if err != nil {
				return err
			}
			logging.Info("Comparing %s (%d rows) with %s (%d rows)", args[0], len(left), args[1], len(right))
			return report.RenderComparison(cmd.OutOrStdout(), format, manifest.Compare(left, right))
		},
	}
}

func newConfigCmd(f *flags) *cobra.Command {
	var savePath string
	var force bool
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as ini, or save it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, f, nil)
			if err != nil {
				return err
			}
			if savePath == "" {
				_, err = cfg.WriteTo(cmd.OutOrStdout())
				return err
			}
			if config.Exists(savePath) && !force {
				return fmt.Errorf("config file %s already exists (use --force to replace it)", savePath)
			}
			if err := cfg.Save(savePath); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Config written to %s\n", savePath)
			return nil
		},
	}
	cmd.Flags().StringVar(&savePath, "save", "", "Write the effective configuration to this file")
	cmd.Flags().BoolVar(&force, "force", false, "Replace an existing file with --save")
	return cmd
}

func newDBCmd(f *flags) *cobra.Command {
	dbCmd := &cobra.Command{
		Use:   "db",
		Short: "Query scans stored with --db",
	}

	scansCmd := &cobra.Command{
		Use:   "scans",
		Short: "List stored scans",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, f, func(ctx context.Context, db *store.Store, format string) error {
				scans, err := db.Scans(ctx)
				if err != nil {
					return err
				}
				return report.RenderScans(cmd.OutOrStdout(), format, scans)
			})
		},
	}

	duplicatesCmd := &cobra.Command{
		Use:   "duplicates <scan-id>",
		Short: "Show the duplicate groups of a stored scan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid scan id %q", args[0])
			}
			return withStore(cmd, f, func(ctx context.Context, db *store.Store, format string) error {
				groups, err := db.DuplicateGroups(ctx, id)
				if err != nil {
					return err
				}
				return report.RenderGroups(cmd.OutOrStdout(), format, groups)
			})
		},
	}

	dbCmd.AddCommand(scansCmd, duplicatesCmd)
	return dbCmd
}

// withStore opens the configured database for a db subcommand.
func withStore(cmd *cobra.Command, f *flags, fn func(context.Context, *store.Store, string) error) error {
	cfg, err := loadConfig(cmd, f, nil)
	if err != nil {
		return err
	}
	if cfg.Database == "" {
		return fmt.Errorf("no database given (use --db or [output] database)")
	}
	if !config.Exists(cfg.Database) {
		return fmt.Errorf("database %s does not exist", cfg.Database)
	}
	format, err := config.NormalizeFormat(cfg.Format)
	if err != nil {
		return err
	}
	if err := initLogging(cfg); err != nil {
		return err
	}
	defer logging.Close()

	db, err := store.Open(cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()
	return fn(cmd.Context(), db, format)
}

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "dupfind v%s\n", scan.Version)
	fmt.Fprintf(w, "Build Time: %s\n", scan.BuildTime)
	fmt.Fprintf(w, "Git Commit: %s\n", scan.GitCommit)
}

// loadConfig layers defaults, the config file and explicitly set flags.
func loadConfig(cmd *cobra.Command, f *flags, args []string) (config.Config, error) {
	cfg := config.Default()
	if f.configPath != "" {
		var err error
		if cfg, err = config.Load(f.configPath); err != nil {
			return config.Config{}, err
		}
	}
	if len(args) > 0 {
		cfg.Root = args[0]
	}

	changed := cmd.Flags().Changed
	if changed("log-file") {
		cfg.LogFile = f.logFile
	}
	if changed("log-level") {
		cfg.LogLevel = f.logLevel
	}
	if changed("format") {
		cfg.Format = f.format
	}
	if changed("output") {
		cfg.Manifest = f.output
	}
	if changed("append") {
		cfg.Append = f.appendTo
	}
	if changed("max-size") {
		n, err := config.ParseSize(f.maxSize)
		if err != nil {
			return config.Config{}, fmt.Errorf("--max-size: %w", err)
		}
		cfg.SizeThreshold = n
	}
	if changed("workers") {
		cfg.Workers = f.workers
	}
	if changed("algorithm") {
		cfg.Algorithm = f.algorithm
	}
	if changed("mmap") {
		cfg.UseMMap = f.mmap
	}
	if changed("mmap-min") {
		n, err := config.ParseSize(f.mmapMin)
		if err != nil {
			return config.Config{}, fmt.Errorf("--mmap-min: %w", err)
		}
		cfg.MinMMapSize = n
	}
	if changed("exclude-hidden") {
		cfg.ExcludeHidden = f.excludeHidden
	}
	if changed("exclude-dir") {
		cfg.ExcludeDirs = f.excludeDirs
	}
	if changed("pattern") {
		cfg.Patterns = f.patterns
	}
	if changed("absolute") {
		cfg.AbsolutePaths = f.absolute
	}
	if changed("db") {
		cfg.Database = f.db
	}
	if changed("no-progress") {
		cfg.ShowProgress = !f.noProgress
	}
	return cfg, nil
}

func initLogging(cfg config.Config) error {
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	return logging.Init(cfg.LogFile, level)
}

func runScan(cmd *cobra.Command, f *flags, args []string) error {
	cfg, err := loadConfig(cmd, f, args)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := initLogging(cfg); err != nil {
		return err
	}
	defer logging.Close()

	// Create context with cancellation
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	// Handle Ctrl+C
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case <-sigChan:
			fmt.Fprintln(cmd.ErrOrStderr(), "\nScan interrupted by user")
			cancel()
		case <-ctx.Done():
		}
	}()

	opts := cfg.ScanOptions()
	opts.BufferSize = f.bufferSize
	if cfg.ShowProgress {
		opts.Progress = progress.NewBarSpinnerProgressTracker(cmd.ErrOrStderr(), "Scanning")
	}

	logging.Info("Starting scan of %s (workers=%d, algorithm=%s, max size=%s)",
		cfg.Root, cfg.Workers, cfg.Algorithm, config.FormatSize(cfg.SizeThreshold))
	result, err := scan.Scan(ctx, opts)
	if err != nil {
		logging.Error("Scan failed: %v", err)
		return err
	}

	// the report goes out before any output file so a failing write never
	// hides the results
	out := cmd.OutOrStdout()
	if err := report.Render(out, cfg.Format, result); err != nil {
		return err
	}

	if err := manifest.WriteFile(cfg.Manifest, manifest.FromEntries(result.Manifest), cfg.Append); err != nil {
		logging.Error("Failed to write manifest: %v", err)
		return fmt.Errorf("write manifest: %w", err)
	}
	if cfg.Format == config.FormatHuman {
		fmt.Fprintf(out, "File list written to %s\n", cfg.Manifest)
	}

	if cfg.Database != "" {
		if err := saveToDatabase(ctx, cfg.Database, result); err != nil {
			logging.Error("Failed to store scan: %v", err)
			return err
		}
		if cfg.Format == config.FormatHuman {
			fmt.Fprintf(out, "Scan stored in %s\n", cfg.Database)
		}
	}
	return nil
}

func saveToDatabase(ctx context.Context, path string, result *scan.Result) (err error) {
	db, err := store.Open(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := db.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close database: %w", cerr)
		}
	}()
	_, err = db.SaveScan(ctx, result)
	return err
}
