package config

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/go-ini/ini"

	"dupfind/internal/logging"
	"dupfind/internal/report"
	"dupfind/internal/scan"
)

// Output formats for the console report
const (
	FormatHuman = report.FormatHuman
	FormatJSON  = report.FormatJSON
)

const DefaultManifest = "duplicates.csv"

// Config holds everything a scan run needs. Values come from Default, then
// an optional ini file, then command line flags.
type Config struct {
	// [scan]
	Root          string
	Workers       int
	Algorithm     string
	SizeThreshold int64
	UseMMap       bool
	MinMMapSize   int64
	AbsolutePaths bool
	ExcludeHidden bool
	ExcludeDirs   []string
	Patterns      []string

	// [output]
	Manifest     string
	Append       bool
	Format       string
	Database     string
	ShowProgress bool

	// [log]
	LogFile  string
	LogLevel string
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Workers:       1,
		Algorithm:     scan.DefaultAlgorithm,
		SizeThreshold: scan.DefaultSizeThreshold,
		MinMMapSize:   4 * 1024 * 1024,
		Manifest:      DefaultManifest,
		Format:        FormatHuman,
		ShowProgress:  true,
		LogLevel:      "info",
	}
}

// Load reads path on top of the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if err := cfg.ApplyFile(path); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyFile overrides c with every key present in the ini file at path.
// Keys that are absent leave the current value alone.
func (c *Config) ApplyFile(path string) error {
	f, err := ini.Load(path)
	if err != nil {
		return fmt.Errorf("failed to load config file: %w", err)
	}
	if err := c.apply(f); err != nil {
		return fmt.Errorf("config %s: %w", path, err)
	}
	logging.Debug("Loaded config from %s", path)
	return nil
}

func (c *Config) apply(f *ini.File) error {
	if f.HasSection("scan") {
		section := f.Section("scan")
		if section.HasKey("root") {
			c.Root = section.Key("root").String()
		}
		if section.HasKey("workers") {
			v, err := section.Key("workers").Int()
			if err != nil {
				return fmt.Errorf("scan.workers: %w", err)
			}
			c.Workers = v
		}
		if section.HasKey("algorithm") {
			c.Algorithm = section.Key("algorithm").String()
		}
		if section.HasKey("max_size") {
			v, err := ParseSize(section.Key("max_size").String())
			if err != nil {
				return fmt.Errorf("scan.max_size: %w", err)
			}
			c.SizeThreshold = v
		}
		if section.HasKey("mmap") {
			v, err := section.Key("mmap").Bool()
			if err != nil {
				return fmt.Errorf("scan.mmap: %w", err)
			}
			c.UseMMap = v
		}
		if section.HasKey("mmap_min") {
			v, err := ParseSize(section.Key("mmap_min").String())
			if err != nil {
				return fmt.Errorf("scan.mmap_min: %w", err)
			}
			c.MinMMapSize = v
		}
		if section.HasKey("absolute") {
			v, err := section.Key("absolute").Bool()
			if err != nil {
				return fmt.Errorf("scan.absolute: %w", err)
			}
			c.AbsolutePaths = v
		}
		if section.HasKey("exclude_hidden") {
			v, err := section.Key("exclude_hidden").Bool()
			if err != nil {
				return fmt.Errorf("scan.exclude_hidden: %w", err)
			}
			c.ExcludeHidden = v
		}
		if section.HasKey("exclude_dirs") {
			c.ExcludeDirs = section.Key("exclude_dirs").Strings(",")
		}
		if section.HasKey("patterns") {
			c.Patterns = section.Key("patterns").Strings(",")
		}
	}

	if f.HasSection("output") {
		section := f.Section("output")
		if section.HasKey("manifest") {
			c.Manifest = section.Key("manifest").String()
		}
		if section.HasKey("append") {
			v, err := section.Key("append").Bool()
			if err != nil {
				return fmt.Errorf("output.append: %w", err)
			}
			c.Append = v
		}
		if section.HasKey("format") {
			c.Format = section.Key("format").String()
		}
		if section.HasKey("database") {
			c.Database = section.Key("database").String()
		}
		if section.HasKey("progress") {
			v, err := section.Key("progress").Bool()
			if err != nil {
				return fmt.Errorf("output.progress: %w", err)
			}
			c.ShowProgress = v
		}
	}

	if f.HasSection("log") {
		section := f.Section("log")
		if section.HasKey("file") {
			c.LogFile = section.Key("file").String()
		}
		if section.HasKey("level") {
			c.LogLevel = section.Key("level").String()
		}
	}
	return nil
}

// Validate normalizes c and rejects values no scan could use.
func (c *Config) Validate() error {
	if c.Root == "" {
		return fmt.Errorf("no directory to scan")
	}
	if c.Workers == 0 {
		c.Workers = runtime.NumCPU()
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must not be negative, got %d", c.Workers)
	}
	if _, err := scan.NewHasher(c.Algorithm, c.SizeThreshold); err != nil {
		return err
	}
	format, err := NormalizeFormat(c.Format)
	if err != nil {
		return err
	}
	c.Format = format
	if c.Manifest == "" {
		return fmt.Errorf("no manifest path")
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// NormalizeFormat lower-cases a report format name and rejects unknown ones.
func NormalizeFormat(format string) (string, error) {
	f := strings.ToLower(strings.TrimSpace(format))
	if f != FormatHuman && f != FormatJSON {
		return "", fmt.Errorf("unknown output format %q (want %s or %s)", format, FormatHuman, FormatJSON)
	}
	return f, nil
}

// ScanOptions converts c to the options the scanner takes.
func (c Config) ScanOptions() scan.Options {
	return scan.Options{
		Root:          c.Root,
		Algorithm:     c.Algorithm,
		SizeThreshold: c.SizeThreshold,
		Workers:       c.Workers,
		UseMMap:       c.UseMMap,
		MinMMapSize:   c.MinMMapSize,
		AbsolutePaths: c.AbsolutePaths,
		ExcludeHidden: c.ExcludeHidden,
		ExcludeDirs:   c.ExcludeDirs,
		Patterns:      c.Patterns,
	}
}

// ParseSize accepts plain byte counts and human sizes such as "100MiB" or
// "2 GB". Zero or a negative count disables the limit.
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty size string")
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, nil
	}
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	if n > 1<<62 {
		return 0, fmt.Errorf("size %q too large", s)
	}
	return int64(n), nil
}

// FormatSize is the inverse of ParseSize for display and saved configs.
func FormatSize(n int64) string {
	if n <= 0 {
		return strconv.FormatInt(n, 10)
	}
	return humanize.IBytes(uint64(n))
}

// File renders c as an ini document.
func (c Config) File() *ini.File {
	f := ini.Empty()
	s := f.Section("scan")
	s.Key("root").SetValue(c.Root)
	s.Key("workers").SetValue(strconv.Itoa(c.Workers))
	s.Key("algorithm").SetValue(c.Algorithm)
	s.Key("max_size").SetValue(FormatSize(c.SizeThreshold))
	s.Key("mmap").SetValue(strconv.FormatBool(c.UseMMap))
	s.Key("mmap_min").SetValue(FormatSize(c.MinMMapSize))
	s.Key("absolute").SetValue(strconv.FormatBool(c.AbsolutePaths))
	s.Key("exclude_hidden").SetValue(strconv.FormatBool(c.ExcludeHidden))
	s.Key("exclude_dirs").SetValue(strings.Join(c.ExcludeDirs, ","))
	s.Key("patterns").SetValue(strings.Join(c.Patterns, ","))

	o := f.Section("output")
	o.Key("manifest").SetValue(c.Manifest)
	o.Key("append").SetValue(strconv.FormatBool(c.Append))
	o.Key("format").SetValue(c.Format)
	o.Key("database").SetValue(c.Database)
	o.Key("progress").SetValue(strconv.FormatBool(c.ShowProgress))

	l := f.Section("log")
	l.Key("file").SetValue(c.LogFile)
	l.Key("level").SetValue(c.LogLevel)
	return f
}

// WriteTo writes c as ini to w.
func (c Config) WriteTo(w io.Writer) (int64, error) {
	return c.File().WriteTo(w)
}

// Save writes c to path, replacing any existing file.
func (c Config) Save(path string) error {
	if err := c.File().SaveTo(path); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	return nil
}

// Exists reports whether a config file is present at path.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
