package config

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/objectfs/objectfs/internal/drive"
	"github.com/objectfs/objectfs/internal/transfer"
	"github.com/objectfs/objectfs/pkg/retry"
)

// CLIConfig is the flat set of mount-time options SPEC_FULL.md §6 exposes as
// POSIX short flags, parsed with github.com/spf13/pflag rather than stdlib
// flag because several of them need the `-b`/`--bucket` short+long dual
// form stdlib flag cannot express.
type CLIConfig struct {
	Bucket      string
	Mount       string
	Zone        string
	Credentials string
	LogDir      string
	LogLevel    string

	Retries    int
	ReqTimeout int // milliseconds
	MaxCache   int // MiB
	DiskDir    string
	MaxStat    int // thousands of entries
	StatExpire int // minutes; negative disables
	NumTransfer int
	BufSize    int // MiB

	Host     string
	Protocol string
	Port     int

	ClearLogDir bool
	Foreground  bool
	Single      bool
	SingleCap   bool
	Debug       bool

	Help    bool
	Version bool
}

// NewFlagSet registers every §6 flag onto a fresh pflag.FlagSet bound to
// cfg, defaulting ReqTimeout/MaxCache/MaxStat/NumTransfer/BufSize/Retries to
// the same values the reference tree's NewDefault uses elsewhere in the
// component configs.
func NewFlagSet(name string, cfg *CLIConfig) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)

	fs.StringVarP(&cfg.Bucket, "bucket", "b", "", "remote bucket name")
	fs.StringVarP(&cfg.Mount, "mount", "m", "", "local mount point")
	fs.StringVarP(&cfg.Zone, "zone", "z", "", "remote zone/region")
	fs.StringVarP(&cfg.Credentials, "credentials", "c", "", "credentials file path")
	fs.StringVarP(&cfg.LogDir, "logdir", "l", "", "log directory")
	fs.StringVarP(&cfg.LogLevel, "loglevel", "L", "INFO", "INFO / WARN / ERROR / FATAL")

	fs.IntVarP(&cfg.Retries, "retries", "r", 3, "max request retries")
	fs.IntVarP(&cfg.ReqTimeout, "reqtimeout", "R", 30000, "per-request deadline in ms")
	fs.IntVarP(&cfg.MaxCache, "maxcache", "Z", 512, "memory cache cap in MiB")
	fs.StringVarP(&cfg.DiskDir, "diskdir", "D", "", "disk-fallback cache directory")
	fs.IntVarP(&cfg.MaxStat, "maxstat", "t", 100, "metadata entry cap in thousands")
	fs.IntVarP(&cfg.StatExpire, "statexpire", "e", 5, "metadata TTL in minutes (negative disables)")
	fs.IntVarP(&cfg.NumTransfer, "numtransfer", "n", 8, "worker pool size")
	fs.IntVarP(&cfg.BufSize, "bufsize", "u", 8, "transfer buffer size in MiB")

	fs.StringVarP(&cfg.Host, "host", "H", "", "endpoint host")
	fs.StringVarP(&cfg.Protocol, "protocol", "p", "https", "endpoint protocol")
	fs.IntVarP(&cfg.Port, "port", "P", 0, "endpoint port")

	fs.BoolVarP(&cfg.ClearLogDir, "clearlogdir", "C", false, "wipe log dir on start")
	fs.BoolVarP(&cfg.Foreground, "foreground", "f", false, "run in foreground")
	fs.BoolVarP(&cfg.Single, "single", "s", false, "single-threaded mode")
	fs.BoolVarP(&cfg.SingleCap, "Single", "S", false, "single-process mode")
	fs.BoolVarP(&cfg.Debug, "debug", "d", false, "enable debug logging")

	fs.BoolVarP(&cfg.Help, "help", "h", false, "show help and exit")
	fs.BoolVarP(&cfg.Version, "version", "V", false, "show version and exit")

	return fs
}

// Parse parses args (typically os.Args[1:]) into a new CLIConfig.
func Parse(args []string) (*CLIConfig, error) {
	cfg := &CLIConfig{}
	fs := NewFlagSet("objectfs-mount", cfg)
	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// Validate checks the options Drive construction actually depends on.
func (c *CLIConfig) Validate() error {
	if c.Help || c.Version {
		return nil
	}
	if c.Bucket == "" {
		return fmt.Errorf("config: -b/--bucket is required")
	}
	if c.Mount == "" {
		return fmt.Errorf("config: -m/--mount is required")
	}
	if c.Credentials == "" {
		return fmt.Errorf("config: -c/--credentials is required")
	}
	return nil
}

// DriveConfig converts the parsed flags into drive.Config, applying the
// unit conversions §6 describes (MiB -> bytes, thousands -> count, minutes
// -> Duration, a negative StatExpire disabling metadata TTL).
func (c *CLIConfig) DriveConfig(defaultUID, defaultGID, defaultMode uint32) drive.Config {
	var metaTTL time.Duration
	if c.StatExpire >= 0 {
		metaTTL = time.Duration(c.StatExpire) * time.Minute
	}

	return drive.Config{
		DefaultUID:  defaultUID,
		DefaultGID:  defaultGID,
		DefaultMode: defaultMode,

		CacheCapacity: int64(c.MaxCache) * 1 << 20,
		DiskCacheDir:  c.DiskDir,

		MetaMaxEntries: c.MaxStat * 1000,
		MetaTTL:        metaTTL,

		WorkerPoolSize: c.NumTransfer,

		Transfer: transfer.Config{
			BufferSize:           int64(c.BufSize) * 1 << 20,
			MultipartThreshold:   64 << 20,
			MultipartMinPartSize: 5 << 20,
			MultipartMaxPartSize: 5 << 30,
			Retry: retry.Config{
				MaxAttempts:  c.Retries,
				InitialDelay: 200 * time.Millisecond,
				MaxDelay:     time.Duration(c.ReqTimeout) * time.Millisecond,
				Multiplier:   2,
			},
		},

		NameMax: 255,
	}
}
