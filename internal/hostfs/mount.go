//go:build !cgofuse
// +build !cgofuse

package hostfs

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"syscall"
	"time"

	gofuse "github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/objectfs/objectfs/internal/drive"
)

// MountOptions carries the FUSE mount options SPEC_FULL.md §6 exposes as CLI
// flags, grounded on the reference tree's own MountOptions struct.
type MountOptions struct {
	ReadOnly     bool
	AllowOther   bool
	AllowRoot    bool
	DefaultPerms bool
	Debug        bool
	FSName       string
	Subtype      string
	AttrTimeout  time.Duration
	EntryTimeout time.Duration
	MaxWrite     uint32
}

// MountConfig pairs a mount point with its options.
type MountConfig struct {
	MountPoint string
	Options    *MountOptions
}

func defaultMountConfig(mountPoint string) *MountConfig {
	return &MountConfig{
		MountPoint: mountPoint,
		Options: &MountOptions{
			FSName:       "objectfs",
			Subtype:      "objectfs",
			AttrTimeout:  time.Second,
			EntryTimeout: time.Second,
			MaxWrite:     128 * 1024,
		},
	}
}

// MountManager owns the go-fuse server for one Drive instance.
type MountManager struct {
	d       *drive.Drive
	config  *MountConfig
	logger  *slog.Logger
	server  *fuse.Server
	mounted bool
}

// NewMountManager constructs a MountManager. config may be nil to use
// FSName/timeouts matching the reference tree's defaults.
func NewMountManager(d *drive.Drive, config *MountConfig, logger *slog.Logger) *MountManager {
	if config == nil {
		config = defaultMountConfig("")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &MountManager{d: d, config: config, logger: logger}
}

// Mount mounts the filesystem at config.MountPoint and serves in the
// background until Unmount or Wait returns.
func (m *MountManager) Mount(ctx context.Context) error {
	if m.mounted {
		return fmt.Errorf("hostfs: already mounted")
	}
	if err := m.validateMountPoint(); err != nil {
		return fmt.Errorf("hostfs: invalid mount point: %w", err)
	}

	opts := m.buildOptions()
	server, err := gofuse.Mount(m.config.MountPoint, Root(m.d), opts)
	if err != nil {
		return fmt.Errorf("hostfs: mount failed: %w", err)
	}

	m.server = server
	m.mounted = true
	m.logger.Info("mounted", "mountpoint", m.config.MountPoint)

	go func() {
		m.server.Wait()
		m.mounted = false
		m.logger.Info("unmounted", "mountpoint", m.config.MountPoint)
	}()
	return nil
}

// Unmount unmounts the filesystem, falling back to a forced (MNT_FORCE)
// unmount if the graceful path fails.
func (m *MountManager) Unmount() error {
	if !m.mounted || m.server == nil {
		return fmt.Errorf("hostfs: not mounted")
	}
	if err := m.server.Unmount(); err != nil {
		m.logger.Warn("graceful unmount failed, forcing", "error", err)
		if forceErr := syscall.Unmount(m.config.MountPoint, syscall.MNT_FORCE); forceErr != nil {
			return fmt.Errorf("hostfs: unmount failed: %w (force also failed: %v)", err, forceErr)
		}
	}
	m.mounted = false
	return nil
}

// IsMounted reports whether the filesystem is currently mounted.
func (m *MountManager) IsMounted() bool {
	return m.mounted
}

// Wait blocks until the FUSE server stops serving.
func (m *MountManager) Wait() {
	if m.server != nil {
		m.server.Wait()
	}
}

func (m *MountManager) validateMountPoint() error {
	if m.config.MountPoint == "" {
		return fmt.Errorf("mount point cannot be empty")
	}
	info, err := os.Stat(m.config.MountPoint)
	if err != nil {
		return fmt.Errorf("cannot access mount point: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("mount point is not a directory: %s", m.config.MountPoint)
	}
	return nil
}

func (m *MountManager) buildOptions() *gofuse.Options {
	o := m.config.Options
	opts := &gofuse.Options{
		MountOptions: fuse.MountOptions{
			Name:       o.FSName,
			FsName:     o.FSName,
			Debug:      o.Debug,
			AllowOther: o.AllowOther,
			MaxWrite:   int(o.MaxWrite),
		},
		AttrTimeout:     &o.AttrTimeout,
		EntryTimeout:    &o.EntryTimeout,
		NullPermissions: !o.DefaultPerms,
	}
	if o.ReadOnly {
		opts.Options = append(opts.Options, "ro")
	}
	if o.AllowRoot {
		opts.Options = append(opts.Options, "allow_root")
	}
	return opts
}
