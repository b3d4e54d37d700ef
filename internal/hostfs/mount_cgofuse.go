//go:build cgofuse
// +build cgofuse

package hostfs

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/winfsp/cgofuse/fuse"

	"github.com/objectfs/objectfs/internal/drive"
)

// MountOptions mirrors the go-fuse variant's fields that cgofuse also
// supports; the go-fuse-only fields (AttrTimeout, EntryTimeout, MaxWrite) do
// not exist on this build.
type MountOptions struct {
	ReadOnly     bool
	AllowOther   bool
	AllowRoot    bool
	DefaultPerms bool
	Debug        bool
	FSName       string
	Subtype      string
}

// MountConfig pairs a mount point with its options.
type MountConfig struct {
	MountPoint string
	Options    *MountOptions
}

func defaultMountConfig(mountPoint string) *MountConfig {
	return &MountConfig{
		MountPoint: mountPoint,
		Options:    &MountOptions{FSName: "objectfs", Subtype: "objectfs"},
	}
}

// MountManager owns the cgofuse host for one Drive instance.
type MountManager struct {
	fs      *CgoFuseFS
	host    *fuse.FileSystemHost
	config  *MountConfig
	logger  *slog.Logger
	mounted bool
}

// NewMountManager constructs a MountManager.
func NewMountManager(d *drive.Drive, config *MountConfig, logger *slog.Logger) *MountManager {
	if config == nil {
		config = defaultMountConfig("")
	}
	if logger == nil {
		logger = slog.Default()
	}
	cfs := NewCgoFuseFS(d)
	return &MountManager{fs: cfs, host: fuse.NewFileSystemHost(cfs), config: config, logger: logger}
}

// Mount mounts the filesystem at config.MountPoint, serving in the
// background.
func (m *MountManager) Mount(ctx context.Context) error {
	if m.mounted {
		return fmt.Errorf("hostfs: already mounted")
	}
	if m.config.MountPoint == "" {
		return fmt.Errorf("hostfs: mount point cannot be empty")
	}

	o := m.config.Options
	opts := []string{"-o", fmt.Sprintf("fsname=%s", o.FSName)}
	if o.Subtype != "" {
		opts = append(opts, "-o", fmt.Sprintf("subtype=%s", o.Subtype))
	}
	if o.AllowOther {
		opts = append(opts, "-o", "allow_other")
	}
	if o.AllowRoot {
		opts = append(opts, "-o", "allow_root")
	}
	if o.ReadOnly {
		opts = append(opts, "-o", "ro")
	}
	if o.DefaultPerms {
		opts = append(opts, "-o", "default_permissions")
	}

	go func() {
		if ret := m.host.Mount(m.config.MountPoint, opts); ret != 0 {
			m.logger.Warn("mount exited", "code", ret)
		}
	}()
	m.mounted = true
	m.logger.Info("mounted", "mountpoint", m.config.MountPoint)
	return nil
}

// Unmount unmounts the filesystem.
func (m *MountManager) Unmount() error {
	if !m.mounted {
		return fmt.Errorf("hostfs: not mounted")
	}
	if ret := m.host.Unmount(); ret != 0 {
		return fmt.Errorf("hostfs: unmount failed with code %d", ret)
	}
	m.mounted = false
	return nil
}

// IsMounted reports whether the filesystem is currently mounted.
func (m *MountManager) IsMounted() bool {
	return m.mounted
}

// Wait is a no-op on this build; cgofuse's Mount call already blocks the
// goroutine Mount started in the background.
func (m *MountManager) Wait() {}
