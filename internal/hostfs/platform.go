//go:build !cgofuse
// +build !cgofuse

package hostfs

import (
	"context"
	"log/slog"

	"github.com/objectfs/objectfs/internal/drive"
)

// PlatformFileSystem is the mount lifecycle every build variant exposes to
// cmd/objectfs-mount, so main.go can select an adapter at compile time
// without conditional logic.
type PlatformFileSystem interface {
	Mount(ctx context.Context) error
	Unmount() error
	IsMounted() bool
	Wait()
}

// CreatePlatformMountManager builds the go-fuse/v2-backed mount manager.
func CreatePlatformMountManager(d *drive.Drive, config *MountConfig, logger *slog.Logger) PlatformFileSystem {
	return NewMountManager(d, config, logger)
}
