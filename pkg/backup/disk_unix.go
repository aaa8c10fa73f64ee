//go:build !windows

package backup

import (
	"fmt"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// checkDiskSpace reports space on the filesystem holding dir, falling back
// to the parent when dir does not exist yet.
func checkDiskSpace(dir string) (*DiskSpaceInfo, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(dir, &stat); err != nil {
		if err := unix.Statfs(filepath.Dir(dir), &stat); err != nil {
			return nil, fmt.Errorf("backup: failed to get disk stats: %w", err)
		}
	}

	bsize := uint64(stat.Bsize)
	total := uint64(stat.Blocks) * bsize
	free := uint64(stat.Bfree) * bsize

	return &DiskSpaceInfo{
		Total:     total,
		Free:      free,
		Available: uint64(stat.Bavail) * bsize,
		UsedPct:   usedPercent(total, free),
	}, nil
}
