//go:build windows

package backup

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/windows"
)

// checkDiskSpace reports space on the volume holding dir, falling back to
// the parent when dir does not exist yet.
func checkDiskSpace(dir string) (*DiskSpaceInfo, error) {
	path := dir
	if _, err := os.Stat(path); os.IsNotExist(err) {
		path = filepath.Dir(path)
	}

	pathPtr, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return nil, fmt.Errorf("backup: failed to convert path: %w", err)
	}

	var available, total, free uint64
	if err := windows.GetDiskFreeSpaceEx(pathPtr, &available, &total, &free); err != nil {
		return nil, fmt.Errorf("backup: failed to get disk stats: %w", err)
	}

	return &DiskSpaceInfo{
		Total:     total,
		Free:      free,
		Available: available,
		UsedPct:   usedPercent(total, free),
	}, nil
}
