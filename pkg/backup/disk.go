package backup

// DiskSpaceInfo contains disk space information for a directory's filesystem.
type DiskSpaceInfo struct {
	Total     uint64 // Total bytes
	Free      uint64 // Free bytes
	Available uint64 // Bytes available to unprivileged users
	UsedPct   int    // Percentage used (0-100)
}

func usedPercent(total, free uint64) int {
	if total == 0 {
		return 0
	}
	return int(100 * (total - free) / total)
}
