//go:build windows

package audit

// checkDiskSpace is not implemented on Windows.
func (l *Logger) checkDiskSpace() error {
	return nil
}
