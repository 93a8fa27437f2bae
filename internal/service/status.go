package service

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/shirou/gopsutil/v3/process"
	"github.com/spf13/afero"
)

func CreatePidFile(fs afero.Fs, path string) error {
	if err := fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create pid directory: %w", err)
	}
	data := fmt.Sprintf("%d\n", os.Getpid())
	if err := afero.WriteFile(fs, path, []byte(data), 0o644); err != nil {
		return fmt.Errorf("failed to write pid file: %w", err)
	}
	return nil
}

func RemovePidFile(fs afero.Fs, path string) error {
	err := fs.Remove(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func ReadPidFile(fs afero.Fs, path string) (int32, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("malformed pid file %s: %w", path, err)
	}
	return int32(pid), nil
}

// DaemonRunning reports whether the pid file names a live process. A stale
// pid file is removed.
func DaemonRunning(fs afero.Fs, path string) (bool, int32) {
	pid, err := ReadPidFile(fs, path)
	if err != nil {
		return false, 0
	}
	if exists, err := process.PidExists(pid); err == nil && exists {
		return true, pid
	}
	_ = RemovePidFile(fs, path)
	return false, pid
}
