//go:build !linux

package disk

import (
	"errors"
	"os"
)

// SysMounter is only functional on Linux.
type SysMounter struct{}

var errNoMountSupport = errors.New("mounting is only supported on linux")

func (SysMounter) Mount(_, target, _ string) error {
	return &os.PathError{Op: "mount", Path: target, Err: errNoMountSupport}
}

func (SysMounter) Unmount(target string) error {
	return &os.PathError{Op: "umount", Path: target, Err: errNoMountSupport}
}
