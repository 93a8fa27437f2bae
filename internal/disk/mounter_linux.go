//go:build linux

package disk

import (
	"os"

	"golang.org/x/sys/unix"
)

// SysMounter calls mount(2) and umount2(2) directly.
type SysMounter struct{}

func (SysMounter) Mount(source, target, fstype string) error {
	if err := unix.Mount(source, target, fstype, 0, ""); err != nil {
		return &os.PathError{Op: "mount", Path: target, Err: err}
	}
	return nil
}

func (SysMounter) Unmount(target string) error {
	if err := unix.Unmount(target, unix.MNT_DETACH); err != nil {
		return &os.PathError{Op: "umount", Path: target, Err: err}
	}
	return nil
}
