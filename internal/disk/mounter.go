package disk

// Mounter performs the raw mount syscalls.
type Mounter interface {
	// Mount attaches source on target with no mount flags.
	Mount(source, target, fstype string) error

	// Unmount detaches target lazily, so a busy mount point is still
	// released once its last user goes away.
	Unmount(target string) error
}
