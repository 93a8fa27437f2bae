package disk

import "slices"

// knownFSTypes are the filesystems blockd knows how to check and format.
var knownFSTypes = []string{
	"ext2",
	"ext3",
	"ext4",
	"jfs",
	"xfs",
	"btrfs",
	"ntfs",
	"vfat",
	"minix",
	"reiserfs",
}

const swapFSType = "swap"

// Supported lists the filesystem types whose tools are installed right now.
// Nothing is cached.
func (c *Controller) Supported() []string {
	var result []string
	for _, fstype := range knownFSTypes {
		if c.resolvable("fsck."+fstype) && c.resolvable("mkfs."+fstype) {
			result = append(result, fstype)
		}
	}
	if c.resolvable("mkswap") {
		result = append(result, swapFSType)
	}
	return result
}

func (c *Controller) IsSupported(fstype string) bool {
	return fstype != "" && slices.Contains(c.Supported(), fstype)
}

func (c *Controller) resolvable(program string) bool {
	path, err := c.runner.LookPath(program)
	return err == nil && path != ""
}

func mkfsProgram(fstype string) string {
	if fstype == swapFSType {
		return "mkswap"
	}
	return "mkfs." + fstype
}
