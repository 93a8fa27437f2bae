package platform

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/afero"
)

const DefaultMountsFile = "/proc/mounts"

// MountTable answers mount questions from the live system table. Nothing is
// cached: every call re-reads the table.
type MountTable interface {
	MountPoint(node string) (string, error)
	Mounted(node string) bool
}

type procMountTable struct {
	fs   afero.Fs
	path string
}

// NewMountTable reads mounts from path, /proc/mounts when empty.
func NewMountTable(fs afero.Fs, path string) MountTable {
	if path == "" {
		path = DefaultMountsFile
	}
	return &procMountTable{fs: fs, path: path}
}

// MountPoint returns where node is mounted, or "" when it is not. If the node
// appears on several lines the last one wins, as it is the topmost mount.
func (t *procMountTable) MountPoint(node string) (string, error) {
	f, err := t.fs.Open(t.path)
	if err != nil {
		return "", fmt.Errorf("cannot open %s: %w", t.path, err)
	}
	defer f.Close()

	return findMountPoint(f, node)
}

func (t *procMountTable) Mounted(node string) bool {
	mp, err := t.MountPoint(node)
	return err == nil && mp != ""
}

func findMountPoint(r io.Reader, node string) (string, error) {
	if node == "" {
		return "", nil
	}

	var result string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) >= 2 && fields[0] == node {
			result = decodeMountPath(fields[1])
		}
	}
	return result, scanner.Err()
}

// decodeMountPath undoes the octal escapes the kernel applies to whitespace
// and backslashes in mount paths.
func decodeMountPath(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	return strings.NewReplacer(`\040`, " ", `\011`, "\t", `\012`, "\n", `\134`, `\`).Replace(s)
}
