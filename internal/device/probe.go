package device

import (
	"bufio"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
)

const (
	DefaultSysfsRoot   = "/sys"
	DefaultUdevDataDir = "/run/udev/data"
)

// Prober turns a device node into a canonical record. A zero Record is
// returned when the device is gone or its metadata is incomplete.
type Prober interface {
	Probe(node string) Record
}

// SysfsProbe reads device metadata the way libudev does: kernel attributes
// from sysfs, then the properties udev stored for the device number.
type SysfsProbe struct {
	fs          afero.Fs
	sysfsRoot   string
	udevDataDir string
}

func NewSysfsProbe(fs afero.Fs, sysfsRoot, udevDataDir string) *SysfsProbe {
	if sysfsRoot == "" {
		sysfsRoot = DefaultSysfsRoot
	}
	if udevDataDir == "" {
		udevDataDir = DefaultUdevDataDir
	}
	return &SysfsProbe{fs: fs, sysfsRoot: sysfsRoot, udevDataDir: udevDataDir}
}

// ClassDir is the directory listing every block device of the host.
func (p *SysfsProbe) ClassDir() string {
	return filepath.Join(p.sysfsRoot, "class", "block")
}

func (p *SysfsProbe) Probe(node string) Record {
	base := filepath.Base(node)
	if node == "" || base == "." || base == "/" {
		return Record{}
	}

	sysPath := filepath.Join(p.ClassDir(), base)
	props, err := readProperties(p.fs, filepath.Join(sysPath, "uevent"), "")
	if err != nil {
		log.Debug().Err(err).Str("disk", node).Msg("cannot get info for device")
		return Record{}
	}

	if major, minor := props["MAJOR"], props["MINOR"]; major != "" && minor != "" {
		dbPath := filepath.Join(p.udevDataDir, "b"+major+":"+minor)
		udevProps, err := readProperties(p.fs, dbPath, "E:")
		if err != nil {
			log.Debug().Err(err).Str("disk", node).Msg("no udev data for device")
		}
		for k, v := range udevProps {
			props[k] = v
		}
	}

	rec := Record{
		Name:   NodePath(props["DEVNAME"]),
		Label:  props["ID_FS_LABEL"],
		FSType: props["ID_FS_TYPE"],
		FSUUID: props["ID_FS_UUID"],
		Class:  ParseClass(props["DEVTYPE"]),
	}

	rec.SizeKiB = sectorsToKiB(props["ID_PART_ENTRY_SIZE"])
	if rec.SizeKiB == 0 {
		if data, err := afero.ReadFile(p.fs, filepath.Join(sysPath, "size")); err == nil {
			rec.SizeKiB = sectorsToKiB(strings.TrimSpace(string(data)))
		}
	}

	return rec
}

// Scan probes every entry of the sysfs block class and keeps the valid ones,
// in directory order.
func Scan(p *SysfsProbe) []Record {
	entries, err := afero.ReadDir(p.fs, p.ClassDir())
	if err != nil {
		log.Warn().Err(err).Str("path", p.ClassDir()).Msg("cannot list block devices")
		return nil
	}

	var records []Record
	for _, entry := range entries {
		rec := p.Probe(entry.Name())
		if rec.Valid() {
			records = append(records, rec)
		}
	}
	return records
}

// readProperties parses KEY=VALUE lines. When prefix is set only lines
// carrying it are considered and the prefix is stripped (udev db "E:" lines).
func readProperties(fs afero.Fs, path, prefix string) (map[string]string, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	props := make(map[string]string)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if prefix != "" {
			if !strings.HasPrefix(line, prefix) {
				continue
			}
			line = strings.TrimPrefix(line, prefix)
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		props[key] = value
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return props, nil
}

// NodePath turns the kernel's relative DEVNAME ("sdb1") into a node path.
func NodePath(name string) string {
	if name == "" || filepath.IsAbs(name) {
		return name
	}
	return "/dev/" + name
}

// sectorsToKiB converts a 512-byte sector count.
func sectorsToKiB(sectors string) int64 {
	n, err := strconv.ParseInt(sectors, 10, 64)
	if err != nil || n <= 0 {
		return 0
	}
	return n / 2
}
