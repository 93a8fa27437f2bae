package device

import (
	"fmt"

	"github.com/rs/zerolog"
)

// Class tells whether a device node is a whole disk or a partition of one.
type Class int32

const (
	ClassUnknown Class = iota
	ClassDisk
	ClassPartition
)

func (c Class) String() string {
	switch c {
	case ClassDisk:
		return "Disk"
	case ClassPartition:
		return "Partition"
	default:
		return "None"
	}
}

// ParseClass maps a udev DEVTYPE value onto a Class.
func ParseClass(devtype string) Class {
	switch devtype {
	case "disk":
		return ClassDisk
	case "partition":
		return ClassPartition
	default:
		return ClassUnknown
	}
}

// Record is the canonical description of a block device. Two records
// describe the same device when their Name matches, whatever the other
// fields say.
type Record struct {
	Name    string
	Label   string
	FSType  string
	FSUUID  string
	SizeKiB int64
	Class   Class
}

// Valid reports whether the record has a node name, a filesystem UUID and a
// known class. Label and size are optional.
func (r Record) Valid() bool {
	return r.Name != "" && r.FSUUID != "" && r.Class != ClassUnknown
}

// SameDevice compares identity only.
func (r Record) SameDevice(other Record) bool {
	return r.Name == other.Name
}

func (r Record) FancySize() string {
	switch {
	case r.SizeKiB < 1:
		return "unknown"
	case r.SizeKiB < 999:
		return fmt.Sprintf("%d Kb", r.SizeKiB)
	case r.SizeKiB < 999999:
		return fmt.Sprintf("%d Mb", r.SizeKiB/1000)
	default:
		return fmt.Sprintf("%d Gb", r.SizeKiB/1000000)
	}
}

// FancyName is the label, or the UUID when there is no label, followed by
// the rendered size.
func (r Record) FancyName() string {
	if r.Label != "" {
		return r.Label + " (" + r.FancySize() + ")"
	}
	return r.FSUUID + " (" + r.FancySize() + ")"
}

func (r Record) String() string {
	return fmt.Sprintf("%s (label=%q fstype=%q uuid=%q size=%s class=%s)",
		r.Name, r.Label, r.FSType, r.FSUUID, r.FancySize(), r.Class)
}

func (r Record) MarshalZerologObject(e *zerolog.Event) {
	e.Str("name", r.Name).
		Str("label", r.Label).
		Str("fstype", r.FSType).
		Str("uuid", r.FSUUID).
		Str("size", r.FancySize()).
		Str("class", r.Class.String())
}
