package service

import (
	"math"

	"github.com/gajzzs/blockd/internal/device"
)

// D-Bus names used when the configuration does not override them.
const (
	DefaultBusName    = "org.blockd.Block"
	DefaultObjectPath = "/org/blockd/Block"

	propertiesInterface = "org.freedesktop.DBus.Properties"
	introspectInterface = "org.freedesktop.DBus.Introspectable"

	SignalAdded   = "Added"
	SignalChanged = "Changed"
	SignalRemoved = "Removed"

	PropDisks     = "disks"
	PropSupported = "supported"
)

// Methods maps Go method names on Block to their bus member names.
var Methods = map[string]string{
	"Rescan":  "rescan",
	"Info":    "info",
	"Mount":   "mount",
	"Unmount": "unmount",
	"Fsck":    "fsck",
	"Mkfs":    "mkfs",
}

// WireRecord is a device record as it travels over the bus, signature
// (ssssii): name, label, fs type, fs uuid, size in KiB, class.
type WireRecord struct {
	Name   string
	Label  string
	FSType string
	FSUUID string
	Size   int32
	Type   int32
}

func ToWire(r device.Record) WireRecord {
	size := r.SizeKiB
	if size > math.MaxInt32 {
		size = math.MaxInt32
	}
	return WireRecord{
		Name:   r.Name,
		Label:  r.Label,
		FSType: r.FSType,
		FSUUID: r.FSUUID,
		Size:   int32(size),
		Type:   int32(r.Class),
	}
}

func (w WireRecord) Record() device.Record {
	return device.Record{
		Name:    w.Name,
		Label:   w.Label,
		FSType:  w.FSType,
		FSUUID:  w.FSUUID,
		SizeKiB: int64(w.Size),
		Class:   device.Class(w.Type),
	}
}

func toWireList(records []device.Record) []WireRecord {
	out := make([]WireRecord, 0, len(records))
	for _, r := range records {
		out = append(out, ToWire(r))
	}
	return out
}
