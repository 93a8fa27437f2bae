package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"
	"github.com/rs/zerolog/log"

	"github.com/gajzzs/blockd/internal/device"
	"github.com/gajzzs/blockd/internal/disk"
	"github.com/gajzzs/blockd/internal/monitor"
)

var ErrNameTaken = errors.New("bus name already owned")

// Conn is the part of *dbus.Conn the facade needs.
type Conn interface {
	Export(v interface{}, path dbus.ObjectPath, iface string) error
	ExportWithMap(v interface{}, mapping map[string]string, path dbus.ObjectPath, iface string) error
	Emit(path dbus.ObjectPath, name string, values ...interface{}) error
	RequestName(name string, flags dbus.RequestNameFlags) (dbus.RequestNameReply, error)
	ReleaseName(name string) (dbus.ReleaseNameReply, error)
}

// Block is the object exported on the system bus. Side-effecting methods
// run one at a time; property reads never wait for them.
type Block struct {
	registry *device.Registry
	ctrl     *disk.Controller
	iface    string
	path     dbus.ObjectPath

	opMu sync.Mutex

	connMu sync.RWMutex
	conn   Conn
}

func NewBlock(registry *device.Registry, ctrl *disk.Controller, busName, objectPath string) *Block {
	if busName == "" {
		busName = DefaultBusName
	}
	if objectPath == "" {
		objectPath = DefaultObjectPath
	}
	return &Block{
		registry: registry,
		ctrl:     ctrl,
		iface:    busName,
		path:     dbus.ObjectPath(objectPath),
	}
}

// Export registers the object, its properties and introspection data, then
// claims the bus name.
func (b *Block) Export(conn Conn) error {
	if err := conn.ExportWithMap(b, Methods, b.path, b.iface); err != nil {
		return fmt.Errorf("failed to export %s: %w", b.iface, err)
	}
	if err := conn.Export(&properties{b: b}, b.path, propertiesInterface); err != nil {
		return fmt.Errorf("failed to export properties: %w", err)
	}
	node := introspect.NewIntrospectable(b.introspection())
	if err := conn.Export(node, b.path, introspectInterface); err != nil {
		return fmt.Errorf("failed to export introspection: %w", err)
	}

	reply, err := conn.RequestName(b.iface, dbus.NameFlagDoNotQueue)
	if err != nil {
		b.unexport(conn)
		return fmt.Errorf("failed to request name %s: %w", b.iface, err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		b.unexport(conn)
		return fmt.Errorf("%s: %w", b.iface, ErrNameTaken)
	}

	b.connMu.Lock()
	b.conn = conn
	b.connMu.Unlock()

	log.Info().Str("name", b.iface).Str("path", string(b.path)).Msg("exported on system bus")
	return nil
}

// Unexport removes the object from the bus and gives the name back, so a
// later Export on the same connection can claim it again.
func (b *Block) Unexport() error {
	b.connMu.Lock()
	conn := b.conn
	b.conn = nil
	b.connMu.Unlock()
	if conn == nil {
		return nil
	}

	b.unexport(conn)
	reply, err := conn.ReleaseName(b.iface)
	if err != nil {
		return fmt.Errorf("failed to release name %s: %w", b.iface, err)
	}
	if reply != dbus.ReleaseNameReplyReleased {
		log.Warn().Str("name", b.iface).Uint32("reply", uint32(reply)).Msg("bus name was not ours")
	}
	log.Info().Str("name", b.iface).Msg("released from system bus")
	return nil
}

func (b *Block) unexport(conn Conn) {
	for _, iface := range []string{b.iface, propertiesInterface, introspectInterface} {
		if err := conn.Export(nil, b.path, iface); err != nil {
			log.Warn().Err(err).Str("interface", iface).Msg("unexport failed")
		}
	}
}

// Notify forwards a monitor event as a bus signal followed by a
// PropertiesChanged for disks. It is a monitor.Handler.
func (b *Block) Notify(ev monitor.Event) {
	b.connMu.RLock()
	conn := b.conn
	b.connMu.RUnlock()
	if conn == nil {
		return
	}

	var member string
	switch ev.Kind {
	case monitor.Added:
		member = SignalAdded
	case monitor.Changed:
		member = SignalChanged
	case monitor.Removed:
		member = SignalRemoved
	default:
		return
	}

	if err := conn.Emit(b.path, b.iface+"."+member, ToWire(ev.Record)); err != nil {
		log.Warn().Err(err).Str("signal", member).Msg("emit failed")
	}

	changed := map[string]dbus.Variant{PropDisks: dbus.MakeVariant(b.disks())}
	if err := conn.Emit(b.path, propertiesInterface+".PropertiesChanged", b.iface, changed, []string{}); err != nil {
		log.Warn().Err(err).Msg("emit PropertiesChanged failed")
	}
}

func (b *Block) disks() []WireRecord {
	return toWireList(b.registry.Snapshot())
}

func (b *Block) Rescan() (bool, *dbus.Error) {
	b.opMu.Lock()
	defer b.opMu.Unlock()

	if err := b.ctrl.Rescan().Wait(context.Background()); err != nil {
		log.Error().Err(err).Msg("rescan failed")
		return false, nil
	}
	return true, nil
}

func (b *Block) Info(name string) (WireRecord, *dbus.Error) {
	return ToWire(b.ctrl.Info(name)), nil
}

func (b *Block) Mount(name string) (bool, *dbus.Error) {
	b.opMu.Lock()
	defer b.opMu.Unlock()

	rec := b.ctrl.Info(name)
	if err := b.ctrl.Mount(rec, ""); err != nil {
		log.Error().Err(err).Str("disk", name).Msg("mount failed")
		return false, nil
	}
	log.Info().Object("record", rec).Msg("mounted")
	return true, nil
}

func (b *Block) Unmount(name string) (bool, *dbus.Error) {
	b.opMu.Lock()
	defer b.opMu.Unlock()

	rec := b.ctrl.Info(name)
	if err := b.ctrl.Unmount(rec); err != nil {
		log.Error().Err(err).Str("disk", name).Msg("unmount failed")
		return false, nil
	}
	log.Info().Object("record", rec).Msg("unmounted")
	return true, nil
}

func (b *Block) Fsck(name string) (bool, *dbus.Error) {
	b.opMu.Lock()
	defer b.opMu.Unlock()

	rec := b.ctrl.Info(name)
	if err := b.ctrl.Fsck(rec).Wait(context.Background()); err != nil {
		log.Error().Err(err).Str("disk", name).Msg("fsck failed")
		return false, nil
	}
	return true, nil
}

func (b *Block) Mkfs(name, fstype string) (bool, *dbus.Error) {
	b.opMu.Lock()
	defer b.opMu.Unlock()

	rec := b.ctrl.Info(name)
	if err := b.ctrl.Mkfs(rec, fstype).Wait(context.Background()); err != nil {
		log.Error().Err(err).Str("disk", name).Str("fstype", fstype).Msg("mkfs failed")
		return false, nil
	}
	log.Info().Object("record", rec).Str("fstype", fstype).Msg("formatted")
	return true, nil
}

// properties implements org.freedesktop.DBus.Properties by hand so that
// supported is recomputed on every read.
type properties struct {
	b *Block
}

func (p *properties) Get(iface, name string) (dbus.Variant, *dbus.Error) {
	if iface != p.b.iface {
		return dbus.Variant{}, unknownInterface(iface)
	}
	switch name {
	case PropDisks:
		return dbus.MakeVariant(p.b.disks()), nil
	case PropSupported:
		return dbus.MakeVariant(p.b.ctrl.Supported()), nil
	default:
		return dbus.Variant{}, dbus.NewError("org.freedesktop.DBus.Error.UnknownProperty",
			[]interface{}{"unknown property " + name})
	}
}

func (p *properties) GetAll(iface string) (map[string]dbus.Variant, *dbus.Error) {
	if iface != p.b.iface {
		return nil, unknownInterface(iface)
	}
	return map[string]dbus.Variant{
		PropDisks:     dbus.MakeVariant(p.b.disks()),
		PropSupported: dbus.MakeVariant(p.b.ctrl.Supported()),
	}, nil
}

func (p *properties) Set(iface, name string, _ dbus.Variant) *dbus.Error {
	if iface != p.b.iface {
		return unknownInterface(iface)
	}
	return dbus.NewError("org.freedesktop.DBus.Error.PropertyReadOnly",
		[]interface{}{"property " + name + " is read-only"})
}

func unknownInterface(iface string) *dbus.Error {
	return dbus.NewError("org.freedesktop.DBus.Error.UnknownInterface",
		[]interface{}{"unknown interface " + iface})
}

func (b *Block) introspection() *introspect.Node {
	record := "(ssssii)"
	boolOut := introspect.Arg{Name: "ok", Type: "b", Direction: "out"}
	nameIn := introspect.Arg{Name: "name", Type: "s", Direction: "in"}

	return &introspect.Node{
		Name: string(b.path),
		Interfaces: []introspect.Interface{
			introspect.IntrospectData,
			{
				Name: propertiesInterface,
				Methods: []introspect.Method{
					{Name: "Get", Args: []introspect.Arg{
						{Name: "interface", Type: "s", Direction: "in"},
						{Name: "property", Type: "s", Direction: "in"},
						{Name: "value", Type: "v", Direction: "out"},
					}},
					{Name: "GetAll", Args: []introspect.Arg{
						{Name: "interface", Type: "s", Direction: "in"},
						{Name: "props", Type: "a{sv}", Direction: "out"},
					}},
					{Name: "Set", Args: []introspect.Arg{
						{Name: "interface", Type: "s", Direction: "in"},
						{Name: "property", Type: "s", Direction: "in"},
						{Name: "value", Type: "v", Direction: "in"},
					}},
				},
				Signals: []introspect.Signal{
					{Name: "PropertiesChanged", Args: []introspect.Arg{
						{Name: "interface", Type: "s"},
						{Name: "changed_properties", Type: "a{sv}"},
						{Name: "invalidated_properties", Type: "as"},
					}},
				},
			},
			{
				Name: b.iface,
				Methods: []introspect.Method{
					{Name: "rescan", Args: []introspect.Arg{boolOut}},
					{Name: "info", Args: []introspect.Arg{nameIn, {Name: "disk", Type: record, Direction: "out"}}},
					{Name: "mount", Args: []introspect.Arg{nameIn, boolOut}},
					{Name: "unmount", Args: []introspect.Arg{nameIn, boolOut}},
					{Name: "fsck", Args: []introspect.Arg{nameIn, boolOut}},
					{Name: "mkfs", Args: []introspect.Arg{nameIn, {Name: "fstype", Type: "s", Direction: "in"}, boolOut}},
				},
				Signals: []introspect.Signal{
					{Name: SignalAdded, Args: []introspect.Arg{{Name: "disk", Type: record}}},
					{Name: SignalChanged, Args: []introspect.Arg{{Name: "disk", Type: record}}},
					{Name: SignalRemoved, Args: []introspect.Arg{{Name: "disk", Type: record}}},
				},
				Properties: []introspect.Property{
					{Name: PropDisks, Type: "a" + record, Access: "read"},
					{Name: PropSupported, Type: "as", Access: "read"},
				},
			},
		},
	}
}
