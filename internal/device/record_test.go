package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecord_Valid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		rec  Record
		want bool
	}{
		{"complete", Record{Name: "/dev/sdb1", FSUUID: "ABCD-1234", Class: ClassPartition}, true},
		{"disk_without_label_or_size", Record{Name: "/dev/sdb", FSUUID: "u", Class: ClassDisk}, true},
		{"missing_name", Record{FSUUID: "ABCD-1234", Class: ClassPartition}, false},
		{"missing_uuid", Record{Name: "/dev/sdb1", Class: ClassPartition}, false},
		{"unknown_class", Record{Name: "/dev/sdb1", FSUUID: "ABCD-1234"}, false},
		{"zero", Record{}, false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.rec.Valid())
		})
	}
}

func TestRecord_SameDevice_ComparesNameOnly(t *testing.T) {
	t.Parallel()

	a := Record{Name: "/dev/sdb1", Label: "OLD", SizeKiB: 10, FSUUID: "x", Class: ClassPartition}
	b := Record{Name: "/dev/sdb1", Label: "NEW", SizeKiB: 99999, FSUUID: "y", Class: ClassDisk}
	c := Record{Name: "/dev/sdc1", Label: "OLD", SizeKiB: 10, FSUUID: "x", Class: ClassPartition}

	assert.True(t, a.SameDevice(b))
	assert.True(t, b.SameDevice(a))
	assert.False(t, a.SameDevice(c))
}

func TestRecord_FancySize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		size int64
		want string
	}{
		{-5, "unknown"},
		{0, "unknown"},
		{1, "1 Kb"},
		{998, "998 Kb"},
		{999, "0 Mb"},
		{1500, "1 Mb"},
		{999998, "999 Mb"},
		{999999, "0 Gb"},
		{2000000, "2 Gb"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Record{SizeKiB: tt.size}.FancySize(), "size %d", tt.size)
	}
}

func TestRecord_FancyName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "BACKUP (2 Mb)", Record{Label: "BACKUP", FSUUID: "u", SizeKiB: 2048}.FancyName())
	assert.Equal(t, "ABCD-1234 (unknown)", Record{FSUUID: "ABCD-1234"}.FancyName())
}

func TestParseClass(t *testing.T) {
	t.Parallel()

	assert.Equal(t, ClassDisk, ParseClass("disk"))
	assert.Equal(t, ClassPartition, ParseClass("partition"))
	assert.Equal(t, ClassUnknown, ParseClass("loop"))
	assert.Equal(t, ClassUnknown, ParseClass(""))

	assert.Equal(t, "Disk", ClassDisk.String())
	assert.Equal(t, "Partition", ClassPartition.String())
	assert.Equal(t, "None", ClassUnknown.String())
}
