//go:build !linux

package monitor

import "errors"

var errUnsupported = errors.New("udev events are only available on linux")

type UdevSource struct{}

func NewUdevSource() *UdevSource {
	return &UdevSource{}
}

func (*UdevSource) Start() (<-chan Uevent, error) {
	return nil, errUnsupported
}

func (*UdevSource) Close() error {
	return nil
}
