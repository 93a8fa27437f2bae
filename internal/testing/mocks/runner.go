// Package mocks holds testify mocks shared by package tests.
package mocks

import (
	"context"
	"errors"

	"github.com/stretchr/testify/mock"
)

// ErrNotFound is what MockRunner.LookPath should return for missing tools.
var ErrNotFound = errors.New("executable file not found in $PATH")

// MockRunner is a testify mock for disk.Runner.
//
// Example:
//
//	runner := &mocks.MockRunner{}
//	runner.On("LookPath", "partprobe").Return("/usr/sbin/partprobe", nil)
//	runner.On("Run", mock.Anything, "/usr/sbin/partprobe", []string{"/dev/sdb"}).Return(nil)
type MockRunner struct {
	mock.Mock
}

func (m *MockRunner) LookPath(name string) (string, error) {
	args := m.Called(name)
	return args.String(0), args.Error(1)
}

func (m *MockRunner) Run(ctx context.Context, name string, args ...string) error {
	called := m.Called(ctx, name, args)
	return called.Error(0)
}

// Tools makes LookPath resolve exactly the given programs to /usr/sbin and
// fail for anything else.
func (m *MockRunner) Tools(programs ...string) *MockRunner {
	for _, p := range programs {
		m.On("LookPath", p).Return("/usr/sbin/"+p, nil)
	}
	m.On("LookPath", mock.Anything).Return("", ErrNotFound)
	return m
}

// MockMounter is a testify mock for disk.Mounter.
type MockMounter struct {
	mock.Mock
}

func (m *MockMounter) Mount(source, target, fstype string) error {
	return m.Called(source, target, fstype).Error(0)
}

func (m *MockMounter) Unmount(target string) error {
	return m.Called(target).Error(0)
}
