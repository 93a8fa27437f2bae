package service

import (
	"errors"
	"testing"

	"github.com/kardianos/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// mockUnit stands in for the OS service manager. Methods the manager never
// calls fall through to the nil embedded interface.
type mockUnit struct {
	service.Service
	mock.Mock
}

func (m *mockUnit) String() string { return ServiceName }

func (m *mockUnit) Install() error   { return m.Called().Error(0) }
func (m *mockUnit) Uninstall() error { return m.Called().Error(0) }
func (m *mockUnit) Start() error     { return m.Called().Error(0) }
func (m *mockUnit) Stop() error      { return m.Called().Error(0) }
func (m *mockUnit) Restart() error   { return m.Called().Error(0) }

func (m *mockUnit) Status() (service.Status, error) {
	args := m.Called()
	return args.Get(0).(service.Status), args.Error(1)
}

func newTestManager(status service.Status, err error) (*ServiceManager, *mockUnit) {
	unit := &mockUnit{}
	unit.On("Status").Return(status, err)
	return &ServiceManager{service: unit}, unit
}

func TestServiceManager_Install(t *testing.T) {
	t.Parallel()

	sm, unit := newTestManager(service.StatusUnknown, service.ErrNotInstalled)
	unit.On("Install").Return(nil).Once()
	require.NoError(t, sm.Install())
	unit.AssertExpectations(t)

	sm, unit = newTestManager(service.StatusStopped, nil)
	require.ErrorIs(t, sm.Install(), ErrInstalled)
	unit.AssertNotCalled(t, "Install")
}

func TestServiceManager_ControlNeedsUnit(t *testing.T) {
	t.Parallel()

	sm, unit := newTestManager(service.StatusUnknown, service.ErrNotInstalled)

	require.ErrorIs(t, sm.Start(), ErrNotInstalled)
	require.ErrorIs(t, sm.Stop(), ErrNotInstalled)
	require.ErrorIs(t, sm.Restart(), ErrNotInstalled)
	require.ErrorIs(t, sm.Uninstall(), ErrNotInstalled)

	for _, method := range []string{"Start", "Stop", "Restart", "Uninstall"} {
		unit.AssertNotCalled(t, method)
	}
}

func TestServiceManager_ControlPassesThrough(t *testing.T) {
	t.Parallel()

	sm, unit := newTestManager(service.StatusRunning, nil)
	failed := errors.New("exit status 1")
	unit.On("Start").Return(nil)
	unit.On("Stop").Return(failed)
	unit.On("Restart").Return(nil)
	unit.On("Uninstall").Return(nil)

	require.NoError(t, sm.Start())
	require.ErrorIs(t, sm.Stop(), failed)
	require.NoError(t, sm.Restart())
	require.NoError(t, sm.Uninstall())
	unit.AssertExpectations(t)
}

func TestServiceManager_Status(t *testing.T) {
	t.Parallel()

	cases := []struct {
		status service.Status
		err    error
		want   string
	}{
		{service.StatusRunning, nil, "running"},
		{service.StatusStopped, nil, "stopped"},
		{service.StatusUnknown, nil, "unknown"},
		{service.Status(7), nil, "unknown (7)"},
		{service.StatusUnknown, service.ErrNotInstalled, "not installed"},
	}
	for _, tc := range cases {
		sm, _ := newTestManager(tc.status, tc.err)
		got, err := sm.Status()
		require.NoError(t, err)
		assert.Equal(t, tc.want, got)
	}

	failed := errors.New("systemctl: permission denied")
	sm, _ := newTestManager(service.StatusUnknown, failed)
	got, err := sm.Status()
	require.ErrorIs(t, err, failed)
	assert.Equal(t, "unknown", got)
}
