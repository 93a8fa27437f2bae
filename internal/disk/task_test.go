package disk

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTask_WaitReturnsResult(t *testing.T) {
	t.Parallel()

	want := errors.New("boom")
	task := startTask(func() error { return want })

	require.ErrorIs(t, task.Wait(context.Background()), want)
	assert.ErrorIs(t, task.Err(), want)
}

func TestTask_ErrIsNilWhileRunning(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	task := startTask(func() error {
		<-release
		return errors.New("late")
	})

	assert.NoError(t, task.Err())
	close(release)
	<-task.Done()
	assert.Error(t, task.Err())
}

func TestTask_WaitGivesUpWithoutStoppingWork(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	task := startTask(func() error {
		<-release
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, task.Wait(ctx), context.DeadlineExceeded)

	close(release)
	require.NoError(t, task.Wait(context.Background()))
}

func TestFailedTask_IsDone(t *testing.T) {
	t.Parallel()

	task := failedTask(ErrInvalidDevice)

	select {
	case <-task.Done():
	default:
		t.Fatal("failed task should already be done")
	}
	assert.ErrorIs(t, task.Err(), ErrInvalidDevice)
}
