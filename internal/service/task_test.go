package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitCtx(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestTaskLifecycle(t *testing.T) {
	m := NewTaskManager(context.Background(), map[string]Job{
		"ok":   func(context.Context) (any, error) { return 42, nil },
		"fail": func(context.Context) (any, error) { return nil, errors.New("boom") },
	})

	st, created, err := m.Create("ok", "")
	require.NoError(t, err)
	assert.True(t, created)
	done, err := m.Wait(waitCtx(t), st.TaskID)
	require.NoError(t, err)
	assert.Equal(t, StatusDone, done.Status)
	assert.Equal(t, 42, done.Result)
	assert.NotNil(t, done.FinishedAt)

	st, _, err = m.Create("fail", "")
	require.NoError(t, err)
	failed, err := m.Wait(waitCtx(t), st.TaskID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, failed.Status)
	assert.Equal(t, "boom", failed.Error)

	_, _, err = m.Create("unknown", "")
	assert.Error(t, err)
}

func TestTaskDeduplicatesByRequestID(t *testing.T) {
	release := make(chan struct{})
	m := NewTaskManager(context.Background(), map[string]Job{
		"slow": func(ctx context.Context) (any, error) {
			<-release
			return "ok", nil
		},
	})
	first, created, err := m.Create("slow", "req-1")
	require.NoError(t, err)
	require.True(t, created)
	second, created, err := m.Create("slow", " req-1 ")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.TaskID, second.TaskID)
	close(release)
	_, err = m.Wait(waitCtx(t), first.TaskID)
	require.NoError(t, err)
}

func TestTaskRunsOneAtATimeAndCancels(t *testing.T) {
	started := make(chan struct{}, 2)
	m := NewTaskManager(context.Background(), map[string]Job{
		"block": func(ctx context.Context) (any, error) {
			started <- struct{}{}
			<-ctx.Done()
			return nil, ctx.Err()
		},
	})
	a, _, err := m.Create("block", "")
	require.NoError(t, err)
	b, _, err := m.Create("block", "")
	require.NoError(t, err)

	<-started
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, started, 0, "第二个任务应在排队")

	stA, _ := m.Get(a.TaskID)
	stB, _ := m.Get(b.TaskID)
	running, pending := stA, stB
	if stB.Status == StatusRunning {
		running, pending = stB, stA
	}
	assert.Equal(t, StatusRunning, running.Status)
	assert.Equal(t, StatusPending, pending.Status)

	canceled, ok := m.Cancel(pending.TaskID)
	require.True(t, ok)
	assert.Equal(t, StatusCanceled, canceled.Status)

	canceled, ok = m.Cancel(running.TaskID)
	require.True(t, ok)
	assert.Equal(t, StatusCanceled, canceled.Status)

	final, err := m.Wait(waitCtx(t), running.TaskID)
	require.NoError(t, err)
	assert.Equal(t, StatusCanceled, final.Status)

	_, ok = m.Cancel("missing")
	assert.False(t, ok)
}

func TestTaskExpiry(t *testing.T) {
	m := NewTaskManager(context.Background(), map[string]Job{
		"ok": func(context.Context) (any, error) { return nil, nil },
	})
	now := time.Now()
	m.now = func() time.Time { return now }
	st, _, err := m.Create("ok", "")
	require.NoError(t, err)
	_, err = m.Wait(waitCtx(t), st.TaskID)
	require.NoError(t, err)

	now = now.Add(2 * defaultTaskTTL)
	_, ok := m.Get(st.TaskID)
	assert.False(t, ok)
}
