package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// 任务状态
const (
	StatusPending  = "pending"
	StatusRunning  = "running"
	StatusDone     = "done"
	StatusFailed   = "failed"
	StatusCanceled = "canceled"
)

// Job 后台任务，ctx 在任务被取消时结束
type Job func(ctx context.Context) (any, error)

type TaskStatus struct {
	TaskID     string     `json:"task_id"`
	Kind       string     `json:"kind"`
	Status     string     `json:"status"`
	Result     any        `json:"result,omitempty"`
	Error      string     `json:"error,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	ExpiresAt  time.Time  `json:"expires_at"`
}

type task struct {
	id         string
	kind       string
	status     string
	requestID  string
	result     any
	err        string
	cancel     context.CancelFunc
	createdAt  time.Time
	finishedAt time.Time
	expiresAt  time.Time
}

// TaskManager 异步任务管理，同一时间只执行一个任务，其余排队
type TaskManager struct {
	mu        sync.Mutex
	jobs      map[string]Job
	tasks     map[string]*task
	requests  map[string]string
	sem       chan struct{}
	ttl       time.Duration
	now       func() time.Time
	parentCtx context.Context
}

const defaultTaskTTL = 30 * time.Minute

// NewTaskManager 创建任务管理器，jobs 为可提交的任务类型
func NewTaskManager(ctx context.Context, jobs map[string]Job) *TaskManager {
	return &TaskManager{
		jobs:      jobs,
		tasks:     make(map[string]*task),
		requests:  make(map[string]string),
		sem:       make(chan struct{}, 1),
		ttl:       defaultTaskTTL,
		now:       time.Now,
		parentCtx: ctx,
	}
}

// Kinds 支持的任务类型
func (m *TaskManager) Kinds() []string {
	kinds := make([]string, 0, len(m.jobs))
	for k := range m.jobs {
		kinds = append(kinds, k)
	}
	return kinds
}

// Create 提交任务。requestID 相同且未过期时返回已有任务，created 为 false。
func (m *TaskManager) Create(kind, requestID string) (TaskStatus, bool, error) {
	job, ok := m.jobs[kind]
	if !ok {
		return TaskStatus{}, false, fmt.Errorf("不支持的任务类型: %s", kind)
	}
	requestID = strings.TrimSpace(requestID)
	now := m.now()

	m.mu.Lock()
	m.cleanupExpiredLocked(now)
	if requestID != "" {
		if existingID, ok := m.requests[requestID]; ok {
			if t, ok2 := m.tasks[existingID]; ok2 {
				out := buildTaskStatus(t)
				m.mu.Unlock()
				return out, false, nil
			}
			delete(m.requests, requestID)
		}
	}

	ctx, cancel := context.WithCancel(m.parentCtx)
	t := &task{
		id:        uuid.NewString(),
		kind:      kind,
		status:    StatusPending,
		requestID: requestID,
		cancel:    cancel,
		createdAt: now,
		expiresAt: now.Add(m.ttl),
	}
	m.tasks[t.id] = t
	if requestID != "" {
		m.requests[requestID] = t.id
	}
	out := buildTaskStatus(t)
	m.mu.Unlock()

	go m.run(ctx, t, job)
	return out, true, nil
}

// Get 查询任务状态
func (m *TaskManager) Get(taskID string) (TaskStatus, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleanupExpiredLocked(m.now())
	t, ok := m.tasks[taskID]
	if !ok {
		return TaskStatus{}, false
	}
	return buildTaskStatus(t), true
}

// Cancel 取消排队中或运行中的任务；已结束的任务原样返回
func (m *TaskManager) Cancel(taskID string) (TaskStatus, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleanupExpiredLocked(m.now())
	t, ok := m.tasks[taskID]
	if !ok {
		return TaskStatus{}, false
	}
	switch t.status {
	case StatusDone, StatusFailed, StatusCanceled:
	default:
		t.cancel()
		m.finishLocked(t, StatusCanceled, nil, "任务已取消")
	}
	return buildTaskStatus(t), true
}

// Wait 等待任务结束，测试与命令行使用
func (m *TaskManager) Wait(ctx context.Context, taskID string) (TaskStatus, error) {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		st, ok := m.Get(taskID)
		if !ok {
			return TaskStatus{}, fmt.Errorf("任务不存在: %s", taskID)
		}
		switch st.Status {
		case StatusDone, StatusFailed, StatusCanceled:
			return st, nil
		}
		select {
		case <-ctx.Done():
			return st, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (m *TaskManager) run(ctx context.Context, t *task, job Job) {
	select {
	case m.sem <- struct{}{}:
	case <-ctx.Done():
		return
	}
	defer func() { <-m.sem }()

	m.mu.Lock()
	if t.status != StatusPending {
		m.mu.Unlock()
		return
	}
	t.status = StatusRunning
	m.mu.Unlock()

	log.Info().Str("task", t.id).Str("kind", t.kind).Msg("任务开始")
	result, err := job(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()
	if t.status == StatusCanceled {
		return
	}
	if err != nil {
		log.Error().Str("task", t.id).Str("kind", t.kind).Err(err).Msg("任务失败")
		m.finishLocked(t, StatusFailed, result, err.Error())
		return
	}
	log.Info().Str("task", t.id).Str("kind", t.kind).Msg("任务完成")
	m.finishLocked(t, StatusDone, result, "")
}

func (m *TaskManager) finishLocked(t *task, status string, result any, errMsg string) {
	t.status = status
	t.result = result
	t.err = errMsg
	t.finishedAt = m.now()
	t.expiresAt = t.finishedAt.Add(m.ttl)
	if t.requestID != "" {
		delete(m.requests, t.requestID)
	}
}

func (m *TaskManager) cleanupExpiredLocked(now time.Time) {
	for id, t := range m.tasks {
		if t.status != StatusPending && t.status != StatusRunning && now.After(t.expiresAt) {
			delete(m.tasks, id)
		}
	}
	for rid, tid := range m.requests {
		if _, ok := m.tasks[tid]; !ok {
			delete(m.requests, rid)
		}
	}
}

func buildTaskStatus(t *task) TaskStatus {
	out := TaskStatus{
		TaskID:    t.id,
		Kind:      t.kind,
		Status:    t.status,
		Error:     t.err,
		CreatedAt: t.createdAt,
		ExpiresAt: t.expiresAt,
	}
	if !t.finishedAt.IsZero() {
		fin := t.finishedAt
		out.FinishedAt = &fin
	}
	if t.status == StatusDone || t.status == StatusFailed {
		out.Result = t.result
	}
	return out
}
