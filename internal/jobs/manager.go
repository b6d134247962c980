package jobs

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"
)

// Manager describes the queue operations used by the HTTP API.
type Manager interface {
	EnqueueRefresh(ctx context.Context, symbols []string) (*asynq.TaskInfo, error)
	EnqueueCacheClear(ctx context.Context, symbols []string) (*asynq.TaskInfo, error)
	Close() error
}

type manager struct {
	client *asynq.Client
	log    *slog.Logger
}

// NewManager builds a Manager backed by an asynq client.
func NewManager(redisOpt asynq.RedisConnOpt, log *slog.Logger) Manager {
	if log == nil {
		log = slog.Default()
	}

	return &manager{
		client: asynq.NewClient(redisOpt),
		log:    log,
	}
}

// EnqueueRefresh queues a refresh. A duplicate of a pending refresh is not an error;
// the existing task stands in for it and nil info is returned.
func (m *manager) EnqueueRefresh(ctx context.Context, symbols []string) (*asynq.TaskInfo, error) {
	task, err := NewPriceRefreshTask(symbols)
	if err != nil {
		return nil, err
	}

	info, err := m.client.EnqueueContext(ctx, task)
	if errors.Is(err, asynq.ErrDuplicateTask) {
		m.log.InfoContext(ctx, "jobs: refresh already queued", slog.Any("symbols", symbols))
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	m.log.InfoContext(ctx, "jobs: refresh enqueued", slog.String("task_id", info.ID), slog.Int("symbols", len(symbols)))
	return info, nil
}

func (m *manager) EnqueueCacheClear(ctx context.Context, symbols []string) (*asynq.TaskInfo, error) {
	task, err := NewCacheClearTask(symbols)
	if err != nil {
		return nil, err
	}
	return m.client.EnqueueContext(ctx, task)
}

func (m *manager) Close() error {
	return m.client.Close()
}
