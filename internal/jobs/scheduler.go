package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/Proton-105/himera-trader/pkg/config"
)

type Scheduler interface {
	RegisterTasks() error
	Start() error
	Shutdown()
}

type scheduler struct {
	asynqScheduler *asynq.Scheduler
	cfg            config.JobsConfig
	log            *slog.Logger
}

func NewScheduler(redisOpt asynq.RedisConnOpt, cfg config.JobsConfig, log *slog.Logger) Scheduler {
	if log == nil {
		log = slog.Default()
	}

	return &scheduler{
		asynqScheduler: asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{
			Location: time.UTC,
			Logger:   newAsynqLogger(log),
			PostEnqueueFunc: func(info *asynq.TaskInfo, err error) {
				if err != nil && !errors.Is(err, asynq.ErrDuplicateTask) {
					log.Warn("scheduler: enqueue failed", slog.Any("error", err))
				}
			},
		}),
		cfg: cfg,
		log: log,
	}
}

// RegisterTasks schedules the watch list refresh on the configured cron spec.
func (s *scheduler) RegisterTasks() error {
	if len(s.cfg.WatchSymbols) == 0 {
		s.log.Info("scheduler: no watch symbols, price refresh not scheduled")
		return nil
	}

	task, err := NewPriceRefreshTask(s.cfg.WatchSymbols)
	if err != nil {
		return err
	}

	entryID, err := s.asynqScheduler.Register(s.cfg.RefreshCron, task)
	if err != nil {
		return err
	}

	s.log.InfoContext(context.Background(), "scheduler: registered price refresh",
		slog.String("entry_id", entryID),
		slog.String("cron", s.cfg.RefreshCron),
		slog.Any("symbols", s.cfg.WatchSymbols),
	)

	return nil
}

func (s *scheduler) Start() error {
	s.log.InfoContext(context.Background(), "scheduler: starting")
	return s.asynqScheduler.Start()
}

func (s *scheduler) Shutdown() {
	s.log.InfoContext(context.Background(), "scheduler: shutting down")
	s.asynqScheduler.Shutdown()
}
