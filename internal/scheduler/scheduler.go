package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Scheduler управляет запуском периодических задач
type Scheduler struct {
	logger *zap.Logger
	jobs   []Job
}

// Job интерфейс для периодических задач
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// NewScheduler создает новый планировщик задач
func NewScheduler(logger *zap.Logger) *Scheduler {
	return &Scheduler{
		logger: logger,
		jobs:   make([]Job, 0),
	}
}

// AddJob добавляет задачу в планировщик
func (s *Scheduler) AddJob(job Job) {
	s.jobs = append(s.jobs, job)
}

// Start запускает планировщик с указанным интервалом и блокируется до отмены ctx
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) {
	s.logger.Info("запуск планировщика задач",
		zap.Duration("interval", interval),
		zap.Int("jobs_count", len(s.jobs)))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("остановка планировщика задач")
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce выполняет все задачи один раз; ошибка одной задачи не мешает остальным
func (s *Scheduler) RunOnce(ctx context.Context) int {
	failed := 0
	for _, job := range s.jobs {
		if ctx.Err() != nil {
			return failed
		}

		started := time.Now()
		if err := job.Run(ctx); err != nil {
			failed++
			s.logger.Error("ошибка выполнения задачи",
				zap.String("job", job.Name()),
				zap.Error(err))
			continue
		}

		s.logger.Debug("задача выполнена",
			zap.String("job", job.Name()),
			zap.Duration("duration", time.Since(started)))
	}
	return failed
}
