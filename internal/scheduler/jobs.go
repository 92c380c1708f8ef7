package scheduler

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// OrderEvicter удаляет заброшенные заказы
type OrderEvicter interface {
	Evict(now time.Time) int
	Len() int
}

// ActiveOrdersRecorder принимает число заказов в памяти
type ActiveOrdersRecorder interface {
	SetActiveOrders(n int)
}

// Cleaner: любая структура с периодической очисткой (например, rate limiter)
type Cleaner interface {
	Cleanup() int
}

// OrderEvictionJob удаляет заказы, не менявшиеся дольше TTL
type OrderEvictionJob struct {
	orders   OrderEvicter
	cleaners []Cleaner
	metrics  ActiveOrdersRecorder
	logger   *zap.Logger
	now      func() time.Time
}

// NewOrderEvictionJob создает задачу очистки заказов
func NewOrderEvictionJob(orders OrderEvicter, metrics ActiveOrdersRecorder, logger *zap.Logger, cleaners ...Cleaner) *OrderEvictionJob {
	return &OrderEvictionJob{
		orders:   orders,
		cleaners: cleaners,
		metrics:  metrics,
		logger:   logger,
		now:      time.Now,
	}
}

func (j *OrderEvictionJob) Name() string { return "order_eviction" }

// Run удаляет устаревшие заказы и обновляет метрику
func (j *OrderEvictionJob) Run(ctx context.Context) error {
	evicted := j.orders.Evict(j.now())
	for _, c := range j.cleaners {
		c.Cleanup()
	}

	active := j.orders.Len()
	if j.metrics != nil {
		j.metrics.SetActiveOrders(active)
	}

	if evicted > 0 {
		j.logger.Info("удалены устаревшие заказы",
			zap.Int("evicted", evicted),
			zap.Int("active", active))
	}
	return nil
}

// JournalPurger удаляет старые записи журнала
type JournalPurger interface {
	PurgeOlderThan(ctx context.Context, before time.Time) (int64, error)
}

// JournalPurgeJob чистит журнал платежей старше retention
type JournalPurgeJob struct {
	journal   JournalPurger
	retention time.Duration
	logger    *zap.Logger
	now       func() time.Time
}

// NewJournalPurgeJob создает задачу очистки журнала
func NewJournalPurgeJob(journal JournalPurger, retention time.Duration, logger *zap.Logger) *JournalPurgeJob {
	return &JournalPurgeJob{
		journal:   journal,
		retention: retention,
		logger:    logger,
		now:       time.Now,
	}
}

func (j *JournalPurgeJob) Name() string { return "journal_purge" }

// Run удаляет записи старше retention
func (j *JournalPurgeJob) Run(ctx context.Context) error {
	removed, err := j.journal.PurgeOlderThan(ctx, j.now().Add(-j.retention))
	if err != nil {
		return fmt.Errorf("ошибка очистки журнала: %w", err)
	}
	if removed > 0 {
		j.logger.Info("журнал платежей очищен", zap.Int64("removed", removed))
	}
	return nil
}
