package store

import (
	"context"
	"fmt"
	"time"

	"carro-de-som/internal/config"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Store: подключение к журналу платежей
type Store interface {
	Charges() ChargeRepository
	DB() *pgxpool.Pool
	Close() error
}

type store struct {
	db      *pgxpool.Pool
	logger  *zap.Logger
	charges ChargeRepository
}

// NewStore создает новое подключение к базе данных
func NewStore(ctx context.Context, cfg *config.DatabaseConfig, logger *zap.Logger) (Store, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	poolConfig, err := pgxpool.ParseConfig(cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("ошибка парсинга DSN: %w", err)
	}

	poolConfig.MaxConns = 5
	poolConfig.MinConns = 1
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute

	db, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("ошибка подключения к базе данных: %w", err)
	}

	if err := db.Ping(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ошибка проверки подключения к базе данных: %w", err)
	}

	logger.Info("успешное подключение к базе данных PostgreSQL")

	return &store{
		db:      db,
		logger:  logger,
		charges: NewChargeRepository(db, logger),
	}, nil
}

// Charges возвращает репозиторий журнала платежей
func (s *store) Charges() ChargeRepository {
	return s.charges
}

// DB возвращает подключение к базе данных
func (s *store) DB() *pgxpool.Pool {
	return s.db
}

// Close закрывает подключение к базе данных
func (s *store) Close() error {
	s.logger.Info("закрытие подключения к базе данных")
	s.db.Close()
	return nil
}
