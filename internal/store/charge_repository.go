package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"carro-de-som/pkg/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

// ErrChargeNotFound: записи с таким charge_id нет в журнале
var ErrChargeNotFound = errors.New("платеж не найден в журнале")

// ChargeRepository: журнал платежей: создание, оплата, доставка.
// Журнал только для аудита, состояние заказов из него не восстанавливается.
type ChargeRepository interface {
	RecordCharge(ctx context.Context, record *models.ChargeRecord) error
	MarkPaid(ctx context.Context, chargeID string, at time.Time) error
	MarkDelivered(ctx context.Context, chargeID string, at time.Time) error
	GetByChargeID(ctx context.Context, chargeID string) (*models.ChargeRecord, error)
	ListByStatus(ctx context.Context, status string, limit int) ([]*models.ChargeRecord, error)
	PurgeOlderThan(ctx context.Context, before time.Time) (int64, error)
}

// DBTX: общие методы pgxpool.Pool, pgx.Conn и pgx.Tx
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresChargeRepository реализует ChargeRepository для PostgreSQL
type PostgresChargeRepository struct {
	db     DBTX
	logger *zap.Logger
}

// NewChargeRepository создает новый репозиторий журнала
func NewChargeRepository(db DBTX, logger *zap.Logger) ChargeRepository {
	return &PostgresChargeRepository{
		db:     db,
		logger: logger,
	}
}

const chargeColumns = `id, charge_id, order_id, user_id, text, mode, amount, status, deliveries, created_at, paid_at, delivered_at`

// RecordCharge добавляет выставленный счет; повторная запись того же charge_id не создает дубль
func (r *PostgresChargeRepository) RecordCharge(ctx context.Context, record *models.ChargeRecord) error {
	query := `
		INSERT INTO charges (charge_id, order_id, user_id, text, mode, amount, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (charge_id) DO UPDATE SET charge_id = EXCLUDED.charge_id
		RETURNING id`

	if record.Status == "" {
		record.Status = models.ChargeStatusPending
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}

	err := r.db.QueryRow(ctx, query,
		record.ChargeID,
		record.OrderID,
		record.UserID,
		record.Text,
		string(record.Mode),
		record.Amount,
		record.Status,
		record.CreatedAt,
	).Scan(&record.ID)
	if err != nil {
		return fmt.Errorf("ошибка записи платежа: %w", err)
	}

	r.logger.Debug("платеж записан в журнал",
		zap.Int64("id", record.ID),
		zap.String("charge_id", record.ChargeID))

	return nil
}

// MarkPaid отмечает оплату; повторная отметка не меняет время оплаты
func (r *PostgresChargeRepository) MarkPaid(ctx context.Context, chargeID string, at time.Time) error {
	query := `
		UPDATE charges
		SET status = CASE WHEN status = $3 THEN $2 ELSE status END,
		    paid_at = COALESCE(paid_at, $4)
		WHERE charge_id = $1`

	tag, err := r.db.Exec(ctx, query, chargeID, models.ChargeStatusPaid, models.ChargeStatusPending, at)
	if err != nil {
		return fmt.Errorf("ошибка отметки оплаты: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrChargeNotFound
	}
	return nil
}

// MarkDelivered отмечает доставку и увеличивает счетчик доставок
func (r *PostgresChargeRepository) MarkDelivered(ctx context.Context, chargeID string, at time.Time) error {
	query := `
		UPDATE charges
		SET status = $2, delivered_at = $3, deliveries = deliveries + 1
		WHERE charge_id = $1`

	tag, err := r.db.Exec(ctx, query, chargeID, models.ChargeStatusDelivered, at)
	if err != nil {
		return fmt.Errorf("ошибка отметки доставки: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrChargeNotFound
	}
	return nil
}

// GetByChargeID получает запись по id платежа
func (r *PostgresChargeRepository) GetByChargeID(ctx context.Context, chargeID string) (*models.ChargeRecord, error) {
	query := `SELECT ` + chargeColumns + ` FROM charges WHERE charge_id = $1`

	record, err := scanCharge(r.db.QueryRow(ctx, query, chargeID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrChargeNotFound
		}
		return nil, fmt.Errorf("ошибка получения платежа: %w", err)
	}
	return record, nil
}

// ListByStatus возвращает последние записи с указанным статусом
func (r *PostgresChargeRepository) ListByStatus(ctx context.Context, status string, limit int) ([]*models.ChargeRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT ` + chargeColumns + ` FROM charges WHERE status = $1 ORDER BY created_at DESC LIMIT $2`

	rows, err := r.db.Query(ctx, query, status, limit)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка платежей: %w", err)
	}
	defer rows.Close()

	var records []*models.ChargeRecord
	for rows.Next() {
		record, err := scanCharge(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка чтения платежа: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка чтения списка платежей: %w", err)
	}

	return records, nil
}

// PurgeOlderThan удаляет записи, созданные раньше before
func (r *PostgresChargeRepository) PurgeOlderThan(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM charges WHERE created_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("ошибка очистки журнала: %w", err)
	}

	if n := tag.RowsAffected(); n > 0 {
		r.logger.Info("удалены старые записи журнала", zap.Int64("count", n))
	}
	return tag.RowsAffected(), nil
}

func scanCharge(row pgx.Row) (*models.ChargeRecord, error) {
	var (
		record models.ChargeRecord
		mode   string
	)
	err := row.Scan(
		&record.ID,
		&record.ChargeID,
		&record.OrderID,
		&record.UserID,
		&record.Text,
		&mode,
		&record.Amount,
		&record.Status,
		&record.Deliveries,
		&record.CreatedAt,
		&record.PaidAt,
		&record.DeliveredAt,
	)
	if err != nil {
		return nil, err
	}
	record.Mode = models.Mode(mode)
	return &record, nil
}
