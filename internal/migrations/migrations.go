package migrations

import (
	"database/sql"
	"embed"
	"fmt"

	"carro-de-som/internal/config"

	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
)

//go:embed sql/*.sql
var migrationsFS embed.FS

const migrationsDir = "sql"

// RunMigrations применяет миграции журнала к базе данных
func RunMigrations(cfg *config.DatabaseConfig, logger *zap.Logger) error {
	logger.Info("начало применения миграций")

	db, err := open(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := goose.Up(db, migrationsDir); err != nil {
		return fmt.Errorf("ошибка применения миграций: %w", err)
	}

	logger.Info("миграции успешно применены")
	return nil
}

// GetMigrationStatus выводит статус миграций
func GetMigrationStatus(cfg *config.DatabaseConfig, logger *zap.Logger) error {
	logger.Info("проверка статуса миграций")

	db, err := open(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := goose.Status(db, migrationsDir); err != nil {
		return fmt.Errorf("ошибка получения статуса миграций: %w", err)
	}

	return nil
}

func open(cfg *config.DatabaseConfig) (*sql.DB, error) {
	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("postgres"); err != nil {
		return nil, fmt.Errorf("ошибка установки диалекта: %w", err)
	}

	db, err := sql.Open("postgres", DSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("ошибка подключения к базе данных для миграций: %w", err)
	}
	return db, nil
}

// DSN возвращает строку подключения в формате URL для lib/pq
func DSN(cfg *config.DatabaseConfig) string {
	return fmt.Sprintf("postgresql://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.User,
		cfg.Password,
		cfg.Host,
		cfg.Port,
		cfg.Name,
		cfg.SSLMode,
	)
}
