package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"text/tabwriter"
	"time"

	"carro-de-som/internal/config"
	"carro-de-som/internal/migrations"
	"carro-de-som/internal/store"
	"carro-de-som/pkg/models"

	"go.uber.org/zap"
)

func main() {
	var (
		status      = flag.String("status", models.ChargeStatusPending, "Статус записей для вывода: pending, paid, delivered")
		limit       = flag.Int("limit", 50, "Максимум записей для вывода")
		purgeOlder  = flag.Duration("purge-older", 0, "Удалить записи старше указанного срока (например, 720h)")
		showMigrate = flag.Bool("migrations", false, "Показать статус миграций")
	)
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal("Ошибка инициализации логгера:", err)
	}
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Ошибка загрузки конфигурации", zap.Error(err))
	}

	if *showMigrate {
		if err := migrations.GetMigrationStatus(&cfg.Database, logger); err != nil {
			logger.Fatal("Ошибка получения статуса миграций", zap.Error(err))
		}
		return
	}

	ctx := context.Background()

	s, err := store.NewStore(ctx, &cfg.Database, logger)
	if err != nil {
		logger.Fatal("Ошибка подключения к базе данных", zap.Error(err))
	}
	defer s.Close()

	if *purgeOlder > 0 {
		removed, err := s.Charges().PurgeOlderThan(ctx, time.Now().Add(-*purgeOlder))
		if err != nil {
			logger.Fatal("Ошибка очистки журнала", zap.Error(err))
		}
		logger.Info("Журнал очищен",
			zap.Int64("removed", removed),
			zap.Duration("older_than", *purgeOlder))
		return
	}

	records, err := s.Charges().ListByStatus(ctx, *status, *limit)
	if err != nil {
		logger.Fatal("Ошибка получения записей", zap.Error(err))
	}

	if err := printRecords(os.Stdout, records); err != nil {
		logger.Fatal("Ошибка вывода", zap.Error(err))
	}
}

// printRecords выводит записи журнала таблицей
func printRecords(w io.Writer, records []*models.ChargeRecord) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CHARGE\tUSER\tMODE\tAMOUNT\tSTATUS\tDELIVERIES\tCREATED\tTEXT")
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.2f\t%s\t%d\t%s\t%s\n",
			r.ChargeID,
			r.UserID,
			r.Mode,
			r.Amount,
			r.Status,
			r.Deliveries,
			r.CreatedAt.Format(time.RFC3339),
			truncate(r.Text, 40))
	}
	return tw.Flush()
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-1]) + "…"
}
