package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"carro-de-som/internal/audio"
	"carro-de-som/internal/bot"
	"carro-de-som/internal/config"
	"carro-de-som/internal/fulfillment"
	"carro-de-som/internal/keypool"
	"carro-de-som/internal/metrics"
	"carro-de-som/internal/migrations"
	"carro-de-som/internal/order"
	"carro-de-som/internal/payment"
	"carro-de-som/internal/scheduler"
	"carro-de-som/internal/store"
	"carro-de-som/internal/tts"
	"carro-de-som/internal/webhook"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

func main() {
	// Инициализация логгера
	logger, level, err := initLogger()
	if err != nil {
		fmt.Printf("Ошибка инициализации логгера: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("запуск приложения carro-de-som")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("ошибка загрузки конфигурации", zap.Error(err))
	}
	level.SetLevel(cfg.App.GetLogLevel().Level())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metricsSystem := metrics.New(logger)

	// Ключи провайдера синтеза
	keys, err := loadKeys(cfg.TTS, logger)
	if err != nil {
		logger.Fatal("ошибка загрузки ключей TTS", zap.Error(err))
	}
	pool, err := keypool.New(keys...)
	if err != nil {
		logger.Fatal("ошибка создания пула ключей", zap.Error(err))
	}
	metricsSystem.SetGauge("tts_keys_remaining", float64(pool.Remaining()))
	logger.Info("пул ключей TTS инициализирован", zap.Int("keys", pool.Size()))

	synth := tts.NewGeminiService(logger, pool, tts.GeminiConfig{
		BaseURL: cfg.TTS.BaseURL,
		Voice:   cfg.TTS.Voice,
		Timeout: cfg.TTS.Timeout,
	}, metricsSystem)

	mixer := audio.NewMixer(logger, audio.MixerConfig{
		FFmpegPath: cfg.Mixer.FFmpegPath,
		TempDir:    cfg.Mixer.TempDir,
	})

	payments := payment.NewMercadoPagoClient(cfg.MercadoPago.AccessToken, cfg.MercadoPago.PayerEmail, cfg.MercadoPago.BaseURL, logger)

	// Журнал платежей (необязательный)
	var journal fulfillment.Journal
	var journalStore store.Store
	if cfg.Database.Enabled {
		if err := migrations.RunMigrations(&cfg.Database, logger); err != nil {
			logger.Fatal("ошибка применения миграций", zap.Error(err))
		}
		journalStore, err = store.NewStore(ctx, &cfg.Database, logger)
		if err != nil {
			logger.Fatal("ошибка инициализации базы данных", zap.Error(err))
		}
		defer journalStore.Close()
		journal = journalStore.Charges()
	} else {
		logger.Info("журнал платежей отключен")
	}

	// Telegram бот
	botAPI, err := tgbotapi.NewBotAPI(cfg.Telegram.BotToken)
	if err != nil {
		logger.Fatal("ошибка инициализации Telegram бота", zap.Error(err))
	}
	logger.Info("Telegram бот инициализирован",
		zap.String("username", botAPI.Self.UserName),
		zap.Int64("id", botAPI.Self.ID))

	messenger := bot.NewTelegramMessenger(botAPI, logger)
	orders := order.NewStore(cfg.Orders.TTL)
	queue := order.NewQueue(logger)

	engine := fulfillment.NewEngine(fulfillment.Deps{
		Orders:    orders,
		Queue:     queue,
		Synth:     synth,
		Mixer:     mixer,
		Payments:  payments,
		Messenger: messenger,
		Journal:   journal,
		Metrics:   metricsSystem,
		Logger:    logger,
	}, fulfillment.Options{
		Price:       cfg.Charge.Amount,
		Description: cfg.Charge.Description,
	})

	rateLimiter := bot.NewRateLimiter(cfg.Telegram.RateLimitPerMinute, time.Minute)
	downloader := bot.NewDownloader(botAPI, cfg.Telegram.BotToken, cfg.Orders.MaxMusicSize)
	handler := bot.NewHandler(engine, messenger, engine.Messages(), downloader, rateLimiter, logger, metricsSystem)
	dispatcher := bot.NewDispatcher(handler, queue, logger)

	// Планировщик
	taskScheduler := scheduler.NewScheduler(logger)
	taskScheduler.AddJob(scheduler.NewOrderEvictionJob(orders, metricsSystem, logger, rateLimiter))
	if journalStore != nil {
		taskScheduler.AddJob(scheduler.NewJournalPurgeJob(journalStore.Charges(), cfg.Database.Retention, logger))
	}

	metricsHandler := metrics.NewHandler(metricsSystem, logger, pool.Remaining)
	webhookHandler := webhook.NewMercadoPagoWebhookHandler(engine, cfg.MercadoPago.WebhookSecret, logger, metricsSystem)
	server := newHTTPServer(cfg.App.Port, metricsHandler, webhookHandler)

	go func() {
		logger.Info("HTTP сервер запущен", zap.String("address", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("ошибка HTTP сервера", zap.Error(err))
			stop()
		}
	}()

	go taskScheduler.Start(ctx, cfg.Orders.EvictionInterval)

	updatesDone := make(chan struct{})
	go func() {
		handleUpdates(ctx, botAPI, dispatcher, logger)
		close(updatesDone)
	}()

	logger.Info("приложение запущено и готово к работе",
		zap.String("address", fmt.Sprintf("http://localhost:%d", cfg.App.Port)))

	<-ctx.Done()
	logger.Info("получен сигнал завершения, начинаем graceful shutdown")

	botAPI.StopReceivingUpdates()
	<-updatesDone

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("ошибка при остановке HTTP сервера", zap.Error(err))
	}

	// Дожидаемся принятых команд и оплаченных заказов: все они идут через очередь пользователей
	done := make(chan struct{})
	go func() {
		engine.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		logger.Warn("не все заказы завершены до остановки")
	}

	logger.Info("приложение завершено")
}

// initLogger инициализирует логгер; уровень меняется после загрузки конфигурации
func initLogger() (*zap.Logger, zap.AtomicLevel, error) {
	config := zap.NewDevelopmentConfig()
	config.OutputPaths = []string{"stdout", "logs/app.log"}
	config.ErrorOutputPaths = []string{"stderr", "logs/error.log"}

	if err := os.MkdirAll("logs", 0755); err != nil {
		return nil, config.Level, fmt.Errorf("ошибка создания директории логов: %w", err)
	}

	logger, err := config.Build()
	return logger, config.Level, err
}

// loadKeys собирает ключи из файла и переменной окружения, порядок сохраняется
func loadKeys(cfg config.TTSConfig, logger *zap.Logger) ([]string, error) {
	var keys []string

	fileKeys, err := keypool.LoadFile(cfg.KeysFile)
	switch {
	case err == nil:
		keys = append(keys, fileKeys...)
		logger.Info("ключи загружены из файла",
			zap.String("path", cfg.KeysFile),
			zap.Int("count", len(fileKeys)))
	case errors.Is(err, os.ErrNotExist):
		logger.Info("файл ключей не найден", zap.String("path", cfg.KeysFile))
	default:
		return nil, err
	}

	keys = append(keys, cfg.APIKeys...)
	if len(keys) == 0 {
		return nil, fmt.Errorf("нет ключей: заполните %s или TTS_API_KEYS", cfg.KeysFile)
	}
	return keys, nil
}

// handleUpdates раздает обновления от Telegram по очередям чатов
func handleUpdates(ctx context.Context, botAPI *tgbotapi.BotAPI, dispatcher *bot.Dispatcher, logger *zap.Logger) {
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60

	updates := botAPI.GetUpdatesChan(updateConfig)

	for {
		select {
		case update, ok := <-updates:
			if !ok {
				return
			}
			dispatcher.Dispatch(ctx, update)

		case <-ctx.Done():
			logger.Info("остановка обработки обновлений")
			return
		}
	}
}

// newHTTPServer собирает HTTP сервер: webhook, метрики, health
func newHTTPServer(port int, metricsHandler *metrics.Handler, webhookHandler http.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metricsHandler.MetricsHandler())
	mux.HandleFunc("/health", metricsHandler.HealthHandler)
	mux.Handle("/webhook", webhookHandler)

	return &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}
