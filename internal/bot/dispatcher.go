package bot

import (
	"context"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// Sequencer выполняет задачи одного пользователя по очереди
type Sequencer interface {
	Enqueue(userID string, task func())
}

// Dispatcher раздает обновления по очередям чатов: сообщения одного чата,
// включая загрузку музыки, обрабатываются в порядке поступления,
// разные чаты обрабатываются параллельно
type Dispatcher struct {
	handler *Handler
	queue   Sequencer
	logger  *zap.Logger
}

// NewDispatcher создает диспетчер обновлений
func NewDispatcher(handler *Handler, queue Sequencer, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		handler: handler,
		queue:   queue,
		logger:  logger,
	}
}

// Dispatch ставит обновление в очередь его чата. Обработка не прерывается
// отменой ctx, чтобы уже принятые команды завершились при остановке.
func (d *Dispatcher) Dispatch(ctx context.Context, update tgbotapi.Update) {
	msg := update.Message
	if msg == nil || msg.Chat == nil {
		return
	}

	chatID := msg.Chat.ID
	taskCtx := context.WithoutCancel(ctx)
	d.queue.Enqueue(strconv.FormatInt(chatID, 10), func() {
		if err := d.handler.HandleUpdate(taskCtx, update); err != nil {
			d.logger.Error("ошибка обработки обновления",
				zap.Int64("chat_id", chatID),
				zap.Error(err))
		}
	})
}
