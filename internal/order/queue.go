package order

import (
	"sync"

	"go.uber.org/zap"
)

// Queue выполняет задачи одного пользователя строго в порядке поступления.
// Задачи разных пользователей выполняются параллельно, на каждого активного
// пользователя приходится одна горутина, которая завершается, когда очередь пуста.
type Queue struct {
	mu      sync.Mutex
	pending map[string][]func()
	tasks   sync.WaitGroup
	logger  *zap.Logger
}

// NewQueue создает очередь задач по пользователям
func NewQueue(logger *zap.Logger) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{
		pending: make(map[string][]func()),
		logger:  logger,
	}
}

// Enqueue ставит задачу в очередь пользователя и не блокирует вызывающего
func (q *Queue) Enqueue(userID string, task func()) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.tasks.Add(1)
	tasks, running := q.pending[userID]
	q.pending[userID] = append(tasks, task)
	if !running {
		go q.run(userID)
	}
}

// Active возвращает число пользователей с незавершенными задачами
func (q *Queue) Active() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Wait ожидает завершения всех поставленных задач
func (q *Queue) Wait() {
	q.tasks.Wait()
}

// run разбирает очередь пользователя; ключ остается в map, пока задача выполняется
func (q *Queue) run(userID string) {
	for {
		q.mu.Lock()
		tasks := q.pending[userID]
		if len(tasks) == 0 {
			delete(q.pending, userID)
			q.mu.Unlock()
			return
		}
		task := tasks[0]
		tasks[0] = nil
		q.pending[userID] = tasks[1:]
		q.mu.Unlock()

		q.exec(userID, task)
	}
}

func (q *Queue) exec(userID string, task func()) {
	defer q.tasks.Done()
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("паника в задаче пользователя",
				zap.String("user_id", userID),
				zap.Any("panic", r))
		}
	}()
	task()
}
