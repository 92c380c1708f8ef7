package order

import (
	"sync"
	"time"

	"carro-de-som/pkg/models"
)

// Store хранит заказы в памяти, по одному на пользователя.
// Все изменения заказа одного пользователя сериализуются.
type Store struct {
	mu    sync.Mutex
	slots map[string]*slot
	ttl   time.Duration
	now   func() time.Time
}

type slot struct {
	mu        sync.Mutex
	refs      int // количество держателей и ожидающих; защищено Store.mu
	order     *models.Order
	updatedAt time.Time
}

// NewStore создает новое хранилище заказов. ttl <= 0 отключает вытеснение.
func NewStore(ttl time.Duration) *Store {
	return &Store{
		slots: make(map[string]*slot),
		ttl:   ttl,
		now:   time.Now,
	}
}

// Session дает эксклюзивный доступ к заказу одного пользователя
type Session struct {
	store    *Store
	userID   string
	slot     *slot
	released bool
}

// Acquire блокирует заказ пользователя до вызова Release
func (s *Store) Acquire(userID string) *Session {
	s.mu.Lock()
	sl, ok := s.slots[userID]
	if !ok {
		sl = &slot{}
		s.slots[userID] = sl
	}
	sl.refs++
	s.mu.Unlock()

	sl.mu.Lock()
	return &Session{store: s, userID: userID, slot: sl}
}

// Release снимает блокировку; повторный вызов безопасен
func (ss *Session) Release() {
	if ss.released {
		return
	}
	ss.released = true
	ss.slot.mu.Unlock()

	ss.store.mu.Lock()
	defer ss.store.mu.Unlock()
	ss.slot.refs--
	if ss.slot.refs == 0 && ss.slot.order == nil {
		delete(ss.store.slots, ss.userID)
	}
}

// Get возвращает копию заказа
func (ss *Session) Get() (models.Order, bool) {
	if ss.slot.order == nil {
		return models.Order{}, false
	}
	return *ss.slot.order, true
}

// Put заменяет заказ пользователя
func (ss *Session) Put(o models.Order) {
	now := ss.store.now()
	o.UserID = ss.userID
	o.UpdatedAt = now
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	ss.slot.order = &o
	ss.slot.updatedAt = now
}

// Update изменяет заказ через fn; если заказа нет: ничего не делает.
// При ошибке fn заказ не меняется.
func (ss *Session) Update(fn func(o *models.Order) error) (models.Order, bool, error) {
	if ss.slot.order == nil {
		return models.Order{}, false, nil
	}

	draft := *ss.slot.order
	if err := fn(&draft); err != nil {
		return *ss.slot.order, true, err
	}

	ss.Put(draft)
	return draft, true, nil
}

// Delete удаляет заказ пользователя
func (ss *Session) Delete() {
	ss.slot.order = nil
}

// Get возвращает копию заказа пользователя
func (s *Store) Get(userID string) (models.Order, bool) {
	ss := s.Acquire(userID)
	defer ss.Release()
	return ss.Get()
}

// Put заменяет заказ пользователя
func (s *Store) Put(userID string, o models.Order) {
	ss := s.Acquire(userID)
	defer ss.Release()
	ss.Put(o)
}

// Update изменяет заказ пользователя, если он есть
func (s *Store) Update(userID string, fn func(o *models.Order) error) (models.Order, bool, error) {
	ss := s.Acquire(userID)
	defer ss.Release()
	return ss.Update(fn)
}

// Len возвращает количество отслеживаемых пользователей
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.slots)
}

// Evict удаляет заказы, не изменявшиеся дольше ttl. Заблокированные заказы не трогаются.
func (s *Store) Evict(now time.Time) int {
	if s.ttl <= 0 {
		return 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	for userID, sl := range s.slots {
		// refs == 0 означает, что слот никем не заблокирован
		if sl.refs != 0 {
			continue
		}
		if now.Sub(sl.updatedAt) > s.ttl {
			delete(s.slots, userID)
			evicted++
		}
	}
	return evicted
}
