package keypool

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
)

// ErrDepleted возвращается, когда все ключи исчерпаны
var ErrDepleted = errors.New("все ключи исчерпаны")

// Key представляет ключ API и его позицию в пуле
type Key struct {
	Index int
	Value string
}

// Pool хранит ключи провайдера синтеза речи и переключает их при исчерпании квоты.
// Исчерпанный ключ больше не используется до перезапуска процесса.
type Pool struct {
	mu        sync.Mutex
	keys      []string
	exhausted []bool
	cursor    int
	remaining int
}

// New создает пул из ключей в порядке загрузки
func New(keys ...string) (*Pool, error) {
	seen := make(map[string]struct{}, len(keys))
	clean := make([]string, 0, len(keys))
	for _, k := range keys {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		clean = append(clean, k)
	}

	if len(clean) == 0 {
		return nil, fmt.Errorf("не передано ни одного ключа")
	}

	return &Pool{
		keys:      clean,
		exhausted: make([]bool, len(clean)),
		remaining: len(clean),
	}, nil
}

// LoadFile читает ключи из файла: один ключ на строку, #: комментарий
func LoadFile(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("ошибка открытия файла ключей: %w", err)
	}
	defer file.Close()

	var keys []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		keys = append(keys, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("ошибка чтения файла ключей: %w", err)
	}

	return keys, nil
}

// Current возвращает первый неисчерпанный ключ начиная с курсора
func (p *Pool) Current() (Key, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.remaining == 0 {
		return Key{}, ErrDepleted
	}

	for i := 0; i < len(p.keys); i++ {
		idx := (p.cursor + i) % len(p.keys)
		if !p.exhausted[idx] {
			p.cursor = idx
			return Key{Index: idx, Value: p.keys[idx]}, nil
		}
	}

	return Key{}, ErrDepleted
}

// Advance помечает ключ исчерпанным и сдвигает курсор на следующий.
// Повторный вызов для уже исчерпанного ключа ничего не меняет.
func (p *Pool) Advance(k Key) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if k.Index < 0 || k.Index >= len(p.keys) || p.keys[k.Index] != k.Value {
		return
	}

	if !p.exhausted[k.Index] {
		p.exhausted[k.Index] = true
		p.remaining--
	}

	if p.cursor == k.Index {
		p.cursor = (k.Index + 1) % len(p.keys)
	}
}

// Remaining возвращает количество неисчерпанных ключей
func (p *Pool) Remaining() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.remaining
}

// Size возвращает общее количество ключей
func (p *Pool) Size() int {
	return len(p.keys)
}

// IsExhausted проверяет, исчерпан ли ключ
func (p *Pool) IsExhausted(value string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, k := range p.keys {
		if k == value {
			return p.exhausted[i]
		}
	}
	return false
}
