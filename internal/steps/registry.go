package steps

import (
	"fmt"
	"sort"
	"sync"
)

// Registry — реестр исполнителей шагов.
//
// Позволяет регистрировать и получать реализации Executor по имени.
// Потокобезопасен.
type Registry struct {
	mu        sync.RWMutex
	executors map[string]Executor
}

// NewRegistry создаёт пустой реестр.
func NewRegistry() *Registry {
	return &Registry{
		executors: make(map[string]Executor),
	}
}

// DefaultRegistry создаёт реестр со всеми стандартными исполнителями.
func DefaultRegistry() *Registry {
	r := NewRegistry()

	r.Register(NewPromptExecutor())
	r.Register(NewFetchExecutor())
	r.Register(NewManualExecutor())

	return r
}

// Register регистрирует исполнителя в реестре.
// Если исполнитель с таким именем уже существует, он будет перезаписан.
func (r *Registry) Register(e Executor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.executors[e.Name()] = e
}

// Get возвращает исполнителя по имени.
// Возвращает ErrExecutorNotFound, если исполнитель не найден.
func (r *Registry) Get(name string) (Executor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, exists := r.executors[name]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrExecutorNotFound, name)
	}

	return e, nil
}

// Has проверяет, зарегистрирован ли исполнитель.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.executors[name]
	return exists
}

// Names возвращает список всех зарегистрированных имён.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.executors))
	for name := range r.executors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count возвращает количество зарегистрированных исполнителей.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.executors)
}
