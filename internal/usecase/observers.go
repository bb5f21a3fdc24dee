package usecase

import (
	"sync"

	"ChartSync/internal/domain/models"
	domrepo "ChartSync/internal/domain/repository"
	applogger "ChartSync/pkg/logger"
)

// ObserverSet holds chart observers until they unsubscribe.
type ObserverSet struct {
	mu        sync.RWMutex
	next      uint64
	observers map[uint64]domrepo.ChartObserver
	l         *applogger.Logger
}

func NewObserverSet(l *applogger.Logger) *ObserverSet {
	if l == nil {
		l = applogger.Nop()
	}
	return &ObserverSet{observers: make(map[uint64]domrepo.ChartObserver), l: l}
}

// Subscribe registers o and returns a func that removes it. The func is idempotent.
func (s *ObserverSet) Subscribe(o domrepo.ChartObserver) (unsubscribe func()) {
	s.mu.Lock()
	id := s.next
	s.next++
	s.observers[id] = o
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.observers, id)
			s.mu.Unlock()
		})
	}
}

// Len reports the number of registered observers.
func (s *ObserverSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.observers)
}

func (s *ObserverSet) snapshot() []domrepo.ChartObserver {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domrepo.ChartObserver, 0, len(s.observers))
	for _, o := range s.observers {
		out = append(out, o)
	}
	return out
}

func (s *ObserverSet) notifyUpdated(info models.ChartInfo, key models.ChartKey) {
	for _, o := range s.snapshot() {
		s.safeCall(key, func() { o.ChartUpdated(info, key) })
	}
}

func (s *ObserverSet) notifyNotFound(key models.ChartKey) {
	for _, o := range s.snapshot() {
		s.safeCall(key, func() { o.ChartNotFound(key) })
	}
}

// safeCall keeps one misbehaving observer from breaking delivery to the others.
func (s *ObserverSet) safeCall(key models.ChartKey, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.l.Error("chart observer panicked", applogger.ChartKey(key), applogger.Any("panic", r))
		}
	}()
	fn()
}
