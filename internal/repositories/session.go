package repositories

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"alfredoptarigan/report-console/internal/services"
	"alfredoptarigan/report-console/internal/state"
)

var ErrSessionNotFound = errors.New("session not found")

// Session is one browser's application state and the orchestrator that
// drives it.
type Session struct {
	ID           uuid.UUID
	App          *state.App
	Orchestrator services.Orchestrator
	CreatedAt    time.Time
}

// SessionRepository holds sessions in memory. The least recently used
// session is evicted once the store is full.
type SessionRepository interface {
	Create(session *Session) error
	FindByID(id uuid.UUID) (*Session, error)
	Delete(id uuid.UUID) bool
	Count() int
}

type sessionRepository struct {
	cache  *lru.Cache[uuid.UUID, *Session]
	logger *zap.Logger
}

func NewSessionRepository(size int, logger *zap.Logger) (SessionRepository, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cache, err := lru.NewWithEvict(size, func(id uuid.UUID, _ *Session) {
		logger.Info("session evicted", zap.String("session", id.String()))
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create session store: %w", err)
	}
	return &sessionRepository{cache: cache, logger: logger}, nil
}

func (r *sessionRepository) Create(session *Session) error {
	if session == nil || session.App == nil {
		return errors.New("session requires an application state")
	}
	if session.ID == uuid.Nil {
		session.ID = uuid.New()
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now()
	}
	r.cache.Add(session.ID, session)
	return nil
}

func (r *sessionRepository) FindByID(id uuid.UUID) (*Session, error) {
	session, ok := r.cache.Get(id)
	if !ok {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

func (r *sessionRepository) Delete(id uuid.UUID) bool {
	return r.cache.Remove(id)
}

func (r *sessionRepository) Count() int {
	return r.cache.Len()
}
