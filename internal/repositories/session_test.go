package repositories

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alfredoptarigan/report-console/internal/state"
)

func TestSessionRepositoryCreateAndFind(t *testing.T) {
	repo, err := NewSessionRepository(4, nil)
	require.NoError(t, err)

	session := &Session{App: state.New()}
	require.NoError(t, repo.Create(session))

	assert.NotEqual(t, uuid.Nil, session.ID)
	assert.False(t, session.CreatedAt.IsZero())

	found, err := repo.FindByID(session.ID)
	require.NoError(t, err)
	assert.Same(t, session, found)
	assert.Equal(t, 1, repo.Count())

	_, err = repo.FindByID(uuid.New())
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSessionRepositoryRequiresState(t *testing.T) {
	repo, err := NewSessionRepository(4, nil)
	require.NoError(t, err)

	assert.Error(t, repo.Create(nil))
	assert.Error(t, repo.Create(&Session{}))
	assert.Zero(t, repo.Count())
}

func TestSessionRepositoryEvictsLeastRecentlyUsed(t *testing.T) {
	repo, err := NewSessionRepository(2, nil)
	require.NoError(t, err)

	first := &Session{App: state.New()}
	second := &Session{App: state.New()}
	third := &Session{App: state.New()}
	require.NoError(t, repo.Create(first))
	require.NoError(t, repo.Create(second))

	// Touch first so second becomes the eviction candidate.
	_, err = repo.FindByID(first.ID)
	require.NoError(t, err)
	require.NoError(t, repo.Create(third))

	assert.Equal(t, 2, repo.Count())
	_, err = repo.FindByID(second.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = repo.FindByID(first.ID)
	assert.NoError(t, err)
}

func TestSessionRepositoryDelete(t *testing.T) {
	repo, err := NewSessionRepository(2, nil)
	require.NoError(t, err)

	session := &Session{App: state.New()}
	require.NoError(t, repo.Create(session))

	assert.True(t, repo.Delete(session.ID))
	assert.False(t, repo.Delete(session.ID))
	assert.Zero(t, repo.Count())
}

func TestNewSessionRepositoryRejectsInvalidSize(t *testing.T) {
	_, err := NewSessionRepository(0, nil)
	assert.Error(t, err)
}
