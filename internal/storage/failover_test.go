package storage

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"testing"
	"time"

	"kerigma/internal/config"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func configFor(addr string) config.RedisConfig {
	return config.RedisConfig{Address: addr}
}

type mockStore struct {
	mock.Mock
}

func (m *mockStore) Load(ctx context.Context, key string) (string, bool, error) {
	args := m.Called(ctx, key)
	return args.String(0), args.Bool(1), args.Error(2)
}

func (m *mockStore) Save(ctx context.Context, key, value string) error {
	return m.Called(ctx, key, value).Error(0)
}

func (m *mockStore) Remove(ctx context.Context, key string) error {
	return m.Called(ctx, key).Error(0)
}

func TestFailoverStore(t *testing.T) {
	ctx := context.Background()
	logger := zerolog.New(io.Discard)

	t.Run("PrimarySuccess", func(t *testing.T) {
		primary := new(mockStore)
		fallback := NewMemoryStore()
		s := NewFailoverStore(primary, fallback, &logger)

		primary.On("Save", ctx, "q", "v").Return(nil).Once()
		primary.On("Load", ctx, "q").Return("v", true, nil).Once()

		require.NoError(t, s.Save(ctx, "q", "v"))
		val, ok, err := s.Load(ctx, "q")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "v", val)
		assert.False(t, s.isDown.Load())
		primary.AssertExpectations(t)

		// The fallback mirrors every write.
		mirrored, ok, _ := fallback.Load(ctx, "q")
		assert.True(t, ok)
		assert.Equal(t, "v", mirrored)
	})

	t.Run("PrimaryFailsOnSave", func(t *testing.T) {
		primary := new(mockStore)
		fallback := NewMemoryStore()
		s := NewFailoverStore(primary, fallback, &logger)

		require.NoError(t, fallback.Save(ctx, "q", "old"))
		primary.On("Save", ctx, "q", "v").Return(errors.New("down")).Once()

		assert.Error(t, s.Save(ctx, "q", "v"))
		assert.True(t, s.isDown.Load())

		// The rejected value never reaches the mirror, and while down the
		// primary is not consulted for reads.
		val, ok, err := s.Load(ctx, "q")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "old", val)
		primary.AssertExpectations(t)
	})

	t.Run("PrimaryFailsOnLoad", func(t *testing.T) {
		primary := new(mockStore)
		fallback := NewMemoryStore()
		require.NoError(t, fallback.Save(ctx, "q", "cached"))
		s := NewFailoverStore(primary, fallback, &logger)

		primary.On("Load", ctx, "q").Return("", false, errors.New("down")).Once()

		val, ok, err := s.Load(ctx, "q")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "cached", val)
		assert.True(t, s.isDown.Load())
	})

	t.Run("Recovery", func(t *testing.T) {
		primary := new(mockStore)
		s := NewFailoverStore(primary, NewMemoryStore(), &logger)
		s.isDown.Store(true)
		s.lastCheck = time.Now().Add(-2 * time.Minute)

		primary.On("Remove", ctx, "q").Return(nil).Once()
		primary.On("Load", ctx, "q").Return("", false, nil).Once()

		require.NoError(t, s.Remove(ctx, "q"))
		assert.False(t, s.isDown.Load())
		_, ok, err := s.Load(ctx, "q")
		require.NoError(t, err)
		assert.False(t, ok)
		primary.AssertExpectations(t)
	})

	t.Run("RemoveFailover", func(t *testing.T) {
		primary := new(mockStore)
		fallback := NewMemoryStore()
		require.NoError(t, fallback.Save(ctx, "q", "v"))
		s := NewFailoverStore(primary, fallback, &logger)
		primary.On("Remove", ctx, "q").Return(errors.New("down")).Once()

		assert.Error(t, s.Remove(ctx, "q"))
		assert.True(t, s.isDown.Load())

		// The mirror keeps what the primary still holds.
		_, ok, _ := fallback.Load(ctx, "q")
		assert.True(t, ok)
	})
}

func TestFailoverRedisOverSQLite(t *testing.T) {
	ctx := context.Background()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := NewRedisClient(configFor(mr.Addr()))
	defer Close(client)

	mirror, err := NewSQLiteStore(filepath.Join(t.TempDir(), "mirror.db"), nil)
	require.NoError(t, err)
	defer mirror.Close()

	s := NewFailoverStore(NewRedisStore(client, "kerigma:"), mirror, nil)
	require.NoError(t, s.Save(ctx, "q", "accepted"))

	mr.Close()

	// Writes the primary cannot take are refused, not parked in the mirror.
	assert.Error(t, s.Save(ctx, "q", "rejected"))
	assert.Error(t, s.Remove(ctx, "q"))

	val, ok, err := s.Load(ctx, "q")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "accepted", val)
}
