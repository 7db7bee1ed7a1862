package convo

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemoryStoreExpiry(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	s := NewMemoryStore()
	s.Now = func() time.Time { return now }

	require.NoError(t, s.Set(context.Background(), TodoKey("abc"), map[string]string{"title": "buy milk"}, 24*time.Hour))

	var got map[string]string
	ok, err := s.Get(context.Background(), TodoKey("abc"), &got)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "buy milk", got["title"])

	now = now.Add(25 * time.Hour)
	ok, err = s.Get(context.Background(), TodoKey("abc"), &got)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMemoryStoreMissIsNotError(t *testing.T) {
	s := NewMemoryStore()
	var got map[string]string
	ok, err := s.Get(context.Background(), TodoKey("nope"), &got)
	require.NoError(t, err)
	require.False(t, ok)
}
