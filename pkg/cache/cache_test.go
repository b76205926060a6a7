package cache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNilClientIsNoop(t *testing.T) {
	c := NewService(nil)
	ctx := context.Background()

	assert.False(t, c.IsAvailable())
	assert.Error(t, c.Ping(ctx))
	assert.NoError(t, c.Set(ctx, "k", "v", TTLDefault))
	assert.NoError(t, c.SetUser(ctx, 1, map[string]string{"email": "a@x.com"}))
	assert.NoError(t, c.InvalidateUser(ctx, 1))
	assert.NoError(t, c.Delete(ctx))

	var dest map[string]string
	assert.ErrorIs(t, c.GetUser(ctx, 1, &dest), ErrMiss)
	assert.ErrorIs(t, c.Get(ctx, "k", &dest), ErrMiss)
}

func TestUserKey(t *testing.T) {
	assert.Equal(t, "market:user:42", userKey(42))
}
