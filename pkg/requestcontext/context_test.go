package requestcontext

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAccessors(t *testing.T) {
	ctx := context.Background()

	t.Run("empty context yields zero values", func(t *testing.T) {
		assert.Empty(t, RequestID(ctx))
		assert.Empty(t, Subject(ctx))
		assert.WithinDuration(t, time.Now(), Now(ctx), time.Second)
	})

	t.Run("injected values are returned", func(t *testing.T) {
		fixed := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
		c := WithTime(WithSubject(WithRequestID(ctx, "req-1"), "issuer-a"), fixed)
		assert.Equal(t, "req-1", RequestID(c))
		assert.Equal(t, "issuer-a", Subject(c))
		assert.Equal(t, fixed, Now(c))
	})
}
