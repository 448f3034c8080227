package attrs

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtract(t *testing.T) {
	kv := []any{"list_id", "my.list", "set_count", 3, 42, "ignored", "dangling"}

	assert.Equal(t, "my.list", ExtractString(kv, "list_id"))
	assert.Equal(t, 3, ExtractInt(kv, "set_count"))
	assert.Empty(t, ExtractString(kv, "set_count"))
	assert.Zero(t, ExtractInt(kv, "list_id"))
	assert.Empty(t, ExtractString(kv, "dangling"))
	assert.Zero(t, ExtractInt(kv, "missing"))
}
