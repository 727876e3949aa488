package migration

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPendingAfter(t *testing.T) {
	names := []string{
		"20250301090000_create_stores",
		"20250301090100_create_synced_orders",
		"20250401120000_add_store_flags",
	}

	t.Run("nothing applied", func(t *testing.T) {
		assert.Equal(t, names, pendingAfter(0, names))
	})

	t.Run("partially applied", func(t *testing.T) {
		pending := pendingAfter(20250301090100, names)
		assert.Equal(t, []string{"20250401120000_add_store_flags"}, pending)
	})

	t.Run("fully applied", func(t *testing.T) {
		assert.Empty(t, pendingAfter(20250401120000, names))
	})

	t.Run("name without numeric prefix stays visible", func(t *testing.T) {
		odd := []string{"bogus_name"}
		assert.Equal(t, odd, pendingAfter(20250401120000, odd))
	})
}
