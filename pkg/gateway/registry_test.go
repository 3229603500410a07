package gateway

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClientRegistry(t *testing.T) {
	t.Run("should add, look up and remove clients", func(t *testing.T) {
		registry := NewClientRegistry()
		registry.Add(&Client{ID: "c1", SessionID: "s1"})
		registry.Add(&Client{ID: "c2", SessionID: "s1"})
		registry.Add(&Client{ID: "c3", SessionID: "s2"})

		assert.Len(t, registry.GetAll(), 3)
		assert.Len(t, registry.GetBySession("s1"), 2)
		assert.Len(t, registry.GetBySession("s2"), 1)

		registry.Remove("c1")
		remaining := registry.GetBySession("s1")
		assert.Len(t, remaining, 1)
		assert.Equal(t, "c2", remaining[0].ID)
	})

	t.Run("should report idle clients", func(t *testing.T) {
		registry := NewClientRegistry()
		registry.Add(&Client{ID: "old", SessionID: "s1", LastActivity: time.Now().Add(-10 * time.Minute)})
		registry.Add(&Client{ID: "new", SessionID: "s1", LastActivity: time.Now()})

		connected, idle := registry.Stats(5 * time.Minute)
		assert.Equal(t, 2, connected)
		assert.Equal(t, 1, idle)
	})

	t.Run("should refresh activity", func(t *testing.T) {
		registry := NewClientRegistry()
		registry.Add(&Client{ID: "c1", SessionID: "s1", LastActivity: time.Now().Add(-time.Hour)})

		registry.UpdateActivity("c1")

		_, idle := registry.Stats(time.Minute)
		assert.Equal(t, 0, idle)
		assert.WithinDuration(t, time.Now(), registry.GetBySession("s1")[0].LastActivity, time.Second)
	})
}
