package config

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHolder_ConfigAndPath(t *testing.T) {
	cfg := DefaultConfig()
	h := NewHolder(cfg, "/etc/helix-sync/config.toml")

	assert.Same(t, cfg, h.Config())
	assert.Equal(t, "/etc/helix-sync/config.toml", h.Path())
}

func TestHolder_UpdateIsVisibleToReaders(t *testing.T) {
	h := NewHolder(DefaultConfig(), "/a")

	updated := DefaultConfig()
	updated.Logging.LogLevel = "debug"
	h.Update(updated)

	assert.Equal(t, "debug", h.Config().Logging.LogLevel)
}

func TestHolder_ConcurrentAccess(t *testing.T) {
	h := NewHolder(DefaultConfig(), "/a")

	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(2)

		go func() {
			defer wg.Done()
			_ = h.Config()
		}()

		go func() {
			defer wg.Done()
			h.Update(DefaultConfig())
		}()
	}

	wg.Wait()
}
