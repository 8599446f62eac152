package backend

import (
	"encoding/json"
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/pocketllama/chat-relay/pkg/logger"
)

// ModelCache persists the last known model list so cloud and offline modes
// can still answer the models endpoint. Cache problems are logged and
// swallowed; a stale or missing cache is never fatal.
type ModelCache struct {
	path   string
	logger *logger.Logger
	mu     sync.Mutex
}

// NewModelCache creates a cache backed by the given file.
func NewModelCache(path string, log *logger.Logger) *ModelCache {
	return &ModelCache{path: path, logger: log}
}

type cacheFile struct {
	Models []json.RawMessage `json:"models"`
}

// Save writes the model list to disk.
func (c *ModelCache) Save(models []json.RawMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := json.Marshal(cacheFile{Models: models})
	if err != nil {
		c.logger.Warn("failed to encode model cache", zap.Error(err))
		return
	}
	if err := os.WriteFile(c.path, data, 0o644); err != nil {
		c.logger.Warn("failed to write model cache", zap.Error(err))
		return
	}
	c.logger.Info("models cached", zap.Int("count", len(models)), zap.String("path", c.path))
}

// Load reads the cached model list. A missing or corrupt file yields an
// empty list.
func (c *ModelCache) Load() []json.RawMessage {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := os.ReadFile(c.path)
	if err != nil {
		if !os.IsNotExist(err) {
			c.logger.Warn("failed to read model cache", zap.Error(err))
		}
		return []json.RawMessage{}
	}

	var f cacheFile
	if err := json.Unmarshal(data, &f); err != nil {
		c.logger.Warn("failed to parse model cache", zap.Error(err))
		return []json.RawMessage{}
	}
	if f.Models == nil {
		return []json.RawMessage{}
	}
	return f.Models
}
