// Package backend decides which inference endpoint the bridge talks to and
// keeps the on-disk model cache.
package backend

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/pocketllama/chat-relay/pkg/logger"

	"github.com/pocketllama/chat-relay/internal/upstream"
)

// Mode is the runtime backend selection.
type Mode string

const (
	ModeLocal Mode = "local"
	ModeCloud Mode = "cloud"
	ModeNone  Mode = "none"
)

// Target maps a mode to its upstream dispatch target. Only local and cloud
// are dispatchable.
func (m Mode) Target() upstream.Target {
	if m == ModeLocal {
		return upstream.TargetLocal
	}
	return upstream.TargetCloud
}

// Provider exposes the current backend mode. The relay queries it per
// request instead of reading shared process state.
type Provider interface {
	Mode() Mode
}

// Detector probes the local daemon once at startup and holds the result.
type Detector struct {
	client upstream.Client
	cache  *ModelCache
	logger *logger.Logger

	// force is "local", "cloud" or "auto".
	force     string
	hasAPIKey bool

	mu   sync.RWMutex
	mode Mode
}

// NewDetector creates a detector. Detect must run before the first Mode call;
// until then the mode is none.
func NewDetector(client upstream.Client, cache *ModelCache, force string, hasAPIKey bool, log *logger.Logger) *Detector {
	return &Detector{
		client:    client,
		cache:     cache,
		logger:    log,
		force:     force,
		hasAPIKey: hasAPIKey,
		mode:      ModeNone,
	}
}

// Mode implements Provider.
func (d *Detector) Mode() Mode {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.mode
}

// Detect resolves the backend mode. Forced cloud short-circuits; otherwise
// the local daemon is probed and its model list cached. When the probe fails,
// forced local means no backend at all, while auto falls back to cloud even
// without an API key so cached model listing keeps working.
func (d *Detector) Detect(ctx context.Context) Mode {
	mode := d.resolve(ctx)

	d.mu.Lock()
	d.mode = mode
	d.mu.Unlock()

	d.logger.Info("backend mode resolved", zap.String("mode", string(mode)))
	return mode
}

func (d *Detector) resolve(ctx context.Context) Mode {
	if d.force == "cloud" {
		return ModeCloud
	}

	tags, err := d.client.ListLocalModels(ctx)
	if err == nil {
		if d.cache != nil && len(tags.Models) > 0 {
			d.cache.Save(tags.Models)
		}
		return ModeLocal
	}

	if d.force == "local" {
		d.logger.Error("local mode forced but Ollama is not responding", zap.Error(err))
		return ModeNone
	}
	if !d.hasAPIKey {
		d.logger.Warn("local Ollama not found and no API key set, cloud mode will serve cached models only")
	}
	return ModeCloud
}

// Static is a fixed-mode Provider for tests and forced configurations.
type Static Mode

// Mode implements Provider.
func (s Static) Mode() Mode { return Mode(s) }
