// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package datasource

import (
	"context"
	"log/slog"
	"sync"

	"github.com/patterncore/pattern/pkg/ids"
	"github.com/patterncore/pattern/pkg/perr"
)

// defaultBackpressureCapacity bounds each source's notification channel
// so a stalled consumer can't grow memory unboundedly.
const defaultBackpressureCapacity = 5000

// Notifier delivers a rendered notification to a target agent. The
// agent runtime (or, in tests, a stub) implements this.
type Notifier interface {
	Notify(ctx context.Context, agent ids.ID, text string) error
}

type sourceHandle struct {
	mu           sync.RWMutex
	source       DataSource
	buffer       *RingBuffer
	tmpl         *NotificationTemplate
	targetAgents []ids.ID
	notifyCh     chan Item
	notifyOn     bool
	paused       bool
	cancel       context.CancelFunc
}

// Coordinator owns every registered data source, buffers what each
// produces, and converts buffered items into agent notifications. Two
// coordinator-level locks are never held across an await/channel-send:
// the sources map lock only protects registration/lookup, and each
// source's own mutex (embedded in sourceHandle) protects its buffer and
// subscription state independently, so one slow source never blocks
// another.
type Coordinator struct {
	mu       sync.RWMutex
	sources  map[string]*sourceHandle
	notifier Notifier
	log      *slog.Logger
}

// New builds a Coordinator that delivers notifications through notifier.
func New(notifier Notifier, log *slog.Logger) *Coordinator {
	if log == nil {
		log = slog.Default()
	}
	return &Coordinator{
		sources:  make(map[string]*sourceHandle),
		notifier: notifier,
		log:      log,
	}
}

// Register adds src to the coordinator, wiring its buffer and
// notification template, and starts forwarding its Subscribe feed to
// targetAgents. Calling Register twice with the same source ID replaces
// the previous registration, stopping its subscription goroutine first.
func (c *Coordinator) Register(ctx context.Context, src DataSource, bufCfg BufferConfig, tmplBody string, targetAgents []ids.ID) error {
	tmpl, err := CompileTemplate(src.SourceID(), tmplBody)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if existing, ok := c.sources[src.SourceID()]; ok {
		existing.cancel()
	}

	subCtx, cancel := context.WithCancel(ctx)
	handle := &sourceHandle{
		source:       src,
		buffer:       NewRingBuffer(bufCfg),
		tmpl:         tmpl,
		targetAgents: targetAgents,
		notifyCh:     make(chan Item, defaultBackpressureCapacity),
		notifyOn:     bufCfg.Notify,
		cancel:       cancel,
	}
	c.sources[src.SourceID()] = handle
	c.mu.Unlock()

	events, err := src.Subscribe(subCtx, src.CurrentCursor())
	if err != nil {
		cancel()
		return perr.External("datasource.register", "failed to subscribe to data source", err).
			With("source_id", src.SourceID())
	}

	go c.pump(subCtx, handle, events)
	go c.deliver(subCtx, handle)
	return nil
}

// pump drains the source's event channel into its buffer and, when
// notifications are enabled, enqueues the item on the source's bounded
// notifyCh. The send is non-blocking: a full channel means the consumer
// side (deliver) is falling behind, and the spec's backpressure policy
// is to drop the newest notification rather than stall ingestion.
func (c *Coordinator) pump(ctx context.Context, h *sourceHandle, events <-chan Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if h.isPaused() {
				continue
			}
			dropped := h.buffer.Push(ev.Item)
			if dropped {
				c.log.Warn("datasource: buffer full, dropping oldest item", "source_id", h.source.SourceID())
			}

			if !h.notificationsEnabled() {
				continue
			}

			select {
			case h.notifyCh <- ev.Item:
			default:
				c.log.Warn("datasource: notification channel saturated, dropping notification", "source_id", h.source.SourceID())
			}
		}
	}
}

// deliver is the sole consumer of notifyCh: it renders each queued item
// and dispatches it to every target agent. Running as its own goroutine
// means a slow notifier never blocks pump from draining the source's
// event channel — only this source's own notifyCh backs up.
func (c *Coordinator) deliver(ctx context.Context, h *sourceHandle) {
	for {
		select {
		case <-ctx.Done():
			return
		case item := <-h.notifyCh:
			text, err := h.tmpl.Render(h.source.SourceID(), item, nil)
			if err != nil {
				c.log.Warn("datasource: notification render failed", "source_id", h.source.SourceID(), "error", err)
				continue
			}
			for _, agent := range h.targetAgents {
				if err := c.notifier.Notify(ctx, agent, text); err != nil {
					c.log.Warn("datasource: notify failed", "source_id", h.source.SourceID(), "agent", agent.String(), "error", err)
				}
			}
		}
	}
}

func (h *sourceHandle) notificationsEnabled() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.notifyOn
}

func (h *sourceHandle) isPaused() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.paused
}

// SetNotificationsEnabled toggles delivery for a registered source
// without tearing down its subscription.
func (c *Coordinator) SetNotificationsEnabled(sourceID string, enabled bool) error {
	h, err := c.get(sourceID)
	if err != nil {
		return err
	}
	h.mu.Lock()
	h.notifyOn = enabled
	h.mu.Unlock()
	h.source.SetNotificationsEnabled(enabled)
	return nil
}

// PauseSource stops a registered source's pump from buffering new
// events, without tearing down its subscription; events arriving while
// paused are dropped rather than queued.
func (c *Coordinator) PauseSource(sourceID string) error {
	h, err := c.get(sourceID)
	if err != nil {
		return err
	}
	h.mu.Lock()
	h.paused = true
	h.mu.Unlock()
	return nil
}

// ResumeSource re-enables buffering for a paused source.
func (c *Coordinator) ResumeSource(sourceID string) error {
	h, err := c.get(sourceID)
	if err != nil {
		return err
	}
	h.mu.Lock()
	h.paused = false
	h.mu.Unlock()
	return nil
}

// BufferStats reports a source's buffer occupancy alongside its
// self-reported Metadata, for the get_buffer_stats operation.
type BufferStats struct {
	Metadata      Metadata
	BufferedCount int
	DroppedCount  int
	Paused        bool
}

// GetBufferStats returns the named source's current buffer counts and
// metadata.
func (c *Coordinator) GetBufferStats(sourceID string) (BufferStats, error) {
	h, err := c.get(sourceID)
	if err != nil {
		return BufferStats{}, err
	}
	return BufferStats{
		Metadata:      h.source.Metadata(),
		BufferedCount: h.buffer.Len(),
		DroppedCount:  h.buffer.Dropped(),
		Paused:        h.isPaused(),
	}, nil
}

// Pull delegates to the named source's Pull, for callers that want
// synchronous retrieval instead of the push subscription.
func (c *Coordinator) Pull(ctx context.Context, sourceID string, limit int, after Cursor) ([]Item, Cursor, error) {
	h, err := c.get(sourceID)
	if err != nil {
		return nil, nil, err
	}
	return h.source.Pull(ctx, limit, after)
}

// Buffered returns the named source's currently buffered items.
func (c *Coordinator) Buffered(sourceID string) ([]Item, error) {
	h, err := c.get(sourceID)
	if err != nil {
		return nil, err
	}
	return h.buffer.Items(), nil
}

// Search delegates to the named source's Search.
func (c *Coordinator) Search(ctx context.Context, sourceID, query string, limit int) ([]Item, error) {
	h, err := c.get(sourceID)
	if err != nil {
		return nil, err
	}
	return h.source.Search(ctx, query, limit)
}

// Unregister stops and removes a source.
func (c *Coordinator) Unregister(sourceID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if h, ok := c.sources[sourceID]; ok {
		h.cancel()
		delete(c.sources, sourceID)
	}
}

func (c *Coordinator) get(sourceID string) (*sourceHandle, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	h, ok := c.sources[sourceID]
	if !ok {
		return nil, perr.Validation("datasource.get", "unknown data source", nil).With("source_id", sourceID)
	}
	return h, nil
}
