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
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/patterncore/pattern/pkg/httpclient"
	"github.com/patterncore/pattern/pkg/perr"
)

// HTTPPoll is the builtin "http_poll" data source: it GETs a URL on an
// interval expecting a JSON array response, and emits one Item per new
// array element. The cursor is the count of elements already consumed,
// mirroring FileTail's byte-offset cursor but at array-index
// granularity, since a polled endpoint is assumed to only ever append
// to the tail of its response (the same assumption the teacher's own
// tools/web_request.go makes about paginated feeds).
type HTTPPoll struct {
	sourceID string
	url      string
	interval time.Duration
	client   *httpclient.Client

	mu       sync.Mutex
	seen     int64
	enabled  atomic.Bool
	errCount atomic.Uint64
	lastItem atomic.Value // time.Time
}

// NewHTTPPoll constructs an HTTPPoll for url, polling every interval.
// fromCursor resumes a prior element count across a restart.
func NewHTTPPoll(sourceID, url string, interval time.Duration, fromCursor Cursor) *HTTPPoll {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	p := &HTTPPoll{
		sourceID: sourceID,
		url:      url,
		interval: interval,
		client:   httpclient.New(httpclient.WithMaxRetries(3), httpclient.WithBaseDelay(time.Second)),
	}
	p.enabled.Store(true)
	if len(fromCursor) > 0 {
		var seen int64
		if err := json.Unmarshal(fromCursor, &seen); err == nil {
			p.seen = seen
		}
	}
	return p
}

func (p *HTTPPoll) SourceID() string { return p.sourceID }

// fetch retrieves the full JSON array currently served at p.url.
func (p *HTTPPoll) fetch(ctx context.Context) ([]json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return nil, perr.External("datasource.http_poll.fetch", "failed to build request", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		p.errCount.Add(1)
		return nil, perr.External("datasource.http_poll.fetch", "request failed", err).With("url", p.url)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		p.errCount.Add(1)
		return nil, perr.External("datasource.http_poll.fetch", fmt.Sprintf("unexpected status %d", resp.StatusCode), nil).
			With("url", p.url)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, perr.External("datasource.http_poll.fetch", "failed to read response body", err)
	}

	var elements []json.RawMessage
	if err := json.Unmarshal(body, &elements); err != nil {
		return nil, perr.Validation("datasource.http_poll.fetch", "response is not a JSON array", err).With("url", p.url)
	}
	return elements, nil
}

// Pull fetches the endpoint and returns elements past after (or the
// source's stored count if after is nil), up to limit items.
func (p *HTTPPoll) Pull(ctx context.Context, limit int, after Cursor) ([]Item, Cursor, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	seen := p.seen
	if len(after) > 0 {
		_ = json.Unmarshal(after, &seen)
	}

	elements, err := p.fetch(ctx)
	if err != nil {
		return nil, nil, err
	}
	if seen > int64(len(elements)) {
		seen = int64(len(elements))
	}

	fresh := elements[seen:]
	if limit > 0 && int64(len(fresh)) > int64(limit) {
		fresh = fresh[:limit]
	}

	items := make([]Item, len(fresh))
	copy(items, fresh)

	newSeen := seen + int64(len(fresh))
	p.seen = newSeen
	if len(items) > 0 {
		p.lastItem.Store(time.Now())
	}
	cursor, _ := json.Marshal(newSeen)
	return items, cursor, nil
}

// Subscribe polls the endpoint on p.interval and forwards new elements
// as Events until ctx is cancelled.
func (p *HTTPPoll) Subscribe(ctx context.Context, from Cursor) (<-chan Event, error) {
	out := make(chan Event, 64)

	if len(from) > 0 {
		p.mu.Lock()
		_ = json.Unmarshal(from, &p.seen)
		p.mu.Unlock()
	}

	go func() {
		defer close(out)

		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		poll := func() {
			items, cursor, err := p.Pull(ctx, 0, nil)
			if err != nil {
				return
			}
			now := time.Now()
			for _, item := range items {
				select {
				case out <- Event{Item: item, Cursor: cursor, Timestamp: now}:
				case <-ctx.Done():
					return
				}
			}
		}

		poll()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				poll()
			}
		}
	}()

	return out, nil
}

func (p *HTTPPoll) SetFilter(filter json.RawMessage) {}

func (p *HTTPPoll) CurrentCursor() Cursor {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, _ := json.Marshal(p.seen)
	return c
}

func (p *HTTPPoll) Metadata() Metadata {
	status := StatusActive
	if !p.enabled.Load() {
		status = StatusPaused
	}
	last, _ := p.lastItem.Load().(time.Time)
	return Metadata{
		SourceID:     p.sourceID,
		SourceType:   "http_poll",
		Status:       status,
		LastItemTime: last,
		ErrorCount:   p.errCount.Load(),
	}
}

func (p *HTTPPoll) FormatNotification(item Item) (string, error) {
	var fields map[string]any
	if err := json.Unmarshal(item, &fields); err != nil {
		return p.sourceID + ": " + string(item), nil
	}
	if summary, ok := fields["summary"].(string); ok {
		return fmt.Sprintf("%s: %s", p.sourceID, summary), nil
	}
	return fmt.Sprintf("%s: %v", p.sourceID, fields), nil
}

func (p *HTTPPoll) SetNotificationsEnabled(enabled bool) { p.enabled.Store(enabled) }

// Search fetches the endpoint fresh and scans its elements for query as
// a raw substring match, the same best-effort approach FileTail.Search
// takes over its own watched file.
func (p *HTTPPoll) Search(ctx context.Context, query string, limit int) ([]Item, error) {
	elements, err := p.fetch(ctx)
	if err != nil {
		return nil, err
	}

	var results []Item
	for _, item := range elements {
		if query == "" || strings.Contains(string(item), query) {
			results = append(results, item)
			if limit > 0 && len(results) >= limit {
				break
			}
		}
	}
	return results, nil
}
