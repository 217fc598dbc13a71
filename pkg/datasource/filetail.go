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
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/patterncore/pattern/pkg/perr"
)

// FileTail is the builtin "file_tail" data source: it watches a file
// for appended lines (via fsnotify, the same library the teacher uses
// for its own config hot-reload in pkg/config/loader.go) and emits one
// Item per new line. The cursor is the byte offset already consumed, so
// Pull/Subscribe resume correctly across a restart.
type FileTail struct {
	sourceID string
	path     string

	mu       sync.Mutex
	offset   int64
	enabled  atomic.Bool
	errCount atomic.Uint64
	lastItem atomic.Value // time.Time
}

// NewFileTail constructs a FileTail watching path, starting from
// offset 0 unless fromCursor resumes a prior position.
func NewFileTail(sourceID, path string, fromCursor Cursor) *FileTail {
	ft := &FileTail{sourceID: sourceID, path: path}
	ft.enabled.Store(true)
	if len(fromCursor) > 0 {
		var off int64
		if err := json.Unmarshal(fromCursor, &off); err == nil {
			ft.offset = off
		}
	}
	return ft
}

func (f *FileTail) SourceID() string { return f.sourceID }

// Pull reads new lines appended since after (or since the source's
// stored offset if after is nil), up to limit lines.
func (f *FileTail) Pull(ctx context.Context, limit int, after Cursor) ([]Item, Cursor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	offset := f.offset
	if len(after) > 0 {
		_ = json.Unmarshal(after, &offset)
	}

	file, err := os.Open(f.path)
	if err != nil {
		f.errCount.Add(1)
		return nil, nil, perr.External("datasource.file_tail.pull", "failed to open watched file", err).
			With("path", f.path)
	}
	defer file.Close()

	if _, err := file.Seek(offset, 0); err != nil {
		return nil, nil, perr.External("datasource.file_tail.pull", "failed to seek to cursor", err)
	}

	scanner := bufio.NewScanner(file)
	var items []Item
	read := offset
	for scanner.Scan() && (limit <= 0 || len(items) < limit) {
		line := scanner.Text()
		read += int64(len(line)) + 1
		payload, _ := json.Marshal(map[string]any{"line": line})
		items = append(items, payload)
	}

	f.offset = read
	f.lastItem.Store(time.Now())
	cursor, _ := json.Marshal(read)
	return items, cursor, nil
}

// Subscribe polls the file on a short interval and forwards new lines
// as Events; fsnotify wakes the poll early on a write event instead of
// waiting for the next tick.
func (f *FileTail) Subscribe(ctx context.Context, from Cursor) (<-chan Event, error) {
	out := make(chan Event, 64)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, perr.External("datasource.file_tail.subscribe", "failed to create file watcher", err)
	}
	if err := watcher.Add(f.path); err != nil {
		watcher.Close()
		return nil, perr.External("datasource.file_tail.subscribe", "failed to watch file", err).With("path", f.path)
	}

	go func() {
		defer close(out)
		defer watcher.Close()

		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()

		drain := func() {
			items, cursor, err := f.Pull(ctx, 0, nil)
			if err != nil {
				f.errCount.Add(1)
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

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				drain()
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
					drain()
				}
			case <-watcher.Errors:
				f.errCount.Add(1)
			}
		}
	}()

	return out, nil
}

func (f *FileTail) SetFilter(filter json.RawMessage) {}

func (f *FileTail) CurrentCursor() Cursor {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, _ := json.Marshal(f.offset)
	return c
}

func (f *FileTail) Metadata() Metadata {
	status := StatusActive
	if !f.enabled.Load() {
		status = StatusPaused
	}
	last, _ := f.lastItem.Load().(time.Time)
	return Metadata{
		SourceID:       f.sourceID,
		SourceType:     "file_tail",
		Status:         status,
		LastItemTime:   last,
		ErrorCount:     f.errCount.Load(),
	}
}

func (f *FileTail) FormatNotification(item Item) (string, error) {
	var fields map[string]any
	if err := json.Unmarshal(item, &fields); err != nil {
		return "", perr.Validation("datasource.file_tail.format", "item is not a JSON object", err)
	}
	return fmt.Sprintf("%s: %v", f.sourceID, fields["line"]), nil
}

func (f *FileTail) SetNotificationsEnabled(enabled bool) { f.enabled.Store(enabled) }

// Search scans the file linearly for lines containing query. This is a
// best-effort builtin; a production deployment would index buffered
// lines instead (the coordinator's BufferConfig.Index flag marks that
// intent for a future indexed source).
func (f *FileTail) Search(ctx context.Context, query string, limit int) ([]Item, error) {
	file, err := os.Open(f.path)
	if err != nil {
		return nil, perr.External("datasource.file_tail.search", "failed to open watched file", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	var results []Item
	for scanner.Scan() {
		line := scanner.Text()
		if query == "" || strings.Contains(line, query) {
			payload, _ := json.Marshal(map[string]any{"line": line})
			results = append(results, payload)
			if limit > 0 && len(results) >= limit {
				break
			}
		}
	}
	return results, nil
}

