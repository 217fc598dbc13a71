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

// Package datasource implements the data-source coordinator: it owns a
// registry of pluggable external feeds, buffers what they produce in a
// bounded ring buffer per source, and turns new items into agent
// notifications through a text/template rendering. Concrete sources
// (file tail, HTTP poll, ...) only need to satisfy the narrow DataSource
// contract below; everything else — buffering, cursor persistence,
// backpressure, notification formatting — is the coordinator's job.
package datasource

import (
	"context"
	"encoding/json"
	"time"
)

// Cursor is an opaque, source-defined position marker serialized as
// JSON so the coordinator can persist and compare cursors across source
// implementations without knowing their concrete type (the Go analogue
// of the original's type-erased Value cursor).
type Cursor = json.RawMessage

// Item is one unit a source produces, serialized as JSON for the same
// type-erasure reason as Cursor.
type Item = json.RawMessage

// Status reports a source's current health.
type Status string

const (
	StatusActive       Status = "active"
	StatusPaused       Status = "paused"
	StatusError        Status = "error"
	StatusDisconnected Status = "disconnected"
)

// Metadata describes a source's identity and health for observability
// and for the coordinator's own bookkeeping.
type Metadata struct {
	SourceID       string
	SourceType     string
	Status         Status
	ItemsProcessed uint64
	LastItemTime   time.Time
	ErrorCount     uint64
	LastError      string
}

// DataSource is the contract every concrete feed (file tail, HTTP poll,
// a future Bluesky/Home-Assistant adapter) must satisfy. All methods
// operate on the JSON-erased Item/Cursor/Filter types; a concrete source
// is free to define its own richer types internally and marshal at its
// boundary.
type DataSource interface {
	SourceID() string

	// Pull retrieves up to limit items newer than after. A nil after
	// pulls from the source's beginning (or its configured backfill
	// window, for sources that don't support unbounded replay).
	Pull(ctx context.Context, limit int, after Cursor) ([]Item, Cursor, error)

	// Subscribe starts a push feed from the given cursor (nil resumes
	// from the source's own stored position, which is its beginning for
	// a fresh source) and delivers items on the returned channel until
	// ctx is cancelled or the source closes it. Implementations that only
	// support polling may implement this by polling internally on a
	// ticker and forwarding results.
	Subscribe(ctx context.Context, from Cursor) (<-chan Event, error)

	SetFilter(filter json.RawMessage)
	CurrentCursor() Cursor
	Metadata() Metadata

	// FormatNotification renders item as the text an agent notification
	// should contain, using the source's own template if it has one, or
	// the coordinator's default otherwise.
	FormatNotification(item Item) (string, error)

	SetNotificationsEnabled(enabled bool)

	// Search performs a source-defined query over historical items
	// (e.g. a keyword or vector search), independent of Pull's
	// cursor-based traversal.
	Search(ctx context.Context, query string, limit int) ([]Item, error)
}

// Event is what Subscribe delivers: one item plus the cursor it advances to.
type Event struct {
	Item      Item
	Cursor    Cursor
	Timestamp time.Time
}
