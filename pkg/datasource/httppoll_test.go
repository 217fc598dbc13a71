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
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPPoll_PullReturnsOnlyNewElements(t *testing.T) {
	var body atomic.Value
	body.Store(`[{"summary":"one"}]`)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body.Load().(string)))
	}))
	defer srv.Close()

	p := NewHTTPPoll("feed-1", srv.URL, time.Minute, nil)

	items, cursor, err := p.Pull(context.Background(), 0, nil)
	require.NoError(t, err)
	assert.Len(t, items, 1)

	body.Store(`[{"summary":"one"},{"summary":"two"}]`)
	items, _, err = p.Pull(context.Background(), 0, cursor)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Contains(t, string(items[0]), "two")
}

func TestHTTPPoll_FetchErrorOnNonArrayResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"not":"an array"}`))
	}))
	defer srv.Close()

	p := NewHTTPPoll("feed-1", srv.URL, time.Minute, nil)
	_, _, err := p.Pull(context.Background(), 0, nil)
	assert.Error(t, err)
}

func TestHTTPPoll_SubscribeDeliversExistingElementsOnFirstPoll(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"summary":"hello"}]`))
	}))
	defer srv.Close()

	p := NewHTTPPoll("feed-1", srv.URL, time.Hour, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	events, err := p.Subscribe(ctx, nil)
	require.NoError(t, err)

	select {
	case ev := <-events:
		assert.Contains(t, string(ev.Item), "hello")
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for first poll")
	}
}

func TestHTTPPoll_SearchFiltersBySubstring(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"summary":"apples"},{"summary":"oranges"}]`))
	}))
	defer srv.Close()

	p := NewHTTPPoll("feed-1", srv.URL, time.Minute, nil)
	results, err := p.Search(context.Background(), "orange", 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Contains(t, string(results[0]), "oranges")
}

func TestHTTPPoll_FormatNotificationUsesSummaryField(t *testing.T) {
	p := NewHTTPPoll("feed-1", "http://example.invalid", time.Minute, nil)
	text, err := p.FormatNotification([]byte(`{"summary":"new item arrived"}`))
	require.NoError(t, err)
	assert.Contains(t, text, "new item arrived")
}
