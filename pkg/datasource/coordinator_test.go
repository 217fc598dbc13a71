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
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patterncore/pattern/pkg/ids"
)

type fakeSource struct {
	id     string
	events chan Event
}

func newFakeSource(id string) *fakeSource {
	return &fakeSource{id: id, events: make(chan Event, 16)}
}

func (f *fakeSource) SourceID() string { return f.id }
func (f *fakeSource) Pull(ctx context.Context, limit int, after Cursor) ([]Item, Cursor, error) {
	return nil, nil, nil
}
func (f *fakeSource) Subscribe(ctx context.Context, from Cursor) (<-chan Event, error) {
	return f.events, nil
}
func (f *fakeSource) SetFilter(json.RawMessage)   {}
func (f *fakeSource) CurrentCursor() Cursor       { return nil }
func (f *fakeSource) Metadata() Metadata          { return Metadata{SourceID: f.id, SourceType: "fake"} }
func (f *fakeSource) FormatNotification(Item) (string, error) { return "", nil }
func (f *fakeSource) SetNotificationsEnabled(bool) {}
func (f *fakeSource) Search(context.Context, string, int) ([]Item, error) { return nil, nil }

func (f *fakeSource) push(t *testing.T, line string) {
	t.Helper()
	payload, err := json.Marshal(map[string]string{"summary": line})
	require.NoError(t, err)
	f.events <- Event{Item: payload, Timestamp: time.Now()}
}

type recordingNotifier struct {
	mu  sync.Mutex
	got []string
}

func (n *recordingNotifier) Notify(ctx context.Context, agent ids.ID, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.got = append(n.got, text)
	return nil
}

func (n *recordingNotifier) snapshot() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.got))
	copy(out, n.got)
	return out
}

func TestCoordinator_RegisterBuffersAndNotifies(t *testing.T) {
	notifier := &recordingNotifier{}
	c := New(notifier, nil)
	src := newFakeSource("inbox")
	agent := ids.New(ids.KindAgent)

	err := c.Register(context.Background(), src, BufferConfig{MaxItems: 10, Notify: true}, DefaultNotificationTemplate, []ids.ID{agent})
	require.NoError(t, err)

	src.push(t, "hello")

	require.Eventually(t, func() bool {
		return len(notifier.snapshot()) == 1
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, "New item from inbox: hello", notifier.snapshot()[0])

	buffered, err := c.Buffered("inbox")
	require.NoError(t, err)
	require.Len(t, buffered, 1)
}

func TestCoordinator_UnknownSourceErrors(t *testing.T) {
	c := New(&recordingNotifier{}, nil)
	_, err := c.Buffered("does-not-exist")
	require.Error(t, err)
}

func TestCoordinator_SetNotificationsEnabledSuppressesDelivery(t *testing.T) {
	notifier := &recordingNotifier{}
	c := New(notifier, nil)
	src := newFakeSource("inbox")
	agent := ids.New(ids.KindAgent)

	require.NoError(t, c.Register(context.Background(), src, BufferConfig{MaxItems: 10, Notify: true}, DefaultNotificationTemplate, []ids.ID{agent}))
	require.NoError(t, c.SetNotificationsEnabled("inbox", false))

	src.push(t, "should not notify")
	time.Sleep(50 * time.Millisecond)

	assert.Empty(t, notifier.snapshot())

	buffered, err := c.Buffered("inbox")
	require.NoError(t, err)
	assert.Len(t, buffered, 1, "buffering continues even while notifications are disabled")
}

func TestCoordinator_PauseSourceStopsBuffering(t *testing.T) {
	notifier := &recordingNotifier{}
	c := New(notifier, nil)
	src := newFakeSource("inbox")
	agent := ids.New(ids.KindAgent)

	require.NoError(t, c.Register(context.Background(), src, BufferConfig{MaxItems: 10, Notify: true}, DefaultNotificationTemplate, []ids.ID{agent}))
	require.NoError(t, c.PauseSource("inbox"))

	src.push(t, "dropped while paused")
	time.Sleep(50 * time.Millisecond)

	buffered, err := c.Buffered("inbox")
	require.NoError(t, err)
	assert.Empty(t, buffered)
	assert.Empty(t, notifier.snapshot())
}

func TestCoordinator_ResumeSourceResumesBuffering(t *testing.T) {
	notifier := &recordingNotifier{}
	c := New(notifier, nil)
	src := newFakeSource("inbox")
	agent := ids.New(ids.KindAgent)

	require.NoError(t, c.Register(context.Background(), src, BufferConfig{MaxItems: 10, Notify: true}, DefaultNotificationTemplate, []ids.ID{agent}))
	require.NoError(t, c.PauseSource("inbox"))
	require.NoError(t, c.ResumeSource("inbox"))

	src.push(t, "hello again")

	require.Eventually(t, func() bool {
		buffered, err := c.Buffered("inbox")
		return err == nil && len(buffered) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestCoordinator_GetBufferStatsReportsMetadataAndBufferState(t *testing.T) {
	c := New(&recordingNotifier{}, nil)
	src := newFakeSource("inbox")
	agent := ids.New(ids.KindAgent)

	require.NoError(t, c.Register(context.Background(), src, BufferConfig{MaxItems: 10, Notify: true}, DefaultNotificationTemplate, []ids.ID{agent}))
	src.push(t, "one")

	require.Eventually(t, func() bool {
		buffered, err := c.Buffered("inbox")
		return err == nil && len(buffered) == 1
	}, time.Second, 5*time.Millisecond)

	stats, err := c.GetBufferStats("inbox")
	require.NoError(t, err)
	assert.Equal(t, "inbox", stats.Metadata.SourceID)
	assert.Equal(t, 1, stats.BufferedCount)
	assert.Equal(t, 0, stats.DroppedCount)
	assert.False(t, stats.Paused)

	require.NoError(t, c.PauseSource("inbox"))
	stats, err = c.GetBufferStats("inbox")
	require.NoError(t, err)
	assert.True(t, stats.Paused)
}

func TestCoordinator_PauseUnknownSourceErrors(t *testing.T) {
	c := New(&recordingNotifier{}, nil)
	require.Error(t, c.PauseSource("does-not-exist"))
	require.Error(t, c.ResumeSource("does-not-exist"))
	_, err := c.GetBufferStats("does-not-exist")
	require.Error(t, err)
}
