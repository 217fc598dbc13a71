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
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func itemOf(t *testing.T, s string) Item {
	t.Helper()
	b, err := json.Marshal(map[string]string{"v": s})
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestRingBuffer_EvictsOldestWhenMaxItemsExceeded(t *testing.T) {
	b := NewRingBuffer(BufferConfig{MaxItems: 2})

	assert.False(t, b.Push(itemOf(t, "a")))
	assert.False(t, b.Push(itemOf(t, "b")))
	assert.True(t, b.Push(itemOf(t, "c")))

	assert.Equal(t, 2, b.Len())
	assert.Equal(t, 1, b.Dropped())

	items := b.Items()
	assert.Len(t, items, 2)
	assert.JSONEq(t, string(itemOf(t, "b")), string(items[0]))
	assert.JSONEq(t, string(itemOf(t, "c")), string(items[1]))
}

func TestRingBuffer_EvictsByAge(t *testing.T) {
	b := NewRingBuffer(BufferConfig{MaxAge: 10 * time.Millisecond})

	b.Push(itemOf(t, "old"))
	time.Sleep(20 * time.Millisecond)
	b.Push(itemOf(t, "new"))

	items := b.Items()
	assert.Len(t, items, 1)
	assert.JSONEq(t, string(itemOf(t, "new")), string(items[0]))
}

func TestRingBuffer_UnboundedWithoutConfig(t *testing.T) {
	b := NewRingBuffer(BufferConfig{})
	for i := 0; i < 100; i++ {
		b.Push(itemOf(t, "x"))
	}
	assert.Equal(t, 100, b.Len())
	assert.Equal(t, 0, b.Dropped())
}
