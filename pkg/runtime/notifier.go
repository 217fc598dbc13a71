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

package runtime

import (
	"context"

	"github.com/patterncore/pattern/pkg/datasource"
	"github.com/patterncore/pattern/pkg/ids"
	"github.com/patterncore/pattern/pkg/message"
)

var _ datasource.Notifier = (*Runtime)(nil)

// Notify implements pkg/datasource's Notifier: a registered data
// source feeds agent a rendered notification out-of-band, as a
// synthetic user message dispatched through the normal turn procedure
// rather than through any side channel. The notifying agent is its own
// owner, since a data source notification isn't on behalf of any
// particular end user.
func (rt *Runtime) Notify(ctx context.Context, agent ids.ID, text string) error {
	_, err := rt.Dispatch(ctx, agent, agent, message.User(text))
	return err
}
