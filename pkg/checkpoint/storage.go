// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0) (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.gnu.org/licenses/agpl-3.0.en.html
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package checkpoint

import (
	"context"

	"github.com/patterncore/pattern/pkg/ids"
)

// Store is the persistence port a checkpoint Manager needs. Keeping it
// narrow (rather than depending on pkg/entity directly) mirrors the
// pkg/message.Store / pkg/router.Outbox pattern: the checkpoint
// subsystem stays storage-agnostic, and pkg/entity.Store implements
// this interface against the checkpoint table.
type Store interface {
	// SaveCheckpoint persists (overwriting any prior checkpoint for the
	// same agent/task).
	SaveCheckpoint(ctx context.Context, state *ExecutionState) error

	// LoadCheckpoint retrieves the checkpoint for one agent/task pair.
	LoadCheckpoint(ctx context.Context, agent ids.ID, taskID string) (*ExecutionState, error)

	// ClearCheckpoint removes a checkpoint once its turn completes.
	ClearCheckpoint(ctx context.Context, agent ids.ID, taskID string) error

	// ListPendingForOwner returns every pending checkpoint belonging to
	// owner's agents.
	ListPendingForOwner(ctx context.Context, owner ids.ID) ([]*ExecutionState, error)

	// ListAllPending returns every pending checkpoint in the store,
	// used for startup recovery.
	ListAllPending(ctx context.Context) ([]*ExecutionState, error)
}
