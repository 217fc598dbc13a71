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

package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patterncore/pattern/pkg/auth"
	"github.com/patterncore/pattern/pkg/config"
	"github.com/patterncore/pattern/pkg/datasource"
	"github.com/patterncore/pattern/pkg/entity"
	"github.com/patterncore/pattern/pkg/ids"
	"github.com/patterncore/pattern/pkg/llm"
	"github.com/patterncore/pattern/pkg/message"
	"github.com/patterncore/pattern/pkg/router"
	"github.com/patterncore/pattern/pkg/runtime"
)

// The following stubs satisfy pkg/runtime's narrow collaborator
// interfaces with no-op behavior, just enough to construct a
// *runtime.Runtime for routes this test suite never dispatches
// through.

type stubAgentStore struct{}

func (stubAgentStore) GetAgent(ctx context.Context, id ids.ID) (*entity.Agent, error) {
	return nil, assertUnauthorized
}
func (stubAgentStore) UpdateAgent(ctx context.Context, a entity.Agent) error { return nil }
func (stubAgentStore) LoadMemories(ctx context.Context, agent ids.ID) ([]entity.MemoryBlock, error) {
	return nil, nil
}

type stubMessageStore struct{}

func (stubMessageStore) RelateAgentMessage(ctx context.Context, edge message.AgentMessageEdge) error {
	return nil
}
func (stubMessageStore) LoadAgentMessages(ctx context.Context, agent ids.ID, includeArchived bool) ([]message.AgentMessageEdge, error) {
	return nil, nil
}
func (stubMessageStore) GetMessage(ctx context.Context, id ids.ID) (*message.Message, error) {
	return nil, assertUnauthorized
}
func (stubMessageStore) PutMessage(ctx context.Context, m *message.Message) error { return nil }

type stubPositionGenerator struct{}

func (stubPositionGenerator) NextPosition() string { return "0" }

type stubModelResolver struct{}

func (stubModelResolver) Get(name string) (llm.Provider, bool) { return nil, false }

func zeroRuntime(t *testing.T) *runtime.Runtime {
	t.Helper()
	return runtime.New(runtime.Config{
		Agents:    stubAgentStore{},
		Messages:  stubMessageStore{},
		Positions: stubPositionGenerator{},
		Models:    stubModelResolver{},
	})
}

// stubValidator is a minimal auth.TokenValidator that accepts exactly
// one token string, for exercising requireAuth without a real JWKS.
type stubValidator struct {
	acceptToken string
	claims      *auth.Claims
}

func (v *stubValidator) ValidateToken(ctx context.Context, token string) (*auth.Claims, error) {
	if token != v.acceptToken {
		return nil, assertUnauthorized
	}
	return v.claims, nil
}

func (v *stubValidator) Close() {}

var assertUnauthorized = &stubTokenError{"invalid token"}

type stubTokenError struct{ msg string }

func (e *stubTokenError) Error() string { return e.msg }

// stubOutbox records every queued message instead of persisting it.
type stubOutbox struct {
	mu    sync.Mutex
	items []router.QueuedMessage
}

func (o *stubOutbox) Enqueue(ctx context.Context, q router.QueuedMessage) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.items = append(o.items, q)
	return nil
}

// stubEndpoint records every delivery sent to it.
type stubEndpoint struct {
	mu        sync.Mutex
	deliveries []router.Delivery
}

func (e *stubEndpoint) Send(ctx context.Context, msg router.Delivery) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.deliveries = append(e.deliveries, msg)
	return nil
}

func (e *stubEndpoint) EndpointType() string { return "stub" }

// stubNotifier never actually delivers; data-source tests here only
// exercise registration/unregistration, not notification fan-out.
type stubNotifier struct{}

func (stubNotifier) Notify(ctx context.Context, agent ids.ID, text string) error { return nil }

func testServerConfig(t *testing.T) *config.ServerConfig {
	t.Helper()
	cfg := &config.ServerConfig{}
	cfg.SetDefaults()
	return cfg
}

func newTestServer(t *testing.T, opts func(*Options)) *Server {
	t.Helper()
	o := Options{
		Config:  testServerConfig(t),
		Runtime: nil,
		Store:   &entity.Store{},
		Router:  router.New(&stubOutbox{}, nil),
	}
	if opts != nil {
		opts(&o)
	}
	// Runtime is required by New; callers that don't exercise
	// runtime-backed routes still need a non-nil value, so the zero
	// runtime.Runtime (it is never dereferenced by routes this test
	// suite touches) stands in.
	if o.Runtime == nil {
		o.Runtime = zeroRuntime(t)
	}
	srv, err := New(o)
	require.NoError(t, err)
	return srv
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	srv.routes().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestRequireAuth_RejectsMissingHeader(t *testing.T) {
	validator := &stubValidator{acceptToken: "good-token"}
	srv := newTestServer(t, func(o *Options) { o.Auth = validator })

	req := httptest.NewRequest(http.MethodPost, "/v1/router/send", strings.NewReader(`{}`))
	w := httptest.NewRecorder()
	srv.routes().ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireAuth_RejectsWrongToken(t *testing.T) {
	validator := &stubValidator{acceptToken: "good-token"}
	srv := newTestServer(t, func(o *Options) { o.Auth = validator })

	req := httptest.NewRequest(http.MethodPost, "/v1/router/send", strings.NewReader(`{}`))
	req.Header.Set("Authorization", "Bearer wrong-token")
	w := httptest.NewRecorder()
	srv.routes().ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireAuth_AllowsValidToken(t *testing.T) {
	validator := &stubValidator{acceptToken: "good-token", claims: &auth.Claims{Subject: "user_1"}}
	endpoint := &stubEndpoint{}
	r := router.New(&stubOutbox{}, nil)
	r.RegisterEndpoint("chat", endpoint)

	srv := newTestServer(t, func(o *Options) {
		o.Auth = validator
		o.Router = r
	})

	fromAgent := ids.New(ids.KindAgent)
	body, _ := json.Marshal(routerSendRequest{
		FromAgent:   fromAgent.String(),
		TargetType:  "channel",
		ChannelType: "chat",
		Content:     "hello",
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/router/send", strings.NewReader(string(body)))
	req.Header.Set("Authorization", "Bearer good-token")
	w := httptest.NewRecorder()
	srv.routes().ServeHTTP(w, req)

	require.Equal(t, http.StatusNoContent, w.Code)
	require.Len(t, endpoint.deliveries, 1)
	assert.Equal(t, "hello", endpoint.deliveries[0].Content)
}

func TestHandleRouterSend_QueuesAgentTarget(t *testing.T) {
	outbox := &stubOutbox{}
	r := router.New(outbox, nil)
	srv := newTestServer(t, func(o *Options) { o.Router = r })

	fromAgent := ids.New(ids.KindAgent)
	toAgent := ids.New(ids.KindAgent)
	body, _ := json.Marshal(routerSendRequest{
		FromAgent:  fromAgent.String(),
		TargetType: "agent",
		TargetID:   toAgent.String(),
		Content:    "do the thing",
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/router/send", strings.NewReader(string(body)))
	w := httptest.NewRecorder()
	srv.routes().ServeHTTP(w, req)

	require.Equal(t, http.StatusNoContent, w.Code)
	require.Len(t, outbox.items, 1)
	assert.Equal(t, toAgent, outbox.items[0].ToAgent)
}

func TestHandleRouterSend_RejectsUnknownTargetType(t *testing.T) {
	srv := newTestServer(t, nil)
	fromAgent := ids.New(ids.KindAgent)
	body, _ := json.Marshal(routerSendRequest{
		FromAgent:  fromAgent.String(),
		TargetType: "planet",
		Content:    "hello",
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/router/send", strings.NewReader(string(body)))
	w := httptest.NewRecorder()
	srv.routes().ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleRegisterAndUnregisterFileTail(t *testing.T) {
	tmp, err := os.CreateTemp(t.TempDir(), "tail-*.log")
	require.NoError(t, err)
	_, err = tmp.WriteString("line one\n")
	require.NoError(t, err)
	require.NoError(t, tmp.Close())

	coord := datasource.New(stubNotifier{}, nil)
	srv := newTestServer(t, func(o *Options) { o.DataSources = coord })

	body, _ := json.Marshal(registerFileTailRequest{
		SourceID: "tail-1",
		Path:     tmp.Name(),
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/datasources/filetail", strings.NewReader(string(body)))
	w := httptest.NewRecorder()
	srv.routes().ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code)

	items, err := coord.Buffered("tail-1")
	require.NoError(t, err)
	assert.NotNil(t, items)

	delReq := httptest.NewRequest(http.MethodDelete, "/v1/datasources/tail-1", nil)
	delW := httptest.NewRecorder()
	srv.routes().ServeHTTP(delW, delReq)
	assert.Equal(t, http.StatusNoContent, delW.Code)

	_, err = coord.Buffered("tail-1")
	assert.Error(t, err)
}

func TestHandleSetDataSourceNotifications_UnknownSourceReturns400(t *testing.T) {
	coord := datasource.New(stubNotifier{}, nil)
	srv := newTestServer(t, func(o *Options) { o.DataSources = coord })

	body, _ := json.Marshal(setNotificationsRequest{Enabled: true})
	req := httptest.NewRequest(http.MethodPost, "/v1/datasources/missing/notifications", strings.NewReader(string(body)))
	w := httptest.NewRecorder()
	srv.routes().ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestShutdown_ClosesCleanly(t *testing.T) {
	srv := newTestServer(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, srv.Shutdown(ctx))
}
