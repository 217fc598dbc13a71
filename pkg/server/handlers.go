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
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/patterncore/pattern/pkg/datasource"
	"github.com/patterncore/pattern/pkg/entity"
	"github.com/patterncore/pattern/pkg/ids"
	"github.com/patterncore/pattern/pkg/message"
	"github.com/patterncore/pattern/pkg/perr"
	"github.com/patterncore/pattern/pkg/router"
	"github.com/patterncore/pattern/pkg/rules"
)

func pathID(r *http.Request, param string, kind ids.Kind) (ids.ID, error) {
	return ids.Parse(kind, chi.URLParam(r, param))
}

// --- agents ---------------------------------------------------------

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	owner, err := pathID(r, "ownerID", ids.KindUser)
	if err != nil {
		writeError(w, perr.Validation("server.list_agents", "invalid owner id", err))
		return
	}
	agents, err := s.store.ListAgentsForOwner(r.Context(), owner)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, agents)
}

// createAgentRequest carries only the fields a caller may choose;
// counters, State, and timestamps are the server's to set.
type createAgentRequest struct {
	Name                 string                     `json:"name"`
	Kind                 string                     `json:"kind"`
	SystemPrompt         string                     `json:"system_prompt"`
	Model                string                     `json:"model"`
	MemoryCharLimit      int                        `json:"memory_char_limit"`
	MaxMessages          int                        `json:"max_messages"`
	MaxMessageAgeHours   int                        `json:"max_message_age_hours"`
	CompressionThreshold int                        `json:"compression_threshold"`
	CompressionStrategy  entity.CompressionStrategy `json:"compression_strategy"`
	EnableThinking       bool                       `json:"enable_thinking"`
	ToolTimeoutSeconds   int                        `json:"tool_timeout_seconds"`
}

func (s *Server) handleCreateAgent(w http.ResponseWriter, r *http.Request) {
	owner, err := pathID(r, "ownerID", ids.KindUser)
	if err != nil {
		writeError(w, perr.Validation("server.create_agent", "invalid owner id", err))
		return
	}
	var req createAgentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, perr.Validation("server.create_agent", "malformed request body", err))
		return
	}
	if req.Name == "" || req.Model == "" {
		writeError(w, perr.Validation("server.create_agent", "name and model are required", nil))
		return
	}

	now := time.Now()
	agent := entity.Agent{
		ID:                   ids.New(ids.KindAgent),
		OwnerID:              owner,
		Name:                 req.Name,
		Kind:                 req.Kind,
		State:                entity.AgentReady,
		SystemPrompt:         req.SystemPrompt,
		Model:                req.Model,
		MemoryCharLimit:      req.MemoryCharLimit,
		MaxMessages:          req.MaxMessages,
		MaxMessageAgeHours:   req.MaxMessageAgeHours,
		CompressionThreshold: req.CompressionThreshold,
		CompressionStrategy:  req.CompressionStrategy,
		EnableThinking:       req.EnableThinking,
		ToolTimeoutSeconds:   req.ToolTimeoutSeconds,
		LastActive:           now,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if err := s.store.CreateAgent(r.Context(), agent); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, agent)
}

func (s *Server) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	agentID, err := pathID(r, "agentID", ids.KindAgent)
	if err != nil {
		writeError(w, perr.Validation("server.get_agent", "invalid agent id", err))
		return
	}
	agent, err := s.store.GetAgent(r.Context(), agentID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, agent)
}

// updateAgentRequest patches a subset of an agent's mutable
// configuration. A nil pointer leaves the existing value untouched, so
// a caller can change just one field without re-sending the rest.
type updateAgentRequest struct {
	Name                 *string                     `json:"name"`
	SystemPrompt         *string                     `json:"system_prompt"`
	Model                *string                     `json:"model"`
	MemoryCharLimit      *int                        `json:"memory_char_limit"`
	MaxMessages          *int                        `json:"max_messages"`
	MaxMessageAgeHours   *int                        `json:"max_message_age_hours"`
	CompressionThreshold *int                        `json:"compression_threshold"`
	CompressionStrategy  *entity.CompressionStrategy `json:"compression_strategy"`
	EnableThinking       *bool                       `json:"enable_thinking"`
	ToolTimeoutSeconds   *int                        `json:"tool_timeout_seconds"`
}

func (s *Server) handleUpdateAgent(w http.ResponseWriter, r *http.Request) {
	agentID, err := pathID(r, "agentID", ids.KindAgent)
	if err != nil {
		writeError(w, perr.Validation("server.update_agent", "invalid agent id", err))
		return
	}
	agent, err := s.store.GetAgent(r.Context(), agentID)
	if err != nil {
		writeError(w, err)
		return
	}
	var req updateAgentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, perr.Validation("server.update_agent", "malformed request body", err))
		return
	}

	if req.Name != nil {
		agent.Name = *req.Name
	}
	if req.SystemPrompt != nil {
		agent.SystemPrompt = *req.SystemPrompt
	}
	if req.Model != nil {
		agent.Model = *req.Model
	}
	if req.MemoryCharLimit != nil {
		agent.MemoryCharLimit = *req.MemoryCharLimit
	}
	if req.MaxMessages != nil {
		agent.MaxMessages = *req.MaxMessages
	}
	if req.MaxMessageAgeHours != nil {
		agent.MaxMessageAgeHours = *req.MaxMessageAgeHours
	}
	if req.CompressionThreshold != nil {
		agent.CompressionThreshold = *req.CompressionThreshold
	}
	if req.CompressionStrategy != nil {
		agent.CompressionStrategy = *req.CompressionStrategy
	}
	if req.EnableThinking != nil {
		agent.EnableThinking = *req.EnableThinking
	}
	if req.ToolTimeoutSeconds != nil {
		agent.ToolTimeoutSeconds = *req.ToolTimeoutSeconds
	}
	agent.UpdatedAt = time.Now()

	if err := s.store.UpdateAgent(r.Context(), *agent); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, agent)
}

// --- tool rules -------------------------------------------------------

func (s *Server) handleGetRules(w http.ResponseWriter, r *http.Request) {
	agentID, err := pathID(r, "agentID", ids.KindAgent)
	if err != nil {
		writeError(w, perr.Validation("server.get_rules", "invalid agent id", err))
		return
	}
	agent, err := s.store.GetAgent(r.Context(), agentID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, agent.ToolRules)
}

func (s *Server) handlePutRules(w http.ResponseWriter, r *http.Request) {
	agentID, err := pathID(r, "agentID", ids.KindAgent)
	if err != nil {
		writeError(w, perr.Validation("server.put_rules", "invalid agent id", err))
		return
	}
	agent, err := s.store.GetAgent(r.Context(), agentID)
	if err != nil {
		writeError(w, err)
		return
	}
	var newRules []rules.Rule
	if err := decodeJSON(r, &newRules); err != nil {
		writeError(w, perr.Validation("server.put_rules", "malformed request body", err))
		return
	}
	agent.ToolRules = newRules
	agent.UpdatedAt = time.Now()
	if err := s.store.UpdateAgent(r.Context(), *agent); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, agent.ToolRules)
}

// --- messages ---------------------------------------------------------

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	agentID, err := pathID(r, "agentID", ids.KindAgent)
	if err != nil {
		writeError(w, perr.Validation("server.list_messages", "invalid agent id", err))
		return
	}
	includeArchived, _ := strconv.ParseBool(r.URL.Query().Get("archived"))
	pairs, err := message.LoadHistory(r.Context(), s.store, agentID, includeArchived)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pairs)
}

type sendMessageRequest struct {
	Owner string `json:"owner"`
	Text  string `json:"text"`
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	agentID, err := pathID(r, "agentID", ids.KindAgent)
	if err != nil {
		writeError(w, perr.Validation("server.send_message", "invalid agent id", err))
		return
	}
	var req sendMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, perr.Validation("server.send_message", "malformed request body", err))
		return
	}
	owner, err := ids.Parse(ids.KindUser, req.Owner)
	if err != nil {
		writeError(w, perr.Validation("server.send_message", "invalid owner id", err))
		return
	}
	if req.Text == "" {
		writeError(w, perr.Validation("server.send_message", "text is required", nil))
		return
	}

	produced, err := s.runtime.Dispatch(r.Context(), agentID, owner, message.User(req.Text))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, produced)
}

// --- memory blocks ------------------------------------------------------

func (s *Server) handleListMemories(w http.ResponseWriter, r *http.Request) {
	agentID, err := pathID(r, "agentID", ids.KindAgent)
	if err != nil {
		writeError(w, perr.Validation("server.list_memories", "invalid agent id", err))
		return
	}
	memories, err := s.store.LoadMemories(r.Context(), agentID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, memories)
}

type createMemoryRequest struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

func (s *Server) handleCreateMemory(w http.ResponseWriter, r *http.Request) {
	agentID, err := pathID(r, "agentID", ids.KindAgent)
	if err != nil {
		writeError(w, perr.Validation("server.create_memory", "invalid agent id", err))
		return
	}
	agent, err := s.store.GetAgent(r.Context(), agentID)
	if err != nil {
		writeError(w, err)
		return
	}
	var req createMemoryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, perr.Validation("server.create_memory", "malformed request body", err))
		return
	}
	if agent.MemoryCharLimit > 0 && len(req.Value) > agent.MemoryCharLimit {
		writeError(w, perr.Validation("server.create_memory", "value exceeds agent's memory_char_limit", nil).
			With("limit", agent.MemoryCharLimit).With("length", len(req.Value)))
		return
	}

	mem := entity.MemoryBlock{
		ID:        ids.New(ids.KindMemory),
		Label:     req.Label,
		Value:     req.Value,
		UpdatedAt: time.Now(),
	}
	if err := s.store.AttachMemory(r.Context(), agentID, mem); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, mem)
}

type searchMemoriesRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k"`
}

func (s *Server) handleSearchMemories(w http.ResponseWriter, r *http.Request) {
	agentID, err := pathID(r, "agentID", ids.KindAgent)
	if err != nil {
		writeError(w, perr.Validation("server.search_memories", "invalid agent id", err))
		return
	}
	if s.embeddings == nil {
		writeJSON(w, http.StatusNotImplemented, errorBody{Error: "no embedding provider configured"})
		return
	}
	var req searchMemoriesRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, perr.Validation("server.search_memories", "malformed request body", err))
		return
	}
	if req.TopK <= 0 {
		req.TopK = 5
	}

	vector, err := s.embeddings.Embed(r.Context(), req.Query)
	if err != nil {
		writeError(w, perr.External("server.search_memories", "failed to embed query", err))
		return
	}
	results, err := s.store.SearchMemoriesByVector(r.Context(), agentID, vector, req.TopK)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

// --- data sources -------------------------------------------------------

type registerFileTailRequest struct {
	SourceID     string   `json:"source_id"`
	Path         string   `json:"path"`
	TargetAgents []string `json:"target_agents"`
	TemplateBody string   `json:"template_body"`

	BufferMaxItems int    `json:"buffer_max_items"`
	BufferMaxAge   string `json:"buffer_max_age"`
	Persist        bool   `json:"persist"`
	Index          bool   `json:"index"`
	Notify         bool   `json:"notify"`
}

func (s *Server) handleRegisterFileTail(w http.ResponseWriter, r *http.Request) {
	if s.dataSources == nil {
		writeJSON(w, http.StatusNotImplemented, errorBody{Error: "no data source coordinator configured"})
		return
	}
	var req registerFileTailRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, perr.Validation("server.register_filetail", "malformed request body", err))
		return
	}
	if req.SourceID == "" || req.Path == "" {
		writeError(w, perr.Validation("server.register_filetail", "source_id and path are required", nil))
		return
	}

	var maxAge time.Duration
	if req.BufferMaxAge != "" {
		d, err := time.ParseDuration(req.BufferMaxAge)
		if err != nil {
			writeError(w, perr.Validation("server.register_filetail", "invalid buffer_max_age", err))
			return
		}
		maxAge = d
	}

	targets := make([]ids.ID, 0, len(req.TargetAgents))
	for _, raw := range req.TargetAgents {
		id, err := ids.Parse(ids.KindAgent, raw)
		if err != nil {
			writeError(w, perr.Validation("server.register_filetail", "invalid target agent id", err).With("agent_id", raw))
			return
		}
		targets = append(targets, id)
	}

	src := datasource.NewFileTail(req.SourceID, req.Path, nil)
	bufCfg := datasource.BufferConfig{
		MaxItems: req.BufferMaxItems,
		MaxAge:   maxAge,
		Persist:  req.Persist,
		Index:    req.Index,
		Notify:   req.Notify,
	}
	if err := s.dataSources.Register(r.Context(), src, bufCfg, req.TemplateBody, targets); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"source_id": req.SourceID})
}

func (s *Server) handleUnregisterDataSource(w http.ResponseWriter, r *http.Request) {
	if s.dataSources == nil {
		writeJSON(w, http.StatusNotImplemented, errorBody{Error: "no data source coordinator configured"})
		return
	}
	s.dataSources.Unregister(chi.URLParam(r, "sourceID"))
	w.WriteHeader(http.StatusNoContent)
}

type setNotificationsRequest struct {
	Enabled bool `json:"enabled"`
}

func (s *Server) handleSetDataSourceNotifications(w http.ResponseWriter, r *http.Request) {
	if s.dataSources == nil {
		writeJSON(w, http.StatusNotImplemented, errorBody{Error: "no data source coordinator configured"})
		return
	}
	var req setNotificationsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, perr.Validation("server.set_notifications", "malformed request body", err))
		return
	}
	if err := s.dataSources.SetNotificationsEnabled(chi.URLParam(r, "sourceID"), req.Enabled); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePauseDataSource(w http.ResponseWriter, r *http.Request) {
	if s.dataSources == nil {
		writeJSON(w, http.StatusNotImplemented, errorBody{Error: "no data source coordinator configured"})
		return
	}
	if err := s.dataSources.PauseSource(chi.URLParam(r, "sourceID")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleResumeDataSource(w http.ResponseWriter, r *http.Request) {
	if s.dataSources == nil {
		writeJSON(w, http.StatusNotImplemented, errorBody{Error: "no data source coordinator configured"})
		return
	}
	if err := s.dataSources.ResumeSource(chi.URLParam(r, "sourceID")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetBufferStats(w http.ResponseWriter, r *http.Request) {
	if s.dataSources == nil {
		writeJSON(w, http.StatusNotImplemented, errorBody{Error: "no data source coordinator configured"})
		return
	}
	stats, err := s.dataSources.GetBufferStats(chi.URLParam(r, "sourceID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// --- router -------------------------------------------------------------

type routerSendRequest struct {
	FromAgent   string         `json:"from_agent"`
	TargetType  string         `json:"target_type"`
	TargetID    string         `json:"target_id,omitempty"`
	ChannelType string         `json:"channel_type,omitempty"`
	Content     string         `json:"content"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

func (s *Server) handleRouterSend(w http.ResponseWriter, r *http.Request) {
	var req routerSendRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, perr.Validation("server.router_send", "malformed request body", err))
		return
	}
	fromAgent, err := ids.Parse(ids.KindAgent, req.FromAgent)
	if err != nil {
		writeError(w, perr.Validation("server.router_send", "invalid from_agent id", err))
		return
	}

	target := router.Target{Type: router.TargetType(req.TargetType)}
	switch target.Type {
	case router.TargetUser:
		id, err := ids.Parse(ids.KindUser, req.TargetID)
		if err != nil {
			writeError(w, perr.Validation("server.router_send", "invalid target_id for user target", err))
			return
		}
		target.ID = id
	case router.TargetAgent:
		id, err := ids.Parse(ids.KindAgent, req.TargetID)
		if err != nil {
			writeError(w, perr.Validation("server.router_send", "invalid target_id for agent target", err))
			return
		}
		target.ID = id
	case router.TargetGroup:
		id, err := ids.Parse(ids.KindGroup, req.TargetID)
		if err != nil {
			writeError(w, perr.Validation("server.router_send", "invalid target_id for group target", err))
			return
		}
		target.ID = id
	case router.TargetChannel:
		target.Metadata = map[string]string{"type": req.ChannelType}
	default:
		writeError(w, perr.Validation("server.router_send", "unknown target_type", nil).With("target_type", req.TargetType))
		return
	}

	if err := s.router.Send(r.Context(), fromAgent, target, req.Content, req.Metadata); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
