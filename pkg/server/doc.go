// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel

// Package server is the thin JSON admin surface over the runtime: it
// exposes agent CRUD, message send/history, memory blocks, data-source
// registration, and router delivery as HTTP handlers, plus health,
// readiness, and Prometheus metrics endpoints. It is not a user-facing
// transport — Discord, MCP, and any other end-user surface are external
// collaborators that talk to pkg/runtime and pkg/router directly.
package server
