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

// Package perr defines the error taxonomy shared by every Pattern
// component. Every error carries a Kind, enough context to diagnose the
// failure (IDs, operation, cause), and never leaks a stack trace across
// the public boundary.
package perr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for callers that need to branch on failure
// category without string-matching messages.
type Kind string

const (
	KindConfiguration Kind = "configuration"
	KindDatabase      Kind = "database"
	KindValidation    Kind = "validation"
	KindRuleViolation Kind = "rule_violation"
	KindToolExecution Kind = "tool_execution"
	KindExternal      Kind = "external"
	KindCancelled     Kind = "cancelled"
)

// Error is the concrete error type returned by Pattern packages.
type Error struct {
	Kind      Kind
	Operation string
	Message   string
	Cause     error

	// Context carries structured diagnostic fields (agent IDs, tool
	// names, etc.) that a caller may want to log but should not parse.
	Context map[string]any
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %s: %v", e.Kind, e.Operation, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s: %s", e.Kind, e.Operation, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// With attaches a context field and returns the same error for chaining.
func (e *Error) With(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any, 4)
	}
	e.Context[key] = value
	return e
}

func new_(kind Kind, op, msg string, cause error) *Error {
	return &Error{Kind: kind, Operation: op, Message: msg, Cause: cause}
}

// Configuration wraps a configuration-layer failure.
func Configuration(op, msg string, cause error) *Error {
	return new_(KindConfiguration, op, msg, cause)
}

// Database wraps a driver/query failure from the entity store.
func Database(op, msg string, cause error) *Error {
	return new_(KindDatabase, op, msg, cause)
}

// DBVariant further classifies a Database error the way the entity
// store's contract requires (ConnectionFailed/QueryFailed/SerdeProblem/
// Other), surfaced as a context field rather than a distinct Kind so
// callers that only care about Kind==Database keep working unchanged.
type DBVariant string

const (
	DBConnectionFailed DBVariant = "connection_failed"
	DBQueryFailed      DBVariant = "query_failed"
	DBSerdeProblem     DBVariant = "serde_problem"
	DBRelationMissing  DBVariant = "relation_missing"
	DBOther            DBVariant = "other"
)

// DatabaseVariant wraps a driver/query failure and tags it with one of
// the entity store's DatabaseError variants.
func DatabaseVariant(op string, variant DBVariant, msg string, cause error) *Error {
	return new_(KindDatabase, op, msg, cause).With("db_variant", string(variant))
}

// RelationMissing wraps load_with_relations's "required relation
// missing" failure: a relation declared required on load produced zero
// edges.
func RelationMissing(op, msg string) *Error {
	return DatabaseVariant(op, DBRelationMissing, msg, nil)
}

// Validation wraps a request/state validation failure.
func Validation(op, msg string, cause error) *Error {
	return new_(KindValidation, op, msg, cause)
}

// RuleViolation wraps a tool-rule engine refusal.
func RuleViolation(op, msg string, cause error) *Error {
	return new_(KindRuleViolation, op, msg, cause)
}

// ToolExecution wraps a tool-handler failure; non-fatal to the turn.
func ToolExecution(op, msg string, cause error) *Error {
	return new_(KindToolExecution, op, msg, cause)
}

// External wraps a model-provider, OAuth, or data-source failure.
func External(op, msg string, cause error) *Error {
	return new_(KindExternal, op, msg, cause)
}

// Cancelled marks cooperative cancellation. Not a failure condition but
// surfaced through the same error channel so callers can select on it.
func Cancelled(op string) *Error {
	return new_(KindCancelled, op, "turn cancelled", nil)
}

// Is reports whether err (or any error it wraps) has the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
