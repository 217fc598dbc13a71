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
	"encoding/json"
	"net/http"

	"github.com/patterncore/pattern/pkg/perr"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(body)
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

type errorBody struct {
	Error string `json:"error"`
}

// writeError maps a perr.Error's Kind onto an HTTP status the same way
// the rest of the stack classifies failure categories, falling back to
// 500 for anything that isn't a perr.Error.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	var pe *perr.Error
	if asPerr(err, &pe) {
		switch pe.Kind {
		case perr.KindValidation:
			status = http.StatusBadRequest
		case perr.KindRuleViolation:
			status = http.StatusConflict
		case perr.KindCancelled:
			status = http.StatusRequestTimeout
		case perr.KindConfiguration:
			status = http.StatusInternalServerError
		case perr.KindDatabase, perr.KindExternal, perr.KindToolExecution:
			status = http.StatusBadGateway
		}
	}
	if isNotFound(err) {
		status = http.StatusNotFound
	}
	writeJSON(w, status, errorBody{Error: err.Error()})
}

func asPerr(err error, target **perr.Error) bool {
	for e := err; e != nil; {
		if pe, ok := e.(*perr.Error); ok {
			*target = pe
			return true
		}
		u, ok := e.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		e = u.Unwrap()
	}
	return false
}

// isNotFound recognizes the "not found" database errors pkg/entity
// raises via perr.DatabaseVariant(..., perr.DBOther, "not found", ...)
// without needing entity to export a sentinel.
func isNotFound(err error) bool {
	var pe *perr.Error
	if !asPerr(err, &pe) {
		return false
	}
	return pe.Kind == perr.KindDatabase && pe.Message == "not found"
}
