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
	"bytes"
	"encoding/json"
	"strings"
	"text/template"

	"github.com/patterncore/pattern/pkg/perr"
)

// NotificationTemplate renders a buffered item into the text an agent
// notification should contain. It wraps a text/template.Template (the
// same templating package the teacher uses for prompt rendering), so
// placeholders use text/template syntax: a field is written
// "{{ .field }}". A bare Jinja-style "{{ field }}" is parsed as a
// function call and fails to compile, and Jinja "|filter" suffixes are
// not supported.
type NotificationTemplate struct {
	name string
	tmpl *template.Template
}

// DefaultNotificationTemplate is used when a data source configures no
// template of its own.
const DefaultNotificationTemplate = `New item from {{ .source_id }}: {{ .summary }}`

// CompileTemplate parses a notification template body. name identifies
// it in error messages.
func CompileTemplate(name, body string) (*NotificationTemplate, error) {
	t, err := template.New(name).Parse(body)
	if err != nil {
		return nil, perr.Configuration("datasource.compile_template", "invalid notification template", err).
			With("template_name", name)
	}
	return &NotificationTemplate{name: name, tmpl: t}, nil
}

// Render executes the template against item, exposing item's top-level
// JSON fields plus "source_id" and every entry of extra as template
// variables.
func (nt *NotificationTemplate) Render(sourceID string, item Item, extra map[string]any) (string, error) {
	fields := map[string]any{}
	if len(item) > 0 {
		if err := json.Unmarshal(item, &fields); err != nil {
			// Not a JSON object (e.g. a bare string/number); expose it
			// as "value" instead of failing the whole render.
			var raw any
			if err2 := json.Unmarshal(item, &raw); err2 == nil {
				fields = map[string]any{"value": raw}
			}
		}
	}
	fields["source_id"] = sourceID
	for k, v := range extra {
		fields[k] = v
	}

	var buf bytes.Buffer
	if err := nt.tmpl.Execute(&buf, fields); err != nil {
		return "", perr.External("datasource.render_template", "notification template execution failed", err).
			With("template_name", nt.name)
	}
	return strings.TrimSpace(buf.String()), nil
}
