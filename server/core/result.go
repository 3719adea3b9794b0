// SPDX-License-Identifier: MPL-2.0

package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// ResultColumn maps a returned column key back to the member it was
// produced from.
type ResultColumn struct {
	Column string `json:"column"`
	Source string `json:"source,omitempty"`
	Name   string `json:"name,omitempty"`
}

type QueryResult struct {
	ID              string            `json:"id"`
	OrganizationID  string            `json:"organizationId"`
	SemanticModelID string            `json:"semanticModelId"`
	Data            []Row             `json:"data"`
	Annotations     []json.RawMessage `json:"annotations"`
	Metadata        []ResultColumn    `json:"metadata,omitempty"`
}

// Keys returns the column keys of all rows in encounter order.
func (r *QueryResult) Keys() []string {
	if r == nil {
		return nil
	}
	seen := map[string]bool{}
	keys := []string{}
	for _, row := range r.Data {
		for _, k := range row.keys {
			if !seen[k] {
				seen[k] = true
				keys = append(keys, k)
			}
		}
	}
	return keys
}

// Row is a single result row that remembers the order its keys were sent in.
type Row struct {
	keys   []string
	values map[string]any
}

func NewRow(pairs ...any) Row {
	r := Row{values: map[string]any{}}
	for i := 0; i+1 < len(pairs); i += 2 {
		r.Set(fmt.Sprint(pairs[i]), pairs[i+1])
	}
	return r
}

func (r *Row) Set(key string, value any) {
	if r.values == nil {
		r.values = map[string]any{}
	}
	if _, ok := r.values[key]; !ok {
		r.keys = append(r.keys, key)
	}
	r.values[key] = value
}

func (r Row) Get(key string) (any, bool) {
	v, ok := r.values[key]
	return v, ok
}

func (r Row) Keys() []string {
	return append([]string{}, r.keys...)
}

func (r Row) Len() int {
	return len(r.keys)
}

func (r Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range r.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(r.values[k])
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (r *Row) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("result row must be an object")
	}
	*r = Row{values: map[string]any{}}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("unexpected result row key %v", tok)
		}
		var value any
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("failed to decode value of %q: %w", key, err)
		}
		r.Set(key, value)
	}
	_, err = dec.Token()
	return err
}

type finalResponse struct {
	Result json.RawMessage `json:"result"`
}

// ParseQueryResult normalizes a job's final response into a QueryResult.
// The response is either {"result": {...}} or the result object itself.
// id, organizationId and semanticModelId are required.
func ParseQueryResult(raw json.RawMessage) (*QueryResult, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, ErrValidation("query job finished without a result")
	}
	var wrapper finalResponse
	if err := json.Unmarshal(raw, &wrapper); err == nil && len(bytes.TrimSpace(wrapper.Result)) > 0 && !bytes.Equal(bytes.TrimSpace(wrapper.Result), []byte("null")) {
		raw = wrapper.Result
	}
	var result QueryResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, ErrValidation("query result is malformed: %v", err)
	}
	missing := []string{}
	if strings.TrimSpace(result.ID) == "" {
		missing = append(missing, "id")
	}
	if strings.TrimSpace(result.OrganizationID) == "" {
		missing = append(missing, "organizationId")
	}
	if strings.TrimSpace(result.SemanticModelID) == "" {
		missing = append(missing, "semanticModelId")
	}
	if len(missing) > 0 {
		return nil, ErrValidation("query result is missing required fields: %s", strings.Join(missing, ", "))
	}
	if result.Data == nil {
		result.Data = []Row{}
	}
	if result.Annotations == nil {
		result.Annotations = []json.RawMessage{}
	}
	return &result, nil
}
