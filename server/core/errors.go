// SPDX-License-Identifier: MPL-2.0

package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string { return e.Message }

type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// ConflictError is returned when an operation collides with state that is
// still in progress, for example a second copilot request.
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string { return e.Message }

func ErrNotFound(format string, args ...any) *NotFoundError {
	return &NotFoundError{Message: fmt.Sprintf(format, args...)}
}

func ErrValidation(format string, args ...any) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

func ErrConflict(format string, args ...any) *ConflictError {
	return &ConflictError{Message: fmt.Sprintf(format, args...)}
}

type JobErrorKind int

const (
	JobErrorNone JobErrorKind = iota
	JobErrorText
	JobErrorObject
)

// JobError is the error attached to a job read. The service sends either
// nothing, a plain string or an object, so the value is decoded into a
// tagged form and callers only ever use Message.
type JobError struct {
	Kind   JobErrorKind
	Text   string
	Fields map[string]any
}

func (e *JobError) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	*e = JobError{}
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if strings.TrimSpace(s) != "" {
			e.Kind = JobErrorText
			e.Text = s
		}
	case '{':
		var fields map[string]any
		if err := json.Unmarshal(data, &fields); err != nil {
			return err
		}
		e.Kind = JobErrorObject
		e.Fields = fields
	default:
		// Numbers, booleans and arrays are kept verbatim.
		e.Kind = JobErrorText
		e.Text = string(data)
	}
	return nil
}

func (e JobError) MarshalJSON() ([]byte, error) {
	switch e.Kind {
	case JobErrorText:
		return json.Marshal(e.Text)
	case JobErrorObject:
		return json.Marshal(e.Fields)
	}
	return []byte("null"), nil
}

func (e JobError) Present() bool {
	return e.Kind != JobErrorNone
}

// Message returns a human readable message or fallback when the error
// carries nothing readable.
func (e JobError) Message(fallback string) string {
	switch e.Kind {
	case JobErrorText:
		if s := strings.TrimSpace(e.Text); s != "" {
			return s
		}
	case JobErrorObject:
		for _, key := range []string{"message", "error", "detail", "reason"} {
			switch v := e.Fields[key].(type) {
			case string:
				if s := strings.TrimSpace(v); s != "" {
					return s
				}
			case map[string]any:
				nested := JobError{Kind: JobErrorObject, Fields: v}
				if s := nested.Message(""); s != "" {
					return s
				}
			}
		}
	}
	return fallback
}
