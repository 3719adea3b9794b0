// SPDX-License-Identifier: MPL-2.0

package session

import (
	"io"
	"strings"

	"vizboard/server/core"
)

type ExportFormat string

const (
	ExportCSV  ExportFormat = "csv"
	ExportXLSX ExportFormat = "xlsx"
)

func (f ExportFormat) ContentType() string {
	if f == ExportXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv; charset=utf-8"
}

func ParseExportFormat(s string) (ExportFormat, error) {
	switch f := ExportFormat(strings.ToLower(s)); f {
	case ExportCSV, ExportXLSX:
		return f, nil
	}
	return "", core.ErrValidation("unsupported export format %q", s)
}

// ExportWidget writes the widget's current result. It returns the widget
// title for naming the download.
func (s *Session) ExportWidget(id string, format ExportFormat, w io.Writer) (string, error) {
	var (
		result *core.QueryResult
		title  string
		err    error
	)
	if doErr := s.do(func() {
		widget, ok := s.widgets[id]
		if !ok {
			err = core.ErrNotFound("widget %s not found", id)
			return
		}
		if widget.QueryResult == nil {
			err = core.ErrValidation("widget %s has no result to export", id)
			return
		}
		result = widget.QueryResult
		title = widget.Title
	}); doErr != nil {
		return "", doErr
	}
	if err != nil {
		return "", err
	}
	if format == ExportXLSX {
		return title, core.ExportXLSX(result, w)
	}
	_, err = io.WriteString(w, core.ExportCSV(result))
	return title, err
}
