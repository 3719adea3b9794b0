// SPDX-License-Identifier: MPL-2.0

package semantic

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"vizboard/server/core"
)

// APIError is a non-2xx answer of the semantic service.
type APIError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("request failed with status %s", e.Status)
	}
	return fmt.Sprintf("request failed with status %s: %s", e.Status, e.Body)
}

func decodeAPIError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))
	return &APIError{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Body:       strings.TrimSpace(string(body)),
	}
}

// notFound converts a 404 into a core.NotFoundError and leaves other
// errors untouched.
func notFound(err error, format string, args ...any) error {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
		return core.ErrNotFound(format, args...)
	}
	return err
}
