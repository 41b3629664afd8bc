package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/labstack/echo/v5"
)

// epochMsThreshold separates epoch seconds from epoch milliseconds: an
// integer below it is read as seconds.
const epochMsThreshold = 10_000_000_000

// parseTimestamp accepts epoch seconds, epoch milliseconds, or an ISO-8601
// datetime (Z-suffixed or with an explicit offset; a bare datetime is UTC)
// and returns UNIX milliseconds.
func parseTimestamp(value string) (int64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, fmt.Errorf("timestamp value is empty")
	}

	if n, err := strconv.ParseInt(value, 10, 64); err == nil {
		if n > -epochMsThreshold && n < epochMsThreshold {
			return n * 1000, nil
		}
		return n, nil
	}

	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.ParseInLocation(layout, value, time.UTC); err == nil {
			return t.UnixMilli(), nil
		}
	}
	return 0, fmt.Errorf("unrecognized timestamp %q", value)
}

// writeJSON marshals through goccy and writes the bytes directly, keeping
// the hot events path off the reflection-heavy stdlib encoder.
func writeJSON(c *echo.Context, status int, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	res := c.Response()
	res.Header().Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	res.WriteHeader(status)
	_, err = res.Write(b)
	return err
}

func writeError(c *echo.Context, status int, code, msg string) error {
	return writeJSON(c, status, ErrorResponse{Error: ErrorBody{Code: code, Message: msg}})
}

func writeBadRequest(c *echo.Context, msg string) error {
	return writeError(c, http.StatusBadRequest, "bad_request", msg)
}
