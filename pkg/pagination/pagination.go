package pagination

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const (
	// DefaultLimit is the standard page size when a limit is not provided.
	DefaultLimit = 25
	// MaxLimit caps how many rows any cursor query can request.
	MaxLimit = 100
)

// Params holds cursor pagination inputs from controllers or services.
type Params struct {
	Limit  int
	Cursor string
}

// Cursor is the opaque continuation token: base64 of
// {"value": <createdAt>, "id": <row id>}. ID breaks ties between rows that
// share a timestamp; cursors without it page on the timestamp alone.
type Cursor struct {
	Value time.Time `json:"value"`
	ID    string    `json:"id,omitempty"`
}

// NormalizeLimit enforces the configured default and maximum limits.
func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

// LimitWithBuffer returns the normalization result plus one to detect the next page.
func LimitWithBuffer(limit int) int {
	return NormalizeLimit(limit) + 1
}

// EncodeCursor builds the opaque cursor for the last row of a page.
func EncodeCursor(createdAt time.Time, id string) string {
	payload, _ := json.Marshal(Cursor{Value: createdAt.UTC(), ID: id})
	return base64.StdEncoding.EncodeToString(payload)
}

// ParseCursor decodes a cursor string. An empty value yields nil, nil.
func ParseCursor(value string) (*Cursor, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}

	decoded, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		// tolerate cursors that went through URL-safe encoding
		decoded, err = base64.RawURLEncoding.DecodeString(strings.TrimRight(value, "="))
		if err != nil {
			return nil, fmt.Errorf("decode cursor: %w", err)
		}
	}

	var cursor Cursor
	if err := json.Unmarshal(decoded, &cursor); err != nil {
		return nil, fmt.Errorf("invalid cursor payload: %w", err)
	}
	if cursor.Value.IsZero() {
		return nil, fmt.Errorf("cursor value is required")
	}
	return &cursor, nil
}

// CursorOrFirstPage decodes value and treats any malformed cursor as a
// request for the first page.
func CursorOrFirstPage(value string) *Cursor {
	cursor, err := ParseCursor(value)
	if err != nil {
		return nil
	}
	return cursor
}
