package pagination

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// EncodeToken renders c as URL-safe base64 JSON. An empty cursor yields no token.
func EncodeToken(c Cursor) (string, error) {
	if c.empty() {
		return "", nil
	}
	raw, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("pagination: encode cursor: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// DecodeToken reverses EncodeToken. A blank token means the first page.
func DecodeToken(token string) (Cursor, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Cursor{}, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return Cursor{}, fmt.Errorf("%w: not base64", ErrInvalidPageToken)
	}
	var c Cursor
	if err := json.Unmarshal(raw, &c); err != nil || c.empty() {
		return Cursor{}, fmt.Errorf("%w: malformed cursor", ErrInvalidPageToken)
	}
	return c, nil
}
