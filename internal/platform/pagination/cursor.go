// Package pagination turns Firestore query cursors into opaque page tokens.
package pagination

import "errors"

// ErrInvalidPageToken is returned for tokens this package did not produce.
var ErrInvalidPageToken = errors.New("pagination: invalid page_token")

// Cursor holds the ordered field values of the last document on a page.
type Cursor struct {
	StartAfter []any `json:"startAfter"`
}

func (c Cursor) empty() bool { return len(c.StartAfter) == 0 }
