package filter

import (
	"errors"
	"fmt"

	"github.com/libroscan/catalog-cli/internal/model"
)

// MalformedError reports an invalid filter forest: cycles, orphans, bad
// regexes, or operator misuse. Admission for the affected site fails closed
// until the rows are corrected administratively.
type MalformedError struct {
	Site   model.Site
	NodeID int64 // 0 when the defect is structural rather than per-node
	Reason string
}

func (e *MalformedError) Error() string {
	if e.NodeID != 0 {
		return fmt.Sprintf("malformed filter forest for site %s: node %d: %s", e.Site, e.NodeID, e.Reason)
	}
	return fmt.Sprintf("malformed filter forest for site %s: %s", e.Site, e.Reason)
}

// IsMalformed reports whether err wraps a MalformedError.
func IsMalformed(err error) bool {
	var me *MalformedError
	return errors.As(err, &me)
}
