package store

import (
	"strconv"

	"github.com/rotisserie/eris"

	"github.com/libroscan/catalog-cli/internal/model"
)

// insertFilterRows inserts filter rows in parent-before-child order. The
// caller-assigned ids on the rows express parent links only; insert returns
// the database id actually assigned, and parent references are remapped as
// rows land. Rows whose parent never resolves (unknown id, or a cycle in the
// input) fail the whole operation.
func insertFilterRows(rows []model.OriginFilter, insert func(row model.OriginFilter, parentID *int64) (int64, error)) error {
	idMap := make(map[int64]int64, len(rows))
	pending := make([]model.OriginFilter, len(rows))
	copy(pending, rows)

	for len(pending) > 0 {
		progressed := false
		var next []model.OriginFilter

		for _, f := range pending {
			var parentID *int64
			if f.ParentID != nil {
				mapped, ok := idMap[*f.ParentID]
				if !ok {
					next = append(next, f)
					continue
				}
				parentID = &mapped
			}

			dbID, err := insert(f, parentID)
			if err != nil {
				return err
			}
			idMap[f.ID] = dbID
			progressed = true
		}

		if !progressed {
			return eris.Errorf("store: %d filter rows reference unknown or cyclic parents", len(next))
		}
		pending = next
	}
	return nil
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
