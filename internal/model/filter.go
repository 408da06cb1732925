package model

// OriginFilter is one row of the per-site admission rule tree. Rows form a
// forest via ParentID: roots have IsRoot set and a nil parent. A row with a
// non-empty Operator is a combinator over its children; otherwise it must be
// a leaf carrying PropertyName and Regex.
type OriginFilter struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	Site         Site   `json:"site"`
	IsRoot       bool   `json:"is_root"`
	Operator     string `json:"operator_type,omitempty"`
	PropertyName string `json:"property_name,omitempty"`
	Regex        string `json:"regex,omitempty"`
	ParentID     *int64 `json:"parent_id,omitempty"`
}
