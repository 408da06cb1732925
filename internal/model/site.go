package model

import "strings"

// Site identifies the external source a record was scraped or fetched from.
// The catalog ships with the four sites the ingestion adapters currently
// produce, but any non-empty site code is accepted so new adapters do not
// require a code change.
type Site = string

const (
	SiteKyobo  Site = "KYOBO"
	SiteAladin Site = "ALADIN"
	SiteNaver  Site = "NAVER"
	SiteNLGO   Site = "NLGO"
)

// NormalizeSite canonicalizes a site code: trimmed and uppercased.
func NormalizeSite(code string) Site {
	return strings.ToUpper(strings.TrimSpace(code))
}
