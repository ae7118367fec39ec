package search

import (
	"strconv"
	"strings"

	"github.com/averch/bookdex/internal/storage"
)

// RawParams are the untrusted query parameters as they arrive from the
// HTTP form: everything is a string, everything may be garbage.
type RawParams struct {
	Title      string // substring filter over title and description
	AuthorID   string
	CategoryID string
	Query      string // free-text semantic query (the "nlp" parameter)
	SortBy     string
	SortDir    string
}

// Mode says which retrieval strategy a normalized query selects.
type Mode int

const (
	// ModeNone means no usable predicate: the structured path returns an
	// empty result set without querying. (Deliberately reproduces the
	// original behavior; an all-blank form shows nothing, not everything.)
	ModeNone Mode = iota
	ModeStructured
	ModeSemantic
)

// Query is a normalized, validated retrieval request. Malformed input never
// produces an error here; it is treated as absent, keeping the search form
// permissive.
type Query struct {
	Mode   Mode
	Text   string // semantic query text, empty unless ModeSemantic
	Filter storage.BookFilter
	Raw    RawParams // echoed back to callers for UI state
}

// Normalize trims and validates raw parameters into a Query. Author and
// category ids parse only as plain non-negative integers; anything else is
// "not provided". The sort column resolves against a fixed whitelist
// (default title) and the direction against {asc, desc} (default asc), so
// caller input never reaches a query string.
func Normalize(p RawParams) Query {
	p.Title = strings.TrimSpace(p.Title)
	p.AuthorID = strings.TrimSpace(p.AuthorID)
	p.CategoryID = strings.TrimSpace(p.CategoryID)
	p.Query = strings.TrimSpace(p.Query)
	p.SortBy = strings.TrimSpace(p.SortBy)
	p.SortDir = strings.TrimSpace(p.SortDir)

	q := Query{Raw: p}
	q.Filter.TitleSubstr = p.Title

	if id, ok := parseID(p.AuthorID); ok {
		q.Filter.AuthorID = id
		q.Filter.HasAuthor = true
	}
	if id, ok := parseID(p.CategoryID); ok {
		q.Filter.CategoryID = id
		q.Filter.HasCategory = true
	}

	switch strings.ToLower(p.SortBy) {
	case "description":
		q.Filter.SortBy = storage.SortDescription
	case "publisher":
		q.Filter.SortBy = storage.SortPublisher
	case "publish_date":
		q.Filter.SortBy = storage.SortPublishDate
	default:
		q.Filter.SortBy = storage.SortTitle
	}
	q.Filter.SortDesc = strings.ToLower(p.SortDir) == "desc"

	switch {
	case p.Query != "":
		// A free-text query wins outright; structured filters and sort are
		// kept in Filter only so callers can echo them, the ranking ignores
		// them entirely.
		q.Mode = ModeSemantic
		q.Text = p.Query
	case !q.Filter.Empty():
		q.Mode = ModeStructured
	default:
		q.Mode = ModeNone
	}
	return q
}

// parseID accepts only plain non-negative base-10 integers: no signs, no
// spaces. ParseUint rejects "+1" and "-1" outright.
func parseID(s string) (int64, bool) {
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseUint(s, 10, 63)
	if err != nil {
		return 0, false
	}
	return int64(v), true
}
