package wallabag

import (
	"net/url"
	"strconv"
	"strings"
)

// SortBy selects the field entry listings are sorted on.
type SortBy string

const (
	SortByCreated SortBy = "created"
	SortByUpdated SortBy = "updated"
)

// SortOrder selects the listing sort direction.
type SortOrder string

const (
	OrderAsc  SortOrder = "asc"
	OrderDesc SortOrder = "desc"
)

// EntriesFilter narrows an entry listing. The zero value lists everything
// with the server's default sort (created, descending).
type EntriesFilter struct {
	// Archive filters by archived state; nil means both.
	Archive *bool

	// Starred filters by starred state; nil means both.
	Starred *bool

	// Public filters by whether a public link exists; nil means both.
	Public *bool

	// Sort and Order control result ordering. Empty means server default.
	Sort  SortBy
	Order SortOrder

	// Tags restricts to entries carrying all of the given tag labels.
	// Labels containing commas cannot be expressed and must not be passed.
	Tags []string

	// Since restricts to entries updated at or after this Unix timestamp
	// (seconds). Zero means no restriction.
	Since int64

	// PerPage overrides the server's page size when > 0.
	PerPage int
}

// query encodes the filter as URL query parameters for a given page.
func (f *EntriesFilter) query(page int) url.Values {
	q := url.Values{}
	if f.Archive != nil {
		q.Set("archive", boolParam(*f.Archive))
	}
	if f.Starred != nil {
		q.Set("starred", boolParam(*f.Starred))
	}
	if f.Public != nil {
		q.Set("public", boolParam(*f.Public))
	}
	if f.Sort != "" {
		q.Set("sort", string(f.Sort))
	}
	if f.Order != "" {
		q.Set("order", string(f.Order))
	}
	if len(f.Tags) > 0 {
		q.Set("tags", strings.Join(f.Tags, ","))
	}
	q.Set("since", strconv.FormatInt(f.Since, 10))
	if f.PerPage > 0 {
		q.Set("perPage", strconv.Itoa(f.PerPage))
	}
	q.Set("page", strconv.Itoa(page))
	return q
}

func boolParam(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
