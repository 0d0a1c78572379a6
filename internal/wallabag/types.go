// Package wallabag implements a client for the wallabag HTTP API.
//
// The client authenticates with the OAuth2 password grant, refreshes the
// access token transparently when the server reports it expired, and
// paginates entry listings internally. All calls take a context and return
// typed errors (see errors.go) so callers can distinguish not-found and
// permission failures from transport problems.
package wallabag

import (
	"bytes"
	"fmt"
	"strconv"
	"time"
)

// Time wraps time.Time to handle wallabag's timestamp format. The server
// emits offsets without a colon ("2019-03-01T09:23:36+0000"), which strict
// RFC 3339 parsing rejects. Values always marshal back as RFC 3339.
type Time struct {
	time.Time
}

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05-0700",
	"2006-01-02T15:04:05",
}

// ParseTime parses a wallabag timestamp string.
func ParseTime(s string) (Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return Time{t.UTC()}, nil
		}
	}
	return Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Time) UnmarshalJSON(data []byte) error {
	s := string(bytes.Trim(data, `"`))
	if s == "null" || s == "" {
		*t = Time{}
		return nil
	}
	parsed, err := ParseTime(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// MarshalJSON implements json.Marshaler.
func (t Time) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(t.UTC().Format(time.RFC3339))), nil
}

// Bool is a boolean that tolerates wallabag's habit of encoding flags as
// 0/1 integers in responses. It always marshals as 0/1, which is also what
// the entry create/update endpoints expect.
type Bool bool

// UnmarshalJSON implements json.Unmarshaler.
func (b *Bool) UnmarshalJSON(data []byte) error {
	switch string(bytes.Trim(data, `"`)) {
	case "0", "false", "null":
		*b = false
	case "1", "true":
		*b = true
	default:
		return fmt.Errorf("unrecognized boolean %s", data)
	}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (b Bool) MarshalJSON() ([]byte, error) {
	if b {
		return []byte("1"), nil
	}
	return []byte("0"), nil
}

// Entry is a saved article as returned by the server. The id is assigned
// remotely and is stable for the life of the entry; UpdatedAt orders
// revisions of the same id.
//
// Content is only populated on full fetches. Annotations are only embedded
// by certain filtered fetches and are nil otherwise.
type Entry struct {
	ID             int64        `json:"id"`
	Content        *string      `json:"content"`
	CreatedAt      Time         `json:"created_at"`
	DomainName     *string      `json:"domain_name"`
	HTTPStatus     *string      `json:"http_status"`
	IsArchived     Bool         `json:"is_archived"`
	IsPublic       Bool         `json:"is_public"`
	IsStarred      Bool         `json:"is_starred"`
	Language       *string      `json:"language"`
	Mimetype       *string      `json:"mimetype"`
	OriginURL      *string      `json:"origin_url"`
	PreviewPicture *string      `json:"preview_picture"`
	PublishedAt    *Time        `json:"published_at"`
	PublishedBy    []string     `json:"published_by"`
	ReadingTime    int          `json:"reading_time"`
	StarredAt      *Time        `json:"starred_at"`
	Title          *string      `json:"title"`
	UID            *string      `json:"uid"`
	UpdatedAt      Time         `json:"updated_at"`
	URL            *string      `json:"url"`
	Headers        []string     `json:"headers"`
	UserEmail      string       `json:"user_email"`
	UserID         int64        `json:"user_id"`
	UserName       string       `json:"user_name"`
	Annotations    []Annotation `json:"annotations"`
	Tags           []Tag        `json:"tags"`
}

// Annotation is a highlight or note attached to an entry. Annotation ids
// are global on the server, not scoped per entry.
type Annotation struct {
	ID                     int64   `json:"id"`
	AnnotatorSchemaVersion string  `json:"annotator_schema_version"`
	CreatedAt              Time    `json:"created_at"`
	Quote                  *string `json:"quote"`
	Ranges                 []Range `json:"ranges"`
	Text                   string  `json:"text"`
	UpdatedAt              Time    `json:"updated_at"`
	User                   *string `json:"user"`
}

// Range locates an annotation within the entry content.
type Range struct {
	Start       *string `json:"start"`
	StartOffset string  `json:"startOffset"`
	End         *string `json:"end"`
	EndOffset   string  `json:"endOffset"`
}

// NewAnnotation is the payload for creating an annotation.
type NewAnnotation struct {
	Quote  *string `json:"quote"`
	Ranges []Range `json:"ranges"`
	Text   string  `json:"text"`
}

// Tag as returned by the server. Slugs are computed server-side.
type Tag struct {
	ID    int64  `json:"id"`
	Label string `json:"label"`
	Slug  string `json:"slug"`
}

// NewEntry is the payload for creating an entry. URL is the only required
// field; if Content is supplied, Title should be too, otherwise the server
// fetches and extracts the article itself.
type NewEntry struct {
	URL            string   `json:"url"`
	Title          *string  `json:"title,omitempty"`
	Tags           []string `json:"tags,omitempty"`
	Archive        *Bool    `json:"archive,omitempty"`
	Starred        *Bool    `json:"starred,omitempty"`
	Public         *Bool    `json:"public,omitempty"`
	Content        *string  `json:"content,omitempty"`
	Language       *string  `json:"language,omitempty"`
	PreviewPicture *string  `json:"preview_picture,omitempty"`
	PublishedAt    *Time    `json:"published_at,omitempty"`
	Authors        *string  `json:"authors,omitempty"`
	OriginURL      *string  `json:"origin_url,omitempty"`
}

// PatchEntry is the payload for updating an entry. Nil fields are left
// unchanged server-side. Tags are labels, not Tag objects; the server
// assigns ids and slugs.
type PatchEntry struct {
	Title          *string  `json:"title,omitempty"`
	Tags           []string `json:"tags,omitempty"`
	Archive        *Bool    `json:"archive,omitempty"`
	Starred        *Bool    `json:"starred,omitempty"`
	Public         *Bool    `json:"public,omitempty"`
	Content        *string  `json:"content,omitempty"`
	Language       *string  `json:"language,omitempty"`
	PreviewPicture *string  `json:"preview_picture,omitempty"`
	PublishedAt    *Time    `json:"published_at,omitempty"`
	Authors        *string  `json:"authors,omitempty"`
	OriginURL      *string  `json:"origin_url,omitempty"`
}

// Patch builds a PatchEntry carrying every field of the entry that the
// update endpoint accepts. Used when pushing a locally newer revision: the
// response must then be pulled back, because the server canonicalizes
// fields (tag slugs, reading time) that the patch cannot set.
func (e *Entry) Patch() PatchEntry {
	labels := make([]string, 0, len(e.Tags))
	for _, tag := range e.Tags {
		labels = append(labels, tag.Label)
	}
	archive := e.IsArchived
	starred := e.IsStarred
	public := e.IsPublic
	return PatchEntry{
		Title:          e.Title,
		Tags:           labels,
		Archive:        &archive,
		Starred:        &starred,
		Public:         &public,
		Content:        e.Content,
		Language:       e.Language,
		PreviewPicture: e.PreviewPicture,
		PublishedAt:    e.PublishedAt,
		OriginURL:      e.OriginURL,
	}
}

// tokenInfo is the oauth token response.
type tokenInfo struct {
	AccessToken  string  `json:"access_token"`
	ExpiresIn    int     `json:"expires_in"`
	TokenType    string  `json:"token_type"`
	Scope        *string `json:"scope"`
	RefreshToken string  `json:"refresh_token"`
}

// paginatedEntries is the envelope returned by the entries listing.
type paginatedEntries struct {
	Page     int `json:"page"`
	Limit    int `json:"limit"`
	Pages    int `json:"pages"`
	Total    int `json:"total"`
	Embedded struct {
		Items []Entry `json:"items"`
	} `json:"_embedded"`
}

// annotationRows is the envelope returned by the annotations listing.
type annotationRows struct {
	Rows  []Annotation `json:"rows"`
	Total int          `json:"total"`
}

// existsResponse is the envelope returned by the exists check.
type existsResponse struct {
	Exists *int64 `json:"exists"`
}
