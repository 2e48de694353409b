package model

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// Lead is one discovered entity with optional contact and profile fields.
// A nil field means the value is absent.
type Lead struct {
	URL         *string  `json:"url,omitempty" yaml:"url,omitempty"`
	Title       *string  `json:"title,omitempty" yaml:"title,omitempty"`
	Email       *string  `json:"email,omitempty" yaml:"email,omitempty"`
	Phone       *string  `json:"phone,omitempty" yaml:"phone,omitempty"`
	LocationHQ  *string  `json:"location_hq,omitempty" yaml:"location_hq,omitempty"`
	LinkedInURL *string  `json:"linkedin_url,omitempty" yaml:"linkedin_url,omitempty"`
	ProfileURL  *string  `json:"profile_url,omitempty" yaml:"profile_url,omitempty"`
	Rank        *float64 `json:"rank,omitempty" yaml:"rank,omitempty"`
	Error       *string  `json:"error,omitempty" yaml:"error,omitempty"`

	AllEmails   []string `json:"all_emails,omitempty" yaml:"all_emails,omitempty"`
	AllPhones   []string `json:"all_phones,omitempty" yaml:"all_phones,omitempty"`
	AllLinkedIn []string `json:"all_linkedin,omitempty" yaml:"all_linkedin,omitempty"`

	// Nulls marks fields that were sent as an explicit JSON null. Merge
	// clears them on the target; a field that was simply omitted is kept.
	Nulls Fields `json:"-" yaml:"-"`
}

// Fields is a set of Lead fields.
type Fields uint16

const (
	FieldURL Fields = 1 << iota
	FieldTitle
	FieldEmail
	FieldPhone
	FieldLocationHQ
	FieldLinkedInURL
	FieldProfileURL
	FieldRank
	FieldError
	FieldAllEmails
	FieldAllPhones
	FieldAllLinkedIn
)

// Has reports whether f contains every field of g.
func (f Fields) Has(g Fields) bool {
	return f&g == g
}

var jsonFields = map[string]Fields{
	"url":          FieldURL,
	"title":        FieldTitle,
	"email":        FieldEmail,
	"phone":        FieldPhone,
	"location_hq":  FieldLocationHQ,
	"linkedin_url": FieldLinkedInURL,
	"profile_url":  FieldProfileURL,
	"rank":         FieldRank,
	"error":        FieldError,
	"all_emails":   FieldAllEmails,
	"all_phones":   FieldAllPhones,
	"all_linkedin": FieldAllLinkedIn,
}

var jsonNull = []byte("null")

// UnmarshalJSON decodes a lead and records which fields were explicitly null.
func (l *Lead) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), jsonNull) {
		return nil
	}

	type plain Lead
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*l = Lead(p)
	l.Nulls = 0
	for name, v := range raw {
		if f, ok := jsonFields[name]; ok && bytes.Equal(bytes.TrimSpace(v), jsonNull) {
			l.Nulls |= f
		}
	}
	return nil
}

// ExportHeader is the column order shared by CSV, XLSX and sheet exports.
var ExportHeader = []string{"rank", "title", "url", "email", "phone", "linkedin_url", "location_hq"}

// Key returns the identity key of the lead (its URL, or "" when absent).
func (l Lead) Key() string {
	return Deref(l.URL)
}

// Merge returns l overwritten by every non-nil field of update. Fields that
// update marks as explicitly null are cleared. The result carries no Nulls.
func (l Lead) Merge(update Lead) Lead {
	out := l
	out.Nulls = 0
	mergeString(&out.URL, update.URL, update.Nulls.Has(FieldURL))
	mergeString(&out.Title, update.Title, update.Nulls.Has(FieldTitle))
	mergeString(&out.Email, update.Email, update.Nulls.Has(FieldEmail))
	mergeString(&out.Phone, update.Phone, update.Nulls.Has(FieldPhone))
	mergeString(&out.LocationHQ, update.LocationHQ, update.Nulls.Has(FieldLocationHQ))
	mergeString(&out.LinkedInURL, update.LinkedInURL, update.Nulls.Has(FieldLinkedInURL))
	mergeString(&out.ProfileURL, update.ProfileURL, update.Nulls.Has(FieldProfileURL))
	mergeString(&out.Error, update.Error, update.Nulls.Has(FieldError))

	switch {
	case update.Rank != nil:
		out.Rank = update.Rank
	case update.Nulls.Has(FieldRank):
		out.Rank = nil
	}
	mergeList(&out.AllEmails, update.AllEmails, update.Nulls.Has(FieldAllEmails))
	mergeList(&out.AllPhones, update.AllPhones, update.Nulls.Has(FieldAllPhones))
	mergeList(&out.AllLinkedIn, update.AllLinkedIn, update.Nulls.Has(FieldAllLinkedIn))
	return out
}

func mergeString(dst **string, v *string, null bool) {
	switch {
	case v != nil:
		*dst = v
	case null:
		*dst = nil
	}
}

func mergeList(dst *[]string, v []string, null bool) {
	switch {
	case v != nil:
		*dst = v
	case null:
		*dst = nil
	}
}

// Row returns the export tuple [rank, title, url, email, phone, linkedin_url, location_hq].
// Absent values are nil so they encode as JSON null.
func (l Lead) Row() []any {
	row := make([]any, 0, len(ExportHeader))
	if l.Rank != nil {
		row = append(row, *l.Rank)
	} else {
		row = append(row, nil)
	}
	for _, s := range []*string{l.Title, l.URL, l.Email, l.Phone, l.LinkedInURL, l.LocationHQ} {
		if s != nil {
			row = append(row, *s)
		} else {
			row = append(row, nil)
		}
	}
	return row
}

// Record returns the export tuple as strings, with absent values empty.
func (l Lead) Record() []string {
	return []string{
		FormatRank(l.Rank),
		Deref(l.Title),
		Deref(l.URL),
		Deref(l.Email),
		Deref(l.Phone),
		Deref(l.LinkedInURL),
		Deref(l.LocationHQ),
	}
}

// PrimaryLink is the linkedin profile when known, otherwise the page URL.
func (l Lead) PrimaryLink() string {
	if s := Deref(l.LinkedInURL); s != "" {
		return s
	}
	return Deref(l.URL)
}

// ProfileLink is the generic profile link, falling back to the linkedin profile.
func (l Lead) ProfileLink() string {
	if s := Deref(l.ProfileURL); s != "" {
		return s
	}
	return Deref(l.LinkedInURL)
}

// FormatRank renders a rank the shortest way ("3", "2.5"), or "" when absent.
func FormatRank(r *float64) string {
	if r == nil {
		return ""
	}
	return strconv.FormatFloat(*r, 'f', -1, 64)
}

// String returns a pointer to s.
func String(s string) *string {
	return &s
}

// Float returns a pointer to f.
func Float(f float64) *float64 {
	return &f
}

// Deref returns *s, or "" for nil.
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Hit is a raw search candidate from the search phase.
type Hit struct {
	Href  string `json:"href,omitempty"`
	URL   string `json:"url,omitempty"`
	Title string `json:"title,omitempty"`
}

// Link returns the hit's URL, preferring href.
func (h Hit) Link() string {
	if h.Href != "" {
		return h.Href
	}
	return h.URL
}
