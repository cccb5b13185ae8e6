// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// Status is the normative verdict a tradition gives for a question.
type Status string

// Allowed status values. An empty status means "not applicable".
const (
	StatusPermitted  Status = "permitted"
	StatusForbidden  Status = "forbidden"
	StatusDisliked   Status = "disliked"
	StatusUnsure     Status = "unsure"
	StatusEncouraged Status = "encouraged"
	StatusObligatory Status = "obligatory"
)

// ValidStatus reports whether s is one of the allowed status values.
func ValidStatus(s Status) bool {
	switch s {
	case StatusPermitted, StatusForbidden, StatusDisliked, StatusUnsure, StatusEncouraged, StatusObligatory:
		return true
	}
	return false
}

// Citation is a titled link cited by a synthesized section.
type Citation struct {
	Title string `json:"title" yaml:"title"`
	URL   string `json:"url" yaml:"url"`
}

// Section is one tradition's part of a synthesized answer.
type Section struct {
	FeaturedQuote       string     `json:"featured_quote" yaml:"featured_quote"`
	FeaturedQuoteSource *Citation  `json:"featured_quote_source" yaml:"featured_quote_source"`
	Status              Status     `json:"status" yaml:"status"`
	Summary             string     `json:"summary" yaml:"summary"`
	Sources             []Citation `json:"sources" yaml:"sources"`
}

// IsEmpty reports whether the section carries neither a summary nor sources.
func (s Section) IsEmpty() bool {
	return s.Summary == "" && len(s.Sources) == 0
}

// Conclusion is one logically valid outcome across traditions.
type Conclusion struct {
	Label   string `json:"label" yaml:"label"`
	Summary string `json:"summary" yaml:"summary"`
}

// Answer is the structured, citation-annotated comparative answer returned
// by the synthesis service.
type Answer struct {
	Title       string             `json:"title" yaml:"title"`
	Sections    map[string]Section `json:"sections" yaml:"sections"`
	Conclusions []Conclusion       `json:"conclusions" yaml:"conclusions"`
}
