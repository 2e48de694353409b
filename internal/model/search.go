package model

import "time"

// SearchStatus is the lifecycle state of one search session.
type SearchStatus string

const (
	SearchStatusIdle      SearchStatus = "idle"
	SearchStatusStreaming SearchStatus = "streaming"
	SearchStatusDone      SearchStatus = "done"
	SearchStatusFailed    SearchStatus = "failed"
)

// Terminal reports whether the status ends a session.
func (s SearchStatus) Terminal() bool {
	return s == SearchStatusDone || s == SearchStatusFailed
}

// SearchMode records which transport produced a search's results.
type SearchMode string

const (
	SearchModeStream   SearchMode = "stream"
	SearchModeFallback SearchMode = "fallback"
)

// Search is one search session and its final result set.
type Search struct {
	ID         string       `json:"id" yaml:"id"`
	Query      string       `json:"query" yaml:"query"`
	MaxResults int          `json:"max_results" yaml:"max_results"`
	Domains    []string     `json:"domains,omitempty" yaml:"domains,omitempty"`
	Status     SearchStatus `json:"status" yaml:"status"`
	Mode       SearchMode   `json:"mode,omitempty" yaml:"mode,omitempty"`
	Error      string       `json:"error,omitempty" yaml:"error,omitempty"`
	Leads      []Lead       `json:"leads" yaml:"leads"`
	CreatedAt  time.Time    `json:"created_at" yaml:"created_at"`
	FinishedAt *time.Time   `json:"finished_at,omitempty" yaml:"finished_at,omitempty"`
}

// Profile is the logged-in user's public profile as reported by the backend.
type Profile struct {
	Name    string `json:"name,omitempty"`
	Email   string `json:"email,omitempty"`
	Picture string `json:"picture,omitempty"`
}

// DisplayName returns the name, falling back to the email.
func (p Profile) DisplayName() string {
	if p.Name != "" {
		return p.Name
	}
	return p.Email
}

// SessionInfo is the backend's view of the current login session.
type SessionInfo struct {
	LoggedIn bool     `json:"logged_in"`
	Profile  *Profile `json:"profile,omitempty"`
}
