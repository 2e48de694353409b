// Package stream consumes the backend's server-sent search event stream.
package stream

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-finder/internal/model"
)

// Kind identifies the variant of an Event.
type Kind string

const (
	KindProgress      Kind = "progress"
	KindSearchResults Kind = "search_results"
	KindItem          Kind = "item"
	KindDone          Kind = "done"
	KindError         Kind = "error"
)

// ErrUnknownEvent is returned by Decode for a well-formed envelope with an unrecognized type.
var ErrUnknownEvent = eris.New("stream: unknown event type")

// Event is one message of a search session. Which fields are set depends on Kind:
//
//	progress        Percent
//	search_results  Hits
//	item            Item, optionally Percent
//	done            optionally Percent and Final
//	error           Message, optionally URL and Phase
type Event struct {
	Kind    Kind
	Percent *float64
	Hits    []model.Hit
	Item    *model.Lead

	// Final is the authoritative result set carried by a done event. nil means
	// the event carried none; a non-nil pointer to an empty slice means "no results".
	Final *[]model.Lead

	Message string
	URL     string
	Phase   string
}

// Terminal reports whether e ends a session.
func (e Event) Terminal() bool {
	return e.Kind == KindDone || e.Kind == KindError
}

// envelope is the wire shape of every event. "results" carries hits for
// search_results and leads for done, so it is decoded after dispatch.
type envelope struct {
	Type    string          `json:"type"`
	Percent *float64        `json:"percent"`
	Results json.RawMessage `json:"results"`
	Item    *scrapedItem    `json:"item"`
	Msg     string          `json:"msg"`
	Message string          `json:"message"`
	URL     string          `json:"url"`
	Phase   string          `json:"phase"`
}

// scrapedItem accepts both processed leads and the crawler's raw item shape,
// which reports contact data as lists.
type scrapedItem struct {
	model.Lead
	Emails       []string `json:"emails"`
	Phones       []string `json:"phones"`
	Locations    []string `json:"location"`
	LinkedInURLs []string `json:"linkedin_urls"`
}

// UnmarshalJSON decodes the embedded Lead, keeping its explicit-null
// tracking, and the raw list fields alongside it.
func (s *scrapedItem) UnmarshalJSON(data []byte) error {
	var lists struct {
		Emails       []string `json:"emails"`
		Phones       []string `json:"phones"`
		Locations    []string `json:"location"`
		LinkedInURLs []string `json:"linkedin_urls"`
	}
	if err := json.Unmarshal(data, &lists); err != nil {
		return err
	}
	if err := json.Unmarshal(data, &s.Lead); err != nil {
		return err
	}
	s.Emails, s.Phones = lists.Emails, lists.Phones
	s.Locations, s.LinkedInURLs = lists.Locations, lists.LinkedInURLs
	return nil
}

func (s scrapedItem) lead() model.Lead {
	l := s.Lead
	if l.Email == nil && len(s.Emails) > 0 {
		l.Email = model.String(s.Emails[0])
	}
	if l.AllEmails == nil && s.Emails != nil {
		l.AllEmails = s.Emails
	}
	if l.Phone == nil && len(s.Phones) > 0 {
		l.Phone = model.String(s.Phones[0])
	}
	if l.AllPhones == nil && s.Phones != nil {
		l.AllPhones = s.Phones
	}
	if l.LocationHQ == nil && len(s.Locations) > 0 {
		l.LocationHQ = model.String(s.Locations[0])
	}
	if l.AllLinkedIn == nil && s.LinkedInURLs != nil {
		l.AllLinkedIn = s.LinkedInURLs
	}
	return l
}

func hasValue(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && !bytes.Equal(raw, []byte("null"))
}

// Decode parses one UTF-8 JSON envelope.
func Decode(data []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Event{}, eris.Wrap(err, "stream: decode envelope")
	}

	ev := Event{Kind: Kind(env.Type), Percent: env.Percent}
	switch ev.Kind {
	case KindProgress:
	case KindSearchResults:
		if hasValue(env.Results) {
			if err := json.Unmarshal(env.Results, &ev.Hits); err != nil {
				return Event{}, eris.Wrap(err, "stream: decode search_results")
			}
		}
	case KindItem:
		if env.Item == nil {
			return Event{}, eris.New("stream: item event without item")
		}
		l := env.Item.lead()
		ev.Item = &l
	case KindDone:
		if hasValue(env.Results) {
			final := []model.Lead{}
			if err := json.Unmarshal(env.Results, &final); err != nil {
				return Event{}, eris.Wrap(err, "stream: decode done results")
			}
			ev.Final = &final
		}
	case KindError:
		ev.Message = env.Msg
		if ev.Message == "" {
			ev.Message = env.Message
		}
		ev.URL = env.URL
		ev.Phase = env.Phase
	case "":
		return Event{}, eris.New("stream: envelope without type")
	default:
		return Event{}, eris.Wrap(ErrUnknownEvent, fmt.Sprintf("stream: type %q", env.Type))
	}
	return ev, nil
}
