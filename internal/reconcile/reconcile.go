// Package reconcile folds stream events into one ordered, URL-deduplicated lead set.
package reconcile

import (
	"github.com/sells-group/lead-finder/internal/classify"
	"github.com/sells-group/lead-finder/internal/model"
	"github.com/sells-group/lead-finder/internal/stream"
)

// Set is an ordered lead set with at most one lead per non-empty URL.
// The zero value is an empty set. A Set is never modified in place; every
// operation returns a new one.
type Set struct {
	leads []model.Lead
	index map[string]int
}

// New builds a set from leads in order, keeping the first position of each
// URL and merging later duplicates into it.
func New(leads []model.Lead) Set {
	var s Set
	for _, l := range leads {
		s = s.upsert(l)
	}
	return s
}

// Len returns the number of leads.
func (s Set) Len() int {
	return len(s.leads)
}

// Leads returns a copy of the leads in order.
func (s Set) Leads() []model.Lead {
	out := make([]model.Lead, len(s.leads))
	copy(out, s.leads)
	return out
}

// Lookup returns the lead stored under url.
func (s Set) Lookup(url string) (model.Lead, bool) {
	if url == "" {
		return model.Lead{}, false
	}
	i, ok := s.index[url]
	if !ok {
		return model.Lead{}, false
	}
	return s.leads[i], true
}

// Fold returns the set that results from applying ev to s.
func Fold(s Set, ev stream.Event) Set {
	switch ev.Kind {
	case stream.KindSearchResults:
		return s.appendHits(ev.Hits)
	case stream.KindItem:
		if ev.Item == nil {
			return s
		}
		return s.upsert(classify.Annotate(*ev.Item))
	case stream.KindDone:
		if ev.Final == nil {
			return s
		}
		return replace(*ev.Final)
	default:
		return s
	}
}

// FoldAll applies events to s in order.
func FoldAll(s Set, events []stream.Event) Set {
	for _, ev := range events {
		s = Fold(s, ev)
	}
	return s
}

// Merge folds one updated lead into s by URL, as an item event would.
func Merge(s Set, l model.Lead) Set {
	return s.upsert(classify.Annotate(l))
}

// Put stores l in the slot of its URL as is, or appends it when the URL is
// new or empty.
func Put(s Set, l model.Lead) Set {
	l.Nulls = 0
	out := s.clone(1)
	if k := l.Key(); k != "" {
		if i, ok := out.index[k]; ok {
			out.leads[i] = l
			return out
		}
		out.index[k] = len(out.leads)
	}
	out.leads = append(out.leads, l)
	return out
}

// replace builds a set holding exactly leads. Positions follow the given
// order; the index keeps the first position of a repeated URL.
func replace(leads []model.Lead) Set {
	s := Set{
		leads: make([]model.Lead, len(leads)),
		index: make(map[string]int, len(leads)),
	}
	copy(s.leads, leads)
	for i := range s.leads {
		s.leads[i].Nulls = 0
	}
	for i, l := range s.leads {
		if k := l.Key(); k != "" {
			if _, seen := s.index[k]; !seen {
				s.index[k] = i
			}
		}
	}
	return s
}

func (s Set) clone(extra int) Set {
	out := Set{
		leads: make([]model.Lead, len(s.leads), len(s.leads)+extra),
		index: make(map[string]int, len(s.index)+extra),
	}
	copy(out.leads, s.leads)
	for k, v := range s.index {
		out.index[k] = v
	}
	return out
}

func (s Set) appendHits(hits []model.Hit) Set {
	if len(hits) == 0 {
		return s
	}
	out := s.clone(len(hits))
	for _, h := range hits {
		link := h.Link()
		if link == "" {
			continue
		}
		if _, ok := out.index[link]; ok {
			continue
		}
		l := model.Lead{URL: model.String(link)}
		if h.Title != "" {
			l.Title = model.String(h.Title)
		}
		out.index[link] = len(out.leads)
		out.leads = append(out.leads, classify.Annotate(l))
	}
	return out
}

func (s Set) upsert(l model.Lead) Set {
	out := s.clone(1)
	k := l.Key()
	if k != "" {
		if i, ok := out.index[k]; ok {
			out.leads[i] = out.leads[i].Merge(l)
			return out
		}
		out.index[k] = len(out.leads)
	}
	l.Nulls = 0
	out.leads = append(out.leads, l)
	return out
}
