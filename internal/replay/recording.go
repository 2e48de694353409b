// Package replay serves a recorded search session as a stand-in backend.
package replay

import (
	"bufio"
	"bytes"
	"io"
	"os"

	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-finder/internal/model"
	"github.com/sells-group/lead-finder/internal/reconcile"
	"github.com/sells-group/lead-finder/internal/stream"
)

// maxLineSize bounds one recorded event.
const maxLineSize = 4 << 20

// Recording is an ordered list of event envelopes, one JSON object per line.
type Recording struct {
	raw    [][]byte
	events []stream.Event
}

// Load reads a JSONL recording. Blank lines are skipped; any other line
// must decode as an event.
func Load(r io.Reader) (*Recording, error) {
	rec := &Recording{}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLineSize)

	line := 0
	for sc.Scan() {
		line++
		b := bytes.TrimSpace(sc.Bytes())
		if len(b) == 0 {
			continue
		}
		ev, err := stream.Decode(b)
		if err != nil {
			return nil, eris.Wrapf(err, "replay: line %d", line)
		}
		rec.raw = append(rec.raw, bytes.Clone(b))
		rec.events = append(rec.events, ev)
	}
	if err := sc.Err(); err != nil {
		return nil, eris.Wrap(err, "replay: read recording")
	}
	return rec, nil
}

// LoadFile reads a JSONL recording from path.
func LoadFile(path string) (*Recording, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "replay: open %s", path)
	}
	defer f.Close() //nolint:errcheck
	return Load(f)
}

// Len returns the number of recorded events.
func (r *Recording) Len() int { return len(r.raw) }

// Events returns the decoded events in order.
func (r *Recording) Events() []stream.Event {
	return append([]stream.Event(nil), r.events...)
}

// Leads returns the result set the recording converges to.
func (r *Recording) Leads() []model.Lead {
	return reconcile.FoldAll(reconcile.New(nil), r.events).Leads()
}
