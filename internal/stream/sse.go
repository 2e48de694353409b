package stream

import (
	"bufio"
	"bytes"
	"errors"
	"io"

	"github.com/rotisserie/eris"
)

// maxFrameBytes bounds one SSE frame. Final done events carry the whole result set.
const maxFrameBytes = 4 << 20

// errFrameTooLarge reports a frame that was discarded for exceeding the
// frame limit. The reader stays usable.
var errFrameTooLarge = eris.New("stream: frame exceeds size limit")

// frameReader splits a text/event-stream body into the data payloads of its frames.
type frameReader struct {
	r    *bufio.Reader
	max  int
	line []byte
	data bytes.Buffer
}

func newFrameReader(r io.Reader) *frameReader {
	return &frameReader{r: bufio.NewReaderSize(r, 64*1024), max: maxFrameBytes}
}

// Next returns the data of the next frame that has any. Multi-line data is
// joined with "\n". Comments and event/id/retry fields are ignored. A frame cut
// off by the end of the body is still returned; io.EOF follows. A frame larger
// than the limit is consumed and reported as errFrameTooLarge.
func (f *frameReader) Next() ([]byte, error) {
	f.data.Reset()
	hasData, dropped := false, false

	for {
		line, tooLong, err := f.readLine()
		if errors.Is(err, io.EOF) {
			switch {
			case dropped:
				return nil, errFrameTooLarge
			case hasData:
				return bytes.Clone(f.data.Bytes()), nil
			}
			return nil, io.EOF
		}
		if err != nil {
			return nil, eris.Wrap(err, "stream: read frame")
		}

		if tooLong {
			dropped = true
			continue
		}
		if len(line) == 0 {
			switch {
			case dropped:
				return nil, errFrameTooLarge
			case hasData:
				return bytes.Clone(f.data.Bytes()), nil
			}
			continue
		}
		if line[0] == ':' || dropped {
			continue
		}

		field, value := line, []byte(nil)
		if i := bytes.IndexByte(line, ':'); i >= 0 {
			field, value = line[:i], line[i+1:]
			value = bytes.TrimPrefix(value, []byte(" "))
		}
		if string(field) != "data" {
			continue
		}
		if f.data.Len()+len(value)+1 > f.max {
			dropped = true
			continue
		}
		if hasData {
			f.data.WriteByte('\n')
		}
		f.data.Write(value)
		hasData = true
	}
}

// readLine returns the next line without its terminator. A line longer than
// the limit is read to its end and reported with tooLong and no content. A
// last line without a terminator is returned before io.EOF.
func (f *frameReader) readLine() (line []byte, tooLong bool, err error) {
	f.line = f.line[:0]
	for {
		chunk, err := f.r.ReadSlice('\n')
		if !tooLong {
			if len(f.line)+len(chunk) > f.max+2 {
				tooLong = true
				f.line = f.line[:0]
			} else {
				f.line = append(f.line, chunk...)
			}
		}

		switch {
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF):
			if len(f.line) == 0 && !tooLong {
				return nil, false, io.EOF
			}
		case err != nil:
			return nil, false, err
		}

		if tooLong {
			return nil, true, nil
		}
		line = bytes.TrimSuffix(f.line, []byte("\n"))
		return bytes.TrimSuffix(line, []byte("\r")), false, nil
	}
}
