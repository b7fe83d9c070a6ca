// Package sse reads text/event-stream bodies frame by frame.
package sse

import (
	"bufio"
	"errors"
	"io"
	"strings"
)

// ErrDone is returned when the stream sends the literal "data: [DONE]" frame.
var ErrDone = errors.New("sse: stream done")

// MaxLineBytes bounds a single event-stream line.
const MaxLineBytes = 1 << 20

// Event is one dispatched frame. Multiple data lines are joined with "\n".
type Event struct {
	Name string
	Data string
}

// Reader yields frames from an event stream. It is not safe for concurrent use.
type Reader struct {
	r *bufio.Reader
}

func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReaderSize(r, 32*1024)}
}

// Next returns the next frame carrying data. It returns ErrDone on the
// [DONE] sentinel and io.EOF when the body ends with no pending frame.
func (r *Reader) Next() (Event, error) {
	var (
		ev   Event
		data []string
	)
	for {
		line, err := r.readLine()
		if err != nil && !errors.Is(err, io.EOF) {
			return Event{}, err
		}
		if err != nil && line == "" {
			if len(data) > 0 {
				return finish(ev, data)
			}
			return Event{}, io.EOF
		}

		switch {
		case line == "":
			if len(data) > 0 {
				return finish(ev, data)
			}
			ev = Event{}
		case strings.HasPrefix(line, ":"):
			// comment or keep-alive
		default:
			field, value := splitField(line)
			switch field {
			case "data":
				data = append(data, value)
			case "event":
				ev.Name = value
			}
		}

		if err != nil {
			if len(data) > 0 {
				return finish(ev, data)
			}
			return Event{}, io.EOF
		}
	}
}

func finish(ev Event, data []string) (Event, error) {
	ev.Data = strings.Join(data, "\n")
	if strings.TrimSpace(ev.Data) == "[DONE]" {
		return Event{}, ErrDone
	}
	return ev, nil
}

func (r *Reader) readLine() (string, error) {
	var b strings.Builder
	for {
		chunk, err := r.r.ReadSlice('\n')
		if b.Len()+len(chunk) > MaxLineBytes {
			return "", errors.New("sse: line too long")
		}
		b.Write(chunk)
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		line := strings.TrimRight(b.String(), "\r\n")
		return line, err
	}
}

func splitField(line string) (string, string) {
	colon := strings.IndexByte(line, ':')
	if colon < 0 {
		return line, ""
	}
	value := line[colon+1:]
	value = strings.TrimPrefix(value, " ")
	return line[:colon], value
}
