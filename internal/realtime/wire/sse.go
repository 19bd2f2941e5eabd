package wire

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
)

// WriteSSE writes one event-stream message. id is omitted when empty so the
// client keeps its previous last event id.
func WriteSSE(w io.Writer, id string, typ string, data []byte) error {
	var buf bytes.Buffer
	if id != "" {
		buf.WriteString("id: ")
		buf.WriteString(id)
		buf.WriteByte('\n')
	}
	if typ != "" {
		buf.WriteString("event: ")
		buf.WriteString(typ)
		buf.WriteByte('\n')
	}
	for _, line := range bytes.Split(data, []byte("\n")) {
		buf.WriteString("data: ")
		buf.Write(line)
		buf.WriteByte('\n')
	}
	buf.WriteByte('\n')

	if _, err := w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("wire.WriteSSE: %w", err)
	}
	return nil
}

// WriteSSEComment writes a comment line. Clients ignore it; proxies see
// traffic.
func WriteSSEComment(w io.Writer, text string) error {
	if _, err := fmt.Fprintf(w, ": %s\n\n", text); err != nil {
		return fmt.Errorf("wire.WriteSSEComment: %w", err)
	}
	return nil
}

// WriteSSERetry sets the client's reconnection delay in milliseconds.
func WriteSSERetry(w io.Writer, ms int) error {
	if _, err := fmt.Fprintf(w, "retry: %d\n\n", ms); err != nil {
		return fmt.Errorf("wire.WriteSSERetry: %w", err)
	}
	return nil
}

// SSEEvent is one dispatched event-stream message.
type SSEEvent struct {
	ID    string
	Event string
	Data  []byte
}

// SSEReader parses an event stream.
type SSEReader struct {
	r      *bufio.Reader
	lastID string
}

func NewSSEReader(r io.Reader) *SSEReader {
	return &SSEReader{r: bufio.NewReader(r)}
}

// Next returns the next message that carries data. Comments and retry hints
// are skipped. ID holds the last id seen on the stream, which may come from
// an earlier message.
func (s *SSEReader) Next() (SSEEvent, error) {
	var (
		ev      SSEEvent
		data    [][]byte
		hasData bool
	)

	for {
		line, err := s.r.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) && line == "" {
				return SSEEvent{}, io.EOF
			}
			if !errors.Is(err, io.EOF) {
				return SSEEvent{}, fmt.Errorf("wire.SSEReader.Next: %w", err)
			}
		}
		line = strings.TrimRight(line, "\r\n")

		if line == "" {
			if hasData {
				ev.ID = s.lastID
				ev.Data = bytes.Join(data, []byte("\n"))
				return ev, nil
			}
			ev = SSEEvent{}
			if err != nil {
				return SSEEvent{}, io.EOF
			}
			continue
		}

		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")

		switch field {
		case "id":
			s.lastID = value
		case "event":
			ev.Event = value
		case "data":
			data = append(data, []byte(value))
			hasData = true
		}

		if err != nil {
			return SSEEvent{}, io.EOF
		}
	}
}
