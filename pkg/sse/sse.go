// Package sse implements Server-Sent Event parsing and writing, shared by
// the upstream ingestion adapter and the Client Formatter.
//
// Adapted from digitallysavvy/go-ai's
// pkg/providerutils/streaming/sse.go; unlike that single-purpose reader,
// this package's Writer flushes after every event (spec requires no
// batching on the client-facing stream) and exposes a literal
// "data: [DONE]\n\n" writer distinct from a named "done" event, since the
// two supported wire protocols use different terminators.
package sse

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Event is a single Server-Sent Event.
type Event struct {
	Event string
	Data  string
	ID    string
	Retry int
}

// Parser reads Events off a byte stream.
type Parser struct {
	scanner *bufio.Scanner
	err     error
}

// NewParser returns a Parser reading from r.
func NewParser(r io.Reader) *Parser {
	return &Parser{scanner: bufio.NewScanner(r)}
}

// Next returns the next Event, or io.EOF when the stream is exhausted.
func (p *Parser) Next() (*Event, error) {
	if p.err != nil {
		return nil, p.err
	}

	event := &Event{}
	var dataLines []string

	for p.scanner.Scan() {
		line := p.scanner.Text()

		if line == "" {
			if len(dataLines) > 0 || event.Event != "" {
				event.Data = strings.Join(dataLines, "\n")
				return event, nil
			}
			continue
		}

		if strings.HasPrefix(line, ":") {
			continue
		}

		colonIdx := strings.Index(line, ":")
		if colonIdx == -1 {
			continue
		}

		field := line[:colonIdx]
		value := line[colonIdx+1:]
		if len(value) > 0 && value[0] == ' ' {
			value = value[1:]
		}

		switch field {
		case "event":
			event.Event = value
		case "data":
			dataLines = append(dataLines, value)
		case "id":
			event.ID = value
		case "retry":
			if n, err := strconv.Atoi(value); err == nil {
				event.Retry = n
			}
		}
	}

	if err := p.scanner.Err(); err != nil {
		p.err = err
		return nil, err
	}

	if len(dataLines) > 0 || event.Event != "" {
		event.Data = strings.Join(dataLines, "\n")
		return event, nil
	}

	p.err = io.EOF
	return nil, io.EOF
}

// Err returns the terminal parse error, if any (never io.EOF).
func (p *Parser) Err() error {
	if p.err == io.EOF {
		return nil
	}
	return p.err
}

// flusher is satisfied by http.ResponseWriter and anything else that
// supports explicit flush-to-client.
type flusher interface {
	Flush()
}

// Writer writes Events to an underlying stream, flushing after every
// write when the destination supports it.
type Writer struct {
	w       io.Writer
	flusher flusher
}

// NewWriter returns a Writer over w. If w implements Flush() it is
// flushed after every event.
func NewWriter(w io.Writer) *Writer {
	sw := &Writer{w: w}
	if f, ok := w.(flusher); ok {
		sw.flusher = f
	}
	return sw
}

// WriteEvent serializes and flushes one Event.
func (w *Writer) WriteEvent(event Event) error {
	var buf bytes.Buffer

	if event.Event != "" {
		fmt.Fprintf(&buf, "event: %s\n", event.Event)
	}
	if event.ID != "" {
		fmt.Fprintf(&buf, "id: %s\n", event.ID)
	}
	if event.Retry > 0 {
		fmt.Fprintf(&buf, "retry: %d\n", event.Retry)
	}
	for _, line := range strings.Split(event.Data, "\n") {
		fmt.Fprintf(&buf, "data: %s\n", line)
	}
	buf.WriteString("\n")

	if _, err := w.w.Write(buf.Bytes()); err != nil {
		return err
	}
	if w.flusher != nil {
		w.flusher.Flush()
	}
	return nil
}

// WriteData writes a data-only, unnamed event — the OpenAI wire shape.
func (w *Writer) WriteData(data string) error {
	return w.WriteEvent(Event{Data: data})
}

// WriteNamed writes a named event with data — the Anthropic wire shape.
func (w *Writer) WriteNamed(eventType, data string) error {
	return w.WriteEvent(Event{Event: eventType, Data: data})
}

// WriteOpenAIDone writes the OpenAI stream terminator: "data: [DONE]\n\n".
func (w *Writer) WriteOpenAIDone() error {
	return w.WriteData("[DONE]")
}

// IsDone reports whether an Event is a stream terminator.
func IsDone(event *Event) bool {
	return event.Data == "[DONE]"
}
