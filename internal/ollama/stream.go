package ollama

import (
	"bufio"
	"io"
	"strings"
	"sync"

	"github.com/tidwall/gjson"

	apierrors "github.com/xiaobo-yang/pdf-chat/internal/errors"
)

// maxLineSize bounds a single NDJSON line
const maxLineSize = 1 << 20

// Chunk is one incremental piece of a streamed reply
type Chunk struct {
	Text string
}

// Stream is a lazy, finite sequence of reply chunks read from an NDJSON body.
// It cannot be restarted; the completion marker is consumed but never yielded.
//
// Usage:
//
//	for s.Next() {
//		fmt.Print(s.Current().Text)
//	}
//	if err := s.Err(); err != nil { ... }
type Stream struct {
	body       io.ReadCloser
	scanner    *bufio.Scanner
	endpoint   string
	textPath   string
	current    Chunk
	err        error
	doneReason string
	finished   bool
	closeOnce  sync.Once
}

func newStream(body io.ReadCloser, endpoint, textPath string) *Stream {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return &Stream{
		body:     body,
		scanner:  scanner,
		endpoint: endpoint,
		textPath: textPath,
	}
}

// Next advances to the next chunk. It returns false once the completion
// marker arrives or an error occurs. A body that ends before the marker is
// reported as a BackendUnavailable error; the partial text is not a reply.
func (s *Stream) Next() bool {
	if s.finished {
		return false
	}

	for s.scanner.Scan() {
		line := strings.TrimSpace(s.scanner.Text())
		if line == "" || !gjson.Valid(line) {
			continue
		}

		parsed := gjson.Parse(line)
		if msg := parsed.Get(PathError); msg.Exists() {
			s.err = apierrors.NewBackendError(backendName, s.endpoint, msg.String())
			s.finish()
			return false
		}

		if parsed.Get(PathDone).Bool() {
			s.doneReason = parsed.Get(PathDoneReason).String()
			s.finish()
			return false
		}

		s.current = Chunk{Text: parsed.Get(s.textPath).String()}
		return true
	}

	if err := s.scanner.Err(); err != nil {
		s.err = apierrors.FromTransport(backendName, s.endpoint, err)
	} else {
		s.err = apierrors.NewBackendErrorWithCause(backendName, s.endpoint,
			"stream ended before completion marker", io.ErrUnexpectedEOF)
	}
	s.finish()
	return false
}

// Current returns the chunk produced by the last successful Next
func (s *Stream) Current() Chunk {
	return s.current
}

// Err returns the error that stopped the stream, if any
func (s *Stream) Err() error {
	return s.err
}

// DoneReason returns the server's stop reason once the completion marker was seen
func (s *Stream) DoneReason() string {
	return s.doneReason
}

// Close releases the underlying body. It is safe to call more than once.
func (s *Stream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.body.Close()
	})
	return err
}

func (s *Stream) finish() {
	s.finished = true
	s.current = Chunk{}
	_ = s.Close()
}

// Collect drains the stream, passing each chunk to onChunk when it is non-nil,
// and returns the concatenated text.
func (s *Stream) Collect(onChunk func(Chunk)) (string, error) {
	var sb strings.Builder
	for s.Next() {
		chunk := s.Current()
		sb.WriteString(chunk.Text)
		if onChunk != nil {
			onChunk(chunk)
		}
	}
	return sb.String(), s.Err()
}

// Collect returns the reply text, draining the stream if the reply is streaming.
// A non-streaming reply is reported to onChunk as a single chunk.
func (r *Reply) Collect(onChunk func(Chunk)) (string, error) {
	if r.Stream == nil {
		if onChunk != nil && r.Text != "" {
			onChunk(Chunk{Text: r.Text})
		}
		return r.Text, nil
	}
	return r.Stream.Collect(onChunk)
}
