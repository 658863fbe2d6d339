package stdio

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/pithecene-io/sluice/log"
)

// Handler processes one inbound bridge message and returns the
// transport-level response to acknowledge it with.
type Handler func(ctx context.Context, message string) (string, error)

// Server is the host side of the process transport. It reads message
// frames from a stream, feeds them to a handler, and writes ack frames
// back. Completion signals interleave with acks on the same write stream.
type Server struct {
	writeMu sync.Mutex
	w       io.Writer
	lg      *log.Logger
}

// NewServer creates a server writing acks and completion frames to w.
func NewServer(w io.Writer, lg *log.Logger) *Server {
	if lg == nil {
		lg = log.Nop()
	}
	return &Server{w: w, lg: lg}
}

// CompleteSession writes a completion frame for a chunked session. It
// satisfies the host's completion signal contract, so a Server can be
// wired directly as the host's Completer.
func (s *Server) CompleteSession(sessionID, response string) {
	frame := CompletionFrame{
		Type:      CompletionType,
		SessionID: sessionID,
		Response:  response,
	}
	s.writeMu.Lock()
	err := WriteFrame(s.w, &frame)
	s.writeMu.Unlock()
	if err != nil {
		s.lg.Error("completion frame write failed", map[string]any{
			"session_id": sessionID,
			"error":      err.Error(),
		})
	}
}

// Serve reads message frames from r until EOF, a fatal frame error, or
// context cancellation. Each message is passed to handler and its result
// written back as an ack carrying the same frame id. Handler errors are
// reported in the ack's error field; they do not terminate the loop.
func (s *Server) Serve(ctx context.Context, r io.Reader, handler Handler) error {
	decoder := NewFrameDecoder(r)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		payload, err := decoder.ReadFrame()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read message frame: %w", err)
		}

		frame, err := DecodeFrame(payload)
		if err != nil {
			s.lg.Warn("discarding undecodable frame", map[string]any{"error": err.Error()})
			continue
		}

		msg, ok := frame.(*MessageFrame)
		if !ok {
			s.lg.Warn("unexpected frame type from client", nil)
			continue
		}

		ack := AckFrame{Type: AckType, ID: msg.ID}
		resp, err := handler(ctx, msg.Body)
		if err != nil {
			ack.Error = err.Error()
		} else {
			ack.Body = resp
		}

		s.writeMu.Lock()
		err = WriteFrame(s.w, &ack)
		s.writeMu.Unlock()
		if err != nil {
			return fmt.Errorf("write ack frame: %w", err)
		}
	}
}
