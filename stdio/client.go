package stdio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"

	"github.com/pithecene-io/sluice/log"
)

// ErrClosed is returned by Send after the client's read side has
// terminated.
var ErrClosed = errors.New("stdio: transport closed")

// CompletionHandler receives out-of-band session completion signals
// arriving from the host.
type CompletionHandler func(sessionID, response string)

// Client is the caller side of the process transport. It writes message
// frames to w, correlates acks arriving on r by frame id, and routes
// completion frames to the completion handler.
//
// Client implements the bridge Transport contract: Send blocks until the
// host acknowledges the message.
type Client struct {
	writeMu sync.Mutex
	w       io.Writer

	pendingMu sync.Mutex
	pending   map[string]chan *AckFrame

	onCompletion CompletionHandler
	lg           *log.Logger

	done    chan struct{}
	readErr error
}

// NewClient creates a client over the given stream pair and starts its
// read loop. The read loop runs until r reaches EOF or a fatal frame
// error occurs.
func NewClient(w io.Writer, r io.Reader, onCompletion CompletionHandler, lg *log.Logger) *Client {
	if lg == nil {
		lg = log.Nop()
	}
	c := &Client{
		w:            w,
		pending:      make(map[string]chan *AckFrame),
		onCompletion: onCompletion,
		lg:           lg,
		done:         make(chan struct{}),
	}
	go c.readLoop(r)
	return c
}

// Send transmits one bridge message and blocks until the host
// acknowledges it, the context is canceled, or the transport closes.
func (c *Client) Send(ctx context.Context, message string) (string, error) {
	select {
	case <-c.done:
		return "", c.closeErr()
	default:
	}

	id := uuid.NewString()
	ackCh := make(chan *AckFrame, 1)

	c.pendingMu.Lock()
	c.pending[id] = ackCh
	c.pendingMu.Unlock()
	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
	}()

	frame := MessageFrame{Type: MessageType, ID: id, Body: message}
	c.writeMu.Lock()
	err := WriteFrame(c.w, &frame)
	c.writeMu.Unlock()
	if err != nil {
		return "", fmt.Errorf("write message frame: %w", err)
	}

	select {
	case ack := <-ackCh:
		if ack.Error != "" {
			return "", fmt.Errorf("host rejected message: %s", ack.Error)
		}
		return ack.Body, nil
	case <-ctx.Done():
		return "", ctx.Err()
	case <-c.done:
		return "", c.closeErr()
	}
}

// Done is closed when the read loop terminates.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Err reports why the read loop terminated, or nil for clean EOF.
// Valid only after Done is closed.
func (c *Client) Err() error {
	return c.readErr
}

func (c *Client) closeErr() error {
	if c.readErr != nil {
		return fmt.Errorf("%w: %w", ErrClosed, c.readErr)
	}
	return ErrClosed
}

func (c *Client) readLoop(r io.Reader) {
	defer close(c.done)

	decoder := NewFrameDecoder(r)
	for {
		payload, err := decoder.ReadFrame()
		if err != nil {
			if err != io.EOF {
				c.readErr = err
				c.lg.Error("transport read failed", map[string]any{"error": err.Error()})
			}
			return
		}

		frame, err := DecodeFrame(payload)
		if err != nil {
			// Decode errors leave the stream aligned; skip the frame.
			c.lg.Warn("discarding undecodable frame", map[string]any{"error": err.Error()})
			continue
		}

		switch f := frame.(type) {
		case *AckFrame:
			c.deliverAck(f)
		case *CompletionFrame:
			if c.onCompletion != nil {
				c.onCompletion(f.SessionID, f.Response)
			}
		default:
			c.lg.Warn("unexpected frame type from host", nil)
		}
	}
}

func (c *Client) deliverAck(ack *AckFrame) {
	c.pendingMu.Lock()
	ch, ok := c.pending[ack.ID]
	c.pendingMu.Unlock()
	if !ok {
		c.lg.Debug("ack for unknown message id", map[string]any{"id": ack.ID})
		return
	}
	ch <- ack
}
