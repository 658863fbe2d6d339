// Package wire implements the bridge text framing.
//
// A request envelope is serialized to a single JSON payload. Payloads that
// fit under the transport ceiling travel as-is; oversized payloads are split
// into an ordered sequence of chunk frames:
//
//	<prefix><sessionId>|<chunkIndex>|<totalChunks>|<fragment>
//
// Concatenating the fragments in index order reproduces the serialized
// envelope exactly.
package wire

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/pithecene-io/sluice/types"
)

// Frame size constants.
const (
	// MaxChunkSize is the transport's hard per-message ceiling in bytes.
	// Derived from the embedding layer's message size limit, with margin
	// for the non-chunked case.
	MaxChunkSize = 1400
	// FrameOverhead is reserved per chunk frame for metadata: the prefix,
	// a session id, two indices, and three separators.
	FrameOverhead = 64
	// ChunkPrefix is the sentinel distinguishing chunk frames from ordinary
	// single messages on the same channel.
	ChunkPrefix = "__CHUNK__"
)

// chunkSeparator separates the metadata fields of a chunk frame.
const chunkSeparator = "|"

// FrameErrorKind classifies chunk frame parsing errors.
type FrameErrorKind int

const (
	// FrameErrorFormat indicates a frame that does not match the chunk layout.
	FrameErrorFormat FrameErrorKind = iota
	// FrameErrorRange indicates indices outside the valid range.
	FrameErrorRange
)

// FrameError represents a chunk frame parsing error.
type FrameError struct {
	Kind FrameErrorKind
	Msg  string
	Err  error
}

func (e *FrameError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *FrameError) Unwrap() error {
	return e.Err
}

// Chunk is one parsed chunk frame.
type Chunk struct {
	// SessionID identifies the chunked transfer this fragment belongs to.
	SessionID string
	// Index is the zero-based position of the fragment.
	Index int
	// Total is the fixed fragment count for the session.
	Total int
	// Fragment is the raw payload slice. May contain separator characters;
	// parsing splits on at most three separators.
	Fragment string
}

// EncodeEnvelope serializes an envelope to its wire payload.
// Serialization failure indicates a programming error and is returned
// synchronously.
func EncodeEnvelope(env types.Envelope) (string, error) {
	if err := env.Validate(); err != nil {
		return "", err
	}
	out, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("encode envelope: %w", err)
	}
	return string(out), nil
}

// NeedsChunking reports whether a payload exceeds the single-message ceiling.
func NeedsChunking(payload string, limit int) bool {
	return len(payload) > limit
}

// Split divides a payload into fragments of at most limit-FrameOverhead
// bytes each. Splitting is pure: concatenating the fragments in order
// reproduces the input exactly.
//
// Returns an error if limit leaves no room for payload bytes.
func Split(payload string, limit int) ([]string, error) {
	fragSize := limit - FrameOverhead
	if fragSize <= 0 {
		return nil, fmt.Errorf("chunk limit %d leaves no room below overhead %d", limit, FrameOverhead)
	}

	if payload == "" {
		return []string{""}, nil
	}

	fragments := make([]string, 0, (len(payload)+fragSize-1)/fragSize)
	for start := 0; start < len(payload); start += fragSize {
		end := start + fragSize
		if end > len(payload) {
			end = len(payload)
		}
		fragments = append(fragments, payload[start:end])
	}
	return fragments, nil
}

// FormatChunk renders one chunk frame.
// The frame always fits under MaxChunkSize by construction: fragments are
// at most MaxChunkSize-FrameOverhead bytes and the metadata fits within
// FrameOverhead.
func FormatChunk(sessionID string, index, total int, fragment string) string {
	var b strings.Builder
	b.Grow(len(ChunkPrefix) + len(sessionID) + len(fragment) + 16)
	b.WriteString(ChunkPrefix)
	b.WriteString(sessionID)
	b.WriteString(chunkSeparator)
	b.WriteString(strconv.Itoa(index))
	b.WriteString(chunkSeparator)
	b.WriteString(strconv.Itoa(total))
	b.WriteString(chunkSeparator)
	b.WriteString(fragment)
	return b.String()
}

// IsChunkFrame reports whether a message carries the chunk sentinel.
func IsChunkFrame(msg string) bool {
	return strings.HasPrefix(msg, ChunkPrefix)
}

// ParseChunk parses a chunk frame.
// The fragment may itself contain separator characters; only the first
// three separators delimit metadata.
func ParseChunk(msg string) (*Chunk, error) {
	if !IsChunkFrame(msg) {
		return nil, &FrameError{Kind: FrameErrorFormat, Msg: "missing chunk prefix"}
	}

	body := msg[len(ChunkPrefix):]
	parts := strings.SplitN(body, chunkSeparator, 4)
	if len(parts) != 4 {
		return nil, &FrameError{Kind: FrameErrorFormat, Msg: "invalid chunk format"}
	}

	sessionID := parts[0]
	if sessionID == "" {
		return nil, &FrameError{Kind: FrameErrorFormat, Msg: "empty session id"}
	}

	index, err := strconv.Atoi(parts[1])
	if err != nil {
		return nil, &FrameError{Kind: FrameErrorFormat, Msg: "invalid chunk index", Err: err}
	}
	total, err := strconv.Atoi(parts[2])
	if err != nil {
		return nil, &FrameError{Kind: FrameErrorFormat, Msg: "invalid chunk total", Err: err}
	}

	if total < 1 {
		return nil, &FrameError{Kind: FrameErrorRange, Msg: fmt.Sprintf("total chunks %d out of range", total)}
	}
	if index < 0 || index >= total {
		return nil, &FrameError{Kind: FrameErrorRange, Msg: fmt.Sprintf("chunk index %d out of range [0,%d)", index, total)}
	}

	return &Chunk{
		SessionID: sessionID,
		Index:     index,
		Total:     total,
		Fragment:  parts[3],
	}, nil
}
