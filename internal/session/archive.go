package session

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/user/crisis-command/internal/types"
)

// Archive is an append-only, zstd-compressed JSON-lines transcript of a
// session's scored actions. Writes are best-effort: an archive failure
// never rolls back an applied action.
type Archive struct {
	mu     sync.Mutex
	file   *os.File
	enc    *zstd.Encoder
	w      *bufio.Writer
	closed bool
}

// OpenArchive creates the transcript file for a session
func OpenArchive(dir, sessionID string) (*Archive, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}

	path := filepath.Join(dir, sessionID+".jsonl.zst")
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive file: %w", err)
	}

	enc, err := zstd.NewWriter(file, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to create archive encoder: %w", err)
	}

	return &Archive{
		file: file,
		enc:  enc,
		w:    bufio.NewWriterSize(enc, 64*1024),
	}, nil
}

// Append writes one action record to the transcript. Each record is
// flushed through the encoder so a crash mid-session keeps everything
// written so far.
func (a *Archive) Append(record types.ActionRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return fmt.Errorf("archive closed")
	}

	line, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode action record: %w", err)
	}
	if _, err := a.w.Write(line); err != nil {
		return fmt.Errorf("failed to write action record: %w", err)
	}
	if err := a.w.WriteByte('\n'); err != nil {
		return fmt.Errorf("failed to write action record: %w", err)
	}
	if err := a.w.Flush(); err != nil {
		return fmt.Errorf("failed to flush action record: %w", err)
	}
	if err := a.enc.Flush(); err != nil {
		return fmt.Errorf("failed to flush action record: %w", err)
	}
	return nil
}

// Close flushes and closes the transcript
func (a *Archive) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return nil
	}
	a.closed = true

	if err := a.w.Flush(); err != nil {
		a.enc.Close()
		a.file.Close()
		return fmt.Errorf("failed to flush archive: %w", err)
	}
	if err := a.enc.Close(); err != nil {
		a.file.Close()
		return fmt.Errorf("failed to close archive encoder: %w", err)
	}
	return a.file.Close()
}
