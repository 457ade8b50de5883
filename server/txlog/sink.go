// Package txlog is the transaction log: one human readable line per
// request/response pair, appended to a file shared by all workers.
package txlog

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Record is one finished exchange.
type Record struct {
	Time    time.Time
	Remote  string
	Request string // "GET /index.html HTTP/1.1"
	Status  int
	Outcome string // "404 Not Found", or what went wrong
}

// Sink appends records to a file. Appends from concurrent callers are serialized
// around the whole open-append-close cycle, so a record is never split or
// truncated by another one.
type Sink struct {
	path string

	mu  sync.Mutex
	buf bytes.Buffer
	out zerolog.Logger // formats into buf
}

// Open checks that path can be created and appended to.
func Open(path string) (*Sink, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open transaction log: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("open transaction log: %w", err)
	}

	s := &Sink{path: path}
	s.out = zerolog.New(zerolog.ConsoleWriter{
		Out:          &s.buf,
		NoColor:      true,
		TimeFormat:   time.RFC3339,
		TimeLocation: time.UTC,
		PartsExclude: []string{zerolog.LevelFieldName},
		FieldsOrder:  []string{"request", "status", "remote"},
	})
	return s, nil
}

func (s *Sink) Path() string {
	return s.path
}

// Append writes rec as one line. The error is for the caller to report,
// a failed append leaves earlier records intact.
func (s *Sink) Append(rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.buf.Reset()
	s.out.Log().
		Time(zerolog.TimestampFieldName, rec.Time).
		Str("remote", rec.Remote).
		Str("request", rec.Request).
		Int("status", rec.Status).
		Msg(rec.Outcome)

	f, err := os.OpenFile(s.path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	_, werr := f.Write(s.buf.Bytes())
	return errors.Join(werr, f.Close())
}
