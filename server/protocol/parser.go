// parse raw bytes to Request
// only the subset we serve: request line, header map and a Content-Length body
package protocol

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"strings"
)

const (
	defaultVersion = "HTTP/1.0"

	DefaultMaxHeaderBytes = 1<<16 - 1
	DefaultMaxBodyBytes   = 8 << 20
)

// Limits bounds how much a single request may make us buffer.
type Limits struct {
	MaxHeaderBytes int
	MaxBodyBytes   int
}

func DefaultLimits() Limits {
	return Limits{
		MaxHeaderBytes: DefaultMaxHeaderBytes,
		MaxBodyBytes:   DefaultMaxBodyBytes,
	}
}

// Parse parses the request line, headers and whatever body bytes are already in raw.
// If raw holds fewer body bytes than Content-Length declares, Request.Pending is > 0
// and the caller has to read the rest from the connection.
func Parse(raw []byte) (*Request, error) {
	head, rest := splitHead(raw)
	lines := strings.Split(string(head), "\n")

	// request line: METHOD TARGET [VERSION]
	first := strings.Fields(strings.TrimSuffix(lines[0], "\r"))
	if len(first) < 2 {
		return nil, ErrInvalid
	}

	req := &Request{
		Method:    lookupMethod(first[0]),
		RawMethod: first[0],
		Target:    first[1],
		Version:   defaultVersion,
		Header:    make(Header, len(lines)),
	}
	if len(first) > 2 {
		req.Version = first[2]
	}

	for _, line := range lines[1:] {
		line = strings.TrimSuffix(line, "\r")
		if line == "" {
			break
		}
		key, val, ok := strings.Cut(line, ": ")
		if !ok {
			continue
		}
		req.Header.Set(key, val)
	}

	req.ContentLength = contentLength(req.Header)
	if n := min(len(rest), req.ContentLength); n > 0 {
		req.Body = bytes.Clone(rest[:n])
	}
	return req, nil
}

// ReadRequest reads exactly one request from r: the head up to the empty line,
// then the declared body. Blocking reads are bounded by the connection deadline.
// io.EOF means the peer closed before sending anything.
func ReadRequest(r *bufio.Reader, lim Limits) (*Request, error) {
	var head []byte
	start := 0 // where the current line begins in head
	for {
		line, err := r.ReadSlice('\n')
		head = append(head, line...)
		if len(head) > lim.MaxHeaderBytes {
			return nil, ErrTooLarge
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if err != nil {
			if errors.Is(err, io.EOF) && len(head) > 0 {
				err = io.ErrUnexpectedEOF
			}
			return nil, err
		}
		if isBlank(head[start:]) {
			break
		}
		start = len(head)
	}

	req, err := Parse(head)
	if err != nil {
		return nil, err
	}
	if req.ContentLength > lim.MaxBodyBytes {
		return nil, ErrTooLarge
	}

	if req.Pending() > 0 {
		body := make([]byte, req.ContentLength)
		n := copy(body, req.Body)
		if _, err := io.ReadFull(r, body[n:]); err != nil {
			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			return nil, err
		}
		req.Body = body
	}
	return req, nil
}

// split raw into head (without the empty line) and everything after the empty line
func splitHead(raw []byte) (head, rest []byte) {
	off := 0
	for {
		i := bytes.IndexByte(raw[off:], '\n')
		if i == -1 {
			return raw, nil
		}
		if isBlank(raw[off : off+i+1]) {
			return raw[:off], raw[off+i+1:]
		}
		off += i + 1
	}
}

// "\n" or "\r\n"
func isBlank(line []byte) bool {
	return len(line) == 1 && line[0] == '\n' || len(line) == 2 && line[0] == '\r' && line[1] == '\n'
}
