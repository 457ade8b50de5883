package protocol

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// lookup table for status codes
// i use flat list instead of map bc codes is fixed
var statusTable = [505]string{
	200: "OK",
	201: "Created",
	400: "Bad Request",
	404: "Not Found",
	405: "Method Not Allowed",
	408: "Request Timeout",
	413: "Payload Too Large",
	500: "Internal Server Error",
	501: "Not Implemented",
	503: "Service Unavailable",
}

const dateFormat = "Mon, 02 Jan 2006 15:04:05 GMT"

// StatusText returns the reason phrase, unknown codes get ""
func StatusText(code int) string {
	if code < 0 || code >= len(statusTable) {
		return ""
	}
	return statusTable[code]
}

// response header, order is kept as set
type HeaderField struct {
	Key, Val string
}

// Response is what a handler sends back.
// Content-Length, Date and Connection are always written by WriteResponse,
// values set for them in Header are ignored.
// With BodyFrom set the body is copied from it, exactly BodyLen bytes, and Body is unused.
type Response struct {
	Code   int
	Header []HeaderField
	Body   []byte
	Close  bool

	BodyFrom io.Reader
	BodyLen  int64
}

func NewResponse(code int, body []byte) *Response {
	return &Response{Code: code, Body: body}
}

// NewStreamResponse sends n bytes read from body, e.g. a file, without loading them first.
func NewStreamResponse(code int, body io.Reader, n int64) *Response {
	return &Response{Code: code, BodyFrom: body, BodyLen: n}
}

func (r *Response) ContentLength() int64 {
	if r.BodyFrom != nil {
		return r.BodyLen
	}
	return int64(len(r.Body))
}

// SetHeader replaces key if already set, otherwise appends it
func (r *Response) SetHeader(key, val string) {
	for i := range r.Header {
		if strings.EqualFold(r.Header[i].Key, key) {
			r.Header[i].Val = val
			return
		}
	}
	r.Header = append(r.Header, HeaderField{Key: key, Val: val})
}

// Status is the status line without protocol: "404 Not Found"
func (r *Response) Status() string {
	code := r.Code
	text := StatusText(code)
	if text == "" {
		code, text = 500, statusTable[500]
	}
	return strconv.Itoa(code) + " " + text
}

// AppendHead appends status line and headers (including the empty line) to dst.
func AppendHead(dst []byte, r *Response, now time.Time) []byte {
	dst = append(dst, "HTTP/1.1 "...)
	dst = append(dst, r.Status()...)
	dst = append(dst, "\r\n"...)

	for _, h := range r.Header {
		if reserved(h.Key) {
			continue
		}
		dst = appendField(dst, h.Key, h.Val)
	}

	dst = append(dst, "Content-Length: "...)
	dst = strconv.AppendInt(dst, r.ContentLength(), 10)
	dst = append(dst, "\r\n"...)

	dst = append(dst, "Date: "...)
	dst = now.UTC().AppendFormat(dst, dateFormat)
	dst = append(dst, "\r\n"...)

	if r.Close {
		dst = appendField(dst, "Connection", "close")
	} else {
		dst = appendField(dst, "Connection", "keep-alive")
	}
	return append(dst, "\r\n"...)
}

// WriteResponse writes r to w and flushes it.
// the head is built in w's free buffer space so small responses cost no allocation.
// A streamed body that ends short is an error: the head already promised
// its length, so the connection has to be dropped.
func WriteResponse(w *bufio.Writer, r *Response, now time.Time) error {
	if _, err := w.Write(AppendHead(w.AvailableBuffer(), r, now)); err != nil {
		return err
	}
	if r.BodyFrom != nil {
		n, err := io.CopyN(w, r.BodyFrom, r.BodyLen)
		if err != nil {
			return fmt.Errorf("body: %d of %d bytes: %w", n, r.BodyLen, err)
		}
	} else if _, err := w.Write(r.Body); err != nil {
		return err
	}
	return w.Flush()
}

func appendField(dst []byte, key, val string) []byte {
	dst = append(dst, key...)
	dst = append(dst, ": "...)
	dst = append(dst, val...)
	return append(dst, "\r\n"...)
}

func reserved(key string) bool {
	return strings.EqualFold(key, "Content-Length") ||
		strings.EqualFold(key, "Date") ||
		strings.EqualFold(key, "Connection")
}
