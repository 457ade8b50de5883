package protocol

import (
	"strconv"
	"strings"
)

// request method, only GET and POST are served, everything else is MethodOther
type Method uint8

const (
	MethodOther Method = iota
	MethodGet
	MethodPost
)

func lookupMethod(s string) Method {
	switch s {
	case "GET":
		return MethodGet
	case "POST":
		return MethodPost
	}
	return MethodOther
}

func (m Method) String() string {
	switch m {
	case MethodGet:
		return "GET"
	case MethodPost:
		return "POST"
	}
	return "OTHER"
}

// Header holds request headers keyed by lower-cased name.
// Not map[string][]string like http.Header, a repeated key keeps the last value.
type Header map[string]string

func (h Header) Get(key string) string {
	return h[strings.ToLower(key)]
}

func (h Header) Set(key, val string) {
	h[strings.ToLower(key)] = val
}

// Request is one parsed request.
// Body holds ContentLength bytes once ReadRequest returns, Parse may leave it short.
type Request struct {
	Method    Method
	RawMethod string
	Target    string
	Version   string
	Header    Header

	ContentLength int
	Body          []byte
}

// Pending reports how many declared body bytes have not arrived yet.
func (r *Request) Pending() int {
	if n := r.ContentLength - len(r.Body); n > 0 {
		return n
	}
	return 0
}

// Path is the target without query string and fragment.
func (r *Request) Path() string {
	p := r.Target
	if i := strings.IndexAny(p, "?#"); i != -1 {
		p = p[:i]
	}
	return p
}

// WantsClose reports whether the client asked for the connection to be closed
// after this exchange. HTTP/1.0 closes unless keep-alive is requested.
func (r *Request) WantsClose() bool {
	c := strings.ToLower(strings.TrimSpace(r.Header.Get("connection")))
	if c == "close" {
		return true
	}
	if r.Version == "HTTP/1.0" {
		return c != "keep-alive"
	}
	return false
}

// short form for logs: "POST /notes.txt HTTP/1.1 (5 bytes)"
func (r *Request) String() string {
	var b strings.Builder
	b.WriteString(r.RawMethod)
	b.WriteByte(' ')
	b.WriteString(r.Target)
	b.WriteByte(' ')
	b.WriteString(r.Version)
	if r.ContentLength > 0 {
		b.WriteString(" (")
		b.WriteString(strconv.Itoa(r.ContentLength))
		b.WriteString(" bytes)")
	}
	return b.String()
}

// no Content-Length, garbage or negative value all mean no body
func contentLength(h Header) int {
	v, ok := h["content-length"]
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n < 0 {
		return 0
	}
	return n
}
