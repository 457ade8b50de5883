package engine

import (
	"bufio"
	"errors"
	"io"
	"net"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kfcemployee/filesrv/server/protocol"
)

type clientResp struct {
	status string
	header map[string]string
	body   string
}

// minimal response reader for the client side of a pipe
func readResp(t *testing.T, br *bufio.Reader) clientResp {
	t.Helper()
	status, err := br.ReadString('\n')
	require.NoError(t, err)

	r := clientResp{status: strings.TrimSpace(status), header: map[string]string{}}
	for {
		line, err := br.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			break
		}
		k, v, _ := strings.Cut(line, ": ")
		r.header[strings.ToLower(k)] = v
	}

	n, err := strconv.Atoi(r.header["content-length"])
	require.NoError(t, err)
	body := make([]byte, n)
	_, err = io.ReadFull(br, body)
	require.NoError(t, err)
	r.body = string(body)
	return r
}

// echo replies with the request body, or the target for bodyless requests
func echo(s *Session, req *protocol.Request) (bool, error) {
	body := req.Body
	if len(body) == 0 {
		body = []byte(req.Target)
	}
	resp := protocol.NewResponse(200, body)
	resp.Close = req.WantsClose()
	if err := s.Send(resp); err != nil {
		return false, err
	}
	return !resp.Close, nil
}

// runs the session on the server end of a pipe, done closes when it returns
func startSession(t *testing.T, idle time.Duration, ex Exchange) (client net.Conn, done chan struct{}) {
	t.Helper()
	server, client := net.Pipe()
	t.Cleanup(func() { client.Close() })

	h := NewSessionHandler(SessionConfig{IdleTimeout: idle}, ex, zerolog.Nop())
	done = make(chan struct{})
	go func() {
		defer close(done)
		h(server)
	}()
	return client, done
}

func waitDone(t *testing.T, done chan struct{}, within time.Duration) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(within):
		t.Fatal("session did not end")
	}
}

// after the server side closed, reads on the client end with EOF
func assertClosed(t *testing.T, client net.Conn) {
	t.Helper()
	client.SetReadDeadline(time.Now().Add(time.Second))
	_, err := client.Read(make([]byte, 1))
	assert.ErrorIs(t, err, io.EOF)
}

func TestSessionKeepAlive(t *testing.T) {
	client, done := startSession(t, time.Second, echo)
	br := bufio.NewReader(client)

	_, err := io.WriteString(client, "GET /first HTTP/1.1\r\nHost: x\r\n\r\n")
	require.NoError(t, err)
	first := readResp(t, br)

	_, err = io.WriteString(client, "POST /second HTTP/1.1\r\nContent-Length: 5\r\n\r\nhello")
	require.NoError(t, err)
	second := readResp(t, br)

	assert.Equal(t, "HTTP/1.1 200 OK", first.status)
	assert.Equal(t, "/first", first.body)
	assert.Equal(t, "keep-alive", first.header["connection"])
	assert.Equal(t, "hello", second.body)
	assert.NotEmpty(t, second.header["date"])

	client.Close()
	waitDone(t, done, time.Second)
}

func TestSessionConnectionClose(t *testing.T) {
	client, done := startSession(t, time.Second, echo)
	br := bufio.NewReader(client)

	_, err := io.WriteString(client, "GET /bye HTTP/1.1\r\nConnection: close\r\n\r\n")
	require.NoError(t, err)
	resp := readResp(t, br)
	assert.Equal(t, "close", resp.header["connection"])

	waitDone(t, done, time.Second)
	assertClosed(t, client)
}

func TestSessionIdleTimeout(t *testing.T) {
	client, done := startSession(t, 50*time.Millisecond, echo)

	// send nothing at all
	waitDone(t, done, 2*time.Second)
	assertClosed(t, client)
}

func TestSessionIdleTimeoutBetweenRequests(t *testing.T) {
	client, done := startSession(t, 50*time.Millisecond, echo)
	br := bufio.NewReader(client)

	_, err := io.WriteString(client, "GET /one HTTP/1.1\r\n\r\n")
	require.NoError(t, err)
	readResp(t, br)

	waitDone(t, done, 2*time.Second)
	assertClosed(t, client)
}

func TestSessionStalledBody(t *testing.T) {
	var called atomic.Bool
	client, done := startSession(t, 50*time.Millisecond, func(s *Session, req *protocol.Request) (bool, error) {
		called.Store(true)
		return echo(s, req)
	})

	_, err := io.WriteString(client, "POST /slow HTTP/1.1\r\nContent-Length: 100\r\n\r\nonly a little")
	require.NoError(t, err)

	waitDone(t, done, 2*time.Second)
	assert.False(t, called.Load(), "incomplete body must never reach the handler")
}

func TestSessionBodyInPieces(t *testing.T) {
	client, done := startSession(t, time.Second, echo)
	br := bufio.NewReader(client)

	go func() {
		io.WriteString(client, "POST /pieces HTTP/1.1\r\nContent-Length: 11\r\n\r\nhel")
		time.Sleep(20 * time.Millisecond)
		io.WriteString(client, "lo wo")
		time.Sleep(20 * time.Millisecond)
		io.WriteString(client, "rld")
	}()

	resp := readResp(t, br)
	assert.Equal(t, "hello world", resp.body)

	client.Close()
	waitDone(t, done, time.Second)
}

func TestSessionMalformedRequest(t *testing.T) {
	for _, raw := range []string{"garbage\r\n\r\n", "\r\n\r\n", "GET\r\n\r\n"} {
		t.Run(strconv.Quote(raw), func(t *testing.T) {
			var called atomic.Bool
			client, done := startSession(t, time.Second, func(s *Session, req *protocol.Request) (bool, error) {
				called.Store(true)
				return echo(s, req)
			})

			go io.WriteString(client, raw)

			waitDone(t, done, time.Second)
			assertClosed(t, client)
			assert.False(t, called.Load())
		})
	}
}

func TestSessionExchangeError(t *testing.T) {
	client, done := startSession(t, time.Second, func(s *Session, req *protocol.Request) (bool, error) {
		return true, errors.New("write failed")
	})

	go io.WriteString(client, "GET / HTTP/1.1\r\n\r\n")
	waitDone(t, done, time.Second)
	assertClosed(t, client)
}

func TestSessionPanicClosesConnection(t *testing.T) {
	client, done := startSession(t, time.Second, func(s *Session, req *protocol.Request) (bool, error) {
		panic("handler bug")
	})

	go io.WriteString(client, "GET / HTTP/1.1\r\n\r\n")
	waitDone(t, done, time.Second)
	assertClosed(t, client)
}

func TestSessionClientGone(t *testing.T) {
	client, done := startSession(t, time.Second, echo)
	client.Close()
	waitDone(t, done, time.Second)
}

func TestSessionConnsCloseAll(t *testing.T) {
	conns := NewConns()
	server, client := net.Pipe()
	t.Cleanup(func() { client.Close() })

	h := NewSessionHandler(SessionConfig{IdleTimeout: time.Minute, Conns: conns}, echo, zerolog.Nop())
	done := make(chan struct{})
	go func() {
		defer close(done)
		h(server)
	}()

	br := bufio.NewReader(client)
	_, err := io.WriteString(client, "GET /a HTTP/1.1\r\n\r\n")
	require.NoError(t, err)
	assert.Equal(t, "/a", readResp(t, br).body)
	assert.Equal(t, 1, conns.Len())

	// idle session blocked on its next read
	assert.Equal(t, 1, conns.CloseAll())
	waitDone(t, done, time.Second)
	assert.Zero(t, conns.Len())
	assertClosed(t, client)
}
