// context is request + response sender + transaction log entry
package router

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/kfcemployee/filesrv/server/protocol"
	"github.com/kfcemployee/filesrv/server/txlog"
)

var ErrAlreadySent = errors.New("response already sent")

// Sender puts one response on the wire, the connection session implements it.
type Sender interface {
	Send(resp *protocol.Response) error
	RemoteAddr() string
}

// Recorder keeps the transaction log.
type Recorder interface {
	Append(rec txlog.Record) error
}

// handler func signature, it works only with context
type Handler func(c *Context)

// Context is one exchange: exactly one response is sent through it,
// and exactly one record is logged after the response is flushed.
type Context struct {
	Req *protocol.Request

	out Sender
	rec Recorder
	log zerolog.Logger
	now func() time.Time

	resp *protocol.Response
	err  error
}

var ctxPool = sync.Pool{
	New: func() any {
		return &Context{}
	},
}

func (c *Context) reset() {
	*c = Context{}
}

// Send sends a text/plain response with the given code and body.
func (c *Context) Send(code int, body []byte) error {
	resp := protocol.NewResponse(code, body)
	resp.SetHeader("Content-Type", "text/plain")
	return c.SendResponse(resp)
}

// SendResponse writes resp and then logs the exchange.
// Connection: close is forced when the client asked for it.
// A log failure is reported here and never reaches the client.
func (c *Context) SendResponse(resp *protocol.Response) error {
	if c.resp != nil {
		return ErrAlreadySent
	}
	if c.Req.WantsClose() {
		resp.Close = true
	}
	c.resp = resp

	outcome := resp.Status()
	if err := c.out.Send(resp); err != nil {
		c.err = err
		outcome = fmt.Sprintf("%s (send failed: %v)", outcome, err)
	}

	rec := txlog.Record{
		Time:    c.now(),
		Remote:  c.out.RemoteAddr(),
		Request: c.Req.String(),
		Status:  resp.Code,
		Outcome: outcome,
	}
	if err := c.rec.Append(rec); err != nil {
		c.log.Warn().Err(err).Str("request", rec.Request).Msg("transaction log append failed")
	}
	return c.err
}

// Sent reports whether a response went out (or was attempted).
func (c *Context) Sent() bool {
	return c.resp != nil
}
