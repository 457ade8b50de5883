package router

import (
	"errors"

	"github.com/kfcemployee/filesrv/server/storage"
)

var (
	resourceCreated = []byte("Resource Created")
	tooManyPosts    = []byte("Too many POST requests")
	badRequest      = []byte("Bad Request")
)

// Appender appends a request body to the resource named by target.
type Appender interface {
	Append(target string, body []byte) error
}

var _ Appender = (*storage.Appender)(nil)

// Uploads serves POST: append the body to a resource, behind the admission gate.
type Uploads struct {
	gate  *storage.Gate
	files Appender
}

func NewUploads(gate *storage.Gate, files Appender) *Uploads {
	return &Uploads{gate: gate, files: files}
}

// ServePost holds a ticket for the write, the response and the log record.
// With no ticket free it answers 503 and writes nothing.
func (u *Uploads) ServePost(c *Context) {
	admitted := u.gate.Do(func() {
		err := u.files.Append(c.Req.Path(), c.Req.Body)
		switch {
		case err == nil:
			c.Send(201, resourceCreated)
		case errors.Is(err, storage.ErrNoResource):
			c.Send(400, badRequest)
		default:
			c.log.Error().Err(err).Str("path", c.Req.Path()).Msg("append failed")
			c.Send(500, internalError)
		}
	})
	if !admitted {
		c.Send(503, tooManyPosts)
	}
}
