package router

import (
	"os"

	"github.com/kfcemployee/filesrv/server/protocol"
	"github.com/kfcemployee/filesrv/server/storage"
)

var fileNotFound = []byte("File Not Found")

// Opener resolves a request path to a regular file under the static root.
type Opener interface {
	Open(target string) (f *os.File, found bool, err error)
}

var _ Opener = (*storage.Root)(nil)

// Static serves GET from the static root.
type Static struct {
	files Opener
}

func NewStatic(files Opener) *Static {
	return &Static{files: files}
}

// ServeGet streams the whole file, byte for byte, or answers 404.
func (s *Static) ServeGet(c *Context) {
	f, found, err := s.files.Open(c.Req.Path())
	if err != nil {
		c.log.Error().Err(err).Str("path", c.Req.Path()).Msg("open static file")
		c.Send(500, internalError)
		return
	}
	if !found {
		c.Send(404, fileNotFound)
		return
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		c.log.Error().Err(err).Str("path", c.Req.Path()).Msg("stat static file")
		c.Send(500, internalError)
		return
	}

	resp := protocol.NewStreamResponse(200, f, fi.Size())
	resp.SetHeader("Content-Type", "text/plain")
	c.SendResponse(resp)
}
