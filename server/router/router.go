package router

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/kfcemployee/filesrv/server/protocol"
)

var (
	methodNotAllowed = []byte("Method Not Allowed")
	internalError    = []byte("Internal Server Error")
)

// HTTPRouter picks the handler by method, paths are resolved by the handlers.
type HTTPRouter struct {
	get, post Handler
	rec       Recorder
	log       zerolog.Logger
	now       func() time.Time
}

// init a new router, methods without a handler get 405
func NewHTTPRouter(rec Recorder, log zerolog.Logger) *HTTPRouter {
	return &HTTPRouter{
		get:  NotAllowed,
		post: NotAllowed,
		rec:  rec,
		log:  log,
		now:  time.Now,
	}
}

func (r *HTTPRouter) Get(h Handler) {
	r.get = h
}

func (r *HTTPRouter) Post(h Handler) {
	r.post = h
}

func (r *HTTPRouter) route(m protocol.Method) Handler {
	switch m {
	case protocol.MethodGet:
		return r.get
	case protocol.MethodPost:
		return r.post
	}
	return NotAllowed
}

// Serve runs one exchange on out. keepAlive is false when the response
// declared Connection: close or could not be written.
func (r *HTTPRouter) Serve(out Sender, req *protocol.Request) (keepAlive bool, err error) {
	c := ctxPool.Get().(*Context)
	defer func() {
		c.reset()
		ctxPool.Put(c)
	}()

	c.Req = req
	c.out = out
	c.rec = r.rec
	c.now = r.now
	c.log = r.log.With().Str("remote", out.RemoteAddr()).Logger()

	r.route(req.Method)(c)

	if !c.Sent() {
		c.log.Error().Str("request", req.String()).Msg("handler returned without a response")
		c.Send(500, internalError)
	}
	return !c.resp.Close && c.err == nil, c.err
}

// NotAllowed answers 405 for anything but GET and POST.
func NotAllowed(c *Context) {
	resp := protocol.NewResponse(405, methodNotAllowed)
	resp.SetHeader("Content-Type", "text/plain")
	resp.SetHeader("Allow", "GET, POST")
	c.SendResponse(resp)
}
