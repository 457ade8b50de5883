package engine

import (
	"time"

	"github.com/kfcemployee/filesrv/server/protocol"
)

// Send writes resp and flushes it; a client that stops reading
// gets the same idle timeout as one that stops sending.
func (s *Session) Send(resp *protocol.Response) error {
	now := time.Now()
	if err := s.conn.SetWriteDeadline(now.Add(s.idle)); err != nil {
		return err
	}
	return protocol.WriteResponse(s.bw, resp, now)
}
