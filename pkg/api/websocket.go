package api

import (
	"net/http"
	"time"

	"github.com/MathisTLD/multiparse/pkg/multipart"
	"github.com/gorilla/websocket"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsCloseGrace   = time.Second
	wsMaxMessage   = 16 * 1024 * 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// handleDecodeWS decodes a stream sent as websocket messages. Every binary
// message is fed to the decoder as one chunk and every decoded part is sent
// back as a JSON text message. A text message from the client marks the end
// of input. Decode errors are sent as a StreamError message before the
// connection is closed.
func (s *Server) handleDecodeWS(w http.ResponseWriter, r *http.Request) {
	config, err := s.decoderConfig(r)
	if err != nil {
		sendError(w, r, err.Error(), http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied to the client
		s.logger.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()
	conn.SetReadLimit(wsMaxMessage)

	emitted := 0
	ended := false
	decoder, err := multipart.NewDecoder(config, multipart.SinkFuncs{
		Part: func(part multipart.Part) error {
			resp, err := NewPartResponse(part, emitted)
			if err != nil {
				return err
			}
			if err := s.writeWS(conn, resp); err != nil {
				return err
			}
			emitted++
			return nil
		},
		End: func() { ended = true },
	})
	if err != nil {
		s.closeWS(conn, websocket.CloseInternalServerErr, StreamError{Error: err.Error()})
		return
	}

	for !ended {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Warn().Err(err).Int("emitted", emitted).Msg("websocket closed unexpectedly")
			}
			_ = decoder.Close()
			return
		}

		if msgType == websocket.TextMessage {
			if err := decoder.Close(); err != nil {
				s.closeWS(conn, websocket.CloseInvalidFramePayloadData, StreamError{Error: err.Error(), Emitted: emitted})
				return
			}
			break
		}

		if err := decoder.Feed(data); err != nil {
			s.logger.Warn().Err(err).Int("emitted", emitted).Msg("websocket decode failed")
			s.closeWS(conn, websocket.CloseInvalidFramePayloadData, StreamError{Error: err.Error(), Emitted: emitted})
			return
		}
	}

	s.logger.Debug().Int("emitted", emitted).Msg("websocket stream complete")
	s.closeWS(conn, websocket.CloseNormalClosure, nil)
}

func (s *Server) writeWS(conn *websocket.Conn, v interface{}) error {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return conn.WriteJSON(v)
}

// closeWS sends last, if any, then a close frame with code, and waits a
// short while for the client to answer the close
func (s *Server) closeWS(conn *websocket.Conn, code int, last interface{}) {
	if last != nil {
		if err := s.writeWS(conn, last); err != nil {
			s.logger.Debug().Err(err).Msg("failed to send final websocket message")
			return
		}
	}
	deadline := time.Now().Add(wsWriteTimeout)
	if err := conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, ""), deadline); err != nil {
		return
	}

	// Chunks still in flight are discarded
	_ = conn.SetReadDeadline(time.Now().Add(wsCloseGrace))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
