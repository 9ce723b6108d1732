package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	streamWriteWait = 10 * time.Second
	streamReadLimit = 1 << 20
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Browsers are held to the CORS allow list; other clients send no Origin.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleStream runs one simulation per received request and streams its
// trace, then a done frame. The connection stays open for further requests.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Debug().Err(err).Msg("Websocket upgrade failed")
		return
	}
	defer conn.Close()
	conn.SetReadLimit(streamReadLimit)

	id := requestID(r)
	for {
		var body SimulateRequest
		if err := conn.ReadJSON(&body); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug().Err(err).Str("request_id", id).Msg("Stream closed")
			}
			return
		}
		if err := s.streamOne(r.Context(), conn, body); err != nil {
			log.Debug().Err(err).Str("request_id", id).Msg("Stream write failed")
			return
		}
	}
}

func (s *Server) streamOne(ctx context.Context, conn *websocket.Conn, body SimulateRequest) error {
	req, err := body.ToRequest()
	if err != nil {
		return writeFrame(conn, StreamMessage{Type: MessageError, Error: err.Error()})
	}
	req.Trace = true

	resp, err := s.svc.Run(ctx, req)
	if err != nil {
		return writeFrame(conn, StreamMessage{Type: MessageError, Error: err.Error()})
	}
	for i := range resp.Result.Trace {
		if err := writeFrame(conn, StreamMessage{Type: MessageUpdate, Update: &resp.Result.Trace[i]}); err != nil {
			return err
		}
	}
	// Updates were streamed already
	resp.Result.Trace = nil
	return writeFrame(conn, StreamMessage{Type: MessageDone, Result: resp})
}

func writeFrame(conn *websocket.Conn, msg StreamMessage) error {
	if err := conn.SetWriteDeadline(time.Now().Add(streamWriteWait)); err != nil {
		return err
	}
	if err := conn.WriteJSON(msg); err != nil {
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	}
	return nil
}
