package server

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"solana-wallet-tracker/internal/domain"
)

const (
	pingInterval = 30 * time.Second
	readTimeout  = 60 * time.Second
	writeTimeout = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Message is one frame of the live event stream.
type Message struct {
	Type    string        `json:"type"`
	Payload *domain.Event `json:"payload,omitempty"`
}

// handleWebSocket streams live feed events until the client goes away or
// the feed is closed. Client frames are read only to detect closure.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.feed == nil {
		http.Error(w, "live feed not available", http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	sub := s.feed.Subscribe()
	defer sub.Close()

	s.logger.Info("websocket client connected", zap.String("remote_addr", r.RemoteAddr))

	closed := make(chan struct{})
	go s.readUntilClosed(conn, closed)

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-closed:
			s.logger.Info("websocket client disconnected", zap.String("remote_addr", r.RemoteAddr))
			return

		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				s.logger.Debug("websocket ping failed", zap.Error(err))
				return
			}

		case e, ok := <-sub.C():
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
					time.Now().Add(writeTimeout))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(Message{Type: "event", Payload: e}); err != nil {
				s.logger.Debug("websocket write failed", zap.Error(err))
				return
			}
		}
	}
}

func (s *Server) readUntilClosed(conn *websocket.Conn, closed chan<- struct{}) {
	defer close(closed)

	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				s.logger.Warn("websocket read error", zap.Error(err))
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	}
}
