package http

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/crabzie/workspace-fleet/internal/core/domain"
	"github.com/crabzie/workspace-fleet/internal/core/port"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// EventStream relays pub/sub channel events to websocket clients
type EventStream struct {
	events   port.Subscriber
	upgrader websocket.Upgrader
	done     chan struct{}
	stopOnce sync.Once
	log      *zap.Logger
}

func NewEventStream(events port.Subscriber, log *zap.Logger) *EventStream {
	return &EventStream{
		events: events,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		done: make(chan struct{}),
		log:  log,
	}
}

// Shutdown ends every open stream
func (s *EventStream) Shutdown() {
	s.stopOnce.Do(func() { close(s.done) })
}

// ValidChannel accepts task, workspace and graph highlight channels only
func ValidChannel(channel string) bool {
	switch {
	case channel == domain.GraphHighlightChannel:
		return true
	case strings.HasPrefix(channel, "task-") && len(channel) > len("task-"):
		return true
	case strings.HasPrefix(channel, "workspace-") && len(channel) > len("workspace-"):
		return true
	}
	return false
}

// Serve handles GET /ws?channel=
func (s *EventStream) Serve(w http.ResponseWriter, r *http.Request) {
	channel := r.URL.Query().Get("channel")
	if !ValidChannel(channel) {
		writeError(w, http.StatusBadRequest, CodeValidation, "Unknown channel")
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Subscribe before upgrading so no event published after the handshake is lost
	events, err := s.events.Subscribe(ctx, channel)
	if err != nil {
		s.log.Error("Subscribe failed", zap.String("channel", channel), zap.Error(err))
		writeError(w, http.StatusBadGateway, CodeUpstreamFailure, "Event stream unavailable")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug("Websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	log := s.log.With(zap.String("channel", channel))
	log.Debug("Websocket subscribed")

	// read pump: only control frames are expected, a read error ends the stream
	go func() {
		defer cancel()
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(writeWait))
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(event); err != nil {
				log.Debug("Websocket write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
