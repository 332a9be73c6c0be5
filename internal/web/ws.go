package web

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/vadiminshakov/corpsim/internal/events"
)

const (
	wsWriteWait = 10 * time.Second
	wsPongWait  = 60 * time.Second
	wsPingEvery = (wsPongWait * 9) / 10
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

// handleWS streams live notifications. Clients pick channels with
// ?channels=game_events,data_changed and can replay missed durable events
// with ?since=<index> before the live feed starts.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	channels, err := parseChannels(r.URL.Query().Get("channels"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var since uint64
	if raw := r.URL.Query().Get("since"); raw != "" {
		since, err = strconv.ParseUint(raw, 10, 64)
		if err != nil {
			http.Error(w, "invalid since index", http.StatusBadRequest)
			return
		}
	}

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	// Subscribe before the replay so nothing published in between is lost;
	// the buffer absorbs the overlap.
	sub := s.bus.Subscribe(channels...)
	defer s.bus.Unsubscribe(sub)

	// Only game events are durable, so replay is skipped for subscribers
	// that filtered them out.
	if raw := r.URL.Query().Get("since"); raw != "" && wantsChannel(channels, events.ChannelGameEvents) {
		records, err := s.eventLog.EventsAfter(since)
		if err != nil {
			s.logger.Warn("websocket replay failed", zap.Error(err))
			return
		}
		for _, record := range records {
			n := events.Notification{Channel: events.ChannelGameEvents, Record: record}
			if err := writeNotification(conn, n); err != nil {
				return
			}
		}
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsPongWait))
		})
		for {
			// Inbound messages are ignored; reads only detect close.
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(wsPingEvery)
	defer ping.Stop()

	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case n, ok := <-sub:
			if !ok {
				return
			}
			if err := writeNotification(conn, n); err != nil {
				return
			}
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func writeNotification(conn *websocket.Conn, n events.Notification) error {
	conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return conn.WriteJSON(n)
}

// wantsChannel reports whether the subscription covers ch. An empty list
// subscribes to everything.
func wantsChannel(channels []string, ch string) bool {
	if len(channels) == 0 {
		return true
	}
	for _, c := range channels {
		if c == ch {
			return true
		}
	}
	return false
}

func parseChannels(raw string) ([]string, error) {
	if raw == "" {
		return nil, nil // all channels
	}
	var channels []string
	for _, c := range strings.Split(raw, ",") {
		c = strings.TrimSpace(c)
		switch c {
		case events.ChannelGameEvents, events.ChannelDataChanged:
			channels = append(channels, c)
		case "":
		default:
			return nil, errInvalidChannel(c)
		}
	}
	return channels, nil
}

type errInvalidChannel string

func (e errInvalidChannel) Error() string { return "unknown channel: " + string(e) }
