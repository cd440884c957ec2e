package http

import (
	"bytes"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"classroom-quiz-service/internal/app"
	"classroom-quiz-service/internal/domain"
	"github.com/gorilla/websocket"
)

// BannerHandler pushes the viewer's banner session over a websocket.
// It re-runs discovery every interval and writes only when the answer changed.
type BannerHandler struct {
	discovery *app.Discovery
	interval  time.Duration
	upgrader  websocket.Upgrader
}

func NewBannerHandler(discovery *app.Discovery, interval time.Duration) *BannerHandler {
	if interval <= 0 {
		interval = app.DefaultPollInterval
	}
	return &BannerHandler{
		discovery: discovery,
		interval:  interval,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type bannerPayload struct {
	Session *domain.LiveQuizSession `json:"session"`
	Message string                  `json:"message,omitempty"`
}

// newBannerPayload carries the no-live-quiz message when nothing is running.
func newBannerPayload(session *domain.LiveQuizSession) bannerPayload {
	if session == nil {
		return bannerPayload{Message: domain.ErrNoLiveQuiz.Error()}
	}
	return bannerPayload{Session: session}
}

type errorPayload struct {
	Message string `json:"message"`
}

// ServeWS upgrades the request and streams banner updates until the client goes away.
func (h *BannerHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	classes := classIDs(r)
	if len(classes) == 0 {
		http.Error(w, "missing classId", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	// The reader only drains control frames; it signals when the client disconnects.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	var last []byte
	push := func() bool {
		session, err := h.discovery.FindBannerSession(r.Context(), classes)
		if err != nil {
			log.Printf("banner discovery for %v: %v", classes, err)
			return conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: "discovery unavailable"}}) == nil
		}
		msg, err := json.Marshal(outboundMessage[bannerPayload]{Type: "banner", Payload: newBannerPayload(session)})
		if err != nil {
			log.Printf("encode banner: %v", err)
			return false
		}
		if bytes.Equal(msg, last) {
			return true
		}
		last = msg
		if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			log.Printf("ws write error: %v", err)
			return false
		}
		return true
	}

	if !push() {
		return
	}
	for {
		select {
		case <-ticker.C:
			if !push() {
				return
			}
		case <-closed:
			return
		case <-r.Context().Done():
			return
		}
	}
}
