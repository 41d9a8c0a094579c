package api

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"bot-core/internal/events"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// streamedEvents are the topics pushed to websocket clients.
var streamedEvents = []events.Event{
	events.EventBotLaunched,
	events.EventBotStopped,
	events.EventProfitTick,
	events.EventDeposit,
	events.EventWithdrawal,
	events.EventTierAdvanced,
}

type wsFrame struct {
	Event   events.Event `json:"event"`
	Payload any          `json:"payload"`
}

func (s *Server) websocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("ws upgrade error: %v", err)
		return
	}
	defer conn.Close()

	if s.Bus == nil {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"bus not ready"}`))
		return
	}

	// Fan all topics into one stream; writers stop when done closes.
	merged := make(chan wsFrame, 100)
	done := make(chan struct{})
	defer close(done)

	for _, ev := range streamedEvents {
		stream, unsub := s.Bus.Subscribe(ev, 100)
		defer unsub()
		go func(ev events.Event, stream <-chan any) {
			for msg := range stream {
				select {
				case merged <- wsFrame{Event: ev, Payload: msg}:
				case <-done:
					return
				}
			}
		}(ev, stream)
	}

	for frame := range merged {
		if err := conn.WriteJSON(frame); err != nil {
			log.Printf("ws write error: %v", err)
			return
		}
	}
}
