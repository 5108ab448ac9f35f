package http

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"ifrs17-training-service/internal/app"
	"ifrs17-training-service/internal/domain"
	"github.com/gorilla/websocket"
)

type WSHandler struct {
	service  *app.GameService
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.GameService) *WSHandler {
	return &WSHandler{
		service: service,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type startPayload struct {
	ModuleID int `json:"moduleId"`
}

type answerPayload struct {
	Selected int `json:"selected"`
}

type powerUpPayload struct {
	Kind string `json:"kind"`
}

type migratePayload struct {
	UserID string `json:"userId"`
	Name   string `json:"name"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

// statePayload decorates a snapshot with the live attempt timer.
type statePayload struct {
	domain.Snapshot
	ElapsedSeconds int `json:"elapsedSeconds"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// ServeWS upgrades HTTP requests to websockets and wires them into the
// progression use cases. One connection serves one identity.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	identity := h.service.ResolveIdentity(domain.Identity{
		ID:      r.URL.Query().Get("userId"),
		Name:    r.URL.Query().Get("name"),
		Guest:   r.URL.Query().Get("guest") == "true" || r.URL.Query().Get("userId") == "",
		Variant: r.URL.Query().Get("variant"),
	})

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	state, err := h.service.Attach(r.Context(), identity)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
		return
	}

	events, cancel, err := h.service.Subscribe(identity)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
		return
	}
	defer func() { cancel() }() // cancel may be swapped by a migration

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	var pumps sync.WaitGroup

	// Single writer goroutine so event pushes and request replies never
	// write to the connection concurrently.
	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		}
	}()

	// One pump per subscription; a pump exits when its channel closes
	// (session closed or subscription cancelled).
	pump := func(events <-chan domain.Event) {
		defer pumps.Done()
		for {
			select {
			case event, ok := <-events:
				if !ok {
					return
				}
				select {
				case send <- outboundMessage[any]{Type: "event", Payload: event}:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}
	pumps.Add(1)
	go pump(events)

	send <- outboundMessage[any]{Type: "state", Payload: statePayload{Snapshot: state, ElapsedSeconds: h.service.Elapsed(identity)}}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "start":
			var payload startPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid start payload"}}
				continue
			}
			state, err := h.service.StartModule(r.Context(), identity, payload.ModuleID)
			if err != nil {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}}
				continue
			}
			send <- outboundMessage[any]{Type: "state", Payload: statePayload{Snapshot: state, ElapsedSeconds: h.service.Elapsed(identity)}}
		case "answer":
			var payload answerPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid answer payload"}}
				continue
			}
			outcome, err := h.service.SubmitAnswer(r.Context(), identity, payload.Selected)
			if err != nil {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}}
				continue
			}
			send <- outboundMessage[any]{Type: "answerResult", Payload: outcome}
		case "powerUp":
			var payload powerUpPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid powerUp payload"}}
				continue
			}
			outcome, err := h.service.UsePowerUp(r.Context(), identity, domain.PowerUpKind(payload.Kind))
			if err != nil {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}}
				continue
			}
			send <- outboundMessage[any]{Type: "powerUp", Payload: outcome}
		case "reset":
			if err := h.service.Reset(r.Context(), identity); err != nil {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}}
				continue
			}
			snap, err := h.service.Snapshot(identity)
			if err != nil {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}}
				continue
			}
			send <- outboundMessage[any]{Type: "state", Payload: statePayload{Snapshot: snap, ElapsedSeconds: h.service.Elapsed(identity)}}
		case "dismissAuth":
			h.service.DismissAuthPrompt(r.Context(), identity)
			snap, err := h.service.Snapshot(identity)
			if err != nil {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}}
				continue
			}
			send <- outboundMessage[any]{Type: "state", Payload: statePayload{Snapshot: snap, ElapsedSeconds: h.service.Elapsed(identity)}}
		case "migrate":
			var payload migratePayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil || payload.UserID == "" {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid migrate payload"}}
				continue
			}
			authenticated := domain.Identity{ID: payload.UserID, Name: payload.Name, Variant: identity.Variant}
			state, err := h.service.Migrate(r.Context(), identity, authenticated)
			if err != nil {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}}
				continue
			}
			// The old event stream died with the guest session; follow the
			// new identity for the rest of the connection.
			cancel()
			identity = authenticated
			if newEvents, newCancel, err := h.service.Subscribe(identity); err == nil {
				cancel = newCancel
				pumps.Add(1)
				go pump(newEvents)
			}
			send <- outboundMessage[any]{Type: "state", Payload: statePayload{Snapshot: state, ElapsedSeconds: h.service.Elapsed(identity)}}
		case "state":
			snap, err := h.service.Snapshot(identity)
			if err != nil {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}}
				continue
			}
			send <- outboundMessage[any]{Type: "state", Payload: statePayload{Snapshot: snap, ElapsedSeconds: h.service.Elapsed(identity)}}
		default:
			send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "unsupported message type"}}
		}
	}

	close(closeSignals)
	pumps.Wait()
	close(send)
	<-writerDone
}
