package realtime

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"packflow/internal/saga"
)

// Event is one order lifecycle update pushed to connected clients.
type Event struct {
	Type          string    `json:"type"`
	OrderID       string    `json:"orderId"`
	TransactionID string    `json:"transactionId,omitempty"`
	Stage         string    `json:"stage,omitempty"`
	Status        string    `json:"status,omitempty"`
	ErrorCode     string    `json:"errorCode,omitempty"`
	Detail        string    `json:"detail,omitempty"`
	At            time.Time `json:"at"`
}

// Event types.
const (
	EventStageStarted  = "stage_started"
	EventStageFinished = "stage_finished"
	EventCompensation  = "compensation"
	EventSagaFinished  = "saga_finished"
)

// Hub manages WebSocket clients and broadcasts order events to them.
type Hub struct {
	connections map[*websocket.Conn]struct{}
	Register    chan *websocket.Conn
	Unregister  chan *websocket.Conn
	Broadcast   chan []byte
	mu          sync.Mutex
}

// NewHub constructs a Hub. The broadcast channel is buffered so event
// producers never block on slow consumers.
func NewHub() *Hub {
	return &Hub{
		connections: make(map[*websocket.Conn]struct{}),
		Register:    make(chan *websocket.Conn),
		Unregister:  make(chan *websocket.Conn),
		Broadcast:   make(chan []byte, 64),
	}
}

// Run processes register/unregister/broadcast events.
func (h *Hub) Run() {
	for {
		select {
		case conn := <-h.Register:
			h.mu.Lock()
			h.connections[conn] = struct{}{}
			h.mu.Unlock()
		case conn := <-h.Unregister:
			h.mu.Lock()
			delete(h.connections, conn)
			h.mu.Unlock()
			conn.Close()
		case msg := <-h.Broadcast:
			h.mu.Lock()
			for conn := range h.connections {
				if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
					conn.Close()
					delete(h.connections, conn)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Publish serializes the event and queues it for broadcast. Events are
// dropped when the queue is full rather than stalling the saga.
func (h *Hub) Publish(event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	select {
	case h.Broadcast <- data:
	default:
	}
}

// HubObserver mirrors saga lifecycle events onto the hub.
type HubObserver struct {
	hub *Hub
	now func() time.Time
}

// NewHubObserver constructs an observer publishing to the given hub.
func NewHubObserver(hub *Hub) *HubObserver {
	return &HubObserver{hub: hub, now: time.Now}
}

func (o *HubObserver) StageStarted(orderID, txID string, state saga.State) {
	o.hub.Publish(Event{
		Type:          EventStageStarted,
		OrderID:       orderID,
		TransactionID: txID,
		Stage:         string(state),
		At:            o.now().UTC(),
	})
}

func (o *HubObserver) StageFinished(orderID, txID string, state saga.State, err error) {
	event := Event{
		Type:          EventStageFinished,
		OrderID:       orderID,
		TransactionID: txID,
		Stage:         string(state),
		Status:        "succeeded",
		At:            o.now().UTC(),
	}
	if err != nil {
		event.Status = "failed"
		event.Detail = err.Error()
	}
	o.hub.Publish(event)
}

func (o *HubObserver) CompensationRun(orderID, txID, detail string, err error) {
	event := Event{
		Type:          EventCompensation,
		OrderID:       orderID,
		TransactionID: txID,
		Status:        "succeeded",
		Detail:        detail,
		At:            o.now().UTC(),
	}
	if err != nil {
		event.Status = "failed"
		event.Detail = err.Error()
	}
	o.hub.Publish(event)
}

func (o *HubObserver) SagaFinished(orderID, txID string, result saga.Result) {
	o.hub.Publish(Event{
		Type:          EventSagaFinished,
		OrderID:       orderID,
		TransactionID: txID,
		Status:        result.Status,
		ErrorCode:     result.ErrorCode,
		At:            o.now().UTC(),
	})
}
