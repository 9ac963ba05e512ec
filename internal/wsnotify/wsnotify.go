// Package wsnotify pushes live console events to supervisor dashboards over
// websockets.
package wsnotify

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

type WebSocketManager struct {
	clients map[*websocket.Conn]bool
	lock    sync.RWMutex
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func Upgrader() *websocket.Upgrader {
	return &upgrader
}

var Manager = NewManager()

func NewManager() *WebSocketManager {
	return &WebSocketManager{clients: make(map[*websocket.Conn]bool)}
}

func (m *WebSocketManager) AddClient(conn *websocket.Conn) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.clients[conn] = true
}

func (m *WebSocketManager) RemoveClient(conn *websocket.Conn) {
	m.lock.Lock()
	defer m.lock.Unlock()
	delete(m.clients, conn)
}

func (m *WebSocketManager) ClientCount() int {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return len(m.clients)
}

// Broadcast writes the event to every client. Clients that fail the write are
// closed and dropped. A connection allows one writer at a time, so broadcasts
// hold the write lock for the whole fan-out.
func (m *WebSocketManager) Broadcast(event interface{}) {
	m.lock.Lock()
	var failed []*websocket.Conn
	for client := range m.clients {
		client.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := client.WriteJSON(event); err != nil {
			failed = append(failed, client)
		}
	}
	m.lock.Unlock()

	for _, client := range failed {
		client.Close()
		m.RemoveClient(client)
	}
}

type Event struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

type DispositionPayload struct {
	OperatorID int64  `json:"operatorId"`
	Dataset    string `json:"dataset"`
	RecordID   string `json:"recordId"`
	State      string `json:"state"`
	CallerID   string `json:"callerId,omitempty"`
	CallerName string `json:"callerName,omitempty"`
	At         string `json:"at"`
}

type ReminderPayload struct {
	AppointmentID string `json:"appointmentId"`
	OperatorID    int64  `json:"operatorId"`
	Dataset       string `json:"dataset"`
	RecordID      string `json:"recordId"`
	ScheduledAt   string `json:"scheduledAt"`
	Delivered     bool   `json:"delivered"`
	Error         string `json:"error,omitempty"`
}

type NoticePayload struct {
	Channel     string `json:"channel"`
	Message     string `json:"message"`
	ActionLabel string `json:"actionLabel,omitempty"`
	Action      string `json:"action,omitempty"`
}

func SendDispositionEvent(operatorID int64, dataset, recordID, state, callerID, callerName string, at time.Time) {
	Manager.Broadcast(Event{
		Type: "disposition",
		Payload: DispositionPayload{
			OperatorID: operatorID,
			Dataset:    dataset,
			RecordID:   recordID,
			State:      state,
			CallerID:   callerID,
			CallerName: callerName,
			At:         at.UTC().Format(time.RFC3339Nano),
		},
	})
}

func SendReminderEvent(appointmentID string, operatorID int64, dataset, recordID string, scheduledAt time.Time, deliveryErr error) {
	payload := ReminderPayload{
		AppointmentID: appointmentID,
		OperatorID:    operatorID,
		Dataset:       dataset,
		RecordID:      recordID,
		ScheduledAt:   scheduledAt.UTC().Format(time.RFC3339Nano),
		Delivered:     deliveryErr == nil,
	}
	if deliveryErr != nil {
		payload.Error = deliveryErr.Error()
	}
	Manager.Broadcast(Event{Type: "reminder", Payload: payload})
}

// SendNotice broadcasts a free-form message addressed to a named channel.
// Dashboards filter on the channel.
func SendNotice(channel, message, actionLabel, action string) {
	Manager.Broadcast(Event{
		Type: "notice",
		Payload: NoticePayload{
			Channel:     channel,
			Message:     message,
			ActionLabel: actionLabel,
			Action:      action,
		},
	})
}
