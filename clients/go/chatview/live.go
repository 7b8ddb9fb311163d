package chatview

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Event is the wire envelope for every websocket frame.
type Event struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Notification is an out-of-room alert for a message in a thread the
// user does not have open.
type Notification struct {
	ProjectID  string `json:"projectId"`
	ThreadID   string `json:"threadId"`
	SenderName string `json:"senderName"`
	Preview    string `json:"preview"`
}

// typingEvent is the payload of user-typing and user-stopped-typing.
type typingEvent struct {
	ThreadID string `json:"threadId"`
	UserID   string `json:"userId"`
	Name     string `json:"name,omitempty"`
}

// threadRef is the payload of join-chat, leave-chat and the typing
// signals we send.
type threadRef struct {
	ThreadID string `json:"threadId"`
}

// Live is a realtime connection feeding a View. It implements Emitter
// so a Debouncer can send typing signals through it.
type Live struct {
	mu       sync.Mutex
	conn     *websocket.Conn
	view     *View
	threadID string
	onNotify func(Notification)
	done     chan struct{}
}

// Connect dials the realtime endpoint with the given access token and
// starts reading events into the view. onNotify may be nil.
func Connect(baseURL, token string, view *View, onNotify func(Notification)) (*Live, error) {
	wsURL := strings.Replace(baseURL, "http", "ws", 1)
	u := fmt.Sprintf("%s/ws?token=%s", wsURL, url.QueryEscape(token))

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.Dial(u, nil)
	if err != nil {
		return nil, err
	}

	l := &Live{
		conn:     conn,
		view:     view,
		onNotify: onNotify,
		done:     make(chan struct{}),
	}
	go l.readLoop()

	return l, nil
}

// Join enters a thread's room. Typing signals go to the joined thread.
func (l *Live) Join(threadID string) error {
	l.mu.Lock()
	l.threadID = threadID
	l.mu.Unlock()
	return l.send("join-chat", threadRef{ThreadID: threadID})
}

// Leave exits the current thread's room.
func (l *Live) Leave() error {
	l.mu.Lock()
	threadID := l.threadID
	l.threadID = ""
	l.mu.Unlock()
	if threadID == "" {
		return nil
	}
	return l.send("leave-chat", threadRef{ThreadID: threadID})
}

// StartTyping signals the start of a typing burst in the joined thread.
func (l *Live) StartTyping() error {
	l.mu.Lock()
	threadID := l.threadID
	l.mu.Unlock()
	if threadID == "" {
		return nil
	}
	return l.send("start-typing", threadRef{ThreadID: threadID})
}

// StopTyping signals the end of a typing burst.
func (l *Live) StopTyping() error {
	l.mu.Lock()
	threadID := l.threadID
	l.mu.Unlock()
	if threadID == "" {
		return nil
	}
	return l.send("stop-typing", threadRef{ThreadID: threadID})
}

// Close shuts down the connection.
func (l *Live) Close() error {
	return l.conn.Close()
}

// Done is closed when the read loop exits.
func (l *Live) Done() <-chan struct{} {
	return l.done
}

// send writes an event frame. The mutex serializes concurrent writers.
func (l *Live) send(event string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.conn.WriteJSON(Event{Event: event, Data: data})
}

// readLoop consumes server events until the connection drops.
func (l *Live) readLoop() {
	defer close(l.done)

	for {
		var evt Event
		if err := l.conn.ReadJSON(&evt); err != nil {
			return
		}

		switch evt.Event {
		case "new-message":
			var msg Message
			if err := json.Unmarshal(evt.Data, &msg); err == nil {
				l.view.ApplyIncoming(msg)
			}
		case "user-typing":
			var t typingEvent
			if err := json.Unmarshal(evt.Data, &t); err == nil {
				l.view.SetTyping(t.UserID, t.Name)
			}
		case "user-stopped-typing":
			var t typingEvent
			if err := json.Unmarshal(evt.Data, &t); err == nil {
				l.view.ClearTyping(t.UserID)
			}
		case "new-message-notification":
			if l.onNotify != nil {
				var n Notification
				if err := json.Unmarshal(evt.Data, &n); err == nil {
					l.onNotify(n)
				}
			}
		}
	}
}
