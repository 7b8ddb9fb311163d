package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/byour-platform/chat/internal/models"
	"github.com/byour-platform/chat/internal/store"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// testServer upgrades connections and registers them on the hub. The
// user is picked by the "user" query parameter.
func testServer(t *testing.T, hub *Hub, users map[string]*models.User) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := users[r.URL.Query().Get("user")]
		if user == nil {
			http.Error(w, "unknown user", http.StatusUnauthorized)
			return
		}
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		hub.Register(conn, user)
	}))
}

func dial(t *testing.T, srv *httptest.Server, userKey string) *websocket.Conn {
	t.Helper()
	wsURL := strings.Replace(srv.URL, "http", "ws", 1) + "?user=" + userKey
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatal(err)
	}
	return conn
}

func sendEvent(t *testing.T, conn *websocket.Conn, event string, threadID uuid.UUID) {
	t.Helper()
	data, _ := json.Marshal(ThreadPayload{ThreadID: threadID})
	if err := conn.WriteJSON(Event{Event: event, Data: data}); err != nil {
		t.Fatal(err)
	}
}

func readEvent(t *testing.T, conn *websocket.Conn) Event {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var evt Event
	if err := conn.ReadJSON(&evt); err != nil {
		t.Fatal(err)
	}
	return evt
}

// waitInThread polls until the join has been processed.
func waitInThread(t *testing.T, hub *Hub, threadID, userID uuid.UUID) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if hub.InThread(threadID, userID) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("join never took effect")
}

type hubFixture struct {
	hub      *Hub
	srv      *httptest.Server
	owner    *models.User
	boss     *models.User
	outsider *models.User
	threadID uuid.UUID
}

func newHubFixture(t *testing.T) *hubFixture {
	t.Helper()

	db := store.NewMemoryStore()
	owner := &models.User{ID: uuid.New(), Name: "HQ Anna", Role: models.RoleHQ}
	boss := &models.User{ID: uuid.New(), Name: "Boss Ben", Role: models.RoleBoss}
	outsider := &models.User{ID: uuid.New(), Name: "Other", Role: models.RoleShaper}

	project := &models.Project{ID: uuid.New(), OwnerID: owner.ID, BossID: &boss.ID}
	if err := db.UpsertProject(context.Background(), project); err != nil {
		t.Fatal(err)
	}
	thread, err := db.FindOrCreateThread(context.Background(), project.ID)
	if err != nil {
		t.Fatal(err)
	}

	hub := NewHub(db, nil, zerolog.Nop())
	srv := testServer(t, hub, map[string]*models.User{
		"owner":    owner,
		"boss":     boss,
		"outsider": outsider,
	})
	t.Cleanup(srv.Close)

	return &hubFixture{hub: hub, srv: srv, owner: owner, boss: boss, outsider: outsider, threadID: thread.ID}
}

func TestJoinAndBroadcast(t *testing.T) {
	f := newHubFixture(t)

	ownerConn := dial(t, f.srv, "owner")
	defer ownerConn.Close()
	bossConn := dial(t, f.srv, "boss")
	defer bossConn.Close()

	sendEvent(t, ownerConn, EventJoinChat, f.threadID)
	sendEvent(t, bossConn, EventJoinChat, f.threadID)
	waitInThread(t, f.hub, f.threadID, f.owner.ID)
	waitInThread(t, f.hub, f.threadID, f.boss.ID)

	payload, _ := Marshal(EventNewMessage, map[string]string{"body": "hello"})
	f.hub.BroadcastToThread(f.threadID, payload)

	for _, conn := range []*websocket.Conn{ownerConn, bossConn} {
		evt := readEvent(t, conn)
		if evt.Event != EventNewMessage {
			t.Fatalf("expected new-message, got %s", evt.Event)
		}
	}
}

func TestJoinRejectedForNonParticipant(t *testing.T) {
	f := newHubFixture(t)

	conn := dial(t, f.srv, "outsider")
	defer conn.Close()

	sendEvent(t, conn, EventJoinChat, f.threadID)

	// The join must never take effect
	time.Sleep(100 * time.Millisecond)
	if f.hub.InThread(f.threadID, f.outsider.ID) {
		t.Fatal("non-participant joined the room")
	}
}

func TestTypingRelayedToOthersOnly(t *testing.T) {
	f := newHubFixture(t)

	ownerConn := dial(t, f.srv, "owner")
	defer ownerConn.Close()
	bossConn := dial(t, f.srv, "boss")
	defer bossConn.Close()

	sendEvent(t, ownerConn, EventJoinChat, f.threadID)
	sendEvent(t, bossConn, EventJoinChat, f.threadID)
	waitInThread(t, f.hub, f.threadID, f.owner.ID)
	waitInThread(t, f.hub, f.threadID, f.boss.ID)

	sendEvent(t, ownerConn, EventStartTyping, f.threadID)

	evt := readEvent(t, bossConn)
	if evt.Event != EventUserTyping {
		t.Fatalf("expected user-typing, got %s", evt.Event)
	}
	var typing TypingPayload
	if err := json.Unmarshal(evt.Data, &typing); err != nil {
		t.Fatal(err)
	}
	if typing.UserID != f.owner.ID || typing.Name != "HQ Anna" {
		t.Fatalf("wrong typing payload: %+v", typing)
	}

	sendEvent(t, ownerConn, EventStopTyping, f.threadID)
	evt = readEvent(t, bossConn)
	if evt.Event != EventUserStoppedTyping {
		t.Fatalf("expected user-stopped-typing, got %s", evt.Event)
	}

	// The typist gets no echo; the next frame the owner sees should be
	// a broadcast, not its own typing relay.
	payload, _ := Marshal(EventNewMessage, map[string]string{"body": "x"})
	f.hub.BroadcastToThread(f.threadID, payload)
	evt = readEvent(t, ownerConn)
	if evt.Event != EventNewMessage {
		t.Fatalf("typist received own typing relay: %s", evt.Event)
	}
}

func TestDisconnectAnnouncesStoppedTyping(t *testing.T) {
	f := newHubFixture(t)

	ownerConn := dial(t, f.srv, "owner")
	bossConn := dial(t, f.srv, "boss")
	defer bossConn.Close()

	sendEvent(t, ownerConn, EventJoinChat, f.threadID)
	sendEvent(t, bossConn, EventJoinChat, f.threadID)
	waitInThread(t, f.hub, f.threadID, f.owner.ID)
	waitInThread(t, f.hub, f.threadID, f.boss.ID)

	sendEvent(t, ownerConn, EventStartTyping, f.threadID)
	if evt := readEvent(t, bossConn); evt.Event != EventUserTyping {
		t.Fatalf("expected user-typing, got %s", evt.Event)
	}

	// Owner vanishes mid-burst
	ownerConn.Close()

	evt := readEvent(t, bossConn)
	if evt.Event != EventUserStoppedTyping {
		t.Fatalf("expected stopped-typing on disconnect, got %s", evt.Event)
	}
}

func TestSendToUserReachesAllSessions(t *testing.T) {
	f := newHubFixture(t)

	first := dial(t, f.srv, "boss")
	defer first.Close()
	second := dial(t, f.srv, "boss")
	defer second.Close()

	// Both sessions must be registered before pushing
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		f.hub.mu.Lock()
		n := len(f.hub.users[f.boss.ID])
		f.hub.mu.Unlock()
		if n == 2 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	payload, _ := Marshal(EventNotification, NotificationPayload{
		ThreadID:   f.threadID,
		SenderName: "HQ Anna",
		Preview:    "ping",
	})
	f.hub.SendToUser(f.boss.ID, payload)

	for _, conn := range []*websocket.Conn{first, second} {
		evt := readEvent(t, conn)
		if evt.Event != EventNotification {
			t.Fatalf("expected notification, got %s", evt.Event)
		}
	}
}

func TestLeaveStopsDelivery(t *testing.T) {
	f := newHubFixture(t)

	conn := dial(t, f.srv, "owner")
	defer conn.Close()

	sendEvent(t, conn, EventJoinChat, f.threadID)
	waitInThread(t, f.hub, f.threadID, f.owner.ID)

	sendEvent(t, conn, EventLeaveChat, f.threadID)
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && f.hub.InThread(f.threadID, f.owner.ID) {
		time.Sleep(5 * time.Millisecond)
	}
	if f.hub.InThread(f.threadID, f.owner.ID) {
		t.Fatal("leave never took effect")
	}

	payload, _ := Marshal(EventNewMessage, map[string]string{"body": "x"})
	f.hub.BroadcastToThread(f.threadID, payload)

	conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	var evt Event
	if err := conn.ReadJSON(&evt); err == nil {
		t.Fatalf("received broadcast after leaving: %s", evt.Event)
	}
}
