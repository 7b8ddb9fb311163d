package notify

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/byour-platform/chat/internal/models"
	"github.com/byour-platform/chat/internal/realtime"
)

type fakePusher struct {
	inThread map[uuid.UUID]bool // userID -> has the thread open
	sent     map[uuid.UUID][][]byte
}

func newFakePusher() *fakePusher {
	return &fakePusher{
		inThread: make(map[uuid.UUID]bool),
		sent:     make(map[uuid.UUID][][]byte),
	}
}

func (p *fakePusher) InThread(threadID, userID uuid.UUID) bool {
	return p.inThread[userID]
}

func (p *fakePusher) SendToUser(userID uuid.UUID, payload []byte) {
	p.sent[userID] = append(p.sent[userID], payload)
}

func testProject(owner, boss uuid.UUID) *models.Project {
	return &models.Project{ID: uuid.New(), OwnerID: owner, BossID: &boss}
}

func TestNotifiesOutOfRoomParticipant(t *testing.T) {
	owner := uuid.New()
	boss := uuid.New()
	project := testProject(owner, boss)
	threadID := uuid.New()

	pusher := newFakePusher()
	d := NewDispatcher(pusher, zerolog.Nop())

	msg := &models.Message{
		ID:       "01ABC",
		ThreadID: threadID,
		SenderID: owner,
		Body:     "new brief attached",
	}
	d.MessagePersisted(project, msg, "HQ Anna")

	if len(pusher.sent[owner]) != 0 {
		t.Fatal("sender must not be notified")
	}
	if len(pusher.sent[boss]) != 1 {
		t.Fatalf("expected 1 notification for boss, got %d", len(pusher.sent[boss]))
	}

	var evt realtime.Event
	if err := json.Unmarshal(pusher.sent[boss][0], &evt); err != nil {
		t.Fatal(err)
	}
	if evt.Event != realtime.EventNotification {
		t.Fatalf("wrong event name: %s", evt.Event)
	}

	var payload realtime.NotificationPayload
	if err := json.Unmarshal(evt.Data, &payload); err != nil {
		t.Fatal(err)
	}
	if payload.ThreadID != threadID || payload.ProjectID != project.ID {
		t.Fatalf("wrong references: %+v", payload)
	}
	if payload.SenderName != "HQ Anna" || payload.Preview != "new brief attached" {
		t.Fatalf("wrong content: %+v", payload)
	}
}

func TestSkipsParticipantInRoom(t *testing.T) {
	owner := uuid.New()
	boss := uuid.New()
	project := testProject(owner, boss)

	pusher := newFakePusher()
	pusher.inThread[boss] = true // boss has the chat open
	d := NewDispatcher(pusher, zerolog.Nop())

	msg := &models.Message{ID: "01ABC", ThreadID: uuid.New(), SenderID: owner, Body: "hi"}
	d.MessagePersisted(project, msg, "HQ Anna")

	if len(pusher.sent) != 0 {
		t.Fatal("in-room participant must not get a notification")
	}
}

func TestProjectWithoutBossNotifiesNobodyElse(t *testing.T) {
	owner := uuid.New()
	project := &models.Project{ID: uuid.New(), OwnerID: owner}

	pusher := newFakePusher()
	d := NewDispatcher(pusher, zerolog.Nop())

	msg := &models.Message{ID: "01ABC", ThreadID: uuid.New(), SenderID: owner, Body: "hello?"}
	d.MessagePersisted(project, msg, "HQ Anna")

	if len(pusher.sent) != 0 {
		t.Fatalf("no other participants exist, got %d notified", len(pusher.sent))
	}
}

func TestPreviewTruncation(t *testing.T) {
	short := "fits entirely"
	if got := Preview(short); got != short {
		t.Fatalf("short body altered: %q", got)
	}

	long := strings.Repeat("x", 80)
	got := Preview(long)
	if len([]rune(got)) != 51 { // 50 + ellipsis
		t.Fatalf("expected 51 runes, got %d", len([]rune(got)))
	}
	if !strings.HasSuffix(got, "…") {
		t.Fatalf("missing ellipsis: %q", got)
	}

	// Rune-safe on multibyte text
	multibyte := strings.Repeat("ä", 60)
	got = Preview(multibyte)
	if !strings.HasPrefix(got, strings.Repeat("ä", 50)) || !strings.HasSuffix(got, "…") {
		t.Fatalf("multibyte truncation broken: %q", got)
	}

	exactly := strings.Repeat("y", 50)
	if got := Preview(exactly); got != exactly {
		t.Fatalf("boundary body altered: %q", got)
	}
}
