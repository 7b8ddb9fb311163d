package chatview

import (
	"fmt"
	"testing"
	"time"
)

func mkMsg(id string, ts int64, sender, body string) Message {
	return Message{
		ID:        id,
		ThreadID:  "t1",
		SenderID:  sender,
		Body:      body,
		Timestamp: ts,
	}
}

func TestLoadHistoryDedupes(t *testing.T) {
	v := NewView("me")

	page := &ThreadResponse{Messages: []Message{
		mkMsg("a", 100, "other", "one"),
		mkMsg("b", 200, "other", "two"),
	}}
	v.LoadHistory(page)
	v.LoadHistory(page) // repeated fetch must not duplicate

	entries := v.Timeline()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Message.ID != "a" || entries[1].Message.ID != "b" {
		t.Fatalf("unexpected order: %s, %s", entries[0].Message.ID, entries[1].Message.ID)
	}
}

func TestHistoryAndRealtimeOverlap(t *testing.T) {
	v := NewView("me")

	v.ApplyIncoming(mkMsg("b", 200, "other", "live"))
	v.LoadHistory(&ThreadResponse{Messages: []Message{
		mkMsg("a", 100, "other", "older"),
		mkMsg("b", 200, "other", "live"), // same message via fetch
	}})

	entries := v.Timeline()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Message.ID != "a" {
		t.Fatalf("expected chronological order, got %s first", entries[0].Message.ID)
	}
}

func TestIncomingKeepsOrderOnTimestampTie(t *testing.T) {
	v := NewView("me")

	// Same millisecond; ULID ordering breaks the tie the same way for
	// every client.
	v.ApplyIncoming(mkMsg("02ZZZZ", 500, "other", "second"))
	v.ApplyIncoming(mkMsg("01AAAA", 500, "other", "first"))

	entries := v.Timeline()
	if entries[0].Message.ID != "01AAAA" || entries[1].Message.ID != "02ZZZZ" {
		t.Fatalf("tie not broken by ID: %s, %s", entries[0].Message.ID, entries[1].Message.ID)
	}
}

func TestDayGroupsLossless(t *testing.T) {
	v := NewView("me")
	v.SetLocation(time.UTC)

	day1 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC).UnixMilli()
	day1b := time.Date(2026, 3, 1, 17, 30, 0, 0, time.UTC).UnixMilli()
	day2 := time.Date(2026, 3, 2, 0, 1, 0, 0, time.UTC).UnixMilli()

	v.LoadHistory(&ThreadResponse{Messages: []Message{
		mkMsg("a", day1, "other", "morning"),
		mkMsg("b", day1b, "me", "evening"),
		mkMsg("c", day2, "other", "next day"),
	}})

	groups := v.DayGroups()
	if len(groups) != 2 {
		t.Fatalf("expected 2 day groups, got %d", len(groups))
	}
	if len(groups[0].Entries) != 2 || len(groups[1].Entries) != 1 {
		t.Fatalf("unexpected group sizes: %d, %d", len(groups[0].Entries), len(groups[1].Entries))
	}

	// Concatenating groups must reproduce the timeline exactly
	var flat []Entry
	for _, g := range groups {
		flat = append(flat, g.Entries...)
	}
	timeline := v.Timeline()
	if len(flat) != len(timeline) {
		t.Fatalf("grouping dropped entries: %d vs %d", len(flat), len(timeline))
	}
	for i := range flat {
		if flat[i].Message.ID != timeline[i].Message.ID {
			t.Fatalf("grouping reordered entry %d: %s vs %s", i, flat[i].Message.ID, timeline[i].Message.ID)
		}
	}
}

func TestDayGroupsMemoized(t *testing.T) {
	v := NewView("me")
	v.SetLocation(time.UTC)
	v.ApplyIncoming(mkMsg("a", 100, "other", "one"))

	g1 := v.DayGroups()
	g2 := v.DayGroups()
	if &g1[0] != &g2[0] {
		t.Fatal("unchanged timeline recomputed the groups")
	}

	v.ApplyIncoming(mkMsg("b", 200, "other", "two"))
	g3 := v.DayGroups()
	if len(g3[0].Entries) != 2 {
		t.Fatalf("groups stale after change: %d entries", len(g3[0].Entries))
	}
}

func TestOptimisticSendLifecycle(t *testing.T) {
	v := NewView("me")

	tempID, err := v.BeginSend("hello", nil)
	if err != nil {
		t.Fatal(err)
	}

	entries := v.Timeline()
	if len(entries) != 1 || entries[0].State != SendPending {
		t.Fatalf("expected one pending entry, got %+v", entries)
	}

	stored := mkMsg("srv1", 300, "me", "hello")
	stored.ClientTag = tempID
	v.CompleteSend(tempID, stored)

	entries = v.Timeline()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry after confirm, got %d", len(entries))
	}
	if entries[0].State != SendConfirmed || entries[0].Message.ID != "srv1" {
		t.Fatalf("pending entry not replaced: %+v", entries[0])
	}
}

func TestRealtimeEchoConfirmsPendingSend(t *testing.T) {
	v := NewView("me")

	tempID, err := v.BeginSend("hello", nil)
	if err != nil {
		t.Fatal(err)
	}

	// The room broadcast can arrive before the HTTP response
	echo := mkMsg("srv1", 300, "me", "hello")
	echo.ClientTag = tempID
	v.ApplyIncoming(echo)

	entries := v.Timeline()
	if len(entries) != 1 {
		t.Fatalf("echo duplicated the send: %d entries", len(entries))
	}
	if entries[0].Message.ID != "srv1" {
		t.Fatalf("expected stored message, got %+v", entries[0])
	}

	// Late HTTP response for the same send must be a no-op
	v.CompleteSend(tempID, echo)
	if len(v.Timeline()) != 1 {
		t.Fatal("late completion duplicated the message")
	}
}

func TestDoubleSendBlocked(t *testing.T) {
	v := NewView("me")

	if _, err := v.BeginSend("first", nil); err != nil {
		t.Fatal(err)
	}
	if _, err := v.BeginSend("second click", nil); err != ErrSendInFlight {
		t.Fatalf("expected ErrSendInFlight, got %v", err)
	}
}

func TestFailedSendStaysVisibleAndRetries(t *testing.T) {
	v := NewView("me")

	tempID, err := v.BeginSend("flaky", nil)
	if err != nil {
		t.Fatal(err)
	}
	v.FailSend(tempID)

	entries := v.Timeline()
	if len(entries) != 1 || entries[0].State != SendFailed {
		t.Fatalf("failed send missing from timeline: %+v", entries)
	}

	// Composer unlocks after failure
	tempID2, err := v.BeginSend("another", nil)
	if err != nil {
		t.Fatal(err)
	}
	stored2 := mkMsg("srv2", 400, "me", "another")
	v.CompleteSend(tempID2, stored2)

	// Retry reuses the original tag so the server can dedupe
	retryID, err := v.RetrySend(tempID)
	if err != nil {
		t.Fatal(err)
	}
	if retryID != tempID {
		t.Fatalf("retry changed the client tag: %s vs %s", retryID, tempID)
	}
}

func TestTypingIndicators(t *testing.T) {
	v := NewView("me")

	v.SetTyping("u1", "Alice")
	v.SetTyping("u2", "Bob")
	v.SetTyping("me", "Self") // own typing never shows

	names := v.TypingNames()
	if len(names) != 2 || names[0] != "Alice" || names[1] != "Bob" {
		t.Fatalf("unexpected typing names: %v", names)
	}

	v.ClearTyping("u1")
	names = v.TypingNames()
	if len(names) != 1 || names[0] != "Bob" {
		t.Fatalf("clear failed: %v", names)
	}
}

func TestPendingSendsRenderAfterHistory(t *testing.T) {
	v := NewView("me")
	v.LoadHistory(&ThreadResponse{Messages: []Message{mkMsg("a", 100, "other", "hi")}})

	var tempIDs []string
	for i := 0; i < 2; i++ {
		id, err := v.BeginSend(fmt.Sprintf("draft %d", i), nil)
		if err != nil {
			t.Fatal(err)
		}
		v.FailSend(id) // unlock composer for the next one
		tempIDs = append(tempIDs, id)
	}

	entries := v.Timeline()
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if entries[1].TempID != tempIDs[0] || entries[2].TempID != tempIDs[1] {
		t.Fatal("pending sends not in send order")
	}
}
