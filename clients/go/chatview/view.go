package chatview

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// ErrSendInFlight is returned by BeginSend while a previous send has
// not completed or failed yet. The composer stays locked so a double
// click cannot produce two sends.
var ErrSendInFlight = errors.New("chatview: send already in flight")

// SendState is the lifecycle state of an optimistic outgoing message.
type SendState int

const (
	SendPending SendState = iota
	SendConfirmed
	SendFailed
)

// Outgoing is a locally echoed message that has not been confirmed by
// the server yet. TempID doubles as the client_tag on the wire, so a
// retry of the same Outgoing can never store a duplicate.
type Outgoing struct {
	TempID string
	State  SendState
	Draft  Message
}

// Entry is one renderable timeline item: either a stored message or an
// optimistic outgoing one.
type Entry struct {
	Message Message
	State   SendState
	TempID  string // empty for stored messages
}

// DayGroup is a run of consecutive entries on the same calendar day.
type DayGroup struct {
	Day     time.Time // midnight in the view's location
	Entries []Entry
}

// View is the client-side state of one thread: history, optimistic
// sends and typing indicators. Safe for concurrent use; the realtime
// loop and the UI feed it from different goroutines.
type View struct {
	mu sync.Mutex

	selfID   string
	loc      *time.Location
	messages []Message // stored messages, chronological
	seen     map[string]bool
	outgoing map[string]*Outgoing
	pending  []string // outgoing temp IDs in send order
	inflight string
	typing   map[string]string // userID -> display name
	hasMore  bool

	gen       uint64 // bumped on every timeline mutation
	groupsGen uint64
	groups    []DayGroup
}

// NewView creates a view for the given authenticated user.
func NewView(selfID string) *View {
	return &View{
		selfID:   selfID,
		loc:      time.Local,
		seen:     make(map[string]bool),
		outgoing: make(map[string]*Outgoing),
		typing:   make(map[string]string),
	}
}

// SetLocation overrides the location used for day grouping.
func (v *View) SetLocation(loc *time.Location) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.loc = loc
	v.groups = nil
}

// LoadHistory merges a fetched page into the view. Pages may arrive in
// any order and may overlap with realtime delivery; duplicates are
// dropped by message ID.
func (v *View) LoadHistory(resp *ThreadResponse) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.hasMore = resp.HasMore

	changed := false
	for _, msg := range resp.Messages {
		if v.seen[msg.ID] {
			continue
		}
		v.seen[msg.ID] = true
		v.messages = append(v.messages, msg)
		changed = true
	}
	if changed {
		sort.SliceStable(v.messages, func(i, j int) bool {
			if v.messages[i].Timestamp != v.messages[j].Timestamp {
				return v.messages[i].Timestamp < v.messages[j].Timestamp
			}
			return v.messages[i].ID < v.messages[j].ID
		})
		v.gen++
	}
}

// HasMore reports whether older history remains unfetched.
func (v *View) HasMore() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.hasMore
}

// ApplyIncoming merges a realtime message into the view. A message
// carrying one of our own pending client tags confirms that send
// instead of appending a second copy.
func (v *View) ApplyIncoming(msg Message) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if msg.SenderID == v.selfID && msg.ClientTag != "" {
		if out, ok := v.outgoing[msg.ClientTag]; ok && out.State != SendConfirmed {
			v.confirmLocked(msg.ClientTag, msg)
			return
		}
	}

	v.appendLocked(msg)
}

// BeginSend registers an optimistic outgoing message and returns its
// temp ID, which the caller passes to the server as client_tag. Only
// one send may be in flight at a time.
func (v *View) BeginSend(body string, attachments []Attachment) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.inflight != "" {
		return "", ErrSendInFlight
	}

	tempID := ulid.Make().String()
	v.outgoing[tempID] = &Outgoing{
		TempID: tempID,
		State:  SendPending,
		Draft: Message{
			SenderID:    v.selfID,
			Body:        body,
			Attachments: attachments,
			ClientTag:   tempID,
			Timestamp:   time.Now().UnixMilli(),
		},
	}
	v.pending = append(v.pending, tempID)
	v.inflight = tempID
	v.gen++

	return tempID, nil
}

// CompleteSend resolves a pending send with the server's stored message.
func (v *View) CompleteSend(tempID string, msg Message) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.confirmLocked(tempID, msg)
}

// FailSend marks a pending send as failed. The entry stays visible so
// the user can retry; the composer unlocks.
func (v *View) FailSend(tempID string) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if out, ok := v.outgoing[tempID]; ok && out.State == SendPending {
		out.State = SendFailed
		v.gen++
	}
	if v.inflight == tempID {
		v.inflight = ""
	}
}

// RetrySend moves a failed send back to pending and returns its temp
// ID for reuse as the client_tag. Reusing the tag means the server
// dedupes if the first attempt actually landed.
func (v *View) RetrySend(tempID string) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	out, ok := v.outgoing[tempID]
	if !ok || out.State != SendFailed {
		return "", errors.New("chatview: no failed send with that ID")
	}
	if v.inflight != "" {
		return "", ErrSendInFlight
	}

	out.State = SendPending
	v.inflight = tempID
	v.gen++
	return tempID, nil
}

// confirmLocked swaps a pending entry for the stored message.
func (v *View) confirmLocked(tempID string, msg Message) {
	if out, ok := v.outgoing[tempID]; ok {
		out.State = SendConfirmed
		delete(v.outgoing, tempID)
		for i, id := range v.pending {
			if id == tempID {
				v.pending = append(v.pending[:i], v.pending[i+1:]...)
				break
			}
		}
		v.gen++
	}
	if v.inflight == tempID {
		v.inflight = ""
	}
	v.appendLocked(msg)
}

// appendLocked inserts a stored message keeping chronological order.
func (v *View) appendLocked(msg Message) {
	if v.seen[msg.ID] {
		return
	}
	v.seen[msg.ID] = true
	v.gen++

	n := len(v.messages)
	if n == 0 || v.messages[n-1].Timestamp < msg.Timestamp ||
		(v.messages[n-1].Timestamp == msg.Timestamp && v.messages[n-1].ID < msg.ID) {
		v.messages = append(v.messages, msg)
		return
	}

	i := sort.Search(n, func(i int) bool {
		if v.messages[i].Timestamp != msg.Timestamp {
			return v.messages[i].Timestamp > msg.Timestamp
		}
		return v.messages[i].ID > msg.ID
	})
	v.messages = append(v.messages, Message{})
	copy(v.messages[i+1:], v.messages[i:])
	v.messages[i] = msg
}

// Timeline returns all entries in render order: stored messages
// chronologically, then unconfirmed outgoing sends in send order.
func (v *View) Timeline() []Entry {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.timelineLocked()
}

func (v *View) timelineLocked() []Entry {
	entries := make([]Entry, 0, len(v.messages)+len(v.pending))
	for _, msg := range v.messages {
		entries = append(entries, Entry{Message: msg, State: SendConfirmed})
	}
	for _, tempID := range v.pending {
		out := v.outgoing[tempID]
		entries = append(entries, Entry{Message: out.Draft, State: out.State, TempID: tempID})
	}
	return entries
}

// DayGroups partitions the timeline into calendar-day groups. The
// concatenation of all groups is exactly the timeline; nothing is
// dropped or reordered. The partition is memoized and recomputed only
// after the timeline changes.
func (v *View) DayGroups() []DayGroup {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.groups != nil && v.groupsGen == v.gen {
		return v.groups
	}

	var groups []DayGroup
	for _, e := range v.timelineLocked() {
		day := dayOf(e.Message.Timestamp, v.loc)
		if len(groups) == 0 || !groups[len(groups)-1].Day.Equal(day) {
			groups = append(groups, DayGroup{Day: day})
		}
		groups[len(groups)-1].Entries = append(groups[len(groups)-1].Entries, e)
	}

	v.groups = groups
	v.groupsGen = v.gen
	return groups
}

// dayOf truncates a unix-ms timestamp to midnight in loc.
func dayOf(ts int64, loc *time.Location) time.Time {
	t := time.UnixMilli(ts).In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// SetTyping records that a user is typing.
func (v *View) SetTyping(userID, name string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if userID == v.selfID {
		return
	}
	v.typing[userID] = name
}

// ClearTyping removes a user's typing indicator.
func (v *View) ClearTyping(userID string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.typing, userID)
}

// TypingNames returns the names of everyone currently typing, sorted
// for stable rendering.
func (v *View) TypingNames() []string {
	v.mu.Lock()
	defer v.mu.Unlock()

	names := make([]string, 0, len(v.typing))
	for _, name := range v.typing {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
