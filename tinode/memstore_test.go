package tinode

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func newTestStore(t *testing.T) *MemStore {
	t.Helper()
	s, err := NewMemStore()
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func receive(s *MemStore, topic *Topic, seq int) int64 {
	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC).Add(time.Duration(seq) * time.Second)
	return s.MsgReceived(topic, nil, &MsgServerData{
		Topic:   topic.Name(),
		From:    "usrBob",
		Ts:      &ts,
		SeqId:   seq,
		Content: json.RawMessage(`"hello"`),
	})
}

func TestStoreAccount(t *testing.T) {
	s := newTestStore(t)
	s.SetMyUID("usrAlice", "wss://example.com")
	s.SetDeviceToken("push-token")
	if s.MyUID() != "usrAlice" || s.DeviceToken() != "push-token" {
		t.Errorf("unexpected account state %q %q", s.MyUID(), s.DeviceToken())
	}

	s.Logout()
	if s.MyUID() != "" || s.DeviceToken() != "" {
		t.Error("logout did not clear the account state")
	}

	s.SetMyUID("usrAlice", "wss://example.com")
	topic := &Topic{name: "grpTest"}
	s.TopicAdd(topic)
	s.DeleteAccount("usrAlice")
	if s.MyUID() != "" || s.TopicGet("grpTest") != nil {
		t.Error("account deletion did not wipe the store")
	}
}

func TestStoreTopics(t *testing.T) {
	s := newTestStore(t)
	topic := &Topic{name: "grpTest"}
	if s.TopicAdd(topic) == 0 {
		t.Fatal("adding a topic failed")
	}
	if s.TopicAdd(topic) != 0 {
		t.Error("adding a duplicate topic succeeded")
	}
	if s.TopicGet("grpTest") != topic {
		t.Error("stored topic not found")
	}
	if len(s.TopicGetAll()) != 1 {
		t.Errorf("expected 1 topic, got %d", len(s.TopicGetAll()))
	}

	if !s.TopicDelete(topic, true) {
		t.Error("deleting the topic failed")
	}
	if s.TopicDelete(topic, true) {
		t.Error("deleting a missing topic succeeded")
	}
}

func TestStoreTopicRename(t *testing.T) {
	// A local-only topic gets a server-assigned name on first subscribe; its
	// dependent records must follow.
	s := newTestStore(t)
	topic := &Topic{name: "newAbC123"}
	s.TopicAdd(topic)
	dbId := s.MsgSend(topic, nil, "queued text")

	topic.name = "grpConfirmed"
	if !s.TopicUpdate(topic) {
		t.Fatal("update failed")
	}
	if s.TopicGet("newAbC123") != nil {
		t.Error("the old topic name is still registered")
	}
	if s.TopicGet("grpConfirmed") != topic {
		t.Error("the topic is not reachable under the new name")
	}
	queued := s.GetQueuedMessages(topic)
	if len(queued) != 1 || queued[0].DbId != dbId {
		t.Errorf("queued messages did not follow the rename: %v", queued)
	}
}

func TestStoreMessageLifecycle(t *testing.T) {
	s := newTestStore(t)
	s.SetMyUID("usrAlice", "")
	topic := &Topic{name: "grpTest"}
	s.TopicAdd(topic)

	dbId := s.MsgSend(topic, map[string]any{"mime": "text/x-drafty"}, "outgoing")
	if dbId == 0 {
		t.Fatal("saving an outgoing message failed")
	}
	msg := s.GetMessageById(dbId)
	if msg == nil || msg.Status != MsgStatusQueued || !msg.IsPending() || msg.From != "usrAlice" {
		t.Fatalf("unexpected message %+v", msg)
	}

	if !s.MsgSyncing(topic, dbId, true) {
		t.Fatal("marking the message as sending failed")
	}
	if s.GetMessageById(dbId).Status != MsgStatusSending {
		t.Error("message is not in the sending state")
	}
	if len(s.GetQueuedMessages(topic)) != 0 {
		t.Error("a sending message is still reported as queued")
	}

	// Server confirmed the message.
	now := time.Now().UTC()
	if !s.MsgDelivered(topic, dbId, now, 7) {
		t.Fatal("marking the message as delivered failed")
	}
	msg = s.GetMessageById(dbId)
	if msg.Status != MsgStatusSynced || msg.SeqId != 7 || msg.IsPending() {
		t.Errorf("unexpected message %+v", msg)
	}
}

func TestStoreMessageFailure(t *testing.T) {
	s := newTestStore(t)
	topic := &Topic{name: "grpTest"}
	s.TopicAdd(topic)

	dbId := s.MsgSend(topic, nil, "will fail")
	if !s.MsgFailed(topic, dbId) {
		t.Fatal("marking the message as failed failed")
	}
	if s.GetMessageById(dbId).Status != MsgStatusFailed {
		t.Error("message is not in the failed state")
	}

	s.MsgPruneFailed(topic)
	if s.GetMessageById(dbId) != nil {
		t.Error("pruning did not remove the failed message")
	}

	dbId = s.MsgDraft(topic, nil, "draft")
	if !s.MsgDraftUpdate(topic, dbId, "edited draft") {
		t.Fatal("updating the draft failed")
	}
	if !s.MsgReady(topic, dbId, "edited draft") {
		t.Fatal("promoting the draft failed")
	}
	if s.GetMessageById(dbId).Status != MsgStatusQueued {
		t.Error("promoted draft is not queued")
	}
	if !s.MsgDiscard(topic, dbId) {
		t.Fatal("discarding the message failed")
	}

	// Synced messages cannot be discarded.
	dbId = receive(s, topic, 1)
	if s.MsgDiscard(topic, dbId) {
		t.Error("discarded a synced message")
	}
}

func TestStoreCachedRanges(t *testing.T) {
	s := newTestStore(t)
	topic := &Topic{name: "grpTest"}
	s.TopicAdd(topic)

	for _, seq := range []int{1, 2, 3, 5, 7, 8} {
		if receive(s, topic, seq) == 0 {
			t.Fatalf("storing seq %d failed", seq)
		}
	}

	// Duplicate delivery returns the original record.
	first := s.GetMessagesPage(topic, 2, 1)
	if len(first) != 1 {
		t.Fatal("page lookup failed")
	}
	if receive(s, topic, 1) != first[0].DbId {
		t.Error("duplicate delivery created a new record")
	}

	if r := s.GetCachedMessagesRange(topic); r.Low != 1 || r.Hi != 9 {
		t.Errorf("cached range = %v, want {1 9}", r)
	}
	// The topmost gap is fetched first.
	if gap := s.GetNextMissingRange(topic); gap == nil || gap.Low != 6 || gap.Hi != 7 {
		t.Errorf("missing range = %v, want {6 7}", gap)
	}
}

func TestStoreDeletes(t *testing.T) {
	s := newTestStore(t)
	topic := &Topic{name: "grpTest"}
	s.TopicAdd(topic)
	for seq := 1; seq <= 6; seq++ {
		receive(s, topic, seq)
	}

	s.MsgMarkToDelete(topic, []MsgRange{{Low: 2, Hi: 4}}, false)
	s.MsgMarkToDelete(topic, []MsgRange{{Low: 3, Hi: 5}}, false)
	s.MsgMarkToDelete(topic, []MsgRange{{Low: 6}}, true)

	soft := s.GetQueuedMessageDeletes(topic, false)
	if diff := cmp.Diff([]MsgRange{{Low: 2, Hi: 5}}, soft); diff != "" {
		t.Errorf("unexpected soft deletes (-want +got):\n%s", diff)
	}
	hard := s.GetQueuedMessageDeletes(topic, true)
	if diff := cmp.Diff([]MsgRange{{Low: 6, Hi: 7}}, hard); diff != "" {
		t.Errorf("unexpected hard deletes (-want +got):\n%s", diff)
	}

	// Marked messages are invisible to paging and to the cached range.
	if page := s.GetMessagesPage(topic, 0, 10); len(page) != 2 {
		t.Errorf("expected 2 visible messages, got %d", len(page))
	}

	// Server confirmed the soft deletion.
	s.MsgDelete(topic, 10, []MsgRange{{Low: 2, Hi: 5}})
	if pending := s.GetQueuedMessageDeletes(topic, false); pending != nil {
		t.Errorf("confirmed markers still pending: %v", pending)
	}
	if hard = s.GetQueuedMessageDeletes(topic, true); len(hard) != 1 {
		t.Errorf("hard marker lost: %v", hard)
	}
	if r := s.GetCachedMessagesRange(topic); r.Low != 1 || r.Hi != 6 {
		t.Errorf("cached range = %v, want {1 6}", r)
	}
}

func TestStoreSubscriptions(t *testing.T) {
	s := newTestStore(t)
	topic := &Topic{name: "grpTest"}
	s.TopicAdd(topic)

	sub := &Subscription{User: "usrBob", Pub: "Bob"}
	if s.SubAdd(topic, sub) == 0 {
		t.Fatal("adding a subscription failed")
	}
	if s.SubAdd(topic, sub) != 0 {
		t.Error("adding a duplicate subscription succeeded")
	}
	if subs := s.GetSubscriptions(topic); len(subs) != 1 || subs[0] != sub {
		t.Errorf("unexpected subscriptions %v", subs)
	}
	if !s.SubDelete(topic, sub) {
		t.Error("deleting the subscription failed")
	}
	if s.SubDelete(topic, sub) {
		t.Error("deleting a missing subscription succeeded")
	}
}

func TestStoreUsers(t *testing.T) {
	s := newTestStore(t)
	user := &User{UID: "usrBob", Pub: "Bob"}
	if s.UserAdd(user) == 0 {
		t.Fatal("adding a user failed")
	}
	if s.UserAdd(user) != 0 {
		t.Error("adding a duplicate user succeeded")
	}
	if s.UserGet("usrBob") != user {
		t.Error("stored user not found")
	}
	user.Pub = "Bob B."
	if !s.UserUpdate(user) {
		t.Error("updating the user failed")
	}
}

func TestStoreMessagesPage(t *testing.T) {
	s := newTestStore(t)
	topic := &Topic{name: "grpTest"}
	s.TopicAdd(topic)
	for seq := 1; seq <= 10; seq++ {
		receive(s, topic, seq)
	}

	page := s.GetMessagesPage(topic, 8, 3)
	if len(page) != 3 || page[0].SeqId != 7 || page[1].SeqId != 6 || page[2].SeqId != 5 {
		t.Errorf("unexpected page %v", page)
	}

	// An unset 'before' starts from the newest.
	page = s.GetMessagesPage(topic, 0, 2)
	if len(page) != 2 || page[0].SeqId != 10 {
		t.Errorf("unexpected page %v", page)
	}
}

func TestStoreLatestPreviews(t *testing.T) {
	s := newTestStore(t)
	one := &Topic{name: "grpOne"}
	two := &Topic{name: "grpTwo"}
	s.TopicAdd(one)
	s.TopicAdd(two)
	receive(s, one, 1)
	receive(s, one, 2)
	receive(s, two, 5)

	latest := s.GetLatestMessagePreviews()
	if len(latest) != 2 {
		t.Fatalf("expected 2 previews, got %d", len(latest))
	}
	seen := map[string]int{}
	for _, m := range latest {
		seen[m.Topic] = m.SeqId
	}
	if seen["grpOne"] != 2 || seen["grpTwo"] != 5 {
		t.Errorf("unexpected previews %v", seen)
	}
}
