package tinode

import (
	"sort"
	"sync"
	"time"

	sf "github.com/tinode/snowflake"
)

// delMarker is a locally requested message deletion awaiting server
// confirmation.
type delMarker struct {
	rng  MsgRange
	hard bool
}

// MemStore is an in-memory Storage implementation. It makes the client fully
// functional without a database: state lives for the lifetime of the process.
type MemStore struct {
	lock sync.Mutex
	seq  *sf.SnowFlake

	uid         string
	hostURI     string
	deviceToken string

	topics map[string]*Topic
	users  map[string]*User
	// Subscriptions keyed by topic name, then by Subscription.UniqueID.
	subs map[string]map[string]*Subscription
	// Messages per topic, kept sorted: pending (by DbId) after synced (by SeqId).
	messages map[string][]*Message
	// Pending deletions per topic.
	delLog map[string][]delMarker
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() (*MemStore, error) {
	seq, err := sf.NewSnowFlake(1)
	if err != nil {
		return nil, err
	}
	return &MemStore{
		seq:      seq,
		topics:   map[string]*Topic{},
		users:    map[string]*User{},
		subs:     map[string]map[string]*Subscription{},
		messages: map[string][]*Message{},
		delLog:   map[string][]delMarker{},
	}, nil
}

func (s *MemStore) nextId() int64 {
	id, err := s.seq.Next()
	if err != nil {
		return 0
	}
	return int64(id)
}

// SetMyUID records the authenticated user.
func (s *MemStore) SetMyUID(uid, hostURI string) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.uid = uid
	s.hostURI = hostURI
}

// MyUID returns the ID of the last authenticated user.
func (s *MemStore) MyUID() string {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.uid
}

// SetDeviceToken saves the push notification token.
func (s *MemStore) SetDeviceToken(token string) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.deviceToken = token
}

// DeviceToken returns the saved push notification token.
func (s *MemStore) DeviceToken() string {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.deviceToken
}

// Logout clears the authenticated user record.
func (s *MemStore) Logout() {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.uid = ""
	s.deviceToken = ""
}

// DeleteAccount wipes all stored data of the given user.
func (s *MemStore) DeleteAccount(uid string) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.uid == uid {
		s.uid = ""
		s.deviceToken = ""
	}
	s.topics = map[string]*Topic{}
	s.users = map[string]*User{}
	s.subs = map[string]map[string]*Subscription{}
	s.messages = map[string][]*Message{}
	s.delLog = map[string][]delMarker{}
}

// TopicGetAll loads all persisted topics.
func (s *MemStore) TopicGetAll() []*Topic {
	s.lock.Lock()
	defer s.lock.Unlock()
	topics := make([]*Topic, 0, len(s.topics))
	for _, t := range s.topics {
		topics = append(topics, t)
	}
	return topics
}

// TopicGet loads one topic by name.
func (s *MemStore) TopicGet(name string) *Topic {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.topics[name]
}

// TopicAdd persists a new topic.
func (s *MemStore) TopicAdd(topic *Topic) int64 {
	s.lock.Lock()
	defer s.lock.Unlock()
	if _, ok := s.topics[topic.Name()]; ok {
		return 0
	}
	s.topics[topic.Name()] = topic
	return s.nextId()
}

// TopicUpdate saves topic changes. A renamed topic (temporary name replaced
// by the server-assigned one) is re-keyed.
func (s *MemStore) TopicUpdate(topic *Topic) bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	for name, t := range s.topics {
		if t == topic && name != topic.Name() {
			delete(s.topics, name)
			s.subs[topic.Name()] = s.subs[name]
			s.messages[topic.Name()] = s.messages[name]
			s.delLog[topic.Name()] = s.delLog[name]
			delete(s.subs, name)
			delete(s.messages, name)
			delete(s.delLog, name)
			break
		}
	}
	s.topics[topic.Name()] = topic
	return true
}

// TopicDelete removes the topic and optionally its dependent records.
func (s *MemStore) TopicDelete(topic *Topic, hard bool) bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	name := topic.Name()
	if _, ok := s.topics[name]; !ok {
		return false
	}
	delete(s.topics, name)
	if hard {
		delete(s.subs, name)
		delete(s.messages, name)
		delete(s.delLog, name)
	}
	return true
}

// syncedSeqIds returns sorted seq IDs of synced messages of the topic.
// Called with the lock held.
func (s *MemStore) syncedSeqIds(topic *Topic) []int {
	var ids []int
	for _, msg := range s.messages[topic.Name()] {
		if msg.SeqId > 0 && !msg.IsDeleted() {
			ids = append(ids, msg.SeqId)
		}
	}
	sort.Ints(ids)
	return ids
}

// GetCachedMessagesRange returns the bounding range of cached messages.
func (s *MemStore) GetCachedMessagesRange(topic *Topic) MsgRange {
	s.lock.Lock()
	defer s.lock.Unlock()
	ids := s.syncedSeqIds(topic)
	if len(ids) == 0 {
		return MsgRange{}
	}
	return MsgRange{Low: ids[0], Hi: ids[len(ids)-1] + 1}
}

// GetNextMissingRange returns the topmost gap in the message cache.
func (s *MemStore) GetNextMissingRange(topic *Topic) *MsgRange {
	s.lock.Lock()
	defer s.lock.Unlock()
	ids := s.syncedSeqIds(topic)
	gaps := RangeGaps(ListToRanges(ids))
	if len(gaps) == 0 {
		return nil
	}
	return &gaps[len(gaps)-1]
}

// SetRead updates the topic's read counter.
func (s *MemStore) SetRead(topic *Topic, read int) bool {
	return true
}

// SetRecv updates the topic's received counter.
func (s *MemStore) SetRecv(topic *Topic, recv int) bool {
	return true
}

func (s *MemStore) subMap(topic *Topic) map[string]*Subscription {
	m := s.subs[topic.Name()]
	if m == nil {
		m = map[string]*Subscription{}
		s.subs[topic.Name()] = m
	}
	return m
}

// SubAdd persists a subscription of the given topic.
func (s *MemStore) SubAdd(topic *Topic, sub *Subscription) int64 {
	s.lock.Lock()
	defer s.lock.Unlock()
	m := s.subMap(topic)
	if _, ok := m[sub.UniqueID()]; ok {
		return 0
	}
	m[sub.UniqueID()] = sub
	return s.nextId()
}

// SubUpdate saves subscription changes.
func (s *MemStore) SubUpdate(topic *Topic, sub *Subscription) bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.subMap(topic)[sub.UniqueID()] = sub
	return true
}

// SubNew persists a local invite not yet confirmed by the server.
func (s *MemStore) SubNew(topic *Topic, sub *Subscription) int64 {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.subMap(topic)[sub.UniqueID()] = sub
	return s.nextId()
}

// SubDelete removes a subscription.
func (s *MemStore) SubDelete(topic *Topic, sub *Subscription) bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	m := s.subMap(topic)
	if _, ok := m[sub.UniqueID()]; !ok {
		return false
	}
	delete(m, sub.UniqueID())
	return true
}

// GetSubscriptions loads all subscriptions of the topic.
func (s *MemStore) GetSubscriptions(topic *Topic) []*Subscription {
	s.lock.Lock()
	defer s.lock.Unlock()
	m := s.subs[topic.Name()]
	subs := make([]*Subscription, 0, len(m))
	for _, sub := range m {
		subs = append(subs, sub)
	}
	return subs
}

// UserGet loads a user by ID.
func (s *MemStore) UserGet(uid string) *User {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.users[uid]
}

// UserAdd persists a new user record.
func (s *MemStore) UserAdd(user *User) int64 {
	s.lock.Lock()
	defer s.lock.Unlock()
	if _, ok := s.users[user.UID]; ok {
		return 0
	}
	s.users[user.UID] = user
	return s.nextId()
}

// UserUpdate saves user changes.
func (s *MemStore) UserUpdate(user *User) bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.users[user.UID] = user
	return true
}

// sortMessages keeps synced messages ordered by seq ID, pending messages
// after them ordered by local ID. Called with the lock held.
func (s *MemStore) sortMessages(topic string) {
	msgs := s.messages[topic]
	sort.SliceStable(msgs, func(i, j int) bool {
		a, b := msgs[i], msgs[j]
		if a.IsPending() != b.IsPending() {
			return !a.IsPending()
		}
		if a.IsPending() {
			return a.DbId < b.DbId
		}
		return a.SeqId < b.SeqId
	})
}

// MsgReceived saves a message received from the server.
func (s *MemStore) MsgReceived(topic *Topic, sub *Subscription, msg *MsgServerData) int64 {
	s.lock.Lock()
	defer s.lock.Unlock()
	for _, m := range s.messages[topic.Name()] {
		if m.SeqId == msg.SeqId {
			// Duplicate delivery.
			return m.DbId
		}
	}
	stored := &Message{
		DbId:    s.nextId(),
		Status:  MsgStatusSynced,
		Topic:   msg.Topic,
		From:    msg.From,
		Head:    msg.Head,
		Ts:      msg.Ts,
		SeqId:   msg.SeqId,
		Content: msg.Content,
	}
	s.messages[topic.Name()] = append(s.messages[topic.Name()], stored)
	s.sortMessages(topic.Name())
	return stored.DbId
}

func (s *MemStore) msgNew(topic *Topic, head map[string]any, content any, status MsgStatus) int64 {
	s.lock.Lock()
	defer s.lock.Unlock()
	now := time.Now().UTC().Round(time.Millisecond)
	stored := &Message{
		DbId:    s.nextId(),
		Status:  status,
		Topic:   topic.Name(),
		From:    s.uid,
		Head:    head,
		Ts:      &now,
		Content: content,
	}
	s.messages[topic.Name()] = append(s.messages[topic.Name()], stored)
	return stored.DbId
}

// MsgSend saves a new outgoing message as queued.
func (s *MemStore) MsgSend(topic *Topic, head map[string]any, content any) int64 {
	return s.msgNew(topic, head, content, MsgStatusQueued)
}

// MsgDraft saves a new message as a draft.
func (s *MemStore) MsgDraft(topic *Topic, head map[string]any, content any) int64 {
	return s.msgNew(topic, head, content, MsgStatusDraft)
}

// msgById finds a pending message by local ID. Called with the lock held.
func (s *MemStore) msgById(topic *Topic, dbId int64) *Message {
	for _, m := range s.messages[topic.Name()] {
		if m.DbId == dbId {
			return m
		}
	}
	return nil
}

// MsgDraftUpdate replaces the content of a draft.
func (s *MemStore) MsgDraftUpdate(topic *Topic, dbId int64, content any) bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	msg := s.msgById(topic, dbId)
	if msg == nil || msg.Status != MsgStatusDraft {
		return false
	}
	msg.Content = content
	return true
}

// MsgReady promotes a draft to queued.
func (s *MemStore) MsgReady(topic *Topic, dbId int64, content any) bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	msg := s.msgById(topic, dbId)
	if msg == nil {
		return false
	}
	msg.Content = content
	msg.Status = MsgStatusQueued
	return true
}

// MsgSyncing toggles a message between queued and sending.
func (s *MemStore) MsgSyncing(topic *Topic, dbId int64, sync bool) bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	msg := s.msgById(topic, dbId)
	if msg == nil {
		return false
	}
	if sync {
		msg.Status = MsgStatusSending
	} else {
		msg.Status = MsgStatusQueued
	}
	return true
}

// MsgFailed marks a message as failed to send.
func (s *MemStore) MsgFailed(topic *Topic, dbId int64) bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	msg := s.msgById(topic, dbId)
	if msg == nil {
		return false
	}
	msg.Status = MsgStatusFailed
	return true
}

// MsgPruneFailed deletes all failed messages of the topic.
func (s *MemStore) MsgPruneFailed(topic *Topic) bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	msgs := s.messages[topic.Name()]
	var kept []*Message
	for _, m := range msgs {
		if m.Status != MsgStatusFailed {
			kept = append(kept, m)
		}
	}
	s.messages[topic.Name()] = kept
	return true
}

// MsgDiscard deletes a single unsent message.
func (s *MemStore) MsgDiscard(topic *Topic, dbId int64) bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	msgs := s.messages[topic.Name()]
	for i, m := range msgs {
		if m.DbId == dbId {
			if !m.IsPending() {
				return false
			}
			s.messages[topic.Name()] = append(msgs[:i], msgs[i+1:]...)
			return true
		}
	}
	return false
}

// MsgDelivered marks a message as delivered and records the server-issued
// timestamp and seq ID.
func (s *MemStore) MsgDelivered(topic *Topic, dbId int64, ts time.Time, seq int) bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	msg := s.msgById(topic, dbId)
	if msg == nil {
		return false
	}
	msg.Ts = &ts
	msg.SeqId = seq
	msg.Status = MsgStatusSynced
	s.sortMessages(topic.Name())
	return true
}

// MsgMarkToDelete marks ranges of messages as locally deleted, pending server
// confirmation.
func (s *MemStore) MsgMarkToDelete(topic *Topic, delRanges []MsgRange, hard bool) bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	status := MsgStatusDeletedSoft
	if hard {
		status = MsgStatusDeletedHard
	}
	for _, r := range delRanges {
		for _, m := range s.messages[topic.Name()] {
			if m.SeqId > 0 && r.Contains(m.SeqId) {
				m.Status = status
			}
		}
		s.delLog[topic.Name()] = append(s.delLog[topic.Name()], delMarker{rng: r, hard: hard})
	}
	return true
}

// MsgDelete finalizes deletion of the ranges confirmed by the server.
func (s *MemStore) MsgDelete(topic *Topic, delId int, delRanges []MsgRange) bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	name := topic.Name()
	var kept []*Message
	for _, m := range s.messages[name] {
		deleted := false
		for _, r := range delRanges {
			if m.SeqId > 0 && r.Contains(m.SeqId) {
				deleted = true
				break
			}
		}
		if !deleted {
			kept = append(kept, m)
		}
	}
	s.messages[name] = kept

	// Drop confirmed markers.
	var pending []delMarker
	for _, marker := range s.delLog[name] {
		confirmed := false
		for _, r := range delRanges {
			if r.Low <= marker.rng.Low && marker.rng.Upper() <= r.Upper() {
				confirmed = true
				break
			}
		}
		if !confirmed {
			pending = append(pending, marker)
		}
	}
	s.delLog[name] = pending
	return true
}

// MsgRecvByRemote records the recv counter of one subscriber.
func (s *MemStore) MsgRecvByRemote(sub *Subscription, recv int) bool {
	return true
}

// MsgReadByRemote records the read counter of one subscriber.
func (s *MemStore) MsgReadByRemote(sub *Subscription, read int) bool {
	return true
}

// GetMessageById loads a message by its local ID.
func (s *MemStore) GetMessageById(dbId int64) *Message {
	s.lock.Lock()
	defer s.lock.Unlock()
	for _, msgs := range s.messages {
		for _, m := range msgs {
			if m.DbId == dbId {
				return m
			}
		}
	}
	return nil
}

// GetQueuedMessages returns unsent messages of the topic, oldest first.
func (s *MemStore) GetQueuedMessages(topic *Topic) []*Message {
	s.lock.Lock()
	defer s.lock.Unlock()
	var queued []*Message
	for _, m := range s.messages[topic.Name()] {
		if m.Status == MsgStatusQueued {
			queued = append(queued, m)
		}
	}
	sort.Slice(queued, func(i, j int) bool { return queued[i].DbId < queued[j].DbId })
	return queued
}

// GetQueuedMessageDeletes returns deletion ranges pending server
// confirmation.
func (s *MemStore) GetQueuedMessageDeletes(topic *Topic, hard bool) []MsgRange {
	s.lock.Lock()
	defer s.lock.Unlock()
	var ranges []MsgRange
	for _, marker := range s.delLog[topic.Name()] {
		if marker.hard == hard {
			ranges = append(ranges, marker.rng)
		}
	}
	if len(ranges) == 0 {
		return nil
	}
	SortRanges(ranges)
	return CollapseRanges(ranges)
}

// GetLatestMessagePreviews returns the newest message of every topic.
func (s *MemStore) GetLatestMessagePreviews() []*Message {
	s.lock.Lock()
	defer s.lock.Unlock()
	var res []*Message
	for name := range s.messages {
		s.sortMessages(name)
		msgs := s.messages[name]
		if len(msgs) > 0 {
			res = append(res, msgs[len(msgs)-1])
		}
	}
	return res
}

// GetMessagesPage returns up to limit synced messages with seq IDs below
// 'before', newest first.
func (s *MemStore) GetMessagesPage(topic *Topic, before, limit int) []*Message {
	s.lock.Lock()
	defer s.lock.Unlock()
	var page []*Message
	msgs := s.messages[topic.Name()]
	for i := len(msgs) - 1; i >= 0; i-- {
		m := msgs[i]
		if m.SeqId <= 0 || m.IsDeleted() {
			continue
		}
		if before > 0 && m.SeqId >= before {
			continue
		}
		page = append(page, m)
		if limit > 0 && len(page) == limit {
			break
		}
	}
	return page
}
