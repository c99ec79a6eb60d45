package tinode

/******************************************************************************
 *
 *  Description :
 *
 *    Persistence interface: the client core calls it to keep topics,
 *    subscriptions, users and messages across restarts. The client ships
 *    with an in-memory implementation (MemStore); database-backed stores
 *    plug in through the same interface.
 *
 *****************************************************************************/

import "time"

// MsgStatus is the local delivery state of a message.
type MsgStatus int

const (
	// MsgStatusUndefined - status not assigned.
	MsgStatusUndefined MsgStatus = iota
	// MsgStatusDraft - local draft, not ready to be sent.
	MsgStatusDraft
	// MsgStatusQueued - ready to be sent, waiting for the network.
	MsgStatusQueued
	// MsgStatusSending - in the process of being sent.
	MsgStatusSending
	// MsgStatusFailed - send failed after retries.
	MsgStatusFailed
	// MsgStatusSynced - delivered to the server, seq ID assigned.
	MsgStatusSynced
	// MsgStatusDeletedHard - hard-deleted locally, deletion not yet synced.
	MsgStatusDeletedHard
	// MsgStatusDeletedSoft - soft-deleted locally, deletion not yet synced.
	MsgStatusDeletedSoft
	// MsgStatusDeletedSynced - deletion acknowledged by the server.
	MsgStatusDeletedSynced
)

// Message is a single stored message, either received from the server or
// created locally and pending delivery.
type Message struct {
	// Local database ID, unrelated to SeqId.
	DbId int64
	// Delivery status.
	Status MsgStatus

	Topic string
	// ID of the originating user.
	From string
	Head map[string]any
	Ts   *time.Time
	// Server-issued ID, zero until synced.
	SeqId   int
	Content any
}

// IsPending checks if the message has not reached the server yet.
func (m *Message) IsPending() bool {
	return m.SeqId <= 0
}

// IsDeleted checks if the message is locally or remotely deleted.
func (m *Message) IsDeleted() bool {
	return m.Status == MsgStatusDeletedHard || m.Status == MsgStatusDeletedSoft ||
		m.Status == MsgStatusDeletedSynced
}

// Storage is the persistent cache used by the client. All methods are called
// from the client's dispatch and user goroutines and must be safe for
// concurrent use. Implementations report failures by returning zero values;
// the client treats persistence as best-effort.
type Storage interface {
	// SetMyUID records the ID and server address of the authenticated user.
	SetMyUID(uid, hostURI string)
	// MyUID returns the ID of the last authenticated user.
	MyUID() string
	// SetDeviceToken saves the push notification token.
	SetDeviceToken(token string)
	// DeviceToken returns the saved push notification token.
	DeviceToken() string
	// Logout clears the authenticated user record.
	Logout()
	// DeleteAccount wipes all data of the given user.
	DeleteAccount(uid string)

	// TopicGetAll loads all persisted topics.
	TopicGetAll() []*Topic
	// TopicGet loads one topic by name.
	TopicGet(name string) *Topic
	// TopicAdd persists a new topic, returns its local ID.
	TopicAdd(topic *Topic) int64
	// TopicUpdate saves topic changes.
	TopicUpdate(topic *Topic) bool
	// TopicDelete removes the topic; hard also removes its messages and
	// subscriptions.
	TopicDelete(topic *Topic, hard bool) bool

	// GetCachedMessagesRange returns the bounding range of cached messages.
	GetCachedMessagesRange(topic *Topic) MsgRange
	// GetNextMissingRange returns the next gap in the message cache below
	// the newest cached message, nil if there is none.
	GetNextMissingRange(topic *Topic) *MsgRange
	// SetRead updates the topic's read counter.
	SetRead(topic *Topic, read int) bool
	// SetRecv updates the topic's received counter.
	SetRecv(topic *Topic, recv int) bool

	// SubAdd persists a subscription of the given topic.
	SubAdd(topic *Topic, sub *Subscription) int64
	// SubUpdate saves subscription changes.
	SubUpdate(topic *Topic, sub *Subscription) bool
	// SubNew persists a local invite not yet confirmed by the server.
	SubNew(topic *Topic, sub *Subscription) int64
	// SubDelete removes a subscription.
	SubDelete(topic *Topic, sub *Subscription) bool
	// GetSubscriptions loads all subscriptions of the topic.
	GetSubscriptions(topic *Topic) []*Subscription

	// UserGet loads a user by ID.
	UserGet(uid string) *User
	// UserAdd persists a new user record.
	UserAdd(user *User) int64
	// UserUpdate saves user changes.
	UserUpdate(user *User) bool

	// MsgReceived saves a message received from the server.
	MsgReceived(topic *Topic, sub *Subscription, msg *MsgServerData) int64
	// MsgSend saves a new outgoing message as queued, returns the local ID.
	MsgSend(topic *Topic, head map[string]any, content any) int64
	// MsgDraft saves a new message as a draft.
	MsgDraft(topic *Topic, head map[string]any, content any) int64
	// MsgDraftUpdate replaces the content of a draft.
	MsgDraftUpdate(topic *Topic, dbId int64, content any) bool
	// MsgReady promotes a draft to queued.
	MsgReady(topic *Topic, dbId int64, content any) bool
	// MsgSyncing toggles a message between queued and sending.
	MsgSyncing(topic *Topic, dbId int64, sync bool) bool
	// MsgFailed marks a message as failed to send.
	MsgFailed(topic *Topic, dbId int64) bool
	// MsgPruneFailed deletes all failed messages of the topic.
	MsgPruneFailed(topic *Topic) bool
	// MsgDiscard deletes a single unsent message.
	MsgDiscard(topic *Topic, dbId int64) bool
	// MsgDelivered marks a message as delivered and records the
	// server-issued timestamp and seq ID.
	MsgDelivered(topic *Topic, dbId int64, ts time.Time, seq int) bool
	// MsgMarkToDelete marks a range of messages as locally deleted, pending
	// server confirmation.
	MsgMarkToDelete(topic *Topic, delRanges []MsgRange, hard bool) bool
	// MsgDelete finalizes deletion of the ranges confirmed by the server.
	MsgDelete(topic *Topic, delId int, delRanges []MsgRange) bool
	// MsgRecvByRemote records the recv counter of one subscriber.
	MsgRecvByRemote(sub *Subscription, recv int) bool
	// MsgReadByRemote records the read counter of one subscriber.
	MsgReadByRemote(sub *Subscription, read int) bool
	// GetMessageById loads a message by its local ID.
	GetMessageById(dbId int64) *Message
	// GetQueuedMessages returns unsent messages of the topic, oldest first.
	GetQueuedMessages(topic *Topic) []*Message
	// GetQueuedMessageDeletes returns deletion ranges pending server
	// confirmation, collapsed and sorted.
	GetQueuedMessageDeletes(topic *Topic, hard bool) []MsgRange
	// GetLatestMessagePreviews returns the newest message of every topic.
	GetLatestMessagePreviews() []*Message
	// GetMessagesPage returns up to limit synced messages with seq IDs lower
	// than before (0 for no limit), newest first.
	GetMessagesPage(topic *Topic, before, limit int) []*Message
}
