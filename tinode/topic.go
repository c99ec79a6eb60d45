package tinode

/******************************************************************************
 *
 *  Description :
 *
 *    Topic: local state of one communication channel and its reconciliation
 *    against the server. Subscribe/leave lifecycle, routing of server
 *    pushes (meta/data/pres/info) into merges and storage writes, publish
 *    and delete pipelines with optimistic local records.
 *
 *    Topic state is not internally locked: all mutation is serialized
 *    through the client's dispatch goroutine.
 *
 *****************************************************************************/

import (
	"errors"
	"strings"
	"time"

	"github.com/tinode/gosdk/drafty"
	"github.com/tinode/gosdk/logs"
)

// TopicType is a bitmask of topic categories.
type TopicType int

const (
	TopicTypeUnknown TopicType = 0x00
	TopicTypeMe      TopicType = 0x01
	TopicTypeFnd     TopicType = 0x02
	TopicTypeGrp     TopicType = 0x04
	TopicTypeP2P     TopicType = 0x08
	// TopicTypeUser - grp or p2p.
	TopicTypeUser TopicType = 0x0c
	// TopicTypeSystem - me or fnd.
	TopicTypeSystem TopicType = 0x03
	TopicTypeAny    TopicType = 0x0f
)

// Match checks if the two type masks overlap.
func (tt TopicType) Match(t2 TopicType) bool {
	return tt&t2 != 0
}

// TopicTypeFor classifies a topic by name.
func TopicTypeFor(name string) TopicType {
	switch {
	case name == TopicMe:
		return TopicTypeMe
	case name == TopicFnd:
		return TopicTypeFnd
	case strings.HasPrefix(name, "usr"):
		return TopicTypeP2P
	case strings.HasPrefix(name, "grp") || strings.HasPrefix(name, "chn") ||
		strings.HasPrefix(name, TopicNew):
		return TopicTypeGrp
	}
	return TopicTypeUnknown
}

// isNewByName checks if the name is a temporary placeholder for a topic the
// server has not created yet.
func isNewByName(name string) bool {
	return strings.HasPrefix(name, TopicNew)
}

// TopicListener receives per-topic events. Callbacks fire on the client's
// dispatch goroutine; they must not block. BaseTopicListener is a no-op
// implementation to embed.
type TopicListener interface {
	OnSubscribe(code int, text string)
	OnLeave(unsub bool, code int, text string)
	// OnData is called when a data message arrives; nil data signals that
	// stored messages changed (deletion).
	OnData(data *MsgServerData)
	OnAllMessagesReceived(count int)
	OnInfo(info *MsgServerInfo)
	OnMeta(meta *MsgServerMeta)
	OnMetaSub(sub *Subscription)
	OnMetaDesc(desc *Description)
	OnMetaTags(tags []string)
	OnSubsUpdated()
	OnPres(pres *MsgServerPres)
	OnOnline(online bool)
}

// BaseTopicListener is a TopicListener with all callbacks stubbed out.
type BaseTopicListener struct{}

func (BaseTopicListener) OnSubscribe(code int, text string)      {}
func (BaseTopicListener) OnLeave(unsub bool, code int, text string) {}
func (BaseTopicListener) OnData(data *MsgServerData)             {}
func (BaseTopicListener) OnAllMessagesReceived(count int)        {}
func (BaseTopicListener) OnInfo(info *MsgServerInfo)             {}
func (BaseTopicListener) OnMeta(meta *MsgServerMeta)             {}
func (BaseTopicListener) OnMetaSub(sub *Subscription)            {}
func (BaseTopicListener) OnMetaDesc(desc *Description)           {}
func (BaseTopicListener) OnMetaTags(tags []string)               {}
func (BaseTopicListener) OnSubsUpdated()                         {}
func (BaseTopicListener) OnPres(pres *MsgServerPres)             {}
func (BaseTopicListener) OnOnline(online bool)                   {}

// Minimum interval between sent typing notifications.
const keyPressInterval = 3 * time.Second

// Topic is the local state of one named channel.
type Topic struct {
	clnt  *Client
	store Storage

	name    string
	variant TopicType
	desc    Description

	attached  bool
	persisted bool

	// Cached subscriptions keyed by Subscription.UniqueID, nil until loaded.
	subs            map[string]*Subscription
	subsLastUpdated *time.Time

	tags     []string
	online   bool
	lastSeen *LastSeen
	maxDel   int
	latest   *Message

	lastKeyPress time.Time

	listener TopicListener
}

func (c *Client) newTopicBare(name string, l TopicListener) *Topic {
	t := &Topic{
		clnt:     c,
		store:    c.store,
		name:     name,
		variant:  TopicTypeFor(name),
		listener: l,
	}
	if t.listener == nil {
		t.listener = BaseTopicListener{}
	}
	return t
}

// NewTopic creates a topic and registers it with the client. A name with the
// "new" prefix denotes a topic to be created on first subscribe.
func (c *Client) NewTopic(name string, l TopicListener) *Topic {
	t := c.newTopicBare(name, l)
	c.startTrackingTopic(t)
	return t
}

// newTopicFromSub creates a topic from a 'me' subscription record.
func (c *Client) newTopicFromSub(sub *Subscription) *Topic {
	t := c.newTopicBare(sub.Topic, nil)
	t.desc.MergeSub(sub)
	if sub.Online != nil {
		t.online = *sub.Online
	}
	c.startTrackingTopic(t)
	return t
}

// Accessors. Counter setters are monotonic: a smaller value never replaces a
// larger one.

// Name returns the topic name, unique within the session.
func (t *Topic) Name() string { return t.name }

// SetListener replaces the topic's event listener; nil installs the no-op
// listener.
func (t *Topic) SetListener(l TopicListener) {
	if l == nil {
		l = BaseTopicListener{}
	}
	t.listener = l
}

// IsNew checks if the topic is local-only, not yet confirmed by the server.
func (t *Topic) IsNew() bool { return isNewByName(t.name) }

// IsAttached checks if there is a live server subscription this session.
func (t *Topic) IsAttached() bool { return t.attached }

// IsPersisted checks if the topic has been handed to storage.
func (t *Topic) IsPersisted() bool { return t.persisted }

// TopicType returns the topic category derived from the name.
func (t *Topic) TopicType() TopicType { return t.variant }

func (t *Topic) isMe() bool  { return t.variant == TopicTypeMe }
func (t *Topic) isFnd() bool { return t.variant == TopicTypeFnd }
func (t *Topic) isP2P() bool { return t.variant == TopicTypeP2P }

// GetDescription exposes the topic metadata aggregate.
func (t *Topic) GetDescription() *Description { return &t.desc }

// Pub returns the topic's public payload.
func (t *Topic) Pub() any { return t.desc.Pub }

// Priv returns the per-user private payload.
func (t *Topic) Priv() any { return t.desc.Priv }

// SetPub assigns the public payload of a still-local topic.
func (t *Topic) SetPub(pub any) { t.desc.Pub = pub }

// SetPriv assigns the private payload of a still-local topic.
func (t *Topic) SetPriv(priv any) { t.desc.Priv = priv }

// Updated returns the last modification timestamp.
func (t *Topic) Updated() *time.Time { return t.desc.Updated }

// Touched returns the timestamp of the latest message or update, the contact
// list sort key.
func (t *Topic) Touched() *time.Time { return t.desc.Touched }

// SetTouched advances the touched timestamp.
func (t *Topic) SetTouched(ts time.Time) {
	if t.desc.Touched == nil || t.desc.Touched.Before(ts) {
		t.desc.Touched = &ts
	}
}

// SeqId returns the greatest known message ID.
func (t *Topic) SeqId() int { return t.desc.Seq }

// Read returns the ID of the last message read by this user.
func (t *Topic) Read() int { return t.desc.Read }

// Recv returns the ID of the last message received by this user.
func (t *Topic) Recv() int { return t.desc.Recv }

// Clear returns the deletion watermark.
func (t *Topic) Clear() int { return t.desc.Clear }

// Unread returns the count of unread messages.
func (t *Topic) Unread() int {
	n := t.desc.Seq - t.desc.Read
	if n < 0 {
		return 0
	}
	return n
}

func (t *Topic) setSeq(seq int) {
	if t.desc.Seq < seq {
		t.desc.Seq = seq
	}
}

func (t *Topic) setRecv(recv int) {
	if t.desc.Recv < recv {
		t.desc.Recv = recv
	}
}

func (t *Topic) setRead(read int) {
	if t.desc.Read < read {
		t.desc.Read = read
	}
}

// MaxDel returns the greatest deletion transaction ID seen. It never
// decreases.
func (t *Topic) MaxDel() int { return t.maxDel }

func (t *Topic) setMaxDel(maxDel int) {
	if t.maxDel < maxDel {
		t.maxDel = maxDel
	}
}

// Online reports the topic's (or p2p peer's) presence.
func (t *Topic) Online() bool { return t.online }

func (t *Topic) setOnline(online bool) {
	if online != t.online {
		t.online = online
		t.listener.OnOnline(online)
	}
}

// LastSeen returns when the peer was last online.
func (t *Topic) LastSeen() *LastSeen { return t.lastSeen }

// Tags returns the topic's discovery tags.
func (t *Topic) Tags() []string { return t.tags }

// AccessMode returns the negotiated access mode.
func (t *Topic) AccessMode() *Acs { return t.desc.Acs }

// LatestMessage returns the newest non-pending message seen this session.
func (t *Topic) LatestMessage() *Message { return t.latest }

func (t *Topic) setLatestMessage(msg *Message) {
	if msg == nil {
		return
	}
	if t.latest == nil || (t.latest.IsPending() && !msg.IsPending()) ||
		t.latest.SeqId < msg.SeqId {
		t.latest = msg
	}
}

// subsUpdated returns the timestamp of the last subscription update. The
// 'me' topic tracks its contacts through the topic registry instead.
func (t *Topic) subsUpdated() *time.Time {
	if t.isMe() {
		return t.clnt.TopicsUpdated()
	}
	return t.subsLastUpdated
}

// persist adds the topic to storage or hard-deletes it, used for optimistic
// creation and its rollback.
func (t *Topic) persist(on bool) {
	if on {
		if !t.persisted {
			t.persisted = t.store.TopicAdd(t) > 0
		}
	} else {
		t.store.TopicDelete(t, true)
		t.persisted = false
	}
}

// MetaGetBuilder accumulates a {get} query, filling defaults from the
// topic's cached state.
type MetaGetBuilder struct {
	topic *Topic
	meta  MsgGetQuery
	what  []string
}

// MetaGetBuilder creates a query builder for this topic.
func (t *Topic) MetaGetBuilder() *MetaGetBuilder {
	if t.subs == nil {
		t.loadSubs()
	}
	return &MetaGetBuilder{topic: t}
}

func (b *MetaGetBuilder) addWhat(what string) {
	for _, w := range b.what {
		if w == what {
			return
		}
	}
	b.what = append(b.what, what)
}

// WithData requests messages in the given ID window.
func (b *MetaGetBuilder) WithData(since, before, limit int) *MetaGetBuilder {
	opts := &MsgGetOpts{SinceId: since, BeforeId: before, Limit: limit}
	if *opts == (MsgGetOpts{}) {
		opts = nil
	}
	b.meta.Data = opts
	b.addWhat(constMsgMetaData)
	return b
}

// WithEarlierData requests messages older than the oldest cached one.
func (b *MetaGetBuilder) WithEarlierData(limit int) *MetaGetBuilder {
	r := b.topic.store.GetCachedMessagesRange(b.topic)
	if r.Low > 0 {
		return b.WithData(0, r.Low, limit)
	}
	return b.WithData(0, 0, limit)
}

// WithLaterData requests messages newer than the newest cached one.
func (b *MetaGetBuilder) WithLaterData(limit int) *MetaGetBuilder {
	r := b.topic.store.GetCachedMessagesRange(b.topic)
	if r.Hi > 1 {
		return b.WithData(r.Hi, 0, limit)
	}
	return b.WithData(0, 0, limit)
}

// WithDel requests deletion transactions starting from the given ID.
func (b *MetaGetBuilder) WithDel(since, limit int) *MetaGetBuilder {
	opts := &MsgGetOpts{SinceId: since, Limit: limit}
	if *opts == (MsgGetOpts{}) {
		opts = nil
	}
	b.meta.Del = opts
	b.addWhat(constMsgMetaDel)
	return b
}

// WithLaterDel requests deletions the topic has not seen yet.
func (b *MetaGetBuilder) WithLaterDel(limit int) *MetaGetBuilder {
	return b.WithDel(b.topic.maxDel+1, limit)
}

// WithDesc requests the description if changed since the last update.
func (b *MetaGetBuilder) WithDesc() *MetaGetBuilder {
	return b.WithDescIms(b.topic.Updated())
}

// WithDescIms requests the description if changed since ims.
func (b *MetaGetBuilder) WithDescIms(ims *time.Time) *MetaGetBuilder {
	if ims != nil {
		b.meta.Desc = &MsgGetOpts{IfModifiedSince: ims}
	} else {
		b.meta.Desc = nil
	}
	b.addWhat(constMsgMetaDesc)
	return b
}

// WithSub requests subscriptions changed since the last known update.
func (b *MetaGetBuilder) WithSub() *MetaGetBuilder {
	return b.WithSubUser("")
}

// WithSubUser requests the subscription of one user.
func (b *MetaGetBuilder) WithSubUser(user string) *MetaGetBuilder {
	opts := &MsgGetOpts{User: user, IfModifiedSince: b.topic.subsUpdated()}
	if *opts == (MsgGetOpts{}) {
		opts = nil
	}
	b.meta.Sub = opts
	b.addWhat(constMsgMetaSub)
	return b
}

// WithTags requests the topic tags.
func (b *MetaGetBuilder) WithTags() *MetaGetBuilder {
	b.addWhat(constMsgMetaTags)
	return b
}

// Build assembles the query.
func (b *MetaGetBuilder) Build() *MsgGetQuery {
	meta := b.meta
	meta.What = strings.Join(b.what, " ")
	return &meta
}

// Subscribe attaches to the topic with the default queries: a new topic
// sends its initial description, an existing one requests desc, messages,
// subscriptions and tags.
func (t *Topic) Subscribe() *PromisedReply {
	var set *MsgSetQuery
	var get *MsgGetQuery
	if t.IsNew() {
		set = &MsgSetQuery{
			Desc: &MsgSetDesc{Pub: t.Pub(), Priv: t.Priv()},
			Tags: t.tags,
		}
	} else {
		get = t.MetaGetBuilder().WithDesc().WithData(0, 0, 0).WithSub().WithTags().Build()
	}
	return t.SubscribeWith(set, get)
}

// SubscribeWith attaches to the topic with explicit {set} and {get}
// payloads. The topic is persisted optimistically before the round-trip; a
// 4xx rejection of a new topic unwinds the local creation.
func (t *Topic) SubscribeWith(set *MsgSetQuery, get *MsgGetQuery) *PromisedReply {
	if t.attached {
		if set == nil && get == nil {
			// Nothing to do.
			return NewResolvedPromise(&ServerMessage{})
		}
		return NewRejectedPromise(ErrInvalidState)
	}
	// Remember the name: a new topic is renamed by the response.
	name := t.name
	t.persist(true)
	if !t.clnt.IsConnected() {
		return NewRejectedPromise(ErrNotConnected)
	}

	return t.clnt.Subscribe(name, set, get).Then(
		func(msg *ServerMessage) (*PromisedReply, error) {
			if t.attached {
				return nil, nil
			}
			t.attached = true
			ctrl := msg.Ctrl
			if ctrl == nil {
				return nil, nil
			}
			if len(ctrl.Params) > 0 {
				if acs := ctrl.GetStringDictParam("acs"); acs != nil {
					t.desc.Acs = ParseAcsStrings(acs["want"], acs["given"])
					t.desc.Acs.Mode = ParseAcs(acs["mode"])
				}
				if t.IsNew() && ctrl.Topic != "" {
					t.desc.Updated = ctrl.Timestamp
					t.name = ctrl.Topic
					t.variant = TopicTypeFor(ctrl.Topic)
					t.clnt.changeTopicName(t, name)
				}
				t.store.TopicUpdate(t)
			}
			t.listener.OnSubscribe(ctrl.Code, ctrl.Text)
			return nil, nil
		},
		func(err error) (*PromisedReply, error) {
			var sre *ServerResponseError
			if t.IsNew() && errors.As(err, &sre) && sre.Code >= 400 && sre.Code < 500 {
				// The server rejected the creation, undo the optimistic
				// local insert.
				t.clnt.stopTrackingTopic(name)
				t.persist(false)
			}
			return nil, err
		})
}

// loadSubs fills the subscription cache from storage.
func (t *Topic) loadSubs() int {
	if t.isMe() {
		// 'me' subscriptions are stored as topics.
		t.subs = map[string]*Subscription{}
		return 0
	}
	loaded := t.store.GetSubscriptions(t)
	t.subs = make(map[string]*Subscription, len(loaded))
	for _, sub := range loaded {
		t.subs[sub.UniqueID()] = sub
		if sub.Updated != nil &&
			(t.subsLastUpdated == nil || t.subsLastUpdated.Before(*sub.Updated)) {
			t.subsLastUpdated = sub.Updated
		}
	}
	return len(t.subs)
}

// GetSubscription returns a cached subscription by key (user ID, or unique
// ID for search results).
func (t *Topic) GetSubscription(key string) *Subscription {
	if t.subs == nil {
		t.loadSubs()
	}
	return t.subs[key]
}

// GetSubscriptions returns all cached subscriptions.
func (t *Topic) GetSubscriptions() []*Subscription {
	if t.subs == nil {
		t.loadSubs()
	}
	subs := make([]*Subscription, 0, len(t.subs))
	for _, sub := range t.subs {
		subs = append(subs, sub)
	}
	return subs
}

func (t *Topic) addSubToCache(sub *Subscription) {
	if t.subs == nil {
		t.subs = map[string]*Subscription{}
	}
	t.subs[sub.UniqueID()] = sub
}

func (t *Topic) removeSubFromCache(sub *Subscription) {
	delete(t.subs, sub.UniqueID())
}

// updateFromMeSub merges an incoming subscription which describes this topic
// itself (not a member), i.e. arrived through the 'me' topic.
func (t *Topic) updateFromMeSub(sub *Subscription) {
	changed := false
	if t.lastSeen == nil {
		if sub.Seen != nil {
			t.lastSeen = sub.Seen
			changed = true
		}
	} else {
		changed = t.lastSeen.Merge(sub.Seen)
	}
	if t.desc.MergeSub(sub) || changed {
		t.store.TopicUpdate(t)
	}
	if sub.Online != nil {
		t.setOnline(*sub.Online)
	}
}

// processSub merges one member record from a {meta sub} packet.
func (t *Topic) processSub(newsub *Subscription) {
	var sub *Subscription
	if newsub.Deleted != nil {
		t.store.SubDelete(t, newsub)
		t.removeSubFromCache(newsub)
		sub = newsub
	} else {
		if newsub.User == "" {
			logs.Warning.Println("topic", t.name, "dropping subscription with no user id")
			return
		}
		sub = t.GetSubscription(newsub.UniqueID())
		if sub != nil {
			sub.Merge(newsub)
			t.store.SubUpdate(t, sub)
		} else {
			sub = newsub
			t.addSubToCache(sub)
			t.store.SubAdd(t, sub)
		}
		t.clnt.updateUser(sub)
	}
	t.listener.OnMetaSub(sub)
}

func (t *Topic) routeMetaDesc(meta *MsgServerMeta) {
	if t.desc.Merge(meta.Desc) {
		t.store.TopicUpdate(t)
	}
	if t.isP2P() {
		// The description of a p2p topic is the peer's profile.
		t.clnt.updateUserDesc(t.name, meta.Desc)
	}
	t.listener.OnMetaDesc(meta.Desc)
}

func (t *Topic) routeMetaSub(meta *MsgServerMeta) {
	switch {
	case t.isMe():
		t.routeMetaSubMe(meta)
	case t.isFnd():
		t.routeMetaSubFnd(meta)
	default:
		for i := range meta.Sub {
			t.processSub(&meta.Sub[i])
		}
		t.listener.OnSubsUpdated()
	}
}

// routeMetaSubMe handles the contact list: each subscription describes
// another topic, found or created in the registry.
func (t *Topic) routeMetaSubMe(meta *MsgServerMeta) {
	for i := range meta.Sub {
		sub := &meta.Sub[i]
		if topic := t.clnt.GetTopic(sub.Topic); topic != nil {
			if sub.Deleted != nil {
				topic.persist(false)
				t.clnt.stopTrackingTopic(sub.Topic)
			} else {
				topic.updateFromMeSub(sub)
			}
		} else if sub.Deleted == nil {
			topic := t.clnt.newTopicFromSub(sub)
			topic.persist(true)
		}
		t.listener.OnMetaSub(sub)
	}
	t.listener.OnSubsUpdated()
}

// routeMetaSubFnd handles search results: transient subscriptions keyed by
// unique ID, never persisted.
func (t *Topic) routeMetaSubFnd(meta *MsgServerMeta) {
	for i := range meta.Sub {
		upd := &meta.Sub[i]
		sub := t.GetSubscription(upd.UniqueID())
		if sub != nil {
			sub.Merge(upd)
		} else {
			sub = upd
			t.addSubToCache(sub)
		}
		t.listener.OnMetaSub(sub)
	}
	t.listener.OnSubsUpdated()
}

func (t *Topic) routeMetaDel(clear int, delseq []MsgRange) {
	t.store.MsgDelete(t, clear, delseq)
	t.setMaxDel(clear)
	t.listener.OnData(nil)
}

func (t *Topic) routeMetaTags(tags []string) {
	t.tags = tags
	t.store.TopicUpdate(t)
	t.listener.OnMetaTags(tags)
}

// routeMeta dispatches the optional sections of a {meta} packet in a fixed
// order: desc, sub, del, tags.
func (t *Topic) routeMeta(meta *MsgServerMeta) {
	if meta.Desc != nil {
		t.routeMetaDesc(meta)
	}
	if meta.Sub != nil {
		if meta.Ts != nil &&
			(t.subsLastUpdated == nil || t.subsLastUpdated.Before(*meta.Ts)) {
			t.subsLastUpdated = meta.Ts
		}
		t.routeMetaSub(meta)
	}
	if meta.Del != nil {
		t.routeMetaDel(meta.Del.Clear, meta.Del.DelSeq)
	}
	if meta.Tags != nil {
		t.routeMetaTags(meta.Tags)
	}
	t.listener.OnMeta(meta)
}

// routeData stores an incoming message, advances seq and touched, and
// acknowledges receipt unless the message is this user's own echo.
func (t *Topic) routeData(data *MsgServerData) {
	t.setSeq(data.SeqId)
	if data.Ts != nil {
		t.SetTouched(*data.Ts)
	}
	id := t.store.MsgReceived(t, t.GetSubscription(data.From), data)
	if id > 0 {
		if !t.clnt.IsMe(data.From) {
			t.NoteRecv()
		}
		t.setLatestMessage(t.store.GetMessageById(id))
	}
	t.listener.OnData(data)
}

// routeInfo applies a forwarded notification: another user (or another
// session of this user) received or read messages, or is typing.
func (t *Topic) routeInfo(info *MsgServerInfo) {
	if info.What != constNoteKp {
		if sub := t.GetSubscription(info.From); sub != nil {
			switch info.What {
			case constNoteRecv:
				sub.Recv = info.SeqId
				t.store.MsgRecvByRemote(sub, info.SeqId)
			case constNoteRead:
				sub.Read = info.SeqId
				if sub.Recv < sub.Read {
					sub.Recv = sub.Read
					t.store.MsgRecvByRemote(sub, info.SeqId)
				}
				t.store.MsgReadByRemote(sub, info.SeqId)
			}
		}
	}
	t.listener.OnInfo(info)
}

// routePres applies a presence update addressed to this topic.
func (t *Topic) routePres(pres *MsgServerPres) {
	if t.isMe() {
		t.routePresMe(pres)
		return
	}
	switch pres.What {
	case "on", "off":
		if sub := t.GetSubscription(pres.Src); sub != nil {
			sub.SetOnline(pres.What == "on")
		}
	case "del":
		t.routeMetaDel(pres.DelId, pres.DelSeq)
	case "term":
		t.topicLeft(false, 500, "term")
	case "upd":
		// Topic description changed, re-request it.
		t.GetMeta(t.MetaGetBuilder().WithDesc().Build())
	case "acs":
		t.routePresAcs(pres)
	default:
		logs.Info.Println("topic", t.name, "ignoring presence:", pres.What)
	}
	t.listener.OnPres(pres)
}

func (t *Topic) routePresAcs(pres *MsgServerPres) {
	src := pres.Src
	if src == "" {
		src = t.clnt.MyUID()
	}
	sub := t.GetSubscription(src)
	if sub == nil {
		// Unknown user with a newly assigned mode: fetch the subscription.
		acs := NewAcs()
		if _, err := acs.Update(pres.Dacs); err == nil && acs.Mode.IsDefined() {
			t.GetMeta(t.MetaGetBuilder().WithSubUser(src).Build())
		} else {
			logs.Warning.Println("topic", t.name, "ill-defined access change for unknown user", src)
		}
		return
	}

	if err := sub.UpdateAccessMode(pres.Dacs); err != nil {
		logs.Warning.Println("topic", t.name, "invalid access change:", err)
		return
	}
	if sub.User == t.clnt.MyUID() {
		if t.UpdateAccessMode(pres.Dacs) {
			t.store.TopicUpdate(t)
		}
	}
	if !sub.Acs.Mode.IsDefined() {
		// Lost access to the topic or the user.
		if t.isP2P() {
			t.Leave(false)
		}
		now := time.Now().UTC().Round(time.Millisecond)
		sub.Deleted = &now
		t.processSub(sub)
	}
}

// routePresMe applies the 'me' presence stream: updates addressed to other
// topics of the contact list.
func (t *Topic) routePresMe(pres *MsgServerPres) {
	topic := t.clnt.GetTopic(pres.Src)
	if topic == nil {
		if pres.What == "acs" {
			acs := NewAcs()
			if _, err := acs.Update(pres.Dacs); err == nil && acs.Mode.IsDefined() {
				// Granted access to a new topic.
				t.GetMeta(t.MetaGetBuilder().WithSubUser(pres.Src).Build())
			} else {
				logs.Warning.Println("me: unexpected access mode in presence for", pres.Src)
			}
		} else {
			logs.Info.Println("me: presence for unknown topic", pres.Src)
		}
		t.listener.OnPres(pres)
		return
	}

	switch pres.What {
	case "on":
		topic.setOnline(true)
	case "off":
		topic.setOnline(false)
		now := time.Now().UTC().Round(time.Millisecond)
		topic.lastSeen = &LastSeen{When: &now}
	case "msg":
		topic.setSeq(pres.SeqId)
		topic.SetTouched(time.Now().UTC().Round(time.Millisecond))
	case "upd":
		// Topic description changed, re-request it through 'me'.
		t.GetMeta(t.MetaGetBuilder().WithSubUser(pres.Src).Build())
	case "acs":
		if topic.UpdateAccessMode(pres.Dacs) {
			t.store.TopicUpdate(topic)
		}
	case "ua":
		now := time.Now().UTC().Round(time.Millisecond)
		topic.lastSeen = &LastSeen{When: &now, UA: pres.UserAgent}
	case "recv":
		if topic.Recv() < pres.SeqId {
			topic.setRecv(pres.SeqId)
			t.store.SetRecv(topic, pres.SeqId)
		}
	case "read":
		if topic.Read() < pres.SeqId {
			topic.setRead(pres.SeqId)
			t.store.SetRead(topic, pres.SeqId)
			if topic.Recv() < topic.Read() {
				// Read implies received.
				topic.setRecv(topic.Read())
				t.store.SetRecv(topic, topic.Read())
			}
		}
	case "del":
		topic.routeMetaDel(pres.DelId, pres.DelSeq)
	case "gone":
		// The topic is deleted or banned.
		topic.persist(false)
		t.clnt.stopTrackingTopic(pres.Src)
		t.listener.OnSubsUpdated()
	default:
		logs.Info.Println("me: unrecognized presence update", pres.What)
	}
	t.listener.OnPres(pres)
}

// GetMeta queries topic metadata from the server.
func (t *Topic) GetMeta(query *MsgGetQuery) *PromisedReply {
	return t.clnt.GetMeta(t.name, query)
}

// SetMeta updates topic metadata on the server, then applies the confirmed
// changes locally.
func (t *Topic) SetMeta(meta *MsgSetQuery) *PromisedReply {
	return t.clnt.SetMeta(t.name, meta).ThenApply(
		func(msg *ServerMessage) (*PromisedReply, error) {
			if msg.Ctrl != nil {
				t.updateConfirmed(msg.Ctrl, meta)
			}
			return nil, nil
		})
}

// updateConfirmed applies a confirmed local metadata change.
func (t *Topic) updateConfirmed(ctrl *MsgServerCtrl, meta *MsgSetQuery) {
	if meta.Desc != nil {
		if t.desc.MergeSetDesc(meta.Desc) {
			t.store.TopicUpdate(t)
		}
		t.listener.OnMetaDesc(&t.desc)
	}
	if meta.Sub != nil {
		t.updateSub(ctrl.GetStringDictParam("acs"), meta.Sub)
		if meta.Sub.User == "" {
			t.listener.OnMetaDesc(&t.desc)
		}
		t.listener.OnSubsUpdated()
	}
	if meta.Tags != nil {
		t.tags = meta.Tags
		t.store.TopicUpdate(t)
		t.listener.OnMetaTags(meta.Tags)
	}
}

// updateSub applies a confirmed subscription change: either the server
// reported the final access mode, or the requested mode is applied to
// want/given depending on whose subscription changed.
func (t *Topic) updateSub(acsMap map[string]string, sub *MsgSetSub) {
	user := sub.User
	var acs *Acs
	if acsMap != nil {
		acs = ParseAcsStrings(acsMap["want"], acsMap["given"])
		acs.Mode = ParseAcs(acsMap["mode"])
	} else {
		acs = NewAcs()
		if user == "" {
			acs.Want = ParseAcs(sub.Mode)
		} else {
			acs.Given = ParseAcs(sub.Mode)
		}
	}

	if user == "" || t.clnt.IsMe(user) {
		user = t.clnt.MyUID()
		if t.desc.Acs == nil {
			t.desc.Acs = acs.Copy()
			t.store.TopicUpdate(t)
		} else {
			t.desc.Acs.Merge(acs)
		}
	}
	if cached := t.GetSubscription(user); cached != nil {
		if cached.Acs == nil {
			cached.Acs = acs.Copy()
		} else {
			cached.Acs.Merge(acs)
		}
		t.store.SubUpdate(t, cached)
	} else {
		added := &Subscription{User: user, Acs: acs}
		t.addSubToCache(added)
		t.store.SubNew(t, added)
	}
}

// UpdateAccessMode applies a server-reported access delta to the topic's
// own mode. Reports whether the mode changed.
func (t *Topic) UpdateAccessMode(ac *AccessChange) bool {
	if t.desc.Acs == nil {
		t.desc.Acs = NewAcs()
	}
	changed, err := t.desc.Acs.Update(ac)
	if err != nil {
		logs.Warning.Println("topic", t.name, "rejected access change:", err)
		return false
	}
	return changed
}

// Invite adds a user to the topic with the given access mode. The local
// subscription is created optimistically; inviting to a topic the server
// does not know about yet fails with ErrNotSynchronized.
func (t *Topic) Invite(uid, mode string) *PromisedReply {
	sub := t.GetSubscription(uid)
	if sub != nil {
		if sub.Acs == nil {
			sub.Acs = NewAcs()
		}
		sub.Acs.Given = ParseAcs(mode)
	} else {
		sub = &Subscription{
			Topic: t.name,
			User:  uid,
			Acs:   &Acs{Want: ModeUnset, Given: ParseAcs(mode), Mode: ModeUnset},
		}
		t.store.SubNew(t, sub)
		if user := t.clnt.GetUser(uid); user != nil {
			sub.Pub = user.Pub
		}
		t.addSubToCache(sub)
	}
	t.listener.OnMetaSub(sub)
	t.listener.OnSubsUpdated()

	if t.IsNew() {
		return NewRejectedPromise(ErrNotSynchronized)
	}
	return t.SetMeta(&MsgSetQuery{Sub: &MsgSetSub{User: uid, Mode: mode}}).ThenApply(
		func(msg *ServerMessage) (*PromisedReply, error) {
			t.store.SubUpdate(t, sub)
			t.listener.OnMetaSub(sub)
			t.listener.OnSubsUpdated()
			return nil, nil
		})
}

// topicLeft marks the topic as detached and notifies the listener. Safe to
// call repeatedly.
func (t *Topic) topicLeft(unsub bool, code int, reason string) {
	if t.attached {
		t.attached = false
		t.listener.OnLeave(unsub, code, reason)
	}
}

// Leave detaches from the topic; with unsub it also deletes the
// subscription and the local copy. Leaving a topic that is not attached and
// not being unsubscribed is a no-op.
func (t *Topic) Leave(unsub bool) *PromisedReply {
	if t.attached {
		return t.clnt.Leave(t.name, unsub).ThenApply(
			func(msg *ServerMessage) (*PromisedReply, error) {
				code, text := 0, ""
				if msg.Ctrl != nil {
					code, text = msg.Ctrl.Code, msg.Ctrl.Text
				}
				t.topicLeft(unsub, code, text)
				if unsub {
					t.clnt.stopTrackingTopic(t.name)
					t.persist(false)
				}
				return nil, nil
			})
	}
	if !unsub {
		return NewResolvedPromise(&ServerMessage{})
	}
	if t.clnt.IsConnected() {
		return NewRejectedPromise(ErrNotSubscribed)
	}
	return NewRejectedPromise(ErrNotConnected)
}

// processDelivery applies the server's publish confirmation: final seq ID
// and timestamp for a locally stored message.
func (t *Topic) processDelivery(ctrl *MsgServerCtrl, id int64) {
	if ctrl == nil {
		return
	}
	seq := ctrl.GetIntParam("seq")
	if seq <= 0 {
		return
	}
	t.setSeq(seq)
	if ctrl.Timestamp != nil {
		t.SetTouched(*ctrl.Timestamp)
	}
	if id > 0 {
		ts := time.Now().UTC().Round(time.Millisecond)
		if ctrl.Timestamp != nil {
			ts = *ctrl.Timestamp
		}
		if t.store.MsgDelivered(t, id, ts, seq) {
			t.setRecv(seq)
		}
		t.setLatestMessage(t.store.GetMessageById(id))
	} else {
		t.setRecv(seq)
	}
	// Own messages are implicitly read.
	t.setRead(seq)
	t.store.SetRead(t, seq)
}

// publishPending sends an already stored message.
func (t *Topic) publishPending(content any, id int64) *PromisedReply {
	var head map[string]any
	if msg := t.store.GetMessageById(id); msg != nil {
		head = msg.Head
	}
	t.store.MsgSyncing(t, id, true)
	return t.clnt.Publish(t.name, head, content).Then(
		func(msg *ServerMessage) (*PromisedReply, error) {
			t.processDelivery(msg.Ctrl, id)
			return nil, nil
		},
		func(err error) (*PromisedReply, error) {
			t.store.MsgSyncing(t, id, false)
			return nil, err
		})
}

// Publish stores the message locally as queued, then sends it, subscribing
// first when not attached. A failed send leaves the stored message in a
// retryable state instead of dropping it.
func (t *Topic) Publish(content *drafty.Document) *PromisedReply {
	var head map[string]any
	if !content.IsPlain() {
		head = map[string]any{"mime": drafty.MimeType}
	}
	id := t.store.MsgSend(t, head, content)

	if t.attached {
		return t.publishPending(content, id)
	}
	return t.Subscribe().ThenApply(
		func(msg *ServerMessage) (*PromisedReply, error) {
			return t.publishPending(content, id), nil
		}).ThenCatch(
		func(err error) (*PromisedReply, error) {
			t.store.MsgSyncing(t, id, false)
			return nil, err
		})
}

// DelMessages deletes a range of messages: marked locally first, then
// requested from the server when attached. While online but detached the
// call fails instead of queueing silently.
func (t *Topic) DelMessages(fromId, toId int, hard bool) *PromisedReply {
	if toId <= 0 {
		toId = t.desc.Seq + 1
	}
	return t.delMessages([]MsgRange{{Low: fromId, Hi: toId}}, hard)
}

// DelMessagesList deletes messages by ID list.
func (t *Topic) DelMessagesList(list []int, hard bool) *PromisedReply {
	return t.delMessages(ListToRanges(list), hard)
}

func (t *Topic) delMessages(ranges []MsgRange, hard bool) *PromisedReply {
	t.store.MsgMarkToDelete(t, ranges, hard)
	if t.attached {
		return t.clnt.DelMessages(t.name, ranges, hard).ThenApply(
			func(msg *ServerMessage) (*PromisedReply, error) {
				if msg.Ctrl != nil {
					delId := msg.Ctrl.GetIntParam("del")
					t.desc.Clear = delId
					t.setMaxDel(delId)
					t.store.MsgDelete(t, delId, ranges)
				}
				t.listener.OnData(nil)
				return nil, nil
			})
	}
	if t.clnt.IsConnected() {
		return NewRejectedPromise(ErrNotSubscribed)
	}
	// Offline: the markers will be synced by SyncAll on reconnect.
	return NewResolvedPromise(&ServerMessage{})
}

// DelTopic deletes the topic from the server and the local store.
func (t *Topic) DelTopic(hard bool) *PromisedReply {
	return t.clnt.DelTopic(t.name, hard).ThenApply(
		func(msg *ServerMessage) (*PromisedReply, error) {
			t.topicLeft(true, 200, "OK")
			t.clnt.stopTrackingTopic(t.name)
			t.persist(false)
			return nil, nil
		})
}

// NoteRead sends a 'read' acknowledgement for the latest message. Counters
// only move forward; read also advances recv.
func (t *Topic) NoteRead() int {
	seq := t.desc.Seq
	if t.desc.Read >= seq {
		return 0
	}
	t.NoteRecv()
	t.clnt.Note(t.name, constNoteRead, seq)
	t.desc.Read = seq
	t.store.SetRead(t, seq)
	return seq
}

// NoteRecv sends a 'recv' acknowledgement for the latest message.
func (t *Topic) NoteRecv() int {
	seq := t.desc.Seq
	if t.desc.Recv >= seq {
		return 0
	}
	t.clnt.Note(t.name, constNoteRecv, seq)
	t.desc.Recv = seq
	t.store.SetRecv(t, seq)
	return seq
}

// NoteKeyPress sends a typing notification, throttled to one per interval.
func (t *Topic) NoteKeyPress() {
	now := time.Now()
	if now.Sub(t.lastKeyPress) >= keyPressInterval {
		t.lastKeyPress = now
		t.clnt.Note(t.name, constNoteKp, 0)
	}
}

// sendPendingDeletes pushes locally marked deletions to the server.
func (t *Topic) sendPendingDeletes(hard bool) *PromisedReply {
	pending := t.store.GetQueuedMessageDeletes(t, hard)
	if len(pending) == 0 {
		return nil
	}
	return t.clnt.DelMessages(t.name, pending, hard).ThenApply(
		func(msg *ServerMessage) (*PromisedReply, error) {
			if msg.Ctrl != nil {
				delId := msg.Ctrl.GetIntParam("del")
				t.setMaxDel(delId)
				t.store.MsgDelete(t, delId, pending)
			}
			return nil, nil
		})
}

// SyncOne sends one unsent message by its local ID.
func (t *Topic) SyncOne(dbId int64) *PromisedReply {
	msg := t.store.GetMessageById(dbId)
	if msg == nil || !msg.IsPending() {
		return NewResolvedPromise(&ServerMessage{})
	}
	return t.publishPending(msg.Content, msg.DbId)
}

// SyncAll pushes all queued local changes to the server: pending deletes
// first, then unsent messages in order.
func (t *Topic) SyncAll() *PromisedReply {
	result := NewResolvedPromise(&ServerMessage{})
	if r := t.sendPendingDeletes(false); r != nil {
		result = r
	}
	if r := t.sendPendingDeletes(true); r != nil {
		result = r
	}
	for _, msg := range t.store.GetQueuedMessages(t) {
		result = t.publishPending(msg.Content, msg.DbId)
	}
	return result
}
