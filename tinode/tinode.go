package tinode

/******************************************************************************
 *
 *  Description :
 *
 *    Client: the session façade. Owns the connection, the topic registry
 *    and the user directory, assigns correlation ids, tracks in-flight
 *    requests as futures, and dispatches inbound frames to topics.
 *
 *****************************************************************************/

import (
	"encoding/json"
	"errors"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tinode/gosdk/logs"
)

const (
	// ProtocolVersion is the version of the wire protocol.
	ProtocolVersion = "0.22"
	// LibVersion is the version of this library reported in the user agent.
	LibVersion = "1.0.0"

	// TopicMe is the account's own topic: contact list and profile.
	TopicMe = "me"
	// TopicFnd is the search pseudo-topic.
	TopicFnd = "fnd"
	// TopicNew is the name prefix of topics pending server-side creation.
	TopicNew = "new"

	// AuthSchemeBasic is login:password authentication.
	AuthSchemeBasic = "basic"
	// AuthSchemeToken is token authentication.
	AuthSchemeToken = "token"

	constNoteKp   = "kp"
	constNoteRead = "read"
	constNoteRecv = "recv"

	constMsgMetaDesc = "desc"
	constMsgMetaSub  = "sub"
	constMsgMetaData = "data"
	constMsgMetaDel  = "del"
	constMsgMetaTags = "tags"

	// How long an unanswered request lives before the sweep rejects it.
	futureExpiryTimeout = 5 * time.Second
	// How often the sweep runs.
	futureExpiryPeriod = 1 * time.Second
)

// ClientListener receives session-wide events. Callbacks fire on the
// connection's goroutines; they must not block.
type ClientListener interface {
	// OnConnect is called after a successful handshake.
	OnConnect(code int, reason string, params map[string]any)
	// OnDisconnect is called when the connection drops. The code is the
	// websocket close code for server-originated shutdowns.
	OnDisconnect(byServer bool, code int)
	// OnLogin reports the outcome of an authentication attempt.
	OnLogin(code int, text string)
	// OnMessage is called for every decoded inbound message.
	OnMessage(msg *ServerMessage)
}

// BaseClientListener is a ClientListener with all callbacks stubbed out.
type BaseClientListener struct{}

func (BaseClientListener) OnConnect(code int, reason string, params map[string]any) {}
func (BaseClientListener) OnDisconnect(byServer bool, code int)                     {}
func (BaseClientListener) OnLogin(code int, text string)                            {}
func (BaseClientListener) OnMessage(msg *ServerMessage)                             {}

type futureEntry struct {
	p  *PromisedReply
	ts time.Time
}

// savedLogin is retained for automatic re-authentication on reconnect.
type savedLogin struct {
	scheme string
	secret []byte
}

// Client is a single session with a Tinode server.
type Client struct {
	appName  string
	deviceID string
	lang     string

	store    Storage
	listener ClientListener

	lock sync.Mutex
	conn Conn

	msgCounter int64
	futures    map[string]futureEntry
	sweeper    *time.Ticker
	sweepDone  chan struct{}

	topics        map[string]*Topic
	topicsUpdated *time.Time
	users         map[string]*User

	myUID         string
	authToken     string
	authenticated bool
	serverParams  map[string]any
	login         *savedLogin
	serverURI     string
}

// NewClient creates a disconnected client. appName identifies the
// application in the user agent; store may be nil, in which case state is
// held in memory only for this session.
func NewClient(appName string, store Storage, listener ClientListener) *Client {
	if store == nil {
		store, _ = NewMemStore()
	}
	if listener == nil {
		listener = BaseClientListener{}
	}
	c := &Client{
		appName:  appName,
		store:    store,
		listener: listener,
		futures:  map[string]futureEntry{},
		topics:   map[string]*Topic{},
		users:    map[string]*User{},
	}
	c.loadTopics()
	c.startFutureSweep()
	return c
}

// UserAgent reported to the server.
func (c *Client) UserAgent() string {
	return c.appName + " (gosdk/" + LibVersion + ")"
}

// SetDeviceID sets the device token for push notifications, reported in the
// handshake.
func (c *Client) SetDeviceID(dev string) {
	c.deviceID = dev
	c.store.SetDeviceToken(dev)
}

// SetLanguage sets the human language reported in the handshake.
func (c *Client) SetLanguage(lang string) {
	c.lang = lang
}

func (c *Client) loadTopics() {
	for _, t := range c.store.TopicGetAll() {
		t.clnt = c
		t.store = c.store
		if t.listener == nil {
			t.listener = BaseTopicListener{}
		}
		t.persisted = true
		c.topics[t.Name()] = t
		c.updateTopicsUpdated(t.Updated())
	}
	c.myUID = c.store.MyUID()
}

// Connect dials the server and performs the {hi} handshake.
func (c *Client) Connect(endpoint, apiKey string) *PromisedReply {
	c.lock.Lock()
	if c.conn == nil {
		u, err := url.Parse(endpoint)
		if err != nil {
			c.lock.Unlock()
			return NewRejectedPromise(err)
		}
		c.serverURI = endpoint
		c.conn = NewConnection(*u, apiKey, true, &connEvents{clnt: c})
	}
	conn := c.conn
	c.lock.Unlock()

	if err := conn.Connect(); err != nil {
		return NewRejectedPromise(err)
	}
	return c.Hello()
}

// Disconnect closes the connection. Pending requests are rejected.
func (c *Client) Disconnect() {
	c.lock.Lock()
	conn := c.conn
	c.lock.Unlock()
	if conn != nil {
		conn.Disconnect()
	}
}

// Close shuts the client down: disconnects and stops background work.
func (c *Client) Close() {
	c.Disconnect()
	c.stopFutureSweep()
}

// IsConnected checks if there is a live connection.
func (c *Client) IsConnected() bool {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.conn != nil && c.conn.IsConnected()
}

// IsAuthenticated checks if the session has logged in.
func (c *Client) IsAuthenticated() bool {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.authenticated
}

// MyUID returns the ID of the authenticated user.
func (c *Client) MyUID() string {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.myUID
}

// IsMe checks if the given user ID is the authenticated user.
func (c *Client) IsMe(uid string) bool {
	return uid != "" && uid == c.MyUID()
}

// AuthToken returns the token issued by the last successful login.
func (c *Client) AuthToken() string {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.authToken
}

// ServerParam returns a value from the server handshake parameters.
func (c *Client) ServerParam(key string) any {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.serverParams[key]
}

// nextMessageID returns the next correlation id: per-session monotonic
// integers, stringified.
func (c *Client) nextMessageID() string {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.msgCounter++
	return strconv.FormatInt(c.msgCounter, 10)
}

// NextUniqueString generates a session-unique string used for temporary
// topic names.
func (c *Client) NextUniqueString() string {
	c.lock.Lock()
	c.msgCounter++
	val := (time.Now().UnixNano()/int64(time.Millisecond)-1414213562373)<<16 |
		c.msgCounter&0xffff
	c.lock.Unlock()
	return strings.ToLower(strconv.FormatInt(val, 32))
}

// NewTopicName returns a temporary name for a group topic to be created.
func (c *Client) NewTopicName() string {
	return TopicNew + c.NextUniqueString()
}

// send serializes the message, registers a future under its id, and writes
// it to the connection.
func (c *Client) send(msg *ClientMessage, id string) *PromisedReply {
	data, err := json.Marshal(msg)
	if err != nil {
		return NewRejectedPromise(err)
	}

	var future *PromisedReply
	if id != "" {
		future = NewPromisedReply()
		c.lock.Lock()
		c.futures[id] = futureEntry{p: future, ts: time.Now()}
		conn := c.conn
		c.lock.Unlock()
		if conn == nil {
			c.completeFuture(id, nil, ErrNotConnected)
			return future
		}
		if err := conn.Send(data); err != nil {
			c.completeFuture(id, nil, err)
		}
		return future
	}

	c.lock.Lock()
	conn := c.conn
	c.lock.Unlock()
	if conn == nil {
		return NewRejectedPromise(ErrNotConnected)
	}
	if err := conn.Send(data); err != nil {
		return NewRejectedPromise(err)
	}
	return NewResolvedPromise(nil)
}

// completeFuture resolves or rejects the future registered under id and
// removes it from the table.
func (c *Client) completeFuture(id string, msg *ServerMessage, err error) {
	c.lock.Lock()
	entry, ok := c.futures[id]
	if ok {
		delete(c.futures, id)
	}
	c.lock.Unlock()
	if !ok {
		return
	}
	if err != nil {
		entry.p.Reject(err)
	} else {
		entry.p.Resolve(msg)
	}
}

func (c *Client) startFutureSweep() {
	c.sweeper = time.NewTicker(futureExpiryPeriod)
	c.sweepDone = make(chan struct{})
	ticker, done := c.sweeper, c.sweepDone
	go func() {
		for {
			select {
			case <-ticker.C:
				c.expireFutures()
			case <-done:
				return
			}
		}
	}()
}

func (c *Client) stopFutureSweep() {
	if c.sweeper != nil {
		c.sweeper.Stop()
		close(c.sweepDone)
		c.sweeper = nil
	}
}

// expireFutures rejects requests that have been in flight for too long.
// This is a liveness guarantee: it keeps the table from growing without
// bound on abandoned requests.
func (c *Client) expireFutures() {
	deadline := time.Now().Add(-futureExpiryTimeout)
	var expired []*PromisedReply
	c.lock.Lock()
	for id, entry := range c.futures {
		if entry.ts.Before(deadline) {
			expired = append(expired, entry.p)
			delete(c.futures, id)
		}
	}
	c.lock.Unlock()
	for _, p := range expired {
		p.Reject(ErrExpired)
	}
}

// rejectAllFutures fails every in-flight request, used on disconnect.
func (c *Client) rejectAllFutures(err error) {
	c.lock.Lock()
	pending := make([]*PromisedReply, 0, len(c.futures))
	for _, entry := range c.futures {
		pending = append(pending, entry.p)
	}
	c.futures = map[string]futureEntry{}
	c.lock.Unlock()
	for _, p := range pending {
		p.Reject(err)
	}
}

// Hello sends the {hi} handshake.
func (c *Client) Hello() *PromisedReply {
	id := c.nextMessageID()
	msg := &ClientMessage{Hi: &MsgClientHi{
		Id:        id,
		UserAgent: c.UserAgent(),
		Version:   ProtocolVersion,
		DeviceID:  c.deviceID,
		Lang:      c.lang,
	}}
	return c.send(msg, id).ThenApply(
		func(msg *ServerMessage) (*PromisedReply, error) {
			if msg == nil || msg.Ctrl == nil {
				return nil, ErrInvalidReply
			}
			c.lock.Lock()
			c.serverParams = msg.Ctrl.Params
			c.lock.Unlock()
			return nil, nil
		})
}

// basicSecret encodes a basic-auth secret.
func basicSecret(uname, password string) []byte {
	return []byte(uname + ":" + password)
}

// CreateAccountBasic creates a new account with login:password
// authentication, optionally logging in as the new user.
func (c *Client) CreateAccountBasic(uname, password string, login bool,
	tags []string, desc *MsgSetDesc, creds []MsgCredClient) *PromisedReply {
	return c.Account("new", AuthSchemeBasic, basicSecret(uname, password), login, tags, desc, creds)
}

// Account sends an {acc} message: creates or updates an account.
func (c *Client) Account(user, scheme string, secret []byte, login bool,
	tags []string, desc *MsgSetDesc, creds []MsgCredClient) *PromisedReply {
	id := c.nextMessageID()
	msg := &ClientMessage{Acc: &MsgClientAcc{
		Id:     id,
		User:   user,
		Scheme: scheme,
		Secret: secret,
		Login:  login,
		Tags:   tags,
		Desc:   desc,
		Cred:   creds,
	}}
	future := c.send(msg, id)
	if !login {
		return future
	}
	// The reply to account-and-login is a login response.
	return future.ThenApply(
		func(msg *ServerMessage) (*PromisedReply, error) {
			return nil, c.loginSuccessful(msg)
		})
}

// LoginBasic authenticates with login:password.
func (c *Client) LoginBasic(uname, password string) *PromisedReply {
	return c.Login(AuthSchemeBasic, basicSecret(uname, password), nil)
}

// LoginToken authenticates with a token from a previous login.
func (c *Client) LoginToken(token string) *PromisedReply {
	return c.Login(AuthSchemeToken, []byte(token), nil)
}

// Login authenticates the session. Credentials are remembered and replayed
// automatically after a reconnect.
func (c *Client) Login(scheme string, secret []byte, creds []MsgCredClient) *PromisedReply {
	c.lock.Lock()
	c.login = &savedLogin{scheme: scheme, secret: secret}
	c.lock.Unlock()

	id := c.nextMessageID()
	msg := &ClientMessage{Login: &MsgClientLogin{
		Id:     id,
		Scheme: scheme,
		Secret: secret,
		Cred:   creds,
	}}
	return c.send(msg, id).Then(
		func(msg *ServerMessage) (*PromisedReply, error) {
			return nil, c.loginSuccessful(msg)
		},
		func(err error) (*PromisedReply, error) {
			var sre *ServerResponseError
			if errors.As(err, &sre) {
				c.listener.OnLogin(sre.Code, sre.Text)
			}
			return nil, err
		})
}

func (c *Client) loginSuccessful(msg *ServerMessage) error {
	if msg == nil || msg.Ctrl == nil {
		return ErrInvalidReply
	}
	ctrl := msg.Ctrl
	c.lock.Lock()
	c.myUID = ctrl.GetStringParam("user")
	c.authToken = ctrl.GetStringParam("token")
	c.authenticated = ctrl.Code < 300
	c.lock.Unlock()
	if c.authenticated {
		c.store.SetMyUID(c.myUID, c.serverURI)
		if c.authToken != "" {
			// Keep the token for subsequent logins, the password is not
			// replayed.
			c.lock.Lock()
			c.login = &savedLogin{scheme: AuthSchemeToken, secret: []byte(c.authToken)}
			c.lock.Unlock()
		}
	}
	c.listener.OnLogin(ctrl.Code, ctrl.Text)
	return nil
}

// Logout clears the session authentication and the stored account record.
func (c *Client) Logout() {
	c.lock.Lock()
	c.login = nil
	c.authenticated = false
	c.myUID = ""
	c.authToken = ""
	c.lock.Unlock()
	c.store.Logout()
}

// Subscribe sends a raw {sub} request. Use Topic.Subscribe for the full
// lifecycle.
func (c *Client) Subscribe(topic string, set *MsgSetQuery, get *MsgGetQuery) *PromisedReply {
	id := c.nextMessageID()
	return c.send(&ClientMessage{Sub: &MsgClientSub{
		Id:    id,
		Topic: topic,
		Set:   set,
		Get:   get,
	}}, id)
}

// Leave sends a {leave} request.
func (c *Client) Leave(topic string, unsub bool) *PromisedReply {
	id := c.nextMessageID()
	return c.send(&ClientMessage{Leave: &MsgClientLeave{
		Id:    id,
		Topic: topic,
		Unsub: unsub,
	}}, id)
}

// Publish sends a {pub} request.
func (c *Client) Publish(topic string, head map[string]any, content any) *PromisedReply {
	id := c.nextMessageID()
	return c.send(&ClientMessage{Pub: &MsgClientPub{
		Id:      id,
		Topic:   topic,
		NoEcho:  true,
		Head:    head,
		Content: content,
	}}, id)
}

// GetMeta sends a {get} query.
func (c *Client) GetMeta(topic string, query *MsgGetQuery) *PromisedReply {
	id := c.nextMessageID()
	return c.send(&ClientMessage{Get: &MsgClientGet{
		Id:          id,
		Topic:       topic,
		MsgGetQuery: *query,
	}}, id)
}

// SetMeta sends a {set} update.
func (c *Client) SetMeta(topic string, meta *MsgSetQuery) *PromisedReply {
	id := c.nextMessageID()
	return c.send(&ClientMessage{Set: &MsgClientSet{
		Id:          id,
		Topic:       topic,
		MsgSetQuery: *meta,
	}}, id)
}

// DelMessages sends a {del what="msg"} request.
func (c *Client) DelMessages(topic string, ranges []MsgRange, hard bool) *PromisedReply {
	id := c.nextMessageID()
	return c.send(&ClientMessage{Del: &MsgClientDel{
		Id:     id,
		Topic:  topic,
		What:   "msg",
		DelSeq: ranges,
		Hard:   hard,
	}}, id)
}

// DelTopic sends a {del what="topic"} request.
func (c *Client) DelTopic(topic string, hard bool) *PromisedReply {
	id := c.nextMessageID()
	return c.send(&ClientMessage{Del: &MsgClientDel{
		Id:    id,
		Topic: topic,
		What:  "topic",
		Hard:  hard,
	}}, id)
}

// DelSubscription sends a {del what="sub"} request evicting a user.
func (c *Client) DelSubscription(topic, user string) *PromisedReply {
	id := c.nextMessageID()
	return c.send(&ClientMessage{Del: &MsgClientDel{
		Id:    id,
		Topic: topic,
		What:  "sub",
		User:  user,
	}}, id)
}

// Note sends an unacknowledged {note}: "recv", "read" (with seq) or "kp".
func (c *Client) Note(topic, what string, seq int) {
	c.send(&ClientMessage{Note: &MsgClientNote{
		Topic: topic,
		What:  what,
		SeqId: seq,
	}}, "")
}

// Topic registry.

func (c *Client) startTrackingTopic(t *Topic) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.topics[t.Name()] = t
	c.updateTopicsUpdated(t.Updated())
}

func (c *Client) stopTrackingTopic(name string) {
	c.lock.Lock()
	defer c.lock.Unlock()
	delete(c.topics, name)
}

// changeTopicName re-keys a topic after the server assigned its permanent
// name. The registry swap and the storage update happen before the method
// returns.
func (c *Client) changeTopicName(t *Topic, oldName string) bool {
	c.lock.Lock()
	_, found := c.topics[oldName]
	if found {
		delete(c.topics, oldName)
		c.topics[t.Name()] = t
	}
	c.lock.Unlock()
	c.store.TopicUpdate(t)
	return found
}

// GetTopic looks up a tracked topic by name.
func (c *Client) GetTopic(name string) *Topic {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.topics[name]
}

// GetMeTopic returns the 'me' topic, creating it if never seen.
func (c *Client) GetMeTopic(l TopicListener) *Topic {
	if t := c.GetTopic(TopicMe); t != nil {
		if l != nil {
			t.listener = l
		}
		return t
	}
	return c.NewTopic(TopicMe, l)
}

// GetFilteredTopics returns tracked topics matching the filter, sorted by
// touched timestamp, newest first.
func (c *Client) GetFilteredTopics(filter func(t *Topic) bool) []*Topic {
	c.lock.Lock()
	topics := make([]*Topic, 0, len(c.topics))
	for _, t := range c.topics {
		if filter == nil || filter(t) {
			topics = append(topics, t)
		}
	}
	c.lock.Unlock()
	sort.SliceStable(topics, func(i, j int) bool {
		a, b := topics[i].Touched(), topics[j].Touched()
		switch {
		case b == nil:
			return a != nil
		case a == nil:
			return false
		}
		return a.After(*b)
	})
	return topics
}

// TopicsUpdated returns the latest 'updated' timestamp across all tracked
// topics, the contact-list freshness watermark.
func (c *Client) TopicsUpdated() *time.Time {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.topicsUpdated
}

// Called with the lock held.
func (c *Client) updateTopicsUpdated(ts *time.Time) {
	if ts != nil && (c.topicsUpdated == nil || c.topicsUpdated.Before(*ts)) {
		c.topicsUpdated = ts
	}
}

// User directory.

// GetUser looks up a cached user by ID.
func (c *Client) GetUser(uid string) *User {
	c.lock.Lock()
	if u, ok := c.users[uid]; ok {
		c.lock.Unlock()
		return u
	}
	c.lock.Unlock()
	if u := c.store.UserGet(uid); u != nil {
		c.lock.Lock()
		c.users[uid] = u
		c.lock.Unlock()
		return u
	}
	return nil
}

// updateUser merges profile data revealed by a subscription record.
func (c *Client) updateUser(sub *Subscription) {
	if sub.User == "" {
		return
	}
	user := c.GetUser(sub.User)
	if user == nil {
		user = NewUser(sub)
		c.lock.Lock()
		c.users[user.UID] = user
		c.lock.Unlock()
		c.store.UserAdd(user)
		return
	}
	if user.Merge(sub) {
		c.store.UserUpdate(user)
	}
}

// updateUserDesc merges profile data from a p2p topic description.
func (c *Client) updateUserDesc(uid string, desc *Description) {
	user := c.GetUser(uid)
	if user == nil {
		user = NewUserFromDesc(uid, desc)
		c.lock.Lock()
		c.users[uid] = user
		c.lock.Unlock()
		c.store.UserAdd(user)
		return
	}
	if user.MergeDesc(desc) {
		c.store.UserUpdate(user)
	}
}

// Inbound dispatch.

// dispatch decodes one inbound frame and routes it.
func (c *Client) dispatch(data []byte) {
	var msg ServerMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		logs.Warning.Println("dispatch: invalid frame:", err)
		return
	}
	c.listener.OnMessage(&msg)

	switch {
	case msg.Ctrl != nil:
		c.dispatchCtrl(msg.Ctrl, &msg)
	case msg.Meta != nil:
		c.dispatchMeta(msg.Meta)
	case msg.Data != nil:
		if t := c.GetTopic(msg.Data.Topic); t != nil {
			t.routeData(msg.Data)
		}
	case msg.Pres != nil:
		if t := c.GetTopic(msg.Pres.Topic); t != nil {
			t.routePres(msg.Pres)
		}
	case msg.Info != nil:
		topic := msg.Info.Topic
		if topic == TopicMe && msg.Info.Src != "" {
			topic = msg.Info.Src
		}
		if t := c.GetTopic(topic); t != nil {
			t.routeInfo(msg.Info)
		}
	default:
		logs.Warning.Println("dispatch: unknown message kind")
	}
}

func (c *Client) dispatchCtrl(ctrl *MsgServerCtrl, msg *ServerMessage) {
	if ctrl.Id == "" {
		// Unsolicited control message, e.g. topic shutdown notice.
		if ctrl.Code == 205 && ctrl.Text == "evicted" {
			if t := c.GetTopic(ctrl.Topic); t != nil {
				t.topicLeft(false, ctrl.Code, ctrl.Text)
			}
		}
		return
	}
	if ctrl.Code >= 400 {
		c.completeFuture(ctrl.Id, nil, &ServerResponseError{
			Code: ctrl.Code,
			Text: ctrl.Text,
			What: ctrl.GetStringParam("what"),
		})
		return
	}
	c.completeFuture(ctrl.Id, msg, nil)
}

func (c *Client) dispatchMeta(meta *MsgServerMeta) {
	t := c.GetTopic(meta.Topic)
	if t == nil && meta.Desc != nil {
		// Unsolicited metadata for an untracked topic: start tracking it.
		t = c.newTopicBare(meta.Topic, nil)
		t.desc.Merge(meta.Desc)
		c.startTrackingTopic(t)
		t.persist(true)
	}
	if t != nil {
		t.routeMeta(meta)
	}
}

// Connection events.

// connEvents adapts ConnectionListener callbacks to client behavior.
type connEvents struct {
	clnt *Client
}

func (e *connEvents) OnConnect(reconnected bool) {
	c := e.clnt
	future := c.Hello()
	c.lock.Lock()
	login := c.login
	c.lock.Unlock()
	if login != nil {
		future = future.ThenApply(
			func(msg *ServerMessage) (*PromisedReply, error) {
				return c.Login(login.scheme, login.secret, nil), nil
			})
	}
	reason := "connected"
	if reconnected {
		reason = "reconnected"
	}
	future.ThenApply(
		func(msg *ServerMessage) (*PromisedReply, error) {
			c.lock.Lock()
			params := c.serverParams
			c.lock.Unlock()
			c.listener.OnConnect(201, reason, params)
			return nil, nil
		})
}

func (e *connEvents) OnMessage(data []byte) {
	e.clnt.dispatch(data)
}

func (e *connEvents) OnDisconnect(err error, code int) {
	e.clnt.handleDisconnect(err, code)
}

// handleDisconnect fails all in-flight requests and marks every topic as
// detached.
func (c *Client) handleDisconnect(err error, code int) {
	c.rejectAllFutures(ErrNotConnected)
	c.lock.Lock()
	c.authenticated = false
	topics := make([]*Topic, 0, len(c.topics))
	for _, t := range c.topics {
		topics = append(topics, t)
	}
	c.lock.Unlock()
	for _, t := range topics {
		t.topicLeft(false, 503, "disconnected")
		t.online = false
	}
	c.listener.OnDisconnect(code > 0, code)
}
