package tinode

/******************************************************************************
 *
 *  Description :
 *
 *    Wire protocol structures.
 *
 *****************************************************************************/

import (
	"encoding/json"
	"time"
)

// MsgGetOpts defines Get query parameters.
type MsgGetOpts struct {
	// Optional user ID to return result(s) for one user.
	User string `json:"user,omitempty"`
	// Optional topic name to return result(s) for one topic.
	Topic string `json:"topic,omitempty"`
	// Return results modified since this timestamp.
	IfModifiedSince *time.Time `json:"ims,omitempty"`
	// Load messages/ranges with IDs equal or greater than this (inclusive or closed).
	SinceId int `json:"since,omitempty"`
	// Load messages/ranges with IDs lower than this (exclusive or open).
	BeforeId int `json:"before,omitempty"`
	// Limit the number of messages loaded.
	Limit int `json:"limit,omitempty"`
}

// MsgGetQuery is a topic metadata or data query.
type MsgGetQuery struct {
	What string `json:"what"`

	// Parameters of "desc" request: IfModifiedSince.
	Desc *MsgGetOpts `json:"desc,omitempty"`
	// Parameters of "sub" request: User, Topic, IfModifiedSince, Limit.
	Sub *MsgGetOpts `json:"sub,omitempty"`
	// Parameters of "data" request: Since, Before, Limit.
	Data *MsgGetOpts `json:"data,omitempty"`
	// Parameters of "del" request: Since, Before, Limit.
	Del *MsgGetOpts `json:"del,omitempty"`
}

// MsgSetSub is a payload in set.sub request to update current subscription or
// invite another user, {sub.what} == "sub".
type MsgSetSub struct {
	// User affected by this request. Default (empty): current user.
	User string `json:"user,omitempty"`
	// Access mode change, either Given or Want depending on context.
	Mode string `json:"mode,omitempty"`
}

// MsgSetDesc is a C2S payload in set.what == "desc" and in acc, sub messages.
type MsgSetDesc struct {
	Defacs *Defacs `json:"defacs,omitempty"` // default access mode
	Pub    any     `json:"public,omitempty"`
	Priv   any     `json:"private,omitempty"` // per-subscription private data
}

// MsgCredClient is an account credential such as email or phone number.
type MsgCredClient struct {
	// Credential type, i.e. `email` or `tel`.
	Method string `json:"meth,omitempty"`
	// Value to verify, i.e. `user@example.com` or `+18003287448`.
	Value string `json:"val,omitempty"`
	// Verification response.
	Response string `json:"resp,omitempty"`
	// Request parameters, such as preferences. Passed to validator without
	// interpretation.
	Params map[string]any `json:"params,omitempty"`
}

// MsgSetQuery is an update to topic metadata: desc, subscriptions, or tags.
type MsgSetQuery struct {
	// Topic metadata, new topic & new subscriptions only.
	Desc *MsgSetDesc `json:"desc,omitempty"`
	// Subscription parameters.
	Sub *MsgSetSub `json:"sub,omitempty"`
	// Indexable tags for user discovery.
	Tags []string `json:"tags,omitempty"`
	// Update to account credentials.
	Cred *MsgCredClient `json:"cred,omitempty"`
}

// Client to Server (C2S) messages.

// MsgClientHi is a handshake {hi} message.
type MsgClientHi struct {
	Id string `json:"id,omitempty"`
	// User agent.
	UserAgent string `json:"ua,omitempty"`
	// Protocol version, i.e. "0.22".
	Version string `json:"ver,omitempty"`
	// Client's unique device ID, for push notifications.
	DeviceID string `json:"dev,omitempty"`
	// ISO 639-1 human language of the client device.
	Lang string `json:"lang,omitempty"`
	// Platform code: ios, android, web.
	Platform string `json:"platf,omitempty"`
	// Session runs in the background, presence notifications are delayed.
	Background bool `json:"bkg,omitempty"`
}

// MsgClientAcc is an {acc} message for creating or updating a user account.
type MsgClientAcc struct {
	Id string `json:"id,omitempty"`
	// "newXYZ" to create a new user or UserId to update a user; default: current user.
	User string `json:"user,omitempty"`
	// Account state: normal, suspended.
	State string `json:"status,omitempty"`
	// Authentication scheme used in this request.
	Scheme string `json:"scheme,omitempty"`
	// Shared secret for the scheme.
	Secret []byte `json:"secret,omitempty"`
	// Authenticate session with the newly created account.
	Login bool `json:"login,omitempty"`
	// Indexable tags for user discovery.
	Tags []string `json:"tags,omitempty"`
	// User initialization data when creating a new user, otherwise ignored.
	Desc *MsgSetDesc `json:"desc,omitempty"`
	// Credentials to verify (email or phone or captcha).
	Cred []MsgCredClient `json:"cred,omitempty"`
}

// MsgClientLogin is a login {login} message.
type MsgClientLogin struct {
	Id string `json:"id,omitempty"`
	// Authentication scheme.
	Scheme string `json:"scheme,omitempty"`
	// Shared secret.
	Secret []byte `json:"secret,omitempty"`
	// Credentials being verified (email or phone or captcha etc.).
	Cred []MsgCredClient `json:"cred,omitempty"`
}

// MsgClientSub is a subscription request {sub} message.
type MsgClientSub struct {
	Id    string `json:"id,omitempty"`
	Topic string `json:"topic"`

	// Mirrors {set}.
	Set *MsgSetQuery `json:"set,omitempty"`
	// Mirrors {get}.
	Get *MsgGetQuery `json:"get,omitempty"`
}

// MsgClientGet is a query of topic state {get}.
type MsgClientGet struct {
	Id    string `json:"id,omitempty"`
	Topic string `json:"topic"`
	MsgGetQuery
}

// MsgClientSet is an update of topic state {set}.
type MsgClientSet struct {
	Id    string `json:"id,omitempty"`
	Topic string `json:"topic"`
	MsgSetQuery
}

// MsgClientLeave is a request to detach from a topic {leave}, optionally
// deleting the subscription.
type MsgClientLeave struct {
	Id    string `json:"id,omitempty"`
	Topic string `json:"topic"`
	Unsub bool   `json:"unsub,omitempty"`
}

// MsgClientPub is a client message to publish content to topic {pub}.
type MsgClientPub struct {
	Id      string         `json:"id,omitempty"`
	Topic   string         `json:"topic"`
	NoEcho  bool           `json:"noecho,omitempty"`
	Head    map[string]any `json:"head,omitempty"`
	Content any            `json:"content"`
}

// MsgClientNote is a client-generated notification for topic subscribers {note}.
type MsgClientNote struct {
	// Note is never acknowledged, no need for an ID.
	Topic string `json:"topic"`
	// What is being reported: "recv" - message received, "read" - message read,
	// "kp" - typing notification, "call" - video call.
	What string `json:"what"`
	// Server-issued message ID being reported.
	SeqId int `json:"seq,omitempty"`
	// Call event or arbitrary json payload (video calls).
	Event   string `json:"event,omitempty"`
	Payload any    `json:"payload,omitempty"`
}

// MsgClientDel is a delete {del} message: messages, subscription, or the
// topic itself.
type MsgClientDel struct {
	Id    string `json:"id,omitempty"`
	Topic string `json:"topic,omitempty"`
	// What to delete: "msg" - messages, "topic" - topic, "sub" - subscription.
	What string `json:"what"`
	// Delete messages in the ranges of IDs (what == "msg").
	DelSeq []MsgRange `json:"delseq,omitempty"`
	// User being evicted (what == "sub").
	User string `json:"user,omitempty"`
	// Credential to delete.
	Cred *MsgCredClient `json:"cred,omitempty"`
	// Request to hard-delete messages for all users.
	Hard bool `json:"hard,omitempty"`
}

// ClientMessage is a wrapper for client messages.
type ClientMessage struct {
	Hi    *MsgClientHi    `json:"hi,omitempty"`
	Acc   *MsgClientAcc   `json:"acc,omitempty"`
	Login *MsgClientLogin `json:"login,omitempty"`
	Sub   *MsgClientSub   `json:"sub,omitempty"`
	Get   *MsgClientGet   `json:"get,omitempty"`
	Set   *MsgClientSet   `json:"set,omitempty"`
	Leave *MsgClientLeave `json:"leave,omitempty"`
	Pub   *MsgClientPub   `json:"pub,omitempty"`
	Note  *MsgClientNote  `json:"note,omitempty"`
	Del   *MsgClientDel   `json:"del,omitempty"`
}

// MsgId returns the correlation ID of whichever message is wrapped, if any.
func (msg *ClientMessage) MsgId() string {
	switch {
	case msg.Hi != nil:
		return msg.Hi.Id
	case msg.Acc != nil:
		return msg.Acc.Id
	case msg.Login != nil:
		return msg.Login.Id
	case msg.Sub != nil:
		return msg.Sub.Id
	case msg.Get != nil:
		return msg.Get.Id
	case msg.Set != nil:
		return msg.Set.Id
	case msg.Leave != nil:
		return msg.Leave.Id
	case msg.Pub != nil:
		return msg.Pub.Id
	case msg.Del != nil:
		return msg.Del.Id
	}
	return ""
}

// Server to client (S2C) messages.

// MsgServerCtrl is a server control message {ctrl}.
type MsgServerCtrl struct {
	Id     string         `json:"id,omitempty"`
	Topic  string         `json:"topic,omitempty"`
	Params map[string]any `json:"params,omitempty"`

	Code      int        `json:"code"`
	Text      string     `json:"text,omitempty"`
	Timestamp *time.Time `json:"ts,omitempty"`
}

// GetStringParam fetches a string value from Params.
func (ctrl *MsgServerCtrl) GetStringParam(key string) string {
	if val, ok := ctrl.Params[key].(string); ok {
		return val
	}
	return ""
}

// GetIntParam fetches an integer value from Params. JSON decoding makes all
// numbers float64.
func (ctrl *MsgServerCtrl) GetIntParam(key string) int {
	switch val := ctrl.Params[key].(type) {
	case float64:
		return int(val)
	case int:
		return val
	case json.Number:
		if num, err := val.Int64(); err == nil {
			return int(num)
		}
	}
	return 0
}

// GetStringSliceParam fetches an array of strings from Params, skipping
// non-string elements.
func (ctrl *MsgServerCtrl) GetStringSliceParam(key string) []string {
	arr, ok := ctrl.Params[key].([]any)
	if !ok {
		return nil
	}
	var res []string
	for _, el := range arr {
		if str, ok := el.(string); ok {
			res = append(res, str)
		}
	}
	return res
}

// GetStringDictParam fetches a map of strings from Params, skipping
// non-string values.
func (ctrl *MsgServerCtrl) GetStringDictParam(key string) map[string]string {
	dict, ok := ctrl.Params[key].(map[string]any)
	if !ok {
		return nil
	}
	res := map[string]string{}
	for k, v := range dict {
		if str, ok := v.(string); ok {
			res[k] = str
		}
	}
	return res
}

// MsgDelValues is the result of a messages deletion: messages with IDs up to
// Clear are gone, DelSeq itemizes the ranges.
type MsgDelValues struct {
	Clear  int        `json:"clear,omitempty"`
	DelSeq []MsgRange `json:"delseq,omitempty"`
}

// MsgServerMeta is a topic metadata {meta} update.
type MsgServerMeta struct {
	Id    string     `json:"id,omitempty"`
	Topic string     `json:"topic"`
	Ts    *time.Time `json:"ts,omitempty"`

	// Topic description.
	Desc *Description `json:"desc,omitempty"`
	// Subscriptions as an array of objects.
	Sub []Subscription `json:"sub,omitempty"`
	// Deleted message ranges.
	Del *MsgDelValues `json:"del,omitempty"`
	// Topic tags.
	Tags []string `json:"tags,omitempty"`
	// Account credentials, 'me' topic only.
	Cred []MsgCredClient `json:"cred,omitempty"`
}

// MsgServerData is a server {data} message: a payload published to the topic.
type MsgServerData struct {
	Topic string `json:"topic"`
	// ID of the user who originated the message.
	From string         `json:"from,omitempty"`
	Head map[string]any `json:"head,omitempty"`

	Ts    *time.Time `json:"ts,omitempty"`
	SeqId int        `json:"seq"`
	// Normally a drafty document or a plain string.
	Content json.RawMessage `json:"content"`
}

// MsgServerPres is presence notification {pres} (authoritative update).
type MsgServerPres struct {
	Topic string `json:"topic"`
	Src   string `json:"src,omitempty"`
	What  string `json:"what"`
	// UserAgent of the affected user, what="ua".
	UserAgent string `json:"ua,omitempty"`
	SeqId     int    `json:"seq,omitempty"`
	DelId     int    `json:"clear,omitempty"`
	DelSeq    []MsgRange `json:"delseq,omitempty"`
	// ID of the user affected by the change.
	AcsTarget string `json:"tgt,omitempty"`
	// ID of the user who made the change.
	AcsActor string `json:"act,omitempty"`
	// Changed access mode, what="acs".
	Dacs *AccessChange `json:"dacs,omitempty"`
}

// MsgServerInfo is the response to a {note} message, a forwarded notification.
type MsgServerInfo struct {
	Topic string `json:"topic"`
	// Topic where the message was sent, 'me' forwards only.
	Src string `json:"src,omitempty"`
	// ID of the user who originated the message.
	From string `json:"from,omitempty"`
	// "recv", "read", "kp" or "call".
	What string `json:"what"`
	// Server-issued ID of the message affected.
	SeqId int `json:"seq,omitempty"`
	// Call event and payload (video calls).
	Event   string `json:"event,omitempty"`
	Payload any    `json:"payload,omitempty"`
}

// ServerMessage is a wrapper for server-side messages.
type ServerMessage struct {
	Ctrl *MsgServerCtrl `json:"ctrl,omitempty"`
	Data *MsgServerData `json:"data,omitempty"`
	Meta *MsgServerMeta `json:"meta,omitempty"`
	Pres *MsgServerPres `json:"pres,omitempty"`
	Info *MsgServerInfo `json:"info,omitempty"`
}
