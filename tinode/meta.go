package tinode

import (
	"time"
)

// LastSeen is the timestamp and user agent of the user's last activity.
type LastSeen struct {
	When *time.Time `json:"when,omitempty"`
	UA   string     `json:"ua,omitempty"`
}

// Merge merges another LastSeen record, newer wins. Reports whether anything
// changed.
func (ls *LastSeen) Merge(seen *LastSeen) bool {
	if seen == nil || seen.When == nil {
		return false
	}
	if ls.When == nil || ls.When.Before(*seen.When) {
		ls.When = seen.When
		ls.UA = seen.UA
		return true
	}
	return false
}

// TrustedFlags are server-assigned trust indicators of an account.
type TrustedFlags struct {
	Verified bool `json:"verified,omitempty"`
	Staff    bool `json:"staff,omitempty"`
	Danger   bool `json:"danger,omitempty"`
}

// Description is the topic-level metadata aggregate: timestamps, access
// modes, message counters and the public/private payloads. Owned exclusively
// by its topic.
//
// Merge semantics, uniform with Subscription: a strictly newer timestamp
// replaces scalar fields and payloads, an equal or older one only fills
// locally absent fields; counters only grow.
type Description struct {
	Created *time.Time    `json:"created,omitempty"`
	Updated *time.Time    `json:"updated,omitempty"`
	Touched *time.Time    `json:"touched,omitempty"`
	Defacs  *Defacs       `json:"defacs,omitempty"`
	Acs     *Acs          `json:"acs,omitempty"`
	Seq     int           `json:"seq,omitempty"`
	Read    int           `json:"read,omitempty"`
	Recv    int           `json:"recv,omitempty"`
	Clear   int           `json:"clear,omitempty"`
	Trusted *TrustedFlags `json:"trusted,omitempty"`
	Pub     any           `json:"public,omitempty"`
	Priv    any           `json:"private,omitempty"`
	Seen    *LastSeen     `json:"seen,omitempty"`
}

// Merge merges an incoming description. Reports whether anything changed.
func (d *Description) Merge(desc *Description) bool {
	if desc == nil {
		return false
	}
	changed := 0
	if d.Created == nil && desc.Created != nil {
		d.Created = desc.Created
		changed++
	}
	if desc.Updated != nil && (d.Updated == nil || d.Updated.Before(*desc.Updated)) {
		d.Updated = desc.Updated
		changed++
	}
	if desc.Touched != nil && (d.Touched == nil || d.Touched.Before(*desc.Touched)) {
		d.Touched = desc.Touched
		changed++
	}
	if desc.Defacs != nil {
		if d.Defacs == nil {
			d.Defacs = desc.Defacs.Copy()
			changed++
		} else if d.Defacs.Merge(desc.Defacs) {
			changed++
		}
	}
	if desc.Acs != nil {
		if d.Acs == nil {
			d.Acs = desc.Acs.Copy()
			changed++
		} else if d.Acs.Merge(desc.Acs) {
			changed++
		}
	}
	if d.Seq < desc.Seq {
		d.Seq = desc.Seq
		changed++
	}
	if d.Read < desc.Read {
		d.Read = desc.Read
		changed++
	}
	if d.Recv < desc.Recv {
		d.Recv = desc.Recv
		changed++
	}
	if d.Clear < desc.Clear {
		d.Clear = desc.Clear
		changed++
	}
	if desc.Trusted != nil {
		d.Trusted = desc.Trusted
		changed++
	}
	if desc.Seen != nil {
		if d.Seen == nil {
			d.Seen = desc.Seen
			changed++
		} else if d.Seen.Merge(desc.Seen) {
			changed++
		}
	}
	if desc.Pub != nil {
		d.Pub = desc.Pub
	}
	if desc.Priv != nil {
		d.Priv = desc.Priv
	}
	return changed > 0
}

// MergeSub merges a subscription record into the description: used when a
// topic of the contact list reports its state through a 'me' subscription.
func (d *Description) MergeSub(sub *Subscription) bool {
	if sub == nil {
		return false
	}
	changed := 0
	if sub.Updated != nil && (d.Updated == nil || d.Updated.Before(*sub.Updated)) {
		d.Updated = sub.Updated
		changed++
	}
	if sub.Touched != nil && (d.Touched == nil || d.Touched.Before(*sub.Touched)) {
		d.Touched = sub.Touched
		changed++
	}
	if sub.Acs != nil {
		if d.Acs == nil {
			d.Acs = sub.Acs.Copy()
			changed++
		} else if d.Acs.Merge(sub.Acs) {
			changed++
		}
	}
	if d.Seq < sub.Seq {
		d.Seq = sub.Seq
		changed++
	}
	if d.Read < sub.Read {
		d.Read = sub.Read
		changed++
	}
	if d.Recv < sub.Recv {
		d.Recv = sub.Recv
		changed++
	}
	if d.Clear < sub.Clear {
		d.Clear = sub.Clear
		changed++
	}
	if sub.Trusted != nil {
		d.Trusted = sub.Trusted
		changed++
	}
	if sub.Pub != nil {
		d.Pub = sub.Pub
		changed++
	}
	if sub.Priv != nil {
		d.Priv = sub.Priv
		changed++
	}
	return changed > 0
}

// MergeSetDesc merges locally requested metadata changes after the server
// confirmed them.
func (d *Description) MergeSetDesc(desc *MsgSetDesc) bool {
	if desc == nil {
		return false
	}
	changed := 0
	if desc.Defacs != nil {
		if d.Defacs == nil {
			d.Defacs = desc.Defacs.Copy()
			changed++
		} else if d.Defacs.Merge(desc.Defacs) {
			changed++
		}
	}
	if desc.Pub != nil {
		d.Pub = desc.Pub
		changed++
	}
	if desc.Priv != nil {
		d.Priv = desc.Priv
		changed++
	}
	return changed > 0
}

// Subscription is the membership record binding one user to one topic.
type Subscription struct {
	User    string     `json:"user,omitempty"`
	Topic   string     `json:"topic,omitempty"`
	Updated *time.Time `json:"updated,omitempty"`
	Deleted *time.Time `json:"deleted,omitempty"`
	Touched *time.Time `json:"touched,omitempty"`

	Acs     *Acs          `json:"acs,omitempty"`
	Seq     int           `json:"seq,omitempty"`
	Read    int           `json:"read,omitempty"`
	Recv    int           `json:"recv,omitempty"`
	Clear   int           `json:"clear,omitempty"`
	Trusted *TrustedFlags `json:"trusted,omitempty"`
	Pub     any           `json:"public,omitempty"`
	Priv    any           `json:"private,omitempty"`
	Online  *bool         `json:"online,omitempty"`
	Seen    *LastSeen     `json:"seen,omitempty"`
}

// UniqueID identifies the subscription within its collection: the user ID in
// a regular topic roster, "topic:user" in search results which mix both.
func (s *Subscription) UniqueID() string {
	if s.Topic == "" {
		return s.User
	}
	if s.User == "" {
		return s.Topic
	}
	return s.Topic + ":" + s.User
}

// SetOnline sets the volatile presence flag.
func (s *Subscription) SetOnline(online bool) {
	s.Online = &online
}

// IsOnline returns the presence flag, false when unknown.
func (s *Subscription) IsOnline() bool {
	return s.Online != nil && *s.Online
}

// UpdateAccessMode applies a server-reported access change to the
// subscription, initializing the Acs if absent.
func (s *Subscription) UpdateAccessMode(ac *AccessChange) error {
	if s.Acs == nil {
		s.Acs = NewAcs()
	}
	_, err := s.Acs.Update(ac)
	return err
}

// Merge merges an incoming subscription record. Reports whether anything
// changed enough to warrant persisting.
func (s *Subscription) Merge(sub *Subscription) bool {
	if sub == nil {
		return false
	}
	changed := 0
	if s.User == "" && sub.User != "" {
		s.User = sub.User
		changed++
	}
	if sub.Updated != nil && (s.Updated == nil || s.Updated.Before(*sub.Updated)) {
		s.Updated = sub.Updated
		if sub.Pub != nil {
			s.Pub = sub.Pub
		}
		changed++
	} else if s.Pub == nil && sub.Pub != nil {
		s.Pub = sub.Pub
	}
	if sub.Touched != nil && (s.Touched == nil || s.Touched.Before(*sub.Touched)) {
		s.Touched = sub.Touched
	}
	if sub.Deleted != nil {
		s.Deleted = sub.Deleted
	}
	if sub.Acs != nil {
		if s.Acs == nil {
			s.Acs = sub.Acs.Copy()
			changed++
		} else if s.Acs.Merge(sub.Acs) {
			changed++
		}
	}
	if s.Read < sub.Read {
		s.Read = sub.Read
		changed++
	}
	if s.Recv < sub.Recv {
		s.Recv = sub.Recv
		changed++
	}
	if s.Clear < sub.Clear {
		s.Clear = sub.Clear
		changed++
	}
	if s.Seq < sub.Seq {
		s.Seq = sub.Seq
		changed++
	}
	if sub.Trusted != nil {
		s.Trusted = sub.Trusted
	}
	if sub.Priv != nil {
		s.Priv = sub.Priv
	}
	if sub.Online != nil {
		s.Online = sub.Online
	}
	if s.Topic == "" && sub.Topic != "" {
		s.Topic = sub.Topic
		changed++
	}
	if sub.Seen != nil {
		if s.Seen == nil {
			s.Seen = sub.Seen
			changed++
		} else if s.Seen.Merge(sub.Seen) {
			changed++
		}
	}
	return changed > 0
}
