package tinode

import "time"

// User is a locally cached record of another user: their ID, public profile
// and trust flags. Kept in the client-wide cache, shared between topics.
type User struct {
	UID     string        `json:"uid,omitempty"`
	Updated *time.Time    `json:"updated,omitempty"`
	Pub     any           `json:"public,omitempty"`
	Trusted *TrustedFlags `json:"trusted,omitempty"`
}

// NewUser creates a user record from a subscription.
func NewUser(sub *Subscription) *User {
	return &User{
		UID:     sub.User,
		Updated: sub.Updated,
		Pub:     sub.Pub,
		Trusted: sub.Trusted,
	}
}

// NewUserFromDesc creates a user record from a topic description, for p2p
// topics where the topic name is the peer's user ID.
func NewUserFromDesc(uid string, desc *Description) *User {
	return &User{
		UID:     uid,
		Updated: desc.Updated,
		Pub:     desc.Pub,
		Trusted: desc.Trusted,
	}
}

func (u *User) mergeProfile(updated *time.Time, pub any, trusted *TrustedFlags) bool {
	changed := false
	if updated != nil && (u.Updated == nil || u.Updated.Before(*updated)) {
		u.Updated = updated
		if pub != nil {
			u.Pub = pub
		}
		changed = true
	} else if u.Pub == nil && pub != nil {
		u.Pub = pub
		changed = true
	}
	if trusted != nil {
		u.Trusted = trusted
		changed = true
	}
	return changed
}

// Merge merges a subscription's view of the user. Reports whether anything
// changed.
func (u *User) Merge(sub *Subscription) bool {
	if sub == nil || (u.UID != "" && u.UID != sub.User) {
		return false
	}
	if u.UID == "" {
		u.UID = sub.User
	}
	return u.mergeProfile(sub.Updated, sub.Pub, sub.Trusted)
}

// MergeDesc merges a p2p topic description's view of the peer.
func (u *User) MergeDesc(desc *Description) bool {
	if desc == nil {
		return false
	}
	return u.mergeProfile(desc.Updated, desc.Pub, desc.Trusted)
}
