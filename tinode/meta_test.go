package tinode

import (
	"testing"
	"time"
)

func ts(offset int) *time.Time {
	t := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC).Add(time.Duration(offset) * time.Minute)
	return &t
}

func TestLastSeenMerge(t *testing.T) {
	ls := LastSeen{When: ts(10), UA: "old-agent"}

	if ls.Merge(nil) || ls.Merge(&LastSeen{UA: "no-time"}) {
		t.Error("merge without a timestamp reported a change")
	}
	if ls.Merge(&LastSeen{When: ts(5), UA: "older"}) {
		t.Error("older record reported a change")
	}
	if ls.UA != "old-agent" {
		t.Errorf("UA = %q, want old-agent", ls.UA)
	}

	if !ls.Merge(&LastSeen{When: ts(20), UA: "new-agent"}) {
		t.Error("newer record reported no change")
	}
	if !ls.When.Equal(*ts(20)) || ls.UA != "new-agent" {
		t.Errorf("unexpected result %v %q", ls.When, ls.UA)
	}
}

func TestDescriptionMerge(t *testing.T) {
	d := Description{
		Created: ts(0),
		Updated: ts(0),
		Seq:     10,
		Read:    8,
		Recv:    9,
		Pub:     "old name",
	}

	// A strictly newer update replaces payloads, counters only grow.
	changed := d.Merge(&Description{
		Created: ts(5), // ignored, created is fill-only
		Updated: ts(5),
		Seq:     12,
		Read:    5, // ignored, smaller
		Pub:     "new name",
	})
	if !changed {
		t.Error("merge reported no change")
	}
	if !d.Created.Equal(*ts(0)) {
		t.Errorf("created was overwritten: %v", d.Created)
	}
	if !d.Updated.Equal(*ts(5)) || d.Seq != 12 || d.Read != 8 || d.Recv != 9 {
		t.Errorf("unexpected result %+v", d)
	}
	if d.Pub != "new name" {
		t.Errorf("pub = %v, want 'new name'", d.Pub)
	}

	// An older update must not regress anything.
	if d.Merge(&Description{Updated: ts(1), Seq: 11}) {
		t.Error("stale merge reported a change")
	}
	if !d.Updated.Equal(*ts(5)) || d.Seq != 12 {
		t.Errorf("stale merge regressed the description: %+v", d)
	}

	// Access modes are adopted when absent.
	if !d.Merge(&Description{Acs: ParseAcsStrings("JRWP", "JRWP")}) {
		t.Error("acs merge reported no change")
	}
	if d.Acs == nil || d.Acs.Mode.String() != "JRWP" {
		t.Errorf("unexpected acs %v", d.Acs)
	}
}

func TestDescriptionMergeSub(t *testing.T) {
	d := Description{Updated: ts(0), Seq: 3}
	sub := &Subscription{
		Updated: ts(10),
		Acs:     ParseAcsStrings("JRWP", "JRWP"),
		Seq:     7,
		Read:    4,
		Pub:     "contact",
	}
	if !d.MergeSub(sub) {
		t.Error("merge reported no change")
	}
	if !d.Updated.Equal(*ts(10)) || d.Seq != 7 || d.Read != 4 || d.Pub != "contact" {
		t.Errorf("unexpected result %+v", d)
	}
	if d.Acs == nil || !d.Acs.Equal(sub.Acs) {
		t.Errorf("unexpected acs %v", d.Acs)
	}
}

func TestDescriptionMergeSetDesc(t *testing.T) {
	d := Description{Pub: "before"}
	changed := d.MergeSetDesc(&MsgSetDesc{
		Pub:    "after",
		Priv:   map[string]any{"comment": "pinned"},
		Defacs: NewDefacs("JRWPS", "JR"),
	})
	if !changed {
		t.Error("merge reported no change")
	}
	if d.Pub != "after" || d.Priv == nil || d.Defacs == nil || d.Defacs.Auth.String() != "JRWPS" {
		t.Errorf("unexpected result %+v", d)
	}
	if d.MergeSetDesc(nil) {
		t.Error("nil merge reported a change")
	}
}

func TestSubscriptionMerge(t *testing.T) {
	s := Subscription{User: "usrAlice", Updated: ts(0), Pub: "Alice", Read: 5}

	// Newer update carries the public payload.
	if !s.Merge(&Subscription{Updated: ts(10), Pub: "Alice B.", Read: 7}) {
		t.Error("merge reported no change")
	}
	if s.Pub != "Alice B." || s.Read != 7 || !s.Updated.Equal(*ts(10)) {
		t.Errorf("unexpected result %+v", s)
	}

	// A stale update does not replace the payload but fills an absent one.
	if s.Merge(&Subscription{Updated: ts(1), Pub: "stale"}) {
		t.Error("stale merge reported a change")
	}
	if s.Pub != "Alice B." {
		t.Errorf("stale merge replaced pub: %v", s.Pub)
	}

	empty := Subscription{}
	empty.Merge(&Subscription{Pub: "filled"})
	if empty.Pub != "filled" {
		t.Errorf("absent pub was not filled: %v", empty.Pub)
	}

	// Presence and deletion marks are volatile, always taken.
	online := true
	if !s.Merge(&Subscription{Seq: 8, Online: &online}) {
		t.Error("merge reported no change")
	}
	if !s.IsOnline() || s.Seq != 8 {
		t.Errorf("unexpected result %+v", s)
	}
	s.Merge(&Subscription{Deleted: ts(30), Seq: 8})
	if s.Deleted == nil {
		t.Error("deletion mark was not taken")
	}
}

func TestSubscriptionUniqueID(t *testing.T) {
	cases := []struct {
		user, topic, want string
	}{
		{"usrAlice", "", "usrAlice"},
		{"", "grpChat", "grpChat"},
		{"usrAlice", "grpChat", "grpChat:usrAlice"},
	}
	for _, tc := range cases {
		s := Subscription{User: tc.user, Topic: tc.topic}
		if got := s.UniqueID(); got != tc.want {
			t.Errorf("UniqueID(%q, %q) = %q, want %q", tc.user, tc.topic, got, tc.want)
		}
	}
}

func TestSubscriptionUpdateAccessMode(t *testing.T) {
	var s Subscription
	if err := s.UpdateAccessMode(&AccessChange{Want: "JRW", Given: "JRW"}); err != nil {
		t.Fatal(err)
	}
	if s.Acs == nil || s.Acs.Mode.String() != "JRW" {
		t.Errorf("unexpected acs %v", s.Acs)
	}
	if err := s.UpdateAccessMode(&AccessChange{Given: "-W"}); err != nil {
		t.Fatal(err)
	}
	if s.Acs.Mode.String() != "JR" {
		t.Errorf("mode = %q, want JR", s.Acs.Mode.String())
	}
}

func TestUserMerge(t *testing.T) {
	u := NewUser(&Subscription{User: "usrAlice", Updated: ts(0), Pub: "Alice"})
	if u.UID != "usrAlice" || u.Pub != "Alice" {
		t.Fatalf("unexpected user %+v", u)
	}

	if !u.Merge(&Subscription{User: "usrAlice", Updated: ts(10), Pub: "Alice B."}) {
		t.Error("merge reported no change")
	}
	if u.Pub != "Alice B." {
		t.Errorf("pub = %v, want 'Alice B.'", u.Pub)
	}

	// A record for another user must be rejected.
	if u.Merge(&Subscription{User: "usrBob", Updated: ts(20), Pub: "Bob"}) {
		t.Error("merge accepted a different user")
	}
	if u.Pub != "Alice B." {
		t.Errorf("foreign merge replaced pub: %v", u.Pub)
	}

	if !u.MergeDesc(&Description{Updated: ts(30), Pub: "Alice C."}) {
		t.Error("desc merge reported no change")
	}
	if u.Pub != "Alice C." {
		t.Errorf("pub = %v, want 'Alice C.'", u.Pub)
	}
}
