package tinode

import (
	"encoding/json"
	"errors"
	"strings"
)

// AccessMode is a bitmask of topic access permissions.
type AccessMode uint

// Access mode constants.
const (
	ModeJoin    AccessMode = 1 << iota // user can join, i.e. {sub} (J:1)
	ModeRead                           // user can receive broadcasts ({data}, {info}) (R:2)
	ModeWrite                          // user can publish (W:4)
	ModePres                           // user can receive presence updates (P:8)
	ModeApprove                        // user can approve new members or evict existing members (A:0x10)
	ModeShare                          // user can invite new members (S:0x20)
	ModeDelete                         // user can hard-delete messages (D:0x40)
	ModeOwner                          // user is the owner (O:0x80) - full access
	ModeUnset                          // non-zero value to indicate unknown or undefined mode (0x100),
	// to make it different from ModeNone.

	// ModeNone is explicitly no access; requests to gain access are processed normally (N).
	ModeNone AccessMode = 0

	// ModeInvalid indicates an un-parseable mode. It never participates in
	// bitwise combination.
	ModeInvalid AccessMode = 0x100000
)

// ParseAcs parses the textual representation of an access mode. An empty
// string is ModeUnset, "N" is ModeNone, any unrecognized character makes the
// whole mode ModeInvalid.
func ParseAcs(mode string) AccessMode {
	if mode == "" {
		return ModeUnset
	}

	m0 := ModeNone
	for i := 0; i < len(mode); i++ {
		switch mode[i] {
		case 'J', 'j':
			m0 |= ModeJoin
		case 'R', 'r':
			m0 |= ModeRead
		case 'W', 'w':
			m0 |= ModeWrite
		case 'P', 'p':
			m0 |= ModePres
		case 'A', 'a':
			m0 |= ModeApprove
		case 'S', 's':
			m0 |= ModeShare
		case 'D', 'd':
			m0 |= ModeDelete
		case 'O', 'o':
			m0 |= ModeOwner
		case 'N', 'n':
			// N means explicitly no access, all bits cleared.
			return ModeNone
		default:
			return ModeInvalid
		}
	}
	return m0
}

func (m AccessMode) MarshalText() ([]byte, error) {
	if m == ModeNone {
		return []byte{'N'}, nil
	}
	if m == ModeUnset {
		return []byte{}, nil
	}
	if m == ModeInvalid {
		return nil, errors.New("AccessMode invalid")
	}

	var res []byte
	modes := []byte{'J', 'R', 'W', 'P', 'A', 'S', 'D', 'O'}
	for i, chr := range modes {
		if m&(1<<uint(i)) != 0 {
			res = append(res, chr)
		}
	}
	return res, nil
}

func (m *AccessMode) UnmarshalText(b []byte) error {
	m0 := ParseAcs(string(b))
	if m0 == ModeInvalid {
		return errors.New("AccessMode: invalid mode '" + string(b) + "'")
	}
	*m = m0
	return nil
}

// String returns the canonical letter encoding of the mode: "N" for no
// access, an empty string for unset or invalid.
func (m AccessMode) String() string {
	res, err := m.MarshalText()
	if err != nil {
		return ""
	}
	return string(res)
}

func (m AccessMode) MarshalJSON() ([]byte, error) {
	res, err := m.MarshalText()
	if err != nil {
		return nil, err
	}
	res = append([]byte{'"'}, res...)
	return append(res, '"'), nil
}

func (m *AccessMode) UnmarshalJSON(b []byte) error {
	if len(b) < 2 || b[0] != '"' || b[len(b)-1] != '"' {
		return errors.New("syntax error")
	}
	return m.UnmarshalText(b[1 : len(b)-1])
}

// IsDefined checks if the mode is a usable value: not unset, not explicit
// no-access and not invalid.
func (m AccessMode) IsDefined() bool {
	return m != ModeUnset && m != ModeNone && m != ModeInvalid
}

// ApplyDelta applies a mutation to the mode. A command starting with '+' or
// '-' sets or clears the listed permissions; any other command is a full
// replacement. The returned error leaves the original value unchanged: a
// single invalid fragment fails the entire update.
func (m AccessMode) ApplyDelta(umode string) (AccessMode, error) {
	if umode == "" {
		return m, nil
	}

	if umode[0] != '+' && umode[0] != '-' {
		m0 := ParseAcs(umode)
		if m0 == ModeInvalid {
			return m, errors.New("AccessMode: invalid mode '" + umode + "'")
		}
		return m0, nil
	}

	val := m
	for _, frag := range tokenizeCommand(umode) {
		m0 := ParseAcs(frag[1:])
		if m0 == ModeInvalid {
			return m, errors.New("AccessMode: invalid delta fragment '" + frag + "'")
		}
		if m0 == ModeNone || m0 == ModeUnset {
			continue
		}
		if frag[0] == '+' {
			if val == ModeUnset || val == ModeInvalid {
				val = m0
			} else {
				val |= m0
			}
		} else {
			val &^= m0
		}
	}
	return val, nil
}

// tokenizeCommand splits "+RW-D" into signed fragments "+RW", "-D".
func tokenizeCommand(command string) []string {
	var parts []string
	start := 0
	for i := 1; i < len(command); i++ {
		if command[i] == '+' || command[i] == '-' {
			parts = append(parts, command[start:i])
			start = i
		}
	}
	return append(parts, command[start:])
}

// Delta returns the mutation string converting mode o into mode n, e.g.
// JRPAS -> JRWS is "+W-PA". Zero delta is an empty string.
func (o AccessMode) Delta(n AccessMode) string {
	var removed, added string
	if o2n := o &^ n; o2n > 0 {
		if removed = o2n.String(); removed != "" {
			removed = "-" + removed
		}
	}
	if n2o := n &^ o; n2o > 0 {
		if added = n2o.String(); added != "" {
			added = "+" + added
		}
	}
	return added + removed
}

// BetterEqual checks if the grant mode allows everything the want mode requests.
func (grant AccessMode) BetterEqual(want AccessMode) bool {
	return grant&want == want
}

// And returns the intersection of two modes, ModeUnset when either side is
// unset or invalid.
func (m AccessMode) And(other AccessMode) AccessMode {
	if m == ModeUnset || m == ModeInvalid || other == ModeUnset || other == ModeInvalid {
		return ModeUnset
	}
	return m & other
}

// mergeMode overwrites dst with src when src carries a usable value.
// Reports whether dst actually changed.
func mergeMode(dst *AccessMode, src AccessMode) bool {
	if src == ModeUnset || src == ModeInvalid || src == *dst {
		return false
	}
	*dst = src
	return true
}

// IsJoiner checks if the Join flag is set.
func (m AccessMode) IsJoiner() bool {
	return m != ModeInvalid && m&ModeJoin != 0
}

// IsOwner checks if the user is the topic owner.
func (m AccessMode) IsOwner() bool {
	return m != ModeInvalid && m&ModeOwner != 0
}

// IsApprover checks if the user can approve new members.
func (m AccessMode) IsApprover() bool {
	return m != ModeInvalid && m&ModeApprove != 0
}

// IsAdmin checks if the user is an owner or approver.
func (m AccessMode) IsAdmin() bool {
	return m.IsOwner() || m.IsApprover()
}

// IsSharer checks if the user can invite others: admin or sharer flag.
func (m AccessMode) IsSharer() bool {
	return m.IsAdmin() || (m != ModeInvalid && m&ModeShare != 0)
}

// IsWriter checks if the user can publish.
func (m AccessMode) IsWriter() bool {
	return m != ModeInvalid && m&ModeWrite != 0
}

// IsReader checks if the user can receive broadcasts.
func (m AccessMode) IsReader() bool {
	return m != ModeInvalid && m&ModeRead != 0
}

// IsPresencer checks if the user receives presence updates.
func (m AccessMode) IsPresencer() bool {
	return m != ModeInvalid && m&ModePres != 0
}

// IsDeleter checks if the user can hard-delete messages.
func (m AccessMode) IsDeleter() bool {
	return m != ModeInvalid && m&ModeDelete != 0
}

// IsMuted checks if the user has disabled presence notifications.
func (m AccessMode) IsMuted() bool {
	return m != ModeUnset && m != ModeInvalid && !m.IsPresencer()
}

// AccessChange is a server-reported change to want/given permissions, each a
// mutation command or a full value.
type AccessChange struct {
	Want  string `json:"want,omitempty"`
	Given string `json:"given,omitempty"`
}

// Acs is the triple of access modes associated with a subscription: the mode
// the user wants, the mode the topic granted, and the effective mode.
type Acs struct {
	Want  AccessMode
	Given AccessMode
	Mode  AccessMode
}

// NewAcs creates an Acs with all modes unset.
func NewAcs() *Acs {
	return &Acs{Want: ModeUnset, Given: ModeUnset, Mode: ModeUnset}
}

// ParseAcsStrings builds an Acs from textual want/given values. The mode is
// computed as their intersection.
func ParseAcsStrings(want, given string) *Acs {
	a := &Acs{Want: ParseAcs(want), Given: ParseAcs(given)}
	a.Mode = a.Want.And(a.Given)
	return a
}

type acsWire struct {
	Mode  string `json:"mode,omitempty"`
	Want  string `json:"want,omitempty"`
	Given string `json:"given,omitempty"`
}

func (a Acs) MarshalJSON() ([]byte, error) {
	return json.Marshal(acsWire{
		Mode:  a.Mode.String(),
		Want:  a.Want.String(),
		Given: a.Given.String(),
	})
}

func (a *Acs) UnmarshalJSON(b []byte) error {
	var raw acsWire
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	a.Mode = ParseAcs(raw.Mode)
	a.Want = ParseAcs(raw.Want)
	a.Given = ParseAcs(raw.Given)
	return nil
}

// Merge merges another Acs into this one: defined incoming fields overwrite.
// When the incoming mode is not defined it is recomputed as want & given.
// Reports whether anything changed.
func (a *Acs) Merge(am *Acs) bool {
	changed := 0
	if am != nil {
		if mergeMode(&a.Given, am.Given) {
			changed++
		}
		if mergeMode(&a.Want, am.Want) {
			changed++
		}
		if mergeMode(&a.Mode, am.Mode) {
			changed++
		}
	}
	if !a.Mode.IsDefined() {
		if m2 := a.Want.And(a.Given); m2 != a.Mode {
			a.Mode = m2
			changed++
		}
	}
	return changed > 0
}

// Update applies a server-reported access change. The whole update fails
// without mutation if any fragment is invalid.
func (a *Acs) Update(ac *AccessChange) (bool, error) {
	if ac == nil {
		return false, nil
	}
	want, given := a.Want, a.Given
	var err error
	if ac.Want != "" {
		if want, err = a.Want.ApplyDelta(ac.Want); err != nil {
			return false, err
		}
	}
	if ac.Given != "" {
		if given, err = a.Given.ApplyDelta(ac.Given); err != nil {
			return false, err
		}
	}

	changed := want != a.Want || given != a.Given
	a.Want, a.Given = want, given
	if mode := want.And(given); mode != a.Mode {
		a.Mode = mode
		changed = true
	}
	return changed, nil
}

// Equal compares two Acs field by field.
func (a *Acs) Equal(other *Acs) bool {
	if a == nil || other == nil {
		return a == other
	}
	return a.Mode == other.Mode && a.Want == other.Want && a.Given == other.Given
}

// Serialize encodes the Acs as "mode,want,given" for storage.
func (a *Acs) Serialize() string {
	return a.Mode.String() + "," + a.Want.String() + "," + a.Given.String()
}

// DeserializeAcs is the inverse of Serialize. It requires exactly three
// comma-separated parts.
func DeserializeAcs(data string) *Acs {
	parts := strings.Split(data, ",")
	if len(parts) != 3 {
		return nil
	}
	return &Acs{
		Mode:  ParseAcs(parts[0]),
		Want:  ParseAcs(parts[1]),
		Given: ParseAcs(parts[2]),
	}
}

// Copy returns a copy of the Acs, nil-safe.
func (a *Acs) Copy() *Acs {
	if a == nil {
		return nil
	}
	c := *a
	return &c
}

// Defacs holds a topic's default access modes for authenticated and
// anonymous users.
type Defacs struct {
	Auth AccessMode
	Anon AccessMode
}

// NewDefacs creates default access modes from their textual representations.
func NewDefacs(auth, anon string) *Defacs {
	return &Defacs{Auth: ParseAcs(auth), Anon: ParseAcs(anon)}
}

type defacsWire struct {
	Auth string `json:"auth,omitempty"`
	Anon string `json:"anon,omitempty"`
}

func (d Defacs) MarshalJSON() ([]byte, error) {
	return json.Marshal(defacsWire{Auth: d.Auth.String(), Anon: d.Anon.String()})
}

func (d *Defacs) UnmarshalJSON(b []byte) error {
	var raw defacsWire
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	d.Auth = ParseAcs(raw.Auth)
	d.Anon = ParseAcs(raw.Anon)
	return nil
}

// Merge merges another Defacs into this one. Reports whether anything changed.
func (d *Defacs) Merge(other *Defacs) bool {
	changed := 0
	if other != nil {
		if mergeMode(&d.Auth, other.Auth) {
			changed++
		}
		if mergeMode(&d.Anon, other.Anon) {
			changed++
		}
	}
	return changed > 0
}

// Serialize encodes the Defacs as "auth,anon" for storage.
func (d *Defacs) Serialize() string {
	return d.Auth.String() + "," + d.Anon.String()
}

// DeserializeDefacs is the inverse of Serialize.
func DeserializeDefacs(data string) *Defacs {
	parts := strings.Split(data, ",")
	if len(parts) != 2 {
		return nil
	}
	return &Defacs{Auth: ParseAcs(parts[0]), Anon: ParseAcs(parts[1])}
}

// Copy returns a copy of the Defacs, nil-safe.
func (d *Defacs) Copy() *Defacs {
	if d == nil {
		return nil
	}
	c := *d
	return &c
}
