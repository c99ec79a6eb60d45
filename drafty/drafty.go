// Package drafty implements the Drafty rich message format: a plain text
// string with out-of-band formatting styles and entity attachments.
//
// A document is either "plain" (just text, sent over the wire as a bare JSON
// string) or formatted: {"txt": "...", "fmt": [...], "ent": [...]}. Styles
// reference ranges of text by grapheme cluster offsets; entities carry
// attachment payloads addressed from styles by index.
package drafty

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"reflect"
)

// MimeType is the content type of a formatted message body.
const MimeType = "text/x-drafty"

// JSONMimeType is the content type of JSON form-response attachments.
const JSONMimeType = "application/json"

const (
	// Maximum size of an entity data field in a preview, in bytes.
	maxPreviewDataSize = 64
	// Maximum number of attachments to keep in a preview.
	maxPreviewAttachments = 3
)

var (
	// ErrInvalidContent is returned when a document fails to decode.
	ErrInvalidContent = errors.New("drafty: invalid format")
	// ErrInvalidIndex is returned when an insertion position is out of bounds.
	ErrInvalidIndex = errors.New("drafty: invalid position")
	// ErrInvalidArgument is returned when a builder is given unusable data.
	ErrInvalidArgument = errors.New("drafty: invalid argument")
)

// Styles which may have zero length.
var voidStyles = map[string]bool{"BR": true, "EX": true, "HD": true}

// Entity data field names which are kept when copying entities.
var knownDataFields = []string{"act", "duration", "height", "incoming", "mime", "name",
	"premime", "preview", "preref", "ref", "size", "state", "title", "url", "val", "width"}

// Formatting weights, used to break ties between spans covering the same range.
var fmtWeights = map[string]int{"QQ": 1000}

// Style is an inline formatting span or a reference to an entity.
// Tp is set for inline styles; Key references an entity when Tp is empty.
type Style struct {
	Tp  string `json:"tp,omitempty"`
	At  int    `json:"at,omitempty"`
	Len int    `json:"len,omitempty"`
	Key int    `json:"key,omitempty"`
}

// UnmarshalJSON decodes a style leniently: malformed numeric fields are
// treated as absent rather than failing the whole document.
func (s *Style) UnmarshalJSON(b []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	s.Tp, _ = raw["tp"].(string)
	s.At = intFromNumeric(raw["at"])
	s.Len = intFromNumeric(raw["len"])
	s.Key = intFromNumeric(raw["key"])
	return nil
}

// Entity is a styled attachment payload: an image, file, link, mention, etc.
type Entity struct {
	Tp   string         `json:"tp,omitempty"`
	Data map[string]any `json:"data,omitempty"`
}

// Entity types which carry the inline payload in "val" as base64.
var binaryPayloadTypes = map[string]bool{"EX": true, "IM": true, "AU": true, "VD": true}

// UnmarshalJSON decodes an entity, converting an inline base64 "val" payload
// to raw bytes. An undecodable payload is useless and is dropped.
func (e *Entity) UnmarshalJSON(b []byte) error {
	var raw struct {
		Tp   string         `json:"tp"`
		Data map[string]any `json:"data"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	e.Tp = raw.Tp
	e.Data = raw.Data
	if binaryPayloadTypes[e.Tp] {
		if val, ok := e.Data["val"].(string); ok {
			if bits, err := base64.StdEncoding.DecodeString(val); err == nil {
				e.Data["val"] = bits
			} else {
				delete(e.Data, "val")
			}
		}
	}
	return nil
}

// copyLight returns a copy of the entity with data restricted to the light subset.
func (e *Entity) copyLight() Entity {
	var lightData = []string{"mime", "name", "width", "height", "size"}
	var dc map[string]any
	if len(e.Data) > 0 {
		dc = map[string]any{}
		for _, key := range lightData {
			if val, ok := e.Data[key]; ok {
				dc[key] = val
			}
		}
		if len(dc) == 0 {
			dc = nil
		}
	}
	return Entity{Tp: e.Tp, Data: dc}
}

// Document is a Drafty message body.
type Document struct {
	Txt string   `json:"txt,omitempty"`
	Fmt []Style  `json:"fmt,omitempty"`
	Ent []Entity `json:"ent,omitempty"`
}

// New returns a document with the given text, no markup parsing performed.
func New(plainText string) *Document {
	return &Document{Txt: plainText}
}

// IsPlain reports whether the document carries no markup and can be
// represented by a plain string without loss.
func (d *Document) IsPlain() bool {
	return d.Fmt == nil && d.Ent == nil
}

// IsVoid checks if the given style type is allowed to have zero length.
func IsVoid(tp string) bool {
	return voidStyles[tp]
}

func (d *Document) String() string {
	return d.Txt
}

// length returns document length in grapheme clusters.
func (d *Document) length() int {
	return graphemeCount(d.Txt)
}

// MarshalJSON encodes a plain document as a bare string, otherwise as an object.
func (d *Document) MarshalJSON() ([]byte, error) {
	if d.IsPlain() {
		return json.Marshal(d.Txt)
	}
	type raw Document
	return json.Marshal((*raw)(d))
}

// UnmarshalJSON tries the bare-string form first, then the object form.
func (d *Document) UnmarshalJSON(b []byte) error {
	var txt string
	if err := json.Unmarshal(b, &txt); err == nil {
		*d = Document{Txt: txt}
		return nil
	}
	type raw Document
	var r raw
	if err := json.Unmarshal(b, &r); err != nil {
		return ErrInvalidContent
	}
	*d = Document(r)
	return nil
}

// Equal compares two documents field by field.
func (d *Document) Equal(other *Document) bool {
	if d == nil || other == nil {
		return d == other
	}
	return d.Txt == other.Txt &&
		reflect.DeepEqual(d.Fmt, other.Fmt) &&
		reflect.DeepEqual(d.Ent, other.Ent)
}

// EntityAt returns the entity referenced by the given style, if any.
func (d *Document) EntityAt(s Style) *Entity {
	if s.Key < 0 || s.Key >= len(d.Ent) {
		return nil
	}
	return &d.Ent[s.Key]
}

// HasRefEntity checks if any entity carries an external reference.
func (d *Document) HasRefEntity() bool {
	for i := range d.Ent {
		if _, ok := d.Ent[i].Data["ref"]; ok {
			return true
		}
	}
	return false
}

// EntReferences collects attachment references for use in a message header.
func (d *Document) EntReferences() []string {
	var result []string
	for i := range d.Ent {
		if ref, ok := d.Ent[i].Data["ref"].(string); ok {
			result = append(result, ref)
		}
		if preref, ok := d.Ent[i].Data["preref"].(string); ok {
			result = append(result, preref)
		}
	}
	return result
}

// prepareForEntity appends a style pointing at the next entity slot.
func (d *Document) prepareForEntity(at, length int) {
	if d.Fmt == nil {
		d.Fmt = []Style{}
	}
	if d.Ent == nil {
		d.Ent = []Entity{}
	}
	d.Fmt = append(d.Fmt, Style{At: at, Len: length, Key: len(d.Ent)})
}

// InsertImage inserts an inline or referenced image at the given position.
// Either bits or refurl must be given.
func (d *Document) InsertImage(at int, mime string, bits []byte, width, height int,
	fname, refurl string, size int) (*Document, error) {
	if bits == nil && refurl == "" {
		return nil, ErrInvalidArgument
	}
	if at < 0 || d.length() <= at {
		return nil, ErrInvalidIndex
	}

	d.prepareForEntity(at, 1)

	data := map[string]any{
		"width":  width,
		"height": height,
	}
	if mime != "" {
		data["mime"] = mime
	}
	if bits != nil {
		data["val"] = bits
	}
	if fname != "" {
		data["name"] = fname
	}
	if refurl != "" {
		data["ref"] = refurl
	}
	if size > 0 {
		data["size"] = size
	}
	d.Ent = append(d.Ent, Entity{Tp: "IM", Data: data})

	return d, nil
}

// InsertAudio inserts an audio recording at the given position.
func (d *Document) InsertAudio(at int, mime string, bits, preview []byte, duration int,
	fname, refurl string, size int) (*Document, error) {
	if bits == nil && refurl == "" {
		return nil, ErrInvalidArgument
	}
	if at < 0 || d.length() <= at {
		return nil, ErrInvalidIndex
	}

	d.prepareForEntity(at, 1)

	data := map[string]any{
		"preview":  preview,
		"duration": duration,
	}
	if mime != "" {
		data["mime"] = mime
	}
	if bits != nil {
		data["val"] = bits
	}
	if fname != "" {
		data["name"] = fname
	}
	if refurl != "" {
		data["ref"] = refurl
	}
	if size > 0 {
		data["size"] = size
	}
	d.Ent = append(d.Ent, Entity{Tp: "AU", Data: data})

	return d, nil
}

// InsertVideo inserts a video at the given position.
func (d *Document) InsertVideo(at int, mime string, bits []byte, refurl string,
	duration, width, height int, fname string, size int,
	preMime string, preview []byte, previewRef string) (*Document, error) {
	if bits == nil && refurl == "" {
		return nil, ErrInvalidArgument
	}
	if at < 0 || d.length() <= at {
		return nil, ErrInvalidIndex
	}

	d.prepareForEntity(at, 1)

	data := map[string]any{
		"duration": duration,
		"height":   height,
		"width":    width,
	}
	if mime != "" {
		data["mime"] = mime
	}
	if bits != nil {
		data["val"] = bits
	}
	if refurl != "" {
		data["ref"] = refurl
	}
	if fname != "" {
		data["name"] = fname
	}
	if size > 0 {
		data["size"] = size
	}
	if preMime != "" {
		data["premime"] = preMime
	}
	if preview != nil {
		data["preview"] = preview
	}
	if previewRef != "" {
		data["preref"] = previewRef
	}
	d.Ent = append(d.Ent, Entity{Tp: "VD", Data: data})

	return d, nil
}

// AttachFile attaches a file to the document, inline or by reference.
// Attachments are not part of the text flow: the style is written with at=-1.
func (d *Document) AttachFile(mime string, bits []byte, fname, refurl string, size int) (*Document, error) {
	if bits == nil && refurl == "" {
		return nil, ErrInvalidArgument
	}

	d.prepareForEntity(-1, 1)

	data := map[string]any{}
	if mime != "" {
		data["mime"] = mime
	}
	if bits != nil {
		data["val"] = bits
	}
	if fname != "" {
		data["name"] = fname
	}
	if refurl != "" {
		data["ref"] = refurl
	}
	if size > 0 {
		data["size"] = size
	}
	d.Ent = append(d.Ent, Entity{Tp: "EX", Data: data})

	return d, nil
}

// AttachJSON attaches an object as JSON, intended as a form response.
func (d *Document) AttachJSON(json map[string]any) *Document {
	d.prepareForEntity(-1, 1)
	d.Ent = append(d.Ent, Entity{Tp: "EX", Data: map[string]any{
		"mime": JSONMimeType,
		"val":  json,
	}})
	return d
}

// InsertButton inserts an interactive form button. The button name is an
// opaque ID returned to the server when the button is pressed. Action type is
// either "url" or "pub".
func (d *Document) InsertButton(at, length int, name, actionType, actionValue, refurl string) (*Document, error) {
	if actionType != "url" && actionType != "pub" {
		return nil, ErrInvalidArgument
	}
	if actionType == "url" && refurl == "" {
		return nil, ErrInvalidArgument
	}

	d.prepareForEntity(at, length)

	data := map[string]any{"act": actionType}
	if name != "" {
		data["name"] = name
	}
	if actionValue != "" {
		data["val"] = actionValue
	}
	if actionType == "url" {
		data["ref"] = refurl
	}
	d.Ent = append(d.Ent, Entity{Tp: "BN", Data: data})

	return d, nil
}

// Mention creates a document consisting of a single mention of the named user.
func Mention(name, uid string) *Document {
	return &Document{
		Txt: name,
		Fmt: []Style{{At: 0, Len: graphemeCount(name), Key: 0}},
		Ent: []Entity{{Tp: "MN", Data: map[string]any{"val": uid}}},
	}
}

// VideoCall creates a document representing a video call.
func VideoCall() *Document {
	return &Document{
		Txt: " ",
		Fmt: []Style{{At: 0, Len: 1, Key: 0}},
		Ent: []Entity{{Tp: "VC"}},
	}
}

// Quote creates a quote of the given document: a mention header, a line
// break, then the body, all wrapped into a QQ block.
func Quote(header, authorUID string, body *Document) *Document {
	return Mention(header, authorUID).AppendLineBreak().Append(body).WrapInto("QQ")
}

// WrapInto wraps the entire document into the given style.
func (d *Document) WrapInto(style string) *Document {
	if d.Fmt == nil {
		d.Fmt = []Style{}
	}
	d.Fmt = append(d.Fmt, Style{Tp: style, At: 0, Len: d.length()})
	return d
}

// AppendLineBreak appends a BR style pointing at a trailing space.
func (d *Document) AppendLineBreak() *Document {
	if d.Fmt == nil {
		d.Fmt = []Style{}
	}
	d.Fmt = append(d.Fmt, Style{Tp: "BR", At: d.length(), Len: 1})
	d.Txt += " "
	return d
}

// Append appends another document to this one, shifting its styles and
// re-keying its entities.
func (d *Document) Append(that *Document) *Document {
	if that == nil {
		return d
	}
	base := d.length()
	d.Txt += that.Txt

	if that.Fmt != nil {
		if d.Fmt == nil {
			d.Fmt = []Style{}
		}
		if that.Ent != nil && d.Ent == nil {
			d.Ent = []Entity{}
		}
		for _, src := range that.Fmt {
			style := Style{At: src.At + base, Len: src.Len}
			// Attachments stay outside of the normal rendering flow.
			if src.At == -1 {
				style.At = -1
				style.Len = 0
			}
			if src.Tp != "" {
				style.Tp = src.Tp
			} else if src.Key >= 0 && src.Key < len(that.Ent) {
				style.Key = len(d.Ent)
				d.Ent = append(d.Ent, that.Ent[src.Key])
			}
			d.Fmt = append(d.Fmt, style)
		}
	}

	return d
}

// Copy returns a deep-enough copy of the document.
func (d *Document) Copy() *Document {
	return (&Document{}).Append(d)
}

// UpdateVideoCall updates the video call entity with state reported by the server.
func (d *Document) UpdateVideoCall(params map[string]any, incoming bool) {
	if len(d.Fmt) == 0 || params == nil {
		return
	}
	st := &d.Fmt[0]
	if st.Tp == "VC" {
		// Just a format, convert to format + entity.
		st.Tp = ""
		st.Key = 0
		d.Ent = []Entity{{Tp: "VC", Data: map[string]any{}}}
	}
	if len(d.Ent) == 0 || d.Ent[0].Tp != "VC" {
		return
	}
	e := &d.Ent[0]
	if e.Data == nil {
		e.Data = map[string]any{}
	}
	e.Data["state"] = params["webrtc"]
	e.Data["duration"] = params["webrtc-duration"]
	e.Data["incoming"] = incoming
}

// Serialize converts the document to a string for database storage: the bare
// text when plain, the JSON object form otherwise.
func (d *Document) Serialize() string {
	if d.IsPlain() {
		return d.Txt
	}
	data, err := json.Marshal(d)
	if err != nil {
		return ""
	}
	return string(data)
}

// Deserialize is the inverse of Serialize. A string which does not decode as
// a document object is taken as plain text.
func Deserialize(data string) *Document {
	if len(data) > 0 && data[0] == '{' {
		var d Document
		if err := json.Unmarshal([]byte(data), &d); err == nil {
			return &d
		}
	}
	return &Document{Txt: data}
}

// intFromNumeric converts a decoded JSON numeric value to an int.
func intFromNumeric(num any) int {
	switch i := num.(type) {
	case int:
		return i
	case int64:
		return int(i)
	case float64:
		return int(i)
	case json.Number:
		val, _ := i.Int64()
		return int(val)
	default:
		return 0
	}
}
