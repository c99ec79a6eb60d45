package drafty

import (
	"encoding/json"
	"testing"
)

var validInputs = []string{
	`{
		"ent":[{"data":{"mime":"text/plain","name":"hello.txt","val":"dGVzdA=="},"tp":"EX"}],
		"fmt":[{"at":-1, "key":0}]
	}`,
	`{
		"ent":[{"data":{"url":"https://www.youtube.com/watch?v=dQw4w9WgXcQ"},"tp":"LN"}],
		"fmt":[{"len":22}],
		"txt":"https://api.tinode.co/"
	}`,
	`{
		"ent":[{"data":{"url":"https://api.tinode.co/"},"tp":"LN"}],
		"fmt":[{"len":22}],
		"txt":"https://api.tinode.co/"
	}`,
	`{
		"ent":[{"data":{"height":213,"mime":"image/jpeg","name":"roses.jpg","val":"aW1hZ2ViaXRz","width":638},"tp":"IM"}],
		"fmt":[{"len":1}],
		"txt":" "
	}`,
	`{
		"txt":"This text is formatted and deleted too",
		"fmt":[{"at":5,"len":4,"tp":"ST"},{"at":13,"len":9,"tp":"EM"},{"at":35,"len":3,"tp":"ST"},{"at":27,"len":11,"tp":"DL"}]
	}`,
	`{
		"txt":"мультибайтовый юникод",
		"fmt":[{"len":14,"tp":"ST"},{"at":15,"len":6,"tp":"EM"}]
	}`,
}

func decodeDoc(t *testing.T, i int, src string) *Document {
	t.Helper()
	var doc Document
	if err := json.Unmarshal([]byte(src), &doc); err != nil {
		t.Fatalf("%d failed to decode: %s", i, err)
	}
	return &doc
}

func TestToPlainText(t *testing.T) {
	expect := []string{
		"[FILE 'hello.txt']",
		"[https://api.tinode.co/](https://www.youtube.com/watch?v=dQw4w9WgXcQ)",
		"https://api.tinode.co/",
		"[IMAGE 'roses.jpg']",
		"This *text* is _formatted_ and ~deleted *too*~",
		"*мультибайтовый* _юникод_",
	}

	for i := range validInputs {
		doc := decodeDoc(t, i, validInputs[i])
		if res := doc.ToPlainText(); res != expect[i] {
			t.Errorf("%d output '%s' does not match '%s'", i, res, expect[i])
		}
	}
}

func TestDecodeInvalid(t *testing.T) {
	invalidInputs := []string{
		`{"txt":true}`,
		`[1,2,3]`,
		`{"txt":"abc","fmt":true}`,
	}
	for i := range invalidInputs {
		var doc Document
		if err := json.Unmarshal([]byte(invalidInputs[i]), &doc); err == nil {
			t.Errorf("invalid input %d did not cause an error", i)
		}
	}
}

func TestInvalidStylesDropped(t *testing.T) {
	// Out of range, negative length and dangling entity references are
	// silently removed instead of breaking the document.
	src := `{
		"txt":"This should not fail",
		"fmt":[{"at":50,"len":-45,"tp":"ST"},{"at":0,"len":50,"tp":"ST"},{"at":0,"len":1,"key":5}]
	}`
	doc := decodeDoc(t, 0, src)
	if res := doc.ToPlainText(); res != "This should not fail" {
		t.Errorf("output '%s' does not match 'This should not fail'", res)
	}
}

func TestPreview(t *testing.T) {
	expect := []string{
		`{"txt":" ","fmt":[{"len":1}],"ent":[{"tp":"EX","data":{"mime":"text/plain","name":"hello.txt","val":"dGVzdA=="}}]}`,
		`{"txt":"https://api.ti…","fmt":[{"len":15}],"ent":[{"tp":"LN","data":{"url":"https://www.youtube.com/watch?v=dQw4w9WgXcQ"}}]}`,
		`{"txt":"https://api.ti…","fmt":[{"len":15}],"ent":[{"tp":"LN","data":{"url":"https://api.tinode.co/"}}]}`,
		`{"txt":" ","fmt":[{"len":1}],"ent":[{"tp":"IM","data":{"height":213,"mime":"image/jpeg","name":"roses.jpg","val":"aW1hZ2ViaXRz","width":638}}]}`,
		`{"txt":"This text is f…","fmt":[{"tp":"ST","at":5,"len":4},{"tp":"EM","at":13,"len":2}]}`,
		`{"txt":"мультибайтовый…","fmt":[{"tp":"ST","len":14}]}`,
	}

	for i := range validInputs {
		doc := decodeDoc(t, i, validInputs[i])
		if res := doc.Preview(15).Serialize(); res != expect[i] {
			t.Errorf("%d output '%s' does not match '%s'", i, res, expect[i])
		}
	}
}

func TestShorten(t *testing.T) {
	doc := decodeDoc(t, 0, validInputs[4])
	expect := `{"txt":"This text is format…","fmt":[{"tp":"ST","at":5,"len":4},{"tp":"EM","at":13,"len":7}]}`
	if res := doc.Shorten(20, false).Serialize(); res != expect {
		t.Errorf("output '%s' does not match '%s'", res, expect)
	}
}

func TestParse(t *testing.T) {
	inputs := []string{
		"this is *bold*, `code` and _italic_, ~strike~",
		"combined *bold and _italic_*",
		"line one\nline two",
		"visit www.example.com and mention @alice, #golang rocks",
		"tinode.co and tinode.co",
		"2 * 3 * 4",
		"*ab*",
		"no markup here",
	}
	expect := []string{
		`{"txt":"this is bold, code and italic, strike","fmt":[{"tp":"ST","at":8,"len":4},{"tp":"CO","at":14,"len":4},{"tp":"EM","at":23,"len":6},{"tp":"DL","at":31,"len":6}]}`,
		`{"txt":"combined bold and italic","fmt":[{"tp":"EM","at":18,"len":6},{"tp":"ST","at":9,"len":15}]}`,
		`{"txt":"line one line two","fmt":[{"tp":"BR","at":8,"len":1}]}`,
		`{"txt":"visit www.example.com and mention @alice, #golang rocks","fmt":[{"at":6,"len":15},{"at":34,"len":6,"key":1},{"at":42,"len":7,"key":2}],"ent":[{"tp":"LN","data":{"url":"http://www.example.com"}},{"tp":"MN","data":{"val":"alice"}},{"tp":"HT","data":{"val":"golang"}}]}`,
		`{"txt":"tinode.co and tinode.co","fmt":[{"len":9},{"at":14,"len":9}],"ent":[{"tp":"LN","data":{"url":"http://tinode.co"}}]}`,
		`2 * 3 * 4`,
		`{"txt":"ab","fmt":[{"tp":"ST","len":2}]}`,
		`no markup here`,
	}

	for i := range inputs {
		if res := Parse(inputs[i]).Serialize(); res != expect[i] {
			t.Errorf("%d output '%s' does not match '%s'", i, res, expect[i])
		}
	}
}

func TestToMarkdown(t *testing.T) {
	src := "this is *bold*, `code` and _italic_, ~strike~"
	if res := Parse(src).ToMarkdown(false); res != src {
		t.Errorf("output '%s' does not match '%s'", res, src)
	}
}

func TestForwarded(t *testing.T) {
	src := `{
		"txt":"➦ Alice hi there",
		"fmt":[{"at":0,"len":7,"key":0},{"tp":"BR","at":7,"len":1}],
		"ent":[{"tp":"MN","data":{"val":"usrAlice"}}]
	}`
	doc := decodeDoc(t, 0, src)
	if res := doc.Forwarded().Serialize(); res != "hi there" {
		t.Errorf("output '%s' does not match 'hi there'", res)
	}
}

func TestReply(t *testing.T) {
	// The forwarding mention collapses to a bare '➦' with no entity behind it.
	src := `{
		"txt":"➦ Alice hi there",
		"fmt":[{"at":0,"len":7,"key":0},{"tp":"BR","at":7,"len":1}],
		"ent":[{"tp":"MN","data":{"val":"usrAlice"}}]
	}`
	doc := decodeDoc(t, 0, src)
	expect := `{"txt":"➦ hi there","fmt":[{"tp":"MN","len":1}]}`
	if res := doc.Reply(15, 3).Serialize(); res != expect {
		t.Errorf("output '%s' does not match '%s'", res, expect)
	}

	// Quoted content is dropped from the reply.
	src = `{"txt":"alpha beta","fmt":[{"tp":"QQ","at":0,"len":5}]}`
	doc = decodeDoc(t, 1, src)
	if res := doc.Reply(15, 3).Serialize(); res != " beta" {
		t.Errorf("output '%s' does not match ' beta'", res)
	}
}

func TestSerializeRoundTrip(t *testing.T) {
	inputs := []string{
		"this is *bold*, `code` and _italic_, ~strike~",
		"visit www.example.com and mention @alice, #golang rocks",
		"no markup here",
	}
	for i := range inputs {
		doc := Parse(inputs[i])
		back := Deserialize(doc.Serialize())
		if !doc.Equal(back) {
			t.Errorf("%d round trip mismatch: '%s' vs '%s'", i, doc.Serialize(), back.Serialize())
		}
	}
}

func TestInsertImage(t *testing.T) {
	doc := New(" ")
	if _, err := doc.InsertImage(0, "image/png", make([]byte, 100), 16, 16, "icon.png", "", 0); err != nil {
		t.Fatal(err)
	}
	if res := doc.ToPlainText(); res != "[IMAGE 'icon.png']" {
		t.Errorf("output '%s' does not match \"[IMAGE 'icon.png']\"", res)
	}

	// Shortening with stripping drops the inline payload but keeps the
	// lightweight metadata.
	expect := `{"txt":" ","fmt":[{"len":1}],"ent":[{"tp":"IM","data":{"height":16,"mime":"image/png","name":"icon.png","width":16}}]}`
	if res := doc.Shorten(10, true).Serialize(); res != expect {
		t.Errorf("output '%s' does not match '%s'", res, expect)
	}

	if _, err := New(" ").InsertImage(0, "image/png", nil, 16, 16, "", "", 0); err != ErrInvalidArgument {
		t.Errorf("expected ErrInvalidArgument, got %v", err)
	}
	if _, err := New("x").InsertImage(5, "image/png", make([]byte, 1), 16, 16, "", "", 0); err != ErrInvalidIndex {
		t.Errorf("expected ErrInvalidIndex, got %v", err)
	}
}

func TestAttachFile(t *testing.T) {
	doc, err := New("report").AttachFile("application/pdf", nil, "report.pdf", "https://example.com/report.pdf", 123456)
	if err != nil {
		t.Fatal(err)
	}
	if !doc.HasRefEntity() {
		t.Error("expected an entity with an external reference")
	}
	refs := doc.EntReferences()
	if len(refs) != 1 || refs[0] != "https://example.com/report.pdf" {
		t.Errorf("unexpected references %v", refs)
	}
}

func TestQuote(t *testing.T) {
	quote := Quote("Alice", "usrAlice", New("original message"))
	reply := quote.Append(New("the reply"))
	if res := reply.Reply(64, 3).Serialize(); res != "the reply" {
		t.Errorf("output '%s' does not match 'the reply'", res)
	}
}
