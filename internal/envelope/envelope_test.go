package envelope

import "testing"

func TestGetStringTopLevel(t *testing.T) {
	doc := []byte(`{"version":"1.0","type":"tell"}`)
	got, ok := GetString(doc, "type")
	if !ok || got != "tell" {
		t.Fatalf("GetString(type) = %q, %v; want tell, true", got, ok)
	}
}

func TestGetStringDotted(t *testing.T) {
	doc := []byte(`{"from":{"mud":"Beta","user":"Alice"},"to":{"mud":"Alpha","user":"Bob"}}`)
	got, ok := GetString(doc, "from.user")
	if !ok || got != "Alice" {
		t.Fatalf("GetString(from.user) = %q, %v; want Alice, true", got, ok)
	}
	got, ok = GetString(doc, "to.mud")
	if !ok || got != "Alpha" {
		t.Fatalf("GetString(to.mud) = %q, %v; want Alpha, true", got, ok)
	}
}

func TestGetStringMissing(t *testing.T) {
	doc := []byte(`{"from":{"mud":"Beta"}}`)
	if _, ok := GetString(doc, "from.user"); ok {
		t.Fatal("expected missing key to return ok=false")
	}
	if _, ok := GetString(doc, "to.user"); ok {
		t.Fatal("expected missing parent object to return ok=false")
	}
}

func TestGetInt(t *testing.T) {
	doc := []byte(`{"metadata":{"priority":5,"ttl":300}}`)
	p, ok := GetInt(doc, "metadata.priority")
	if !ok || p != 5 {
		t.Fatalf("GetInt(metadata.priority) = %d, %v; want 5, true", p, ok)
	}
	ttl, ok := GetInt(doc, "metadata.ttl")
	if !ok || ttl != 300 {
		t.Fatalf("GetInt(metadata.ttl) = %d, %v; want 300, true", ttl, ok)
	}
}

func TestGetIntNegative(t *testing.T) {
	doc := []byte(`{"offset":-42}`)
	v, ok := GetInt(doc, "offset")
	if !ok || v != -42 {
		t.Fatalf("GetInt(offset) = %d, %v; want -42, true", v, ok)
	}
}

func TestGetBool(t *testing.T) {
	doc := []byte(`{"moderated":true,"archived":false}`)
	v, ok := GetBool(doc, "moderated")
	if !ok || !v {
		t.Fatalf("GetBool(moderated) = %v, %v; want true, true", v, ok)
	}
	v, ok = GetBool(doc, "archived")
	if !ok || v {
		t.Fatalf("GetBool(archived) = %v, %v; want false, true", v, ok)
	}
}

func TestGetStringIgnoresNestedKeyCollision(t *testing.T) {
	// A key named "user" appears nested inside "from" but not at top level;
	// looking up "user" directly (not "from.user") must not match it.
	doc := []byte(`{"from":{"user":"Alice"},"type":"tell"}`)
	if _, ok := GetString(doc, "user"); ok {
		t.Fatal("top-level lookup must not match a key nested in another object")
	}
}

func TestGetStringEscapes(t *testing.T) {
	doc := []byte(`{"message":"hi \"there\"\nnew line \\ end"}`)
	got, ok := GetString(doc, "message")
	if !ok {
		t.Fatal("expected message to be found")
	}
	want := "hi \"there\"\nnew line \\ end"
	if got != want {
		t.Fatalf("GetString(message) = %q; want %q", got, want)
	}
}

func TestGetStringUnicodeEscape(t *testing.T) {
	doc := []byte("{\"message\":\"caf\\u00e9\"}")
	got, ok := GetString(doc, "message")
	if !ok || got != "café" {
		t.Fatalf("GetString(message) = %q, %v; want café, true", got, ok)
	}
}

func TestEscapeUnescapeRoundTrip(t *testing.T) {
	cases := []string{
		"plain text",
		"with \"quotes\" and \\backslash\\",
		"tab\tnewline\ncarriage\r",
		"",
		"control\x01char",
	}
	for _, c := range cases {
		escaped := Escape(c)
		got, err := Unescape(escaped)
		if err != nil {
			t.Fatalf("Unescape(Escape(%q)) error: %v", c, err)
		}
		if got != c {
			t.Fatalf("round trip mismatch: got %q, want %q", got, c)
		}
	}
}

func TestBuilderEmitsExpectedShape(t *testing.T) {
	doc := NewBuilder().
		Str("version", "1.0").
		Str("type", "tell").
		Int("priority", 5).
		Bool("moderated", false).
		Bytes()

	got, ok := GetString(doc, "version")
	if !ok || got != "1.0" {
		t.Fatalf("version = %q, %v", got, ok)
	}
	k, ok := GetString(doc, "type")
	if !ok || k != "tell" {
		t.Fatalf("type = %q, %v", k, ok)
	}
	p, ok := GetInt(doc, "priority")
	if !ok || p != 5 {
		t.Fatalf("priority = %d, %v", p, ok)
	}
	m, ok := GetBool(doc, "moderated")
	if !ok || m {
		t.Fatalf("moderated = %v, %v", m, ok)
	}
}

func TestBuilderRoundTripsNestedObject(t *testing.T) {
	from := NewBuilder().Str("mud", "Alpha").Str("user", "Bob").Bytes()
	doc := NewBuilder().Str("type", "tell").Raw("from", from).Bytes()

	mud, ok := GetString(doc, "from.mud")
	if !ok || mud != "Alpha" {
		t.Fatalf("from.mud = %q, %v; want Alpha, true", mud, ok)
	}
	user, ok := GetString(doc, "from.user")
	if !ok || user != "Bob" {
		t.Fatalf("from.user = %q, %v; want Bob, true", user, ok)
	}
}

func TestBuilderEscapesStringValues(t *testing.T) {
	doc := NewBuilder().Str("message", "say \"hi\"\nthen leave").Bytes()
	got, ok := GetString(doc, "message")
	if !ok || got != "say \"hi\"\nthen leave" {
		t.Fatalf("message = %q, %v", got, ok)
	}
}

func TestHasDetectsNull(t *testing.T) {
	doc := []byte(`{"user":null}`)
	if !Has(doc, "user") {
		t.Fatal("expected Has to report true for an explicit null value")
	}
	if _, ok := GetString(doc, "user"); ok {
		t.Fatal("GetString must not treat null as a string value")
	}
}
