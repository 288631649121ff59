// Package envelope implements a purpose-built, shallow JSON reader and
// writer for the fixed-shape wire envelope used by the mesh gateway
// protocol. It is not a general JSON library: the schema is small, known,
// and at most a few levels deep, so a dotted-key scanner is sufficient and
// considerably simpler than a full parse tree. See Design Note §9.1.
package envelope

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf16"
	"unicode/utf8"
)

// ErrNotFound is returned (wrapped) when a dotted key has no value in the
// document, or the value present does not match the requested type.
var ErrNotFound = errors.New("envelope: key not found")

// kind tags the span returned by valueSpan.
type kind byte

const (
	kindString kind = 's'
	kindObject kind = 'o'
	kindArray  kind = 'a'
	kindNumber kind = 'n'
	kindTrue   kind = 't'
	kindFalse  kind = 'f'
	kindNull   kind = 'z'
)

// GetString looks up a dotted key (e.g. "from.user") in doc and returns its
// unescaped string value.
func GetString(doc []byte, dottedKey string) (string, bool) {
	val, k, ok := lookup(doc, dottedKey)
	if !ok || k != kindString {
		return "", false
	}
	s, err := unescapeQuoted(val)
	if err != nil {
		return "", false
	}
	return s, true
}

// GetInt looks up a dotted key and parses its numeric value as an integer.
func GetInt(doc []byte, dottedKey string) (int64, bool) {
	val, k, ok := lookup(doc, dottedKey)
	if !ok || k != kindNumber {
		return 0, false
	}
	n, err := strconv.ParseInt(string(val), 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// GetBool looks up a dotted key and returns its boolean value.
func GetBool(doc []byte, dottedKey string) (bool, bool) {
	_, k, ok := lookup(doc, dottedKey)
	if !ok {
		return false, false
	}
	switch k {
	case kindTrue:
		return true, true
	case kindFalse:
		return false, true
	default:
		return false, false
	}
}

// GetRaw returns the untouched bytes of the value at dottedKey, whatever its
// kind — used by the router to pass a nested payload object through without
// re-serialising it.
func GetRaw(doc []byte, dottedKey string) ([]byte, bool) {
	val, _, ok := lookup(doc, dottedKey)
	return val, ok
}

// Has reports whether dottedKey resolves to any value, including null.
func Has(doc []byte, dottedKey string) bool {
	_, _, ok := lookup(doc, dottedKey)
	return ok
}

// lookup walks dottedKey segment by segment, narrowing into nested objects.
func lookup(doc []byte, dottedKey string) ([]byte, kind, bool) {
	cur := doc
	segs := strings.Split(dottedKey, ".")
	for i, seg := range segs {
		start, ok := findKeyValueStart(cur, seg)
		if !ok {
			return nil, 0, false
		}
		end, k, err := valueSpan(cur, start)
		if err != nil {
			return nil, 0, false
		}
		val := cur[start:end]
		if i == len(segs)-1 {
			return val, k, true
		}
		if k != kindObject {
			return nil, 0, false
		}
		cur = val
	}
	return nil, 0, false
}

// findKeyValueStart scans obj for a top-level `"key"` token followed by a
// colon, and returns the index of the first non-whitespace byte of its
// value. It does not descend into nested objects/arrays or string bodies
// while searching, so a key that happens to appear inside a nested value's
// text is never mistaken for a top-level key.
func findKeyValueStart(obj []byte, key string) (int, bool) {
	depth := 0
	i := 0
	n := len(obj)
	for i < n {
		c := obj[i]
		switch {
		case c == '"':
			strStart := i
			strEnd, err := scanString(obj, i)
			if err != nil {
				return 0, false
			}
			if depth == 1 {
				lit := obj[strStart+1 : strEnd-1]
				if matchesRawKey(lit, key) {
					j := skipWS(obj, strEnd)
					if j < n && obj[j] == ':' {
						j = skipWS(obj, j+1)
						return j, true
					}
				}
			}
			i = strEnd
		case c == '{' || c == '[':
			depth++
			i++
		case c == '}' || c == ']':
			depth--
			i++
		default:
			i++
		}
	}
	return 0, false
}

// matchesRawKey compares a raw (still-escaped) JSON string literal against a
// plain key name. Envelope keys never contain characters that need
// escaping, so a direct byte comparison is sufficient and avoids unescaping
// every candidate key while scanning.
func matchesRawKey(lit []byte, key string) bool {
	return string(lit) == key
}

// scanString returns the index just past the closing quote of the JSON
// string literal starting at data[start] (which must be '"').
func scanString(data []byte, start int) (int, error) {
	i := start + 1
	n := len(data)
	for i < n {
		switch data[i] {
		case '\\':
			i += 2
		case '"':
			return i + 1, nil
		default:
			i++
		}
	}
	return 0, fmt.Errorf("envelope: unterminated string at %d", start)
}

// valueSpan returns the exclusive end index and kind of the JSON value
// starting at data[start] (already skipped past leading whitespace).
func valueSpan(data []byte, start int) (int, kind, error) {
	if start >= len(data) {
		return 0, 0, errors.New("envelope: value expected, got end of input")
	}
	switch data[start] {
	case '"':
		end, err := scanString(data, start)
		return end, kindString, err
	case '{':
		end, err := scanBalanced(data, start, '{', '}')
		return end, kindObject, err
	case '[':
		end, err := scanBalanced(data, start, '[', ']')
		return end, kindArray, err
	case 't':
		if hasPrefixAt(data, start, "true") {
			return start + 4, kindTrue, nil
		}
	case 'f':
		if hasPrefixAt(data, start, "false") {
			return start + 5, kindFalse, nil
		}
	case 'n':
		if hasPrefixAt(data, start, "null") {
			return start + 4, kindNull, nil
		}
	}
	if data[start] == '-' || (data[start] >= '0' && data[start] <= '9') {
		i := start
		if data[i] == '-' {
			i++
		}
		for i < len(data) && (isDigit(data[i]) || data[i] == '.' || data[i] == 'e' || data[i] == 'E' || data[i] == '+' || data[i] == '-') {
			i++
		}
		return i, kindNumber, nil
	}
	return 0, 0, fmt.Errorf("envelope: unrecognised value at %d", start)
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

func hasPrefixAt(data []byte, at int, s string) bool {
	if at+len(s) > len(data) {
		return false
	}
	return string(data[at:at+len(s)]) == s
}

// scanBalanced returns the index just past the closing bracket matching the
// opening bracket at data[start], honoring string literals so braces inside
// string values don't confuse depth counting.
func scanBalanced(data []byte, start int, open, close byte) (int, error) {
	depth := 0
	i := start
	n := len(data)
	for i < n {
		switch data[i] {
		case '"':
			end, err := scanString(data, i)
			if err != nil {
				return 0, err
			}
			i = end
			continue
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return i + 1, nil
			}
		}
		i++
	}
	return 0, fmt.Errorf("envelope: unbalanced %q at %d", open, start)
}

func skipWS(data []byte, i int) int {
	for i < len(data) {
		switch data[i] {
		case ' ', '\t', '\n', '\r':
			i++
		default:
			return i
		}
	}
	return i
}

// unescapeQuoted unescapes the body of a quoted JSON string literal
// (including its surrounding quotes).
func unescapeQuoted(lit []byte) (string, error) {
	if len(lit) < 2 || lit[0] != '"' || lit[len(lit)-1] != '"' {
		return "", errors.New("envelope: not a quoted string")
	}
	return Unescape(string(lit[1 : len(lit)-1]))
}

// Unescape decodes the standard JSON escape set (\" \\ \/ \b \f \n \r \t
// \uXXXX, including surrogate pairs) in s, which must not include the
// surrounding quotes.
func Unescape(s string) (string, error) {
	var b strings.Builder
	b.Grow(len(s))
	i := 0
	for i < len(s) {
		c := s[i]
		if c != '\\' {
			b.WriteByte(c)
			i++
			continue
		}
		if i+1 >= len(s) {
			return "", errors.New("envelope: trailing backslash")
		}
		switch s[i+1] {
		case '"':
			b.WriteByte('"')
			i += 2
		case '\\':
			b.WriteByte('\\')
			i += 2
		case '/':
			b.WriteByte('/')
			i += 2
		case 'b':
			b.WriteByte('\b')
			i += 2
		case 'f':
			b.WriteByte('\f')
			i += 2
		case 'n':
			b.WriteByte('\n')
			i += 2
		case 'r':
			b.WriteByte('\r')
			i += 2
		case 't':
			b.WriteByte('\t')
			i += 2
		case 'u':
			r, adv, err := decodeUnicodeEscape(s, i)
			if err != nil {
				return "", err
			}
			b.WriteRune(r)
			i += adv
		default:
			return "", fmt.Errorf("envelope: invalid escape \\%c", s[i+1])
		}
	}
	return b.String(), nil
}

// decodeUnicodeEscape decodes a \uXXXX escape (and its low surrogate, if
// the first unit is a high surrogate) starting at s[i] == '\\'. Returns the
// decoded rune and the number of bytes consumed from s[i].
func decodeUnicodeEscape(s string, i int) (rune, int, error) {
	if i+6 > len(s) {
		return 0, 0, errors.New("envelope: truncated \\u escape")
	}
	hi, err := strconv.ParseUint(s[i+2:i+6], 16, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("envelope: invalid \\u escape: %w", err)
	}
	r := rune(hi)
	if utf16.IsSurrogate(r) {
		if i+12 <= len(s) && s[i+6] == '\\' && s[i+7] == 'u' {
			lo, err := strconv.ParseUint(s[i+8:i+12], 16, 32)
			if err == nil {
				if dec := utf16.DecodeRune(r, rune(lo)); dec != utf8.RuneError {
					return dec, 12, nil
				}
			}
		}
		// Lone surrogate: approximate rather than fail outright (spec
		// allows approximating non-ASCII \u escapes).
		return utf8.RuneError, 6, nil
	}
	return r, 6, nil
}

// Escape encodes s using the standard JSON escape set, suitable for
// embedding between quotes in an emitted envelope.
func Escape(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\b':
			b.WriteString(`\b`)
		case '\f':
			b.WriteString(`\f`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			if r < 0x20 {
				fmt.Fprintf(&b, `\u%04x`, r)
			} else {
				b.WriteRune(r)
			}
		}
	}
	return b.String()
}
