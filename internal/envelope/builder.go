package envelope

import "strings"

// Builder incrementally assembles a JSON object as `{k:v, k:v, ...}`. It is
// the emit half of the envelope codec: string values are escaped, integer
// and boolean values pass through verbatim, and nested objects/arrays are
// written as pre-built raw fragments (usually produced by another Builder).
type Builder struct {
	b     strings.Builder
	first bool
}

// NewBuilder returns a Builder ready to accept fields.
func NewBuilder() *Builder {
	bld := &Builder{first: true}
	bld.b.WriteByte('{')
	return bld
}

func (bld *Builder) comma() {
	if !bld.first {
		bld.b.WriteByte(',')
	}
	bld.first = false
}

// Str writes a string-valued field.
func (bld *Builder) Str(key, value string) *Builder {
	bld.comma()
	bld.b.WriteByte('"')
	bld.b.WriteString(key)
	bld.b.WriteString(`":"`)
	bld.b.WriteString(Escape(value))
	bld.b.WriteByte('"')
	return bld
}

// Int writes an integer-valued field.
func (bld *Builder) Int(key string, value int64) *Builder {
	bld.comma()
	bld.b.WriteByte('"')
	bld.b.WriteString(key)
	bld.b.WriteString(`":`)
	bld.b.WriteString(itoa(value))
	return bld
}

// Bool writes a boolean-valued field.
func (bld *Builder) Bool(key string, value bool) *Builder {
	bld.comma()
	bld.b.WriteByte('"')
	bld.b.WriteString(key)
	bld.b.WriteString(`":`)
	if value {
		bld.b.WriteString("true")
	} else {
		bld.b.WriteString("false")
	}
	return bld
}

// Raw writes a field whose value is an already-serialised JSON fragment
// (object, array, string, number, etc.) — used to splice in a nested
// Builder's output or a payload forwarded unmodified from the wire.
func (bld *Builder) Raw(key string, rawJSON []byte) *Builder {
	if len(rawJSON) == 0 {
		return bld
	}
	bld.comma()
	bld.b.WriteByte('"')
	bld.b.WriteString(key)
	bld.b.WriteString(`":`)
	bld.b.Write(rawJSON)
	return bld
}

// Bytes returns the completed object. The Builder must not be reused after
// calling Bytes.
func (bld *Builder) Bytes() []byte {
	bld.b.WriteByte('}')
	return []byte(bld.b.String())
}

func itoa(v int64) string {
	if v == 0 {
		return "0"
	}
	neg := v < 0
	if neg {
		v = -v
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
