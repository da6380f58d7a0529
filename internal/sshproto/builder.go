package sshproto

import "math/big"

// Field is the tagged-variant redesign spec.md §9 calls for: the original
// implementation's polymorphic VarData class hierarchy (one struct per
// field kind, each overriding an appendData virtual) becomes one interface
// with a single concrete type per variant, each serializing itself through
// the appendTo method that Builder.Append calls.
type Field interface {
	appendTo(buf []byte) []byte
}

type fieldU8 uint8
type fieldU32 uint32
type fieldRaw []byte
type fieldString []byte
type fieldBignum struct{ n *big.Int }
type fieldGroup []Field

func (f fieldU8) appendTo(buf []byte) []byte     { return append(buf, byte(f)) }
func (f fieldU32) appendTo(buf []byte) []byte    { return PutUint32(buf, uint32(f)) }
func (f fieldRaw) appendTo(buf []byte) []byte    { return append(buf, f...) }
func (f fieldString) appendTo(buf []byte) []byte { return PutString(buf, f) }
func (f fieldBignum) appendTo(buf []byte) []byte { return PutBignum(buf, f.n) }

// fieldGroup appends a placeholder u32, serializes its children, then
// back-patches the placeholder with the byte length of what it produced.
// This mirrors VarDataRecursive::appendData in the original: every child is
// serialized exactly once, and the size is computed from what was actually
// written rather than tracked separately.
func (f fieldGroup) appendTo(buf []byte) []byte {
	lenOffset := len(buf)
	buf = PutUint32(buf, 0)
	start := len(buf)
	for _, child := range f {
		buf = child.appendTo(buf)
	}
	inner := uint32(len(buf) - start)
	buf[lenOffset] = byte(inner >> 24)
	buf[lenOffset+1] = byte(inner >> 16)
	buf[lenOffset+2] = byte(inner >> 8)
	buf[lenOffset+3] = byte(inner)
	return buf
}

// U8, U32, Raw, LenString, Bignum, and Group construct the six Field
// variants named in spec.md §9.
func U8(v uint8) Field            { return fieldU8(v) }
func U32(v uint32) Field          { return fieldU32(v) }
func Raw(b []byte) Field          { return fieldRaw(b) }
func LenString(s string) Field    { return fieldString(s) }
func LenBytes(b []byte) Field     { return fieldString(b) }
func Bignum(n *big.Int) Field     { return fieldBignum{n} }
func Group(fields ...Field) Field { return fieldGroup(fields) }

// Builder accumulates Fields into an outgoing payload. It is the Go-native
// replacement for createSendPacket's initializer_list<VarData*> argument:
// instead of an owning list of heap-allocated polymorphic objects, each
// passed-once and deleted by the callee, it is a plain slice of small value
// types consumed by a single loop.
type Builder struct {
	buf []byte
}

// NewBuilder starts a builder with the message type already written as the
// payload's first byte, matching addHeader's payload layout (length and
// padding are filled in later by the transport).
func NewBuilder(msgType byte) *Builder {
	b := &Builder{buf: make([]byte, 0, 256)}
	b.buf = append(b.buf, msgType)
	return b
}

// Append adds one or more fields, in order.
func (b *Builder) Append(fields ...Field) *Builder {
	for _, f := range fields {
		b.buf = f.appendTo(b.buf)
	}
	return b
}

// Bytes returns the accumulated payload (message type plus every appended
// field, in order).
func (b *Builder) Bytes() []byte {
	return b.buf
}

// Parser reads Fields back out of an inbound payload in the order they were
// written, tracking its own offset. Every Get* method returns only the
// decoded value and advances the offset past the field; the number of bytes
// a field consumed is not returned. Callers walking compound structures read
// the running position from Offset instead.
type Parser struct {
	buf []byte
	off int
}

func NewParser(buf []byte) *Parser {
	return &Parser{buf: buf}
}

func (p *Parser) Offset() int { return p.off }

func (p *Parser) GetU8() (byte, error) {
	if p.off+1 > len(p.buf) {
		return 0, &ErrTruncated{"u8"}
	}
	v := p.buf[p.off]
	p.off++
	return v, nil
}

func (p *Parser) GetU32() (uint32, error) {
	v, err := ReadUint32(p.buf, p.off)
	if err != nil {
		return 0, err
	}
	p.off += 4
	return v, nil
}

func (p *Parser) GetString() ([]byte, error) {
	v, next, err := GetString(p.buf, p.off)
	if err != nil {
		return nil, err
	}
	p.off = next
	return v, nil
}

func (p *Parser) GetBignum() (*big.Int, error) {
	v, next, err := GetBignum(p.buf, p.off)
	if err != nil {
		return nil, err
	}
	p.off = next
	return v, nil
}

// GetRaw consumes exactly n raw bytes (used for fixed-length fields such as
// the KEXINIT cookie).
func (p *Parser) GetRaw(n int) ([]byte, error) {
	if p.off+n > len(p.buf) {
		return nil, &ErrTruncated{"raw"}
	}
	v := p.buf[p.off : p.off+n]
	p.off += n
	return v, nil
}

// Remaining returns every byte not yet consumed.
func (p *Parser) Remaining() []byte {
	return p.buf[p.off:]
}
