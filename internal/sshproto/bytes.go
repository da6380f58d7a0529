package sshproto

import (
	"encoding/base64"
	"fmt"
	"math/big"
	"strings"
)

// ErrTruncated is returned by the Get* readers when the buffer ends before
// the field they were asked to decode.
type ErrTruncated struct {
	Field string
}

func (e *ErrTruncated) Error() string {
	return fmt.Sprintf("sshproto: truncated %s", e.Field)
}

// PutUint32 appends v as 4 big-endian bytes.
func PutUint32(buf []byte, v uint32) []byte {
	return append(buf, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

// ReadUint32 reads a big-endian uint32 at off.
func ReadUint32(buf []byte, off int) (uint32, error) {
	if off+4 > len(buf) {
		return 0, &ErrTruncated{"uint32"}
	}
	b := buf[off : off+4]
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3]), nil
}

// PutString appends a length-prefixed byte string: u32 length || bytes.
func PutString(buf []byte, s []byte) []byte {
	buf = PutUint32(buf, uint32(len(s)))
	return append(buf, s...)
}

// GetString reads a length-prefixed byte string and returns it along with
// the offset just past it.
func GetString(buf []byte, off int) ([]byte, int, error) {
	if off+4 > len(buf) {
		return nil, 0, &ErrTruncated{"string length"}
	}
	n, _ := ReadUint32(buf, off)
	start := off + 4
	end := start + int(n)
	if end < start || end > len(buf) {
		return nil, 0, &ErrTruncated{"string body"}
	}
	return buf[start:end], end, nil
}

// GetBignum reads an mpint (RFC 4251 §5) at off: a length-prefixed
// two's-complement big-endian integer. A leading 0x00 byte disambiguates a
// positive value whose high bit would otherwise read as negative; big.Int's
// SetBytes ignores leading zero bytes, so it needs no separate handling.
// Negative mpints are rejected with an error.
func GetBignum(buf []byte, off int) (*big.Int, int, error) {
	raw, next, err := GetString(buf, off)
	if err != nil {
		return nil, 0, err
	}
	n := new(big.Int)
	if len(raw) == 0 {
		return n, next, nil
	}
	if raw[0]&0x80 != 0 {
		return nil, 0, fmt.Errorf("sshproto: negative mpint not supported")
	}
	n.SetBytes(raw)
	return n, next, nil
}

// PutBignum appends an mpint: a length-prefixed two's-complement big-endian
// encoding of n, with a leading zero byte inserted whenever n's top bit
// would otherwise be mistaken for a sign bit.
func PutBignum(buf []byte, n *big.Int) []byte {
	if n.Sign() == 0 {
		return PutUint32(buf, 0)
	}
	b := n.Bytes()
	if b[0]&0x80 != 0 {
		b = append([]byte{0}, b...)
	}
	return PutString(buf, b)
}

// SplitNameList splits a comma-separated RFC 4251 name-list. An empty list
// (zero-length string) yields a nil slice, not a slice containing "".
func SplitNameList(csv string) []string {
	if csv == "" {
		return nil
	}
	return strings.Split(csv, ",")
}

// JoinNameList is the inverse of SplitNameList.
func JoinNameList(names []string) string {
	return strings.Join(names, ",")
}

// Base64Encode/Base64Decode use the standard RFC 4648 alphabet, matching
// the encoding OpenSSH uses for known_hosts entries and public key files.
func Base64Encode(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

func Base64Decode(s string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(s)
}
