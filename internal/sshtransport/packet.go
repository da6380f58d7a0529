package sshtransport

import (
	"crypto/rand"
	"io"

	"github.com/zmap/sshuserenum/internal/sshcrypto"
	"github.com/zmap/sshuserenum/internal/sshproto"
)

// WritePacket frames payload as one SSH binary packet (RFC 4253 §6) and
// writes it to the connection. Before NEWKEYS this is a plaintext packet
// with random padding sized only to the 8-byte minimum block size; after,
// the payload and padding are encrypted and an HMAC tag is appended, per the
// direction installed by installKeys.
func (t *Transport) WritePacket(payload []byte) error {
	dir := t.writeDir
	blockSize := 8
	if dir != nil {
		blockSize = sshcrypto.BlockSize(dirCipherName(dir))
	}
	pad := paddingLen(len(payload), blockSize)

	packet := make([]byte, 0, 5+len(payload)+pad)
	packet = sshproto.PutUint32(packet, uint32(1+len(payload)+pad))
	packet = append(packet, byte(pad))
	packet = append(packet, payload...)
	padding := make([]byte, pad)
	if _, err := rand.Read(padding); err != nil {
		return err
	}
	packet = append(packet, padding...)

	if dir == nil {
		_, err := t.conn.Write(packet)
		return err
	}

	mac := sshcrypto.MAC(dir.macName, dir.macKey, dir.seq, packet)
	dir.seq++

	enc := make([]byte, len(packet))
	encryptDirection(dir, enc, packet)

	out := append(enc, mac...)
	_, err := t.conn.Write(out)
	return err
}

// ReadPacket reads and unframes one SSH binary packet, verifying its MAC
// when a read direction has been installed, and returns its payload with
// the leading message-type byte still attached.
func (t *Transport) ReadPacket() ([]byte, error) {
	dir := t.readDir
	if dir == nil {
		return t.readPlainPacket()
	}
	return t.readEncryptedPacket(dir)
}

func (t *Transport) readPlainPacket() ([]byte, error) {
	lenBuf, err := t.readFull(4)
	if err != nil {
		return nil, err
	}
	packetLen, _ := sshproto.ReadUint32(lenBuf, 0)
	if packetLen == 0 || uint64(packetLen)+4 > sshproto.MaxPacket {
		return nil, sshproto.NewError(sshproto.KindProtocolViolation, "packet_length out of range")
	}
	rest, err := t.readFull(int(packetLen))
	if err != nil {
		return nil, err
	}
	padLen := int(rest[0])
	if padLen+1 > len(rest) {
		return nil, sshproto.NewError(sshproto.KindProtocolViolation, "padding_length exceeds packet")
	}
	return rest[1 : len(rest)-padLen], nil
}

func (t *Transport) readEncryptedPacket(dir *direction) ([]byte, error) {
	blockSize := sshcrypto.BlockSize(dirCipherName(dir))
	macSize := sshcrypto.MACSize(dir.macName)

	firstBlock, err := t.readFull(blockSize)
	if err != nil {
		return nil, err
	}
	plainFirst := make([]byte, blockSize)
	decryptDirection(dir, plainFirst, firstBlock)

	packetLen, _ := sshproto.ReadUint32(plainFirst, 0)
	if packetLen == 0 || uint64(packetLen)+4 > sshproto.MaxPacket {
		return nil, sshproto.NewError(sshproto.KindProtocolViolation, "packet_length out of range")
	}

	remaining := int(packetLen) + 4 - blockSize
	if remaining < 0 {
		return nil, sshproto.NewError(sshproto.KindProtocolViolation, "packet_length smaller than first block")
	}
	restCipher, err := t.readFull(remaining)
	if err != nil {
		return nil, err
	}
	plainRest := make([]byte, len(restCipher))
	decryptDirection(dir, plainRest, restCipher)

	full := append(plainFirst, plainRest...)

	tag, err := t.readFull(macSize)
	if err != nil {
		return nil, err
	}
	want := sshcrypto.MAC(dir.macName, dir.macKey, dir.seq, full)
	dir.seq++
	if !constantTimeEqual(tag, want) {
		return nil, sshproto.NewError(sshproto.KindMACMismatch, "HMAC verification failed")
	}

	padLen := int(full[4])
	payloadEnd := len(full) - padLen
	if payloadEnd < 5 {
		return nil, sshproto.NewError(sshproto.KindProtocolViolation, "padding_length exceeds packet")
	}
	return full[5:payloadEnd], nil
}

func (t *Transport) readFull(n int) ([]byte, error) {
	buf := make([]byte, n)
	if n == 0 {
		return buf, nil
	}
	if len(t.leftover) > 0 {
		k := copy(buf, t.leftover)
		t.leftover = t.leftover[k:]
		if k == n {
			return buf, nil
		}
		if _, err := io.ReadFull(t.r, buf[k:]); err != nil {
			return nil, err
		}
		return buf, nil
	}
	if _, err := io.ReadFull(t.r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func dirCipherName(dir *direction) string {
	if dir.block != nil {
		return sshproto.CipherAES128CBC
	}
	return sshproto.CipherAES128CTR
}

func encryptDirection(dir *direction, dst, src []byte) {
	if dir.stream != nil {
		dir.stream.XORKeyStream(dst, src)
		return
	}
	dir.block.CryptBlocks(dst, src)
}

func decryptDirection(dir *direction, dst, src []byte) {
	if dir.stream != nil {
		dir.stream.XORKeyStream(dst, src)
		return
	}
	dir.block.CryptBlocks(dst, src)
}

// constantTimeEqual compares two MAC tags without early-exit timing
// variance.
func constantTimeEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	var v byte
	for i := range a {
		v |= a[i] ^ b[i]
	}
	return v == 0
}
