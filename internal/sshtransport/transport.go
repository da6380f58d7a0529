// Package sshtransport implements the synchronous SSH record layer and
// handshake (spec.md C5): banner exchange, KEXINIT negotiation, Diffie-
// Hellman group exchange, key derivation, and the encrypted packet framing
// that everything above rides on. Unlike the mux/goroutine transport in the
// pack's zgrab2 fork of x/crypto/ssh, this one is a single blocking state
// machine with no rekey support, matching the synchronous read/write loop
// the original client used (OpenSshEnum.cpp's SshTransport::readSsh /
// writeSshEnc).
package sshtransport

import (
	"crypto/cipher"
	"io"
	"net"
	"time"

	"github.com/zmap/sshuserenum/internal/sshcrypto"
	"github.com/zmap/sshuserenum/internal/sshproto"
)

// ClientBanner is this client's protocol version string, sent verbatim as
// the first line of the connection (RFC 4253 §4.2).
const ClientBanner = "SSH-2.0-sshuserenum_1.0"

// direction holds the per-direction cipher/MAC state installed after
// NEWKEYS, mirroring the original's two independent key sets (client->server
// and server->client use different keys even though both use the same
// negotiated algorithm names).
type direction struct {
	stream  cipher.Stream
	block   cipher.BlockMode
	encrypt bool
	macName string
	macKey  []byte
	seq     uint32
}

// Transport owns one TCP connection and its SSH record-layer framing state.
// Before NEWKEYS, reads and writes are plaintext; after, WritePacket and
// ReadPacket apply the negotiated cipher and MAC of each direction.
type Transport struct {
	conn net.Conn
	r    io.Reader

	readDir  *direction
	writeDir *direction

	serverBanner string
	clientKexMsg []byte
	serverKexMsg []byte

	sessionID []byte

	// leftover holds bytes already read from conn past the most recent line
	// terminator, reused as pushback by the packet reader once framing
	// switches from line-oriented (banner) to length-prefixed (packets).
	leftover []byte

	// clientBanner is the identification string this client actually sends
	// and hashes into the exchange hash's V_C. Defaults to ClientBanner;
	// overridden by SetClientBanner when spec.md §6's -c flag is set.
	clientBanner string
}

// New wraps an already-dialed connection. The caller is responsible for
// dial timeouts (spec.md §5's connect-timeout handling belongs to the
// portscan/driver layer, not here).
func New(conn net.Conn) *Transport {
	return &Transport{conn: conn, r: conn, clientBanner: ClientBanner}
}

// SetClientBanner overrides the identification string SendBanner sends and
// Handshake hashes into V_C, matching the original's configurable client-id
// banner (spec.md §6's -c flag). A blank banner is ignored and leaves the
// default in place.
func (t *Transport) SetClientBanner(banner string) {
	if banner != "" {
		t.clientBanner = banner
	}
}

// SendBanner writes this client's identification string terminated by
// CR LF, per RFC 4253 §4.2.
func (t *Transport) SendBanner() error {
	_, err := t.conn.Write([]byte(t.clientBanner + "\r\n"))
	return err
}

// ReadBanner reads server identification lines until it finds one starting
// with "SSH-2.0-" or "SSH-1.99-", per RFC 4253 §4.2 (servers may send
// arbitrary text lines before the version string, which clients must
// discard). It stops after a bounded number of lines to avoid spinning on a
// host that never sends a banner.
func (t *Transport) ReadBanner() (string, error) {
	const maxLines = 50
	buf := make([]byte, 0, 256)
	for i := 0; i < maxLines; i++ {
		line, err := readLine(t.r, &t.leftover)
		if err != nil {
			return "", err
		}
		buf = append(buf[:0], line...)
		if hasSSHPrefix(buf) {
			t.serverBanner = string(buf)
			return t.serverBanner, nil
		}
	}
	return "", sshproto.NewError(sshproto.KindProtocolViolation, "no SSH banner within line limit")
}

func hasSSHPrefix(b []byte) bool {
	const p1 = "SSH-2.0-"
	const p2 = "SSH-1.99-"
	return hasPrefixStr(b, p1) || hasPrefixStr(b, p2)
}

func hasPrefixStr(b []byte, s string) bool {
	if len(b) < len(s) {
		return false
	}
	for i := 0; i < len(s); i++ {
		if b[i] != s[i] {
			return false
		}
	}
	return true
}

// readLine reads a single CRLF- or LF-terminated line from r, using *left
// as a small pushback buffer for bytes already read past the terminator.
func readLine(r io.Reader, left *[]byte) ([]byte, error) {
	var line []byte
	buf := *left
	one := make([]byte, 1)
	for {
		var b byte
		if len(buf) > 0 {
			b = buf[0]
			buf = buf[1:]
		} else {
			if _, err := io.ReadFull(r, one); err != nil {
				return nil, err
			}
			b = one[0]
		}
		if b == '\n' {
			*left = buf
			if len(line) > 0 && line[len(line)-1] == '\r' {
				line = line[:len(line)-1]
			}
			return line, nil
		}
		line = append(line, b)
	}
}

// SetDeadline forwards to the underlying connection, used by the driver to
// enforce the per-probe timeout spec.md §5 requires.
func (t *Transport) SetDeadline(d time.Time) error { return t.conn.SetDeadline(d) }

// Close closes the underlying connection without sending DISCONNECT. Use
// Disconnect first if a clean shutdown is wanted.
func (t *Transport) Close() error { return t.conn.Close() }

// Disconnect sends SSH_MSG_DISCONNECT with reason 11 ("by application"),
// matching the original's SshTransport::disconnect, then closes the
// connection. Errors sending the disconnect message are ignored since the
// connection is being torn down regardless.
func (t *Transport) Disconnect() error {
	b := sshproto.NewBuilder(sshproto.MsgDisconnect)
	b.Append(
		sshproto.U32(sshproto.DisconnectByApplication),
		sshproto.LenString(""),
		sshproto.LenString(""),
	)
	_ = t.WritePacket(b.Bytes())
	return t.conn.Close()
}

// installKeys activates the negotiated ciphers/MACs for both directions
// after NEWKEYS has been sent and received, per spec.md §4.4.1 step 9.
func (t *Transport) installKeys(algos *sshcrypto.Algorithms, keys *derivedKeys) error {
	encStream, encBlock, err := sshcrypto.NewStreamCipher(algos.CipherC2S, keys.encKeyCtoS, keys.ivCtoS, true)
	if err != nil {
		return err
	}
	decStream, decBlock, err := sshcrypto.NewStreamCipher(algos.CipherS2C, keys.encKeyStoC, keys.ivStoC, false)
	if err != nil {
		return err
	}
	t.writeDir = &direction{stream: encStream, block: encBlock, encrypt: true, macName: algos.MACC2S, macKey: keys.macKeyCtoS}
	t.readDir = &direction{stream: decStream, block: decBlock, macName: algos.MACS2C, macKey: keys.macKeyStoC}
	return nil
}

// paddingLen returns the padding length needed so that
// (4 + 1 + payload_len + padding_len) is a multiple of the cipher block size
// (at least 8) and padding_len is at least 4, per RFC 4253 §6.
func paddingLen(payloadLen, blockSize int) int {
	if blockSize < 8 {
		blockSize = 8
	}
	total := 5 + payloadLen
	pad := blockSize - (total % blockSize)
	if pad < 4 {
		pad += blockSize
	}
	return pad
}
