package sshtransport

import (
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha256"
	"hash"
	"math/big"

	"github.com/zmap/sshuserenum/internal/sshcrypto"
	"github.com/zmap/sshuserenum/internal/sshproto"
)

// HostKey is the RSA host key a server presented during key exchange,
// extracted from its SSH_MSG_KEXDH_REPLY, in the form knownhosts and the
// driver need to make a trust decision.
type HostKey struct {
	KeyType  string
	Exponent *big.Int
	Modulus  *big.Int
	Blob     []byte
}

// HandshakeResult is everything the auth/oracle layer (C6) needs once key
// exchange and NEWKEYS have completed.
type HandshakeResult struct {
	Algorithms *sshcrypto.Algorithms
	HostKey    *HostKey
	SessionID  []byte
}

// buildKexInit renders this client's KEXINIT payload (RFC 4253 §7.1): a
// random cookie, the eight name-lists in sshcrypto's preference order, a
// first_kex_packet_follows flag of false, and a reserved uint32.
func buildKexInit() []byte {
	cookie := make([]byte, sshproto.CookieLen)
	_, _ = rand.Read(cookie)

	b := sshproto.NewBuilder(sshproto.MsgKexInit)
	b.Append(
		sshproto.Raw(cookie),
		sshproto.LenString(sshproto.JoinNameList(sshcrypto.ClientKexAlgos)),
		sshproto.LenString(sshproto.JoinNameList(sshcrypto.ClientHostKeyAlgos)),
		sshproto.LenString(sshproto.JoinNameList(sshcrypto.ClientCiphers)),
		sshproto.LenString(sshproto.JoinNameList(sshcrypto.ClientCiphers)),
		sshproto.LenString(sshproto.JoinNameList(sshcrypto.ClientMACs)),
		sshproto.LenString(sshproto.JoinNameList(sshcrypto.ClientMACs)),
		sshproto.LenString(sshproto.JoinNameList(sshcrypto.ClientCompressions)),
		sshproto.LenString(sshproto.JoinNameList(sshcrypto.ClientCompressions)),
		sshproto.LenString(""),
		sshproto.LenString(""),
		sshproto.U8(0),
		sshproto.U32(0),
	)
	return b.Bytes()
}

// serverKexInit is the eight name-lists parsed out of a server's KEXINIT
// payload, per checkServerAlgList in the original.
type serverKexInit struct {
	kex, hostKey                   string
	cipherCtoS, cipherStoC         string
	macCtoS, macStoC                string
	comprCtoS, comprStoC            string
}

func parseKexInit(payload []byte) (*serverKexInit, error) {
	p := sshproto.NewParser(payload)
	if _, err := p.GetU8(); err != nil {
		return nil, err
	}
	if _, err := p.GetRaw(sshproto.CookieLen); err != nil {
		return nil, err
	}
	var lists [8]string
	for i := range lists {
		s, err := p.GetString()
		if err != nil {
			return nil, err
		}
		lists[i] = string(s)
	}
	return &serverKexInit{
		kex: lists[0], hostKey: lists[1],
		cipherCtoS: lists[2], cipherStoC: lists[3],
		macCtoS: lists[4], macStoC: lists[5],
		comprCtoS: lists[6], comprStoC: lists[7],
	}, nil
}

// parseHostKey extracts the ssh-rsa host key fields from K_S, the
// length-prefixed blob RFC 4253 §6.6 describes as string "ssh-rsa" || mpint
// e || mpint n.
func parseHostKey(blob []byte) (*HostKey, error) {
	p := sshproto.NewParser(blob)
	keyType, err := p.GetString()
	if err != nil {
		return nil, err
	}
	if string(keyType) != sshproto.HostKeyRSA {
		return nil, sshproto.NewError(sshproto.KindKexNoCommonAlgo, "unsupported host key type "+string(keyType))
	}
	e, err := p.GetBignum()
	if err != nil {
		return nil, err
	}
	n, err := p.GetBignum()
	if err != nil {
		return nil, err
	}
	return &HostKey{KeyType: string(keyType), Exponent: e, Modulus: n, Blob: blob}, nil
}

// derivedKeys holds the six session keys RFC 4253 §7.2 derives from K, H,
// and the session_id, corresponding to the original's key[0..5] array.
type derivedKeys struct {
	ivCtoS, ivStoC             []byte
	encKeyCtoS, encKeyStoC     []byte
	macKeyCtoS, macKeyStoC     []byte
}

// deriveKey implements RFC 4253 §7.2's HASH(K || H || letter || session_id)
// loop, extending the digest by HASH(K || H || K1 || K2 || ...) until at
// least need bytes are produced, exactly as the original's createKeys does
// per key type.
func deriveKey(hashNew func() hash.Hash, kBytes, h []byte, letter byte, sessionID []byte, need int) []byte {
	hf := hashNew()
	hf.Write(kBytes)
	hf.Write(h)
	hf.Write([]byte{letter})
	hf.Write(sessionID)
	out := hf.Sum(nil)
	for len(out) < need {
		hf = hashNew()
		hf.Write(kBytes)
		hf.Write(h)
		hf.Write(out)
		out = append(out, hf.Sum(nil)...)
	}
	return out[:need]
}

func hashNewFor(kexAlgo string) func() hash.Hash {
	if kexAlgo == sshproto.KexDH14SHA256 {
		return sha256.New
	}
	return sha1.New
}

// deriveKeys computes all six session keys per spec.md §4.2's key
// derivation rule, sizing each to the negotiated cipher's key length and
// block size (used as IV length for CBC, and as nonce length for CTR).
func deriveKeys(kexAlgo string, algos *sshcrypto.Algorithms, k *big.Int, h, sessionID []byte) *derivedKeys {
	hashNew := hashNewFor(kexAlgo)
	kBytes := sshproto.PutBignum(nil, k)

	ivLenCtoS := sshcrypto.BlockSize(algos.CipherC2S)
	ivLenStoC := sshcrypto.BlockSize(algos.CipherS2C)
	encLenCtoS := sshcrypto.KeyLen(algos.CipherC2S)
	encLenStoC := sshcrypto.KeyLen(algos.CipherS2C)
	macLenCtoS := sshcrypto.MACSize(algos.MACC2S)
	macLenStoC := sshcrypto.MACSize(algos.MACS2C)

	return &derivedKeys{
		ivCtoS:     deriveKey(hashNew, kBytes, h, 'A', sessionID, ivLenCtoS),
		ivStoC:     deriveKey(hashNew, kBytes, h, 'B', sessionID, ivLenStoC),
		encKeyCtoS: deriveKey(hashNew, kBytes, h, 'C', sessionID, encLenCtoS),
		encKeyStoC: deriveKey(hashNew, kBytes, h, 'D', sessionID, encLenStoC),
		macKeyCtoS: deriveKey(hashNew, kBytes, h, 'E', sessionID, macLenCtoS),
		macKeyStoC: deriveKey(hashNew, kBytes, h, 'F', sessionID, macLenStoC),
	}
}

// Handshake runs banner exchange, KEXINIT negotiation, DH group exchange,
// and NEWKEYS, leaving the transport ready for Probe. It mirrors the
// original's SshConnection::checkUsr up through createKeys/NEWKEYS, minus
// the user-key-file bookkeeping that belonged to the real-auth path the
// oracle never needs.
func (t *Transport) Handshake() (*HandshakeResult, error) {
	if err := t.SendBanner(); err != nil {
		return nil, err
	}
	serverBanner, err := t.ReadBanner()
	if err != nil {
		return nil, err
	}

	clientKex := buildKexInit()
	if err := t.WritePacket(clientKex); err != nil {
		return nil, err
	}
	serverKexPayload, err := t.ReadPacket()
	if err != nil {
		return nil, err
	}
	if len(serverKexPayload) == 0 || serverKexPayload[0] != sshproto.MsgKexInit {
		return nil, sshproto.NewError(sshproto.KindProtocolViolation, "expected KEXINIT")
	}
	serverKex, err := parseKexInit(serverKexPayload)
	if err != nil {
		return nil, err
	}

	algos, err := sshcrypto.Negotiate(
		serverKex.kex, serverKex.hostKey,
		serverKex.cipherCtoS, serverKex.cipherStoC,
		serverKex.macCtoS, serverKex.macStoC,
		serverKex.comprCtoS, serverKex.comprStoC,
	)
	if err != nil {
		return nil, err
	}

	kex, err := sshcrypto.NewKex(algos.Kex)
	if err != nil {
		return nil, err
	}

	dhInit := sshproto.NewBuilder(sshproto.MsgKexDHInit)
	dhInit.Append(sshproto.Bignum(kex.E))
	if err := t.WritePacket(dhInit.Bytes()); err != nil {
		return nil, err
	}

	replyPayload, err := t.ReadPacket()
	if err != nil {
		return nil, err
	}
	if len(replyPayload) == 0 || replyPayload[0] != sshproto.MsgKexDHReply {
		return nil, sshproto.NewError(sshproto.KindProtocolViolation, "expected KEXDH_REPLY")
	}
	p := sshproto.NewParser(replyPayload)
	if _, err := p.GetU8(); err != nil {
		return nil, err
	}
	hostKeyBlob, err := p.GetString()
	if err != nil {
		return nil, err
	}
	f, err := p.GetBignum()
	if err != nil {
		return nil, err
	}
	sigBlob, err := p.GetString()
	if err != nil {
		return nil, err
	}

	hostKey, err := parseHostKey(hostKeyBlob)
	if err != nil {
		return nil, err
	}
	if err := sshcrypto.CheckHostKeySize(hostKey.Modulus); err != nil {
		return nil, err
	}

	k, err := kex.SharedSecret(f)
	if err != nil {
		return nil, err
	}

	h := sshcrypto.ExchangeHash(algos.Kex,
		lenPrefixed(t.clientBanner),
		lenPrefixed(serverBanner),
		sshproto.PutString(nil, clientKex),
		sshproto.PutString(nil, serverKexPayload),
		sshproto.PutString(nil, hostKeyBlob),
		sshproto.PutBignum(nil, kex.E),
		sshproto.PutBignum(nil, f),
		sshproto.PutBignum(nil, k),
	)

	sigParser := sshproto.NewParser(sigBlob)
	sigKeyType, err := sigParser.GetString()
	if err != nil {
		return nil, err
	}
	if string(sigKeyType) != sshproto.HostKeyRSA {
		return nil, sshproto.NewError(sshproto.KindKexNoCommonAlgo, "unsupported signature type "+string(sigKeyType))
	}
	sig, err := sigParser.GetString()
	if err != nil {
		return nil, err
	}
	if err := sshcrypto.VerifyHostSignature(h, sig, hostKey.Modulus, hostKey.Exponent); err != nil {
		return nil, err
	}

	sessionID := h

	if err := t.WritePacket([]byte{sshproto.MsgNewKeys}); err != nil {
		return nil, err
	}
	newKeysPayload, err := t.ReadPacket()
	if err != nil {
		return nil, err
	}
	if len(newKeysPayload) == 0 || newKeysPayload[0] != sshproto.MsgNewKeys {
		return nil, sshproto.NewError(sshproto.KindProtocolViolation, "expected NEWKEYS")
	}

	keys := deriveKeys(algos.Kex, algos, k, h, sessionID)
	if err := t.installKeys(algos, keys); err != nil {
		return nil, err
	}

	t.sessionID = sessionID
	return &HandshakeResult{Algorithms: algos, HostKey: hostKey, SessionID: sessionID}, nil
}

// lenPrefixed encodes a banner string as an RFC 4251 string, as the
// exchange hash's V_C/V_S components require (RFC 4253 §8 says the version
// strings participate without their trailing CR LF: ReadBanner strips it
// from the server's line, and clientBanner never holds it since SendBanner
// appends it only on the wire).
func lenPrefixed(s string) []byte {
	return sshproto.PutString(nil, []byte(s))
}
