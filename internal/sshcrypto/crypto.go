// Package sshcrypto is the crypto facade of spec.md §4.2 (C2): DH
// group-exchange, host-key verification, record-layer ciphers and MACs, and
// RFC 4253 §7.2 key derivation. It mirrors the shape of the pack's IKE
// cipher suite (egorse-ike's cipherSuite/Tkm: a negotiated suite object plus
// a handful of pure functions keyed off the negotiated algorithm names)
// rather than x/crypto/ssh's reflection-based approach, since this client
// only ever offers a small fixed algorithm set.
package sshcrypto

import (
	"crypto"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/sha256"
	"hash"
	"math/big"

	"github.com/zmap/sshuserenum/internal/sshproto"
)

// MinHostKeyBits is the minimum RSA host-key modulus size this client will
// accept (spec.md §4.2's weak_host_key rule).
const MinHostKeyBits = 1024

// ClientKexAlgos, ClientHostKeyAlgos, ClientCiphers, ClientMACs, and
// ClientCompressions are this client's preference lists, in order, for the
// eight KEXINIT name-lists (spec.md §4.4.1 step 4).
var (
	ClientKexAlgos       = []string{sshproto.KexDH14SHA256, sshproto.KexDH14SHA1, sshproto.KexDH1SHA1}
	ClientHostKeyAlgos   = []string{sshproto.HostKeyRSA}
	ClientCiphers        = []string{sshproto.CipherAES128CTR, sshproto.CipherAES128CBC}
	ClientMACs           = []string{sshproto.MACHMACSHA256, sshproto.MACHMACSHA1}
	ClientCompressions   = []string{sshproto.CompressionNone}
)

// Algorithms is the result of negotiating each of the eight KEXINIT
// categories against a server's offered name-lists.
type Algorithms struct {
	Kex         string
	HostKey     string
	CipherC2S   string
	CipherS2C   string
	MACC2S      string
	MACS2C      string
	ComprC2S    string
	ComprS2C    string
}

// findCommon picks the first client-preferred name present in the server's
// list, per spec.md §4.2's negotiation rule and §8's name-list invariant.
func findCommon(category string, client []string, serverCSV string) (string, error) {
	server := sshproto.SplitNameList(serverCSV)
	for _, c := range client {
		for _, s := range server {
			if c == s {
				return c, nil
			}
		}
	}
	return "", errNoCommonAlgorithm(category, serverCSV)
}

// Negotiate intersects this client's preference lists against the server's
// eight KEXINIT name-lists, in the fixed order spec.md §4.4.1 step 4 lists
// them.
func Negotiate(serverKex, serverHostKey, serverCipherCtS, serverCipherStC,
	serverMACCtS, serverMACStC, serverComprCtS, serverComprStC string) (*Algorithms, error) {

	var a Algorithms
	var err error
	if a.Kex, err = findCommon("kex", ClientKexAlgos, serverKex); err != nil {
		return nil, err
	}
	if a.HostKey, err = findCommon("host key", ClientHostKeyAlgos, serverHostKey); err != nil {
		return nil, err
	}
	if a.CipherC2S, err = findCommon("cipher c2s", ClientCiphers, serverCipherCtS); err != nil {
		return nil, err
	}
	if a.CipherS2C, err = findCommon("cipher s2c", ClientCiphers, serverCipherStC); err != nil {
		return nil, err
	}
	if a.MACC2S, err = findCommon("mac c2s", ClientMACs, serverMACCtS); err != nil {
		return nil, err
	}
	if a.MACS2C, err = findCommon("mac s2c", ClientMACs, serverMACStC); err != nil {
		return nil, err
	}
	if a.ComprC2S, err = findCommon("compression c2s", ClientCompressions, serverComprCtS); err != nil {
		return nil, err
	}
	if a.ComprS2C, err = findCommon("compression s2c", ClientCompressions, serverComprStC); err != nil {
		return nil, err
	}
	return &a, nil
}

// KexState holds the client side of one Diffie-Hellman exchange.
type KexState struct {
	group *dhGroup
	x     *big.Int
	E     *big.Int
}

// NewKex generates a private exponent and public value for the negotiated
// kex algorithm (spec.md §4.2's kex_init).
func NewKex(kexAlgo string) (*KexState, error) {
	g, err := groupForKex(kexAlgo)
	if err != nil {
		return nil, err
	}
	x, err := g.private()
	if err != nil {
		return nil, err
	}
	return &KexState{group: g, x: x, E: g.public(x)}, nil
}

// SharedSecret computes K = f^x mod p, rejecting out-of-range f (spec.md
// §4.2's set_shared).
func (k *KexState) SharedSecret(f *big.Int) (*big.Int, error) {
	return k.group.shared(f, k.x)
}

// hashFor returns the exchange-hash function for a negotiated kex
// algorithm, per spec.md §4.2: SHA-1 for the group1/group14-sha1 variants,
// SHA-256 for group14-sha256.
func hashFor(kexAlgo string) func() hash.Hash {
	if kexAlgo == sshproto.KexDH14SHA256 {
		return sha256.New
	}
	return sha1.New
}

// ExchangeHash computes H over the canonical concatenation described in
// spec.md §3 (V_C, V_S, I_C, I_S, K_S, e, f, K).
func ExchangeHash(kexAlgo string, parts ...[]byte) []byte {
	h := hashFor(kexAlgo)()
	for _, p := range parts {
		h.Write(p)
	}
	return h.Sum(nil)
}

// HashSize returns the digest size of the negotiated exchange-hash
// function, used to size session_id and the key-derivation loop.
func HashSize(kexAlgo string) int {
	return hashFor(kexAlgo)().Size()
}

// VerifyHostSignature checks an RSA PKCS#1 v1.5 signature over SHA-1(H),
// per spec.md §4.2.
func VerifyHostSignature(h []byte, sig []byte, modulus, exponent *big.Int) error {
	pub := &rsa.PublicKey{N: modulus, E: int(exponent.Int64())}
	digest := sha1.Sum(h)
	if err := rsa.VerifyPKCS1v15(pub, crypto.SHA1, digest[:], sig); err != nil {
		return sshproto.NewError(sshproto.KindHostSignatureInvalid, err.Error())
	}
	return nil
}

// CheckHostKeySize rejects moduli smaller than MinHostKeyBits (spec.md
// §4.2's weak_host_key rule).
func CheckHostKeySize(modulus *big.Int) error {
	if modulus.BitLen() < MinHostKeyBits {
		return sshproto.NewError(sshproto.KindWeakHostKey,
			"host key modulus smaller than minimum accepted size")
	}
	return nil
}

// BlockSize returns the cipher block size for a negotiated cipher name,
// used to compute packet padding (spec.md §3's total-length invariant).
func BlockSize(cipherName string) int {
	switch cipherName {
	case sshproto.CipherAES128CTR, sshproto.CipherAES128CBC:
		return aes.BlockSize
	default:
		return 8
	}
}

// KeyLen returns the encryption key length in bytes for a negotiated
// cipher; both ciphers this client offers use a 128-bit key.
func KeyLen(cipherName string) int { return 16 }

// MACSize returns the MAC tag length for a negotiated MAC name (spec.md
// §8's MAC-length invariant).
func MACSize(macName string) int {
	if macName == sshproto.MACHMACSHA256 {
		return sha256.Size
	}
	return sha1.Size
}

func macHashFor(macName string) func() hash.Hash {
	if macName == sshproto.MACHMACSHA256 {
		return sha256.New
	}
	return sha1.New
}

// MAC computes HMAC(key, seq || payload), per spec.md §4.4.2.
func MAC(macName string, key []byte, seq uint32, payload []byte) []byte {
	m := hmac.New(macHashFor(macName), key)
	var seqBuf [4]byte
	seqBuf[0] = byte(seq >> 24)
	seqBuf[1] = byte(seq >> 16)
	seqBuf[2] = byte(seq >> 8)
	seqBuf[3] = byte(seq)
	m.Write(seqBuf[:])
	m.Write(payload)
	return m.Sum(nil)
}

// NewStreamCipher constructs the CTR or CBC stream used to en/decrypt one
// direction of the record layer, per the negotiated cipher name.
func NewStreamCipher(cipherName string, key, iv []byte, encrypt bool) (cipher.Stream, cipher.BlockMode, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, nil, err
	}
	switch cipherName {
	case sshproto.CipherAES128CTR:
		return cipher.NewCTR(block, iv), nil, nil
	case sshproto.CipherAES128CBC:
		if encrypt {
			return nil, cipher.NewCBCEncrypter(block, iv), nil
		}
		return nil, cipher.NewCBCDecrypter(block, iv), nil
	default:
		return nil, nil, sshproto.NewError(sshproto.KindKexNoCommonAlgo, "unsupported cipher "+cipherName)
	}
}
