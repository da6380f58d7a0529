package sshcrypto

import (
	"crypto/rand"
	"math/big"
)

// dhGroup is a named Diffie-Hellman group: a safe prime p and generator g.
// Modeled on the pack's IKE implementation (egorse-ike's dhGroup), which
// represents each negotiable group the same way: a modulus, a generator,
// and private/public/shared helpers built on math/big.
type dhGroup struct {
	p *big.Int
	g *big.Int
}

// group1 is RFC 2409's Oakley Group 2 (1024-bit MODP), used by
// diffie-hellman-group1-sha1.
var group1 = &dhGroup{
	p: mustHex("FFFFFFFFFFFFFFFFC90FDAA22168C234C4C6628B80DC1CD129024E0" +
		"88A67CC74020BBEA63B139B22514A08798E3404DDEF9519B3CD3A43" +
		"1B302B0A6DF25F14374FE1356D6D51C245E485B576625E7EC6F44C4" +
		"2E9A637ED6B0BFF5CB6F406B7EDEE386BFB5A899FA5AE9F24117C4B" +
		"1FE649286651ECE65381FFFFFFFFFFFFFFFF"),
	g: big.NewInt(2),
}

// group14 is RFC 3526's 2048-bit MODP group, used by both
// diffie-hellman-group14-sha1 and diffie-hellman-group14-sha256.
var group14 = &dhGroup{
	p: mustHex("FFFFFFFFFFFFFFFFC90FDAA22168C234C4C6628B80DC1CD129024E0" +
		"88A67CC74020BBEA63B139B22514A08798E3404DDEF9519B3CD3A43" +
		"1B302B0A6DF25F14374FE1356D6D51C245E485B576625E7EC6F44C4" +
		"2E9A637ED6B0BFF5CB6F406B7EDEE386BFB5A899FA5AE9F24117C4B" +
		"1FE649286651ECE45B3DC2007CB8A163BF0598DA48361C55D39A69" +
		"163FA8FD24CF5F83655D23DCA3AD961C62F356208552BB9ED52907" +
		"7096966D670C354E4ABC9804F1746C08CA18217C32905E462E36CE" +
		"3BE39E772C180E86039B2783A2EC07A28FB5C55DF06F4C52C9DE2B" +
		"CBF6955817183995497CEA956AE515D2261898FA051015728E5A8A" +
		"ACAA68FFFFFFFFFFFFFFFF"),
	g: big.NewInt(2),
}

func mustHex(s string) *big.Int {
	n, ok := new(big.Int).SetString(s, 16)
	if !ok {
		panic("sshcrypto: invalid embedded DH modulus")
	}
	return n
}

func groupForKex(kexAlgo string) (*dhGroup, error) {
	switch kexAlgo {
	case "diffie-hellman-group1-sha1":
		return group1, nil
	case "diffie-hellman-group14-sha1", "diffie-hellman-group14-sha256":
		return group14, nil
	default:
		return nil, errNoCommonAlgorithm("kex", kexAlgo)
	}
}

// private draws a 256-bit exponent from the OS RNG, matching the original's
// choice of 256 bits of randomness for x regardless of group size (spec.md
// §4.2's kex_init contract).
func (g *dhGroup) private() (*big.Int, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(b), nil
}

func (g *dhGroup) public(x *big.Int) *big.Int {
	return new(big.Int).Exp(g.g, x, g.p)
}

// shared computes f^x mod p, rejecting f outside (1, p-1) per spec.md
// §4.2's set_shared contract.
func (g *dhGroup) shared(f, x *big.Int) (*big.Int, error) {
	one := big.NewInt(1)
	pMinus1 := new(big.Int).Sub(g.p, one)
	if f.Cmp(one) <= 0 || f.Cmp(pMinus1) >= 0 {
		return nil, errWeakPeerValue
	}
	return new(big.Int).Exp(f, x, g.p), nil
}
