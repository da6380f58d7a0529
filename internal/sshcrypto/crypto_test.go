package sshcrypto

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zmap/sshuserenum/internal/sshproto"
)

func TestNegotiatePrefersClientOrder(t *testing.T) {
	a, err := Negotiate(
		"diffie-hellman-group1-sha1,diffie-hellman-group14-sha256",
		sshproto.HostKeyRSA,
		"aes128-cbc,aes128-ctr",
		"aes128-cbc,aes128-ctr",
		"hmac-sha1,hmac-sha2-256",
		"hmac-sha1,hmac-sha2-256",
		sshproto.CompressionNone,
		sshproto.CompressionNone,
	)
	require.NoError(t, err)
	assert.Equal(t, sshproto.KexDH14SHA256, a.Kex)
	assert.Equal(t, sshproto.CipherAES128CTR, a.CipherC2S)
	assert.Equal(t, sshproto.MACHMACSHA256, a.MACC2S)
}

func TestNegotiateNoCommonAlgorithm(t *testing.T) {
	_, err := Negotiate("diffie-hellman-group-exchange-sha1", sshproto.HostKeyRSA,
		sshproto.CipherAES128CTR, sshproto.CipherAES128CTR,
		sshproto.MACHMACSHA1, sshproto.MACHMACSHA1,
		sshproto.CompressionNone, sshproto.CompressionNone)
	require.Error(t, err)
	kind, ok := sshproto.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, sshproto.KindKexNoCommonAlgo, kind)
}

func TestKexRoundTrip(t *testing.T) {
	client, err := NewKex(sshproto.KexDH14SHA1)
	require.NoError(t, err)
	server, err := NewKex(sshproto.KexDH14SHA1)
	require.NoError(t, err)

	kClient, err := client.SharedSecret(server.E)
	require.NoError(t, err)
	kServer, err := server.SharedSecret(client.E)
	require.NoError(t, err)
	assert.Equal(t, kClient, kServer)
}

func TestSharedSecretRejectsOutOfRangePeerValue(t *testing.T) {
	client, err := NewKex(sshproto.KexDH14SHA1)
	require.NoError(t, err)
	_, err = client.SharedSecret(big.NewInt(1))
	require.Error(t, err)
	kind, ok := sshproto.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, sshproto.KindProtocolViolation, kind)
}

func TestHashSizeMatchesAlgorithm(t *testing.T) {
	assert.Equal(t, 20, HashSize(sshproto.KexDH14SHA1))
	assert.Equal(t, 32, HashSize(sshproto.KexDH14SHA256))
}

func TestCheckHostKeySizeRejectsWeakModulus(t *testing.T) {
	small := new(big.Int).Lsh(big.NewInt(1), 512)
	err := CheckHostKeySize(small)
	require.Error(t, err)
	kind, ok := sshproto.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, sshproto.KindWeakHostKey, kind)

	big2048 := new(big.Int).Lsh(big.NewInt(1), 2048)
	assert.NoError(t, CheckHostKeySize(big2048))
}

func TestMACDeterministic(t *testing.T) {
	key := []byte("0123456789abcdef")
	tag1 := MAC(sshproto.MACHMACSHA1, key, 3, []byte("payload"))
	tag2 := MAC(sshproto.MACHMACSHA1, key, 3, []byte("payload"))
	assert.Equal(t, tag1, tag2)
	assert.Len(t, tag1, MACSize(sshproto.MACHMACSHA1))

	tag3 := MAC(sshproto.MACHMACSHA1, key, 4, []byte("payload"))
	assert.NotEqual(t, tag1, tag3)
}

func TestNewStreamCipherCTRRoundTrip(t *testing.T) {
	key := make([]byte, 16)
	iv := make([]byte, 16)
	enc, _, err := NewStreamCipher(sshproto.CipherAES128CTR, key, iv, true)
	require.NoError(t, err)
	dec, _, err := NewStreamCipher(sshproto.CipherAES128CTR, key, iv, false)
	require.NoError(t, err)

	plain := []byte("hello ssh record layer")
	ct := make([]byte, len(plain))
	enc.XORKeyStream(ct, plain)
	pt := make([]byte, len(ct))
	dec.XORKeyStream(pt, ct)
	assert.Equal(t, plain, pt)
}
