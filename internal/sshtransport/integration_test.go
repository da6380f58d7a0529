package sshtransport

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"math/big"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zmap/sshuserenum/internal/sshcrypto"
	"github.com/zmap/sshuserenum/internal/sshproto"
)

// fakeSSHServer performs the server side of one full handshake plus the
// oracle exchange over conn, signing with key and replying to the
// malformed publickey request with outcome ("failure", "inforequest", or
// "close"). It exercises exactly the wire sequence a real OpenSSH server
// would, letting the end-to-end scenarios of spec.md §8 run against this
// package's own client code without a network-facing test dependency.
func fakeSSHServer(t *testing.T, conn net.Conn, key *rsa.PrivateKey, outcome string) {
	t.Helper()
	st := New(conn)

	require.NoError(t, st.SendBanner())
	clientBanner, err := st.ReadBanner()
	require.NoError(t, err)

	serverKexPayload := buildKexInit()
	require.NoError(t, st.WritePacket(serverKexPayload))
	clientKexPayload, err := st.ReadPacket()
	require.NoError(t, err)

	clientKex, err := parseKexInit(clientKexPayload)
	require.NoError(t, err)
	algos, err := sshcrypto.Negotiate(clientKex.kex, clientKex.hostKey,
		clientKex.cipherCtoS, clientKex.cipherStoC,
		clientKex.macCtoS, clientKex.macStoC,
		clientKex.comprCtoS, clientKex.comprStoC)
	require.NoError(t, err)

	dhInitPayload, err := st.ReadPacket()
	require.NoError(t, err)
	p := sshproto.NewParser(dhInitPayload)
	_, err = p.GetU8()
	require.NoError(t, err)
	e, err := p.GetBignum()
	require.NoError(t, err)

	serverKex, err := sshcrypto.NewKex(algos.Kex)
	require.NoError(t, err)
	k, err := serverKex.SharedSecret(e)
	require.NoError(t, err)

	hostKeyBlob := sshproto.PutString(nil, []byte(sshproto.HostKeyRSA))
	hostKeyBlob = sshproto.PutBignum(hostKeyBlob, big.NewInt(int64(key.PublicKey.E)))
	hostKeyBlob = sshproto.PutBignum(hostKeyBlob, key.PublicKey.N)

	h := sshcrypto.ExchangeHash(algos.Kex,
		sshproto.PutString(nil, []byte(clientBanner)),
		sshproto.PutString(nil, []byte(ClientBanner)),
		sshproto.PutString(nil, clientKexPayload),
		sshproto.PutString(nil, serverKexPayload),
		sshproto.PutString(nil, hostKeyBlob),
		sshproto.PutBignum(nil, e),
		sshproto.PutBignum(nil, serverKex.E),
		sshproto.PutBignum(nil, k),
	)
	digest := sha1.Sum(h)
	sig, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA1, digest[:])
	require.NoError(t, err)
	sigBlob := sshproto.PutString(nil, []byte(sshproto.HostKeyRSA))
	sigBlob = sshproto.PutString(sigBlob, sig)

	reply := sshproto.NewBuilder(sshproto.MsgKexDHReply)
	reply.Append(
		sshproto.LenBytes(hostKeyBlob),
		sshproto.Bignum(serverKex.E),
		sshproto.LenBytes(sigBlob),
	)
	require.NoError(t, st.WritePacket(reply.Bytes()))
	if key.PublicKey.N.BitLen() < sshcrypto.MinHostKeyBits {
		// The client rejects this host key on the reply and sends nothing
		// further, so the exchange ends here.
		_ = conn.Close()
		return
	}

	require.NoError(t, st.WritePacket([]byte{sshproto.MsgNewKeys}))
	newKeysPayload, err := st.ReadPacket()
	require.NoError(t, err)
	require.Equal(t, byte(sshproto.MsgNewKeys), newKeysPayload[0])

	keys := deriveKeys(algos.Kex, algos, k, h, h)
	require.NoError(t, st.installKeys(&sshcrypto.Algorithms{
		CipherC2S: algos.CipherS2C, CipherS2C: algos.CipherC2S,
		MACC2S: algos.MACS2C, MACS2C: algos.MACC2S,
	}, &derivedKeys{
		ivCtoS: keys.ivStoC, ivStoC: keys.ivCtoS,
		encKeyCtoS: keys.encKeyStoC, encKeyStoC: keys.encKeyCtoS,
		macKeyCtoS: keys.macKeyStoC, macKeyStoC: keys.macKeyCtoS,
	}))

	svcReq, err := st.ReadPacket()
	require.NoError(t, err)
	require.Equal(t, byte(sshproto.MsgServiceRequest), svcReq[0])
	accept := sshproto.NewBuilder(sshproto.MsgServiceAccept)
	accept.Append(sshproto.LenString(sshproto.ServiceUserAuth))
	require.NoError(t, st.WritePacket(accept.Bytes()))

	_, err = st.ReadPacket()
	require.NoError(t, err)

	switch outcome {
	case "failure":
		b := sshproto.NewBuilder(sshproto.MsgUserauthFailure)
		b.Append(sshproto.LenString("publickey"), sshproto.U8(0))
		require.NoError(t, st.WritePacket(b.Bytes()))
	case "inforequest":
		b := sshproto.NewBuilder(sshproto.MsgUserauthInfoRequest)
		b.Append(sshproto.LenString("name"), sshproto.LenString(""), sshproto.LenString(""), sshproto.U32(0))
		require.NoError(t, st.WritePacket(b.Bytes()))
	case "close":
		// fall through to conn.Close below
	}
	_ = conn.Close()
}

// tcpPair returns both ends of a loopback TCP connection. net.Pipe does not
// fit here: its writes block until the peer reads, and client and server
// both send their banner and KEXINIT before reading the other's.
func tcpPair(t *testing.T) (net.Conn, net.Conn) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	client, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	server, err := ln.Accept()
	require.NoError(t, err)
	return client, server
}

func TestEndToEndNonexistentUser(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	client, server := tcpPair(t)
	defer client.Close()
	go fakeSSHServer(t, server, key, "failure")

	ct := New(client)
	res, err := ct.Handshake()
	require.NoError(t, err)
	assert.Equal(t, sshproto.HostKeyRSA, res.HostKey.KeyType)

	outcome, err := ct.Probe("alice")
	require.NoError(t, err)
	assert.Equal(t, OutcomeAbsent, outcome)
}

func TestEndToEndExistentUserViaInfoRequest(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	client, server := tcpPair(t)
	defer client.Close()
	go fakeSSHServer(t, server, key, "inforequest")

	ct := New(client)
	_, err = ct.Handshake()
	require.NoError(t, err)

	outcome, err := ct.Probe("bob")
	require.NoError(t, err)
	assert.Equal(t, OutcomePresent, outcome)
}

func TestEndToEndExistentUserViaConnectionClose(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	client, server := tcpPair(t)
	defer client.Close()
	go fakeSSHServer(t, server, key, "close")

	ct := New(client)
	_, err = ct.Handshake()
	require.NoError(t, err)

	outcome, err := ct.Probe("carol")
	require.NoError(t, err)
	assert.Equal(t, OutcomePresent, outcome)
}

func TestEndToEndWeakHostKeyRejected(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 768)
	require.NoError(t, err)

	client, server := tcpPair(t)
	defer client.Close()
	go fakeSSHServer(t, server, key, "failure")

	ct := New(client)
	_, err = ct.Handshake()
	require.Error(t, err)
	kind, ok := sshproto.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, sshproto.KindWeakHostKey, kind)
}
