package sshtransport

import (
	"math/big"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zmap/sshuserenum/internal/sshcrypto"
	"github.com/zmap/sshuserenum/internal/sshproto"
)

func big65537() *big.Int { return big.NewInt(65537) }

func bigModulus() *big.Int {
	return new(big.Int).Lsh(big.NewInt(1), 2048)
}

func TestBannerRoundTrip(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	ct := New(client)
	st := New(server)

	done := make(chan error, 1)
	go func() { done <- st.SendBanner() }()

	banner, err := ct.ReadBanner()
	require.NoError(t, err)
	assert.Equal(t, ClientBanner, banner)
	require.NoError(t, <-done)
}

func TestReadBannerSkipsLeadingJunkLines(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	ct := New(client)
	go func() {
		_, _ = server.Write([]byte("Welcome to our system\r\n"))
		_, _ = server.Write([]byte("SSH-2.0-OpenSSH_9.6\r\n"))
	}()

	banner, err := ct.ReadBanner()
	require.NoError(t, err)
	assert.Equal(t, "SSH-2.0-OpenSSH_9.6", banner)
}

func TestPlaintextPacketRoundTrip(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	ct := New(client)
	st := New(server)

	payload := sshproto.NewBuilder(sshproto.MsgKexInit).Append(sshproto.LenString("hello")).Bytes()
	done := make(chan error, 1)
	go func() { done <- ct.WritePacket(payload) }()

	got, err := st.ReadPacket()
	require.NoError(t, err)
	assert.Equal(t, payload, got)
	require.NoError(t, <-done)
}

func TestEncryptedPacketRoundTrip(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	ct := New(client)
	st := New(server)

	algos := &sshcrypto.Algorithms{
		CipherC2S: sshproto.CipherAES128CTR,
		CipherS2C: sshproto.CipherAES128CTR,
		MACC2S:    sshproto.MACHMACSHA1,
		MACS2C:    sshproto.MACHMACSHA1,
	}
	key := make([]byte, 16)
	iv := make([]byte, 16)
	macKey := make([]byte, 20)

	keys := &derivedKeys{
		ivCtoS: iv, ivStoC: iv,
		encKeyCtoS: key, encKeyStoC: key,
		macKeyCtoS: macKey, macKeyStoC: macKey,
	}
	require.NoError(t, ct.installKeys(algos, keys))
	require.NoError(t, st.installKeys(algos, keys))

	payload := sshproto.NewBuilder(sshproto.MsgUserauthFailure).Append(sshproto.LenString("publickey")).Bytes()
	done := make(chan error, 1)
	go func() { done <- ct.WritePacket(payload) }()

	got, err := st.ReadPacket()
	require.NoError(t, err)
	assert.Equal(t, payload, got)
	require.NoError(t, <-done)
}

func TestEncryptedPacketRejectsTamperedMAC(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	algos := &sshcrypto.Algorithms{
		CipherC2S: sshproto.CipherAES128CTR,
		CipherS2C: sshproto.CipherAES128CTR,
		MACC2S:    sshproto.MACHMACSHA1,
		MACS2C:    sshproto.MACHMACSHA1,
	}
	key := make([]byte, 16)
	iv := make([]byte, 16)
	macKey := make([]byte, 20)
	keys := &derivedKeys{
		ivCtoS: iv, ivStoC: iv,
		encKeyCtoS: key, encKeyStoC: key,
		macKeyCtoS: macKey, macKeyStoC: macKey,
	}

	st := New(server)
	require.NoError(t, st.installKeys(algos, keys))

	// Build a frame that decrypts to a well-formed 32-byte packet (so the
	// server's length check passes) but carry a MAC tag that does not match.
	plain := make([]byte, 32)
	plain[3] = 32 - 4
	plain[4] = 16 // padding_length, leaves 11 bytes of "payload"

	attackerStream, _, err := sshcrypto.NewStreamCipher(sshproto.CipherAES128CTR, key, iv, true)
	require.NoError(t, err)
	cipherText := make([]byte, len(plain))
	attackerStream.XORKeyStream(cipherText, plain)

	badTag := make([]byte, 20)
	badTag[0] = 0xff

	go func() {
		_, _ = client.Write(cipherText)
		_, _ = client.Write(badTag)
	}()

	_, err = st.ReadPacket()
	require.Error(t, err)
	kind, ok := sshproto.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, sshproto.KindMACMismatch, kind)
}

func TestParseKexInit(t *testing.T) {
	payload := buildKexInit()
	parsed, err := parseKexInit(payload)
	require.NoError(t, err)
	assert.Contains(t, parsed.kex, sshproto.KexDH14SHA256)
	assert.Equal(t, sshproto.HostKeyRSA, parsed.hostKey)
}

func TestParseHostKey(t *testing.T) {
	b := sshproto.PutString(nil, []byte(sshproto.HostKeyRSA))
	b = sshproto.PutBignum(b, big65537())
	b = sshproto.PutBignum(b, bigModulus())
	hk, err := parseHostKey(b)
	require.NoError(t, err)
	assert.Equal(t, sshproto.HostKeyRSA, hk.KeyType)
	assert.Equal(t, int64(65537), hk.Exponent.Int64())
}

func TestDisconnectSendsReasonEleven(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()
	ct := New(client)
	st := New(server)

	done := make(chan error, 1)
	go func() { done <- ct.Disconnect() }()

	payload, err := st.ReadPacket()
	require.NoError(t, err)
	require.Equal(t, byte(sshproto.MsgDisconnect), payload[0])
	reason, _ := sshproto.ReadUint32(payload, 1)
	assert.Equal(t, uint32(sshproto.DisconnectByApplication), reason)
	<-done
}

func TestSetDeadlinePropagates(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()
	ct := New(client)
	err := ct.SetDeadline(time.Now().Add(time.Second))
	assert.NoError(t, err)
}
