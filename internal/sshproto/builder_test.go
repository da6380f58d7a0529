package sshproto

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilderGroupBackpatch(t *testing.T) {
	b := NewBuilder(MsgUserauthRequest)
	b.Append(
		LenString("alice"),
		LenString(ServiceConnect),
		LenString(AuthMethodPubkey),
		U8(1),
		LenString("ssh-rsa"),
		Group(LenString("ssh-rsa"), LenBytes([]byte{1, 2, 3})),
	)
	payload := b.Bytes()
	assert.Equal(t, byte(MsgUserauthRequest), payload[0])

	p := NewParser(payload)
	_, err := p.GetU8()
	require.NoError(t, err)
	user, err := p.GetString()
	require.NoError(t, err)
	assert.Equal(t, "alice", string(user))
	svc, err := p.GetString()
	require.NoError(t, err)
	assert.Equal(t, ServiceConnect, string(svc))
	method, err := p.GetString()
	require.NoError(t, err)
	assert.Equal(t, AuthMethodPubkey, string(method))
	hasSig, err := p.GetU8()
	require.NoError(t, err)
	assert.Equal(t, byte(1), hasSig)
	keyType, err := p.GetString()
	require.NoError(t, err)
	assert.Equal(t, "ssh-rsa", string(keyType))

	groupLen, err := p.GetU32()
	require.NoError(t, err)
	innerStart := p.Offset()
	innerKeyType, err := p.GetString()
	require.NoError(t, err)
	assert.Equal(t, "ssh-rsa", string(innerKeyType))
	sigBlob, err := p.GetString()
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, sigBlob)
	assert.Equal(t, int(groupLen), p.Offset()-innerStart)
}

func TestGroupEmpty(t *testing.T) {
	b := NewBuilder(MsgChannelOpen)
	b.Append(Group())
	payload := b.Bytes()
	p := NewParser(payload)
	_, _ = p.GetU8()
	n, err := p.GetU32()
	require.NoError(t, err)
	assert.Equal(t, uint32(0), n)
}

func TestBignumField(t *testing.T) {
	b := NewBuilder(MsgKexDHInit)
	b.Append(Bignum(big.NewInt(65537)))
	p := NewParser(b.Bytes())
	_, _ = p.GetU8()
	n, err := p.GetBignum()
	require.NoError(t, err)
	assert.Equal(t, int64(65537), n.Int64())
}
