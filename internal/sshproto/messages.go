// Package sshproto implements the wire-level pieces of RFC 4253/4252/4419
// that the probe needs: message type constants, length-prefixed field
// encoding, and a packet builder/parser pair. It knows nothing about
// sockets, ciphers, or the auth state machine; see sshcrypto and
// sshtransport for those.
package sshproto

// SSH message numbers, RFC 4253 section 12 and RFC 4252 section 6.
const (
	MsgDisconnect              = 1
	MsgIgnore                  = 2
	MsgUnimplemented           = 3
	MsgDebug                   = 4
	MsgServiceRequest          = 5
	MsgServiceAccept           = 6
	MsgKexInit                 = 20
	MsgNewKeys                 = 21
	MsgKexDHInit               = 30
	MsgKexDHReply              = 31
	MsgKexDHGexRequestOld      = 30
	MsgKexDHGexGroup           = 31
	MsgKexDHGexInit            = 32
	MsgKexDHGexReply           = 33
	MsgUserauthRequest         = 50
	MsgUserauthFailure         = 51
	MsgUserauthSuccess         = 52
	MsgUserauthBanner          = 53
	MsgUserauthInfoRequest     = 60
	MsgGlobalRequest           = 80
	MsgRequestSuccess          = 81
	MsgRequestFailure          = 82
	MsgChannelOpen             = 90
	MsgChannelOpenConfirmation = 91
	MsgChannelOpenFailure      = 92
	MsgChannelWindowAdjust     = 93
	MsgChannelData             = 94
	MsgChannelEOF              = 96
	MsgChannelClose            = 97
	MsgChannelRequest          = 98
)

// SSH_DISCONNECT reason codes, RFC 4253 section 11.1.
const (
	DisconnectByApplication = 11
)

// Protocol identification strings.
const (
	ServiceUserAuth    = "ssh-userauth"
	ServiceConnect     = "ssh-connection"
	AuthMethodPubkey   = "publickey"
	ChannelTypeSession = "session"
)

// Key-exchange and MAC algorithm names this client offers. The preference
// order is set by sshcrypto's Client* lists, not by the order below (first
// match against the server's list wins, per RFC 4253 §7.1).
const (
	KexDH1SHA1    = "diffie-hellman-group1-sha1"
	KexDH14SHA1   = "diffie-hellman-group14-sha1"
	KexDH14SHA256 = "diffie-hellman-group14-sha256"
)

const (
	HostKeyRSA = "ssh-rsa"
)

const (
	CipherAES128CTR = "aes128-ctr"
	CipherAES128CBC = "aes128-cbc"
)

const (
	MACHMACSHA1   = "hmac-sha1"
	MACHMACSHA256 = "hmac-sha2-256"
)

const CompressionNone = "none"

// MaxPacket is the hard ceiling on packet_length+4, RFC 4253 §6.1.
const MaxPacket = 35000

// CookieLen is the length in bytes of the KEXINIT random cookie.
const CookieLen = 16
