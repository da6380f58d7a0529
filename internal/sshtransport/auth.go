package sshtransport

import (
	"errors"
	"io"

	"github.com/zmap/sshuserenum/internal/sshproto"
)

// ProbeOutcome is the present/absent verdict of one user-enumeration probe
// (spec.md §4.3's oracle contract). A probe that fails also returns a
// non-nil error alongside OutcomeAbsent.
type ProbeOutcome int

const (
	// OutcomeAbsent means the server rejected the malformed publickey
	// request outright: SSH_MSG_USERAUTH_FAILURE arrived before the
	// connection closed.
	OutcomeAbsent ProbeOutcome = iota
	// OutcomePresent means the server attempted to process the malformed
	// request far enough to fail asymmetrically: it either sent
	// SSH_MSG_USERAUTH_INFO_REQUEST, or closed the connection instead of
	// replying with USERAUTH_FAILURE.
	OutcomePresent
)

func (o ProbeOutcome) String() string {
	if o == OutcomePresent {
		return "present"
	}
	return "absent"
}

// Probe runs the existence-oracle sequence against one username: it
// requests the ssh-userauth service, then sends a publickey auth request
// with has_signature deliberately set to 3 (a value RFC 4252 never defines;
// valid implementations only ever send 0 or 1), and classifies the server's
// reaction. This mirrors SshConnection::connectionLoop's oracle branch in
// the original, where the comment on the malformed byte reads "Should be 0:
// so it's malformed".
func (t *Transport) Probe(username string) (ProbeOutcome, error) {
	if err := t.requestUserauthService(); err != nil {
		return OutcomeAbsent, err
	}
	if err := t.sendMalformedPubkeyRequest(username); err != nil {
		return OutcomeAbsent, err
	}
	return t.runOracleLoop()
}

func (t *Transport) requestUserauthService() error {
	b := sshproto.NewBuilder(sshproto.MsgServiceRequest)
	b.Append(sshproto.LenString(sshproto.ServiceUserAuth))
	if err := t.WritePacket(b.Bytes()); err != nil {
		return err
	}
	payload, err := t.ReadPacket()
	if err != nil {
		return err
	}
	if len(payload) == 0 {
		return sshproto.NewError(sshproto.KindProtocolViolation, "empty SERVICE_ACCEPT reply")
	}
	switch payload[0] {
	case sshproto.MsgServiceAccept:
		return nil
	case sshproto.MsgDisconnect:
		return disconnectErr(payload)
	default:
		return sshproto.NewError(sshproto.KindProtocolViolation, "expected SERVICE_ACCEPT")
	}
}

// malformedHasSignature is the deliberately invalid has_signature byte:
// RFC 4252 §7 defines only FALSE (0, query) and TRUE (1, sign); 3 makes
// every conforming server reject the request while still distinguishing,
// via which rejection path it takes, whether the named user exists.
const malformedHasSignature = 3

func (t *Transport) sendMalformedPubkeyRequest(username string) error {
	b := sshproto.NewBuilder(sshproto.MsgUserauthRequest)
	b.Append(
		sshproto.LenString(username),
		sshproto.LenString(sshproto.ServiceConnect),
		sshproto.LenString(sshproto.AuthMethodPubkey),
		sshproto.U8(malformedHasSignature),
		sshproto.LenString(sshproto.HostKeyRSA),
	)
	return t.WritePacket(b.Bytes())
}

// runOracleLoop reads packets until it reaches a terminal classification,
// validating each one against the auth FSM of spec.md §4.5. IGNORE,
// USERAUTH_BANNER, and GLOBAL_REQUEST are accepted in any state without
// consulting the FSM, matching connectionLoop's switch statement in the
// original, which handles those three the same way regardless of what
// state the rest of the handshake is in.
func (t *Transport) runOracleLoop() (ProbeOutcome, error) {
	fsm := newAuthFSM()
	// requestUserauthService already read and checked SERVICE_ACCEPT, so
	// the FSM starts here in the state that packet leads to.
	fsm.state = stateServiceAccept

	for {
		payload, err := t.ReadPacket()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				// The server closed the connection instead of answering;
				// spec.md §4.5 treats this as a presence signal because
				// some servers tear down the session as soon as the
				// malformed request reaches a user-specific auth handler.
				return OutcomePresent, nil
			}
			return OutcomeAbsent, err
		}
		if len(payload) == 0 {
			return OutcomeAbsent, sshproto.NewError(sshproto.KindProtocolViolation, "empty packet")
		}

		switch payload[0] {
		case sshproto.MsgUserauthBanner, sshproto.MsgIgnore:
			continue
		case sshproto.MsgGlobalRequest:
			if err := t.replyRequestFailure(); err != nil {
				return OutcomeAbsent, err
			}
			continue
		case sshproto.MsgDisconnect:
			return OutcomeAbsent, disconnectErr(payload)
		case sshproto.MsgUnimplemented:
			return OutcomeAbsent, sshproto.NewError(sshproto.KindProtocolViolation, "server sent SSH_MSG_UNIMPLEMENTED")
		}

		if err := fsm.advance(payload[0]); err != nil {
			return OutcomeAbsent, err
		}

		switch payload[0] {
		case sshproto.MsgUserauthFailure:
			return OutcomeAbsent, nil
		case sshproto.MsgUserauthInfoRequest, sshproto.MsgUserauthSuccess:
			return OutcomePresent, nil
		}
	}
}

func (t *Transport) replyRequestFailure() error {
	return t.WritePacket([]byte{sshproto.MsgRequestFailure})
}

func disconnectErr(payload []byte) error {
	p := sshproto.NewParser(payload)
	if _, err := p.GetU8(); err != nil {
		return sshproto.NewDisconnectError(0, "")
	}
	reason, err := p.GetU32()
	if err != nil {
		return sshproto.NewDisconnectError(0, "")
	}
	text, err := p.GetString()
	if err != nil {
		return sshproto.NewDisconnectError(reason, "")
	}
	return sshproto.NewDisconnectError(reason, string(text))
}
