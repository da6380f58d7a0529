package sshtransport

import "github.com/zmap/sshuserenum/internal/sshproto"

// authState names the auth-phase FSM states of spec.md §4.5: each is named
// for the most recent packet type received after reaching SERVICE_ACCEPT.
// Grounded on the original's Fsm class (OpenSshEnum.cpp), which validated
// transitions against a map<state, set<allowed next state>> built once by
// setTree and consulted by checkStatus; the Go redesign keeps the same
// shape as a map of slices instead of a hand-rolled tree.
type authState int

const (
	stateInit authState = iota
	stateServiceAccept
	stateUserauthFailure
	stateUserauthInfoRequest
	stateUserauthSuccess
	stateChannelOpenConfirmation
)

// authTransitions is the table from spec.md §4.5, translating each allowed
// "next (received)" message type into the state it leads to.
var authTransitions = map[authState]map[byte]authState{
	stateInit: {
		sshproto.MsgServiceAccept: stateServiceAccept,
	},
	stateServiceAccept: {
		sshproto.MsgUserauthFailure:     stateUserauthFailure,
		sshproto.MsgUserauthInfoRequest: stateUserauthInfoRequest,
	},
	stateUserauthFailure: {
		sshproto.MsgServiceAccept:       stateServiceAccept,
		sshproto.MsgUserauthFailure:     stateUserauthFailure,
		sshproto.MsgUserauthInfoRequest: stateUserauthInfoRequest,
	},
	stateUserauthInfoRequest: {
		sshproto.MsgServiceAccept:       stateServiceAccept,
		sshproto.MsgUserauthInfoRequest: stateUserauthInfoRequest,
		sshproto.MsgUserauthFailure:     stateUserauthFailure,
		sshproto.MsgUserauthSuccess:     stateUserauthSuccess,
	},
	stateUserauthSuccess: {
		sshproto.MsgChannelOpenConfirmation: stateChannelOpenConfirmation,
	},
	stateChannelOpenConfirmation: {
		sshproto.MsgChannelWindowAdjust: stateChannelOpenConfirmation,
	},
}

// authFSM tracks the current auth-phase state and validates each received
// message type against it. SSH_MSG_IGNORE, SSH_MSG_USERAUTH_BANNER, and
// SSH_MSG_GLOBAL_REQUEST are accepted in any state without moving it,
// matching spec.md §4.5 point 4.
type authFSM struct {
	state authState
}

func newAuthFSM() *authFSM { return &authFSM{state: stateInit} }

// advance validates msgType against the current state and, if allowed,
// moves to the resulting state. Message types that never change state
// (IGNORE, BANNER, GLOBAL_REQUEST) are handled by the caller before this is
// reached; everything else not present in the transition table is a
// protocol violation.
func (f *authFSM) advance(msgType byte) error {
	next, ok := authTransitions[f.state][msgType]
	if !ok {
		return sshproto.NewError(sshproto.KindFSMError, "unexpected message type in auth state machine")
	}
	f.state = next
	return nil
}
