package sshproto

import (
	"errors"
	"fmt"
)

// Kind enumerates the error taxonomy of spec.md §7.
type Kind string

const (
	KindIOTimeout            Kind = "io_timeout"
	KindIOClosed             Kind = "io_closed"
	KindIOOther              Kind = "io_other"
	KindProtocolViolation    Kind = "protocol_violation"
	KindMACMismatch          Kind = "mac_mismatch"
	KindKexNoCommonAlgo      Kind = "kex_no_common_algorithm"
	KindWeakHostKey          Kind = "weak_host_key"
	KindHostSignatureInvalid Kind = "host_signature_invalid"
	KindFSMError             Kind = "fsm_error"
	KindConfigError          Kind = "config_error"
	KindDisconnect           Kind = "disconnect"
)

// Error is the concrete error type every component in this module raises,
// so the driver can classify a failed probe by Kind without string
// matching.
type Error struct {
	Kind   Kind
	Detail string
	// Reason and Text are populated only for KindDisconnect, carrying the
	// SSH_MSG_DISCONNECT reason code and its UTF-8 description.
	Reason uint32
	Text   string
}

func (e *Error) Error() string {
	if e.Kind == KindDisconnect {
		return fmt.Sprintf("ssh: disconnect reason=%d: %s", e.Reason, e.Text)
	}
	return fmt.Sprintf("ssh: %s: %s", e.Kind, e.Detail)
}

func NewError(kind Kind, detail string) *Error {
	return &Error{Kind: kind, Detail: detail}
}

func NewDisconnectError(reason uint32, text string) *Error {
	return &Error{Kind: KindDisconnect, Reason: reason, Text: text}
}

// KindOf reports the Kind of err if it is (or wraps) an *Error, and false
// otherwise.
func KindOf(err error) (Kind, bool) {
	type kinder interface{ ErrorKind() Kind }
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	if k, ok := err.(kinder); ok {
		return k.ErrorKind(), true
	}
	return "", false
}
