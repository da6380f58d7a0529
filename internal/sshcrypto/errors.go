package sshcrypto

import (
	"fmt"

	"github.com/zmap/sshuserenum/internal/sshproto"
)

func errNoCommonAlgorithm(category, detail string) error {
	return sshproto.NewError(sshproto.KindKexNoCommonAlgo,
		fmt.Sprintf("no common %s algorithm (tried %q)", category, detail))
}

var errWeakPeerValue = sshproto.NewError(sshproto.KindProtocolViolation, "DH peer value f out of range (1, p-1)")
