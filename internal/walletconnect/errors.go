package walletconnect

import (
	"moff.io/walletconnect/internal/walletconnect/session"
	"moff.io/walletconnect/pkg/errors"
)

var (
	ErrSessionRejected  = session.ErrRejected
	ErrUnexpectedPeer   = session.ErrUnexpectedPeer
	ErrChainIDMismatch  = session.ErrChainIDMismatch
	ErrNotConnected     = errors.New("session not connected")
	ErrInvalidSignature = errors.New("signature was not produced by the requested account")
	ErrDisconnected     = errors.New("disconnected from wallet")
	ErrRequestTimeout   = errors.New("wallet connect request timed out")
)
