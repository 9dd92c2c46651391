package walletconnect

import (
	"context"
	"encoding/json"

	"github.com/ethereum/go-ethereum/common"
	"moff.io/walletconnect/internal/walletconnect/session"
	"moff.io/walletconnect/internal/walletconnect/uri"
)

// ClientV1 is a dapp-side client of the WalletConnect v1 protocol.
// Connection flow: https://docs.walletconnect.com/tech-spec#establishing-connection
type ClientV1 interface {
	// URI returns the pairing string to show the user, e.g. as a QR code.
	URI() *uri.URI

	// EnsureSession waits until the wallet approves the session request and returns
	// its accounts and chain id. It returns ErrSessionRejected when the user declines
	// and ErrRequestTimeout when ctx expires first.
	EnsureSession(ctx context.Context) ([]common.Address, uint64, error)

	Request(ctx context.Context, method string, params interface{}, result interface{}) error
	PersonalSign(ctx context.Context, message []byte, address common.Address) ([]byte, error)
	EthSign(ctx context.Context, address common.Address, message []byte) ([]byte, error)
	SignTypedData(ctx context.Context, address common.Address, typedData json.RawMessage) ([]byte, error)
	SendTransaction(ctx context.Context, tx TransactionRequest) (common.Hash, error)

	State() State
	Session() session.Snapshot

	Disconnect(ctx context.Context) error
	Close() error
}

var _ ClientV1 = (*Client)(nil)
