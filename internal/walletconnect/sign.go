package walletconnect

import (
	"context"
	"encoding/json"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"moff.io/walletconnect/internal/walletconnect/protocol"
	"moff.io/walletconnect/pkg/errors"
)

// TransactionRequest is the single parameter of eth_sendTransaction.
type TransactionRequest struct {
	From     common.Address  `json:"from"`
	To       *common.Address `json:"to,omitempty"`
	Data     hexutil.Bytes   `json:"data,omitempty"`
	Gas      *hexutil.Uint64 `json:"gas,omitempty"`
	GasPrice *hexutil.Big    `json:"gasPrice,omitempty"`
	Value    *hexutil.Big    `json:"value,omitempty"`
	Nonce    *hexutil.Uint64 `json:"nonce,omitempty"`
}

// PersonalSign asks the wallet to sign message with address and checks that the
// signature recovers to address.
func (c *Client) PersonalSign(ctx context.Context, message []byte, address common.Address) ([]byte, error) {
	var sig hexutil.Bytes
	params := []interface{}{hexutil.Encode(message), address.Hex()}
	if err := c.Request(ctx, protocol.MethodPersonalSign, params, &sig); err != nil {
		return nil, err
	}
	if err := verifySignature(address, sig, message); err != nil {
		return nil, err
	}
	return sig, nil
}

// EthSign asks the wallet for an eth_sign signature of message. Wallets prefix
// the message the way personal_sign does, so the signature is checked the same way.
func (c *Client) EthSign(ctx context.Context, address common.Address, message []byte) ([]byte, error) {
	var sig hexutil.Bytes
	params := []interface{}{address.Hex(), hexutil.Encode(message)}
	if err := c.Request(ctx, protocol.MethodEthSign, params, &sig); err != nil {
		return nil, err
	}
	if err := verifySignature(address, sig, message); err != nil {
		return nil, err
	}
	return sig, nil
}

// SignTypedData asks the wallet for an EIP-712 signature. The typed data document
// is passed through unchanged and the signature is not checked.
func (c *Client) SignTypedData(ctx context.Context, address common.Address, typedData json.RawMessage) ([]byte, error) {
	var sig hexutil.Bytes
	params := []interface{}{address.Hex(), string(typedData)}
	if err := c.Request(ctx, protocol.MethodSignTypedData, params, &sig); err != nil {
		return nil, err
	}
	return sig, nil
}

// SendTransaction asks the wallet to sign and broadcast tx and returns its hash.
func (c *Client) SendTransaction(ctx context.Context, tx TransactionRequest) (common.Hash, error) {
	var hash common.Hash
	if err := c.Request(ctx, protocol.MethodSendTx, []interface{}{tx}, &hash); err != nil {
		return common.Hash{}, err
	}
	return hash, nil
}

func verifySignature(address common.Address, signature []byte, msg []byte) error {
	if len(signature) != crypto.SignatureLength {
		return errors.Wrapf(ErrInvalidSignature, "signature has %d bytes", len(signature))
	}
	sig := make([]byte, len(signature))
	copy(sig, signature)
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27 // Transform yellow paper V from 27/28 to 0/1
	}
	recovered, err := crypto.SigToPub(accounts.TextHash(msg), sig)
	if err != nil {
		return errors.Wrapf(ErrInvalidSignature, "%v", err)
	}
	if signer := crypto.PubkeyToAddress(*recovered); signer != address {
		return errors.Wrapf(ErrInvalidSignature, "signed by %v, want %v", signer.Hex(), address.Hex())
	}
	return nil
}
