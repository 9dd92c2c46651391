package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"moff.io/walletconnect/pkg/errors"
)

const (
	MethodSessionRequest = "wc_sessionRequest"
	MethodSessionUpdate  = "wc_sessionUpdate"
	MethodPersonalSign   = "personal_sign"
	MethodEthSign        = "eth_sign"
	MethodSignTypedData  = "eth_signTypedData"
	MethodSendTx         = "eth_sendTransaction"
)

// Metadata describes a dapp or a wallet for display on the other side.
// https://docs.walletconnect.com/tech-spec#session-request
type Metadata struct {
	Description string   `json:"description"`
	URL         string   `json:"url"`
	Icons       []string `json:"icons"`
	Name        string   `json:"name"`
}

func (m Metadata) valid() bool {
	if m.Name == "" {
		return false
	}
	u, err := url.Parse(m.URL)
	return err == nil && u.Scheme != "" && u.Host != ""
}

// PeerMetadata keeps the wallet's metadata. Wallets that send something other than
// well-formed metadata are tolerated: the document is kept in Raw and Strict is nil.
type PeerMetadata struct {
	Strict *Metadata
	Raw    json.RawMessage
}

func (p PeerMetadata) MarshalJSON() ([]byte, error) {
	if p.Strict != nil {
		return json.Marshal(p.Strict)
	}
	if len(p.Raw) == 0 {
		return []byte("null"), nil
	}
	return p.Raw, nil
}

func (p *PeerMetadata) UnmarshalJSON(data []byte) error {
	var meta Metadata
	if err := json.Unmarshal(data, &meta); err == nil && meta.valid() {
		*p = PeerMetadata{Strict: &meta}
		return nil
	}
	*p = PeerMetadata{Raw: append(json.RawMessage(nil), data...)}
	return nil
}

// Name returns the wallet name when it is known.
func (p PeerMetadata) Name() string {
	if p.Strict == nil {
		return ""
	}
	return p.Strict.Name
}

// SessionRequest is the single parameter of wc_sessionRequest.
type SessionRequest struct {
	ChainID  *uint64  `json:"chainId"`
	PeerID   Topic    `json:"peerId"`
	PeerMeta Metadata `json:"peerMeta"`
}

// SessionParams is the wallet's answer to wc_sessionRequest.
type SessionParams struct {
	Approved bool             `json:"approved"`
	Accounts []common.Address `json:"accounts"`
	ChainID  uint64           `json:"chainId"`
	PeerID   Topic            `json:"peerId"`
	PeerMeta PeerMetadata     `json:"peerMeta"`
}

// SessionUpdate is the single parameter of wc_sessionUpdate, sent by either side.
// https://docs.walletconnect.com/tech-spec#session-update
type SessionUpdate struct {
	Approved bool             `json:"approved"`
	Accounts []common.Address `json:"accounts"`
	ChainID  *uint64          `json:"chainId"`
}

type Request struct {
	ID      uint64      `json:"id"`
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
}

func NewRequest(id uint64, method string, params ...interface{}) *Request {
	r := &Request{
		ID:      id,
		JSONRPC: "2.0",
		Method:  method,
		Params:  []interface{}{},
	}
	if len(params) > 0 {
		r.Params = params
	}
	return r
}

// Response is a JSON-RPC response. Exactly one of Result and Error is set.
type Response struct {
	ID      uint64          `json:"id"`
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// Decode unmarshals the result into v, or returns the peer's error.
func (r *Response) Decode(v interface{}) error {
	if r.Error != nil {
		return r.Error
	}
	if v == nil {
		return nil
	}
	if len(r.Result) == 0 {
		return errors.Wrap(ErrMalformedMessage, "response without result")
	}
	if err := json.Unmarshal(r.Result, v); err != nil {
		return errors.Wrapf(ErrMalformedMessage, "decode result of request %d: %v", r.ID, err)
	}
	return nil
}

// RPCError is a JSON-RPC 2.0 error returned by the peer.
type RPCError struct {
	Code    int64           `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	if len(e.Data) == 0 {
		return fmt.Sprintf("(code: %d, message: %s)", e.Code, e.Message)
	}
	return fmt.Sprintf("(code: %d, message: %s, data: %s)", e.Code, e.Message, e.Data)
}

// DecodeResponse parses plaintext as a JSON-RPC response.
func DecodeResponse(plaintext []byte) (*Response, error) {
	dec := json.NewDecoder(bytes.NewReader(plaintext))
	dec.UseNumber()
	var resp Response
	if err := dec.Decode(&resp); err != nil {
		return nil, errors.Wrapf(ErrMalformedMessage, "json-rpc response: %v", err)
	}
	if resp.Error == nil && len(resp.Result) == 0 {
		return nil, errors.Wrap(ErrMalformedMessage, "json-rpc response has neither result nor error")
	}
	return &resp, nil
}

// PayloadID returns a request id derived from the clock, in microseconds.
// It stays below 2^53 so JavaScript wallets echo it back unchanged, and is never zero.
func PayloadID() uint64 {
	return uint64(time.Now().UnixNano() / 1000)
}
