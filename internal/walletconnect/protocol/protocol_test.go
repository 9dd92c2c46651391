package protocol

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"moff.io/walletconnect/pkg/errors"
)

func TestNewTopicIsUniqueAndNonZero(t *testing.T) {
	seen := make(map[Topic]struct{}, 10000)
	for i := 0; i < 10000; i++ {
		topic := NewTopic()
		require.False(t, topic.IsZero())
		_, dup := seen[topic]
		require.False(t, dup, "duplicate topic %s", topic)
		seen[topic] = struct{}{}
	}
}

func TestZeroTopic(t *testing.T) {
	assert.Equal(t, "00000000-0000-0000-0000-000000000000", ZeroTopic().String())
	assert.True(t, ZeroTopic().IsZero())
	var empty Topic
	assert.True(t, empty.IsZero())
	assert.Equal(t, ZeroTopic().String(), empty.String())

	raw, err := json.Marshal(ZeroTopic())
	require.NoError(t, err)
	assert.JSONEq(t, `"00000000-0000-0000-0000-000000000000"`, string(raw))
}

func TestParseTopic(t *testing.T) {
	topic, err := ParseTopic("DE5682BE-2A03-4B8E-866E-1E89DBCA422B")
	require.NoError(t, err)
	assert.Equal(t, Topic("de5682be-2a03-4b8e-866e-1e89dbca422b"), topic)

	_, err = ParseTopic("not-a-uuid")
	assert.True(t, errors.Is(err, ErrInvalidTopic))

	var decoded Topic
	err = json.Unmarshal([]byte(`"nope"`), &decoded)
	assert.True(t, errors.Is(err, ErrInvalidTopic))

	fresh := NewTopic()
	raw, err := json.Marshal(fresh)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, fresh, decoded)
}

func TestSocketMessageWireFormat(t *testing.T) {
	msg := &SocketMessage{
		Topic: "de5682be-2a03-4b8e-866e-1e89dbca422b",
		Kind:  KindPub,
		Payload: &EncryptionPayload{
			Data: []byte{0x04, 0x02},
			HMAC: bytes.Repeat([]byte{0x13}, 32),
			IV:   bytes.Repeat([]byte{0x37}, 16),
		},
	}
	raw, err := msg.Encode()
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"topic": "de5682be-2a03-4b8e-866e-1e89dbca422b",
		"type": "pub",
		"payload": "{\"data\":\"0402\",\"hmac\":\"` + strings.Repeat("13", 32) + `\",\"iv\":\"` + strings.Repeat("37", 16) + `\"}",
		"silent": false
	}`, string(raw))

	decoded, err := DecodeSocketMessage(raw)
	require.NoError(t, err)
	assert.Equal(t, msg, decoded)
}

func TestSocketMessageWithoutPayload(t *testing.T) {
	msg := &SocketMessage{Topic: NewTopic(), Kind: KindSub, Silent: true}
	raw, err := msg.Encode()
	require.NoError(t, err)

	var wire map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &wire))
	assert.Equal(t, "", wire["payload"])

	decoded, err := DecodeSocketMessage(raw)
	require.NoError(t, err)
	assert.Nil(t, decoded.Payload)
	assert.Equal(t, msg, decoded)
}

func TestSocketMessageSilentDefaultsToFalse(t *testing.T) {
	decoded, err := DecodeSocketMessage([]byte(`{"topic":"de5682be-2a03-4b8e-866e-1e89dbca422b","type":"sub","payload":""}`))
	require.NoError(t, err)
	assert.False(t, decoded.Silent)
}

func TestDecodeSocketMessageRejectsMalformedInput(t *testing.T) {
	cases := map[string]string{
		"not json":             `hello`,
		"array":                `[]`,
		"missing topic":        `{"type":"pub","payload":""}`,
		"bad topic":            `{"topic":"x","type":"pub","payload":""}`,
		"unknown type":         `{"topic":"de5682be-2a03-4b8e-866e-1e89dbca422b","type":"ack","payload":""}`,
		"payload not json":     `{"topic":"de5682be-2a03-4b8e-866e-1e89dbca422b","type":"pub","payload":"{oops"}`,
		"payload bad hex":      `{"topic":"de5682be-2a03-4b8e-866e-1e89dbca422b","type":"pub","payload":"{\"data\":\"zz\",\"hmac\":\"\",\"iv\":\"\"}"}`,
		"payload wrong type":   `{"topic":"de5682be-2a03-4b8e-866e-1e89dbca422b","type":"pub","payload":{"data":"00"}}`,
		"payload field number": `{"topic":"de5682be-2a03-4b8e-866e-1e89dbca422b","type":"pub","payload":"{\"data\":1}"}`,
		"payload empty object": `{"topic":"de5682be-2a03-4b8e-866e-1e89dbca422b","type":"pub","payload":"{}"}`,
		"payload null":         `{"topic":"de5682be-2a03-4b8e-866e-1e89dbca422b","type":"pub","payload":"null"}`,
		"payload only data":    `{"topic":"de5682be-2a03-4b8e-866e-1e89dbca422b","type":"pub","payload":"{\"data\":\"00\"}"}`,
		"payload short iv":     `{"topic":"de5682be-2a03-4b8e-866e-1e89dbca422b","type":"pub","payload":"{\"data\":\"00\",\"hmac\":\"` + strings.Repeat("ab", 32) + `\",\"iv\":\"00\"}"}`,
		"payload short hmac":   `{"topic":"de5682be-2a03-4b8e-866e-1e89dbca422b","type":"pub","payload":"{\"data\":\"00\",\"hmac\":\"1337\",\"iv\":\"` + strings.Repeat("ab", 16) + `\"}"}`,
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			msg, err := DecodeSocketMessage([]byte(input))
			assert.Nil(t, msg)
			assert.True(t, errors.Is(err, ErrMalformedMessage), "got %v", err)
		})
	}
}

func TestNewRequestDefaultsParams(t *testing.T) {
	raw, err := json.Marshal(NewRequest(7, MethodSessionUpdate))
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":7,"jsonrpc":"2.0","method":"wc_sessionUpdate","params":[]}`, string(raw))
}

func TestDecodeResponse(t *testing.T) {
	resp, err := DecodeResponse([]byte(`{"id":42,"jsonrpc":"2.0","result":"0xdead"}`))
	require.NoError(t, err)
	assert.EqualValues(t, 42, resp.ID)
	var out string
	require.NoError(t, resp.Decode(&out))
	assert.Equal(t, "0xdead", out)

	resp, err = DecodeResponse([]byte(`{"id":43,"jsonrpc":"2.0","error":{"code":-32000,"message":"Session Rejected"}}`))
	require.NoError(t, err)
	var rpcErr *RPCError
	require.True(t, errors.As(resp.Decode(&out), &rpcErr))
	assert.EqualValues(t, -32000, rpcErr.Code)
	assert.Equal(t, "Session Rejected", rpcErr.Message)

	_, err = DecodeResponse([]byte(`{"id":44,"jsonrpc":"2.0","method":"wc_sessionUpdate","params":[]}`))
	assert.True(t, errors.Is(err, ErrMalformedMessage))
}

func TestSessionParamsPeerMetadata(t *testing.T) {
	var strict SessionParams
	require.NoError(t, json.Unmarshal([]byte(`{
		"approved": true,
		"accounts": ["0x00000000000000000000000000000000000abc12"],
		"chainId": 1,
		"peerId": "de5682be-2a03-4b8e-866e-1e89dbca422b",
		"peerMeta": {"description":"w","url":"https://wallet.example","icons":[],"name":"Wallet"}
	}`), &strict))
	require.NotNil(t, strict.PeerMeta.Strict)
	assert.Equal(t, "Wallet", strict.PeerMeta.Name())
	assert.Equal(t, common.HexToAddress("0x00000000000000000000000000000000000abc12"), strict.Accounts[0])

	var loose SessionParams
	require.NoError(t, json.Unmarshal([]byte(`{
		"approved": true,
		"accounts": [],
		"chainId": 1,
		"peerId": "de5682be-2a03-4b8e-866e-1e89dbca422b",
		"peerMeta": {"title":"odd wallet"}
	}`), &loose))
	assert.Nil(t, loose.PeerMeta.Strict)
	assert.JSONEq(t, `{"title":"odd wallet"}`, string(loose.PeerMeta.Raw))
	raw, err := json.Marshal(loose.PeerMeta)
	require.NoError(t, err)
	assert.JSONEq(t, `{"title":"odd wallet"}`, string(raw))
}

func TestPayloadIDIsJavaScriptSafe(t *testing.T) {
	id := PayloadID()
	assert.NotZero(t, id)
	assert.Less(t, id, uint64(1)<<53)
}
