package walletconnect

import (
	"encoding/json"

	"github.com/tidwall/gjson"
	"moff.io/walletconnect/internal/walletconnect/protocol"
	"moff.io/walletconnect/pkg/errors"
	"moff.io/walletconnect/pkg/log"
)

// handleFrame processes one bridge frame. Every failure is scoped to the frame:
// it is logged and dropped, and the read loop goes on.
func (c *Client) handleFrame(data []byte) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("wallet connect - panic while handling frame: %v", r)
		}
	}()

	msg, err := protocol.DecodeSocketMessage(data)
	if err != nil {
		log.Debugf("wallet connect - drop frame: %v", err)
		return
	}
	if msg.Kind != protocol.KindPub || msg.Payload == nil {
		return
	}
	if !c.socket.subscribed(msg.Topic) {
		log.Debugf("wallet connect - drop frame for foreign topic %v", msg.Topic)
		return
	}
	c.mu.Lock()
	key := c.session.Key
	c.mu.Unlock()
	plain, err := key.Open(msg.Payload)
	if err != nil {
		log.Warnf("wallet connect - drop frame on %v: %v", msg.Topic, err)
		return
	}
	if !gjson.ValidBytes(plain) {
		log.Debugf("wallet connect - drop frame on %v: payload is not json", msg.Topic)
		return
	}
	if gjson.GetBytes(plain, "method").Exists() {
		c.handlePeerRequest(plain)
		return
	}
	resp, err := protocol.DecodeResponse(plain)
	if err != nil {
		log.Debugf("wallet connect - drop frame on %v: %v", msg.Topic, err)
		return
	}
	c.dispatch(resp)
}

// dispatch delivers resp to the caller waiting on its id. Unknown ids, such as
// a second delivery of an answered request, are dropped.
func (c *Client) dispatch(resp *protocol.Response) {
	c.mu.Lock()
	if h := c.handshake; h != nil && h.id == resp.ID {
		connected := c.completeHandshakeLocked(h, resp)
		snapshot := c.session.Clone()
		c.mu.Unlock()
		if connected {
			c.persist(snapshot)
		}
		return
	}
	ch, ok := c.pending[resp.ID]
	delete(c.pending, resp.ID)
	c.mu.Unlock()
	if !ok {
		log.Debugf("wallet connect - drop response %v without waiter", resp.ID)
		return
	}
	select {
	case ch <- outcome{resp: resp}:
	default:
	}
}

func (c *Client) completeHandshakeLocked(h *handshake, resp *protocol.Response) bool {
	var params protocol.SessionParams
	if err := resp.Decode(&params); err != nil {
		var rpcErr *protocol.RPCError
		if !errors.As(err, &rpcErr) {
			log.Warnf("wallet connect - drop malformed session response: %v", err)
			return false
		}
		log.Infof("wallet connect - session request rejected: %v", rpcErr)
		c.finishHandshakeLocked(h, errors.Wrapf(ErrSessionRejected, "%v", rpcErr))
		return false
	}
	if err := c.session.Apply(params); err != nil {
		log.Infof("wallet connect - session not established: %v", err)
		c.finishHandshakeLocked(h, err)
		return false
	}
	c.state = Connected
	c.finishHandshakeLocked(h, nil)
	log.Infof("wallet connect - session approved by %v, accounts %v, chain %v",
		c.session.PeerMeta.Name(), c.session.Accounts, *c.session.ChainID)
	return true
}

func (c *Client) handlePeerRequest(plain []byte) {
	method := gjson.GetBytes(plain, "method").String()
	if method != protocol.MethodSessionUpdate {
		log.Debugf("wallet connect - ignore peer request %v", method)
		return
	}
	params := gjson.GetBytes(plain, "params").Array()
	if len(params) == 0 {
		log.Warnf("wallet connect - session update without params")
		return
	}
	var update protocol.SessionUpdate
	if err := json.Unmarshal([]byte(params[0].Raw), &update); err != nil {
		log.Warnf("wallet connect - drop malformed session update: %v", err)
		return
	}

	c.mu.Lock()
	if !c.session.Connected {
		c.mu.Unlock()
		log.Debugf("wallet connect - ignore session update while not connected")
		return
	}
	if !update.Approved {
		clientID := c.session.ClientID
		c.endSessionLocked(errors.Wrap(ErrDisconnected, "session closed by wallet"))
		c.mu.Unlock()
		log.Warnf("wallet connect - session %v closed by wallet", clientID)
		c.forgetSession(clientID)
		return
	}
	if err := c.session.Update(update); err != nil {
		c.mu.Unlock()
		log.Warnf("wallet connect - reject session update: %v", err)
		return
	}
	snapshot := c.session.Clone()
	c.mu.Unlock()
	log.Infof("wallet connect - session updated, accounts %v", snapshot.Accounts)
	c.persist(snapshot)
}
