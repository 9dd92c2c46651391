package walletconnect

import (
	"context"
	"time"

	"moff.io/walletconnect/internal/walletconnect/protocol"
	"moff.io/walletconnect/internal/walletconnect/session"
	"moff.io/walletconnect/pkg/errors"
	"moff.io/walletconnect/pkg/log"
)

const storeTimeout = 5 * time.Second

// SessionStore keeps connected sessions, key included, keyed by client id.
type SessionStore interface {
	Save(ctx context.Context, s *session.Session) error
	// Load returns an error matching ErrSessionNotFound when nothing is stored.
	Load(ctx context.Context, clientID protocol.Topic) (*session.Session, error)
	Delete(ctx context.Context, clientID protocol.Topic) error
}

var ErrSessionNotFound = errors.New("wallet connect session not found")

// Resume reconnects to the bridge of a stored, connected session without pairing again.
func Resume(ctx context.Context, store SessionStore, clientID protocol.Topic, opts ...Option) (*Client, error) {
	sess, err := store.Load(ctx, clientID)
	if err != nil {
		return nil, err
	}
	if !sess.Connected {
		sess.Destroy()
		return nil, errors.Wrapf(ErrNotConnected, "stored session %v", clientID)
	}
	c, err := dial(ctx, sess, append([]Option{WithStore(store)}, opts...)...)
	if err != nil {
		sess.Destroy()
		return nil, err
	}
	log.Infof("wallet connect - resumed session %v with peer %v", clientID, sess.PeerID)
	return c, nil
}

func (c *Client) persist(s *session.Session) {
	if c.cfg.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := c.cfg.store.Save(ctx, s); err != nil {
		log.Errorf("wallet connect - save session %v: %v", s.ClientID, err)
	}
}

func (c *Client) forgetSession(clientID protocol.Topic) {
	if c.cfg.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := c.cfg.store.Delete(ctx, clientID); err != nil {
		log.Errorf("wallet connect - delete session %v: %v", clientID, err)
	}
}
