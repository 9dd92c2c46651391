package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/go-redis/redis_rate/v9"
	"moff.io/walletconnect/internal/config"
	"moff.io/walletconnect/internal/walletconnect"
	"moff.io/walletconnect/internal/walletconnect/protocol"
	"moff.io/walletconnect/internal/walletconnect/session"
	"moff.io/walletconnect/pkg/errors"
	"moff.io/walletconnect/pkg/log"
)

const (
	DefaultSessionPrefix = "walletconnect:session:"
	DefaultSessionTTL    = 7 * 24 * time.Hour
)

var (
	Redis       *redis.Client
	RateLimiter *redis_rate.Limiter
)

func Init(cred *config.DBCredential) {
	Redis = redis.NewClient(&redis.Options{
		Addr:     cred.GetRedisAddress(),
		Password: cred.Password,
		DB:       cred.DB(),
	})
	if _, err := Redis.Ping(context.TODO()).Result(); err != nil {
		log.Fatalf("ping to redis:%v", err)
	}
	RateLimiter = redis_rate.NewLimiter(Redis)
}

func Close() {
	if Redis != nil {
		Redis.Close()
		Redis = nil
		RateLimiter = nil
	}
}

// RedisStore keeps wallet connect sessions as JSON under prefix+clientID.
// Stored values hold the session key.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

var _ walletconnect.SessionStore = (*RedisStore)(nil)

// NewRedisStore returns a store on client. A zero ttl keeps sessions forever.
func NewRedisStore(client *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = DefaultSessionPrefix
	}
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisStore) key(clientID protocol.Topic) string {
	return s.prefix + clientID.String()
}

func (s *RedisStore) Save(ctx context.Context, sess *session.Session) error {
	raw, err := json.Marshal(sess)
	if err != nil {
		return errors.Wrap(err, "marshal session")
	}
	if err := s.client.Set(ctx, s.key(sess.ClientID), raw, s.ttl).Err(); err != nil {
		return errors.WrapAndReport(err, "save session")
	}
	return nil
}

func (s *RedisStore) Load(ctx context.Context, clientID protocol.Topic) (*session.Session, error) {
	raw, err := s.client.Get(ctx, s.key(clientID)).Bytes()
	if err == redis.Nil {
		return nil, errors.Wrapf(walletconnect.ErrSessionNotFound, "%v", clientID)
	}
	if err != nil {
		return nil, errors.WrapAndReport(err, "load session")
	}
	var sess session.Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, errors.Wrapf(err, "decode stored session %v", clientID)
	}
	return &sess, nil
}

func (s *RedisStore) Delete(ctx context.Context, clientID protocol.Topic) error {
	if err := s.client.Del(ctx, s.key(clientID)).Err(); err != nil {
		return errors.WrapAndReport(err, "delete session")
	}
	return nil
}

// Purge deletes every session under the store prefix.
func (s *RedisStore) Purge(ctx context.Context) error {
	return deleteFromPrefix(ctx, s.client, s.prefix)
}

func deleteFromPrefix(ctx context.Context, client *redis.Client, prefix string) error {
	var (
		cursor uint64
		match        = fmt.Sprintf("%v*", prefix)
		count  int64 = 200
	)
	log.Debugf("deleting cache pattern %v", match)
	for {
		keys, c, err := client.Scan(ctx, cursor, match, count).Result()
		if err != nil {
			return errors.WrapAndReport(err, "scan caches")
		}
		cursor = c
		if len(keys) > 0 {
			err = client.Del(ctx, keys...).Err()
			if err != nil {
				return errors.WrapAndReport(err, "delete caches")
			}
		}
		if c == 0 {
			return nil
		}
	}
}
