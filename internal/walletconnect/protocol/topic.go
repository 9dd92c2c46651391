package protocol

import (
	"encoding/json"

	"github.com/google/uuid"
	"moff.io/walletconnect/pkg/errors"
)

var ErrInvalidTopic = errors.New("invalid topic")

// Topic addresses a peer or a handshake on the bridge. It is a lowercase UUID string.
// The empty Topic and ZeroTopic both mean "no topic assigned".
type Topic string

// NewTopic generates a random topic.
func NewTopic() Topic {
	return Topic(uuid.NewString())
}

// ZeroTopic is the nil-UUID sentinel.
func ZeroTopic() Topic {
	return Topic(uuid.Nil.String())
}

// ParseTopic validates s as a UUID and returns it in canonical lowercase form.
func ParseTopic(s string) (Topic, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return "", errors.Wrapf(ErrInvalidTopic, "%q: %v", s, err)
	}
	return Topic(u.String()), nil
}

func (t Topic) String() string {
	if t == "" {
		return string(ZeroTopic())
	}
	return string(t)
}

func (t Topic) IsZero() bool {
	return t == "" || t == ZeroTopic()
}

func (t Topic) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *Topic) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return errors.Wrap(ErrInvalidTopic, err.Error())
	}
	parsed, err := ParseTopic(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
