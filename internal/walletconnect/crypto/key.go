package crypto

import (
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"runtime"
	"sync"

	"moff.io/walletconnect/internal/walletconnect/protocol"
	"moff.io/walletconnect/pkg/errors"
)

// KeySize is the length of the shared AES-256 / HMAC key.
const KeySize = 32

var (
	ErrInvalidHex  = errors.New("invalid hex key")
	ErrWrongLength = errors.New("wrong key length")
	errDestroyed   = errors.New("key destroyed")
)

const redacted = "Key(********)"

// Key is the symmetric secret shared by the dapp and the wallet.
// It never prints its bytes, and Destroy zeroes them. A finalizer zeroes keys that
// are garbage collected without being destroyed.
type Key struct {
	mu        sync.RWMutex
	raw       [KeySize]byte
	destroyed bool
}

func newKey(raw []byte) *Key {
	k := &Key{}
	copy(k.raw[:], raw)
	runtime.SetFinalizer(k, (*Key).Destroy)
	return k
}

// RandomKey generates a key from the system CSPRNG.
func RandomKey() (*Key, error) {
	raw, err := generateRandomBytes(KeySize)
	if err != nil {
		return nil, err
	}
	defer zero(raw)
	return newKey(raw), nil
}

// KeyFromRaw wraps externally supplied key bytes.
func KeyFromRaw(raw [KeySize]byte) *Key {
	return newKey(raw[:])
}

// ParseKey decodes a hex key, which must hold exactly KeySize bytes.
func ParseKey(s string) (*Key, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, errors.Wrap(ErrInvalidHex, err.Error())
	}
	defer zero(raw)
	if len(raw) != KeySize {
		return nil, errors.Wrapf(ErrWrongLength, "got %d bytes, want %d", len(raw), KeySize)
	}
	return newKey(raw), nil
}

// Display returns the lowercase hex form wrapped so that it is not printed by accident.
func (k *Key) Display() SecretString {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return SecretString{value: hex.EncodeToString(k.raw[:])}
}

// Equal compares two keys in constant time.
func (k *Key) Equal(other *Key) bool {
	if k == nil || other == nil {
		return k == other
	}
	if k == other {
		return true
	}
	k.mu.RLock()
	defer k.mu.RUnlock()
	other.mu.RLock()
	defer other.mu.RUnlock()
	return subtle.ConstantTimeCompare(k.raw[:], other.raw[:]) == 1
}

// Clone returns an independent copy that must be destroyed separately.
func (k *Key) Clone() *Key {
	k.mu.RLock()
	defer k.mu.RUnlock()
	c := newKey(k.raw[:])
	c.destroyed = k.destroyed
	return c
}

// Seal encrypts plaintext under a fresh random IV.
func (k *Key) Seal(plaintext []byte) (*protocol.EncryptionPayload, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.destroyed {
		return nil, errors.WithStack(errDestroyed)
	}
	return seal(k.raw[:], plaintext)
}

// Open authenticates payload and returns its plaintext.
func (k *Key) Open(payload *protocol.EncryptionPayload) ([]byte, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.destroyed {
		return nil, errors.WithStack(errDestroyed)
	}
	return open(k.raw[:], payload)
}

// Destroy zeroes the key. Seal and Open fail afterwards.
func (k *Key) Destroy() {
	k.mu.Lock()
	defer k.mu.Unlock()
	zero(k.raw[:])
	k.destroyed = true
}

func (k *Key) String() string {
	return redacted
}

func (k *Key) GoString() string {
	return redacted
}

func (k *Key) Format(f fmt.State, _ rune) {
	_, _ = io.WriteString(f, redacted)
}

// MarshalJSON exposes the key as hex; it exists for session persistence only.
func (k *Key) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.Display().Expose())
}

func (k *Key) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return errors.Wrap(ErrInvalidHex, err.Error())
	}
	parsed, err := ParseKey(s)
	if err != nil {
		return err
	}
	defer parsed.Destroy()
	k.mu.Lock()
	defer k.mu.Unlock()
	copy(k.raw[:], parsed.raw[:])
	k.destroyed = false
	return nil
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// SecretString holds a secret that only Expose reveals.
type SecretString struct {
	value string
}

func (s SecretString) Expose() string {
	return s.value
}

func (s SecretString) String() string {
	return "[REDACTED]"
}

func (s SecretString) GoString() string {
	return "SecretString([REDACTED])"
}
