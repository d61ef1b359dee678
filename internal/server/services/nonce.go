package services

import (
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultNonceLifetime matches the window a WordPress nonce stays usable.
const DefaultNonceLifetime = 24 * time.Hour

// Nonces issues stateless anti-forgery tokens bound to a user and an action.
// A nonce stays valid for the tick it was issued in and the following one,
// so its real lifetime is between half and all of the configured lifetime.
type Nonces struct {
	key  []byte
	tick time.Duration
	now  func() time.Time
}

func NewNonces(key []byte, lifetime time.Duration) *Nonces {
	if lifetime <= 0 {
		lifetime = DefaultNonceLifetime
	}
	tick := lifetime / 2
	if tick <= 0 {
		tick = lifetime
	}
	return &Nonces{key: key, tick: tick, now: time.Now}
}

func (n *Nonces) Issue(action string, userID int64) (string, error) {
	sig, err := jwt.SigningMethodHS256.Sign(n.message(action, userID, n.counter()), n.key)
	if err != nil {
		return "", err
	}
	return new(jwt.Token).EncodeSegment(sig), nil
}

func (n *Nonces) Verify(action string, userID int64, nonce string) bool {
	if nonce == "" {
		return false
	}
	sig, err := jwt.NewParser(jwt.WithStrictDecoding()).DecodeSegment(nonce)
	if err != nil {
		return false
	}
	c := n.counter()
	for _, tick := range []int64{c, c - 1} {
		if jwt.SigningMethodHS256.Verify(n.message(action, userID, tick), sig, n.key) == nil {
			return true
		}
	}
	return false
}

func (n *Nonces) counter() int64 {
	return n.now().UnixNano() / int64(n.tick)
}

func (n *Nonces) message(action string, userID int64, tick int64) string {
	return strconv.FormatInt(tick, 10) + "|" + action + "|" + strconv.FormatInt(userID, 10)
}
