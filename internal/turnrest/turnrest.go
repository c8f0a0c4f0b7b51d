// Package turnrest mints short-lived TURN credentials in the coturn
// "TURN REST API" format so browser peers can relay through a TURN server
// without a static password:
//
//	username   = <unix_expiry>:<prefix>:<peer_id>
//	credential = base64(hmac_sha1(shared_secret, username))
package turnrest

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Config struct {
	SharedSecret   string
	TTL            time.Duration
	UsernamePrefix string
	// Now defaults to time.Now.
	Now func() time.Time
	// NewPeerID defaults to a random UUID.
	NewPeerID func() string
}

// Generator is safe for concurrent use.
type Generator struct {
	secret []byte
	ttl    time.Duration
	prefix string
	now    func() time.Time
	peerID func() string
}

type Credentials struct {
	Username   string
	Credential string
	Expires    time.Time
}

func NewGenerator(cfg Config) (*Generator, error) {
	if cfg.SharedSecret == "" {
		return nil, errors.New("shared secret is required")
	}
	if cfg.TTL < time.Second {
		return nil, errors.New("ttl must be at least 1s")
	}
	if cfg.UsernamePrefix == "" || strings.Contains(cfg.UsernamePrefix, ":") {
		return nil, errors.New("username prefix must be non-empty and must not contain ':'")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewPeerID == nil {
		cfg.NewPeerID = func() string { return strings.ReplaceAll(uuid.NewString(), "-", "") }
	}
	return &Generator{
		secret: []byte(cfg.SharedSecret),
		ttl:    cfg.TTL,
		prefix: cfg.UsernamePrefix,
		now:    cfg.Now,
		peerID: cfg.NewPeerID,
	}, nil
}

// For returns credentials bound to peerID.
func (g *Generator) For(peerID string) (Credentials, error) {
	if peerID == "" || strings.Contains(peerID, ":") {
		return Credentials{}, fmt.Errorf("invalid peer id %q", peerID)
	}
	expires := g.now().UTC().Add(g.ttl).Truncate(time.Second)
	username := fmt.Sprintf("%d:%s:%s", expires.Unix(), g.prefix, peerID)
	return Credentials{
		Username:   username,
		Credential: sign(g.secret, username),
		Expires:    expires,
	}, nil
}

// Random returns credentials for a fresh peer id.
func (g *Generator) Random() (Credentials, error) {
	return g.For(g.peerID())
}

func sign(secret []byte, username string) string {
	mac := hmac.New(sha1.New, secret)
	_, _ = mac.Write([]byte(username))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
