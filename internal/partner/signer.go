// Package partner talks to the marketplace partner platform: it signs
// request URLs and performs the token calls of the authorization handshake.
package partner

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	PathAuthorize           = "/api/v2/shop/auth_partner"
	PathTokenExchange       = "/api/v2/auth/token/get"
	PathCancelAuthorization = "/api/v2/shop/cancel_auth_partner"
	PathRefreshAccessToken  = "/api/v2/auth/access_token/get"
)

// Credentials is a decrypted partner id/key pair. Never log it.
type Credentials struct {
	PartnerID  string
	PartnerKey string
}

// Sign returns the hex HMAC-SHA256 of partnerID+path+ts keyed by partnerKey.
func Sign(partnerID, partnerKey, path string, ts int64) string {
	mac := hmac.New(sha256.New, []byte(partnerKey))
	mac.Write([]byte(partnerID + path + strconv.FormatInt(ts, 10)))
	return hex.EncodeToString(mac.Sum(nil))
}

// BuildURL assembles host+path with the signature parameters first and extra after them.
func BuildURL(host, path, partnerID string, ts int64, sign string, extra url.Values) string {
	var b strings.Builder
	b.WriteString(strings.TrimRight(host, "/"))
	b.WriteString(path)
	b.WriteString("?partner_id=")
	b.WriteString(url.QueryEscape(partnerID))
	b.WriteString("&timestamp=")
	b.WriteString(strconv.FormatInt(ts, 10))
	b.WriteString("&sign=")
	b.WriteString(sign)
	if len(extra) > 0 {
		b.WriteByte('&')
		b.WriteString(extra.Encode())
	}
	return b.String()
}

// Signer builds signed partner URLs against one host. It does not cache
// signatures or check clock skew.
type Signer struct {
	host           string
	authRedirect   string
	cancelRedirect string
	now            func() time.Time
}

func NewSigner(host, authRedirect, cancelRedirect string) *Signer {
	return &Signer{
		host:           host,
		authRedirect:   authRedirect,
		cancelRedirect: cancelRedirect,
		now:            time.Now,
	}
}

// WithClock replaces the time source; used by tests.
func (s *Signer) WithClock(now func() time.Time) *Signer {
	s.now = now
	return s
}

func (s *Signer) Host() string { return s.host }

// SignedURL signs path at the current time.
func (s *Signer) SignedURL(creds Credentials, path string, extra url.Values) string {
	ts := s.now().Unix()
	return BuildURL(s.host, path, creds.PartnerID, ts, Sign(creds.PartnerID, creds.PartnerKey, path, ts), extra)
}

// AuthorizationURL is where the seller grants access. state comes back on the callback.
func (s *Signer) AuthorizationURL(creds Credentials, state string) (string, error) {
	redirect, err := withState(s.authRedirect, state)
	if err != nil {
		return "", err
	}
	return s.SignedURL(creds, PathAuthorize, url.Values{"redirect": {redirect}}), nil
}

// CancellationURL is where the seller revokes access.
func (s *Signer) CancellationURL(creds Credentials, state string) (string, error) {
	redirect, err := withState(s.cancelRedirect, state)
	if err != nil {
		return "", err
	}
	return s.SignedURL(creds, PathCancelAuthorization, url.Values{"redirect": {redirect}}), nil
}

func withState(redirect, state string) (string, error) {
	u, err := url.Parse(redirect)
	if err != nil {
		return "", fmt.Errorf("parse redirect url: %w", err)
	}
	q := u.Query()
	q.Set("state", state)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
