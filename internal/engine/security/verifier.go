package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net"
	"net/http"
	"net/netip"

	"pipesync/internal/platform/config"
	pkgerrors "pipesync/internal/pkg/errors"
)

const DefaultSignatureHeader = "X-Pipedrive-Signature"

// Policy is an immutable snapshot of the three webhook sub-policies. Every
// enabled sub-policy must pass (logical AND). With zero sub-policies enabled,
// Verify passes unconditionally; that default keeps unconfigured installs
// working but leaves the endpoint open, so deployments are expected to enable
// at least one.
type Policy struct {
	basicAuth config.BasicAuthConfig
	allowList config.IPAllowListConfig
	signature config.SignatureConfig
	prefixes  []netip.Prefix
	exact     []netip.Addr
}

func NewPolicy(cfg config.SecurityConfig) Policy {
	p := Policy{
		basicAuth: cfg.BasicAuth,
		allowList: cfg.IPAllowList,
		signature: cfg.Signature,
	}
	if p.signature.Header == "" {
		p.signature.Header = DefaultSignatureHeader
	}

	// Parse patterns once; unparsable entries are dropped, which can only
	// narrow the allow-list (fail closed).
	for _, pattern := range cfg.IPAllowList.Patterns {
		if prefix, err := netip.ParsePrefix(pattern); err == nil {
			p.prefixes = append(p.prefixes, prefix)
			continue
		}
		if addr, err := netip.ParseAddr(pattern); err == nil {
			p.exact = append(p.exact, addr)
		}
	}

	return p
}

// Enabled reports whether any sub-policy is active.
func (p Policy) Enabled() bool {
	return p.basicAuth.Enabled || p.allowList.Enabled || p.signature.Enabled
}

// Verify checks the request against every enabled sub-policy. body must be
// the raw request body as received, since the signature covers exact bytes.
func (p Policy) Verify(r *http.Request, body []byte) error {
	if p.basicAuth.Enabled {
		if err := p.verifyBasicAuth(r); err != nil {
			return err
		}
	}
	if p.allowList.Enabled {
		if err := p.verifyIP(r); err != nil {
			return err
		}
	}
	if p.signature.Enabled {
		if err := p.verifySignature(r, body); err != nil {
			return err
		}
	}
	return nil
}

func (p Policy) verifyBasicAuth(r *http.Request) error {
	if p.basicAuth.Username == "" || p.basicAuth.Password == "" {
		return &pkgerrors.AuthError{Reason: "basic auth enabled but not configured"}
	}

	username, password, ok := r.BasicAuth()
	if !ok {
		return &pkgerrors.AuthError{Reason: "missing basic auth credentials"}
	}

	userMatch := subtle.ConstantTimeCompare([]byte(username), []byte(p.basicAuth.Username))
	passMatch := subtle.ConstantTimeCompare([]byte(password), []byte(p.basicAuth.Password))
	if userMatch != 1 || passMatch != 1 {
		return &pkgerrors.AuthError{Reason: "invalid basic auth credentials"}
	}
	return nil
}

func (p Policy) verifyIP(r *http.Request) error {
	// An enabled allow-list with no usable patterns denies everything.
	if len(p.prefixes) == 0 && len(p.exact) == 0 {
		return &pkgerrors.AuthError{Reason: "ip allow-list enabled but empty"}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return &pkgerrors.AuthError{Reason: "unparsable remote address"}
	}
	addr = addr.Unmap()

	for _, prefix := range p.prefixes {
		if prefix.Contains(addr) {
			return nil
		}
	}
	for _, exact := range p.exact {
		if exact == addr {
			return nil
		}
	}
	return &pkgerrors.AuthError{Reason: "remote address not in allow-list"}
}

func (p Policy) verifySignature(r *http.Request, body []byte) error {
	if p.signature.Secret == "" {
		return &pkgerrors.AuthError{Reason: "signature verification enabled but no secret configured"}
	}

	given := r.Header.Get(p.signature.Header)
	if given == "" {
		return &pkgerrors.AuthError{Reason: "missing signature header"}
	}

	givenBytes, err := hex.DecodeString(given)
	if err != nil {
		return &pkgerrors.AuthError{Reason: "malformed signature"}
	}

	mac := hmac.New(sha256.New, []byte(p.signature.Secret))
	mac.Write(body)
	if !hmac.Equal(givenBytes, mac.Sum(nil)) {
		return &pkgerrors.AuthError{Reason: "signature mismatch"}
	}
	return nil
}

// Sign computes the hex HMAC-SHA256 signature for a payload. Used by tests
// and by anything re-delivering payloads on our behalf.
func Sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
