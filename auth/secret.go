package auth

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"lyrics-sync-go/logcolors"
)

// Secret is a decoded TOTP shared secret
type Secret struct {
	Bytes     []byte
	Version   string
	FetchedAt time.Time
}

// Stale reports whether the secret is older than maxAge at now
func (s *Secret) Stale(now time.Time, maxAge time.Duration) bool {
	return now.Sub(s.FetchedAt) > maxAge
}

// DecodeSecret picks the highest numeric version from a version -> obfuscated bytes map and
// decodes it. Each byte is XORed with (index % 33) + 9 and the results are concatenated as
// decimal strings; the secret is the bytes of that string.
func DecodeSecret(dict map[string][]int) (version string, secret []byte, err error) {
	best := int64(-1)
	for k := range dict {
		n, err := strconv.ParseInt(k, 10, 64)
		if err != nil || n < 0 {
			continue
		}
		if n > best {
			best, version = n, k
		}
	}
	if best < 0 {
		return "", nil, ErrNoSecretVersion
	}

	var sb strings.Builder
	for i, b := range dict[version] {
		key := (i % 33) + 9
		sb.WriteString(strconv.Itoa((b & 0xFF) ^ key))
	}
	return version, []byte(sb.String()), nil
}

// fetchSecret downloads and decodes the secret dictionary
func (m *TokenManager) fetchSecret(ctx context.Context) (*Secret, error) {
	log.Infof("%s Fetching secret key from %s", logcolors.LogSecret, m.opts.SecretURL)

	var dict map[string][]int
	if err := m.client.GetJSON(ctx, m.opts.SecretURL, nil, &dict); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSecretFetch, err)
	}

	version, secret, err := DecodeSecret(dict)
	if err != nil {
		return nil, err
	}

	log.Infof("%s Using secret version %s", logcolors.LogSecret, version)
	return &Secret{Bytes: secret, Version: version, FetchedAt: m.now()}, nil
}

// ensureSecret returns the cached secret, refetching it wholesale once it is older than the
// configured max age
func (m *TokenManager) ensureSecret(ctx context.Context) (*Secret, error) {
	m.secretMu.RLock()
	secret := m.secret
	m.secretMu.RUnlock()

	if secret != nil && !secret.Stale(m.now(), m.opts.SecretMaxAge) {
		return secret, nil
	}
	if secret != nil {
		log.Debugf("%s Cached secret is stale, refreshing", logcolors.LogSecret)
	}

	fresh, err := m.fetchSecret(ctx)
	if err != nil {
		return nil, err
	}

	m.secretMu.Lock()
	m.secret = fresh
	m.secretMu.Unlock()
	return fresh, nil
}
