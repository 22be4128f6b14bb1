package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"
	"golang.org/x/oauth2"

	"lyrics-sync-go/logcolors"
)

const tokenBucket = "tokens"

// PersistedToken is the on-disk access token format
type PersistedToken struct {
	AccessToken  string   `json:"access_token"`
	RefreshToken string   `json:"refresh_token,omitempty"`
	ExpiresAt    int64    `json:"expires_at"` // unix seconds
	Scopes       []string `json:"scopes"`
}

// Expired reports whether the token expires within buffer of now
func (t *PersistedToken) Expired(now time.Time, buffer time.Duration) bool {
	return now.Add(buffer).Unix() >= t.ExpiresAt
}

// OAuth2 converts to an oauth2.Token
func (t *PersistedToken) OAuth2() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		TokenType:    "Bearer",
		Expiry:       time.Unix(t.ExpiresAt, 0),
	}
}

// FromOAuth2 converts an oauth2.Token, keeping previous's refresh token when tok has none
func FromOAuth2(tok *oauth2.Token, scopes []string, previous *PersistedToken) *PersistedToken {
	refresh := tok.RefreshToken
	if refresh == "" && previous != nil {
		refresh = previous.RefreshToken
	}
	return &PersistedToken{
		AccessToken:  tok.AccessToken,
		RefreshToken: refresh,
		ExpiresAt:    tok.Expiry.Unix(),
		Scopes:       scopes,
	}
}

// TokenStore persists access tokens in bbolt with an in-memory copy for reads
type TokenStore struct {
	db       *bolt.DB
	memCache sync.Map
	path     string
}

// OpenTokenStore opens (creating if needed) the token database at path
func OpenTokenStore(path string) (*TokenStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create token store directory: %w", err)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open token store: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(tokenBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create token bucket: %w", err)
	}

	ts := &TokenStore{db: db, path: path}
	if err := ts.loadToMemory(); err != nil {
		log.Warnf("%s Failed to preload tokens: %v", logcolors.LogTokenStore, err)
	}

	log.Infof("%s Token store initialized at %s", logcolors.LogTokenStore, path)
	return ts, nil
}

func (ts *TokenStore) loadToMemory() error {
	count := 0
	err := ts.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(tokenBucket))
		if b == nil {
			return nil
		}

		return b.ForEach(func(k, v []byte) error {
			var tok PersistedToken
			if err := json.Unmarshal(v, &tok); err != nil {
				log.Warnf("%s Skipping unreadable token %q: %v", logcolors.LogTokenStore, string(k), err)
				return nil
			}
			ts.memCache.Store(string(k), &tok)
			count++
			return nil
		})
	})
	if err != nil {
		return err
	}

	log.Debugf("%s Loaded %d tokens", logcolors.LogTokenStore, count)
	return nil
}

// Get returns a copy of the token stored under key
func (ts *TokenStore) Get(key string) (*PersistedToken, bool) {
	v, ok := ts.memCache.Load(key)
	if !ok {
		return nil, false
	}
	tok := *v.(*PersistedToken)
	tok.Scopes = append([]string(nil), tok.Scopes...)
	return &tok, true
}

// Put replaces the token stored under key
func (ts *TokenStore) Put(key string, tok *PersistedToken) error {
	data, err := json.Marshal(tok)
	if err != nil {
		return err
	}

	err = ts.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(tokenBucket))
		if b == nil {
			return fmt.Errorf("bucket not found")
		}
		return b.Put([]byte(key), data)
	})
	if err != nil {
		return err
	}

	stored := *tok
	ts.memCache.Store(key, &stored)
	return nil
}

// Delete removes the token stored under key
func (ts *TokenStore) Delete(key string) error {
	ts.memCache.Delete(key)

	return ts.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(tokenBucket))
		if b == nil {
			return fmt.Errorf("bucket not found")
		}
		return b.Delete([]byte(key))
	})
}

// ImportFile seeds key from a standalone JSON token file in the PersistedToken format.
// It does nothing and returns false when key is already stored or the file does not exist.
func (ts *TokenStore) ImportFile(key, path string) (bool, error) {
	if _, ok := ts.Get(key); ok {
		return false, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read token file: %w", err)
	}

	var tok PersistedToken
	if err := json.Unmarshal(data, &tok); err != nil {
		return false, fmt.Errorf("parse token file %s: %w", path, err)
	}
	if tok.AccessToken == "" && tok.RefreshToken == "" {
		return false, fmt.Errorf("token file %s holds no token", path)
	}

	if err := ts.Put(key, &tok); err != nil {
		return false, err
	}
	log.Infof("%s Imported %s from %s", logcolors.LogTokenStore, key, path)
	return true, nil
}

// Keys returns the stored token keys, sorted
func (ts *TokenStore) Keys() []string {
	var keys []string
	ts.memCache.Range(func(k, _ interface{}) bool {
		keys = append(keys, k.(string))
		return true
	})
	sort.Strings(keys)
	return keys
}

// Close closes the database connection
func (ts *TokenStore) Close() error {
	if ts.db != nil {
		return ts.db.Close()
	}
	return nil
}
