package settings

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/karloscodes/cartridge/sqlite"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const (
	apiKeyLength = 40
	// verifiedKeyTTL bounds how long a successful bcrypt check is reused.
	verifiedKeyTTL = 5 * time.Minute
)

// verifiedKeys remembers keys that recently passed verification, so hot
// server-to-server routes do not pay a bcrypt comparison per request. Entries
// are keyed by the stored hash as well, so a key rotated by another process
// stops matching as soon as the new hash is read.
type verifiedKeys struct {
	mu      sync.Mutex
	entries map[string]time.Time
}

func (v *verifiedKeys) valid(digest string, now time.Time) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	expires, ok := v.entries[digest]
	return ok && now.Before(expires)
}

func (v *verifiedKeys) remember(digest string, now time.Time) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.entries == nil {
		v.entries = make(map[string]time.Time)
	}
	v.entries[digest] = now.Add(verifiedKeyTTL)
}

func (v *verifiedKeys) clear() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.entries = nil
}

// memoKey binds the digest of a presented key to the hash it was checked
// against.
func memoKey(hash, key string) string {
	sum := sha256.Sum256([]byte(hash + "\x00" + key))
	return hex.EncodeToString(sum[:])
}

// GenerateAPIKey creates a new admin API key, stores its bcrypt hash and
// returns the plaintext. Any previous key stops working.
func (s *Store) GenerateAPIKey(ctx context.Context) (string, error) {
	key := generateRandomToken(apiKeyLength)

	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash api key: %w", err)
	}

	err = sqlite.PerformWrite(s.logger, s.db.WithContext(ctx), func(tx *gorm.DB) error {
		return upsertSettings(tx, map[string]string{KeyAdminAPIKeyHash: string(hash)})
	})
	if err != nil {
		return "", err
	}

	s.verified.clear()
	s.logger.Info("Admin API key generated")
	return key, nil
}

// VerifyAPIKey reports whether key matches the stored admin API key.
// ErrNoAPIKey is returned when none was generated.
func (s *Store) VerifyAPIKey(ctx context.Context, key string) (bool, error) {
	hash, err := GetSetting(s.db.WithContext(ctx), KeyAdminAPIKeyHash)
	if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && hash == "") {
		return false, ErrNoAPIKey
	}
	if err != nil {
		return false, fmt.Errorf("failed to read api key: %w", err)
	}

	if key == "" {
		return false, nil
	}

	digest := memoKey(hash, key)
	now := time.Now()
	if s.verified.valid(digest, now) {
		return true, nil
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(key)) != nil {
		return false, nil
	}
	s.verified.remember(digest, now)
	return true, nil
}
