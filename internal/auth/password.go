package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/frahmantamala/hospitality-access/internal"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

var ErrMalformedHash = errors.New("malformed password hash")

// PasswordHasher hashes with the configured scheme and verifies hashes of
// either scheme, so existing bcrypt accounts keep working after a switch to
// argon2id.
type PasswordHasher struct {
	cfg internal.PasswordConfig
}

func NewPasswordHasher(cfg internal.PasswordConfig) *PasswordHasher {
	return &PasswordHasher{cfg: cfg}
}

func (h *PasswordHasher) Hash(password string) (string, error) {
	if h.cfg.Algorithm == internal.PasswordAlgorithmBCrypt {
		hash, err := bcrypt.GenerateFromPassword([]byte(password), h.cfg.BCryptCost)
		if err != nil {
			return "", err
		}
		return string(hash), nil
	}

	salt := make([]byte, h.cfg.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	key := argon2.IDKey([]byte(password), salt, h.cfg.Iterations, h.cfg.Memory, h.cfg.Parallelism, h.cfg.KeyLength)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		h.cfg.Memory, h.cfg.Iterations, h.cfg.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify reports whether password matches hash. needsRehash is true when the
// hash was produced with a scheme or cost other than the configured one.
// A hash that cannot be parsed never matches.
func (h *PasswordHasher) Verify(hash, password string) (ok bool, needsRehash bool, err error) {
	switch {
	case strings.HasPrefix(hash, "$argon2id$"):
		return h.verifyArgon2id(hash, password)
	case strings.HasPrefix(hash, "$2a$"), strings.HasPrefix(hash, "$2b$"), strings.HasPrefix(hash, "$2y$"):
		return h.verifyBCrypt(hash, password)
	default:
		return false, false, ErrMalformedHash
	}
}

func (h *PasswordHasher) verifyBCrypt(hash, password string) (bool, bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return false, false, nil
	}
	if err != nil {
		return false, false, fmt.Errorf("%w: %v", ErrMalformedHash, err)
	}

	rehash := h.cfg.Algorithm != internal.PasswordAlgorithmBCrypt
	if cost, cerr := bcrypt.Cost([]byte(hash)); cerr == nil && cost != h.cfg.BCryptCost {
		rehash = true
	}
	return true, rehash, nil
}

type argon2Params struct {
	memory      uint32
	iterations  uint32
	parallelism uint8
	salt        []byte
	key         []byte
}

func decodeArgon2id(hash string) (*argon2Params, error) {
	parts := strings.Split(hash, "$")
	if len(parts) != 6 {
		return nil, ErrMalformedHash
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return nil, ErrMalformedHash
	}

	p := &argon2Params{}
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.memory, &p.iterations, &p.parallelism); err != nil {
		return nil, ErrMalformedHash
	}
	if p.memory == 0 || p.iterations == 0 || p.parallelism == 0 {
		return nil, ErrMalformedHash
	}

	var err error
	if p.salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil {
		return nil, ErrMalformedHash
	}
	if p.key, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil || len(p.key) == 0 {
		return nil, ErrMalformedHash
	}
	return p, nil
}

func (h *PasswordHasher) verifyArgon2id(hash, password string) (bool, bool, error) {
	p, err := decodeArgon2id(hash)
	if err != nil {
		return false, false, err
	}

	candidate := argon2.IDKey([]byte(password), p.salt, p.iterations, p.memory, p.parallelism, uint32(len(p.key)))
	if subtle.ConstantTimeCompare(candidate, p.key) != 1 {
		return false, false, nil
	}

	rehash := h.cfg.Algorithm != internal.PasswordAlgorithmArgon2id ||
		p.memory != h.cfg.Memory ||
		p.iterations != h.cfg.Iterations ||
		p.parallelism != h.cfg.Parallelism ||
		uint32(len(p.key)) != h.cfg.KeyLength
	return true, rehash, nil
}
