package dkg

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"

	"github.com/zmlAEQ/aequa-tdkg/internal/tss/core"
)

// SessionConfig describes one node's view of a DKG session: the member set
// with their public encryption keys, the threshold and where to persist.
type SessionConfig struct {
	SessionID string `json:"session_id"`
	Epoch     uint64 `json:"epoch,omitempty"`

	Threshold int `json:"threshold"`
	Index     int `json:"index"`

	// Persistence.
	KeySharePath string `json:"keyshare_path,omitempty"` // default: tss_keyshare.dat
	SessionDir   string `json:"session_dir,omitempty"`   // optional; enables snapshot/restore

	Validators []ValidatorConfig `json:"validators"`
}

// ValidatorConfig is a member entry; EncryptionKey is the hex compressed G2 point.
type ValidatorConfig struct {
	Index         int    `json:"index"`
	EncryptionKey string `json:"encryption_key"`
}

const defaultKeySharePath = "tss_keyshare.dat"

func LoadSessionConfig(path string) (SessionConfig, error) {
	if path == "" {
		return SessionConfig{}, errors.New("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return SessionConfig{}, err
	}
	var cfg SessionConfig
	if err := json.Unmarshal(b, &cfg); err != nil {
		return SessionConfig{}, err
	}
	if err := cfg.Validate(); err != nil {
		return SessionConfig{}, err
	}
	return cfg, nil
}

// Validate checks the structure only; keys are decoded by Params.
func (c SessionConfig) Validate() error {
	if c.SessionID == "" {
		return errors.New("missing session_id")
	}
	if _, err := uuid.Parse(c.SessionID); err != nil {
		return fmt.Errorf("invalid session_id: %w", err)
	}
	n := len(c.Validators)
	if n < 2 {
		return errors.New("need at least two validators")
	}
	if c.Threshold < 1 || c.Threshold >= n {
		return core.ConfigError(core.ErrInvalidThreshold, fmt.Errorf("threshold %d with %d validators", c.Threshold, n))
	}
	if c.Index < 0 || c.Index >= n {
		return errors.New("invalid index")
	}
	seen := map[int]struct{}{}
	for _, v := range c.Validators {
		if v.Index < 0 || v.Index >= n {
			return errors.New("invalid validator index")
		}
		if _, ok := seen[v.Index]; ok {
			return errors.New("duplicate validator index")
		}
		if b, err := hex.DecodeString(v.EncryptionKey); err != nil || len(b) == 0 {
			return errors.New("invalid validator encryption_key")
		}
		seen[v.Index] = struct{}{}
	}
	return nil
}

// ID parses SessionID.
func (c SessionConfig) ID() (uuid.UUID, error) { return uuid.Parse(c.SessionID) }

// KeyShareFile returns the key store path with its default applied.
func (c SessionConfig) KeyShareFile() string {
	if c.KeySharePath == "" {
		return defaultKeySharePath
	}
	return c.KeySharePath
}

// Params decodes the member keys on suite and builds session parameters.
func (c SessionConfig) Params(suite core.Suite) (*Params, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	vs := make([]Validator, len(c.Validators))
	for i, v := range c.Validators {
		b, _ := hex.DecodeString(v.EncryptionKey)
		ek, err := suite.G2().Unmarshal(b)
		if err != nil {
			return nil, core.ConfigError(core.ErrInvalidValidatorSet, fmt.Errorf("validator %d: %w", v.Index, err))
		}
		vs[i] = Validator{Index: v.Index, EncryptionKey: ek}
	}
	return NewParams(suite, c.Threshold, vs)
}

// OpenSession builds params from the config and starts (or restores, when a
// snapshot exists in SessionDir) the configured session.
func (c SessionConfig) OpenSession(ctx context.Context, suite core.Suite) (*Session, error) {
	params, err := c.Params(suite)
	if err != nil {
		return nil, err
	}
	id, err := c.ID()
	if err != nil {
		return nil, err
	}
	if c.SessionDir != "" {
		if s, err := RestoreSession(ctx, NewSessionStore(c.SessionDir), params, id); err == nil {
			return s, nil
		}
	}
	return NewSessionWithID(params, id, c.Epoch)
}

// LoadKeypair reads this node's hex-encoded decryption key from path.
func (c SessionConfig) LoadKeypair(suite core.Suite, path string) (*Keypair, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	defer core.WipeBytes(b)
	raw := bytes.TrimSpace(b)
	secret := make([]byte, hex.DecodedLen(len(raw)))
	defer core.WipeBytes(secret)
	if _, err := hex.Decode(secret, raw); err != nil {
		return nil, fmt.Errorf("decryption key: %w", err)
	}
	return KeypairFromSecret(suite, c.Index, secret)
}
