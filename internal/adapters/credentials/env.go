// Package credentials selects the Gemini API key from the process
// environment and an optional dotenv file an operator can rotate.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/joho/godotenv"

	"github.com/PabloGalante/blue-shark/internal/observability"
)

// ErrNoCredential is returned by PromptSelection when re-reading the
// environment still yields no key.
var ErrNoCredential = errors.New("no API key selected")

var keyNames = []string{"GEMINI_API_KEY", "API_KEY"}

// EnvSelector holds the current key. PromptSelection re-reads the dotenv
// file, so a key rotated on disk is picked up without a restart.
type EnvSelector struct {
	mu      sync.RWMutex
	key     string
	envFile string
}

// NewEnvSelector starts from initialKey; envFile may be empty.
func NewEnvSelector(initialKey, envFile string) *EnvSelector {
	return &EnvSelector{key: initialKey, envFile: envFile}
}

// APIKey implements llm.KeySource.
func (s *EnvSelector) APIKey() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.key
}

// HasSelected implements domain.CredentialSelector.
func (s *EnvSelector) HasSelected(ctx context.Context) (bool, error) {
	return s.APIKey() != "", nil
}

// PromptSelection implements domain.CredentialSelector.
func (s *EnvSelector) PromptSelection(ctx context.Context) error {
	log := observability.LoggerFromContext(ctx)

	key, err := s.lookup()
	if err != nil {
		return err
	}
	if key == "" {
		log.Warn().Str("env_file", s.envFile).Msg("credential selection found no API key")
		return ErrNoCredential
	}

	s.mu.Lock()
	changed := key != s.key
	s.key = key
	s.mu.Unlock()

	log.Info().Bool("changed", changed).Msg("API key re-selected")
	return nil
}

// lookup prefers the dotenv file over the process environment.
func (s *EnvSelector) lookup() (string, error) {
	if s.envFile != "" {
		if _, err := os.Stat(s.envFile); err == nil {
			vals, err := godotenv.Read(s.envFile)
			if err != nil {
				return "", fmt.Errorf("reading %s: %w", s.envFile, err)
			}
			for _, name := range keyNames {
				if v := vals[name]; v != "" {
					return v, nil
				}
			}
		}
	}

	for _, name := range keyNames {
		if v := os.Getenv(name); v != "" {
			return v, nil
		}
	}
	return "", nil
}
