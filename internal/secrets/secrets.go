// Package secrets keeps credentials in the OS keychain, with environment
// variables as a fallback for headless setups.
package secrets

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/zalando/go-keyring"

	"jobboard-engine/internal/config"
)

const (
	// "Service" groups the app's secrets in the OS keychain.
	KeyringService = "jobboard"

	openAIAccount = "openai:api-key"

	EnvOpenAIKey    = "OPENAI_API_KEY"
	EnvIMAPPassword = "JOBBOARD_IMAP_PASSWORD"
)

var (
	ErrOpenAIKeyNotFound    = errors.New("OpenAI API key not found (set it in keychain or via " + EnvOpenAIKey + ")")
	ErrIMAPPasswordNotFound = errors.New("IMAP password not found (set it in keychain or via " + EnvIMAPPassword + ")")
)

// lookup tries the keychain, then the environment.
func lookup(account, env string) (string, bool) {
	if strings.TrimSpace(account) != "" {
		v, err := keyring.Get(KeyringService, account)
		if err == nil && strings.TrimSpace(v) != "" {
			return v, true
		}
	}
	if v := strings.TrimSpace(os.Getenv(env)); v != "" {
		return v, true
	}
	return "", false
}

func store(account, value string) error {
	if strings.TrimSpace(account) == "" {
		return errors.New("keyring account name is empty")
	}
	if strings.TrimSpace(value) == "" {
		return errors.New("secret is empty")
	}
	return keyring.Set(KeyringService, account, value)
}

func GetOpenAIKey() (string, error) {
	if v, ok := lookup(openAIAccount, EnvOpenAIKey); ok {
		return v, nil
	}
	return "", ErrOpenAIKeyNotFound
}

func SetOpenAIKey(key string) error { return store(openAIAccount, key) }

func DeleteOpenAIKey() error { return keyring.Delete(KeyringService, openAIAccount) }

func GetIMAPPassword(keyringAccount string) (string, error) {
	if v, ok := lookup(keyringAccount, EnvIMAPPassword); ok {
		return v, nil
	}
	return "", ErrIMAPPasswordNotFound
}

func SetIMAPPassword(keyringAccount, password string) error {
	return store(keyringAccount, password)
}

func DeleteIMAPPassword(keyringAccount string) error {
	if strings.TrimSpace(keyringAccount) == "" {
		return errors.New("keyring account name is empty")
	}
	return keyring.Delete(KeyringService, keyringAccount)
}

func IMAPKeyringAccount(cfg config.Config) string {
	return fmt.Sprintf(
		"jobboard:imap:%s@%s",
		cfg.Email.Username,
		cfg.Email.IMAPHost,
	)
}
