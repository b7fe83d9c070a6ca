package auth

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/oukeidos/subflow/internal/endpoint"
	"github.com/zalando/go-keyring"
	"golang.org/x/term"
)

const (
	serviceName      = "subflow"
	openaiAccount    = "openai-api-key"
	anthropicAccount = "anthropic-api-key"
	genericEnvVar    = "SUBFLOW_API_KEY"
	openaiEnvVar     = "OPENAI_API_KEY"
	anthropicEnvVar  = "ANTHROPIC_API_KEY"
)

// Key sources reported by GetKey.
const (
	SourceKeychain = "Keychain"
	SourceEnv      = "Environment Variable"
)

// Account returns the keychain account used for a dialect. Auto is stored
// under the OpenAI account.
func Account(format endpoint.Format) string {
	if format == endpoint.FormatAnthropic {
		return anthropicAccount
	}
	return openaiAccount
}

func envVars(format endpoint.Format) []string {
	if format == endpoint.FormatAnthropic {
		return []string{genericEnvVar, anthropicEnvVar}
	}
	return []string{genericEnvVar, openaiEnvVar}
}

// GetKey retrieves the API key for a dialect. The keychain wins over the
// environment; if allowEnv is false, environment variables are ignored.
// It returns the key and where it came from, or two empty strings.
func GetKey(format endpoint.Format, allowEnv bool) (string, string) {
	key, err := keyring.Get(serviceName, Account(format))
	if err == nil && strings.TrimSpace(key) != "" {
		return strings.TrimSpace(key), SourceKeychain
	}
	if allowEnv {
		if key, ok := GetEnvKey(format); ok {
			return key, SourceEnv
		}
	}
	return "", ""
}

// SaveKey stores the key for a dialect in the OS keychain.
func SaveKey(format endpoint.Format, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("API key is empty")
	}
	return keyring.Set(serviceName, Account(format), key)
}

// DeleteKey removes the key for a dialect. A missing key is not an error.
func DeleteKey(format endpoint.Format) error {
	err := keyring.Delete(serviceName, Account(format))
	if errors.Is(err, keyring.ErrNotFound) {
		return nil
	}
	return err
}

// GetStatus reports whether the keychain holds a key for a dialect.
func GetStatus(format endpoint.Format) bool {
	key, err := keyring.Get(serviceName, Account(format))
	return err == nil && key != ""
}

// GetEnvKey retrieves the key from environment variables only.
// SUBFLOW_API_KEY is checked before the vendor variable.
func GetEnvKey(format endpoint.Format) (string, bool) {
	for _, name := range envVars(format) {
		if key := strings.TrimSpace(os.Getenv(name)); key != "" {
			return key, true
		}
	}
	return "", false
}

// PromptForAPIKey reads a key from the terminal without echo.
func PromptForAPIKey(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	bytePassword, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		return "", err
	}
	fmt.Fprintln(os.Stderr)
	return strings.TrimSpace(string(bytePassword)), nil
}
