package secrets

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/99designs/keyring"
	"golang.org/x/term"

	"mailcrawl/internal/config"
)

const (
	keyringPasswordEnv = "MAILCRAWL_KEYRING_PASSWORD" //nolint:gosec // env var name, not a credential
	keyringBackendEnv  = "MAILCRAWL_KEYRING_BACKEND"  //nolint:gosec // env var name, not a credential
)

// keyringOpenTimeout bounds keyring.Open. On headless Linux the D-Bus
// SecretService can hang indefinitely when gnome-keyring is installed but
// not running.
const keyringOpenTimeout = 5 * time.Second

var (
	ErrSecretNotFound = errors.New("secret not found")

	errMissingUsername       = errors.New("missing username")
	errMissingPassword       = errors.New("missing password")
	errNoTTY                 = errors.New("no TTY available for keyring file backend password prompt")
	errInvalidKeyringBackend = errors.New("invalid keyring backend")
	errKeyringTimeout        = errors.New("keyring connection timed out")

	openKeyringFunc = openKeyring
	keyringOpenFunc = keyring.Open
)

// SetPassword stores the mailbox password for a username in the keyring.
func SetPassword(username, password string) error {
	user := normalize(username)
	if user == "" {
		return errMissingUsername
	}
	if password == "" {
		return errMissingPassword
	}

	ring, err := openKeyringFunc()
	if err != nil {
		return err
	}
	item := keyring.Item{
		Key:   passwordKey(user),
		Data:  []byte(password),
		Label: config.AppName,
	}
	if err := ring.Set(item); err != nil {
		return fmt.Errorf("store secret: %w", err)
	}
	return nil
}

// GetPassword reads the stored mailbox password for a username.
func GetPassword(username string) (string, error) {
	user := normalize(username)
	if user == "" {
		return "", errMissingUsername
	}

	ring, err := openKeyringFunc()
	if err != nil {
		return "", err
	}
	item, err := ring.Get(passwordKey(user))
	if err != nil {
		if errors.Is(err, keyring.ErrKeyNotFound) {
			return "", ErrSecretNotFound
		}
		return "", fmt.Errorf("read secret: %w", err)
	}
	return string(item.Data), nil
}

// DeletePassword removes the stored password for a username. Deleting a
// password that was never stored is not an error.
func DeletePassword(username string) error {
	user := normalize(username)
	if user == "" {
		return errMissingUsername
	}

	ring, err := openKeyringFunc()
	if err != nil {
		return err
	}
	if err := ring.Remove(passwordKey(user)); err != nil {
		if errors.Is(err, keyring.ErrKeyNotFound) {
			return nil
		}
		return fmt.Errorf("delete secret: %w", err)
	}
	return nil
}

func passwordKey(username string) string {
	return fmt.Sprintf("auth:password:%s", username)
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func allowedBackends(value string) ([]keyring.BackendType, error) {
	switch value {
	case "", "auto":
		return nil, nil
	case "keychain":
		return []keyring.BackendType{keyring.KeychainBackend}, nil
	case "file":
		return []keyring.BackendType{keyring.FileBackend}, nil
	default:
		return nil, fmt.Errorf("%w: %q (expected auto, keychain, or file)", errInvalidKeyringBackend, value)
	}
}

func fileKeyringPasswordFunc() keyring.PromptFunc {
	// Treat "set to empty string" as intentional; empty passphrase is valid.
	if password, ok := os.LookupEnv(keyringPasswordEnv); ok {
		return keyring.FixedStringPrompt(password)
	}
	if term.IsTerminal(int(os.Stdin.Fd())) {
		return keyring.TerminalPrompt
	}
	return func(_ string) (string, error) {
		return "", fmt.Errorf("%w; set %s", errNoTTY, keyringPasswordEnv)
	}
}

func openKeyring() (keyring.Keyring, error) {
	keyringDir, err := config.EnsureKeyringDir()
	if err != nil {
		return nil, fmt.Errorf("ensure keyring dir: %w", err)
	}

	backend := strings.ToLower(strings.TrimSpace(os.Getenv(keyringBackendEnv)))
	backends, err := allowedBackends(backend)
	if err != nil {
		return nil, err
	}

	auto := backend == "" || backend == "auto"
	dbusAddr := os.Getenv("DBUS_SESSION_BUS_ADDRESS")
	// On Linux with no D-Bus session, SecretService cannot work; fall back
	// to the encrypted file backend instead of hanging.
	if runtime.GOOS == "linux" && auto && dbusAddr == "" {
		backends = []keyring.BackendType{keyring.FileBackend}
	}

	cfg := keyring.Config{
		ServiceName:              config.AppName,
		KeychainTrustApplication: false,
		AllowedBackends:          backends,
		FileDir:                  keyringDir,
		FilePasswordFunc:         fileKeyringPasswordFunc(),
	}

	if runtime.GOOS == "linux" && auto && dbusAddr != "" {
		return openKeyringWithTimeout(cfg, keyringOpenTimeout)
	}

	ring, err := keyringOpenFunc(cfg)
	if err != nil {
		return nil, fmt.Errorf("open keyring: %w", err)
	}
	return ring, nil
}

type keyringResult struct {
	ring keyring.Keyring
	err  error
}

func openKeyringWithTimeout(cfg keyring.Config, timeout time.Duration) (keyring.Keyring, error) {
	ch := make(chan keyringResult, 1)
	go func() {
		ring, err := keyringOpenFunc(cfg)
		ch <- keyringResult{ring, err}
	}()

	select {
	case res := <-ch:
		if res.err != nil {
			return nil, fmt.Errorf("open keyring: %w", res.err)
		}
		return res.ring, nil
	case <-time.After(timeout):
		return nil, fmt.Errorf("%w after %v (D-Bus SecretService may be unresponsive); "+
			"set %s=file and %s=<password> to use encrypted file storage instead",
			errKeyringTimeout, timeout, keyringBackendEnv, keyringPasswordEnv)
	}
}
