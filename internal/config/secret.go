package config

import (
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

// Secret store coordinates of the BIOS password.
const (
	SecretService   = "battctl"
	SecretAttribute = "bios-password"
)

// ErrNoPassword is returned when no BIOS password has been stored.
var ErrNoPassword = errors.New("no BIOS password stored")

// Secrets gives access to the BIOS password used by authenticated writes.
type Secrets interface {
	BIOSPassword() (string, error)
	SetBIOSPassword(password string) error
	ClearBIOSPassword() error
}

// KeyringSecrets stores the password in the desktop secret service.
type KeyringSecrets struct{}

// BIOSPassword looks the password up.
func (KeyringSecrets) BIOSPassword() (string, error) {
	pass, err := keyring.Get(SecretService, SecretAttribute)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", ErrNoPassword
	}
	if err != nil {
		return "", fmt.Errorf("failed to look up BIOS password: %w", err)
	}
	return pass, nil
}

// SetBIOSPassword stores the password.
func (KeyringSecrets) SetBIOSPassword(password string) error {
	if password == "" {
		return errors.New("password must not be empty")
	}
	if err := keyring.Set(SecretService, SecretAttribute, password); err != nil {
		return fmt.Errorf("failed to store BIOS password: %w", err)
	}
	return nil
}

// ClearBIOSPassword removes the stored password. Clearing a missing
// password is not an error.
func (KeyringSecrets) ClearBIOSPassword() error {
	err := keyring.Delete(SecretService, SecretAttribute)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("failed to clear BIOS password: %w", err)
	}
	return nil
}
