package vault

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/forest6511/acctvault/pkg/crypto"
)

// ErrIntegrity is matched by every *IntegrityError.
var ErrIntegrity = errors.New("vault: stored field failed to decrypt")

// Encrypted field names.
const (
	FieldPassword = "password"
	FieldSecret   = "secret"
)

// KeySource supplies the field encryption key. *masterkey.Provider implements it.
type KeySource interface {
	MasterKey() ([]byte, error)
}

// IntegrityError reports a stored envelope that could not be opened. It
// names the row and column so an operator can find it; it never carries
// plaintext or key material.
type IntegrityError struct {
	AccountID int64
	Field     string
	Err       error
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("vault: account %d field %s failed to decrypt: %v", e.AccountID, e.Field, e.Err)
}

func (e *IntegrityError) Unwrap() []error {
	return []error{ErrIntegrity, e.Err}
}

// Codec converts between plaintext account fields and stored envelopes.
type Codec struct {
	keys KeySource
}

// NewCodec returns a Codec drawing its key from keys.
func NewCodec(keys KeySource) *Codec {
	return &Codec{keys: keys}
}

func (c *Codec) key() ([]byte, error) {
	key, err := c.keys.MasterKey()
	if err != nil {
		return nil, fmt.Errorf("vault: master key unavailable: %w", err)
	}
	return key, nil
}

// sealed holds the stored form of the encrypted columns.
type sealed struct {
	password string
	secret   sql.NullString
}

// seal encrypts password always and secret only when non-empty; an empty
// secret is stored as NULL.
func (c *Codec) seal(password, secret string) (sealed, error) {
	key, err := c.key()
	if err != nil {
		return sealed{}, err
	}

	var out sealed
	out.password, err = crypto.EncryptField(password, key)
	if err != nil {
		return sealed{}, fmt.Errorf("vault: failed to encrypt password: %w", err)
	}
	if secret != "" {
		env, err := crypto.EncryptField(secret, key)
		if err != nil {
			return sealed{}, fmt.Errorf("vault: failed to encrypt secret: %w", err)
		}
		out.secret = sql.NullString{String: env, Valid: true}
	}
	return out, nil
}

// open decrypts the stored columns of account id. A NULL or empty stored
// secret yields an empty secret; any other failure is an *IntegrityError.
func (c *Codec) open(id int64, password string, secret sql.NullString) (string, string, error) {
	key, err := c.key()
	if err != nil {
		return "", "", err
	}

	plainPassword, err := crypto.DecryptField(password, key)
	if err != nil {
		return "", "", &IntegrityError{AccountID: id, Field: FieldPassword, Err: err}
	}

	var plainSecret string
	if secret.Valid && secret.String != "" {
		plainSecret, err = crypto.DecryptField(secret.String, key)
		if err != nil {
			return "", "", &IntegrityError{AccountID: id, Field: FieldSecret, Err: err}
		}
	}
	return plainPassword, plainSecret, nil
}
