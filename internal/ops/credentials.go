package ops

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/yanun0323/errors"

	"tradecore/pkg/exception"
)

const (
	EnvKeyID     = "BROKER_KEY_ID"
	EnvSecretKey = "BROKER_SECRET_KEY"
)

// Credentials authenticate both the streams and the REST API.
type Credentials struct {
	KeyID     string
	SecretKey string
}

// CredentialProvider supplies broker credentials. Storage is up to the
// implementation.
type CredentialProvider interface {
	Credentials() (Credentials, error)
}

// EnvCredentials reads credentials from the environment, loading the given
// dotenv files first. Missing files are ignored; variables already set win.
type EnvCredentials struct {
	Files []string
}

func (p EnvCredentials) Credentials() (Credentials, error) {
	for _, f := range p.Files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return Credentials{}, errors.Wrapf(err, "load env file %s", f)
		}
	}
	c := Credentials{
		KeyID:     os.Getenv(EnvKeyID),
		SecretKey: os.Getenv(EnvSecretKey),
	}
	if c.KeyID == "" || c.SecretKey == "" {
		return Credentials{}, errors.Errorf("%s: %s and %s must be set", exception.ErrInvalidConfig, EnvKeyID, EnvSecretKey)
	}
	return c, nil
}

// StaticCredentials returns fixed credentials.
type StaticCredentials Credentials

func (s StaticCredentials) Credentials() (Credentials, error) {
	return Credentials(s), nil
}
