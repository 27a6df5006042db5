package ocr

import (
	"fmt"
	"os"
	"strings"
)

const (
	EnvAPIKey    = "GERMAN_OCR_API_KEY"
	EnvAPISecret = "GERMAN_OCR_API_SECRET"
	EnvBaseURL   = "GERMAN_OCR_BASE_URL"

	// APIKeyPrefix is the literal tag every issued API key starts with.
	APIKeyPrefix       = "gocr_"
	MinAPISecretLength = 32
)

// Credentials is the resolved API key pair handed to NewClient.
type Credentials struct {
	APIKey    string
	APISecret string
}

// ResolveCredentials fills empty arguments from the environment and
// validates the result.
func ResolveCredentials(apiKey, apiSecret string) (Credentials, error) {
	creds := Credentials{
		APIKey:    strings.TrimSpace(apiKey),
		APISecret: strings.TrimSpace(apiSecret),
	}
	if creds.APIKey == "" {
		creds.APIKey = strings.TrimSpace(os.Getenv(EnvAPIKey))
	}
	if creds.APISecret == "" {
		creds.APISecret = strings.TrimSpace(os.Getenv(EnvAPISecret))
	}
	if err := creds.Validate(); err != nil {
		return Credentials{}, err
	}
	return creds, nil
}

// Validate checks the key tag and secret length.
func (c Credentials) Validate() error {
	switch {
	case c.APIKey == "":
		return &PreconditionError{Field: "api_key", Err: fmt.Errorf("%w: api key missing (set %s)", ErrInvalidCredentials, EnvAPIKey)}
	case !strings.HasPrefix(c.APIKey, APIKeyPrefix):
		return &PreconditionError{Field: "api_key", Err: fmt.Errorf("%w: api key must start with %q", ErrInvalidCredentials, APIKeyPrefix)}
	case c.APISecret == "":
		return &PreconditionError{Field: "api_secret", Err: fmt.Errorf("%w: api secret missing (set %s)", ErrInvalidCredentials, EnvAPISecret)}
	case len(c.APISecret) < MinAPISecretLength:
		return &PreconditionError{Field: "api_secret", Err: fmt.Errorf("%w: api secret must be at least %d characters", ErrInvalidCredentials, MinAPISecretLength)}
	}
	return nil
}

// BearerToken is the value sent after "Bearer " in the Authorization header.
func (c Credentials) BearerToken() string {
	return c.APIKey + ":" + c.APISecret
}

// String never reveals the secret.
func (c Credentials) String() string {
	return fmt.Sprintf("Credentials{APIKey:%s, APISecret:****}", c.APIKey)
}
