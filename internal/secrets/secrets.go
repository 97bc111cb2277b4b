// Package secrets loads key material from AWS Secrets Manager.
package secrets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// ErrEmptySecret is returned when a secret has neither a string nor a binary value.
var ErrEmptySecret = errors.New("secret has no value")

// API is the subset of the Secrets Manager client in use.
type API interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// Loader fetches secret payloads.
type Loader struct {
	api API
}

func NewLoader(api API) *Loader {
	return &Loader{api: api}
}

// Value returns the raw secret payload for id.
func (l *Loader) Value(ctx context.Context, id string) ([]byte, error) {
	out, err := l.api.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{SecretId: aws.String(id)})
	if err != nil {
		return nil, fmt.Errorf("get secret %s: %w", id, err)
	}
	if out.SecretString != nil {
		return []byte(*out.SecretString), nil
	}
	if len(out.SecretBinary) > 0 {
		return out.SecretBinary, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrEmptySecret, id)
}

// PrivateKey returns PEM key material stored under id. The secret may hold the
// PEM directly or a JSON object with a privateKey (or private_key) field.
func (l *Loader) PrivateKey(ctx context.Context, id string) ([]byte, error) {
	raw, err := l.Value(ctx, id)
	if err != nil {
		return nil, err
	}
	return extractPEM(raw)
}

// PrivateKeyFrom resolves key material from whichever source is configured:
// an inline PEM, a file path, or a secret id. The first non-empty source wins.
func PrivateKeyFrom(ctx context.Context, loader *Loader, inline, path, secretID string) ([]byte, error) {
	switch {
	case strings.TrimSpace(inline) != "":
		return []byte(strings.ReplaceAll(inline, `\n`, "\n")), nil
	case path != "":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read private key %s: %w", path, err)
		}
		return data, nil
	case secretID != "":
		if loader == nil {
			return nil, fmt.Errorf("secret %s configured without a secrets client", secretID)
		}
		return loader.PrivateKey(ctx, secretID)
	default:
		return nil, fmt.Errorf("no private key source configured")
	}
}

func extractPEM(raw []byte) ([]byte, error) {
	trimmed := strings.TrimSpace(string(raw))
	if !strings.HasPrefix(trimmed, "{") {
		return []byte(trimmed), nil
	}
	var doc map[string]string
	if err := json.Unmarshal([]byte(trimmed), &doc); err != nil {
		return nil, fmt.Errorf("decode secret json: %w", err)
	}
	for _, field := range []string{"privateKey", "private_key"} {
		if value := doc[field]; value != "" {
			return []byte(value), nil
		}
	}
	return nil, fmt.Errorf("%w: no privateKey field", ErrEmptySecret)
}
