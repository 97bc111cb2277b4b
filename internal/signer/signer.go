// Package signer issues CloudFront signed cookies carrying a custom policy
// that grants access to every object under a distribution host.
package signer

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tendant/simple-vod/pkg/schema"
)

// ErrSigning marks a request that could not be signed with the configured key.
var ErrSigning = errors.New("signing failed")

// Validity is how long issued cookies stay valid.
const Validity = 6 * time.Hour

var cookieSafe = strings.NewReplacer("+", "-", "=", "_", "/", "~")

// Signer produces the policy, key-pair id and signature cookie triple.
type Signer struct {
	KeyID string
	Key   *rsa.PrivateKey
	Now   func() time.Time

	err error
}

// New returns a Signer for keyID using the PEM encoded private key.
func New(keyID string, privateKeyPEM []byte) (*Signer, error) {
	key, err := ParsePrivateKey(privateKeyPEM)
	if err != nil {
		return nil, err
	}
	return &Signer{KeyID: keyID, Key: key, Now: time.Now}, nil
}

// Failed returns a Signer whose every Sign call reports err. It stands in
// for a signer whose key could not be loaded.
func Failed(keyID string, err error) *Signer {
	if !errors.Is(err, ErrSigning) {
		err = fmt.Errorf("%w: %w", ErrSigning, err)
	}
	return &Signer{KeyID: keyID, err: err}
}

// Policy renders the whitespace-free custom policy for resource.
func Policy(resource string, expiration int64) string {
	return `{"Statement":[{"Resource":"` + resource +
		`","Condition":{"DateLessThan":{"AWS:EpochTime":` +
		strconv.FormatInt(expiration, 10) + `}}}]}`
}

// Sign grants access to https://<host>/* until six hours from now.
func (s *Signer) Sign(host string) (*schema.SignedCookies, error) {
	if s != nil && s.err != nil {
		return nil, s.err
	}
	if s == nil || s.Key == nil {
		return nil, fmt.Errorf("%w: no private key configured", ErrSigning)
	}
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	expiration := now().Add(Validity).Unix()
	policy := Policy("https://"+host+"/*", expiration)

	digest := sha1.Sum([]byte(policy))
	signature, err := rsa.SignPKCS1v15(rand.Reader, s.Key, crypto.SHA1, digest[:])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSigning, err)
	}

	return &schema.SignedCookies{
		Credentials: schema.CookieCredentials{
			Policy:    Encode([]byte(policy)),
			KeyPairID: s.KeyID,
			Signature: Encode(signature),
		},
		Expiration: expiration,
	}, nil
}

// Encode base64 encodes data using the CloudFront cookie alphabet.
func Encode(data []byte) string {
	return cookieSafe.Replace(base64.StdEncoding.EncodeToString(data))
}

// Decode reverses Encode.
func Decode(value string) ([]byte, error) {
	restored := strings.NewReplacer("-", "+", "_", "=", "~", "/").Replace(value)
	return base64.StdEncoding.DecodeString(restored)
}

// ParsePrivateKey accepts an RSA key in PKCS#8 or PKCS#1 PEM form.
func ParsePrivateKey(data []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("%w: no PEM block in private key", ErrSigning)
	}
	switch block.Type {
	case "RSA PRIVATE KEY":
		key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: parse pkcs1 key: %v", ErrSigning, err)
		}
		return key, nil
	case "PRIVATE KEY":
		parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: parse pkcs8 key: %v", ErrSigning, err)
		}
		key, ok := parsed.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("%w: private key is %T, want RSA", ErrSigning, parsed)
		}
		return key, nil
	default:
		return nil, fmt.Errorf("%w: unsupported PEM block %q", ErrSigning, block.Type)
	}
}
