package signer_test

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tendant/simple-vod/internal/signer"
)

var (
	keyOnce sync.Once
	testKey *rsa.PrivateKey
)

func privateKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	keyOnce.Do(func() {
		key, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			panic(err)
		}
		testKey = key
	})
	return testKey
}

func TestSignProducesVerifiablePolicy(t *testing.T) {
	key := privateKey(t)
	now := time.Unix(1700000000, 0)
	s := &signer.Signer{KeyID: "K2JCJMDEHXQW5F", Key: key, Now: func() time.Time { return now }}

	cookies, err := s.Sign("d111111abcdef8.cloudfront.net")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if cookies.Expiration != 1700021600 {
		t.Fatalf("expected expiration 1700021600, got %d", cookies.Expiration)
	}
	if cookies.Credentials.KeyPairID != "K2JCJMDEHXQW5F" {
		t.Fatalf("unexpected key pair id %q", cookies.Credentials.KeyPairID)
	}

	for name, value := range map[string]string{
		"policy":    cookies.Credentials.Policy,
		"signature": cookies.Credentials.Signature,
	} {
		if strings.ContainsAny(value, "+=/") {
			t.Fatalf("%s contains characters outside the cookie alphabet: %q", name, value)
		}
	}

	policy, err := signer.Decode(cookies.Credentials.Policy)
	if err != nil {
		t.Fatalf("decode policy: %v", err)
	}
	want := `{"Statement":[{"Resource":"https://d111111abcdef8.cloudfront.net/*","Condition":{"DateLessThan":{"AWS:EpochTime":1700021600}}}]}`
	if string(policy) != want {
		t.Fatalf("unexpected policy\n got: %s\nwant: %s", policy, want)
	}

	signature, err := signer.Decode(cookies.Credentials.Signature)
	if err != nil {
		t.Fatalf("decode signature: %v", err)
	}
	digest := sha1.Sum(policy)
	if err := rsa.VerifyPKCS1v15(&key.PublicKey, crypto.SHA1, digest[:], signature); err != nil {
		t.Fatalf("signature does not verify: %v", err)
	}
}

func TestEncodeReplacesEveryOccurrence(t *testing.T) {
	// 0xfb 0xff 0xbf encodes to "+/+/" in standard base64.
	got := signer.Encode([]byte{0xfb, 0xff, 0xbf, 0xfb, 0xff})
	if strings.ContainsAny(got, "+=/") {
		t.Fatalf("unexpected characters in %q", got)
	}
	if got != "-~-~-~8_" {
		t.Fatalf("unexpected encoding %q", got)
	}
}

func TestParsePrivateKeyFormats(t *testing.T) {
	key := privateKey(t)

	pkcs1 := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	if _, err := signer.ParsePrivateKey(pkcs1); err != nil {
		t.Fatalf("parse pkcs1: %v", err)
	}

	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		t.Fatalf("marshal pkcs8: %v", err)
	}
	pkcs8 := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})
	s, err := signer.New("KEY", pkcs8)
	if err != nil {
		t.Fatalf("new signer from pkcs8: %v", err)
	}
	if s.Key.N.Cmp(key.N) != 0 {
		t.Fatal("parsed key does not match")
	}

	if _, err := signer.ParsePrivateKey([]byte("not a key")); !errors.Is(err, signer.ErrSigning) {
		t.Fatalf("expected ErrSigning for garbage, got %v", err)
	}
	broken := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: []byte{0x01, 0x02}})
	if _, err := signer.ParsePrivateKey(broken); !errors.Is(err, signer.ErrSigning) {
		t.Fatalf("expected ErrSigning for malformed key, got %v", err)
	}
}

func TestSignWithoutKeyFails(t *testing.T) {
	var s signer.Signer
	if _, err := s.Sign("cdn.example.net"); !errors.Is(err, signer.ErrSigning) {
		t.Fatalf("expected ErrSigning, got %v", err)
	}
}

func policyEpoch(t *testing.T, cookies string) int64 {
	t.Helper()
	raw, err := signer.Decode(cookies)
	if err != nil {
		t.Fatalf("decode policy: %v", err)
	}
	var doc struct {
		Statement []struct {
			Condition struct {
				DateLessThan struct {
					EpochTime int64 `json:"AWS:EpochTime"`
				} `json:"DateLessThan"`
			} `json:"Condition"`
		} `json:"Statement"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("parse policy %s: %v", raw, err)
	}
	if len(doc.Statement) != 1 {
		t.Fatalf("expected one statement in %s", raw)
	}
	return doc.Statement[0].Condition.DateLessThan.EpochTime
}

func TestSignExpiryFollowsCallTime(t *testing.T) {
	first := time.Unix(1700000000, 900*int64(time.Millisecond))
	second := first.Add(1500 * time.Millisecond)
	current := first
	s := &signer.Signer{KeyID: "KEY", Key: privateKey(t), Now: func() time.Time { return current }}

	a, err := s.Sign("cdn.example.net")
	if err != nil {
		t.Fatalf("first sign: %v", err)
	}
	current = second
	b, err := s.Sign("cdn.example.net")
	if err != nil {
		t.Fatalf("second sign: %v", err)
	}

	for _, tc := range []struct {
		at      time.Time
		cookies string
		expires int64
	}{
		{first, a.Credentials.Policy, a.Expiration},
		{second, b.Credentials.Policy, b.Expiration},
	} {
		want := tc.at.Unix() + 21600
		if got := policyEpoch(t, tc.cookies); got != want {
			t.Fatalf("policy epoch at %v: got %d, want %d", tc.at, got, want)
		}
		if tc.expires != want {
			t.Fatalf("expiration at %v: got %d, want %d", tc.at, tc.expires, want)
		}
	}

	gotDelta := policyEpoch(t, b.Credentials.Policy) - policyEpoch(t, a.Credentials.Policy)
	if wantDelta := second.Unix() - first.Unix(); gotDelta != wantDelta {
		t.Fatalf("epoch delta %d, want %d", gotDelta, wantDelta)
	}
}

func TestFailedSignerReportsKeyError(t *testing.T) {
	_, parseErr := signer.ParsePrivateKey([]byte("garbage"))
	s := signer.Failed("KEY", parseErr)
	_, err := s.Sign("cdn.example.net")
	if !errors.Is(err, signer.ErrSigning) || !strings.Contains(err.Error(), "no PEM block") {
		t.Fatalf("expected the key error, got %v", err)
	}

	wrapped := signer.Failed("KEY", errors.New("secret unavailable"))
	if _, err := wrapped.Sign("cdn.example.net"); !errors.Is(err, signer.ErrSigning) {
		t.Fatalf("expected ErrSigning, got %v", err)
	}
}
