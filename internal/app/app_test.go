package app_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/aws"

	"github.com/tendant/simple-vod/internal/app"
	"github.com/tendant/simple-vod/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Store.Backend = "sqlite"
	cfg.Store.SQLitePath = filepath.Join(t.TempDir(), "jobs.db")
	cfg.Storage.OutputBucket = "vod-output"
	cfg.Transcode.RoleARN = "arn:aws:iam::123456789012:role/MediaConvertRole"
	cfg.CDN.Domain = "d111.cloudfront.net"
	return &cfg
}

func pemKey(t *testing.T) string {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)}))
}

func TestNewWithSQLiteAndInlineKey(t *testing.T) {
	cfg := testConfig(t)
	cfg.CDN.KeyID = "K2JCJMDEHXQW5F"
	cfg.CDN.PrivateKey = pemKey(t)

	a, err := app.NewWithAWS(context.Background(), cfg, aws.Config{Region: "us-east-1"}, nil, app.Options{})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })
	if a.Signer == nil {
		t.Fatal("expected signer")
	}

	out, err := a.Router.Handle(context.Background(), json.RawMessage(`{"httpMethod":"GET","resource":"/signed-cookies"}`))
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	resp := out.(events.APIGatewayProxyResponse)
	if resp.StatusCode != 200 {
		t.Fatalf("unexpected response %d %s", resp.StatusCode, resp.Body)
	}

	out, _ = a.Router.Handle(context.Background(), json.RawMessage(`{"httpMethod":"GET","resource":"/jobs"}`))
	if resp := out.(events.APIGatewayProxyResponse); resp.Body != `{"jobs":[]}` {
		t.Fatalf("unexpected jobs body %s", resp.Body)
	}
}

func TestNewWithoutSigningKey(t *testing.T) {
	a, err := app.NewWithAWS(context.Background(), testConfig(t), aws.Config{Region: "us-east-1"}, nil, app.Options{})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })
	if a.Signer != nil {
		t.Fatal("signer must be nil without a key")
	}
}

func TestNewKeepsTriggersWithBadKey(t *testing.T) {
	cfg := testConfig(t)
	cfg.CDN.KeyID = "K2JCJMDEHXQW5F"
	cfg.CDN.PrivateKey = "garbage"

	a, err := app.NewWithAWS(context.Background(), cfg, aws.Config{Region: "us-east-1"}, nil, app.Options{})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })

	out, err := a.Router.Handle(context.Background(), json.RawMessage(`{"httpMethod":"GET","resource":"/signed-cookies"}`))
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	resp := out.(events.APIGatewayProxyResponse)
	if resp.StatusCode != 500 {
		t.Fatalf("expected 500, got %d %s", resp.StatusCode, resp.Body)
	}
	if !strings.Contains(resp.Body, `"errorCode":"SigningError"`) {
		t.Fatalf("expected SigningError body, got %s", resp.Body)
	}

	out, err = a.Router.Handle(context.Background(), json.RawMessage(`{"httpMethod":"GET","resource":"/jobs"}`))
	if err != nil {
		t.Fatalf("handle jobs: %v", err)
	}
	if resp := out.(events.APIGatewayProxyResponse); resp.StatusCode != 200 {
		t.Fatalf("jobs endpoint must stay available, got %d %s", resp.StatusCode, resp.Body)
	}

	// A state change for an unknown job is handled and answered with {}.
	state := `{"source":"aws.mediaconvert","detail-type":"MediaConvert Job State Change","detail":{"jobId":"missing","status":"PROGRESSING"}}`
	if _, err := a.Router.Handle(context.Background(), json.RawMessage(state)); err != nil {
		t.Fatalf("state change: %v", err)
	}
}

func TestNewSignerRejectsBadKey(t *testing.T) {
	cfg := testConfig(t)
	cfg.CDN.KeyID = "K2JCJMDEHXQW5F"
	cfg.CDN.PrivateKey = "not a key"
	if _, err := app.NewSigner(context.Background(), cfg, aws.Config{Region: "us-east-1"}); err == nil {
		t.Fatal("expected an error for an invalid key")
	}
}
