package gcs

import (
	"testing"

	"github.com/angelmondragon/fueltax-backend/pkg/config"
)

func TestParseReference(t *testing.T) {
	bucket, key, err := parseReference("gs://receipts-prod/receipts/a/b/c.jpg")
	if err != nil {
		t.Fatalf("parseReference: %v", err)
	}
	if bucket != "receipts-prod" || key != "receipts/a/b/c.jpg" {
		t.Fatalf("unexpected split %q %q", bucket, key)
	}

	for _, bad := range []string{"", "receipts/a.jpg", "gs://bucket", "gs:///key", "s3://bucket/key"} {
		if _, _, err := parseReference(bad); err == nil {
			t.Fatalf("expected %q to be rejected", bad)
		}
	}
}

func TestReferenceRoundTrip(t *testing.T) {
	c := &Client{bucket: "b"}
	bucket, key, err := parseReference(c.reference("receipts/x/y.png"))
	if err != nil || bucket != "b" || key != "receipts/x/y.png" {
		t.Fatalf("round trip failed: %q %q %v", bucket, key, err)
	}
}

func TestClientOptions(t *testing.T) {
	if got := clientOptions(config.GCPConfig{CredentialsJSON: `{}`, ApplicationCredentials: "/tmp/x"}); len(got) != 1 {
		t.Fatalf("expected a single credentials option, got %d", len(got))
	}
	if got := clientOptions(config.GCPConfig{}); len(got) != 0 {
		t.Fatalf("expected default credentials, got %d options", len(got))
	}
}

func TestUninitializedClient(t *testing.T) {
	var c *Client
	if _, err := c.Put(nil, nil, "image/png", "x"); err == nil {
		t.Fatal("expected error from nil client")
	}
	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}
