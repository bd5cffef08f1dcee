package awsconfig

import (
	"context"
	"testing"
)

func TestLoad_RequiresRegion(t *testing.T) {
	if _, err := Load(context.Background(), Options{}); err == nil {
		t.Error("expected Load() to reject an empty region")
	}
}

func TestLoad_StaticCredentials(t *testing.T) {
	cfg, err := Load(context.Background(), Options{
		Region:                "us-west-2",
		StaticAccessKeyID:     "AKIAEXAMPLE",
		StaticSecretAccessKey: "secret",
	})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Region != "us-west-2" {
		t.Errorf("Region = %q, want %q", cfg.Region, "us-west-2")
	}
	creds, err := cfg.Credentials.Retrieve(context.Background())
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if creds.AccessKeyID != "AKIAEXAMPLE" {
		t.Errorf("AccessKeyID = %q, want %q", creds.AccessKeyID, "AKIAEXAMPLE")
	}
}
