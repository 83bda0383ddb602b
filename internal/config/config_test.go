package config

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestLoadAppliesDefaults(testContext *testing.T) {
	configViper := NewViper()
	configViper.Set("sync.groups", "group-a, group-b,group-a")

	cfg, err := Load(configViper)
	if err != nil {
		testContext.Fatalf("load failed: %v", err)
	}
	if cfg.HTTPAddress != defaultHTTPAddress {
		testContext.Fatalf("expected default address, got %q", cfg.HTTPAddress)
	}
	if cfg.PageSize != defaultPageSize || cfg.SyncInterval != 5*time.Second {
		testContext.Fatalf("unexpected sync defaults: %d %s", cfg.PageSize, cfg.SyncInterval)
	}
	if cfg.PendingMaxAttempts != 0 {
		testContext.Fatalf("expected pending rows to be kept by default")
	}
	if diff := cmp.Diff([]string{"group-a", "group-b"}, cfg.Groups); diff != "" {
		testContext.Fatalf("groups mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadRejectsInvalidValues(testContext *testing.T) {
	testCases := []struct {
		name  string
		key   string
		value interface{}
	}{
		{name: "page size", key: "sync.page_size", value: 0},
		{name: "interval", key: "sync.interval_seconds", value: -1},
		{name: "pending attempts", key: "pending.max_attempts", value: -2},
		{name: "database path", key: "database.path", value: " "},
	}
	for _, testCase := range testCases {
		testContext.Run(testCase.name, func(t *testing.T) {
			configViper := NewViper()
			configViper.Set(testCase.key, testCase.value)
			if _, err := Load(configViper); err == nil {
				t.Fatalf("expected validation error for %s", testCase.key)
			}
		})
	}
}

func TestRequireServe(testContext *testing.T) {
	configViper := NewViper()
	cfg, err := Load(configViper)
	if err != nil {
		testContext.Fatalf("load failed: %v", err)
	}
	if err := cfg.RequireServe(); err == nil {
		testContext.Fatalf("expected missing signing secret to fail")
	}
	cfg.SigningSecret = "secret"
	if err := cfg.RequireServe(); err == nil {
		testContext.Fatalf("expected missing node url to fail")
	}
	cfg.NodeBaseURL = "http://node"
	cfg.Groups = []string{"g"}
	if err := cfg.RequireServe(); err != nil {
		testContext.Fatalf("expected complete config to pass: %v", err)
	}
}
