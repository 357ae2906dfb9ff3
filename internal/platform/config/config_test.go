package config

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func baseEnv() map[string]string {
	return map[string]string{
		"API_FIREBASE_PROJECT_ID": "jam3a-dev",
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(context.Background(), WithEnvFile(""), WithoutSystemEnv(), WithEnvMap(baseEnv()))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Fatalf("expected default port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Firestore.ProjectID != "jam3a-dev" {
		t.Fatalf("expected firestore project to inherit firebase project, got %s", cfg.Firestore.ProjectID)
	}
	if cfg.PubSub.ProjectID != "jam3a-dev" {
		t.Fatalf("expected pubsub project to inherit firebase project, got %s", cfg.PubSub.ProjectID)
	}
	if cfg.PubSub.SessionEventsTopic != "groupbuy-session-events" {
		t.Fatalf("unexpected session events topic: %s", cfg.PubSub.SessionEventsTopic)
	}
	if !cfg.GroupBuy.CreatorJoins {
		t.Fatalf("expected creator-joins policy to default on")
	}
	if cfg.GroupBuy.DefaultDuration != 24*time.Hour {
		t.Fatalf("unexpected default session duration: %s", cfg.GroupBuy.DefaultDuration)
	}
	if cfg.GroupBuy.Currency != "SAR" {
		t.Fatalf("expected SAR currency, got %s", cfg.GroupBuy.Currency)
	}
	if cfg.Idempotency.Header != "Idempotency-Key" {
		t.Fatalf("unexpected idempotency header: %s", cfg.Idempotency.Header)
	}
}

func TestLoadOverrides(t *testing.T) {
	env := baseEnv()
	env["API_SERVER_PORT"] = "9090"
	env["API_GROUPBUY_CREATOR_JOINS"] = "false"
	env["API_GROUPBUY_DEFAULT_DURATION"] = "48h"
	env["API_GROUPBUY_MAX_TARGET_SIZE"] = "20"
	env["API_PUBSUB_PROJECT_ID"] = "jam3a-events"

	cfg, err := Load(context.Background(), WithEnvFile(""), WithoutSystemEnv(), WithEnvMap(env))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Fatalf("expected port override, got %s", cfg.Server.Port)
	}
	if cfg.GroupBuy.CreatorJoins {
		t.Fatalf("expected creator-joins policy to be disabled")
	}
	if cfg.GroupBuy.DefaultDuration != 48*time.Hour {
		t.Fatalf("unexpected duration: %s", cfg.GroupBuy.DefaultDuration)
	}
	if cfg.GroupBuy.MaxTargetSize != 20 {
		t.Fatalf("unexpected max target size: %d", cfg.GroupBuy.MaxTargetSize)
	}
	if cfg.PubSub.ProjectID != "jam3a-events" {
		t.Fatalf("unexpected pubsub project: %s", cfg.PubSub.ProjectID)
	}
}

func TestLoadRequiresFirebaseProject(t *testing.T) {
	_, err := Load(context.Background(), WithEnvFile(""), WithoutSystemEnv(), WithEnvMap(map[string]string{}))
	if err == nil {
		t.Fatalf("expected validation error")
	}

	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	if !containsField(validation.Fields(), "Firebase.ProjectID") {
		t.Fatalf("expected Firebase.ProjectID to be reported, got %v", validation.Fields())
	}
}

func TestLoadRejectsInvalidGroupBuyBounds(t *testing.T) {
	env := baseEnv()
	env["API_GROUPBUY_MIN_TARGET_SIZE"] = "1"

	_, err := Load(context.Background(), WithEnvFile(""), WithoutSystemEnv(), WithEnvMap(env))
	if err == nil {
		t.Fatalf("expected validation error for min target size below 2")
	}
	if !strings.Contains(err.Error(), "GroupBuy.MinTargetSize") {
		t.Fatalf("expected GroupBuy.MinTargetSize in error, got %v", err)
	}
}

func TestLoadResolvesSecretReferences(t *testing.T) {
	env := baseEnv()
	env["API_PSP_MOYASAR_API_KEY"] = "sm://projects/jam3a/secrets/moyasar-key"

	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		if ref != "secret://projects/jam3a/secrets/moyasar-key" {
			return "", errors.New("unexpected ref: " + ref)
		}
		return "sk_live_resolved", nil
	})

	cfg, err := Load(context.Background(), WithEnvFile(""), WithoutSystemEnv(), WithEnvMap(env), WithSecretResolver(resolver))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.PSP.MoyasarAPIKey != "sk_live_resolved" {
		t.Fatalf("expected resolved secret, got %q", cfg.PSP.MoyasarAPIKey)
	}
}

func TestLoadFailsWithoutSecretResolver(t *testing.T) {
	env := baseEnv()
	env["API_PSP_STRIPE_API_KEY"] = "secret://projects/jam3a/secrets/stripe-key"

	_, err := Load(context.Background(), WithEnvFile(""), WithoutSystemEnv(), WithEnvMap(env))
	if err == nil {
		t.Fatalf("expected secret resolution error")
	}

	var secretErr *SecretError
	if !errors.As(err, &secretErr) {
		t.Fatalf("expected SecretError, got %T", err)
	}
	if secretErr.Ref != "secret://projects/jam3a/secrets/stripe-key" {
		t.Fatalf("unexpected ref: %s", secretErr.Ref)
	}
}

func containsField(fields []string, name string) bool {
	for _, field := range fields {
		if field == name {
			return true
		}
	}
	return false
}
