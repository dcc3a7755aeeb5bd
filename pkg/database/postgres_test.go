package database

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/wonny/marketlens/backend/pkg/config"
)

func integrationConfig(t *testing.T) *config.Config {
	t.Helper()
	if os.Getenv("DATABASE_URL") == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func TestNew(t *testing.T) {
	cfg := integrationConfig(t)

	db, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	status, err := db.HealthCheck(ctx)
	if err != nil {
		t.Fatalf("HealthCheck failed: %v", err)
	}
	if !status.Healthy {
		t.Error("Expected database to be healthy")
	}
	if status.Stats.MaxConns == 0 {
		t.Error("Expected MaxConns to be greater than 0")
	}
}

func TestNewDisabled(t *testing.T) {
	cfg := &config.Config{}

	db, err := New(context.Background(), cfg)
	if !errors.Is(err, ErrDisabled) {
		t.Fatalf("New() error = %v, want ErrDisabled", err)
	}
	if db != nil {
		t.Error("Expected nil DB when disabled")
	}
}

func TestNewWithInvalidURL(t *testing.T) {
	cfg := &config.Config{
		Database: config.DatabaseConfig{
			URL:             "invalid://url",
			MaxConns:        10,
			MinConns:        1,
			MaxConnLifetime: time.Hour,
			MaxConnIdleTime: 30 * time.Minute,
		},
	}

	_, err := New(context.Background(), cfg)
	if err == nil {
		t.Error("Expected error with invalid database URL, got nil")
	}
}

func TestCloseNil(t *testing.T) {
	var db *DB
	db.Close()
	(&DB{}).Close()
}
