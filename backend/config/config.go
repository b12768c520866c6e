// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env          string
	Port         string
	DatabaseURL  string
	RedisURL     string
	JWT          JWTConfig
	Store        StoreConfig
	SendLimit    RateConfig
	Origins      []string
	DefaultGroup string
}

type JWTConfig struct {
	Secret string
	Issuer string
}

type StoreConfig struct {
	// Timeout bounds every store call; expiry surfaces as a transient error.
	Timeout   time.Duration
	PageLimit int
}

// DefaultReconcileInterval matches client.DefaultReconcileInterval.
const DefaultReconcileInterval = 12 * time.Second

type ReconcileConfig struct {
	Interval time.Duration
}

type RateConfig struct {
	PerSecond float64
	Burst     int
}

// Load reads configuration from the environment. In development a .env file
// is loaded first when present.
func Load() (Config, error) {
	if getEnv("COMUNIDADE_ENV", "development") == "development" {
		_ = godotenv.Load(".env")
	}

	cfg := Config{
		Env:         getEnv("COMUNIDADE_ENV", "development"),
		Port:        getEnv("PORT", "8081"),
		DatabaseURL: getEnv("DATABASE_URL", ""),
		RedisURL:    getEnv("REDIS_URL", ""),
		JWT: JWTConfig{
			Secret: getEnv("JWT_SECRET", ""),
			Issuer: getEnv("JWT_ISSUER", "comunidade"),
		},
		Store: StoreConfig{
			Timeout:   getEnvDuration("STORE_TIMEOUT", 5*time.Second),
			PageLimit: getEnvInt("MESSAGE_PAGE_LIMIT", 100),
		},
		SendLimit: RateConfig{
			PerSecond: getEnvFloat("SEND_RATE_PER_SEC", 2),
			Burst:     getEnvInt("SEND_BURST", 5),
		},
		Origins:      splitList(getEnv("ALLOWED_ORIGINS", "http://localhost:3000")),
		DefaultGroup: getEnv("DEFAULT_GROUP_NAME", "Sala Geral Juventude"),
	}

	if cfg.JWT.Secret == "" {
		return Config{}, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.Store.Timeout <= 0 {
		return Config{}, fmt.Errorf("STORE_TIMEOUT must be positive")
	}

	return cfg, nil
}

// ClientConfig is what member-side tools read from the environment. It needs
// no server secrets.
type ClientConfig struct {
	Server    string
	Token     string
	Reconcile ReconcileConfig
}

// LoadClient reads COMUNIDADE_SERVER, COMUNIDADE_TOKEN and RECONCILE_INTERVAL.
// A non-positive interval falls back to the default.
func LoadClient() ClientConfig {
	if getEnv("COMUNIDADE_ENV", "development") == "development" {
		_ = godotenv.Load(".env")
	}

	cfg := ClientConfig{
		Server: getEnv("COMUNIDADE_SERVER", "http://localhost:8081"),
		Token:  getEnv("COMUNIDADE_TOKEN", ""),
		Reconcile: ReconcileConfig{
			Interval: getEnvDuration("RECONCILE_INTERVAL", DefaultReconcileInterval),
		},
	}
	if cfg.Reconcile.Interval <= 0 {
		cfg.Reconcile.Interval = DefaultReconcileInterval
	}
	return cfg
}

func (c Config) IsProduction() bool {
	return c.Env == "production"
}

func (c Config) IsDevelopment() bool {
	return c.Env == "development"
}

// UsesPostgres reports whether a relational store is configured; otherwise the
// in-memory store is used.
func (c Config) UsesPostgres() bool {
	return c.DatabaseURL != ""
}

// UsesRedis reports whether push events go through Redis instead of the
// in-process hub.
func (c Config) UsesRedis() bool {
	return c.RedisURL != ""
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
