package config

import "time"

const (
	// Read reconciliation
	ReadRetryAttempts  = 5
	ReadRetryBaseDelay = 500 * time.Millisecond
	ReadRetryMaxDelay  = 8 * time.Second

	// Sync
	ResyncInterval     = 30 * time.Second
	GatewayHTTPTimeout = 10 * time.Second

	// Messages
	MaxMessageLength = 4000

	// Auth
	TokenTTL    = 72 * time.Hour
	TokenIssuer = "garagechat-service"

	// Server
	ShutdownTimeout = 10 * time.Second
)
