package api

import (
	"time"

	"github.com/ssargent/dsusage/pkg/codec"
	"github.com/ssargent/dsusage/pkg/transport"
)

// APIResponse represents a standard API response
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// UsageResponse is a rendered usage report
type UsageResponse struct {
	ID               string          `json:"id,omitempty"`
	CollectedAt      *time.Time      `json:"collected_at,omitempty"`
	TransportVersion string          `json:"transport_version"`
	Hash             string          `json:"hash"`
	Usage            *codec.Document `json:"usage"`
}

// ServerConfig holds configuration for the API server
type ServerConfig struct {
	Port   int
	Bind   string
	APIKey string
	// Version is the transport version this node speaks; nil means transport.Current
	Version *transport.Version
	// MaxBodyBytes caps request bodies; 0 uses the default
	MaxBodyBytes int64
}
