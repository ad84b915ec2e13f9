// Package config provides configuration types and loading for novaclaw.
package config

import "time"

// Config is the root configuration struct.
// Top-level groups: Agent, WhatsApp, Gateway, Store, Stream, Policy.
type Config struct {
	Agent    AgentConfig    `json:"agent"`
	WhatsApp WhatsAppConfig `json:"whatsapp"`
	Gateway  GatewayConfig  `json:"gateway"`
	Store    StoreConfig    `json:"store"`
	Stream   StreamConfig   `json:"stream"`
	Policy   PolicyConfig   `json:"policy"`
}

// AgentConfig names the persona. The name doubles as the default sender
// on outbound messages.
type AgentConfig struct {
	Name string `json:"name" envconfig:"NAME"`
}

// WhatsAppConfig configures the Graph API client and webhook handshake.
type WhatsAppConfig struct {
	APIBase       string        `json:"apiBase" envconfig:"API_BASE"`
	AccessToken   string        `json:"accessToken" envconfig:"ACCESS_TOKEN"`
	PhoneNumberID string        `json:"phoneNumberId" envconfig:"PHONE_NUMBER_ID"`
	VerifyToken   string        `json:"verifyToken" envconfig:"VERIFY_TOKEN"`
	Timeout       time.Duration `json:"timeout" envconfig:"TIMEOUT"`
}

// GatewayConfig contains HTTP server settings.
type GatewayConfig struct {
	Host      string `json:"host" envconfig:"HOST"`
	Port      int    `json:"port" envconfig:"PORT"`
	AuthToken string `json:"authToken" envconfig:"AUTH_TOKEN"`
}

// StoreConfig selects the conversation store backend.
type StoreConfig struct {
	Backend string `json:"backend" envconfig:"BACKEND"` // "memory" or "sqlite"
	Path    string `json:"path" envconfig:"PATH"`
}

// StreamConfig configures the optional Kafka event mirror. Empty
// brokers disable the stream.
type StreamConfig struct {
	Brokers string `json:"brokers" envconfig:"BROKERS"`
	Topic   string `json:"topic" envconfig:"TOPIC"`
}

// PolicyConfig toggles the bundled auto-reply engine.
type PolicyConfig struct {
	AutoReply bool `json:"autoReply" envconfig:"AUTO_REPLY"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Agent: AgentConfig{
			Name: "Nova",
		},
		WhatsApp: WhatsAppConfig{
			APIBase: "https://graph.facebook.com/v19.0",
			Timeout: 30 * time.Second,
		},
		Gateway: GatewayConfig{
			Host: "127.0.0.1", // Secure default
			Port: 18890,
		},
		Store: StoreConfig{
			Backend: "memory",
			Path:    "~/.novaclaw/state.db",
		},
		Stream: StreamConfig{
			Topic: "novaclaw.messages",
		},
		Policy: PolicyConfig{
			AutoReply: true,
		},
	}
}
