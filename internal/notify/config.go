package notify

// Config holds ntfy notification configuration.
type Config struct {
	Enabled bool `mapstructure:"enabled"`
	// ntfy server URL (default: https://ntfy.sh)
	Server string `mapstructure:"server" validate:"omitempty,url"`
	// Topic name (required if enabled)
	Topic string `mapstructure:"topic" validate:"required_if=Enabled true"`
	// Message priority: min, low, default, high, urgent
	Priority string `mapstructure:"priority" validate:"oneof=min low default high urgent"`
	// Comma-separated emoji tags (e.g., "ballot_box")
	Tags string `mapstructure:"tags"`
	// Optional access token for private topics
	Token string `mapstructure:"token"`
}

// DefaultConfig returns a disabled config with ntfy.sh defaults.
func DefaultConfig() Config {
	return Config{
		Server:   "https://ntfy.sh",
		Priority: "default",
		Tags:     "ballot_box",
	}
}
