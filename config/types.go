package config

// RPC configures the JSON-RPC listener.
type RPC struct {
	// AuthToken is a static bearer token accepted for state-changing calls.
	AuthToken string `toml:"AuthToken"`
	// JWTSecret enables HS256 bearer tokens when set.
	JWTSecret         string  `toml:"JWTSecret"`
	JWTIssuer         string  `toml:"JWTIssuer"`
	RequestsPerMinute float64 `toml:"RequestsPerMinute"`
	Burst             int     `toml:"Burst"`
	ReadTimeout       int     `toml:"ReadTimeout"`  // seconds
	WriteTimeout      int     `toml:"WriteTimeout"` // seconds
	// AllowedOrigins lists browser origins permitted to call the RPC; "*" allows any.
	AllowedOrigins []string `toml:"AllowedOrigins"`
}

// Log configures structured log output.
type Log struct {
	Level      string `toml:"Level"`
	File       string `toml:"File"`
	MaxSizeMB  int    `toml:"MaxSizeMB"`
	MaxBackups int    `toml:"MaxBackups"`
}

// Telemetry configures the OTLP exporters.
type Telemetry struct {
	Endpoint string `toml:"Endpoint"`
	Insecure bool   `toml:"Insecure"`
	Headers  string `toml:"Headers"`
	Metrics  bool   `toml:"Metrics"`
	Traces   bool   `toml:"Traces"`
}

// Indexer configures the AMQP publisher of committed events. An empty
// AMQPURL disables it.
type Indexer struct {
	AMQPURL       string `toml:"AMQPURL"`
	Exchange      string `toml:"Exchange"`
	RoutingPrefix string `toml:"RoutingPrefix"`
}

// Webhook configures signed HTTP delivery of committed events. An empty URL
// disables it.
type Webhook struct {
	URL         string `toml:"URL"`
	Secret      string `toml:"Secret"`
	MaxAttempts int    `toml:"MaxAttempts"`
}

// Archive configures the SQL event archive. DSN is a postgres:// URL or a
// SQLite DSN; empty disables it.
type Archive struct {
	DSN string `toml:"DSN"`
}

// Quota limits proposals per sender.
type Quota struct {
	MaxRequestsPerEpoch uint32 `toml:"MaxRequestsPerEpoch"`
	EpochSeconds        uint32 `toml:"EpochSeconds"` // e.g., 3600
}
