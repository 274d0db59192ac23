package types

type Config struct {
	Environment     string `envconfig:"ENVIRONMENT" default:"development"`
	ServerPort      uint   `envconfig:"SERVER_PORT" default:"8080"`
	ReadTimeoutSec  uint   `envconfig:"READ_TIMEOUT_SEC" default:"10"`
	WriteTimeoutSec uint   `envconfig:"WRITE_TIMEOUT_SEC" default:"15"`
	LogLevel        string `envconfig:"LOG_LEVEL" default:"info"`

	// Registrar REST API
	APIBaseURL    string `envconfig:"API_BASE_URL"`
	APITimeoutSec uint   `envconfig:"API_TIMEOUT_SEC" default:"15"`

	// Kiosk
	ScannerGapMS      int     `envconfig:"SCANNER_GAP_MS" default:"50"`
	DraftTTLMin       int     `envconfig:"DRAFT_TTL_MIN" default:"15"`
	ScanLookupsPerSec float64 `envconfig:"SCAN_LOOKUPS_PER_SEC" default:"2"`
	KioskDevice       string  `envconfig:"KIOSK_DEVICE"`

	// Cookie encryption keys (base64 encoded)
	// go run ./cmd/fasttrack nanoid --keys
	// to generate values
	CookieHashKey  string `envconfig:"COOKIE_HASH_KEY"`  // 32 or 64 bytes
	CookieBlockKey string `envconfig:"COOKIE_BLOCK_KEY"` // 16, 24, or 32 bytes
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}
