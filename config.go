package mesh

import "time"

// Config is the full set of configuration options enumerated in §6. It is
// a plain struct constructed directly by the embedder — there is no
// config-file I/O in the core (persistent configuration is explicitly out
// of scope; that is the host's job).
type Config struct {
	// Identity.
	MUDName    string // required, unique on the network
	AdminEmail string

	// Gateway endpoint.
	GatewayHost string
	GatewayPort int    // default 8081
	AuthToken   string
	UserAgent   string // Sec-WebSocket "User-Agent"; default "mudvaultmesh/1.0"

	// Timing.
	ReconnectDelay  time.Duration // default 30s
	MaxReconnects   int           // default 10
	PingInterval    time.Duration // default 60s, must be >= 30s
	ConnectTimeout  time.Duration // default 30s
	RetryBackoff    float64       // default 2
	MaxRetryDelay   time.Duration // default 300s

	// Limits.
	MaxMessageLen int // default 4096, hard cap 4096
	BufferSize    int // default 8192, also the frame payload cap

	// History.
	HistorySize    int // default 100 (tells/emotes)
	ChannelHistory int // default 50

	// Rate caps, per 60s window.
	RateLimitTell    int // default 20
	RateLimitChannel int // default 30
	RateLimitWho     int // default 5

	// Minimum local level required per command.
	MinLevelTell    int
	MinLevelChannel int
	MinLevelWho     int
	MinLevelFinger  int
	MinLevelLocate  int

	// Toggles.
	FilterProfanity bool
	LogAllMessages  bool
	EnableColor     bool

	// Feature toggles per kind; mail/file are named by spec §6 but have no
	// corresponding message kind or handler — they are accepted here only
	// so an embedder's existing config file deserializes without error,
	// and are otherwise inert.
	FeatureTell     bool
	FeatureChannel  bool
	FeatureWho      bool
	FeatureFinger   bool
	FeatureLocate   bool
	FeatureEmote    bool
	FeatureMail     bool
	FeatureFile     bool

	// AuditLogPath, when LogAllMessages is set, selects the SQLite database
	// file for internal/auditlog. Empty means in-memory (tests only).
	AuditLogPath string
}

// DefaultConfig returns a Config with every default named in §6 applied,
// leaving identity/endpoint/token fields zero for the caller to fill in.
func DefaultConfig() Config {
	return Config{
		GatewayPort:      8081,
		UserAgent:        "mudvaultmesh/1.0",
		ReconnectDelay:   30 * time.Second,
		MaxReconnects:    10,
		PingInterval:     60 * time.Second,
		ConnectTimeout:   30 * time.Second,
		RetryBackoff:     2,
		MaxRetryDelay:    300 * time.Second,
		MaxMessageLen:    4096,
		BufferSize:       8192,
		HistorySize:      100,
		ChannelHistory:   50,
		RateLimitTell:    20,
		RateLimitChannel: 30,
		RateLimitWho:     5,
		FeatureTell:      true,
		FeatureChannel:   true,
		FeatureWho:       true,
		FeatureFinger:    true,
		FeatureLocate:    true,
		FeatureEmote:     true,
	}
}

// Validate rejects configurations the core cannot safely operate under.
func (c Config) Validate() *Error {
	if c.MUDName == "" {
		return newError(KindInternal, "mud_name is required")
	}
	if c.GatewayHost == "" {
		return newError(KindInternal, "gateway_host is required")
	}
	if c.PingInterval < 30*time.Second {
		return newError(KindInternal, "ping_interval must be >= 30s, got %s", c.PingInterval)
	}
	if c.MaxMessageLen <= 0 || c.MaxMessageLen > 4096 {
		return newError(KindInternal, "max_message_len must be in (0, 4096], got %d", c.MaxMessageLen)
	}
	return nil
}
