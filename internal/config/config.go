// Package config holds the gateway's startup configuration: the small set
// of settings needed before any container or file watching can begin
// (network/label scoping, listener ports, TLS material, JSON config
// location, watch/retry tuning, logging). It is layered YAML defaults +
// environment overrides, grounded on the teacher's internal/config package.
//
// This is deliberately not the routing configuration itself - Routers,
// Services, and Middleware Definitions are discovered at runtime from
// Docker labels and JSON config files (internal/labels, internal/jsonconfig,
// internal/aggregator), never from this struct.
package config

// Config holds the gateway's startup configuration.
type Config struct {
	Docker     Docker     `yaml:"docker"`
	Labels     Labels     `yaml:"labels"`
	HTTP       HTTP       `yaml:"http"`
	HTTPS      HTTPS      `yaml:"https"`
	TLS        TLS        `yaml:"tls"`
	JSONConfig JSONConfig `yaml:"jsonConfig"`
	Watch      Watch      `yaml:"watch"`
	Retry      Retry      `yaml:"retry"`
	Log        Log        `yaml:"log"`
	Telemetry  Telemetry  `yaml:"telemetry"`
	RateLimit  RateLimit  `yaml:"rateLimit"`
}

// Docker configures the Container Event Listener's scope.
type Docker struct {
	// Network restricts discovery to containers attached to this Docker
	// network; containers on other networks are ignored.
	Network string `yaml:"network"`
	// Host is the Docker daemon endpoint (unix socket path or tcp:// address).
	// Empty uses the daemon client's default (DOCKER_HOST or the local socket).
	Host string `yaml:"host"`
}

// Labels configures container-label-based routing discovery.
type Labels struct {
	// Prefix is the label namespace the Config Aggregator parses, e.g.
	// "reverse-proxy." or "rproxy.".
	Prefix string `yaml:"prefix"`
}

// HTTP configures the plaintext listener.
type HTTP struct {
	Port int `yaml:"port"`
}

// HTTPS configures the TLS listener.
type HTTPS struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// TLS names the certificate material used when HTTPS is enabled.
type TLS struct {
	CertPath string `yaml:"certPath"`
	KeyPath  string `yaml:"keyPath"`
}

// JSONConfig configures the static JSON routing-configuration source.
type JSONConfig struct {
	// Path is a single JSON config file; Dir is a directory of them merged
	// together. Either or both may be set.
	Path string `yaml:"path"`
	Dir  string `yaml:"dir"`
	// Priority breaks ties between the JSON source and container labels for
	// the same entity name: "json" or "label".
	Priority string `yaml:"priority"`
}

// Watch configures the File Watcher & Debouncer.
type Watch struct {
	Enabled bool `yaml:"enabled"`
	// TimeoutMS is the debounce window: a burst of fs events within this
	// window collapses into one reload.
	TimeoutMS int `yaml:"timeoutMs"`
	// IntervalMS is the poll-fallback tick when PollFallback is set.
	IntervalMS int `yaml:"intervalMs"`
	// PollFallback adds a stat-and-compare ticker loop alongside fsnotify,
	// for filesystems where native notifications are unreliable.
	PollFallback bool `yaml:"pollFallback"`
}

// Retry configures the Proxy Engine's transient-failure retry loop.
type Retry struct {
	MaxAttempts     int `yaml:"maxAttempts"`
	IntervalSeconds int `yaml:"intervalSeconds"`
}

// Log configures the gateway's structured logger.
type Log struct {
	Format string `yaml:"format"` // text | json
	Level  string `yaml:"level"`  // debug | info | warn | error
	Output string `yaml:"output"` // stdout | stderr | a file path
}

// Telemetry configures OpenTelemetry tracing around the middleware pipeline
// and backend dispatch. Disabled by default; enabling it without an
// endpoint uses the OTLP exporter's default (localhost:4318).
type Telemetry struct {
	Enabled    bool    `yaml:"enabled"`
	Endpoint   string  `yaml:"endpoint"`
	SampleRate float64 `yaml:"sampleRate"`
}

// RateLimit selects the backing store for the Rate-Limit middleware's token
// buckets. Store "memory" keeps buckets local to one gateway instance;
// "redis" shares them across a fleet, at the cost of a round trip per
// request.
type RateLimit struct {
	Store     string `yaml:"store"` // memory | redis
	RedisAddr string `yaml:"redisAddr"`
}
