package config

import (
	"flag"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/securesend/coord/internal/offer"
	"github.com/securesend/coord/internal/origin"
)

const (
	envVarListenAddr      = "COORD_LISTEN_ADDR"
	envVarPublicBaseURL   = "COORD_PUBLIC_BASE_URL"
	envVarAllowedOrigins  = "ALLOWED_ORIGINS"
	envVarLogFormat       = "COORD_LOG_FORMAT"
	envVarLogLevel        = "COORD_LOG_LEVEL"
	envVarShutdownTimeout = "COORD_SHUTDOWN_TIMEOUT"
	envVarMode            = "COORD_MODE"

	// Offer directory.
	envVarOfferTTL            = "OFFER_TTL"
	envVarOfferStore          = "OFFER_STORE"
	envVarOfferStoreMaxOffers = "OFFER_STORE_MAX_OFFERS"
	envVarOffersTable         = "OFFERS_TABLE"
	envVarAWSRegion           = "AWS_REGION"
	envVarDynamoDBEndpoint    = "DYNAMODB_ENDPOINT"
	envVarEtcdEndpoints       = "ETCD_ENDPOINTS"
	envVarEtcdKeyPrefix       = "ETCD_KEY_PREFIX"
	envVarSQLitePath          = "SQLITE_PATH"
	envVarSQLitePurgeInterval = "SQLITE_PURGE_INTERVAL"

	// API Gateway Management API endpoint. Only the Lambda entrypoint delivers
	// through API Gateway; when unset it derives the endpoint per request.
	envVarAPIGatewayEndpoint = "APIGATEWAY_ENDPOINT"

	// TURN REST credentials minted per /webrtc/ice request.
	envVarTURNRESTSharedSecret   = "COORD_TURN_REST_SHARED_SECRET"
	envVarTURNRESTTTL            = "COORD_TURN_REST_TTL"
	envVarTURNRESTUsernamePrefix = "COORD_TURN_REST_USERNAME_PREFIX"

	// Self-hosted WebSocket gateway hardening.
	envVarSignalingWSIdleTimeout        = "SIGNALING_WS_IDLE_TIMEOUT"
	envVarSignalingWSPingInterval       = "SIGNALING_WS_PING_INTERVAL"
	envVarMaxSignalingMessageBytes      = "MAX_SIGNALING_MESSAGE_BYTES"
	envVarMaxSignalingMessagesPerSecond = "MAX_SIGNALING_MESSAGES_PER_SECOND"
)

const (
	DefaultListenAddr = "127.0.0.1:8080"
	DefaultShutdown   = 15 * time.Second
	DefaultMode       = ModeDev

	DefaultOfferTTL            = 15 * time.Minute
	MinOfferTTL                = time.Minute
	MaxOfferTTL                = 24 * time.Hour
	DefaultOfferStore          = OfferStoreMemory
	DefaultOfferStoreMaxOffers = 100_000
	DefaultOffersTable         = "Offers"
	DefaultAWSRegion           = "us-west-2"
	DefaultEtcdKeyPrefix       = offer.DefaultEtcdKeyPrefix
	DefaultSQLitePath          = "offers.sqlite3"
	DefaultSQLitePurgeInterval = time.Minute

	DefaultTURNRESTTTL            = time.Hour
	DefaultTURNRESTUsernamePrefix = "securesend"

	DefaultSignalingWSIdleTimeout        = 60 * time.Second
	DefaultSignalingWSPingInterval       = 20 * time.Second
	DefaultMaxSignalingMessageBytes      = 64 * 1024
	DefaultMaxSignalingMessagesPerSecond = 50
)

type Mode string

const (
	ModeDev  Mode = "dev"
	ModeProd Mode = "prod"
)

type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

// OfferStore selects the offer directory backend.
type OfferStore string

const (
	OfferStoreMemory   OfferStore = "memory"
	OfferStoreDynamoDB OfferStore = "dynamodb"
	OfferStoreEtcd     OfferStore = "etcd"
	OfferStoreSQLite   OfferStore = "sqlite"
)

type Config struct {
	ListenAddr      string
	// PublicBaseURL is where browsers reach the coordinator. Its origin is
	// accepted alongside same-host requests when AllowedOrigins is empty.
	PublicBaseURL   string
	AllowedOrigins  []string
	LogFormat       LogFormat
	LogLevel        slog.Level
	ShutdownTimeout time.Duration
	Mode            Mode

	OfferTTL            time.Duration
	OfferStore          OfferStore
	OfferStoreMaxOffers int
	OffersTable         string
	AWSRegion           string
	// DynamoDBEndpoint overrides the regional endpoint (DynamoDB Local).
	DynamoDBEndpoint    string
	EtcdEndpoints       []string
	EtcdKeyPrefix       string
	SQLitePath          string
	SQLitePurgeInterval time.Duration

	APIGatewayEndpoint string

	// TURNRESTSharedSecret enables per-request TURN credentials for the
	// TURN servers in ICEServers.
	TURNRESTSharedSecret   string
	TURNRESTTTL            time.Duration
	TURNRESTUsernamePrefix string

	SignalingWSIdleTimeout        time.Duration
	SignalingWSPingInterval       time.Duration
	MaxSignalingMessageBytes      int64
	MaxSignalingMessagesPerSecond int

	// ICEServers is handed to browser peers via /webrtc/ice and used by the Go
	// signaling peer.
	ICEServers []webrtc.ICEServer

	iceConfigErr error
}

// ICEConfigError reports an invalid ICE server configuration. It is kept
// separate from Load's error so that the signaling path can run without ICE.
func (c Config) ICEConfigError() error {
	return c.iceConfigErr
}

func Load(args []string) (Config, error) {
	return load(os.LookupEnv, args)
}

func load(lookup func(string) (string, bool), args []string) (Config, error) {
	envMode, _ := lookup(envVarMode)
	modeDefault := string(DefaultMode)
	if envMode != "" {
		modeDefault = envMode
	}

	envLogFormat, envLogFormatOK := lookup(envVarLogFormat)
	envLogFormatSet := envLogFormatOK && envLogFormat != ""
	logFormatDefault := envLogFormat
	if !envLogFormatSet {
		logFormatDefault = defaultLogFormatForMode(modeDefault)
	}

	envLogLevel, envLogLevelOK := lookup(envVarLogLevel)
	envLogLevelSet := envLogLevelOK && envLogLevel != ""
	logLevelDefault := envLogLevel
	if !envLogLevelSet {
		logLevelDefault = defaultLogLevelForMode(modeDefault)
	}

	listenAddr := envOrDefault(lookup, envVarListenAddr, DefaultListenAddr)
	publicBaseURL := envOrDefault(lookup, envVarPublicBaseURL, "")
	allowedOriginsStr := envOrDefault(lookup, envVarAllowedOrigins, "")
	iceServersJSON := envOrDefault(lookup, envICEServersJSON, "")
	stunURLs := envOrDefault(lookup, envStunURLs, DefaultStunURLs)
	turnURLs := envOrDefault(lookup, envTurnURLs, "")
	turnUsername := envOrDefault(lookup, envTurnUsername, "")
	turnCredential := envOrDefault(lookup, envTurnCredential, "")

	shutdownTimeout, err := envDurationOrDefault(lookup, envVarShutdownTimeout, DefaultShutdown)
	if err != nil {
		return Config{}, err
	}

	offerTTL, err := envDurationOrDefault(lookup, envVarOfferTTL, DefaultOfferTTL)
	if err != nil {
		return Config{}, err
	}
	offerStoreStr := envOrDefault(lookup, envVarOfferStore, string(DefaultOfferStore))
	offerStoreMaxOffers, err := envIntOrDefault(lookup, envVarOfferStoreMaxOffers, DefaultOfferStoreMaxOffers)
	if err != nil {
		return Config{}, err
	}
	offersTable := envOrDefault(lookup, envVarOffersTable, DefaultOffersTable)
	awsRegion := envOrDefault(lookup, envVarAWSRegion, DefaultAWSRegion)
	dynamoDBEndpoint := envOrDefault(lookup, envVarDynamoDBEndpoint, "")
	etcdEndpointsStr := envOrDefault(lookup, envVarEtcdEndpoints, "")
	etcdKeyPrefix := envOrDefault(lookup, envVarEtcdKeyPrefix, DefaultEtcdKeyPrefix)
	sqlitePath := envOrDefault(lookup, envVarSQLitePath, DefaultSQLitePath)
	sqlitePurgeInterval, err := envDurationOrDefault(lookup, envVarSQLitePurgeInterval, DefaultSQLitePurgeInterval)
	if err != nil {
		return Config{}, err
	}

	apiGatewayEndpoint := envOrDefault(lookup, envVarAPIGatewayEndpoint, "")

	turnRESTSharedSecret := envOrDefault(lookup, envVarTURNRESTSharedSecret, "")
	turnRESTUsernamePrefix := envOrDefault(lookup, envVarTURNRESTUsernamePrefix, DefaultTURNRESTUsernamePrefix)
	turnRESTTTL, err := envDurationOrDefault(lookup, envVarTURNRESTTTL, DefaultTURNRESTTTL)
	if err != nil {
		return Config{}, err
	}

	signalingWSIdleTimeout, err := envDurationOrDefault(lookup, envVarSignalingWSIdleTimeout, DefaultSignalingWSIdleTimeout)
	if err != nil {
		return Config{}, err
	}
	signalingWSPingInterval, err := envDurationOrDefault(lookup, envVarSignalingWSPingInterval, DefaultSignalingWSPingInterval)
	if err != nil {
		return Config{}, err
	}

	maxSignalingMessageBytes := int64(DefaultMaxSignalingMessageBytes)
	if raw, ok := lookup(envVarMaxSignalingMessageBytes); ok && strings.TrimSpace(raw) != "" {
		n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s %q: %w", envVarMaxSignalingMessageBytes, raw, err)
		}
		maxSignalingMessageBytes = n
	}
	maxSignalingMessagesPerSecond, err := envIntOrDefault(lookup, envVarMaxSignalingMessagesPerSecond, DefaultMaxSignalingMessagesPerSecond)
	if err != nil {
		return Config{}, err
	}

	fs := flag.NewFlagSet("securesend-coord", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var (
		modeStr      string
		logFormatStr string
		logLevelStr  string
	)

	fs.StringVar(&listenAddr, "listen-addr", listenAddr, "HTTP listen address (host:port)")
	fs.StringVar(&publicBaseURL, "public-base-url", publicBaseURL, "Public base URL browsers use; its origin passes the same-host check (env "+envVarPublicBaseURL+")")
	fs.StringVar(&allowedOriginsStr, "allowed-origins", allowedOriginsStr, "Comma-separated list of allowed browser origins (env "+envVarAllowedOrigins+")")
	fs.StringVar(&modeStr, "mode", modeDefault, "Run mode: dev or prod")
	fs.StringVar(&logFormatStr, "log-format", logFormatDefault, "Log format: text or json")
	fs.StringVar(&logLevelStr, "log-level", logLevelDefault, "Log level: debug, info, warn, error")
	fs.DurationVar(&shutdownTimeout, "shutdown-timeout", shutdownTimeout, "Graceful shutdown timeout (e.g. 15s)")

	fs.DurationVar(&offerTTL, "offer-ttl", offerTTL, "How long an offerer stays discoverable (env "+envVarOfferTTL+")")
	fs.StringVar(&offerStoreStr, "offer-store", offerStoreStr, "Offer directory backend: memory, dynamodb, etcd or sqlite (env "+envVarOfferStore+")")
	fs.IntVar(&offerStoreMaxOffers, "offer-store-max-offers", offerStoreMaxOffers, "Max offers held by the memory backend (env "+envVarOfferStoreMaxOffers+")")
	fs.StringVar(&offersTable, "offers-table", offersTable, "DynamoDB offers table (env "+envVarOffersTable+")")
	fs.StringVar(&awsRegion, "aws-region", awsRegion, "AWS region (env "+envVarAWSRegion+")")
	fs.StringVar(&dynamoDBEndpoint, "dynamodb-endpoint", dynamoDBEndpoint, "DynamoDB endpoint override (env "+envVarDynamoDBEndpoint+")")
	fs.StringVar(&etcdEndpointsStr, "etcd-endpoints", etcdEndpointsStr, "Comma-separated etcd endpoints (env "+envVarEtcdEndpoints+")")
	fs.StringVar(&etcdKeyPrefix, "etcd-key-prefix", etcdKeyPrefix, "etcd key prefix for offers (env "+envVarEtcdKeyPrefix+")")
	fs.StringVar(&sqlitePath, "sqlite-path", sqlitePath, "SQLite database path (env "+envVarSQLitePath+")")
	fs.DurationVar(&sqlitePurgeInterval, "sqlite-purge-interval", sqlitePurgeInterval, "How often expired SQLite offers are deleted (env "+envVarSQLitePurgeInterval+")")
	fs.StringVar(&apiGatewayEndpoint, "apigateway-endpoint", apiGatewayEndpoint, "API Gateway Management API endpoint (env "+envVarAPIGatewayEndpoint+")")

	fs.DurationVar(&signalingWSIdleTimeout, "signaling-ws-idle-timeout", signalingWSIdleTimeout, "Close gateway WebSockets idle for this long (env "+envVarSignalingWSIdleTimeout+")")
	fs.DurationVar(&signalingWSPingInterval, "signaling-ws-ping-interval", signalingWSPingInterval, "Gateway WebSocket ping interval (env "+envVarSignalingWSPingInterval+")")
	fs.Int64Var(&maxSignalingMessageBytes, "max-signaling-message-bytes", maxSignalingMessageBytes, "Max gateway message size in bytes (env "+envVarMaxSignalingMessageBytes+")")
	fs.IntVar(&maxSignalingMessagesPerSecond, "max-signaling-messages-per-second", maxSignalingMessagesPerSecond, "Max gateway messages per second per connection (env "+envVarMaxSignalingMessagesPerSecond+")")

	fs.StringVar(&turnRESTSharedSecret, "turn-rest-shared-secret", turnRESTSharedSecret, "coturn static-auth-secret for TURN REST credentials (env "+envVarTURNRESTSharedSecret+")")
	fs.DurationVar(&turnRESTTTL, "turn-rest-ttl", turnRESTTTL, "Lifetime of minted TURN credentials (env "+envVarTURNRESTTTL+")")
	fs.StringVar(&turnRESTUsernamePrefix, "turn-rest-username-prefix", turnRESTUsernamePrefix, "Prefix embedded in TURN REST usernames (env "+envVarTURNRESTUsernamePrefix+")")
	fs.StringVar(&iceServersJSON, "ice-servers-json", iceServersJSON, "ICE server JSON config ("+envICEServersJSON+")")
	fs.StringVar(&stunURLs, "stun-urls", stunURLs, "comma-separated STUN URLs ("+envStunURLs+")")
	fs.StringVar(&turnURLs, "turn-urls", turnURLs, "comma-separated TURN URLs ("+envTurnURLs+")")
	fs.StringVar(&turnUsername, "turn-username", turnUsername, "TURN username ("+envTurnUsername+")")
	fs.StringVar(&turnCredential, "turn-credential", turnCredential, "TURN credential ("+envTurnCredential+")")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	mode, err := parseMode(modeStr)
	if err != nil {
		return Config{}, err
	}

	setFlags := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { setFlags[f.Name] = true })

	// A --mode flag picks mode-specific defaults unless the format or level was
	// set explicitly.
	if setFlags["mode"] && !setFlags["log-format"] && !envLogFormatSet {
		logFormatStr = defaultLogFormatForMode(string(mode))
	}
	if setFlags["mode"] && !setFlags["log-level"] && !envLogLevelSet {
		logLevelStr = defaultLogLevelForMode(string(mode))
	}

	logFormat, err := parseLogFormat(logFormatStr)
	if err != nil {
		return Config{}, err
	}
	level, err := parseLogLevel(logLevelStr)
	if err != nil {
		return Config{}, err
	}

	if shutdownTimeout <= 0 {
		return Config{}, fmt.Errorf("%s/--shutdown-timeout must be > 0", envVarShutdownTimeout)
	}
	if offerTTL < MinOfferTTL || offerTTL > MaxOfferTTL {
		return Config{}, fmt.Errorf("%s/--offer-ttl must be between %s and %s", envVarOfferTTL, MinOfferTTL, MaxOfferTTL)
	}

	offerStore, err := parseOfferStore(offerStoreStr)
	if err != nil {
		return Config{}, err
	}
	etcdEndpoints := splitCommaSeparated(etcdEndpointsStr)
	switch offerStore {
	case OfferStoreMemory:
		if offerStoreMaxOffers <= 0 {
			return Config{}, fmt.Errorf("%s/--offer-store-max-offers must be > 0", envVarOfferStoreMaxOffers)
		}
	case OfferStoreDynamoDB:
		if strings.TrimSpace(offersTable) == "" {
			return Config{}, fmt.Errorf("%s/--offers-table is required when %s=%s", envVarOffersTable, envVarOfferStore, offerStore)
		}
		if strings.TrimSpace(awsRegion) == "" {
			return Config{}, fmt.Errorf("%s/--aws-region is required when %s=%s", envVarAWSRegion, envVarOfferStore, offerStore)
		}
	case OfferStoreEtcd:
		if len(etcdEndpoints) == 0 {
			return Config{}, fmt.Errorf("%s/--etcd-endpoints is required when %s=%s", envVarEtcdEndpoints, envVarOfferStore, offerStore)
		}
		if !strings.HasPrefix(etcdKeyPrefix, "/") {
			return Config{}, fmt.Errorf("%s/--etcd-key-prefix must start with /", envVarEtcdKeyPrefix)
		}
	case OfferStoreSQLite:
		if strings.TrimSpace(sqlitePath) == "" {
			return Config{}, fmt.Errorf("%s/--sqlite-path is required when %s=%s", envVarSQLitePath, envVarOfferStore, offerStore)
		}
		if sqlitePurgeInterval <= 0 {
			return Config{}, fmt.Errorf("%s/--sqlite-purge-interval must be > 0", envVarSQLitePurgeInterval)
		}
	}

	if strings.TrimSpace(publicBaseURL) != "" {
		base, err := parseEndpointURL(publicBaseURL)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s/--public-base-url %q: %w", envVarPublicBaseURL, publicBaseURL, err)
		}
		publicBaseURL = base
	} else {
		publicBaseURL = ""
	}

	if strings.TrimSpace(apiGatewayEndpoint) != "" {
		endpoint, err := parseEndpointURL(apiGatewayEndpoint)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s/--apigateway-endpoint %q: %w", envVarAPIGatewayEndpoint, apiGatewayEndpoint, err)
		}
		apiGatewayEndpoint = endpoint
	}

	if turnRESTSharedSecret != "" {
		if turnRESTTTL < time.Second {
			return Config{}, fmt.Errorf("%s/--turn-rest-ttl must be >= 1s", envVarTURNRESTTTL)
		}
		if turnRESTUsernamePrefix == "" || strings.Contains(turnRESTUsernamePrefix, ":") {
			return Config{}, fmt.Errorf("%s/--turn-rest-username-prefix must be non-empty and must not contain ':'", envVarTURNRESTUsernamePrefix)
		}
	}

	if signalingWSIdleTimeout <= 0 {
		return Config{}, fmt.Errorf("%s/--signaling-ws-idle-timeout must be > 0", envVarSignalingWSIdleTimeout)
	}
	if signalingWSPingInterval <= 0 {
		return Config{}, fmt.Errorf("%s/--signaling-ws-ping-interval must be > 0", envVarSignalingWSPingInterval)
	}
	if signalingWSPingInterval >= signalingWSIdleTimeout {
		return Config{}, fmt.Errorf("%s/--signaling-ws-ping-interval must be < %s/--signaling-ws-idle-timeout", envVarSignalingWSPingInterval, envVarSignalingWSIdleTimeout)
	}
	if maxSignalingMessageBytes <= 0 {
		return Config{}, fmt.Errorf("%s/--max-signaling-message-bytes must be > 0", envVarMaxSignalingMessageBytes)
	}
	if maxSignalingMessagesPerSecond <= 0 {
		return Config{}, fmt.Errorf("%s/--max-signaling-messages-per-second must be > 0", envVarMaxSignalingMessagesPerSecond)
	}

	allowedOrigins, err := parseAllowedOrigins(allowedOriginsStr)
	if err != nil {
		return Config{}, fmt.Errorf("%s/%s: %w", envVarAllowedOrigins, "--allowed-origins", err)
	}

	cfg := Config{
		ListenAddr:      listenAddr,
		PublicBaseURL:   publicBaseURL,
		AllowedOrigins:  allowedOrigins,
		LogFormat:       logFormat,
		LogLevel:        level,
		ShutdownTimeout: shutdownTimeout,
		Mode:            mode,

		OfferTTL:            offerTTL,
		OfferStore:          offerStore,
		OfferStoreMaxOffers: offerStoreMaxOffers,
		OffersTable:         strings.TrimSpace(offersTable),
		AWSRegion:           strings.TrimSpace(awsRegion),
		DynamoDBEndpoint:    strings.TrimSpace(dynamoDBEndpoint),
		EtcdEndpoints:       etcdEndpoints,
		EtcdKeyPrefix:       etcdKeyPrefix,
		SQLitePath:          sqlitePath,
		SQLitePurgeInterval: sqlitePurgeInterval,

		APIGatewayEndpoint: apiGatewayEndpoint,

		TURNRESTSharedSecret:   turnRESTSharedSecret,
		TURNRESTTTL:            turnRESTTTL,
		TURNRESTUsernamePrefix: turnRESTUsernamePrefix,

		SignalingWSIdleTimeout:        signalingWSIdleTimeout,
		SignalingWSPingInterval:       signalingWSPingInterval,
		MaxSignalingMessageBytes:      maxSignalingMessageBytes,
		MaxSignalingMessagesPerSecond: maxSignalingMessagesPerSecond,
	}

	iceServers, err := parseICEServersFromValues(iceServersJSON, stunURLs, turnURLs, turnUsername, turnCredential, turnRESTSharedSecret != "")
	if err != nil {
		cfg.iceConfigErr = err
	} else {
		cfg.ICEServers = iceServers
	}

	return cfg, nil
}

// OriginPolicy is the browser Origin policy shared by the HTTP API and the
// WebSocket gateway.
func (c Config) OriginPolicy() origin.Policy {
	p := origin.NewPolicy(c.AllowedOrigins)
	if c.PublicBaseURL == "" {
		return p
	}
	u, err := url.Parse(c.PublicBaseURL)
	if err != nil {
		return p
	}
	if o, _, ok := origin.NormalizeHeader(u.Scheme + "://" + u.Host); ok {
		p = p.WithPublicOrigin(o)
	}
	return p
}

func NewLogger(cfg Config) (*slog.Logger, error) {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	switch cfg.LogFormat {
	case LogFormatText:
		handler = slog.NewTextHandler(os.Stdout, opts)
	case LogFormatJSON:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	default:
		return nil, fmt.Errorf("unsupported log format %q", cfg.LogFormat)
	}

	return slog.New(handler), nil
}

func envOrDefault(lookup func(string) (string, bool), key, fallback string) string {
	if v, ok := lookup(key); ok && v != "" {
		return v
	}
	return fallback
}

func envIntOrDefault(lookup func(string) (string, bool), key string, fallback int) (int, error) {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return n, nil
}

func envDurationOrDefault(lookup func(string) (string, bool), key string, fallback time.Duration) (time.Duration, error) {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return d, nil
}

func defaultLogFormatForMode(mode string) string {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case string(ModeProd), "production":
		return string(LogFormatJSON)
	default:
		return string(LogFormatText)
	}
}

func defaultLogLevelForMode(mode string) string {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case string(ModeProd), "production":
		return "info"
	default:
		return "debug"
	}
}

func parseMode(raw string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(ModeDev), "development":
		return ModeDev, nil
	case string(ModeProd), "production":
		return ModeProd, nil
	default:
		return "", fmt.Errorf("invalid mode %q (expected dev or prod)", raw)
	}
}

func parseLogFormat(raw string) (LogFormat, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(LogFormatText):
		return LogFormatText, nil
	case string(LogFormatJSON):
		return LogFormatJSON, nil
	default:
		return "", fmt.Errorf("invalid log format %q (expected text or json)", raw)
	}
}

func parseLogLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level %q (expected debug, info, warn, error)", raw)
	}
}

func parseOfferStore(raw string) (OfferStore, error) {
	switch s := OfferStore(strings.ToLower(strings.TrimSpace(raw))); s {
	case OfferStoreMemory, OfferStoreDynamoDB, OfferStoreEtcd, OfferStoreSQLite:
		return s, nil
	default:
		return "", fmt.Errorf("invalid %s %q (expected %s, %s, %s or %s)", envVarOfferStore, raw,
			OfferStoreMemory, OfferStoreDynamoDB, OfferStoreEtcd, OfferStoreSQLite)
	}
}

// parseEndpointURL accepts an http(s) URL with a host and no query, and
// strips a trailing slash.
func parseEndpointURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return "", fmt.Errorf("expected http:// or https://")
	}
	if u.Host == "" {
		return "", fmt.Errorf("missing host")
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return "", fmt.Errorf("must not include a query or fragment")
	}
	return strings.TrimSuffix(raw, "/"), nil
}

func parseAllowedOrigins(raw string) ([]string, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}

	var out []string
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		if entry == "*" {
			out = append(out, entry)
			continue
		}

		normalizedOrigin, _, ok := origin.NormalizeHeader(entry)
		if !ok {
			return nil, fmt.Errorf("invalid origin %q (expected full origin like https://example.com)", entry)
		}
		out = append(out, normalizedOrigin)
	}

	return out, nil
}
