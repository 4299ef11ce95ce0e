package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/zodiya/funnel-api/internal/platform/logging"
)

const (
	EnvDev   = "dev"
	EnvStage = "stage"
	EnvProd  = "prod"
)

const (
	SessionStoreMemory   = "memory"
	SessionStorePostgres = "postgres"
)

// Config stores runtime configuration for the service.
type Config struct {
	AppEnv             string
	ServiceName        string
	ServiceVersion     string
	HTTPAddr           string
	CORSAllowedOrigins []string
	ReadTimeout        time.Duration
	WriteTimeout       time.Duration
	LogLevel           logging.Level

	SessionStore  string
	DBURL         string
	SessionTTL    time.Duration
	SweepInterval time.Duration

	LoadingDuration      time.Duration
	CityDebounceInterval time.Duration
	GeocodeWorkerCount   int

	ZodiyaBaseURL               string
	ZodiyaTimeout               time.Duration
	ZodiyaMaxRetries            int
	ZodiyaCircuitEnabled        bool
	ZodiyaCircuitFailureCount   int
	ZodiyaCircuitOpenTimeout    time.Duration
	ZodiyaCircuitHalfOpenMaxReq int

	CacheEnabled bool
	CacheTTL     time.Duration

	StripeAPIURL    string
	StripeSecretKey string
	PortalURL       string

	UptraceEnabled bool
	UptraceDSN     string

	PyroscopeEnabled           bool
	PyroscopeServerAddress     string
	PyroscopeAppName           string
	PyroscopeAuthToken         string
	PyroscopeBasicAuthUser     string
	PyroscopeBasicAuthPassword string
	PyroscopeUploadRate        time.Duration

	PprofEnabled bool
	PprofAddr    string
}

func Load() (Config, error) {
	appEnv, err := parseAppEnv(getEnv("APP_ENV", EnvDev))
	if err != nil {
		return Config{}, err
	}

	readTimeout, err := time.ParseDuration(getEnv("APP_READ_TIMEOUT", "15s"))
	if err != nil {
		return Config{}, fmt.Errorf("parse APP_READ_TIMEOUT: %w", err)
	}
	if readTimeout <= 0 {
		return Config{}, fmt.Errorf("APP_READ_TIMEOUT must be > 0")
	}
	writeTimeout, err := time.ParseDuration(getEnv("APP_WRITE_TIMEOUT", "30s"))
	if err != nil {
		return Config{}, fmt.Errorf("parse APP_WRITE_TIMEOUT: %w", err)
	}
	if writeTimeout <= 0 {
		return Config{}, fmt.Errorf("APP_WRITE_TIMEOUT must be > 0")
	}

	sessionStore := strings.ToLower(strings.TrimSpace(getEnv("SESSION_STORE", SessionStoreMemory)))
	switch sessionStore {
	case SessionStoreMemory, SessionStorePostgres:
	default:
		return Config{}, fmt.Errorf("invalid SESSION_STORE %q: valid values are %s, %s", sessionStore, SessionStoreMemory, SessionStorePostgres)
	}

	dbURL := strings.TrimSpace(getEnv("DB_URL", ""))
	if sessionStore == SessionStorePostgres && dbURL == "" {
		return Config{}, fmt.Errorf("DB_URL is required when SESSION_STORE=postgres")
	}

	sessionTTL, err := time.ParseDuration(getEnv("SESSION_TTL", "24h"))
	if err != nil {
		return Config{}, fmt.Errorf("parse SESSION_TTL: %w", err)
	}
	if sessionTTL <= 0 {
		return Config{}, fmt.Errorf("SESSION_TTL must be > 0")
	}

	sweepInterval, err := time.ParseDuration(getEnv("SESSION_SWEEP_INTERVAL", "10m"))
	if err != nil {
		return Config{}, fmt.Errorf("parse SESSION_SWEEP_INTERVAL: %w", err)
	}
	if sweepInterval <= 0 {
		return Config{}, fmt.Errorf("SESSION_SWEEP_INTERVAL must be > 0")
	}

	loadingDuration, err := time.ParseDuration(getEnv("FUNNEL_LOADING_DURATION", "4s"))
	if err != nil {
		return Config{}, fmt.Errorf("parse FUNNEL_LOADING_DURATION: %w", err)
	}
	if loadingDuration <= 0 {
		return Config{}, fmt.Errorf("FUNNEL_LOADING_DURATION must be > 0")
	}

	cityDebounceInterval, err := time.ParseDuration(getEnv("CITY_DEBOUNCE_INTERVAL", "250ms"))
	if err != nil {
		return Config{}, fmt.Errorf("parse CITY_DEBOUNCE_INTERVAL: %w", err)
	}
	if cityDebounceInterval < 0 {
		return Config{}, fmt.Errorf("CITY_DEBOUNCE_INTERVAL must be >= 0")
	}

	geocodeWorkerCount, err := getEnvAsInt("GEOCODE_WORKER_COUNT", 4)
	if err != nil {
		return Config{}, fmt.Errorf("parse GEOCODE_WORKER_COUNT: %w", err)
	}
	if geocodeWorkerCount < 1 {
		return Config{}, fmt.Errorf("GEOCODE_WORKER_COUNT must be >= 1")
	}

	zodiyaTimeout, err := time.ParseDuration(getEnv("ZODIYA_TIMEOUT", "20s"))
	if err != nil {
		return Config{}, fmt.Errorf("parse ZODIYA_TIMEOUT: %w", err)
	}
	if zodiyaTimeout <= 0 {
		return Config{}, fmt.Errorf("ZODIYA_TIMEOUT must be > 0")
	}
	zodiyaMaxRetries, err := getEnvAsInt("ZODIYA_MAX_RETRIES", 1)
	if err != nil {
		return Config{}, fmt.Errorf("parse ZODIYA_MAX_RETRIES: %w", err)
	}
	if zodiyaMaxRetries < 0 {
		return Config{}, fmt.Errorf("ZODIYA_MAX_RETRIES must be >= 0")
	}
	zodiyaCircuitEnabled, err := strconv.ParseBool(getEnv("ZODIYA_CIRCUIT_ENABLED", "true"))
	if err != nil {
		return Config{}, fmt.Errorf("parse ZODIYA_CIRCUIT_ENABLED: %w", err)
	}
	zodiyaCircuitFailureCount, err := getEnvAsInt("ZODIYA_CIRCUIT_FAILURE_COUNT", 5)
	if err != nil {
		return Config{}, fmt.Errorf("parse ZODIYA_CIRCUIT_FAILURE_COUNT: %w", err)
	}
	if zodiyaCircuitFailureCount < 1 {
		return Config{}, fmt.Errorf("ZODIYA_CIRCUIT_FAILURE_COUNT must be >= 1")
	}
	zodiyaCircuitOpenTimeout, err := time.ParseDuration(getEnv("ZODIYA_CIRCUIT_OPEN_TIMEOUT", "15s"))
	if err != nil {
		return Config{}, fmt.Errorf("parse ZODIYA_CIRCUIT_OPEN_TIMEOUT: %w", err)
	}
	if zodiyaCircuitOpenTimeout <= 0 {
		return Config{}, fmt.Errorf("ZODIYA_CIRCUIT_OPEN_TIMEOUT must be > 0")
	}
	zodiyaCircuitHalfOpenMaxReq, err := getEnvAsInt("ZODIYA_CIRCUIT_HALF_OPEN_MAX_REQ", 2)
	if err != nil {
		return Config{}, fmt.Errorf("parse ZODIYA_CIRCUIT_HALF_OPEN_MAX_REQ: %w", err)
	}
	if zodiyaCircuitHalfOpenMaxReq < 1 {
		return Config{}, fmt.Errorf("ZODIYA_CIRCUIT_HALF_OPEN_MAX_REQ must be >= 1")
	}

	cacheEnabled, err := strconv.ParseBool(getEnv("CACHE_ENABLED", "true"))
	if err != nil {
		return Config{}, fmt.Errorf("parse CACHE_ENABLED: %w", err)
	}
	cacheTTL, err := time.ParseDuration(getEnv("CACHE_TTL", "5m"))
	if err != nil {
		return Config{}, fmt.Errorf("parse CACHE_TTL: %w", err)
	}
	if cacheTTL <= 0 {
		return Config{}, fmt.Errorf("CACHE_TTL must be > 0")
	}

	uptraceEnabled, err := strconv.ParseBool(getEnv("UPTRACE_ENABLED", "false"))
	if err != nil {
		return Config{}, fmt.Errorf("parse UPTRACE_ENABLED: %w", err)
	}
	uptraceDSN := strings.TrimSpace(getEnv("UPTRACE_DSN", ""))
	if uptraceEnabled && uptraceDSN == "" {
		return Config{}, fmt.Errorf("UPTRACE_DSN is required when UPTRACE_ENABLED=true")
	}

	pyroscopeEnabled, err := strconv.ParseBool(getEnv("PYROSCOPE_ENABLED", "false"))
	if err != nil {
		return Config{}, fmt.Errorf("parse PYROSCOPE_ENABLED: %w", err)
	}
	pyroscopeServerAddress := strings.TrimSpace(getEnv("PYROSCOPE_SERVER_ADDRESS", ""))
	if pyroscopeEnabled && pyroscopeServerAddress == "" {
		return Config{}, fmt.Errorf("PYROSCOPE_SERVER_ADDRESS is required when PYROSCOPE_ENABLED=true")
	}
	pyroscopeUploadRate, err := time.ParseDuration(getEnv("PYROSCOPE_UPLOAD_RATE", "15s"))
	if err != nil {
		return Config{}, fmt.Errorf("parse PYROSCOPE_UPLOAD_RATE: %w", err)
	}
	if pyroscopeUploadRate <= 0 {
		return Config{}, fmt.Errorf("PYROSCOPE_UPLOAD_RATE must be > 0")
	}

	pprofEnabled, err := strconv.ParseBool(getEnv("PPROF_ENABLED", "false"))
	if err != nil {
		return Config{}, fmt.Errorf("parse PPROF_ENABLED: %w", err)
	}
	pprofAddr := strings.TrimSpace(getEnv("PPROF_ADDR", ":6060"))
	if pprofEnabled && pprofAddr == "" {
		return Config{}, fmt.Errorf("PPROF_ADDR is required when PPROF_ENABLED=true")
	}

	serviceName := getEnv("APP_SERVICE_NAME", "funnel-api")

	return Config{
		AppEnv:             appEnv,
		ServiceName:        serviceName,
		ServiceVersion:     getEnv("APP_SERVICE_VERSION", "dev"),
		HTTPAddr:           getEnv("APP_HTTP_ADDR", ":8080"),
		CORSAllowedOrigins: splitCSV(getEnv("CORS_ALLOWED_ORIGINS", "*")),
		ReadTimeout:        readTimeout,
		WriteTimeout:       writeTimeout,
		LogLevel:           parseLogLevel(getEnv("LOG_LEVEL", "info")),

		SessionStore:  sessionStore,
		DBURL:         dbURL,
		SessionTTL:    sessionTTL,
		SweepInterval: sweepInterval,

		LoadingDuration:      loadingDuration,
		CityDebounceInterval: cityDebounceInterval,
		GeocodeWorkerCount:   geocodeWorkerCount,

		ZodiyaBaseURL:               getEnv("ZODIYA_BASE_URL", "http://localhost:8081"),
		ZodiyaTimeout:               zodiyaTimeout,
		ZodiyaMaxRetries:            zodiyaMaxRetries,
		ZodiyaCircuitEnabled:        zodiyaCircuitEnabled,
		ZodiyaCircuitFailureCount:   zodiyaCircuitFailureCount,
		ZodiyaCircuitOpenTimeout:    zodiyaCircuitOpenTimeout,
		ZodiyaCircuitHalfOpenMaxReq: zodiyaCircuitHalfOpenMaxReq,

		CacheEnabled: cacheEnabled,
		CacheTTL:     cacheTTL,

		StripeAPIURL:    getEnv("STRIPE_API_URL", "https://api.stripe.com"),
		StripeSecretKey: strings.TrimSpace(getEnv("STRIPE_SECRET_KEY", "")),
		PortalURL:       strings.TrimSpace(getEnv("PORTAL_URL", "")),

		UptraceEnabled: uptraceEnabled,
		UptraceDSN:     uptraceDSN,

		PyroscopeEnabled:           pyroscopeEnabled,
		PyroscopeServerAddress:     pyroscopeServerAddress,
		PyroscopeAppName:           getEnv("PYROSCOPE_APP_NAME", serviceName),
		PyroscopeAuthToken:         strings.TrimSpace(getEnv("PYROSCOPE_AUTH_TOKEN", "")),
		PyroscopeBasicAuthUser:     strings.TrimSpace(getEnv("PYROSCOPE_BASIC_AUTH_USER", "")),
		PyroscopeBasicAuthPassword: strings.TrimSpace(getEnv("PYROSCOPE_BASIC_AUTH_PASSWORD", "")),
		PyroscopeUploadRate:        pyroscopeUploadRate,

		PprofEnabled: pprofEnabled,
		PprofAddr:    pprofAddr,
	}, nil
}

func parseAppEnv(v string) (string, error) {
	value := strings.ToLower(strings.TrimSpace(v))
	switch value {
	case EnvDev, EnvStage, EnvProd:
		return value, nil
	default:
		return "", fmt.Errorf("invalid APP_ENV %q: valid values are %s, %s, %s", v, EnvDev, EnvStage, EnvProd)
	}
}

func parseLogLevel(v string) logging.Level {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "debug":
		return logging.LevelDebug
	case "warn", "warning":
		return logging.LevelWarn
	case "error":
		return logging.LevelError
	default:
		return logging.LevelInfo
	}
}

func getEnv(key, fallback string) string {
	value := os.Getenv(key)
	if strings.TrimSpace(value) == "" {
		return fallback
	}

	return value
}

func getEnvAsInt(key string, fallback int) (int, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback, nil
	}

	out, err := strconv.Atoi(value)
	if err != nil {
		return 0, err
	}

	return out, nil
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		item := strings.TrimSpace(part)
		if item == "" {
			continue
		}
		out = append(out, item)
	}

	return out
}
