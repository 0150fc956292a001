package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Geocoder selections accepted in GEOCODER.
const (
	GeocoderNone    = "none"
	GeocoderKakao   = "kakao"
	GeocoderBrowser = "browser"
	GeocoderChain   = "chain"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	DataDir       string
	LayoutFile    string
	CSVOutputPath string
	IDNamespace   string

	Geocoder         string
	KakaoAPIKey      string
	ChromeBin        string
	RateLimitMs      int
	MaxRetries       int
	GeocodeTimeoutMs int

	NearbyRadiusKm float64
	WalkingSeed    int64
	RescanInterval time.Duration

	AMQPURL        string
	AMQPExchange   string
	AMQPRoutingKey string

	ElasticsearchURL string
	ElasticIndex     string

	LogLevel     string
	FluentEnable bool
	FluentHost   string
	FluentPort   int
}

// Load reads the .env file and returns a populated Config struct.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("[config] No .env file found, falling back to system env vars")
	}

	return &Config{
		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "ingest"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "ingest123"),
		PostgresDB:       getEnv("POSTGRES_DB", "realestate_db"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),

		DataDir:       getEnv("DATA_DIR", "./data"),
		LayoutFile:    getEnv("LAYOUT_FILE", ""),
		CSVOutputPath: getEnv("CSV_OUTPUT_PATH", ""),
		IDNamespace:   getEnv("ID_NAMESPACE", ""),

		Geocoder:         strings.ToLower(getEnv("GEOCODER", GeocoderNone)),
		KakaoAPIKey:      getEnv("KAKAO_REST_API_KEY", ""),
		ChromeBin:        getEnv("CHROME_BIN", ""),
		RateLimitMs:      getEnvInt("RATE_LIMIT_MS", 1000),
		MaxRetries:       getEnvInt("MAX_RETRIES", 3),
		GeocodeTimeoutMs: getEnvInt("GEOCODE_TIMEOUT_MS", 5000),

		NearbyRadiusKm: getEnvFloat("NEARBY_RADIUS_KM", 1.0),
		WalkingSeed:    int64(getEnvInt("WALKING_SEED", 0)),
		RescanInterval: getEnvDuration("RESCAN_INTERVAL", 24*time.Hour),

		AMQPURL:        getEnv("AMQP_URL", ""),
		AMQPExchange:   getEnv("AMQP_EXCHANGE", "realestate"),
		AMQPRoutingKey: getEnv("AMQP_ROUTING_KEY", "ingest"),

		ElasticsearchURL: getEnv("ELASTICSEARCH_URL", ""),
		ElasticIndex:     getEnv("ES_INDEX", "facilities"),

		LogLevel:     getEnv("LOG_LEVEL", "info"),
		FluentEnable: getEnvBool("FLUENT_ENABLED", false),
		FluentHost:   getEnv("FLUENT_HOST", "localhost"),
		FluentPort:   getEnvInt("FLUENT_PORT", 24224),
	}
}

// DSN returns the PostgreSQL connection string.
func (c *Config) DSN() string {
	return "host=" + c.PostgresHost +
		" port=" + c.PostgresPort +
		" user=" + c.PostgresUser +
		" password=" + c.PostgresPassword +
		" dbname=" + c.PostgresDB +
		" sslmode=" + c.PostgresSSLMode
}

// GeocodeTimeout is the per-address lookup budget.
func (c *Config) GeocodeTimeout() time.Duration {
	return time.Duration(c.GeocodeTimeoutMs) * time.Millisecond
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.Atoi(val)
		if err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if val := os.Getenv(key); val != "" {
		f, err := strconv.ParseFloat(val, 64)
		if err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		b, err := strconv.ParseBool(val)
		if err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		d, err := time.ParseDuration(val)
		if err == nil {
			return d
		}
	}
	return fallback
}
