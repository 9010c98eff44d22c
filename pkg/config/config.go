package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	// EnvPrefix namespaces every settlement environment variable.
	EnvPrefix = "VEILCARE"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvDBDSN  = "VEILCARE_DB_DSN"
	EnvDBHost = "VEILCARE_DB_HOST"
	EnvDBUser = "VEILCARE_DB_USER"
	EnvDBName = "VEILCARE_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	FeatureFlags FeatureFlagsConfig
	Chain        ChainConfig
	Rates        RatesConfig
	Signer       SignerConfig
	Relay        RelayConfig
	Settlement   SettlementConfig
	Gateway      GatewayConfig
	GCP          GCPConfig
	GCS          GCSConfig
	PubSub       PubSubConfig
	BigQuery     BigQueryConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"VEILCARE_APP_ENV" required:"true"`
	Port         string `envconfig:"VEILCARE_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"VEILCARE_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"VEILCARE_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"VEILCARE_DB_DSN"`
	Driver string `envconfig:"VEILCARE_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"VEILCARE_DB_HOST"`
	LegacyPort     int    `envconfig:"VEILCARE_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"VEILCARE_DB_USER"`
	LegacyPassword string `envconfig:"VEILCARE_DB_PASSWORD"`
	LegacyName     string `envconfig:"VEILCARE_DB_NAME"`
	LegacySSLMode  string `envconfig:"VEILCARE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"VEILCARE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"VEILCARE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"VEILCARE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"VEILCARE_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"VEILCARE_REDIS_URL" required:"true"`
	Address      string        `envconfig:"VEILCARE_REDIS_ADDR"`
	Password     string        `envconfig:"VEILCARE_REDIS_PASSWORD"`
	DB           int           `envconfig:"VEILCARE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"VEILCARE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"VEILCARE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"VEILCARE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"VEILCARE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"VEILCARE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"VEILCARE_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"VEILCARE_AUTO_MIGRATE" default:"false"`
}

// ChainConfig controls on-chain funding verification.
type ChainConfig struct {
	RPCURL            string        `envconfig:"VEILCARE_CHAIN_RPC_URL" required:"true"`
	DepositAddress    string        `envconfig:"VEILCARE_CHAIN_DEPOSIT_ADDRESS" required:"true"`
	LookupTimeout     time.Duration `envconfig:"VEILCARE_CHAIN_LOOKUP_TIMEOUT" default:"10s"`
	ConfirmTimeout    time.Duration `envconfig:"VEILCARE_CHAIN_CONFIRM_TIMEOUT" default:"45s"`
	VerifyMaxAttempts int           `envconfig:"VEILCARE_CHAIN_VERIFY_MAX_ATTEMPTS" default:"5"`
	VerifyBaseDelay   time.Duration `envconfig:"VEILCARE_CHAIN_VERIFY_BASE_DELAY" default:"2s"`
}

// RatesConfig fixes the fiat to settlement-asset conversion.
type RatesConfig struct {
	Asset            string `envconfig:"VEILCARE_RATES_ASSET" default:"ETH"`
	USDCentsPerWhole string `envconfig:"VEILCARE_RATES_USD_CENTS_PER_WHOLE" default:"250000"`
}

// SignerConfig points at the external MPC signing service.
type SignerConfig struct {
	BaseURL string        `envconfig:"VEILCARE_SIGNER_BASE_URL" required:"true"`
	APIKey  string        `envconfig:"VEILCARE_SIGNER_API_KEY"`
	Timeout time.Duration `envconfig:"VEILCARE_SIGNER_TIMEOUT" default:"30s"`
}

// RelayConfig points at the privacy-transfer relay.
type RelayConfig struct {
	BaseURL          string        `envconfig:"VEILCARE_RELAY_BASE_URL" required:"true"`
	APIKey           string        `envconfig:"VEILCARE_RELAY_API_KEY"`
	Timeout          time.Duration `envconfig:"VEILCARE_RELAY_TIMEOUT" default:"45s"`
	PhaseMaxAttempts int           `envconfig:"VEILCARE_RELAY_PHASE_MAX_ATTEMPTS" default:"3"`
	PhaseBaseDelay   time.Duration `envconfig:"VEILCARE_RELAY_PHASE_BASE_DELAY" default:"1s"`
}

// SettlementConfig carries solver-level knobs.
type SettlementConfig struct {
	MinTransferWei string        `envconfig:"VEILCARE_SETTLEMENT_MIN_TRANSFER_WEI" default:"1000000000000000"`
	LockTTL        time.Duration `envconfig:"VEILCARE_SETTLEMENT_LOCK_TTL" default:"5m"`
}

// GatewayConfig holds card-gateway credentials for fiat-funded intents.
type GatewayConfig struct {
	AccessToken string `envconfig:"VEILCARE_SQUARE_ACCESS_TOKEN"`
	Env         string `envconfig:"VEILCARE_SQUARE_ENV" default:"sandbox"`
}

// Environment returns the normalized gateway environment (sandbox/production).
func (g GatewayConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(g.Env))
	if env == "" {
		return "sandbox"
	}
	return env
}

type GCPConfig struct {
	ProjectID              string `envconfig:"VEILCARE_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON        string `envconfig:"VEILCARE_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"VEILCARE_GOOGLE_APPLICATION_CREDENTIALS"`
}

type GCSConfig struct {
	BucketName  string `envconfig:"VEILCARE_GCS_BUCKET_NAME" required:"true"`
	ProofPrefix string `envconfig:"VEILCARE_GCS_PROOF_PREFIX" default:"proofs"`
}

type PubSubConfig struct {
	IntentsTopic        string `envconfig:"VEILCARE_PUBSUB_INTENTS_TOPIC" required:"true"`
	IntentsSubscription string `envconfig:"VEILCARE_PUBSUB_INTENTS_SUBSCRIPTION" required:"true"`
}

type BigQueryConfig struct {
	Dataset              string `envconfig:"VEILCARE_BIGQUERY_DATASET" default:"veilcare"`
	SettlementAuditTable string `envconfig:"VEILCARE_BIGQUERY_SETTLEMENT_AUDIT_TABLE" default:"settlement_audit"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
