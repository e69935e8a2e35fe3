package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App           AppConfig
	Service       ServiceConfig
	DB            DBConfig
	Store         StoreConfig
	Redis         RedisConfig
	JWT           JWTConfig
	Password      PasswordConfig
	AuthRateLimit AuthRateLimitConfig
	CORS          CORSConfig
	Inventory     InventoryConfig
	Audit         AuditConfig
	Bootstrap     BootstrapConfig
	FeatureFlags  FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Store.validate(); err != nil {
		return nil, err
	}
	if cfg.Store.UsesSQL() {
		if err := cfg.DB.ensureDSN(); err != nil {
			return nil, err
		}
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"STOCKROOM_APP_ENV" required:"true"`
	Port         string `envconfig:"STOCKROOM_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"STOCKROOM_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"STOCKROOM_LOG_WARN_STACK" default:"false"`
	LogFormat    string `envconfig:"STOCKROOM_LOG_FORMAT" default:"json"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"STOCKROOM_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"STOCKROOM_DB_DSN"`
	Driver string `envconfig:"STOCKROOM_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"STOCKROOM_DB_HOST"`
	Port     int    `envconfig:"STOCKROOM_DB_PORT" default:"5432"`
	User     string `envconfig:"STOCKROOM_DB_USER"`
	Password string `envconfig:"STOCKROOM_DB_PASSWORD"`
	Name     string `envconfig:"STOCKROOM_DB_NAME"`
	SSLMode  string `envconfig:"STOCKROOM_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"STOCKROOM_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"STOCKROOM_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"STOCKROOM_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"STOCKROOM_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

// StoreConfig selects the persistence backend for inventory and deliveries.
type StoreConfig struct {
	Driver        string        `envconfig:"STOCKROOM_STORE_DRIVER" default:"postgres"`
	MongoURI      string        `envconfig:"STOCKROOM_MONGO_URI"`
	MongoDatabase string        `envconfig:"STOCKROOM_MONGO_DATABASE" default:"stockroom"`
	MongoTimeout  time.Duration `envconfig:"STOCKROOM_MONGO_TIMEOUT" default:"10s"`
}

// UsesSQL reports whether the catalog lives in the relational database.
func (s StoreConfig) UsesSQL() bool {
	return s.normalized() != StoreDriverMongo
}

// UsesMongo reports whether the catalog lives in MongoDB.
func (s StoreConfig) UsesMongo() bool {
	return s.normalized() == StoreDriverMongo
}

func (s StoreConfig) normalized() string {
	return strings.ToLower(strings.TrimSpace(s.Driver))
}

func (s StoreConfig) validate() error {
	switch s.normalized() {
	case StoreDriverPostgres, StoreDriverSQLite:
		return nil
	case StoreDriverMongo:
		if strings.TrimSpace(s.MongoURI) == "" {
			return fmt.Errorf("%s is required when %s=%s", EnvMongoURI, EnvStoreDriver, StoreDriverMongo)
		}
		return nil
	default:
		return fmt.Errorf("unsupported %s %q", EnvStoreDriver, s.Driver)
	}
}

type RedisConfig struct {
	URL          string        `envconfig:"STOCKROOM_REDIS_URL" required:"true"`
	Address      string        `envconfig:"STOCKROOM_REDIS_ADDR"`
	Password     string        `envconfig:"STOCKROOM_REDIS_PASSWORD"`
	DB           int           `envconfig:"STOCKROOM_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"STOCKROOM_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"STOCKROOM_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"STOCKROOM_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"STOCKROOM_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"STOCKROOM_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret                 string `envconfig:"STOCKROOM_JWT_SECRET" required:"true"`
	Issuer                 string `envconfig:"STOCKROOM_JWT_ISSUER" required:"true"`
	ExpirationMinutes      int    `envconfig:"STOCKROOM_JWT_EXPIRATION_MINUTES" required:"true"`
	RefreshTokenTTLMinutes int    `envconfig:"STOCKROOM_REFRESH_TOKEN_TTL_MINUTES" default:"10080"`
}

// RefreshTokenTTL returns the refresh token TTL configured in minutes.
func (j JWTConfig) RefreshTokenTTL() time.Duration {
	if j.RefreshTokenTTLMinutes <= 0 {
		return 0
	}
	return time.Duration(j.RefreshTokenTTLMinutes) * time.Minute
}

type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"STOCKROOM_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"STOCKROOM_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"STOCKROOM_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"STOCKROOM_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"STOCKROOM_ARGON_KEY_LEN" default:"32"`
}

type AuthRateLimitConfig struct {
	LoginWindow     time.Duration `envconfig:"STOCKROOM_AUTH_RATE_LIMIT_LOGIN_WINDOW" default:"1m"`
	LoginEmailLimit int           `envconfig:"STOCKROOM_AUTH_RATE_LIMIT_LOGIN_EMAIL_LIMIT" default:"5"`
	LoginIPLimit    int           `envconfig:"STOCKROOM_AUTH_RATE_LIMIT_LOGIN_IP_LIMIT" default:"20"`
}

type CORSConfig struct {
	AllowedOrigins []string `envconfig:"STOCKROOM_CORS_ALLOWED_ORIGINS" default:"*"`
	MaxAgeSeconds  int      `envconfig:"STOCKROOM_CORS_MAX_AGE_SECONDS" default:"300"`
}

// InventoryConfig tunes catalog ingestion and delivery bookkeeping.
type InventoryConfig struct {
	BarcodeMaxAttempts int           `envconfig:"STOCKROOM_BARCODE_MAX_ATTEMPTS" default:"100"`
	IdempotencyTTL     time.Duration `envconfig:"STOCKROOM_IDEMPOTENCY_TTL" default:"24h"`
}

type AuditConfig struct {
	Interval          time.Duration `envconfig:"STOCKROOM_AUDIT_INTERVAL" default:"1h"`
	LowStockThreshold int           `envconfig:"STOCKROOM_AUDIT_LOW_STOCK_THRESHOLD" default:"5"`
	LockTTL           time.Duration `envconfig:"STOCKROOM_AUDIT_LOCK_TTL" default:"55m"`
	// MetricsPort serves /metrics from the worker when set.
	MetricsPort string `envconfig:"STOCKROOM_AUDIT_METRICS_PORT"`
}

// BootstrapConfig seeds the first admin account on startup when both fields are set.
type BootstrapConfig struct {
	AdminEmail    string `envconfig:"STOCKROOM_BOOTSTRAP_ADMIN_EMAIL"`
	AdminPassword string `envconfig:"STOCKROOM_BOOTSTRAP_ADMIN_PASSWORD"`
	AdminName     string `envconfig:"STOCKROOM_BOOTSTRAP_ADMIN_NAME" default:"Administrator"`
}

// Enabled reports whether an admin should be seeded.
func (b BootstrapConfig) Enabled() bool {
	return strings.TrimSpace(b.AdminEmail) != "" && b.AdminPassword != ""
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"STOCKROOM_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"STOCKROOM_AUTO_MIGRATE" default:"false"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	parts := map[string]string{
		EnvDBHost: db.Host,
		EnvDBUser: db.User,
		EnvDBName: db.Name,
	}
	for _, env := range dbPartEnvVars {
		if parts[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.User)
	if db.Password != "" {
		userInfo = url.UserPassword(db.User, db.Password)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:   db.Name,
	}

	if db.SSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.SSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
