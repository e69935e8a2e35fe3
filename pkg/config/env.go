package config

// EnvPrefix is the envconfig prefix; every field also carries its absolute name.
const EnvPrefix = "STOCKROOM"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverSQLite   = "sqlite"
	StoreDriverMongo    = "mongo"
)

const (
	EnvAppEnv                 = "STOCKROOM_APP_ENV"
	EnvPort                   = "STOCKROOM_APP_PORT"
	EnvLogLevel               = "STOCKROOM_LOG_LEVEL"
	EnvDBDSN                  = "STOCKROOM_DB_DSN"
	EnvDBHost                 = "STOCKROOM_DB_HOST"
	EnvDBUser                 = "STOCKROOM_DB_USER"
	EnvDBName                 = "STOCKROOM_DB_NAME"
	EnvDBPassword             = "STOCKROOM_DB_PASSWORD"
	EnvStoreDriver            = "STOCKROOM_STORE_DRIVER"
	EnvMongoURI               = "STOCKROOM_MONGO_URI"
	EnvRedisURL               = "STOCKROOM_REDIS_URL"
	EnvJWTSecret              = "STOCKROOM_JWT_SECRET"
	EnvJWTIssuer              = "STOCKROOM_JWT_ISSUER"
	EnvJWTExpMins             = "STOCKROOM_JWT_EXPIRATION_MINUTES"
	EnvRefreshTokenTTLMinutes = "STOCKROOM_REFRESH_TOKEN_TTL_MINUTES"
	EnvBarcodeMaxAttempts     = "STOCKROOM_BARCODE_MAX_ATTEMPTS"
	EnvAuditLowStock          = "STOCKROOM_AUDIT_LOW_STOCK_THRESHOLD"
	EnvCORSAllowedOrigins     = "STOCKROOM_CORS_ALLOWED_ORIGINS"
)

var dbPartEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
