package config

const (
	EnvPrefix = "SHOPVIBE"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv   = "SHOPVIBE_APP_ENV"
	EnvPort     = "SHOPVIBE_APP_PORT"
	EnvDBDSN    = "SHOPVIBE_DB_DSN"
	EnvRedisURL = "SHOPVIBE_REDIS_URL"
)
