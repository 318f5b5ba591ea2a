package config

// EnvPrefix is the envconfig prefix shared by every Tempora binary.
const EnvPrefix = "tempora"

const (
	AppEnvDev  = "development"
	AppEnvProd = "production"
)

const (
	EnvAppEnv = "TEMPORA_APP_ENV"
	EnvDBDSN  = "TEMPORA_DB_DSN"
	EnvDBHost = "TEMPORA_DB_HOST"
	EnvDBUser = "TEMPORA_DB_USER"
	EnvDBName = "TEMPORA_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
