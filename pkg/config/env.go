package config

import (
	"fmt"
	"os"
	"strconv"
)

// Environment variables read by ApplyEnv. The UFPB_*, MONGODB_*, APP_NAME and
// DEBUG names are accepted so existing deployments keep working; when both
// forms are set the PROMPTFLOW_* variable wins.
const (
	EnvAppName         = "APP_NAME"
	EnvDebug           = "DEBUG"
	EnvModelAPIKey     = "UFPB_OPENAI_API_KEY"
	EnvModelBaseURL    = "UFPB_OPENAI_API_BASE"
	EnvModelDeployment = "UFPB_LLM_DEPLOYMENT_NAME_4O"
	EnvModelAPIVersion = "UFPB_OPENAI_API_VERSION"
	EnvMongoURL        = "MONGODB_URL"
	EnvMongoDB         = "MONGODB_DB"
	EnvMongoCollection = "MONGODB_COLLECTION"

	envPrefix = "PROMPTFLOW_"
)

// ApplyEnv overrides configuration values from the environment
func ApplyEnv(cfg *Config) error {
	setString(&cfg.AppName, EnvAppName, envPrefix+"APP_NAME")
	if err := setBool(&cfg.Debug, EnvDebug, envPrefix+"DEBUG"); err != nil {
		return err
	}

	setString(&cfg.Server.Host, envPrefix+"HOST")
	if err := setInt(&cfg.Server.Port, envPrefix+"PORT"); err != nil {
		return err
	}

	setString(&cfg.Storage.Type, envPrefix+"STORAGE_TYPE")
	setString(&cfg.Storage.SQLite.Path, envPrefix+"SQLITE_PATH")
	setString(&cfg.Storage.MongoDB.URI, EnvMongoURL, envPrefix+"MONGODB_URI")
	setString(&cfg.Storage.MongoDB.Database, EnvMongoDB, envPrefix+"MONGODB_DATABASE")
	setString(&cfg.Storage.MongoDB.Collection, EnvMongoCollection, envPrefix+"MONGODB_COLLECTION")
	setString(&cfg.Storage.Redis.Addr, envPrefix+"REDIS_ADDR")
	setString(&cfg.Storage.Redis.Password, envPrefix+"REDIS_PASSWORD")
	setString(&cfg.Storage.Postgres.Host, envPrefix+"POSTGRES_HOST")
	setString(&cfg.Storage.Postgres.User, envPrefix+"POSTGRES_USER")
	setString(&cfg.Storage.Postgres.Password, envPrefix+"POSTGRES_PASSWORD")
	setString(&cfg.Storage.Postgres.Database, envPrefix+"POSTGRES_DB")
	setString(&cfg.Storage.DynamoDB.Region, envPrefix+"DYNAMODB_REGION")
	setString(&cfg.Storage.DynamoDB.Endpoint, envPrefix+"DYNAMODB_ENDPOINT")

	setString(&cfg.Model.APIKey, EnvModelAPIKey, envPrefix+"MODEL_API_KEY")
	setString(&cfg.Model.BaseURL, EnvModelBaseURL, envPrefix+"MODEL_BASE_URL")
	setString(&cfg.Model.Deployment, EnvModelDeployment, envPrefix+"MODEL_DEPLOYMENT")
	setString(&cfg.Model.APIVersion, EnvModelAPIVersion, envPrefix+"MODEL_API_VERSION")
	if err := setInt(&cfg.Model.TimeoutSeconds, envPrefix+"MODEL_TIMEOUT_SECONDS"); err != nil {
		return err
	}

	setString(&cfg.Auth.JWTSecret, envPrefix+"JWT_SECRET")

	setString(&cfg.Logging.Level, envPrefix+"LOG_LEVEL")
	setString(&cfg.Logging.Format, envPrefix+"LOG_FORMAT")

	if cfg.Debug {
		cfg.Logging.Level = "debug"
	}

	return nil
}

// setString assigns the value of the last set variable among names
func setString(dst *string, names ...string) {
	for _, name := range names {
		if v, ok := os.LookupEnv(name); ok && v != "" {
			*dst = v
		}
	}
}

func setInt(dst *int, names ...string) error {
	for _, name := range names {
		v, ok := os.LookupEnv(name)
		if !ok || v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid value for %s: %w", name, err)
		}
		*dst = n
	}
	return nil
}

func setBool(dst *bool, names ...string) error {
	for _, name := range names {
		v, ok := os.LookupEnv(name)
		if !ok || v == "" {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid value for %s: %w", name, err)
		}
		*dst = b
	}
	return nil
}
