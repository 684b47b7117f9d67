package app

import (
	"strings"

	valdclient "github.com/apexlab/apex-backend/internal/clients/vald"
	"github.com/apexlab/apex-backend/internal/platform/envutil"
	"github.com/apexlab/apex-backend/internal/platform/logger"
	"github.com/apexlab/apex-backend/internal/services"
)

type Config struct {
	ServiceName    string
	Environment    string
	Version        string
	AllowedOrigins []string

	Vald        valdclient.Config
	ProfileLink services.ProfileLinkConfig
	Queue       services.ProfileQueueConfig
}

func LoadConfig(log *logger.Logger) Config {
	origins := []string{}
	for _, o := range strings.Split(envutil.String("CORS_ALLOWED_ORIGINS", "http://localhost:3000"), ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}

	cfg := Config{
		ServiceName:    envutil.String("SERVICE_NAME", "apex-backend"),
		Environment:    envutil.String("APP_ENV", "development"),
		Version:        envutil.String("APP_VERSION", "dev"),
		AllowedOrigins: origins,
		Vald:           valdclient.ConfigFromEnv(),
		ProfileLink:    services.ProfileLinkConfigFromEnv(),
		Queue:          services.ProfileQueueConfigFromEnv(),
	}
	log.Info("Config loaded", "service", cfg.ServiceName, "environment", cfg.Environment)
	return cfg
}
