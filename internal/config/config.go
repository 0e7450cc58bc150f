package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix                = "GALLERY"
	defaultStoreRoot         = "images"
	defaultBackendExecutable = "./photo_gallery"
	defaultBackendTimeout    = 30 * time.Second
	defaultJournalPath       = "gallery-journal.db"
	defaultLogLevel          = "info"
	defaultHTTPAddress       = "127.0.0.1:8080"
)

// AppConfig captures runtime configuration for the gallery engine and its outer surfaces.
type AppConfig struct {
	StoreRoot         string
	BackendExecutable string
	BackendTimeout    time.Duration
	JournalPath       string
	LogLevel          string
	HTTPAddress       string
	AllowedOrigins    []string
	Minio             MinioConfig
}

// MinioConfig holds credentials for s3:// export targets.
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("store.root", defaultStoreRoot)
	configViper.SetDefault("backend.executable", defaultBackendExecutable)
	configViper.SetDefault("backend.timeout", defaultBackendTimeout)
	configViper.SetDefault("journal.path", defaultJournalPath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("http.allowed_origins", []string{})
	configViper.SetDefault("export.minio.endpoint", "")
	configViper.SetDefault("export.minio.access_key", "")
	configViper.SetDefault("export.minio.secret_key", "")
	configViper.SetDefault("export.minio.use_ssl", false)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		StoreRoot:         strings.TrimSpace(configViper.GetString("store.root")),
		BackendExecutable: strings.TrimSpace(configViper.GetString("backend.executable")),
		BackendTimeout:    configViper.GetDuration("backend.timeout"),
		JournalPath:       strings.TrimSpace(configViper.GetString("journal.path")),
		LogLevel:          configViper.GetString("log.level"),
		HTTPAddress:       configViper.GetString("http.address"),
		AllowedOrigins:    splitAndTrim(configViper.GetStringSlice("http.allowed_origins")),
		Minio: MinioConfig{
			Endpoint:  strings.TrimSpace(configViper.GetString("export.minio.endpoint")),
			AccessKey: configViper.GetString("export.minio.access_key"),
			SecretKey: configViper.GetString("export.minio.secret_key"),
			UseSSL:    configViper.GetBool("export.minio.use_ssl"),
		},
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if c.StoreRoot == "" {
		return fmt.Errorf("store.root is required")
	}
	if c.BackendExecutable == "" {
		return fmt.Errorf("backend.executable is required")
	}
	if c.BackendTimeout <= 0 {
		return fmt.Errorf("backend.timeout must be positive, got %s", c.BackendTimeout)
	}
	return nil
}

// splitAndTrim accepts both list values and a single comma separated env value.
func splitAndTrim(values []string) []string {
	var out []string
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			part = strings.TrimSpace(part)
			if part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
