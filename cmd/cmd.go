package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/frahmantamala/payment-gateway/internal"
	"github.com/frahmantamala/payment-gateway/pkg/logger"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "payment-gateway",
	Short: "Payment Gateway",
	Long:  `Orders, UPI and card payments, refunds and signed merchant webhooks, processed by background workers.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// loadConfig reads config.yml, or plain environment variables in container deployments,
// then fills defaults, validates, and initializes the process logger.
func loadConfig() (*internal.Config, error) {
	var cfg *internal.Config

	if os.Getenv("APP_ENV") == "production" || os.Getenv("DOCKER_ENV") == "true" {
		cfg = internal.LoadConfigFromEnv()
	} else {
		fileCfg, err := loadConfigFile(configPath)
		if err != nil {
			return nil, err
		}
		cfg = fileCfg
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("error validating config: %w", err)
	}

	logger.Init(cfg.Environment, cfg.Observability.Logging.Format, cfg.Observability.Logging.Level)
	return cfg, nil
}

func loadConfigFile(path string) (*internal.Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.SetConfigName("config")
		v.SetConfigType("yml")
	}
	v.SetEnvPrefix("ENV")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setConfigDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config: %w", err)
	}

	var cfg internal.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	return &cfg, nil
}

// setConfigDefaults covers the switches whose zero value is not the default.
// Registering them also lets AutomaticEnv override keys absent from the file.
func setConfigDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")
	v.SetDefault("processing.test_mode", false)
	v.SetDefault("processing.test_payment_success", true)
	v.SetDefault("webhook.test_intervals", false)
	v.SetDefault("seed.test_merchant", true)
	v.SetDefault("http_server.validate_requests", true)
	v.SetDefault("queue.driver", "redis")
	v.SetDefault("database.source", "")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.url", "")
	v.SetDefault("security.jwt_secret", "")
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ./config.yml)")
}
