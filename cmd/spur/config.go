package main

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const defaultModel = "openai:gpt-4o"

// config is resolved from flags, SPUR_* environment variables and an
// optional YAML file, in that order of precedence.
type config struct {
	LogLevel     string `mapstructure:"log_level"`
	LogFormat    string `mapstructure:"log_format"`
	DefaultModel string `mapstructure:"default_model"`
}

var settings = config{LogLevel: "info", LogFormat: "text", DefaultModel: defaultModel}

func addConfigFlags(root *cobra.Command) {
	pf := root.PersistentFlags()
	pf.String("config", "", "path to a YAML config file")
	pf.String("env-file", "", "path to a .env file loaded before reading SPUR_* variables")
	pf.String("log-level", "info", "log level: debug, info, warn or error")
	pf.String("log-format", "text", "log format: text or json")
	pf.String("model", defaultModel, "default LLM model (provider:model-id) for previews")
}

func loadConfig(root *cobra.Command) (config, error) {
	pf := root.PersistentFlags()
	v := viper.New()
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("default_model", defaultModel)

	if envFile, _ := pf.GetString("env-file"); envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return config{}, fmt.Errorf("load env file: %w", err)
		}
	}
	if path, _ := pf.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return config{}, fmt.Errorf("read config: %w", err)
		}
	}

	v.SetEnvPrefix("SPUR")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	for key, flag := range map[string]string{
		"log_level":     "log-level",
		"log_format":    "log-format",
		"default_model": "model",
	} {
		if err := v.BindPFlag(key, pf.Lookup(flag)); err != nil {
			return config{}, fmt.Errorf("bind flag %s: %w", flag, err)
		}
	}

	var cfg config
	if err := v.Unmarshal(&cfg); err != nil {
		return config{}, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}
