// Copyright (c) 2024-2026 Aurix AI
//
// Licensed under GPL-2.0 with Aurix Additional Terms.
// See LICENSE.md for commercial usage.

package config

import (
	"log"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// AppConfig is the gateway application configuration, loaded from the
// environment (or an .env file) via viper.
type AppConfig struct {
	Name     string `mapstructure:"service_name" validate:"required"`
	Version  string `mapstructure:"version" validate:"required"`
	Host     string `mapstructure:"host" validate:"required"`
	Port     int    `mapstructure:"port" validate:"required"`
	LogLevel string `mapstructure:"log_level" validate:"required"`
	LogFile  string `mapstructure:"log_file"`

	// Provider credentials for the three pipeline capabilities.
	DeepgramApiKey   string `mapstructure:"deepgram_api_key"`
	ElevenLabsApiKey string `mapstructure:"elevenlabs_api_key"`
	OpenAIApiKey     string `mapstructure:"openai_api_key"`

	// ProfileHost is the agent-configuration service. Empty means the
	// gateway serves the static profile defined below.
	ProfileHost string `mapstructure:"profile_host"`

	// DefaultVoiceID is used when an agent profile does not pin a voice.
	DefaultVoiceID string `mapstructure:"default_voice_id"`

	// CacheCapacity bounds the shared response cache (entries).
	CacheCapacity int `mapstructure:"cache_capacity" validate:"required"`

	// WarmPhrases are synthesized into the response cache at boot,
	// comma-separated. Always includes the apology fallback.
	WarmPhrases string `mapstructure:"warm_phrases"`
}

// InitConfig reads configuration from the environment, with .env file
// support for local development.
func InitConfig() (*viper.Viper, error) {
	vConfig := viper.NewWithOptions(viper.KeyDelimiter("__"))

	vConfig.AddConfigPath(".")
	vConfig.SetConfigName(".env")
	if path := os.Getenv("ENV_PATH"); path != "" {
		log.Printf("env path %v", path)
		vConfig.SetConfigFile(path)
	}
	vConfig.SetConfigType("env")
	vConfig.AutomaticEnv()

	setDefault(vConfig)
	if err := vConfig.ReadInConfig(); err != nil && !os.IsNotExist(err) {
		log.Printf("Reading from env variables.")
	}

	return vConfig, nil
}

func setDefault(v *viper.Viper) {
	v.SetDefault("SERVICE_NAME", "voice-gateway")
	v.SetDefault("VERSION", "0.0.1")
	v.SetDefault("HOST", "0.0.0.0")
	v.SetDefault("PORT", 8087)
	v.SetDefault("LOG_LEVEL", "debug")
	v.SetDefault("LOG_FILE", "")

	v.SetDefault("DEEPGRAM_API_KEY", "")
	v.SetDefault("ELEVENLABS_API_KEY", "")
	v.SetDefault("OPENAI_API_KEY", "")

	v.SetDefault("PROFILE_HOST", "")
	v.SetDefault("DEFAULT_VOICE_ID", "")

	v.SetDefault("CACHE_CAPACITY", 256)
	v.SetDefault("WARM_PHRASES", "okay.,sure.,got it.,one moment please.")
}

// GetApplicationConfig unmarshals and validates the application config.
func GetApplicationConfig(v *viper.Viper) (*AppConfig, error) {
	var config AppConfig
	if err := v.Unmarshal(&config); err != nil {
		log.Printf("%+v\n", err)
		return nil, err
	}

	validate := validator.New()
	if err := validate.Struct(&config); err != nil {
		log.Printf("%+v\n", err)
		return nil, err
	}
	return &config, nil
}
