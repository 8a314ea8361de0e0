package config

import (
	"context"
	"fmt"
	"reflect"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"k8s.io/klog/v2"
)

// Config holds defaults for the grade CLI. Flags override these.
type Config struct {
	// Export
	OutputType string  `mapstructure:"GRADE_OUTPUT_TYPE" validate:"oneof=image/jpeg image/png image/bmp image/tiff"`
	Quality    float64 `mapstructure:"GRADE_QUALITY" validate:"gt=0,lte=1"`

	// Presets
	PresetDir string `mapstructure:"GRADE_PRESET_DIR"`

	// Previews
	ThumbHeight int `mapstructure:"GRADE_THUMB_HEIGHT" validate:"gte=1,lte=4096"`
}

// bind environment variables based on mapstructure tags
func bindEnv(c Config) {
	typ := reflect.TypeOf(c)
	for i := 0; i < typ.NumField(); i++ {
		if tag := typ.Field(i).Tag.Get("mapstructure"); tag != "" {
			if err := viper.BindEnv(tag); err != nil {
				klog.Warningf("bind %s: %v", tag, err)
			}
		}
	}
}

// LoadConfig reads the GRADE_* environment, applying defaults.
func LoadConfig(ctx context.Context) (*Config, error) {
	bindEnv(Config{})
	viper.AutomaticEnv()

	// Defaults
	viper.SetDefault("GRADE_OUTPUT_TYPE", "image/jpeg")
	viper.SetDefault("GRADE_QUALITY", 0.92)
	viper.SetDefault("GRADE_THUMB_HEIGHT", 180)

	cfg := Config{}
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	klog.V(1).Infof("loaded configuration: %+v", cfg)

	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}
