// Package config loads process configuration from an optional file and
// TRAFFIC_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/ironsheep/traffic-violations-mcp/internal/violation"
)

// EnvPrefix prefixes every environment override, e.g. TRAFFIC_LOG_LEVEL.
const EnvPrefix = "TRAFFIC"

// Detector and OCR backend names.
const (
	DetectorHTTP      = "http"
	DetectorSynthetic = "synthetic"

	OCRTesseract       = "tesseract"
	OCRPlateRecognizer = "platerecognizer"
	OCRNone            = "none"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

type Config struct {
	Log      LogConfig      `mapstructure:"log"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Detector DetectorConfig `mapstructure:"detector"`
	OCR      OCRConfig      `mapstructure:"ocr"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	// Fines overrides the default fine schedule, keyed by violation name.
	Fines map[string]int `mapstructure:"fines"`
	Store StoreConfig    `mapstructure:"store"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

type HTTPConfig struct {
	Addr            string        `mapstructure:"addr"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
	MaxUploadBytes  int64         `mapstructure:"max_upload_bytes"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DetectorConfig struct {
	Backend    string        `mapstructure:"backend"`
	Endpoint   string        `mapstructure:"endpoint"`
	Confidence float64       `mapstructure:"confidence"`
	IoU        float64       `mapstructure:"iou"`
	Timeout    time.Duration `mapstructure:"timeout"`
	Seed       uint64        `mapstructure:"seed"`
}

type OCRConfig struct {
	Backend  string        `mapstructure:"backend"`
	Language string        `mapstructure:"language"`
	APIURL   string        `mapstructure:"api_url"`
	Token    string        `mapstructure:"token"`
	Regions  []string      `mapstructure:"regions"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type PipelineConfig struct {
	RiderMargin        int           `mapstructure:"rider_margin"`
	PlateMargin        int           `mapstructure:"plate_margin"`
	RequestTimeout     time.Duration `mapstructure:"request_timeout"`
	DefaultVehicleType string        `mapstructure:"default_vehicle_type"`
}

type StoreConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.cors_origins", []string{"*"})
	v.SetDefault("http.max_upload_bytes", 20<<20)
	v.SetDefault("http.shutdown_timeout", 10*time.Second)

	v.SetDefault("detector.backend", DetectorSynthetic)
	v.SetDefault("detector.endpoint", "")
	v.SetDefault("detector.confidence", 0.25)
	v.SetDefault("detector.iou", 0.45)
	v.SetDefault("detector.timeout", 30*time.Second)
	v.SetDefault("detector.seed", 1)

	v.SetDefault("ocr.backend", OCRTesseract)
	v.SetDefault("ocr.language", "eng")
	v.SetDefault("ocr.api_url", "")
	v.SetDefault("ocr.token", "")
	v.SetDefault("ocr.regions", []string{})
	v.SetDefault("ocr.timeout", 10*time.Second)

	v.SetDefault("pipeline.rider_margin", 10)
	v.SetDefault("pipeline.plate_margin", 50)
	v.SetDefault("pipeline.request_timeout", 60*time.Second)
	v.SetDefault("pipeline.default_vehicle_type", "Motorcycle")

	v.SetDefault("fines", map[string]int{})

	v.SetDefault("store.enabled", false)
	v.SetDefault("store.path", "traffic.db")
}

// Load reads configuration. path may be empty, in which case only defaults
// and the environment apply. The result is validated.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks ranges, backend names and the fine schedule.
func (c *Config) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...)))
	}

	if c.Pipeline.RiderMargin < 0 {
		bad("pipeline.rider_margin must be >= 0, got %d", c.Pipeline.RiderMargin)
	}
	if c.Pipeline.PlateMargin < 0 {
		bad("pipeline.plate_margin must be >= 0, got %d", c.Pipeline.PlateMargin)
	}
	if c.Pipeline.RequestTimeout <= 0 {
		bad("pipeline.request_timeout must be positive")
	}
	if c.Detector.Confidence < 0 || c.Detector.Confidence > 1 {
		bad("detector.confidence must be in [0,1], got %g", c.Detector.Confidence)
	}
	if c.Detector.IoU < 0 || c.Detector.IoU > 1 {
		bad("detector.iou must be in [0,1], got %g", c.Detector.IoU)
	}

	switch c.Detector.Backend {
	case DetectorHTTP:
		if c.Detector.Endpoint == "" {
			bad("detector.endpoint is required for the http backend")
		}
	case DetectorSynthetic:
	default:
		bad("unknown detector.backend %q", c.Detector.Backend)
	}

	switch c.OCR.Backend {
	case OCRTesseract, OCRPlateRecognizer, OCRNone:
	default:
		bad("unknown ocr.backend %q", c.OCR.Backend)
	}

	if c.Store.Enabled && c.Store.Path == "" {
		bad("store.path is required when the store is enabled")
	}

	if _, err := c.FineTable(); err != nil {
		errs = append(errs, fmt.Errorf("%w: fines: %w", ErrInvalidConfig, err))
	}

	return errors.Join(errs...)
}

// FineTable builds the fine schedule from the defaults and Fines overrides.
func (c *Config) FineTable() (*violation.FineTable, error) {
	return violation.NewFineTable(c.Fines)
}
