package scoring

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/commitments-backend/internal/logger"
	"github.com/yungbote/commitments-backend/internal/utils"
)

// Config tunes the scorer per deployment. Defaults ship in code, a yaml file
// (SCORING_CONFIG_PATH) overrides them, individual env vars override the
// file. The weights are configuration, not law.
type Config struct {
	TitleWeight        float64 `yaml:"title_weight"`
	TemporalWeight     float64 `yaml:"temporal_weight"`
	ParticipantWeight  float64 `yaml:"participant_weight"`
	AutoLinkThreshold  float64 `yaml:"auto_link_threshold"`
	TemporalMarginDays int     `yaml:"temporal_margin_days"`
}

func DefaultConfig() Config {
	return Config{
		TitleWeight:        0.4,
		TemporalWeight:     0.3,
		ParticipantWeight:  0.3,
		AutoLinkThreshold:  0.70,
		TemporalMarginDays: 14,
	}
}

// Load resolves the effective config: defaults, then the yaml file at path
// (if any), then env overrides. The result is validated.
func Load(path string, log *logger.Logger) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read scoring config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("parse scoring config %s: %w", path, err)
		}
		if log != nil {
			log.Info("Loaded scoring config file", "path", path)
		}
	}
	cfg.TitleWeight = utils.GetEnvAsFloat("SCORING_TITLE_WEIGHT", cfg.TitleWeight, log)
	cfg.TemporalWeight = utils.GetEnvAsFloat("SCORING_TEMPORAL_WEIGHT", cfg.TemporalWeight, log)
	cfg.ParticipantWeight = utils.GetEnvAsFloat("SCORING_PARTICIPANT_WEIGHT", cfg.ParticipantWeight, log)
	cfg.AutoLinkThreshold = utils.GetEnvAsFloat("SCORING_AUTO_LINK_THRESHOLD", cfg.AutoLinkThreshold, log)
	cfg.TemporalMarginDays = utils.GetEnvAsInt("SCORING_TEMPORAL_MARGIN_DAYS", cfg.TemporalMarginDays, log)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.TitleWeight < 0 || c.TemporalWeight < 0 || c.ParticipantWeight < 0 {
		return fmt.Errorf("scoring weights must be non-negative")
	}
	if c.TitleWeight+c.TemporalWeight+c.ParticipantWeight <= 0 {
		return fmt.Errorf("scoring weights must not all be zero")
	}
	if c.AutoLinkThreshold < 0 || c.AutoLinkThreshold > 1 {
		return fmt.Errorf("auto_link_threshold must be in [0,1], got %v", c.AutoLinkThreshold)
	}
	if c.TemporalMarginDays <= 0 {
		return fmt.Errorf("temporal_margin_days must be positive, got %d", c.TemporalMarginDays)
	}
	return nil
}
