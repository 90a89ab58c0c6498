package config

import (
	"fmt"
	"os"

	domainservice "caseindex/internal/domain/service"

	"gopkg.in/yaml.v3"
)

// LoadStrategyProfile reads a YAML chunking strategy profile from disk.
// An empty path returns the built-in profile.
func LoadStrategyProfile(path string) (domainservice.StrategyProfile, error) {
	if path == "" {
		return domainservice.DefaultStrategyProfile(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return domainservice.StrategyProfile{}, fmt.Errorf("read strategy profile: %w", err)
	}

	profile := domainservice.DefaultStrategyProfile()
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return domainservice.StrategyProfile{}, fmt.Errorf("parse strategy profile: %w", err)
	}

	return profile, nil
}
