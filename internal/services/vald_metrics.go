package services

import (
	"embed"
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	types "github.com/apexlab/apex-backend/internal/domain"
)

const valdMetricsEnv = "VALD_METRICS_YAML"

//go:embed vald_metrics.yaml
var valdMetricsFS embed.FS

// MetricSpec is one tracked metric of a test type. Column is the ForceDecks
// field name on the raw test; LookupColumn (when set) is the reference-table
// column it ranks against.
type MetricSpec struct {
	Column       string `yaml:"column"`
	DisplayName  string `yaml:"display_name"`
	LookupColumn string `yaml:"lookup_column"`
}

// ReferenceColumn is the percentile_lookup column this metric ranks against.
func (m MetricSpec) ReferenceColumn() string {
	if strings.TrimSpace(m.LookupColumn) != "" {
		return m.LookupColumn
	}
	return m.Column
}

type metricsConfig struct {
	TestTypes map[string]struct {
		Metrics []MetricSpec `yaml:"metrics"`
	} `yaml:"test_types"`
}

var (
	metricsOnce sync.Once
	metricsCfg  metricsConfig
	metricsErr  error
)

func loadMetricsConfig() (metricsConfig, error) {
	metricsOnce.Do(func() {
		raw, err := readMetricsYAML()
		if err != nil {
			metricsErr = err
			return
		}
		var cfg metricsConfig
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			metricsErr = fmt.Errorf("parse vald metrics yaml: %w", err)
			return
		}
		if len(cfg.TestTypes) == 0 {
			metricsErr = fmt.Errorf("vald metrics yaml defines no test types")
			return
		}
		for tt, entry := range cfg.TestTypes {
			if !types.TestType(tt).Valid() {
				metricsErr = fmt.Errorf("vald metrics yaml names unknown test type %q", tt)
				return
			}
			for _, m := range entry.Metrics {
				if strings.TrimSpace(m.Column) == "" || strings.TrimSpace(m.DisplayName) == "" {
					metricsErr = fmt.Errorf("vald metrics yaml: test type %q has a metric missing column or display_name", tt)
					return
				}
			}
		}
		metricsCfg = cfg
	})
	return metricsCfg, metricsErr
}

func readMetricsYAML() ([]byte, error) {
	if path := strings.TrimSpace(os.Getenv(valdMetricsEnv)); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s override: %w", valdMetricsEnv, err)
		}
		return raw, nil
	}
	return valdMetricsFS.ReadFile("vald_metrics.yaml")
}

// TrackedMetrics returns the composite-metric whitelist for a test type.
// Unknown test types track nothing.
func TrackedMetrics(testType types.TestType) ([]MetricSpec, error) {
	cfg, err := loadMetricsConfig()
	if err != nil {
		return nil, err
	}
	entry, ok := cfg.TestTypes[string(testType)]
	if !ok {
		return nil, nil
	}
	return entry.Metrics, nil
}

// LookupColumnFor resolves the reference-table column for a stored history
// row by its display name, for re-ranking existing rows.
func LookupColumnFor(testType types.TestType, displayName string) (string, bool) {
	cfg, err := loadMetricsConfig()
	if err != nil {
		return "", false
	}
	entry, ok := cfg.TestTypes[string(testType)]
	if !ok {
		return "", false
	}
	for _, m := range entry.Metrics {
		if m.DisplayName == displayName {
			return m.ReferenceColumn(), true
		}
	}
	return "", false
}
