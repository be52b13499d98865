package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/matheuscscp/oauth2-flow-coordinator/internal/constants"
)

// FlowsConfig tunes the timing contracts of the coordinator. All fields
// default to the values the desktop UI was calibrated against.
type FlowsConfig struct {
	// Timeout is the absolute ceiling for a single flow, measured from flow
	// creation regardless of server behavior.
	Timeout time.Duration `yaml:"timeout" json:"timeout"`

	// DeviceTickInterval and BrowserTickInterval set the supervisor cadence
	// per flow kind.
	DeviceTickInterval  time.Duration `yaml:"deviceTickInterval" json:"deviceTickInterval"`
	BrowserTickInterval time.Duration `yaml:"browserTickInterval" json:"browserTickInterval"`

	// SweepInterval and MaxRecordAge control housekeeping of flow records
	// the caller never acknowledged.
	SweepInterval time.Duration `yaml:"sweepInterval" json:"sweepInterval"`
	MaxRecordAge  time.Duration `yaml:"maxRecordAge" json:"maxRecordAge"`
}

// UnmarshalYAML accepts Go duration strings ("2m", "30s") for all fields.
func (f *FlowsConfig) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		Timeout             string `yaml:"timeout"`
		DeviceTickInterval  string `yaml:"deviceTickInterval"`
		BrowserTickInterval string `yaml:"browserTickInterval"`
		SweepInterval       string `yaml:"sweepInterval"`
		MaxRecordAge        string `yaml:"maxRecordAge"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	for _, field := range []struct {
		name string
		s    string
		dst  *time.Duration
	}{
		{"timeout", raw.Timeout, &f.Timeout},
		{"deviceTickInterval", raw.DeviceTickInterval, &f.DeviceTickInterval},
		{"browserTickInterval", raw.BrowserTickInterval, &f.BrowserTickInterval},
		{"sweepInterval", raw.SweepInterval, &f.SweepInterval},
		{"maxRecordAge", raw.MaxRecordAge, &f.MaxRecordAge},
	} {
		if field.s == "" {
			continue
		}
		d, err := time.ParseDuration(field.s)
		if err != nil {
			return fmt.Errorf("invalid duration for flows.%s: %w", field.name, err)
		}
		*field.dst = d
	}
	return nil
}

func (f *FlowsConfig) applyDefaults() {
	if f.Timeout == 0 {
		f.Timeout = constants.FlowTimeout
	}
	if f.DeviceTickInterval == 0 {
		f.DeviceTickInterval = constants.DeviceTickInterval
	}
	if f.BrowserTickInterval == 0 {
		f.BrowserTickInterval = constants.BrowserTickInterval
	}
	if f.SweepInterval == 0 {
		f.SweepInterval = constants.SweepInterval
	}
	if f.MaxRecordAge == 0 {
		f.MaxRecordAge = constants.MaxRecordAge
	}
}

func (f *FlowsConfig) validate() error {
	for name, d := range map[string]time.Duration{
		"timeout":             f.Timeout,
		"deviceTickInterval":  f.DeviceTickInterval,
		"browserTickInterval": f.BrowserTickInterval,
		"sweepInterval":       f.SweepInterval,
		"maxRecordAge":        f.MaxRecordAge,
	} {
		if d < 0 {
			return fmt.Errorf("flows.%s must not be negative", name)
		}
	}
	if f.MaxRecordAge < f.Timeout {
		return fmt.Errorf("flows.maxRecordAge must not be shorter than flows.timeout")
	}
	return nil
}
