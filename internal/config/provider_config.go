package config

import "fmt"

// ProviderConfig describes an LLM API vendor authorized through the OAuth
// 2.0 Device Authorization Grant. Endpoints may be omitted for vendors the
// coordinator knows out of the box; the provider catalog fills them in.
type ProviderConfig struct {
	ID            string   `yaml:"id" json:"id"`
	ClientID      string   `yaml:"clientID" json:"clientID"`
	DeviceAuthURL string   `yaml:"deviceAuthURL" json:"deviceAuthURL"`
	TokenURL      string   `yaml:"tokenURL" json:"tokenURL"`
	Scopes        []string `yaml:"scopes" json:"scopes"`
}

func (p *ProviderConfig) validateAndInitialize() error {
	if p.ID == "" {
		return fmt.Errorf("id must be set")
	}
	if p.Scopes == nil {
		p.Scopes = []string{}
	}
	// Endpoint completeness is checked by the provider catalog, which knows
	// the built-in defaults per vendor.
	if (p.DeviceAuthURL == "") != (p.TokenURL == "") {
		return fmt.Errorf("deviceAuthURL and tokenURL must be set together")
	}
	return nil
}
