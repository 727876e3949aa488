package ecomanager

import "errors"

// ClientConfig holds settings for the EcoManager API client. Per-store
// endpoint and token live on the StoreCredential; this only carries the
// knobs shared by every store.
type ClientConfig struct {
	// PageSize is the number of orders requested per page (upstream caps at 50)
	PageSize int
	// TimeoutSeconds is the HTTP request timeout
	TimeoutSeconds int
}

// Errors for client configuration
var (
	ErrConfigInvalidPageSize = errors.New("ecomanager: page size must be between 1 and 50")
	ErrConfigInvalidTimeout  = errors.New("ecomanager: timeout must be positive")
)

// DefaultClientConfig returns the production defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		PageSize:       20,
		TimeoutSeconds: 30,
	}
}

// Validate validates the client configuration.
func (c *ClientConfig) Validate() error {
	if c.PageSize < 1 || c.PageSize > 50 {
		return ErrConfigInvalidPageSize
	}
	if c.TimeoutSeconds <= 0 {
		return ErrConfigInvalidTimeout
	}
	return nil
}
