package psa

// Config holds configuration for the PSA API client.
type Config struct {
	// BaseURL is the root of the PSA REST API.
	BaseURL string `mapstructure:"base_url" default:""`
	// Token is the bearer token used to authenticate.
	Token string `mapstructure:"token" default:""`
	// TimeoutSeconds is the request timeout in seconds.
	TimeoutSeconds int `mapstructure:"timeout_seconds" default:"30"`
}
