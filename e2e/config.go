package e2e

import (
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// E2E_SERVER_URL is the websocket endpoint of a running server, the suite is skipped when unset
	ServerURL string `envconfig:"E2E_SERVER_URL"`
	APIURL    string `envconfig:"E2E_API_URL" default:"http://localhost:8080"`
	// JWT_SECRET must match the server one, tokens are minted locally
	JWTSecret string `envconfig:"JWT_SECRET"`
	JWTIssuer string `envconfig:"JWT_ISSUER" default:"reading-room"`
	// E2E_DEBUG_JSON dumps every received event as JSON
	DebugJSON bool `envconfig:"E2E_DEBUG_JSON" default:"false"`
	// E2E_COLOURS enables colorized output for better log readability
	Colours bool `envconfig:"E2E_COLOURS" default:"true"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	return cfg, err
}
