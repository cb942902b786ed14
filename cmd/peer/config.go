package main

import (
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	ServerURL string `envconfig:"PEER_SERVER_URL" default:"ws://localhost:8080/ws"`
	APIURL    string `envconfig:"PEER_API_URL" default:"http://localhost:8080"`
	// PEER_TOKEN is used as is when set, otherwise a token is minted with JWT_SECRET
	Token       string   `envconfig:"PEER_TOKEN"`
	JWTSecret   string   `envconfig:"JWT_SECRET"`
	JWTIssuer   string   `envconfig:"JWT_ISSUER" default:"reading-room"`
	STUNServers []string `envconfig:"PEER_STUN_SERVERS" default:"stun:stun.l.google.com:19302"`
	// PEER_COLOURS enables colorized output
	Colours  bool   `envconfig:"PEER_COLOURS" default:"true"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"WARN"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	return cfg, err
}
