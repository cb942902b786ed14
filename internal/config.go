package internal

import (
	"fmt"
	"strings"
	"time"

	"github.com/Netflix/go-env"
	"github.com/samber/lo"
)

type Config struct {
	Host     string `env:"HOST,default=0.0.0.0"`
	Port     int    `env:"PORT,default=8080"`
	LogLevel string `env:"LOG_LEVEL,default=INFO"`

	JWTSecret string `env:"JWT_SECRET,required=true"`
	JWTIssuer string `env:"JWT_ISSUER,default=reading-room"`

	// Empty keeps badger in memory
	BadgerFilepath string `env:"BADGER_FILEPATH"`

	RoomAutoCreate        bool          `env:"ROOM_AUTO_CREATE,default=true"`
	RoomCommandBuffer     int           `env:"ROOM_COMMAND_BUFFER,default=64"`
	ConnectionBufferSize  int           `env:"CONNECTION_BUFFER_SIZE,default=256"`
	MaxMessageRunes       int           `env:"MAX_MESSAGE_RUNES,default=2000"`
	MaxSignalBytes        int           `env:"MAX_SIGNAL_BYTES,default=65536"`
	ChatLogCapacity       int           `env:"CHAT_LOG_CAPACITY,default=500"`
	TypingTTL             time.Duration `env:"TYPING_TTL,default=2s"`
	TypingSweepInterval   time.Duration `env:"TYPING_SWEEP_INTERVAL,default=250ms"`
	RoomIdleTimeout       time.Duration `env:"ROOM_IDLE_TIMEOUT,default=5m"`
	RestartInterval       time.Duration `env:"RESTART_INTERVAL,default=200ms"`
	ArchiveBufferSize     int           `env:"ARCHIVE_BUFFER_SIZE,default=1024"`
	HeartbeatInterval     time.Duration `env:"HEARTBEAT_INTERVAL,default=5s"`
	ChannelSampleInterval time.Duration `env:"CHANNEL_SAMPLE_INTERVAL,default=10s"`
	HistoryPageSize       int           `env:"HISTORY_PAGE_SIZE,default=50"`
	CharReplacement       string        `env:"CHARACTER_REPLACEMENT,default=*"`
	AllowedOrigins        string        `env:"ALLOWED_ORIGINS,default=*"`
}

func LoadConfig() (Config, error) {
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return Config{}, fmt.Errorf("config error: %w", err)
	}
	if config.TypingSweepInterval >= config.TypingTTL {
		return Config{}, fmt.Errorf("TYPING_SWEEP_INTERVAL (%s) must be shorter than TYPING_TTL (%s)",
			config.TypingSweepInterval, config.TypingTTL)
	}
	return config, nil
}

func (c Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func (c Config) Origins() []string {
	return lo.Compact(lo.Map(strings.Split(c.AllowedOrigins, ","), func(o string, _ int) string {
		return strings.TrimSpace(o)
	}))
}

func CharacterRune(str string) (rune, error) {
	r := []rune(str)
	if len(r) != 1 {
		return 0, fmt.Errorf(
			"CHARACTER_REPLACEMENT must be a single character, got %q",
			str,
		)
	}
	return r[0], nil
}
