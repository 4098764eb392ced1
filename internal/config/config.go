package config

import (
	"flag"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Env       string          `yaml:"env" env:"ENV" env-default:"local"`
	HTTP      HTTPConfig      `yaml:"http"`
	Relay     RelayConfig     `yaml:"relay"`
	WebRTC    WebRTCConfig    `yaml:"webrtc"`
	Discovery DiscoveryConfig `yaml:"discovery"`
}

type HTTPConfig struct {
	Address           string        `yaml:"address" env:"HTTP_ADDRESS" env-default:""`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout" env-default:"5s"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout" env-default:"10s"`
	AllowedOrigins    []string      `yaml:"allowed_origins" env:"HTTP_ALLOWED_ORIGINS" env-separator:","`
}

// RelayConfig tunes the websocket plumbing shared by the room relay and the
// peer broker.
type RelayConfig struct {
	WriteWait      time.Duration `yaml:"write_wait" env-default:"10s"`
	PongWait       time.Duration `yaml:"pong_wait" env-default:"60s"`
	MaxMessageSize int64         `yaml:"max_message_size" env-default:"65536"`
	EventBuffer    int           `yaml:"event_buffer" env-default:"32"`
}

type WebRTCConfig struct {
	STUNServers  []string `yaml:"stun_servers" env:"WEBRTC_STUN_SERVERS" env-separator:","`
	TURNServer   string   `yaml:"turn_server" env:"WEBRTC_TURN_SERVER"`
	TURNUser     string   `yaml:"turn_user" env:"WEBRTC_TURN_USER"`
	TURNPassword string   `yaml:"turn_password" env:"WEBRTC_TURN_PASSWORD"`
	// MDNSCandidates hides host addresses behind .local names, for LAN calls
	// between clients that resolve mDNS.
	MDNSCandidates bool `yaml:"mdns_candidates" env:"WEBRTC_MDNS_CANDIDATES"`
}

type DiscoveryConfig struct {
	Enabled  bool   `yaml:"enabled" env:"DISCOVERY_ENABLED"`
	Instance string `yaml:"instance" env:"DISCOVERY_INSTANCE" env-default:"huddle-relay"`
}

// ClientConfig is read from the environment only; the callbot overrides it
// with command line flags.
type ClientConfig struct {
	Env       string        `env:"HUDDLE_ENV" env-default:"local"`
	RelayURL  string        `env:"HUDDLE_RELAY_URL" env-default:"ws://localhost:8080/ws"`
	BrokerURL string        `env:"HUDDLE_BROKER_URL" env-default:"ws://localhost:8080/broker"`
	APIURL    string        `env:"HUDDLE_API_URL" env-default:"http://localhost:8080/api"`
	Reconnect time.Duration `env:"HUDDLE_RECONNECT" env-default:"2s"`
	WebRTC    WebRTCConfig
}

func MustLoad() *Config {
	configPath := fetchConfigPath()
	if configPath == "" {
		panic("config path is empty")
	}

	return MustLoadPath(configPath)
}

func MustLoadPath(configPath string) *Config {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		panic("config file does not exist: " + configPath)
	}

	var cfg Config

	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		panic("cannot read config: " + err.Error())
	}

	cfg.setDefaults()

	return &cfg
}

func LoadClient() (*ClientConfig, error) {
	var cfg ClientConfig
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, err
	}
	cfg.WebRTC.setDefaults()
	return &cfg, nil
}

func fetchConfigPath() string {
	var res string

	flag.StringVar(&res, "config", "", "path to config file")
	flag.Parse()

	if res == "" {
		res = os.Getenv("CONFIG_PATH")
	}

	if res == "" {
		res = "config/local.yaml"
	}

	return res
}

func (c *Config) setDefaults() {
	if c.HTTP.Address == "" {
		c.HTTP.Address = ":8080"
	}
	if len(c.HTTP.AllowedOrigins) == 0 {
		c.HTTP.AllowedOrigins = []string{"http://localhost:3000"}
	}
	if c.Relay.EventBuffer <= 0 {
		c.Relay.EventBuffer = 32
	}
	c.WebRTC.setDefaults()
}

func (c *WebRTCConfig) setDefaults() {
	if len(c.STUNServers) == 0 {
		c.STUNServers = []string{"stun:stun.l.google.com:19302"}
	}
}
