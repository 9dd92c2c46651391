package config

import (
	"flag"
	"fmt"
	"io/ioutil"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"
	"moff.io/walletconnect/internal/walletconnect/protocol"
	"moff.io/walletconnect/internal/walletconnect/uri"
	"moff.io/walletconnect/pkg/errors"
)

// RandomBridge selects one of the public *.bridge.walletconnect.org servers.
const RandomBridge = "random"

const (
	defaultRequestTimeoutSec   = 300
	defaultHandshakeTimeoutSec = 300
	defaultMaxPendingRequests  = 64
	defaultPublishRate         = 10
	defaultLogLevel            = 1
	defaultUserAgent           = "moff-walletconnect/1.0"
)

// DBCredential struct
type DBCredential struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	Port     string `yaml:"port"`
	Database string `yaml:"database"`
}

// GetRedisAddress prints redis credential info.
func (c *DBCredential) GetRedisAddress() string {
	return fmt.Sprintf("%v:%v", c.Address, c.Port)
}

func (c *DBCredential) Enabled() bool {
	return c.Address != ""
}

// DB returns the numeric redis database, 0 when unset.
func (c *DBCredential) DB() int {
	db, _ := strconv.ParseInt(c.Database, 10, 64)
	return int(db)
}

type ClientMeta struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	URL         string   `yaml:"url"`
	Icons       []string `yaml:"icons"`
}

type HTTP struct {
	Listen string `yaml:"listen"`
	// RequestsPerMinute limits each remote address when redis is configured. Zero disables it.
	RequestsPerMinute int `yaml:"requests_per_minute"`
}

// Configuration struct
type Configuration struct {
	BridgeURL           string       `yaml:"bridge_url"`
	ChainID             uint64       `yaml:"chain_id"`
	LogLevel            *int         `yaml:"log_level"`
	UserAgent           string       `yaml:"user_agent"`
	RequestTimeoutSec   int          `yaml:"request_timeout_sec"`
	HandshakeTimeoutSec int          `yaml:"handshake_timeout_sec"`
	MaxPendingRequests  int          `yaml:"max_pending_requests"`
	PublishRate         int          `yaml:"publish_rate"`
	ClientMeta          ClientMeta   `yaml:"client_meta"`
	SentryDSN           string       `yaml:"sentry_dsn"`
	LarkAlarmWebhook    string       `yaml:"lark_alarm_webhook"`
	RedisCredential     DBCredential `yaml:"redis"`
	HTTP                HTTP         `yaml:"http"`
}

// Defaults fills every zero field with its default.
func (c *Configuration) Defaults() {
	if c.BridgeURL == "" {
		c.BridgeURL = uri.DefaultBridgeURL
	}
	if c.LogLevel == nil {
		lvl := defaultLogLevel
		c.LogLevel = &lvl
	}
	if c.UserAgent == "" {
		c.UserAgent = defaultUserAgent
	}
	if c.RequestTimeoutSec <= 0 {
		c.RequestTimeoutSec = defaultRequestTimeoutSec
	}
	if c.HandshakeTimeoutSec <= 0 {
		c.HandshakeTimeoutSec = defaultHandshakeTimeoutSec
	}
	if c.MaxPendingRequests <= 0 {
		c.MaxPendingRequests = defaultMaxPendingRequests
	}
	if c.PublishRate <= 0 {
		c.PublishRate = defaultPublishRate
	}
	if c.ClientMeta.Name == "" {
		c.ClientMeta.Name = "moff"
	}
	if c.ClientMeta.URL == "" {
		c.ClientMeta.URL = "https://moff.io"
	}
	if c.ClientMeta.Icons == nil {
		c.ClientMeta.Icons = []string{}
	}
}

// Bridge resolves bridge_url, picking a random public bridge for "random".
func (c *Configuration) Bridge() (*url.URL, error) {
	raw := c.BridgeURL
	if raw == RandomBridge {
		raw = uri.RandomBridgeURL()
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return nil, errors.Wrapf(uri.ErrInvalidBridge, "bridge_url %q", raw)
	}
	return u, nil
}

func (c *Configuration) Meta() protocol.Metadata {
	return protocol.Metadata{
		Description: c.ClientMeta.Description,
		URL:         c.ClientMeta.URL,
		Icons:       c.ClientMeta.Icons,
		Name:        c.ClientMeta.Name,
	}
}

// Chain returns the requested chain id, nil to let the wallet choose.
func (c *Configuration) Chain() *uint64 {
	if c.ChainID == 0 {
		return nil
	}
	id := c.ChainID
	return &id
}

func (c *Configuration) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSec) * time.Second
}

func (c *Configuration) HandshakeTimeout() time.Duration {
	return time.Duration(c.HandshakeTimeoutSec) * time.Second
}

// Load reads the YAML file at path and applies defaults.
func Load(path string) (*Configuration, error) {
	dat, err := ioutil.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(err, "file %s does not exist", path)
		}
		return nil, errors.Wrap(err, "read config")
	}
	t := Configuration{}
	if err := yaml.Unmarshal(dat, &t); err != nil {
		return nil, errors.Wrap(err, "fail to decode config")
	}
	t.Defaults()
	return &t, nil
}

var Global *Configuration

// Read reads configuration information from yml.
func Read() {
	configFilePath := flag.String("config-path", "internal/config/config.yml", "The path to the configuration file")
	flag.Parse()
	logrus.Infof("Loading configuration file from %s", *configFilePath)
	globalConfig, err := Load(*configFilePath)
	if err != nil {
		logrus.Fatal(err)
	}
	Global = globalConfig
}
