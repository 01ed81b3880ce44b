package server

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"battl3ship/protocol"
)

// Config 服务运行参数，运行期间不变
type Config struct {
	Addr     string // 游戏 TCP 端口
	HTTPAddr string // 管理与 WebSocket 端口，空表示不启动
	Upstream string // 网关拨号的游戏服地址
	Password string // 空表示不需要密码

	MaxConnections int
	MaxPerAddress  int
	MaxNameLength  int

	Stream           protocol.StreamConfig
	MailboxWait      time.Duration // 写协程空等邮箱的间隔
	HandshakeTimeout time.Duration // 等待首个 Hello 的上限

	LogFile    string
	LogLevel   string
	LogConsole bool
}

func DefaultConfig() Config {
	return Config{
		Addr:             "127.0.0.1:3333",
		HTTPAddr:         ":8080",
		Upstream:         "127.0.0.1:3333",
		MaxConnections:   256,
		MaxPerAddress:    128,
		MaxNameLength:    30,
		Stream:           protocol.DefaultStreamConfig(),
		MailboxWait:      5 * time.Second,
		HandshakeTimeout: 30 * time.Second,
		LogFile:          "battl3ship.log",
		LogLevel:         "info",
	}
}

type fileConfig struct {
	Addr             string `toml:"addr"`
	HTTPAddr         string `toml:"http_addr"`
	Upstream         string `toml:"upstream"`
	Password         string `toml:"password"`
	MaxConnections   int    `toml:"max_connections"`
	MaxPerAddress    int    `toml:"max_connections_per_address"`
	MaxNameLength    int    `toml:"max_name_length"`
	LengthDigits     int    `toml:"length_digits"`
	MaxBodyLen       int    `toml:"max_body_length"`
	ReadTimeout      string `toml:"read_timeout"`
	WriteTimeout     string `toml:"write_timeout"`
	MailboxWait      string `toml:"mailbox_wait"`
	HandshakeTimeout string `toml:"handshake_timeout"`
	LogFile          string `toml:"log_file"`
	LogLevel         string `toml:"log_level"`
	LogConsole       bool   `toml:"log_console"`
}

// LoadConfig 读取 TOML 配置，未出现的键保留默认值。path 为空时直接返回默认值。
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("load config: unknown keys %v", undecoded)
	}

	if meta.IsDefined("addr") {
		cfg.Addr = strings.TrimSpace(raw.Addr)
	}
	if meta.IsDefined("http_addr") {
		cfg.HTTPAddr = strings.TrimSpace(raw.HTTPAddr)
	}
	if meta.IsDefined("upstream") {
		cfg.Upstream = strings.TrimSpace(raw.Upstream)
	}
	if meta.IsDefined("password") {
		cfg.Password = raw.Password
	}
	if meta.IsDefined("max_connections") {
		cfg.MaxConnections = raw.MaxConnections
	}
	if meta.IsDefined("max_connections_per_address") {
		cfg.MaxPerAddress = raw.MaxPerAddress
	}
	if meta.IsDefined("max_name_length") {
		cfg.MaxNameLength = raw.MaxNameLength
	}
	if meta.IsDefined("length_digits") {
		cfg.Stream.LengthDigits = raw.LengthDigits
	}
	if meta.IsDefined("max_body_length") {
		cfg.Stream.MaxBodyLen = raw.MaxBodyLen
	}

	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"read_timeout", raw.ReadTimeout, &cfg.Stream.ReadTimeout},
		{"write_timeout", raw.WriteTimeout, &cfg.Stream.WriteTimeout},
		{"mailbox_wait", raw.MailboxWait, &cfg.MailboxWait},
		{"handshake_timeout", raw.HandshakeTimeout, &cfg.HandshakeTimeout},
	}
	for _, d := range durations {
		if !meta.IsDefined(d.key) {
			continue
		}
		v, err := time.ParseDuration(strings.TrimSpace(d.raw))
		if err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", d.key, err)
		}
		*d.dst = v
	}

	if meta.IsDefined("log_file") {
		cfg.LogFile = strings.TrimSpace(raw.LogFile)
	}
	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}
	if meta.IsDefined("log_console") {
		cfg.LogConsole = raw.LogConsole
	}

	return cfg, ValidateConfig(cfg)
}

// ValidateConfig 检查参数是否可用
func ValidateConfig(cfg Config) error {
	if cfg.Addr == "" {
		return errors.New("config: addr is required")
	}
	if cfg.MaxConnections < 1 || cfg.MaxPerAddress < 1 {
		return fmt.Errorf("config: connection limits must be positive (got %d, %d)", cfg.MaxConnections, cfg.MaxPerAddress)
	}
	if cfg.MaxNameLength < 1 {
		return fmt.Errorf("config: max name length must be positive (got %d)", cfg.MaxNameLength)
	}
	if err := cfg.Stream.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if cfg.MailboxWait <= 0 || cfg.HandshakeTimeout <= 0 {
		return errors.New("config: mailbox wait and handshake timeout must be positive")
	}
	return nil
}
