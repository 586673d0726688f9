// 文件: pkg/config/config.go
// 服务配置: YAML 文件 + .env + 环境变量覆盖
//
// 优先级: 环境变量 > YAML 文件 > Default()

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"deriv.com/pkg/logger"
	"deriv.com/pkg/market"
	"deriv.com/pkg/option"
	"deriv.com/pkg/quoter"
)

// 环境变量
const (
	EnvMySQLDSN     = "PRICER_MYSQL_DSN"
	EnvRedisAddr    = "PRICER_REDIS_ADDR"
	EnvNATSURL      = "PRICER_NATS_URL"
	EnvKafkaBrokers = "PRICER_KAFKA_BROKERS" // 逗号分隔
	EnvLogLevel     = "PRICER_LOG_LEVEL"
)

var ErrInvalidConfig = errors.New("invalid config")

// Config 服务完整配置
type Config struct {
	Log         logger.Config            `yaml:"log"`
	Pricer      PricerConfig             `yaml:"pricer"`
	Service     ServiceConfig            `yaml:"service"`
	Feed        FeedConfig               `yaml:"feed"`
	Markets     map[string]market.Params `yaml:"markets"`     // underlying -> 初始参数
	Instruments []quoter.Instrument      `yaml:"instruments"` // 报价账簿

	MySQL MySQLConfig `yaml:"mysql"`
	Redis RedisConfig `yaml:"redis"`
	NATS  NATSConfig  `yaml:"nats"`
	Kafka KafkaConfig `yaml:"kafka"`

	NodeID int64 `yaml:"node_id"` // 雪花算法节点
}

// PricerConfig 引擎参数
type PricerConfig struct {
	Steps          int    `yaml:"steps"`
	LatticeWorkers int    `yaml:"lattice_workers"`
	Paths          int    `yaml:"paths"`
	MCSteps        int    `yaml:"mc_steps"`
	Seed           uint64 `yaml:"seed"`
	MCWorkers      int    `yaml:"mc_workers"`
}

// ServiceConfig 报价服务参数
type ServiceConfig struct {
	Workers        int           `yaml:"workers"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	MaxQuoteAge    time.Duration `yaml:"max_quote_age"`
}

// FeedConfig 行情来源
// nats: 订阅 market.spot.<underlying>; simulated: 本地 GBM 模拟
type FeedConfig struct {
	Source   string        `yaml:"source"`
	Interval time.Duration `yaml:"interval"` // 模拟行情频率
}

type MySQLConfig struct {
	DSN string `yaml:"dsn"` // 为空使用内存存储
}

type RedisConfig struct {
	Addr     string `yaml:"addr"` // 为空不启用缓存
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type NATSConfig struct {
	URL string `yaml:"url"` // 为空不推送
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"` // 为空不推送、不消费请求
	GroupID string   `yaml:"group_id"`
	Book    string   `yaml:"book"` // 风险消息的 key
}

const (
	FeedSimulated = "simulated"
	FeedNATS      = "nats"
)

// Default 本地可直接运行的配置: 模拟行情 + 内存存储，不连接任何中间件
func Default() Config {
	return Config{
		Log: logger.Config{Level: "info", Format: "text"},
		Pricer: PricerConfig{
			Steps:          option.DefaultSteps,
			LatticeWorkers: 1,
			Paths:          10000,
			MCSteps:        1,
			Seed:           1,
			MCWorkers:      1,
		},
		Service: ServiceConfig{
			Workers:        4,
			RequestTimeout: 10 * time.Second,
			MaxQuoteAge:    time.Minute,
		},
		Feed: FeedConfig{Source: FeedSimulated, Interval: time.Second},
		Markets: map[string]market.Params{
			"SPX": {Spot: 100, Rate: 0.05, Dividend: 0.01, Vol: 0.2},
		},
		Instruments: []quoter.Instrument{
			{Symbol: "SPX_C100_E", Underlying: "SPX", Payoff: "call", Strike: 100, Style: "european", Expiry: 252, Qty: 10, Multiplier: 100},
			{Symbol: "SPX_P100_A", Underlying: "SPX", Payoff: "put", Strike: 100, Style: "american", Expiry: 252, Qty: -10, Multiplier: 100},
		},
		Kafka: KafkaConfig{GroupID: "pricer", Book: "default"},
	}
}

// Load 读取 .env (可选) 和 YAML 文件 (path 为空则只用默认值)，再应用环境变量
func Load(path string, envFiles ...string) (Config, error) {
	if err := loadEnv(envFiles...); err != nil {
		return Config{}, err
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		// yaml 解码 map 时会合并到已有的 key 上，文件里给了 markets 就整体替换
		defaults := cfg.Markets
		cfg.Markets = nil
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
		if cfg.Markets == nil {
			cfg.Markets = defaults
		}
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// loadEnv 不存在的 .env 文件忽略; 已设置的环境变量不会被覆盖
func loadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s file: %w", f, err)
		}
	}
	return nil
}

func (c *Config) applyEnv() {
	if v, ok := os.LookupEnv(EnvMySQLDSN); ok {
		c.MySQL.DSN = v
	}
	if v, ok := os.LookupEnv(EnvRedisAddr); ok {
		c.Redis.Addr = v
	}
	if v, ok := os.LookupEnv(EnvNATSURL); ok {
		c.NATS.URL = v
	}
	if v, ok := os.LookupEnv(EnvKafkaBrokers); ok {
		c.Kafka.Brokers = splitList(v)
	}
	if v, ok := os.LookupEnv(EnvLogLevel); ok {
		c.Log.Level = v
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate 只检查配置本身; 合约和市场参数的一致性由 quoter.NewService 检查
func (c Config) Validate() error {
	if c.Pricer.Steps < 1 {
		return fmt.Errorf("%w: pricer.steps=%d", ErrInvalidConfig, c.Pricer.Steps)
	}
	switch c.Feed.Source {
	case FeedSimulated:
		if c.Feed.Interval <= 0 {
			return fmt.Errorf("%w: feed.interval=%v", ErrInvalidConfig, c.Feed.Interval)
		}
	case FeedNATS:
		if c.NATS.URL == "" {
			return fmt.Errorf("%w: feed.source=nats needs nats.url", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: feed.source=%q", ErrInvalidConfig, c.Feed.Source)
	}
	if c.NodeID < 0 || c.NodeID > 1023 {
		return fmt.Errorf("%w: node_id=%d", ErrInvalidConfig, c.NodeID)
	}
	return nil
}

// QuoterConfig 转成 quoter.Config
func (c Config) QuoterConfig() quoter.Config {
	return quoter.Config{
		Workers:        c.Service.Workers,
		RequestTimeout: c.Service.RequestTimeout,
		MaxQuoteAge:    c.Service.MaxQuoteAge,
		Pricer: quoter.Pricer{
			Steps:          c.Pricer.Steps,
			LatticeWorkers: c.Pricer.LatticeWorkers,
			Paths:          c.Pricer.Paths,
			MCSteps:        c.Pricer.MCSteps,
			Seed:           c.Pricer.Seed,
			MCWorkers:      c.Pricer.MCWorkers,
		},
	}
}

// Underlyings 配置里出现的标的
func (c Config) Underlyings() []string {
	return slices.Sorted(maps.Keys(c.Markets))
}
