// internal/pkg/bootstrap/config.go
package bootstrap

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-sql-driver/mysql"
	"gopkg.in/yaml.v3"
)

// Config 是 order-hub 的完整配置
type Config struct {
	App       AppConfig       `yaml:"app"`
	Sequence  SequenceConfig  `yaml:"sequence"`
	Ledger    LedgerConfig    `yaml:"ledger"`
	Catalogue CatalogueConfig `yaml:"catalogue"`
	Hub       HubConfig       `yaml:"hub"`
	Infra     InfraConfig     `yaml:"infra"`
}

type AppConfig struct {
	Name     string `yaml:"name"`
	Port     int    `yaml:"port"`
	LogLevel string `yaml:"logLevel"`
	Pretty   bool   `yaml:"pretty"`
}

type SequenceConfig struct {
	Path        string        `yaml:"path"`
	LockTimeout time.Duration `yaml:"lockTimeout"`
	RetryDelay  time.Duration `yaml:"retryDelay"`
	Locker      string        `yaml:"locker"` // file | zookeeper
}

type LedgerConfig struct {
	Driver string        `yaml:"driver"` // memory | mysql | redis
	Seed   map[int64]int `yaml:"seed"`   // 启动时写入的初始库存
}

type CatalogueConfig struct {
	Driver   string        `yaml:"driver"` // memory | mysql
	Products []ProductSeed `yaml:"products"`
}

// ProductSeed 是配置文件里的一条商品。价格用字符串，避免 YAML 浮点精度问题
type ProductSeed struct {
	ID       int64  `yaml:"id"`
	Name     string `yaml:"name"`
	Price    string `yaml:"price"`
	ImageRef string `yaml:"imageRef"`
}

type HubConfig struct {
	QueueSize int `yaml:"queueSize"`
}

type InfraConfig struct {
	MySQL     MySQLConfig     `yaml:"mysql"`
	Redis     RedisConfig     `yaml:"redis"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Jaeger    JaegerConfig    `yaml:"jaeger"`
	Nacos     NacosConfig     `yaml:"nacos"`
	Zookeeper ZookeeperConfig `yaml:"zookeeper"`
}

type MySQLConfig struct {
	DSN      string `yaml:"dsn"` // 非空时优先使用
	Addr     string `yaml:"addr"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbName"`
}

type RedisConfig struct {
	Addrs string `yaml:"addrs"`
}

type KafkaConfig struct {
	Brokers string `yaml:"brokers"`
	GroupID string `yaml:"groupId"`
}

type JaegerConfig struct {
	Endpoint string `yaml:"endpoint"`
}

type NacosConfig struct {
	Addrs     string `yaml:"addrs"`
	Namespace string `yaml:"namespace"`
	Group     string `yaml:"group"`
}

type ZookeeperConfig struct {
	Servers        string        `yaml:"servers"`
	SessionTimeout time.Duration `yaml:"sessionTimeout"`
}

var (
	configMu      sync.RWMutex
	currentConfig = DefaultConfig()
)

// DefaultConfig 不依赖任何外部基础设施即可启动
func DefaultConfig() Config {
	return Config{
		App:       AppConfig{Name: "order-hub", Port: 8080, LogLevel: "info"},
		Sequence:  SequenceConfig{Path: "data/order-id", LockTimeout: 5 * time.Second, RetryDelay: 5 * time.Millisecond, Locker: "file"},
		Ledger:    LedgerConfig{Driver: "memory"},
		Catalogue: CatalogueConfig{Driver: "memory"},
		Hub:       HubConfig{QueueSize: 16},
		Infra: InfraConfig{
			Kafka:     KafkaConfig{GroupID: "order-hub"},
			Nacos:     NacosConfig{Group: "DEFAULT_GROUP"},
			Zookeeper: ZookeeperConfig{SessionTimeout: 5 * time.Second},
		},
	}
}

// LoadConfig 读取 YAML 配置文件并应用环境变量覆盖。path 为空或文件不存在时使用默认配置。
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return Config{}, fmt.Errorf("reading config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
			}
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	configMu.Lock()
	currentConfig = cfg
	configMu.Unlock()
	return cfg, nil
}

// GetCurrentConfig 返回最近一次成功加载的配置
func GetCurrentConfig() Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return currentConfig
}

func applyEnv(cfg *Config) error {
	cfg.Sequence.Path = getEnv("ORDERHUB_SEQUENCE_PATH", cfg.Sequence.Path)
	cfg.Sequence.Locker = getEnv("ORDERHUB_SEQUENCE_LOCKER", cfg.Sequence.Locker)
	cfg.Ledger.Driver = getEnv("ORDERHUB_LEDGER_DRIVER", cfg.Ledger.Driver)
	cfg.Catalogue.Driver = getEnv("ORDERHUB_CATALOGUE_DRIVER", cfg.Catalogue.Driver)
	cfg.App.LogLevel = getEnv("LOG_LEVEL", cfg.App.LogLevel)
	cfg.Infra.MySQL.DSN = getEnv("MYSQL_DSN", cfg.Infra.MySQL.DSN)
	cfg.Infra.Redis.Addrs = getEnv("REDIS_ADDR", cfg.Infra.Redis.Addrs)
	cfg.Infra.Kafka.Brokers = getEnv("KAFKA_BROKERS", cfg.Infra.Kafka.Brokers)
	cfg.Infra.Jaeger.Endpoint = getEnv("JAEGER_ENDPOINT", cfg.Infra.Jaeger.Endpoint)
	cfg.Infra.Nacos.Addrs = getEnv("NACOS_SERVER_ADDRS", cfg.Infra.Nacos.Addrs)
	cfg.Infra.Nacos.Namespace = getEnv("NACOS_NAMESPACE", cfg.Infra.Nacos.Namespace)
	cfg.Infra.Nacos.Group = getEnv("NACOS_GROUP", cfg.Infra.Nacos.Group)
	cfg.Infra.Zookeeper.Servers = getEnv("ZK_SERVERS", cfg.Infra.Zookeeper.Servers)

	if v, ok := os.LookupEnv("ORDERHUB_PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("ORDERHUB_PORT: %w", err)
		}
		cfg.App.Port = port
	}
	if v, ok := os.LookupEnv("ORDERHUB_LOCK_TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("ORDERHUB_LOCK_TIMEOUT: %w", err)
		}
		cfg.Sequence.LockTimeout = d
	}
	return nil
}

// Validate 检查驱动名称和依赖的连接信息
func (c Config) Validate() error {
	if c.Sequence.Path == "" {
		return errors.New("sequence.path is required")
	}
	if c.Sequence.LockTimeout <= 0 {
		return errors.New("sequence.lockTimeout must be positive")
	}
	switch c.Sequence.Locker {
	case "file":
	case "zookeeper":
		if c.Infra.Zookeeper.Servers == "" {
			return errors.New("sequence.locker=zookeeper requires infra.zookeeper.servers")
		}
	default:
		return fmt.Errorf("unknown sequence.locker %q", c.Sequence.Locker)
	}

	switch c.Ledger.Driver {
	case "memory":
	case "mysql":
		if c.MySQLDSN() == "" {
			return errors.New("ledger.driver=mysql requires infra.mysql")
		}
	case "redis":
		if c.Infra.Redis.Addrs == "" {
			return errors.New("ledger.driver=redis requires infra.redis.addrs")
		}
	default:
		return fmt.Errorf("unknown ledger.driver %q", c.Ledger.Driver)
	}

	switch c.Catalogue.Driver {
	case "memory":
	case "mysql":
		if c.MySQLDSN() == "" {
			return errors.New("catalogue.driver=mysql requires infra.mysql")
		}
	default:
		return fmt.Errorf("unknown catalogue.driver %q", c.Catalogue.Driver)
	}

	if c.Hub.QueueSize <= 0 {
		return errors.New("hub.queueSize must be positive")
	}
	return nil
}

// MySQLDSN 返回 gorm 使用的 DSN。显式配置的 dsn 优先，否则由各字段拼装。
func (c Config) MySQLDSN() string {
	m := c.Infra.MySQL
	if m.DSN != "" {
		return m.DSN
	}
	if m.Addr == "" {
		return ""
	}
	mc := mysql.NewConfig()
	mc.Net = "tcp"
	mc.Addr = m.Addr
	mc.User = m.User
	mc.Passwd = m.Password
	mc.DBName = m.DBName
	mc.ParseTime = true
	mc.Params = map[string]string{"charset": "utf8mb4"}
	return mc.FormatDSN()
}

// KafkaBrokers 把逗号分隔的 broker 列表拆开，未配置时返回 nil
func (c Config) KafkaBrokers() []string {
	return splitList(c.Infra.Kafka.Brokers)
}

// ZookeeperServers 把逗号分隔的 zk 地址拆开
func (c Config) ZookeeperServers() []string {
	return splitList(c.Infra.Zookeeper.Servers)
}

func splitList(raw string) []string {
	var out []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// getEnv 是一个内部辅助函数，从环境变量中读取配置。
func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
