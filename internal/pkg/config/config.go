package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration 让 yaml 配置可以写 "3s" 这样的时长字面量。
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std 转换回标准库时长。
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config 汇总了服务运行所需的全部配置项。
// 配置从 YAML 文件加载，个别字段允许通过环境变量覆盖，方便容器化部署。
type Config struct {
	App   AppConfig   `yaml:"app"`
	Infra InfraConfig `yaml:"infra"`
}

type AppConfig struct {
	ServiceName string `yaml:"serviceName"`
	Port        int    `yaml:"port"`

	// LockWaitTimeout 是获取单个商品锁的最大等待时间，超时返回 Busy。
	LockWaitTimeout Duration `yaml:"lockWaitTimeout"`
	// CheckoutTimeout 是单次结算流程的整体超时时间。
	CheckoutTimeout Duration `yaml:"checkoutTimeout"`
	// LockMode 选择商品锁的实现: "local" 或 "zookeeper"。
	LockMode string `yaml:"lockMode"`

	// Pricing 是运费、税费的 CEL 表达式，留空使用内置默认值。
	Pricing PricingConfig `yaml:"pricing"`
}

type PricingConfig struct {
	ShippingExpr string `yaml:"shippingExpr"`
	TaxExpr      string `yaml:"taxExpr"`
}

type InfraConfig struct {
	MySQL struct {
		DSN string `yaml:"dsn"`
	} `yaml:"mysql"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	Kafka struct {
		Brokers []string `yaml:"brokers"`
		Topic   string   `yaml:"topic"`
	} `yaml:"kafka"`
	Jaeger struct {
		Endpoint string `yaml:"endpoint"`
	} `yaml:"jaeger"`
	Zookeeper struct {
		Servers []string `yaml:"servers"`
	} `yaml:"zookeeper"`
	Catalog struct {
		BaseURL string `yaml:"baseUrl"`
	} `yaml:"catalog"`
	Address struct {
		BaseURL string `yaml:"baseUrl"`
	} `yaml:"address"`
}

// Load 从指定路径读取配置文件，并应用环境变量覆盖。
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

func defaults() *Config {
	cfg := &Config{}
	cfg.App.ServiceName = "storefront"
	cfg.App.Port = 8080
	cfg.App.LockWaitTimeout = Duration(3 * time.Second)
	cfg.App.CheckoutTimeout = Duration(10 * time.Second)
	cfg.App.LockMode = "local"
	cfg.Infra.MySQL.DSN = "root:root@tcp(localhost:3306)/storefront?parseTime=true"
	cfg.Infra.Redis.Addr = "localhost:6379"
	cfg.Infra.Kafka.Brokers = []string{"localhost:9092"}
	cfg.Infra.Kafka.Topic = "commerce-events"
	cfg.Infra.Jaeger.Endpoint = "http://localhost:14268/api/traces"
	cfg.Infra.Zookeeper.Servers = []string{"localhost:2181"}
	cfg.Infra.Catalog.BaseURL = "http://localhost:8081"
	cfg.Infra.Address.BaseURL = "http://localhost:8082"
	return cfg
}

// applyEnvOverrides 允许最常被部署环境调整的几项通过环境变量覆盖。
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MYSQL_DSN"); v != "" {
		cfg.Infra.MySQL.DSN = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Infra.Redis.Addr = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.Infra.Kafka.Brokers = []string{v}
	}
	if v := os.Getenv("JAEGER_ENDPOINT"); v != "" {
		cfg.Infra.Jaeger.Endpoint = v
	}
	if v := os.Getenv("HTTP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.App.Port = port
		}
	}
	if v := os.Getenv("LOCK_MODE"); v != "" {
		cfg.App.LockMode = v
	}
}
