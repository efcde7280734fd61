// internal/pkg/bootstrap/config.go
package bootstrap

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Config 聚合了所有服务的基础设施配置。
// 通过 CONFIG_PATH 指向的 YAML 文件加载，个别字段允许环境变量覆盖；
// 总线后端等依赖在组装根按配置显式注入，不存在运行时的全局开关。
type Config struct {
	App struct {
		Env string `yaml:"env"`
	} `yaml:"app"`

	Infra struct {
		MySQL struct {
			DSN string `yaml:"dsn"`
		} `yaml:"mysql"`
		Redis struct {
			Addr string `yaml:"addr"`
		} `yaml:"redis"`
		Kafka struct {
			Brokers []string `yaml:"brokers"`
		} `yaml:"kafka"`
		Jaeger struct {
			Endpoint string `yaml:"endpoint"`
		} `yaml:"jaeger"`
		Bus struct {
			// Backend 选择消息总线实现："local"（进程内）或 "kafka"（托管队列）
			Backend string `yaml:"backend"`
		} `yaml:"bus"`
	} `yaml:"infra"`

	Services struct {
		Identity struct {
			URL string `yaml:"url"`
		} `yaml:"identity"`
		Catalog struct {
			URL string `yaml:"url"`
		} `yaml:"catalog"`
	} `yaml:"services"`
}

var (
	currentConfig Config
	configOnce    sync.Once
)

func defaultConfig() Config {
	var c Config
	c.App.Env = "dev"
	c.Infra.MySQL.DSN = "bookstore:bookstore@tcp(localhost:3306)/bookstore?charset=utf8mb4&parseTime=True&loc=Local"
	c.Infra.Redis.Addr = "localhost:6379"
	c.Infra.Kafka.Brokers = []string{"localhost:9092"}
	c.Infra.Jaeger.Endpoint = "http://localhost:14268/api/traces"
	c.Infra.Bus.Backend = "kafka"
	c.Services.Identity.URL = "http://localhost:8090"
	c.Services.Catalog.URL = "http://localhost:8091"
	return c
}

// LoadConfig 加载配置：默认值 <- YAML 文件 <- 环境变量，后者覆盖前者。
func LoadConfig() (Config, error) {
	c := defaultConfig()

	if path := os.Getenv("CONFIG_PATH"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return c, fmt.Errorf("bootstrap: read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &c); err != nil {
			return c, fmt.Errorf("bootstrap: parse config file %s: %w", path, err)
		}
	}

	if v := os.Getenv("MYSQL_DSN"); v != "" {
		c.Infra.MySQL.DSN = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Infra.Redis.Addr = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Infra.Kafka.Brokers = splitCSV(v)
	}
	if v := os.Getenv("JAEGER_ENDPOINT"); v != "" {
		c.Infra.Jaeger.Endpoint = v
	}
	if v := os.Getenv("BUS_BACKEND"); v != "" {
		c.Infra.Bus.Backend = v
	}
	return c, nil
}

// GetCurrentConfig 返回进程级配置，首次调用时加载。
func GetCurrentConfig() Config {
	configOnce.Do(func() {
		c, err := LoadConfig()
		if err != nil {
			panic(err)
		}
		currentConfig = c
	})
	return currentConfig
}

func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
