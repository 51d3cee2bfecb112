package config

import (
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	MaxUploadMb int64 `yaml:"max_upload_mb"`

	Consumer Consumer `yaml:"consumer"`

	Redis  Redis  `yaml:"redis"`
	MinIO  MinIO  `yaml:"minio"`
	NATS   NATS   `yaml:"nats"`
	Gemini Gemini `yaml:"gemini"`
}

type Consumer struct {
	Durable        string        `yaml:"durable"`
	Workers        int           `yaml:"workers"`
	MaxDeliver     int           `yaml:"max_deliver"`
	AckWait        time.Duration `yaml:"ack_wait"`
	ProcessTimeout time.Duration `yaml:"process_timeout"`
	DrainTimeout   time.Duration `yaml:"drain_timeout"`
}

type Redis struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type MinIO struct {
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	UseSSL          bool   `yaml:"use_ssl"`
	Bucket          string `yaml:"bucket"`
}

type NATS struct {
	URL               string `yaml:"url"`
	Name              string `yaml:"name"`
	MaxReconnects     int    `yaml:"max_reconnects"`
	Stream            string `yaml:"stream"`
	Subject           string `yaml:"subject"`
	DeadLetterSubject string `yaml:"dead_letter_subject"`
}

type Gemini struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

func MustLoad(path string) *Config {
	data, err := os.ReadFile(path)
	if err != nil {
		log.Fatalf("config: cannot read file %q: %v", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		log.Fatalf("config: cannot unmarshal yaml: %v", err)
	}

	if cfg.MinIO.Endpoint == "" {
		log.Fatalf("config: minio.endpoint is empty")
	}
	if cfg.MinIO.Bucket == "" {
		log.Fatalf("config: minio.bucket is empty")
	}
	if cfg.Redis.Addr == "" {
		log.Fatalf("config: redis.addr is empty")
	}
	if cfg.NATS.URL == "" {
		log.Fatalf("config: nats.url is empty")
	}
	if cfg.NATS.Subject == "" {
		log.Fatalf("config: nats.subject is empty")
	}

	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.MaxUploadMb <= 0 {
		cfg.MaxUploadMb = 50
	}
	if cfg.NATS.Stream == "" {
		cfg.NATS.Stream = "IMAGE_TASKS"
	}
	if cfg.NATS.DeadLetterSubject == "" {
		cfg.NATS.DeadLetterSubject = cfg.NATS.Subject + ".dead"
	}
	if cfg.Consumer.Durable == "" {
		cfg.Consumer.Durable = "image-task-consumer"
	}
	if cfg.Consumer.Workers <= 0 {
		cfg.Consumer.Workers = 4
	}
	if cfg.Consumer.MaxDeliver <= 0 {
		cfg.Consumer.MaxDeliver = 5
	}
	if cfg.Consumer.AckWait <= 0 {
		cfg.Consumer.AckWait = 30 * time.Second
	}
	if cfg.Consumer.ProcessTimeout <= 0 {
		cfg.Consumer.ProcessTimeout = 2 * time.Minute
	}
	if cfg.Consumer.DrainTimeout <= 0 {
		cfg.Consumer.DrainTimeout = 20 * time.Second
	}
	if cfg.Gemini.Model == "" {
		cfg.Gemini.Model = "gemini-2.0-flash"
	}

	// secrets come from the environment when not set in the file
	if cfg.Gemini.APIKey == "" {
		cfg.Gemini.APIKey = os.Getenv("GEMINI_API_KEY")
	}

	return &cfg
}
