package config

import (
	"database/sql"

	_ "github.com/lib/pq"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/spf13/viper"
)

type Config struct {
	MinIOBucket string        `yaml:"minio_bucket"`
	App         App           `yaml:"app"`
	DB          *sql.DB       `yaml:"db"`
	Queue       *RabbitMQ     `yaml:"rabbitmq"`
	Storage     *minio.Client `yaml:"storage"`
	Server      Server        `yaml:"server"`
	Probe       Probe         `yaml:"probe"`
	Pipeline    Pipeline      `yaml:"pipeline"`
	Quota       Quota         `yaml:"quota"`
}

type App struct {
	Environment string `yaml:"environment"`
	Host        string `yaml:"host"`
	Protocol    string `yaml:"protocol"`
}

type Server struct {
	HttpPort string `yaml:"http_port"`
}

type RabbitMQ struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	User         string `json:"user"`
	Pass         string `json:"pass"`
	ExchangeName string `json:"exchange_name"`
	Kind         string `json:"kind"`
}

type Probe struct {
	URL                  string  `yaml:"url"`
	TimeoutSeconds       int     `yaml:"timeout_seconds"`
	FallbackBytesPerSec  float64 `yaml:"fallback_bytes_per_sec"`
	SlowBelowBytesPerSec float64 `yaml:"slow_below_bytes_per_sec"`
}

// Pipeline holds the capture and compression tunables. The thresholds are
// empirically tuned product values, so they live in config rather than code.
type Pipeline struct {
	CompressTriggerBytes int64  `yaml:"compress_trigger_bytes"`
	MaxUploadBytes       int64  `yaml:"max_upload_bytes"`
	MaxWidth             int    `yaml:"max_width"`
	MaxHeight            int    `yaml:"max_height"`
	SlowFPS              int    `yaml:"slow_fps"`
	NormalFPS            int    `yaml:"normal_fps"`
	SlowBitrateKbps      int    `yaml:"slow_bitrate_kbps"`
	NormalBitrateKbps    int    `yaml:"normal_bitrate_kbps"`
	PreviewDir           string `yaml:"preview_dir"`
	WorkDir              string `yaml:"work_dir"`
	PublicBaseURL        string `yaml:"public_base_url"`
}

type Quota struct {
	URL            string `yaml:"url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

func setDefaults() {
	viper.SetDefault("probe.fallback_bytes_per_sec", 1<<20)
	viper.SetDefault("probe.slow_below_bytes_per_sec", 125_000)
	viper.SetDefault("probe.timeout_seconds", 5)
	viper.SetDefault("pipeline.compress_trigger_bytes", 5<<20)
	viper.SetDefault("pipeline.max_upload_bytes", 100<<20)
	viper.SetDefault("pipeline.max_width", 640)
	viper.SetDefault("pipeline.max_height", 480)
	viper.SetDefault("pipeline.slow_fps", 10)
	viper.SetDefault("pipeline.normal_fps", 15)
	viper.SetDefault("pipeline.slow_bitrate_kbps", 250)
	viper.SetDefault("pipeline.normal_bitrate_kbps", 500)
	viper.SetDefault("pipeline.preview_dir", "temp/previews")
	viper.SetDefault("pipeline.work_dir", "temp/transcode")
	viper.SetDefault("quota.timeout_seconds", 5)
}

func Load(path string) (*Config, error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	setDefaults()
	err := viper.ReadInConfig()
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("postgres", viper.GetString("postgresql_host"))
	if err != nil {
		return nil, err
	}

	rabbitmq := &RabbitMQ{
		Host: viper.GetString("rabbitmq_host"),
		Port: viper.GetInt("rabbitmq_port"),
		User: viper.GetString("rabbitmq_user"),
		Pass: viper.GetString("rabbitmq_pass"),
		Kind: viper.GetString("rabbitmq_kind"),
	}

	minioClient, err := minio.New(viper.GetString("minio.url"), &minio.Options{
		Creds:  credentials.NewStaticV4(viper.GetString("minio.access_id"), viper.GetString("minio.secret_access_key"), ""),
		Secure: false,
	})
	if err != nil {
		return nil, err
	}

	return &Config{
		MinIOBucket: viper.GetString("minio.bucket"),
		App: App{
			Environment: viper.GetString("app.environment"),
			Host:        viper.GetString("app.host"),
			Protocol:    viper.GetString("app.protocol"),
		},
		Server: Server{
			HttpPort: viper.GetString("server.port"),
		},
		Probe: Probe{
			URL:                  viper.GetString("probe.url"),
			TimeoutSeconds:       viper.GetInt("probe.timeout_seconds"),
			FallbackBytesPerSec:  viper.GetFloat64("probe.fallback_bytes_per_sec"),
			SlowBelowBytesPerSec: viper.GetFloat64("probe.slow_below_bytes_per_sec"),
		},
		Pipeline: Pipeline{
			CompressTriggerBytes: viper.GetInt64("pipeline.compress_trigger_bytes"),
			MaxUploadBytes:       viper.GetInt64("pipeline.max_upload_bytes"),
			MaxWidth:             viper.GetInt("pipeline.max_width"),
			MaxHeight:            viper.GetInt("pipeline.max_height"),
			SlowFPS:              viper.GetInt("pipeline.slow_fps"),
			NormalFPS:            viper.GetInt("pipeline.normal_fps"),
			SlowBitrateKbps:      viper.GetInt("pipeline.slow_bitrate_kbps"),
			NormalBitrateKbps:    viper.GetInt("pipeline.normal_bitrate_kbps"),
			PreviewDir:           viper.GetString("pipeline.preview_dir"),
			WorkDir:              viper.GetString("pipeline.work_dir"),
			PublicBaseURL:        viper.GetString("pipeline.public_base_url"),
		},
		Quota: Quota{
			URL:            viper.GetString("quota.url"),
			TimeoutSeconds: viper.GetInt("quota.timeout_seconds"),
		},
		DB:      db,
		Queue:   rabbitmq,
		Storage: minioClient,
	}, nil
}
