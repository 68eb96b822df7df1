package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/kbdon7718-ui/fleet-dashboard/internal/domain/tracking"
	"github.com/kbdon7718-ui/fleet-dashboard/internal/events"
	"github.com/kbdon7718-ui/fleet-dashboard/internal/tracker"
)

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host" validate:"required_if=Enabled true"`
	Port     int    `mapstructure:"port" validate:"min=0,max=65535"`
	User     string `mapstructure:"user" validate:"required_if=Enabled true"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"name" validate:"required_if=Enabled true"`
	SSLMode  string `mapstructure:"sslmode" validate:"omitempty,oneof=disable allow prefer require verify-ca verify-full"`
}

// KafkaConfig holds event publishing settings. No brokers disables publishing.
type KafkaConfig struct {
	Brokers     []string `mapstructure:"brokers" validate:"dive,hostname_port"`
	Topic       string   `mapstructure:"topic" validate:"required"`
	NoticeTopic string   `mapstructure:"notice_topic" validate:"required"`
	GroupID     string   `mapstructure:"group_id" validate:"required"`
}

// JWTConfig holds access token settings.
type JWTConfig struct {
	Secret       string `mapstructure:"secret" validate:"required,min=16"`
	AccessExpiry string `mapstructure:"access_expiry"`
}

// TrackerConfig holds the live map defaults.
type TrackerConfig struct {
	MountID      string  `mapstructure:"mount_id" validate:"required,max=64"`
	CenterLat    float64 `mapstructure:"center_lat" validate:"latitude"`
	CenterLng    float64 `mapstructure:"center_lng" validate:"longitude"`
	Zoom         int     `mapstructure:"zoom" validate:"min=0,max=22"`
	HighAccuracy bool    `mapstructure:"high_accuracy"`
}

// ServiceConfig holds all configuration for the dashboard service.
type ServiceConfig struct {
	Port        string         `mapstructure:"service_port" validate:"required"`
	AppEnv      string         `mapstructure:"app_env" validate:"oneof=development staging production test"`
	DBConfig    DatabaseConfig `mapstructure:"database"`
	KafkaConfig KafkaConfig    `mapstructure:"kafka"`
	JWTConfig   JWTConfig      `mapstructure:"jwt"`
	Tracker     TrackerConfig  `mapstructure:"tracker"`
}

// Load reads configuration from an optional fleetdash.yaml and FLEET_*
// environment variables, and validates it.
func Load() (*ServiceConfig, error) {
	v := viper.New()
	v.SetConfigName("fleetdash")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}
	return load(v)
}

func load(v *viper.Viper) (*ServiceConfig, error) {
	setDefaults(v)
	v.SetEnvPrefix("FLEET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg ServiceConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	// Brokers may arrive comma separated from the environment.
	cfg.KafkaConfig.Brokers = splitList(strings.Join(cfg.KafkaConfig.Brokers, ","))

	if !strings.HasPrefix(cfg.Port, ":") && !strings.Contains(cfg.Port, ":") {
		cfg.Port = ":" + cfg.Port
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("service_port", ":8080")
	v.SetDefault("app_env", "development")

	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "fleet_dashboard")
	v.SetDefault("database.sslmode", "disable")

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", events.DefaultTopic)
	v.SetDefault("kafka.notice_topic", events.DefaultNoticeTopic)
	v.SetDefault("kafka.group_id", "fleet-dashboard")

	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.access_expiry", "15m")

	v.SetDefault("tracker.mount_id", tracker.DefaultMountID)
	v.SetDefault("tracker.center_lat", tracker.DefaultCenter.Latitude)
	v.SetDefault("tracker.center_lng", tracker.DefaultCenter.Longitude)
	v.SetDefault("tracker.zoom", tracker.DefaultZoom)
	v.SetDefault("tracker.high_accuracy", tracker.DefaultHighAccuracy)
}

// TrackerOptions converts the tracker section into controller options.
func (c *ServiceConfig) TrackerOptions() tracker.Options {
	return tracker.Options{
		Center:       tracking.NewGeoPosition(c.Tracker.CenterLat, c.Tracker.CenterLng),
		Zoom:         c.Tracker.Zoom,
		HighAccuracy: c.Tracker.HighAccuracy,
	}
}

// AccessExpiry parses the access token lifetime, falling back to 15 minutes.
func (c *ServiceConfig) AccessExpiry() time.Duration {
	d, err := time.ParseDuration(c.JWTConfig.AccessExpiry)
	if err != nil || d <= 0 {
		return 15 * time.Minute
	}
	return d
}

// DatabaseURL returns the connection URL used by migrations.
func (d DatabaseConfig) DatabaseURL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     net.JoinHostPort(d.Host, strconv.Itoa(d.Port)),
		Path:     "/" + d.DBName,
		RawQuery: url.Values{"sslmode": {d.SSLMode}}.Encode(),
	}
	return u.String()
}

// DSN returns the key/value connection string used by the gorm driver.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode)
}

func splitList(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
