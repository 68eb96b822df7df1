package config

import (
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"

	"github.com/kbdon7718-ui/fleet-dashboard/internal/domain/tracking"
	"github.com/kbdon7718-ui/fleet-dashboard/internal/tracker"
)

const testSecret = "0123456789abcdef-test"

func TestLoadDefaults(t *testing.T) {
	t.Setenv("FLEET_JWT_SECRET", testSecret)

	cfg, err := load(viper.New())
	require.NoError(t, err)

	require.Equal(t, ":8080", cfg.Port)
	require.Equal(t, "development", cfg.AppEnv)
	require.False(t, cfg.DBConfig.Enabled)
	require.Empty(t, cfg.KafkaConfig.Brokers)
	require.Equal(t, "fleet.tracker.events", cfg.KafkaConfig.Topic)
	require.Equal(t, "fleet.dashboard.notices", cfg.KafkaConfig.NoticeTopic)
	require.Equal(t, "fleet-dashboard", cfg.KafkaConfig.GroupID)
	require.Equal(t, 15*time.Minute, cfg.AccessExpiry())

	require.Equal(t, "fleet-map", cfg.Tracker.MountID)
	require.Equal(t, tracker.Options{
		Center:       tracking.NewGeoPosition(28.6139, 77.2090),
		Zoom:         15,
		HighAccuracy: true,
	}, cfg.TrackerOptions())
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("FLEET_JWT_SECRET", testSecret)
	t.Setenv("FLEET_SERVICE_PORT", "9090")
	t.Setenv("FLEET_APP_ENV", "production")
	t.Setenv("FLEET_KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092")
	t.Setenv("FLEET_JWT_ACCESS_EXPIRY", "1h")
	t.Setenv("FLEET_TRACKER_ZOOM", "12")
	t.Setenv("FLEET_TRACKER_HIGH_ACCURACY", "false")
	t.Setenv("FLEET_DATABASE_ENABLED", "true")
	t.Setenv("FLEET_DATABASE_HOST", "db.internal")

	cfg, err := load(viper.New())
	require.NoError(t, err)

	require.Equal(t, ":9090", cfg.Port)
	require.Equal(t, "production", cfg.AppEnv)
	require.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.KafkaConfig.Brokers)
	require.Equal(t, time.Hour, cfg.AccessExpiry())
	require.Equal(t, 12, cfg.Tracker.Zoom)
	require.False(t, cfg.Tracker.HighAccuracy)
	require.True(t, cfg.DBConfig.Enabled)
	require.Equal(t,
		"postgres://postgres:@db.internal:5432/fleet_dashboard?sslmode=disable",
		cfg.DBConfig.DatabaseURL())
	require.Equal(t,
		"host=db.internal port=5432 user=postgres password= dbname=fleet_dashboard sslmode=disable",
		cfg.DBConfig.DSN())
}

func TestLoadFromFile(t *testing.T) {
	t.Setenv("FLEET_JWT_SECRET", testSecret)
	path := filepath.Join(t.TempDir(), "fleetdash.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
tracker:
  mount_id: depot-map
  center_lat: 19.076
  center_lng: 72.8777
`), 0o644))

	v := viper.New()
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())

	cfg, err := load(v)
	require.NoError(t, err)
	require.Equal(t, "depot-map", cfg.Tracker.MountID)
	require.Equal(t, tracking.NewGeoPosition(19.076, 72.8777), cfg.TrackerOptions().Center)
	require.Equal(t, 15, cfg.Tracker.Zoom)
}

func TestLoadRejectsInvalid(t *testing.T) {
	for _, ca := range []struct {
		name string
		env  map[string]string
	}{
		{"missing secret", map[string]string{}},
		{"short secret", map[string]string{"FLEET_JWT_SECRET": "short"}},
		{"bad env", map[string]string{"FLEET_JWT_SECRET": testSecret, "FLEET_APP_ENV": "qa"}},
		{"bad latitude", map[string]string{"FLEET_JWT_SECRET": testSecret, "FLEET_TRACKER_CENTER_LAT": "91"}},
		{"bad zoom", map[string]string{"FLEET_JWT_SECRET": testSecret, "FLEET_TRACKER_ZOOM": "30"}},
		{"bad broker", map[string]string{"FLEET_JWT_SECRET": testSecret, "FLEET_KAFKA_BROKERS": "not a broker"}},
	} {
		t.Run(ca.name, func(t *testing.T) {
			for k, v := range ca.env {
				t.Setenv(k, v)
			}
			_, err := load(viper.New())
			require.Error(t, err)
		})
	}
}

func TestDatabaseURLEscapesCredentials(t *testing.T) {
	d := DatabaseConfig{
		Host:     "db.internal",
		Port:     5432,
		User:     "fleet@ops",
		Password: "p@ss:w/rd?#",
		DBName:   "fleet_dashboard",
		SSLMode:  "require",
	}

	u, err := url.Parse(d.DatabaseURL())
	require.NoError(t, err)
	require.Equal(t, "postgres", u.Scheme)
	require.Equal(t, "fleet@ops", u.User.Username())
	pass, ok := u.User.Password()
	require.True(t, ok)
	require.Equal(t, "p@ss:w/rd?#", pass)
	require.Equal(t, "db.internal:5432", u.Host)
	require.Equal(t, "/fleet_dashboard", u.Path)
	require.Equal(t, "require", u.Query().Get("sslmode"))
}

func TestAccessExpiryFallback(t *testing.T) {
	cfg := &ServiceConfig{JWTConfig: JWTConfig{AccessExpiry: "soon"}}
	require.Equal(t, 15*time.Minute, cfg.AccessExpiry())
}
