package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "test",
			Password: "test",
			Database: "test_db",
		},
		Redis: RedisConfig{
			Host: "localhost",
			Port: 6379,
		},
		Resource: ResourceConfig{
			Backend: BackendPostgres,
		},
		Notification: NotificationConfig{
			MaxUpdateRetries: 20,
		},
		Worker: WorkerConfig{
			BatchSize:     10,
			ClaimInterval: 30 * time.Second,
		},
	}
}

func TestConfig_Validate_Success(t *testing.T) {
	err := validConfig().Validate()
	assert.NoError(t, err)
}

func TestConfig_Validate_InvalidServerPort(t *testing.T) {
	tests := []struct {
		name string
		port int
	}{
		{"port too low", 0},
		{"port negative", -1},
		{"port too high", 99999},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.Server.Port = tt.port

			err := cfg.Validate()
			assert.Error(t, err)
			assert.Contains(t, err.Error(), "server.port")
		})
	}
}

func TestConfig_Validate_InvalidTimeouts(t *testing.T) {
	cfg := validConfig()
	cfg.Server.ReadTimeout = 0
	cfg.Server.WriteTimeout = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read_timeout")
	assert.Contains(t, err.Error(), "write_timeout")
}

func TestConfig_Validate_PostgresBackendNeedsDatabase(t *testing.T) {
	cfg := validConfig()
	cfg.Database.Host = ""
	cfg.Database.Port = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database.host")
	assert.Contains(t, err.Error(), "database.port")
}

func TestConfig_Validate_HTTPBackend(t *testing.T) {
	cfg := validConfig()
	cfg.Resource.Backend = BackendHTTP
	cfg.Database = DatabaseConfig{}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "resource.base_url")
	assert.Contains(t, err.Error(), "resource.project_key")
	assert.NotContains(t, err.Error(), "database.host")

	cfg.Resource.BaseURL = "https://api.example.com"
	cfg.Resource.ProjectKey = "shop"
	cfg.Resource.ClientID = "client"
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "resource.auth_url")

	cfg.Resource.AuthURL = "https://auth.example.com/oauth/token"
	assert.NoError(t, cfg.Validate())
}

func TestConfig_Validate_UnknownBackend(t *testing.T) {
	cfg := validConfig()
	cfg.Resource.Backend = "mongo"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "resource.backend")
}

func TestConfig_Validate_SignatureNeedsKey(t *testing.T) {
	cfg := validConfig()
	cfg.Notification.EnableHMACSignature = true

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "notification.hmac_key")

	cfg.Notification.HMACKeys = map[string]string{"testmerchant": "AABB"}
	assert.NoError(t, cfg.Validate())
}

func TestConfig_Validate_NegativeRetries(t *testing.T) {
	cfg := validConfig()
	cfg.Notification.MaxUpdateRetries = -1

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "notification.max_update_retries")
}

func TestConfig_Validate_BasicAuthNeedsPassword(t *testing.T) {
	cfg := validConfig()
	cfg.Server.BasicAuth.Username = "gateway"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.basic_auth.password")
}

func TestConfig_Validate_Production(t *testing.T) {
	t.Setenv("ENV", "production")
	cfg := validConfig()
	cfg.Database.Password = ""

	err := cfg.Validate()
	require.Error(t, err)
	errStr := err.Error()
	assert.Contains(t, errStr, "database.password")
	assert.Contains(t, errStr, "enable_hmac_signature")
	assert.Contains(t, errStr, "server.basic_auth")
}

func TestConfig_Validate_MultipleErrors(t *testing.T) {
	cfg := &Config{}

	err := cfg.Validate()
	require.Error(t, err)

	errStr := err.Error()
	assert.Contains(t, errStr, "server.port")
	assert.Contains(t, errStr, "read_timeout")
	assert.Contains(t, errStr, "write_timeout")
	assert.Contains(t, errStr, "redis.port")
	assert.Contains(t, errStr, "resource.backend")
	assert.Contains(t, errStr, "worker.batch_size")
}

func TestNotificationConfig_HMACKey(t *testing.T) {
	cfg := NotificationConfig{
		DefaultHMACKey: "DEFAULT",
		HMACKeys:       map[string]string{"testmerchant": "TEST", "Other": "OTHER"},
	}

	tests := []struct {
		account string
		want    string
	}{
		{"TestMerchant", "TEST"},
		{"testmerchant", "TEST"},
		{"other", "OTHER"},
		{"Unknown", "DEFAULT"},
	}

	for _, tt := range tests {
		t.Run(tt.account, func(t *testing.T) {
			key, ok := cfg.HMACKey(tt.account)
			assert.True(t, ok)
			assert.Equal(t, tt.want, key)
		})
	}

	_, ok := (&NotificationConfig{}).HMACKey("TestMerchant")
	assert.False(t, ok)
}

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, BackendPostgres, cfg.Resource.Backend)
	assert.Equal(t, 20, cfg.Notification.MaxUpdateRetries)
	assert.True(t, cfg.Notification.RemoveSensitiveData)
	assert.Equal(t, "notification-processors", cfg.Worker.ConsumerGroup)
}

func TestLoad_Environment(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("NOTIFICATIONS_SERVER_PORT", "9090")
	t.Setenv("NOTIFICATIONS_NOTIFICATION_MAX_UPDATE_RETRIES", "5")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 5, cfg.Notification.MaxUpdateRetries)
}

func TestDatabaseConfig_DSN(t *testing.T) {
	cfg := DatabaseConfig{
		Host:     "db.example.com",
		Port:     5432,
		User:     "app_user",
		Password: "secret",
		Database: "notifications_db",
		SSLMode:  "require",
	}

	assert.Equal(t, "host=db.example.com port=5432 user=app_user password=secret dbname=notifications_db sslmode=require", cfg.DatabaseDSN())
}

func TestRedisConfig_Addr(t *testing.T) {
	cfg := RedisConfig{Host: "redis.example.com", Port: 6379}

	assert.Equal(t, "redis.example.com:6379", cfg.RedisAddr())
}
