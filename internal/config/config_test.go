package config

import (
	"maps"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// minimalRequiredConfig provides database and Redis config needed for all tests
func minimalRequiredConfig() map[string]string {
	return map[string]string{
		"DAFFODIL_DB_HOST":        "localhost",
		"DAFFODIL_DB_PORT":        "5432",
		"DAFFODIL_DB_NAME":        "daffodil_test",
		"DAFFODIL_DB_USER":        "test_user",
		"DAFFODIL_DB_PASSWORD":    "test_pass",
		"DAFFODIL_REDIS_HOST":     "localhost",
		"DAFFODIL_REDIS_PORT":     "6379",
		"DAFFODIL_REDIS_PASSWORD": "redis_password_123",
	}
}

// mergeEnvVars merges additional env vars with minimal required config
func mergeEnvVars(additional map[string]string) map[string]string {
	result := minimalRequiredConfig()
	maps.Copy(result, additional)
	return result
}

// validProductionConfig returns a complete valid production configuration
// with all required database, Redis, and control plane settings for production tests
func validProductionConfig() map[string]string {
	return map[string]string{
		// App
		"DAFFODIL_APP_ENV": "production",

		// Database
		"DAFFODIL_DB_HOST":     "prod-db.example.com",
		"DAFFODIL_DB_PORT":     "5432",
		"DAFFODIL_DB_NAME":     "daffodil_prod",
		"DAFFODIL_DB_USER":     "prod_user",
		"DAFFODIL_DB_PASSWORD": "SuperSecure123!",
		"DAFFODIL_DB_SSL_MODE": "require",

		// Redis
		"DAFFODIL_REDIS_HOST":        "prod-redis.example.com",
		"DAFFODIL_REDIS_PORT":        "6379",
		"DAFFODIL_REDIS_PASSWORD":    "RedisSecure123!",
		"DAFFODIL_REDIS_TLS_ENABLED": "true",

		// Control Plane
		"DAFFODIL_SERVER_CONTROL_TLS_ENABLED":   "true",
		"DAFFODIL_SERVER_CONTROL_TLS_CERT_FILE": "/certs/control-cert.pem",
		"DAFFODIL_SERVER_CONTROL_TLS_KEY_FILE":  "/certs/control-key.pem",
	}
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		envVars map[string]string
		want    func(t *testing.T, cfg *Config)
		wantErr bool
	}{
		{
			name:    "Should use defaults when no env vars are set",
			envVars: minimalRequiredConfig(),
			want: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "daffodil", cfg.App.Name)
				assert.Equal(t, "dev", cfg.App.Version)
				assert.Equal(t, "development", cfg.App.Environment)
				assert.Equal(t, "info", cfg.App.LogLevel)
				assert.Equal(t, "text", cfg.App.LogFormat)
				assert.Equal(t, 30*time.Second, cfg.App.ShutdownTimeout)
				assert.Equal(t, "8080", cfg.Server.Control.Port)
				assert.Equal(t, "50051", cfg.Server.Data.Port)
				assert.Equal(t, "redis", cfg.Cache.Backend)
				assert.Equal(t, 5*time.Minute, cfg.Cache.ExperimentsTTL)
				assert.Equal(t, 24*time.Hour, cfg.Cache.MixtureTTL)
				assert.Equal(t, 3, cfg.Engine.MixtureSize)
				assert.Equal(t, 14*24*time.Hour, cfg.Dormancy.Horizon)
				assert.Equal(t, "order_placed", cfg.Consumer.Stream)
				assert.Equal(t, "segmentation-group-v2", cfg.Consumer.Group)
			},
			wantErr: false,
		},
		{
			name: "Should load all custom environment variables correctly",
			envVars: mergeEnvVars(map[string]string{
				"DAFFODIL_APP_NAME":             "test-app",
				"DAFFODIL_APP_VERSION":          "1.0.0",
				"DAFFODIL_APP_ENV":              "staging",
				"DAFFODIL_APP_LOG_LEVEL":        "debug",
				"DAFFODIL_APP_LOG_FORMAT":       "json",
				"DAFFODIL_APP_SHUTDOWN_TIMEOUT": "60s",
				"DAFFODIL_SERVER_CONTROL_PORT":  "9090",
				"DAFFODIL_SERVER_DATA_PORT":     "50052",
			}),
			want: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "test-app", cfg.App.Name)
				assert.Equal(t, "1.0.0", cfg.App.Version)
				assert.Equal(t, "staging", cfg.App.Environment)
				assert.Equal(t, "debug", cfg.App.LogLevel)
				assert.Equal(t, "json", cfg.App.LogFormat)
				assert.Equal(t, 60*time.Second, cfg.App.ShutdownTimeout)
				assert.Equal(t, "9090", cfg.Server.Control.Port)
				assert.Equal(t, "50052", cfg.Server.Data.Port)
			},
			wantErr: false,
		},
		{
			name: "Should fail validation on invalid environment value",
			envVars: mergeEnvVars(map[string]string{
				"DAFFODIL_APP_ENV": "invalid",
			}),
			wantErr: true,
		},
		{
			name: "Should fail validation on invalid log level",
			envVars: mergeEnvVars(map[string]string{
				"DAFFODIL_APP_LOG_LEVEL": "trace",
			}),
			wantErr: true,
		},
		{
			name: "Should fail validation on invalid log format",
			envVars: mergeEnvVars(map[string]string{
				"DAFFODIL_APP_LOG_FORMAT": "xml",
			}),
			wantErr: true,
		},
		{
			name: "Should pass validation in staging environment",
			envVars: mergeEnvVars(map[string]string{
				"DAFFODIL_APP_ENV": "staging",
			}),
			want: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "staging", cfg.App.Environment)
			},
			wantErr: false,
		},
		{
			name: "Should allow missing passwords in non-production environments",
			envVars: mergeEnvVars(map[string]string{
				"DAFFODIL_APP_ENV":        "development",
				"DAFFODIL_DB_PASSWORD":    "", // Empty password OK in development
				"DAFFODIL_REDIS_PASSWORD": "", // Empty password OK in development
			}),
			want: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "development", cfg.App.Environment)
				assert.Equal(t, "", cfg.Database.Password)
				assert.Equal(t, "", cfg.Redis.Password)
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Setup: Set environment variables for this test
			// t.Setenv automatically prevents parallel execution and cleans up after the test
			for key, value := range tt.envVars {
				t.Setenv(key, value)
			}

			// Execute
			cfg, err := Load()

			// Assert
			if tt.wantErr {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			if tt.want != nil {
				tt.want(t, cfg)
			}
		})
	}
}
