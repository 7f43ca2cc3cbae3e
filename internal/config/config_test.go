package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"ORACLE_CONTRACT_ADDRESS", "USE_AWS_KMS", "OPERATOR_PRIVATE_KEY",
		"AWS_KMS_KEY_ID", "WORKER_BATCH_SIZE", "BATCH_SIZE_CAP",
		"SENTIMENT_PRIMARY_WEIGHT",
	}
	for _, k := range keys {
		os.Unsetenv(k)
	}
}

func TestLoad_DefaultsProduceValidConfig(t *testing.T) {
	clearEnv(t)
	os.Setenv("OPERATOR_PRIVATE_KEY", "deadbeef")
	defer os.Unsetenv("OPERATOR_PRIVATE_KEY")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, EnvDevelopment, cfg.Environment)
	assert.Equal(t, 20, cfg.Worker.BatchSize)
}

func TestLoad_RejectsMalformedContractAddress(t *testing.T) {
	clearEnv(t)
	os.Setenv("OPERATOR_PRIVATE_KEY", "deadbeef")
	os.Setenv("ORACLE_CONTRACT_ADDRESS", "not-an-address")
	defer clearEnv(t)

	_, err := Load()
	require.Error(t, err)
}

func TestLoad_RequiresOperatorKeyWhenKMSDisabled(t *testing.T) {
	clearEnv(t)
	defer clearEnv(t)

	_, err := Load()
	require.Error(t, err)
}

func TestLoad_RequiresKMSKeyIDWhenKMSEnabled(t *testing.T) {
	clearEnv(t)
	os.Setenv("USE_AWS_KMS", "true")
	defer clearEnv(t)

	_, err := Load()
	require.Error(t, err)
}

func TestLoad_RejectsBatchSizeAboveCap(t *testing.T) {
	clearEnv(t)
	os.Setenv("OPERATOR_PRIVATE_KEY", "deadbeef")
	os.Setenv("WORKER_BATCH_SIZE", "100")
	os.Setenv("BATCH_SIZE_CAP", "50")
	defer clearEnv(t)

	_, err := Load()
	require.Error(t, err)
}

func TestLoad_RejectsPrimaryWeightOutOfRange(t *testing.T) {
	clearEnv(t)
	os.Setenv("OPERATOR_PRIVATE_KEY", "deadbeef")
	os.Setenv("SENTIMENT_PRIMARY_WEIGHT", "1.5")
	defer clearEnv(t)

	_, err := Load()
	require.Error(t, err)
}

func TestIsProduction(t *testing.T) {
	cfg := &Config{Environment: EnvProduction}
	assert.True(t, cfg.IsProduction())
	cfg.Environment = EnvDevelopment
	assert.False(t, cfg.IsProduction())
}
