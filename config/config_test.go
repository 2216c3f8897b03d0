package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDuration(t *testing.T) {
	d, err := ParseDuration("5d")
	require.NoError(t, err)
	assert.Equal(t, 120*time.Hour, d)

	d, err = ParseDuration("90m")
	require.NoError(t, err)
	assert.Equal(t, 90*time.Minute, d)

	_, err = ParseDuration("xd")
	assert.Error(t, err)
}

func TestGetDefaults(t *testing.T) {
	t.Setenv("SECRET_KEY", "s3cret")
	t.Setenv("GRADER_PROVIDER", "")
	t.Setenv("JWT_ACCESS_TTL", "")

	env, err := Get()
	require.NoError(t, err)
	assert.Equal(t, 5*24*time.Hour, env.JWT_ACCESS_TTL)
	assert.Equal(t, 90*24*time.Hour, env.JWT_REFRESH_TTL)
	assert.Equal(t, 60*time.Second, env.GRADER_TIMEOUT)
	assert.Equal(t, 5, env.ANALYSIS_JOB_MAX_ATTEMPTS)
	assert.Equal(t, 90*time.Minute, env.WRITING_SESSION_TTL)
	assert.Equal(t, "openai", env.GRADER_PROVIDER)
}

func TestGetRejectsMalformed(t *testing.T) {
	t.Setenv("SECRET_KEY", "s3cret")
	t.Setenv("ANALYSIS_WORKERS", "many")

	_, err := Get()
	assert.ErrorContains(t, err, "ANALYSIS_WORKERS")
}

func TestGetRequiresSecret(t *testing.T) {
	t.Setenv("SECRET_KEY", "")
	t.Setenv("JWT_SECRET", "")

	_, err := Get()
	assert.Error(t, err)
}

func TestDSN(t *testing.T) {
	env := &EnvironmentVariable{DB_URL: "postgres://x"}
	assert.Equal(t, "postgres://x", env.DSN())

	env = &EnvironmentVariable{DB_HOST: "h", DB_PORT: "1", DB_USER_NAME: "u", DB_PASSWORD: "p", DB_NAME: "n"}
	assert.Contains(t, env.DSN(), "sslmode=disable")
}
