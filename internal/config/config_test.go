package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func clearAllEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		EnvTaskQueueLocation,
		EnvTableDefaultTurnTimeout,
		EnvIdleTableCloseSeconds,
		EnvShowdownAdmireMs,
		EnvWinByFoldRevealSeconds,
	} {
		t.Setenv(k, "")
	}
}

func TestFromEnvDefaults(t *testing.T) {
	clearAllEnv(t)

	cfg, err := FromEnv()
	assert.NoError(t, err)
	assert.Equal(t, "", cfg.TaskQueueLocation)
	assert.Equal(t, DefaultTableDefaultTurnTimeout, cfg.TurnTimeout)
	assert.Equal(t, DefaultIdleTableCloseSeconds, cfg.IdleTableClose)
	assert.Equal(t, time.Duration(DefaultShowdownAdmireMs)*time.Millisecond, cfg.ShowdownAdmire)
	assert.Equal(t, time.Duration(DefaultWinByFoldRevealSeconds)*time.Second, cfg.WinByFoldReveal)
}

func TestFromEnvOverridesEveryValue(t *testing.T) {
	clearAllEnv(t)
	t.Setenv(EnvTaskQueueLocation, "queue://region-a")
	t.Setenv(EnvTableDefaultTurnTimeout, "45")
	t.Setenv(EnvIdleTableCloseSeconds, "120")
	t.Setenv(EnvShowdownAdmireMs, "2500")
	t.Setenv(EnvWinByFoldRevealSeconds, "3")

	cfg, err := FromEnv()
	assert.NoError(t, err)
	assert.Equal(t, "queue://region-a", cfg.TaskQueueLocation)
	assert.Equal(t, 45*time.Second, cfg.TurnTimeout)
	assert.Equal(t, 120*time.Second, cfg.IdleTableClose)
	assert.Equal(t, 2500*time.Millisecond, cfg.ShowdownAdmire)
	assert.Equal(t, 3*time.Second, cfg.WinByFoldReveal)
}

func TestFromEnvRejectsNonNumericValues(t *testing.T) {
	cases := []string{
		EnvTableDefaultTurnTimeout,
		EnvIdleTableCloseSeconds,
		EnvShowdownAdmireMs,
		EnvWinByFoldRevealSeconds,
	}
	for _, envVar := range cases {
		t.Run(envVar, func(t *testing.T) {
			clearAllEnv(t)
			t.Setenv(envVar, "not-a-number")
			_, err := FromEnv()
			assert.Error(t, err)
		})
	}
}
