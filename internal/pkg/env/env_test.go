package env

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGetEnv_PrefersLoadedFile(t *testing.T) {
	prev := Env
	t.Cleanup(func() { Env = prev })

	Env = map[string]string{"OUTFLO_TEST_KEY": "from-file"}
	t.Setenv("OUTFLO_TEST_KEY", "from-process")
	t.Setenv("OUTFLO_TEST_OTHER", "process-only")

	assert.Equal(t, "from-file", GetEnv("OUTFLO_TEST_KEY", "def"))
	assert.Equal(t, "process-only", GetEnv("OUTFLO_TEST_OTHER", "def"))
	assert.Equal(t, "def", GetEnv("OUTFLO_TEST_MISSING", "def"))
}

func TestTypedGetters(t *testing.T) {
	prev := Env
	t.Cleanup(func() { Env = prev })

	Env = map[string]string{
		"N":       "42",
		"N_BAD":   "forty",
		"B_YES":   "Yes",
		"B_OFF":   "off",
		"B_BAD":   "maybe",
		"D_GO":    "90s",
		"D_BARE":  "30",
		"D_WRONG": "soon",
	}

	assert.Equal(t, 42, GetInt("N", 1))
	assert.Equal(t, 1, GetInt("N_BAD", 1))
	assert.Equal(t, 7, GetInt("N_MISSING", 7))

	assert.True(t, GetBool("B_YES", false))
	assert.False(t, GetBool("B_OFF", true))
	assert.True(t, GetBool("B_BAD", true))

	assert.Equal(t, 90*time.Second, GetDuration("D_GO", time.Minute))
	assert.Equal(t, 30*time.Second, GetDuration("D_BARE", time.Minute))
	assert.Equal(t, time.Minute, GetDuration("D_WRONG", time.Minute))
}

func TestIsDev(t *testing.T) {
	prev := Env
	t.Cleanup(func() { Env = prev })

	Env = map[string]string{"APP_ENV": "dev"}
	assert.True(t, IsDev())
	Env = map[string]string{"APP_ENV": "prod"}
	assert.False(t, IsDev())
}
