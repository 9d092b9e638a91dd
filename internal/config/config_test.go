package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/quizroom/internal/config"
)

type testConfig struct {
	HTTP struct {
		Port int32
	}

	Game struct {
		HostGracePeriod time.Duration
		Retention       time.Duration
	}

	Redis struct {
		Archive struct {
			Addrs  []string
			Prefix string
		}
	}

	Games []struct {
		ID    string `mapstructure:"id"`
		Title string `mapstructure:"title"`
	}
}

func TestLoad(t *testing.T) {
	p := writeFile(t, `
http:
  port: 8081
game:
  hostgraceperiod: 45s
redis:
  archive:
    addrs: ["localhost:6379"]
games:
  - id: capitals
    title: Capitals
`)

	var c testConfig
	c.HTTP.Port = 8080
	c.Game.Retention = 10 * time.Minute
	c.Redis.Archive.Prefix = "quizroom"

	require.NoError(t, config.Load(p, &c))

	assert.Equal(t, int32(8081), c.HTTP.Port)
	assert.Equal(t, 45*time.Second, c.Game.HostGracePeriod)
	assert.Equal(t, 10*time.Minute, c.Game.Retention, "defaults should survive")
	assert.Equal(t, "quizroom", c.Redis.Archive.Prefix)
	assert.Equal(t, []string{"localhost:6379"}, c.Redis.Archive.Addrs)
	require.Len(t, c.Games, 1)
	assert.Equal(t, "Capitals", c.Games[0].Title)
}

func TestLoad_EnvOverride(t *testing.T) {
	p := writeFile(t, "http:\n  port: 8081\n")
	t.Setenv("HTTP_PORT", "9000")

	var c testConfig
	require.NoError(t, config.Load(p, &c))
	assert.Equal(t, int32(9000), c.HTTP.Port)
}

func TestLoad_EnvList(t *testing.T) {
	p := writeFile(t, "redis:\n  archive:\n    addrs: [\"localhost:6379\"]\n")
	t.Setenv("REDIS_ARCHIVE_ADDRS", "redis-1:6379,redis-2:6379")

	var c testConfig
	require.NoError(t, config.Load(p, &c))
	assert.Equal(t, []string{"redis-1:6379", "redis-2:6379"}, c.Redis.Archive.Addrs)
}

func TestLoad_EnvPrefix(t *testing.T) {
	p := writeFile(t, "http:\n  port: 8081\n")
	t.Setenv("HTTP_PORT", "9000")
	t.Setenv("QUIZROOM_HTTP_PORT", "9100")

	var c testConfig
	require.NoError(t, config.Load(p, &c, config.WithEnvPrefix("QUIZROOM")))
	assert.Equal(t, int32(9100), c.HTTP.Port)
}

func TestLoad_MissingFile(t *testing.T) {
	var c testConfig
	assert.Error(t, config.Load(filepath.Join(t.TempDir(), "nope.yaml"), &c))
}

func writeFile(t *testing.T, content string) string {
	t.Helper()

	p := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	return p
}
