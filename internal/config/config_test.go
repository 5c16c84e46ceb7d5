package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/agisilaos/farewatch/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "YUL", cfg.Origin)
	assert.Equal(t, "LIM", cfg.Destination)
	assert.Equal(t, "CAD", cfg.Currency)
	assert.Equal(t, 24*time.Hour, cfg.Interval)
	assert.True(t, cfg.Flexible)
	assert.Equal(t, 3, cfg.Range)
	assert.Equal(t, 3, cfg.MaxStops)
	assert.Equal(t, "serpapi", cfg.Provider)
	assert.Equal(t, 587, cfg.SMTP.Port)
	assert.Equal(t, "file", cfg.History.Backend)

	p, err := cfg.Params()
	require.NoError(t, err)
	assert.Nil(t, p.Threshold)
	assert.True(t, p.Depart.IsZero())
	assert.Equal(t, "YUL-LIM-CAD", p.RouteKey())
}

func TestLoadFileAndEnvLayers(t *testing.T) {
	path := writeConfig(t, `
origin: yyz
destination: cuz
depart: 2026-03-05
return: 2026-03-19
threshold: 750.50
interval: 6h
max_stops: 1
currency_policy: convert
rates:
  USD: 1.36
serpapi:
  api_key: from-file
kafka:
  brokers: [k1:9092, k2:9092]
`)
	t.Setenv("FAREWATCH_SERPAPI_API_KEY", "from-env")
	t.Setenv("FAREWATCH_RANGE", "5")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "YYZ", cfg.Origin)
	assert.Equal(t, 6*time.Hour, cfg.Interval)
	assert.Equal(t, "from-env", cfg.SerpAPI.APIKey)
	assert.Equal(t, 5, cfg.Range)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)

	p, err := cfg.Params()
	require.NoError(t, err)
	assert.Equal(t, "2026-03-05", p.Depart.Format(model.DateLayout))
	assert.Equal(t, "2026-03-19", p.Return.Format(model.DateLayout))
	require.NotNil(t, p.Threshold)
	assert.Equal(t, "750.5", p.Threshold.String())
	assert.Equal(t, 1, p.MaxStops)

	rates, err := cfg.ParsedRates()
	require.NoError(t, err)
	assert.Equal(t, "1.36", rates["USD"].String())
}

func TestValidateRejectsUnknownChoices(t *testing.T) {
	cases := map[string]string{
		"provider":        "provider: kayak\n",
		"currency policy": "currency_policy: guess\n",
		"history backend": "history:\n  backend: sqlite\n",
		"state backend":   "state:\n  backend: etcd\n",
		"postgres dsn":    "history:\n  backend: postgres\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			require.Error(t, err)
			assert.True(t, errors.Is(err, model.ErrConfiguration))
		})
	}
}

func TestParamsRejectsSameOriginAndDestination(t *testing.T) {
	cfg, err := Load(writeConfig(t, "origin: LIM\ndestination: lim\n"))
	require.NoError(t, err)
	_, err = cfg.Params()
	assert.ErrorIs(t, err, model.ErrConfiguration)
}

func TestParamsRejectsBadDateAndThreshold(t *testing.T) {
	_, err := Config{Origin: "YUL", Destination: "LIM", Currency: "CAD", Depart: "05/03/2026"}.Params()
	assert.ErrorIs(t, err, model.ErrConfiguration)

	_, err = Config{Origin: "YUL", Destination: "LIM", Currency: "CAD", Threshold: "cheap"}.Params()
	assert.ErrorIs(t, err, model.ErrConfiguration)
}

func TestOneWayDropsReturn(t *testing.T) {
	p, err := Config{Origin: "YUL", Destination: "LIM", Currency: "CAD", Depart: "2026-03-05", Return: "2026-03-19", OneWay: true}.Params()
	require.NoError(t, err)
	assert.True(t, p.Return.IsZero())
}

func TestStateDirPrecedence(t *testing.T) {
	t.Setenv("FAREWATCH_STATE_DIR", "/env/state")
	t.Setenv("XDG_STATE_HOME", "/xdg")

	dir, err := StateDir("/flag/state")
	require.NoError(t, err)
	assert.Equal(t, "/flag/state", dir)

	dir, err = StateDir("")
	require.NoError(t, err)
	assert.Equal(t, "/env/state", dir)

	t.Setenv("FAREWATCH_STATE_DIR", "")
	dir, err = StateDir("")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/xdg", "farewatch"), dir)
}

func TestConfigPathUsesXDG(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/cfg")
	p, err := ConfigPath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/cfg", "farewatch", "config.yaml"), p)
}

func TestFileSetGetRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	f, err := OpenFile(path)
	require.NoError(t, err)

	require.NoError(t, f.Set("origin", "YYZ"))
	require.NoError(t, f.Set("smtp.port", "2525"))
	require.NoError(t, f.Set("notify.terminal", "false"))
	require.NoError(t, f.Set("kafka.brokers", "a:9092, b:9092"))
	require.NoError(t, f.Set("rates.USD", "1.36"))
	require.NoError(t, f.Set("llm.api_key", "sk-secret"))
	assert.Error(t, f.Set("nope", "x"))
	require.NoError(t, f.Save())

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "YYZ", cfg.Origin)
	assert.Equal(t, 2525, cfg.SMTP.Port)
	assert.False(t, cfg.Notify.Terminal)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "sk-secret", cfg.LLM.APIKey)

	reopened, err := OpenFile(path)
	require.NoError(t, err)
	v, ok := reopened.Get("smtp.port")
	require.True(t, ok)
	assert.Equal(t, 2525, v)

	flat := reopened.Flatten()
	assert.Equal(t, "a:9092,b:9092", flat["kafka.brokers"])
	assert.Equal(t, "***", Redact("llm.api_key", flat["llm.api_key"]))
	assert.Equal(t, "YYZ", Redact("origin", flat["origin"]))
	assert.Equal(t, "", Redact("llm.api_key", ""))
}

func TestKeysAreSorted(t *testing.T) {
	keys := Keys()
	assert.IsNonDecreasing(t, keys)
	assert.Contains(t, keys, "history.backend")
	assert.True(t, Known("rates.EUR"))
	assert.False(t, Known("rates.EURO"))
}
