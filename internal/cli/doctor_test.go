package cli

import (
	"encoding/json"
	"testing"

	"github.com/agisilaos/farewatch/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func doctorConfig(t *testing.T, provider string) config.Config {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Provider = provider
	return cfg
}

func findCheck(r doctorReport, name string) (doctorCheck, bool) {
	for _, c := range r.Checks {
		if c.Name == name {
			return c, true
		}
	}
	return doctorCheck{}, false
}

func TestRunDoctorChecksSerpAPIMissingKeyFails(t *testing.T) {
	report := runDoctorChecks(doctorConfig(t, "serpapi"), t.TempDir())
	assert.False(t, report.OK)
	c, ok := findCheck(report, "provider.auth")
	require.True(t, ok)
	assert.Equal(t, "fail", c.Status)
	assert.Contains(t, c.Message, "serpapi.api_key")
}

func TestRunDoctorChecksGoogleURLPassesCoreChecks(t *testing.T) {
	report := runDoctorChecks(doctorConfig(t, "google-url"), t.TempDir())
	assert.True(t, report.OK, "failures=%d", report.Failures)
	assert.Positive(t, report.Warnings)

	email, ok := findCheck(report, "notify.email")
	require.True(t, ok)
	assert.Equal(t, "warn", email.Status)
}

func TestRunDoctorChecksIncompleteSMTPFails(t *testing.T) {
	cfg := doctorConfig(t, "google-url")
	cfg.SMTP.Host = "smtp.example.com"
	report := runDoctorChecks(cfg, t.TempDir())
	c, ok := findCheck(report, "notify.email")
	require.True(t, ok)
	assert.Equal(t, "fail", c.Status)
	assert.Contains(t, c.Message, "smtp.username")
}

func TestRunDoctorChecksKafkaWithoutTopic(t *testing.T) {
	cfg := doctorConfig(t, "google-url")
	cfg.Kafka.Brokers = []string{"localhost:9092"}
	cfg.Kafka.Topic = ""
	report := runDoctorChecks(cfg, t.TempDir())
	c, _ := findCheck(report, "notify.kafka")
	assert.Equal(t, "fail", c.Status)
}

func TestCmdDoctorUsage(t *testing.T) {
	app, _, _ := testApp(t)
	err := app.Run([]string{"doctor", "extra"})
	assert.Equal(t, ExitInvalidUsage, ExitCode(err))
}

func TestDoctorStrictFailsOnWarnings(t *testing.T) {
	app, out, _ := testApp(t)
	require.NoError(t, app.Run([]string{"config", "set", "provider", "google-url"}))
	out.Reset()

	err := app.Run([]string{"doctor", "--strict"})
	assert.Equal(t, ExitGenericFailure, ExitCode(err))
	assert.Contains(t, err.Error(), "strict")
	assert.Contains(t, out.String(), "WARN\tnotify.email")
}

func TestDoctorJSONReport(t *testing.T) {
	app, out, _ := testApp(t)
	require.NoError(t, app.Run([]string{"config", "set", "provider", "google-url"}))
	out.Reset()

	require.NoError(t, app.Run([]string{"doctor", "--json"}))
	var report doctorReport
	require.NoError(t, json.Unmarshal(out.Bytes(), &report))
	assert.True(t, report.OK)
	_, ok := findCheck(report, "paths.state")
	assert.True(t, ok)
}
