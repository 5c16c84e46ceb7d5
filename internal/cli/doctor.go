package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/agisilaos/farewatch/internal/config"
	"github.com/agisilaos/farewatch/internal/history"
	"github.com/agisilaos/farewatch/internal/llm"
	"github.com/agisilaos/farewatch/internal/state"
	"github.com/spf13/cobra"
)

type doctorCheck struct {
	Name    string `json:"name"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

type doctorReport struct {
	OK       bool          `json:"ok"`
	Failures int           `json:"failures"`
	Warnings int           `json:"warnings"`
	Checks   []doctorCheck `json:"checks"`
}

func (a App) newDoctorCommand(g *globalFlags) *cobra.Command {
	var strict, probe bool
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run readiness checks for unattended monitoring",
		Args:  usageArgs(0, "doctor [--strict] [--probe]"),
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := a.setup(cmd, g, nil)
			if err != nil {
				return err
			}
			report := runDoctorChecks(rt.cfg, rt.stateDir)
			if probe {
				ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
				report = appendChecks(report, probeBackends(ctx, rt.cfg)...)
				cancel()
			}
			if err := writeMaybeJSON(a.Out, g, report, func(w io.Writer) {
				for _, c := range report.Checks {
					fmt.Fprintf(w, "%s\t%s\t%s\n", strings.ToUpper(c.Status), c.Name, c.Message)
				}
				fmt.Fprintf(w, "summary\tfailures=%d\twarnings=%d\n", report.Failures, report.Warnings)
			}); err != nil {
				return wrapExitError(ExitGenericFailure, err)
			}
			effectiveFailures := report.Failures
			if strict {
				effectiveFailures += report.Warnings
			}
			if effectiveFailures > 0 {
				if strict && report.Warnings > 0 && report.Failures == 0 {
					return newExitError(ExitGenericFailure, "doctor strict mode found %d warning(s)", report.Warnings)
				}
				return newExitError(ExitGenericFailure, "doctor found %d failing check(s)", report.Failures)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&strict, "strict", false, "Treat warnings as failures")
	cmd.Flags().BoolVar(&probe, "probe", false, "Also connect to postgres and redis backends")
	return cmd
}

func runDoctorChecks(cfg config.Config, stateDir string) doctorReport {
	var checks []doctorCheck
	add := func(name, status, message string) {
		checks = append(checks, doctorCheck{Name: name, Status: status, Message: message})
	}

	if err := validateProviderRuntime(cfg); err != nil {
		add("provider.auth", "fail", err.Error())
	} else {
		switch cfg.Provider {
		case "google-url":
			add("provider.auth", "warn", "provider=google-url builds links only; no prices are observed")
		case "fixture":
			if _, err := os.Stat(cfg.Fixture); err != nil {
				add("provider.auth", "fail", err.Error())
			} else {
				add("provider.auth", "ok", "fixture "+cfg.Fixture)
			}
		default:
			add("provider.auth", "ok", cfg.Provider+" credentials present")
		}
	}

	if _, err := cfg.Params(); err != nil {
		add("monitor.params", "fail", err.Error())
	} else if strings.TrimSpace(cfg.Threshold) == "" {
		add("monitor.params", "warn", "no threshold: alerts fire on every new minimum")
	} else {
		add("monitor.params", "ok", fmt.Sprintf("%s -> %s, threshold %s %s", cfg.Origin, cfg.Destination, cfg.Threshold, cfg.Currency))
	}

	if dir, err := config.ConfigDir(); err != nil {
		add("paths.config", "fail", err.Error())
	} else if err := ensureWritableDir(dir); err != nil {
		add("paths.config", "fail", err.Error())
	} else {
		add("paths.config", "ok", dir)
	}

	if err := ensureWritableDir(stateDir); err != nil {
		add("paths.state", "fail", err.Error())
	} else {
		add("paths.state", "ok", stateDir)
	}

	missing := missingSMTPFields(cfg)
	switch {
	case len(missing) == 4 && cfg.Notify.Email == "":
		add("notify.email", "warn", "smtp is not configured")
	case len(missing) > 0:
		add("notify.email", "fail", "missing required smtp fields: "+strings.Join(missing, ", "))
	case strings.TrimSpace(cfg.Notify.Email) == "":
		add("notify.email", "fail", "smtp configured but notify.email is empty")
	default:
		add("notify.email", "ok", "smtp configuration complete")
	}

	if strings.TrimSpace(cfg.Notify.WebhookURL) == "" {
		add("notify.webhook", "warn", "notify.webhook_url is not configured")
	} else {
		add("notify.webhook", "ok", "notify.webhook_url configured")
	}

	if len(cfg.Kafka.Brokers) == 0 {
		add("notify.kafka", "ok", "kafka disabled")
	} else if strings.TrimSpace(cfg.Kafka.Topic) == "" {
		add("notify.kafka", "fail", "kafka.brokers set but kafka.topic is empty")
	} else {
		add("notify.kafka", "ok", fmt.Sprintf("topic %s on %s", cfg.Kafka.Topic, strings.Join(cfg.Kafka.Brokers, ",")))
	}

	if cfg.LLM.Provider == "" {
		add("llm", "ok", "no language model; ask uses keyword extraction")
	} else if client, err := llm.New(llm.Config{Provider: cfg.LLM.Provider, Model: cfg.LLM.Model, APIKey: cfg.LLM.APIKey, BaseURL: cfg.LLM.BaseURL}); err != nil {
		add("llm", "warn", err.Error())
	} else {
		add("llm", "ok", client.Name())
	}

	add("storage.history", "ok", "backend="+cfg.History.Backend)
	add("storage.state", "ok", "backend="+cfg.State.Backend)

	return appendChecks(doctorReport{}, checks...)
}

// probeBackends connects to remote storage backends.
func probeBackends(ctx context.Context, cfg config.Config) []doctorCheck {
	var checks []doctorCheck
	if cfg.History.Backend == "postgres" {
		if pg, err := history.NewPGBackend(ctx, cfg.History.DSN); err != nil {
			checks = append(checks, doctorCheck{Name: "probe.postgres", Status: "fail", Message: err.Error()})
		} else {
			_ = pg.Close()
			checks = append(checks, doctorCheck{Name: "probe.postgres", Status: "ok", Message: "connected"})
		}
	}
	if cfg.State.Backend == "redis" {
		rs := state.NewRedisStore(state.RedisConfig{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err := rs.Ping(ctx); err != nil {
			checks = append(checks, doctorCheck{Name: "probe.redis", Status: "fail", Message: err.Error()})
		} else {
			checks = append(checks, doctorCheck{Name: "probe.redis", Status: "ok", Message: cfg.Redis.Addr})
		}
		_ = rs.Close()
	}
	return checks
}

func appendChecks(report doctorReport, checks ...doctorCheck) doctorReport {
	for _, c := range checks {
		report.Checks = append(report.Checks, c)
		switch c.Status {
		case "fail":
			report.Failures++
		case "warn":
			report.Warnings++
		}
	}
	report.OK = report.Failures == 0
	return report
}

func ensureWritableDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	probe := filepath.Join(dir, ".farewatch-write-test")
	if err := os.WriteFile(probe, []byte("ok\n"), 0o600); err != nil {
		return err
	}
	return os.Remove(probe)
}
