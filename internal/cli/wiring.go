package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/agisilaos/farewatch/internal/config"
	"github.com/agisilaos/farewatch/internal/history"
	"github.com/agisilaos/farewatch/internal/llm"
	"github.com/agisilaos/farewatch/internal/model"
	"github.com/agisilaos/farewatch/internal/notify"
	"github.com/agisilaos/farewatch/internal/offers"
	"github.com/agisilaos/farewatch/internal/provider"
	"github.com/agisilaos/farewatch/internal/state"
)

const (
	historyFile   = "history.jsonl"
	dealStateFile = "deal_state.json"
)

var errProviderAuthMissing = errors.New("provider auth missing")

// validateProviderRuntime catches missing credentials before a cycle starts;
// inside a cycle they would only show up as per-pair failures.
func validateProviderRuntime(cfg config.Config) error {
	switch cfg.Provider {
	case "serpapi":
		if strings.TrimSpace(cfg.SerpAPI.APIKey) == "" {
			return fmt.Errorf("%w: %w: provider=serpapi requires serpapi.api_key", provider.ErrAuthRequired, errProviderAuthMissing)
		}
	case "amadeus":
		if strings.TrimSpace(cfg.Amadeus.ClientID) == "" || strings.TrimSpace(cfg.Amadeus.ClientSecret) == "" {
			return fmt.Errorf("%w: %w: provider=amadeus requires amadeus.client_id and amadeus.client_secret", provider.ErrAuthRequired, errProviderAuthMissing)
		}
	case "fixture":
		if strings.TrimSpace(cfg.Fixture) == "" {
			return fmt.Errorf("%w: provider=fixture requires fixture (path to a YAML offers file)", model.ErrConfiguration)
		}
	}
	return nil
}

func newSearcher(cfg config.Config) (provider.Searcher, error) {
	if err := validateProviderRuntime(cfg); err != nil {
		return nil, err
	}
	switch cfg.Provider {
	case "serpapi":
		return provider.SerpAPIProvider{
			APIKey:  cfg.SerpAPI.APIKey,
			Timeout: cfg.ProviderTimeout,
			Retries: cfg.ProviderRetries,
			Backoff: cfg.ProviderBackoff,
		}, nil
	case "amadeus":
		return &provider.AmadeusProvider{
			ClientID:     cfg.Amadeus.ClientID,
			ClientSecret: cfg.Amadeus.ClientSecret,
			BaseURL:      cfg.Amadeus.BaseURL,
			Timeout:      cfg.ProviderTimeout,
			Retries:      cfg.ProviderRetries,
			Backoff:      cfg.ProviderBackoff,
		}, nil
	case "google-url":
		return provider.LinkOnlyProvider{}, nil
	case "fixture":
		return &provider.FixtureProvider{Path: cfg.Fixture}, nil
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", model.ErrConfiguration, cfg.Provider)
	}
}

func newEvaluator(cfg config.Config) (offers.Evaluator, error) {
	policy, err := offers.ParsePolicy(cfg.CurrencyPolicy)
	if err != nil {
		return offers.Evaluator{}, err
	}
	rates, err := cfg.ParsedRates()
	if err != nil {
		return offers.Evaluator{}, err
	}
	return offers.Evaluator{
		Policy:    policy,
		Converter: offers.StaticRates{Base: cfg.Currency, Rates: rates},
	}, nil
}

func openHistory(ctx context.Context, cfg config.Config, stateDir string) (*history.Store, error) {
	var backend history.Backend
	switch cfg.History.Backend {
	case "postgres":
		pg, err := history.NewPGBackend(ctx, cfg.History.DSN)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", history.ErrStorage, err)
		}
		backend = pg
	default:
		backend = history.FileBackend{Path: filepath.Join(stateDir, historyFile)}
	}
	store, err := history.Open(ctx, backend)
	if err != nil {
		_ = backend.Close()
		return nil, err
	}
	return store, nil
}

func openDeals(ctx context.Context, cfg config.Config, stateDir string) (state.Store, io.Closer, error) {
	if cfg.State.Backend == "redis" {
		rs := state.NewRedisStore(state.RedisConfig{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err := rs.Ping(ctx); err != nil {
			_ = rs.Close()
			return nil, nil, fmt.Errorf("%w: redis %s: %v", history.ErrStorage, cfg.Redis.Addr, err)
		}
		return rs, rs, nil
	}
	return state.NewFileStore(filepath.Join(stateDir, dealStateFile)), nil, nil
}

// channels returns every configured notification channel. Terminal alerts go
// to out.
func channels(cfg config.Config, out io.Writer) []notify.Channel {
	var chs []notify.Channel
	if cfg.Notify.Terminal {
		chs = append(chs, notify.TerminalChannel{W: out})
	}
	smtp := smtpConfig(cfg)
	if smtp.Configured() && strings.TrimSpace(cfg.Notify.Email) != "" {
		chs = append(chs, notify.NewEmailChannel(smtp, cfg.Notify.Email))
	}
	if strings.TrimSpace(cfg.Notify.WebhookURL) != "" {
		chs = append(chs, notify.WebhookChannel{URL: cfg.Notify.WebhookURL})
	}
	if len(cfg.Kafka.Brokers) > 0 {
		chs = append(chs, notify.NewKafkaChannel(cfg.Kafka.Brokers, cfg.Kafka.Topic))
	}
	return chs
}

func smtpConfig(cfg config.Config) notify.SMTPConfig {
	return notify.SMTPConfig{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		Sender:   cfg.SMTP.Sender,
	}
}

// newLLMClient returns nil when no language model is configured; extraction
// then runs on keywords alone.
func newLLMClient(cfg config.LLMConfig, logger *slog.Logger) (llm.Client, error) {
	client, err := llm.New(llm.Config{
		Provider: cfg.Provider,
		Model:    cfg.Model,
		APIKey:   cfg.APIKey,
		BaseURL:  cfg.BaseURL,
		Timeout:  cfg.Timeout,
	})
	if errors.Is(err, llm.ErrUnavailable) {
		logger.Debug("language model unavailable, using keyword extraction", "err", err)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrConfiguration, err)
	}
	return client, nil
}

// services bundles the collaborators of one scheduler run.
type services struct {
	searcher   provider.Searcher
	evaluator  offers.Evaluator
	history    *history.Store
	deals      state.Store
	dispatcher *notify.Dispatcher
	closers    []io.Closer
}

func (a App) openServices(ctx context.Context, rt *runtime) (*services, error) {
	searcher, err := newSearcher(rt.cfg)
	if err != nil {
		return nil, err
	}
	evaluator, err := newEvaluator(rt.cfg)
	if err != nil {
		return nil, err
	}
	hist, err := openHistory(ctx, rt.cfg, rt.stateDir)
	if err != nil {
		return nil, err
	}
	svc := &services{searcher: searcher, evaluator: evaluator, history: hist, closers: []io.Closer{hist}}
	deals, closer, err := openDeals(ctx, rt.cfg, rt.stateDir)
	if err != nil {
		_ = svc.Close()
		return nil, err
	}
	svc.deals = deals
	if closer != nil {
		svc.closers = append(svc.closers, closer)
	}
	alertsOut := a.Out
	if rt.g.JSON {
		alertsOut = a.Err
	}
	svc.dispatcher = notify.NewDispatcher(rt.logger, channels(rt.cfg, alertsOut)...)
	svc.closers = append(svc.closers, svc.dispatcher)
	return svc, nil
}

func (s *services) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i].Close())
	}
	return errors.Join(errs...)
}
