package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/agisilaos/farewatch/internal/config"
	"github.com/agisilaos/farewatch/internal/model"
	"github.com/agisilaos/farewatch/internal/notify"
	"github.com/agisilaos/farewatch/internal/provider"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var (
	errSMTPIncomplete = errors.New("smtp configuration incomplete")
	errWebhookMissing = errors.New("webhook url missing")
	errKafkaMissing   = errors.New("kafka brokers missing")
)

func (a App) newNotifyCommand(g *globalFlags) *cobra.Command {
	var channel, to, url string
	test := &cobra.Command{
		Use:   "test",
		Short: "Send a synthetic alert through the configured channels",
		Args:  usageArgs(0, "notify test [--channel all|terminal|email|webhook|kafka] [--to EMAIL] [--url URL]"),
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := a.setup(cmd, g, nil)
			if err != nil {
				return err
			}
			if to != "" {
				rt.cfg.Notify.Email = to
			}
			if url != "" {
				rt.cfg.Notify.WebhookURL = url
			}
			out := a.Out
			if g.JSON {
				out = a.Err
			}
			chs, err := selectChannels(rt.cfg, strings.ToLower(channel), out)
			if err != nil {
				return err
			}
			params, err := rt.cfg.Params()
			if err != nil {
				return classify(err)
			}
			d := notify.NewDispatcher(rt.logger, chs...)
			defer d.Close()
			alert := syntheticAlert(params, a.now())
			names := make([]string, 0, len(chs))
			for _, c := range chs {
				names = append(names, c.Name())
			}
			if err := d.Dispatch(cmd.Context(), alert); err != nil {
				return wrapExitError(ExitNotifyFailure, err)
			}
			return writeMaybeJSON(a.Out, g, map[string]any{"ok": true, "channels": names}, func(w io.Writer) {
				fmt.Fprintf(w, "test alert delivered via %s\n", strings.Join(names, ", "))
			})
		},
	}
	test.Flags().StringVar(&channel, "channel", "all", "all|terminal|email|webhook|kafka")
	test.Flags().StringVar(&to, "to", "", "Email recipient (overrides notify.email)")
	test.Flags().StringVar(&url, "url", "", "Webhook URL (overrides notify.webhook_url)")
	return group("notify", "Notification utilities", test)
}

func selectChannels(cfg config.Config, channel string, out io.Writer) ([]notify.Channel, error) {
	switch channel {
	case "", "all":
		chs := channels(cfg, out)
		if len(chs) == 0 {
			chs = []notify.Channel{notify.TerminalChannel{W: out}}
		}
		return chs, nil
	case "terminal":
		return []notify.Channel{notify.TerminalChannel{W: out}}, nil
	case "email":
		if err := validateNotifyEmailRuntime(cfg); err != nil {
			return nil, wrapExitError(ExitNotifyFailure, err)
		}
		return []notify.Channel{notify.NewEmailChannel(smtpConfig(cfg), cfg.Notify.Email)}, nil
	case "webhook":
		if strings.TrimSpace(cfg.Notify.WebhookURL) == "" {
			return nil, newExitError(ExitNotifyFailure, "%v: set --url or notify.webhook_url", errWebhookMissing)
		}
		return []notify.Channel{notify.WebhookChannel{URL: cfg.Notify.WebhookURL}}, nil
	case "kafka":
		if len(cfg.Kafka.Brokers) == 0 {
			return nil, newExitError(ExitNotifyFailure, "%v: set kafka.brokers", errKafkaMissing)
		}
		return []notify.Channel{notify.NewKafkaChannel(cfg.Kafka.Brokers, cfg.Kafka.Topic)}, nil
	default:
		return nil, newExitError(ExitInvalidUsage, "--channel must be all, terminal, email, webhook or kafka")
	}
}

func validateNotifyEmailRuntime(cfg config.Config) error {
	if strings.TrimSpace(cfg.Notify.Email) == "" {
		return fmt.Errorf("%w: missing email recipient (set --to or notify.email)", errSMTPIncomplete)
	}
	if missing := missingSMTPFields(cfg); len(missing) > 0 {
		return fmt.Errorf("%w: missing required smtp fields: %s", errSMTPIncomplete, strings.Join(missing, ", "))
	}
	return nil
}

func missingSMTPFields(cfg config.Config) []string {
	missing := []string{}
	if strings.TrimSpace(cfg.SMTP.Host) == "" {
		missing = append(missing, "smtp.host")
	}
	if strings.TrimSpace(cfg.SMTP.Username) == "" {
		missing = append(missing, "smtp.username")
	}
	if strings.TrimSpace(cfg.SMTP.Password) == "" {
		missing = append(missing, "smtp.password")
	}
	if strings.TrimSpace(cfg.SMTP.Sender) == "" {
		missing = append(missing, "smtp.sender")
	}
	return missing
}

// syntheticAlert is a plausible deal on the configured route.
func syntheticAlert(params model.SearchParameters, now time.Time) model.Alert {
	depart := params.Depart
	if depart.IsZero() {
		depart = model.Day(now).AddDate(0, 0, 30)
	}
	dates := model.DatePair{Depart: depart}
	if !params.OneWay {
		dates.Return = depart.AddDate(0, 0, 14)
		if !params.Return.IsZero() && params.Return.After(depart) {
			dates.Return = params.Return
		}
	}
	price := decimal.RequireFromString("499.00")
	req := provider.Request{Origin: params.Origin, Destination: params.Destination, Dates: dates, Currency: params.Currency, Adults: 1, MaxStops: params.MaxStops}
	offer := model.Offer{
		ID:       "notify-test",
		Provider: "test",
		Price:    price,
		Currency: params.Currency,
		Stops:    1,
		Segments: 2,
		Carriers: []string{"AC"},
		Dates:    dates,
		DeepLink: provider.GoogleFlightsURL(req),
	}
	obs := model.PriceObservation{
		ID:         "notify-test",
		CycleID:    "notify-test",
		ObservedAt: now.UTC(),
		Params:     params,
		Outcome:    model.OutcomeFound,
		MinPrice:   &price,
		Currency:   params.Currency,
		Offer:      &offer,
		OffersSeen: 1,
		PairsTotal: 1,
	}
	return model.Alert{
		Route:       params.RouteKey(),
		TriggeredAt: now.UTC(),
		Reason:      "notification test",
		Observation: obs,
		Decision:    model.Decision{Verdict: model.VerdictNotify, Reason: "notification test", Threshold: params.Threshold},
		URL:         offer.DeepLink,
	}
}
