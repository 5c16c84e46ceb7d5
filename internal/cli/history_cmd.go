package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/agisilaos/farewatch/internal/history"
	"github.com/agisilaos/farewatch/internal/model"
	"github.com/spf13/cobra"
)

func (a App) newHistoryCommand(g *globalFlags) *cobra.Command {
	var (
		limit     int
		route     string
		allRoutes bool
	)
	routeFlags := func(cmd *cobra.Command) *cobra.Command {
		cmd.Flags().StringVar(&route, "route", "", "Route key (default: configured route)")
		cmd.Flags().BoolVar(&allRoutes, "all-routes", false, "Include observations from every route")
		return cmd
	}
	list := &cobra.Command{
		Use:   "list",
		Short: "Print recorded observations, oldest first",
		Args:  usageArgs(0, "history list [--limit N] [--route KEY | --all-routes]"),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withHistory(cmd, g, route, allRoutes, func(h *history.Store, key string) error {
				all := h.ForRoute(key)
				if limit > 0 && limit < len(all) {
					all = all[len(all)-limit:]
				}
				return writeMaybeJSON(a.Out, g, all, func(w io.Writer) {
					writePlainTableRow(w, "observed_at", "route", "outcome", "min_price", "dates", "pairs")
					for _, o := range all {
						writeObservationRow(w, o)
					}
				})
			})
		},
	}
	list.Flags().IntVar(&limit, "limit", 0, "Only the most recent N observations")

	single := func(use, short string, pick func(*history.Store, string) (model.PriceObservation, bool), empty string) *cobra.Command {
		return routeFlags(&cobra.Command{
			Use:   use,
			Short: short,
			Args:  usageArgs(0, "history "+use+" [--route KEY | --all-routes]"),
			RunE: func(cmd *cobra.Command, _ []string) error {
				return a.withHistory(cmd, g, route, allRoutes, func(h *history.Store, key string) error {
					obs, ok := pick(h, key)
					if !ok {
						return newExitError(ExitNoMatches, "%s", empty)
					}
					return writeMaybeJSON(a.Out, g, obs, func(w io.Writer) { writeObservationRow(w, obs) })
				})
			},
		})
	}

	return group("history", "Inspect the price history",
		routeFlags(list),
		single("min", "Print the lowest priced observation to date", (*history.Store).MinimumFor, "no priced observation recorded yet"),
		single("last", "Print the most recent observation", (*history.Store).MostRecentFor, "no observation recorded yet"),
	)
}

// withHistory opens the log and resolves the route key queries are scoped
// to; allRoutes leaves the key empty.
func (a App) withHistory(cmd *cobra.Command, g *globalFlags, route string, allRoutes bool, fn func(*history.Store, string) error) error {
	rt, err := a.setup(cmd, g, nil)
	if err != nil {
		return err
	}
	if allRoutes && strings.TrimSpace(route) != "" {
		return newExitError(ExitInvalidUsage, "--route and --all-routes are mutually exclusive")
	}
	key := ""
	if !allRoutes {
		if key, err = routeKey(rt, route); err != nil {
			return err
		}
	}
	h, err := openHistory(cmd.Context(), rt.cfg, rt.stateDir)
	if err != nil {
		return classify(err)
	}
	defer h.Close()
	return fn(h, key)
}

// routeKey is the --route flag, or the configured route when it is empty.
func routeKey(rt *runtime, route string) (string, error) {
	if key := strings.ToUpper(strings.TrimSpace(route)); key != "" {
		return key, nil
	}
	params, err := rt.cfg.Params()
	if err != nil {
		return "", classify(err)
	}
	return params.RouteKey(), nil
}

func writeObservationRow(w io.Writer, o model.PriceObservation) {
	price, dates := "-", "-"
	if o.MinPrice != nil {
		price = o.MinPrice.StringFixed(2) + " " + o.Currency
	}
	if o.Offer != nil {
		dates = o.Offer.Dates.Key()
	}
	writePlainTableRow(w,
		o.ObservedAt.Format("2006-01-02T15:04:05Z07:00"),
		o.Params.RouteKey(),
		string(o.Outcome),
		price,
		dates,
		strconv.Itoa(o.PairsTotal-o.PairsFailed)+"/"+strconv.Itoa(o.PairsTotal),
	)
}

func (a App) newStateCommand(g *globalFlags) *cobra.Command {
	var route string
	reset := &cobra.Command{
		Use:   "reset",
		Short: "Forget the best and last-notified prices for a route",
		Args:  usageArgs(0, "state reset [--route ORIGIN-DEST-CUR]"),
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := a.setup(cmd, g, nil)
			if err != nil {
				return err
			}
			key, err := routeKey(rt, route)
			if err != nil {
				return err
			}
			deals, closer, err := openDeals(cmd.Context(), rt.cfg, rt.stateDir)
			if err != nil {
				return classify(err)
			}
			if closer != nil {
				defer closer.Close()
			}
			if err := deals.Reset(cmd.Context(), key); err != nil {
				return wrapExitError(ExitStorageFailure, fmt.Errorf("%w: reset %s: %v", history.ErrStorage, key, err))
			}
			return writeMaybeJSON(a.Out, g, map[string]any{"ok": true, "route": key}, func(w io.Writer) {
				fmt.Fprintf(w, "deal state reset for %s\n", key)
			})
		},
	}
	reset.Flags().StringVar(&route, "route", "", "Route key (default: configured route)")

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the deal state for a route",
		Args:  usageArgs(0, "state show [--route ORIGIN-DEST-CUR]"),
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := a.setup(cmd, g, nil)
			if err != nil {
				return err
			}
			key, err := routeKey(rt, route)
			if err != nil {
				return err
			}
			deals, closer, err := openDeals(cmd.Context(), rt.cfg, rt.stateDir)
			if err != nil {
				return classify(err)
			}
			if closer != nil {
				defer closer.Close()
			}
			st, err := deals.Load(cmd.Context(), key)
			if err != nil {
				return wrapExitError(ExitStorageFailure, fmt.Errorf("%w: load %s: %v", history.ErrStorage, key, err))
			}
			return writeMaybeJSON(a.Out, g, map[string]any{"route": key, "state": st}, func(w io.Writer) {
				best, notified := "-", "-"
				if st.BestPriceSeen != nil {
					best = st.BestPriceSeen.StringFixed(2)
				}
				if st.LastNotifiedPrice != nil {
					notified = st.LastNotifiedPrice.StringFixed(2)
				}
				writePlainKV(w, "route", key, "best_price_seen", best, "last_notified_price", notified)
			})
		},
	}
	show.Flags().StringVar(&route, "route", "", "Route key (default: configured route)")

	return group("state", "Inspect or reset the deal detector state", reset, show)
}
