package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/agisilaos/farewatch/internal/config"
	"github.com/agisilaos/farewatch/internal/history"
	"github.com/agisilaos/farewatch/internal/model"
	"github.com/agisilaos/farewatch/internal/notify"
	"github.com/agisilaos/farewatch/internal/provider"
)

const (
	ExitSuccess         = 0
	ExitGenericFailure  = 1
	ExitInvalidUsage    = 2
	ExitAuthRequired    = 3
	ExitProviderFailure = 4
	ExitNoMatches       = 5
	ExitNotifyFailure   = 6
	ExitStorageFailure  = 7
)

type ExitError struct {
	Code int
	Err  error
}

func (e ExitError) Error() string {
	if e.Err == nil {
		return ""
	}
	return e.Err.Error()
}

func (e ExitError) Unwrap() error {
	return e.Err
}

func newExitError(code int, format string, args ...any) error {
	return ExitError{Code: code, Err: fmt.Errorf(format, args...)}
}

func wrapExitError(code int, err error) error {
	if err == nil {
		return nil
	}
	var ex ExitError
	if errors.As(err, &ex) {
		return err
	}
	return ExitError{Code: code, Err: err}
}

func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var ex ExitError
	if errors.As(err, &ex) {
		if ex.Code <= 0 {
			return ExitGenericFailure
		}
		return ex.Code
	}
	return ExitGenericFailure
}

// classify maps domain error kinds onto exit codes.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, model.ErrConfiguration):
		return wrapExitError(ExitInvalidUsage, err)
	case errors.Is(err, provider.ErrAuthRequired):
		return wrapExitError(ExitAuthRequired, err)
	case errors.Is(err, history.ErrStorage):
		return wrapExitError(ExitStorageFailure, err)
	case errors.Is(err, provider.ErrSearchFailure),
		errors.Is(err, provider.ErrRateLimited),
		errors.Is(err, provider.ErrTransient):
		return wrapExitError(ExitProviderFailure, err)
	case errors.Is(err, notify.ErrNotification):
		return wrapExitError(ExitNotifyFailure, err)
	default:
		return wrapExitError(ExitGenericFailure, err)
	}
}

type unknownCommandError struct {
	Scope      string
	Name       string
	Suggestion string
}

func (e unknownCommandError) Error() string {
	if e.Scope == "" {
		return fmt.Sprintf("unknown command %q", e.Name)
	}
	return fmt.Sprintf("unknown %s action %q", e.Scope, e.Name)
}

func unknownCommand(scope, name string, choices []string) error {
	return ExitError{Code: ExitInvalidUsage, Err: unknownCommandError{
		Scope:      scope,
		Name:       name,
		Suggestion: suggestClosest(name, choices),
	}}
}

type unknownKeyError struct {
	Key        string
	Suggestion string
}

func (e unknownKeyError) Error() string {
	return fmt.Sprintf("unknown key %q", e.Key)
}

func unknownKey(key string) error {
	return ExitError{Code: ExitInvalidUsage, Err: unknownKeyError{Key: key, Suggestion: suggestClosest(key, config.Keys())}}
}

// ErrorHints returns one-line follow-up suggestions for err.
func ErrorHints(err error) []string {
	if err == nil {
		return nil
	}
	var hints []string
	var cmdErr unknownCommandError
	var keyErr unknownKeyError
	switch {
	case errors.As(err, &cmdErr):
		path := strings.TrimSpace("farewatch " + cmdErr.Scope)
		if cmdErr.Suggestion != "" {
			hints = append(hints, fmt.Sprintf("did you mean: %s %s", path, cmdErr.Suggestion))
		}
		hints = append(hints, path+" --help")
	case errors.As(err, &keyErr):
		if keyErr.Suggestion != "" {
			hints = append(hints, "did you mean: "+keyErr.Suggestion)
		}
		hints = append(hints, "farewatch config list")
	case errors.Is(err, provider.ErrAuthRequired):
		hints = append(hints,
			"farewatch config set serpapi.api_key <key> (or FAREWATCH_SERPAPI_API_KEY)",
			"farewatch config set provider google-url to run without an API key",
			"farewatch doctor")
	case errors.Is(err, model.ErrConfiguration):
		hints = append(hints, "farewatch config list", "farewatch doctor")
	case errors.Is(err, history.ErrStorage):
		hints = append(hints, "check history.backend and state.backend settings", "farewatch doctor")
	case errors.Is(err, notify.ErrNotification):
		hints = append(hints, "farewatch doctor")
	case ExitCode(err) == ExitNoMatches:
		hints = append(hints, "widen the search: farewatch config set range 5 or max_stops 3")
	}
	return hints
}
