package cli

import (
	"errors"
	"fmt"
	"testing"

	"github.com/agisilaos/farewatch/internal/history"
	"github.com/agisilaos/farewatch/internal/model"
	"github.com/agisilaos/farewatch/internal/notify"
	"github.com/agisilaos/farewatch/internal/provider"
	"github.com/stretchr/testify/assert"
)

func TestExitCode(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{name: "nil", err: nil, want: ExitSuccess},
		{name: "generic", err: errors.New("boom"), want: ExitGenericFailure},
		{name: "usage", err: newExitError(ExitInvalidUsage, "bad args"), want: ExitInvalidUsage},
		{name: "notify", err: wrapExitError(ExitNotifyFailure, errors.New("smtp")), want: ExitNotifyFailure},
		{name: "wrapped twice keeps first code", err: wrapExitError(ExitGenericFailure, newExitError(ExitNoMatches, "none")), want: ExitNoMatches},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ExitCode(tc.err))
		})
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: bad date", model.ErrConfiguration), ExitInvalidUsage},
		{fmt.Errorf("%w: no key", provider.ErrAuthRequired), ExitAuthRequired},
		{fmt.Errorf("%w: disk full", history.ErrStorage), ExitStorageFailure},
		{fmt.Errorf("%w: 500", provider.ErrSearchFailure), ExitProviderFailure},
		{fmt.Errorf("%w: 429", provider.ErrRateLimited), ExitProviderFailure},
		{fmt.Errorf("%w: smtp", notify.ErrNotification), ExitNotifyFailure},
		{errors.New("other"), ExitGenericFailure},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ExitCode(classify(tc.err)), tc.err.Error())
	}
	assert.NoError(t, classify(nil))
}

func TestUnknownCommandSuggestion(t *testing.T) {
	err := unknownCommand("", "watcch", []string{"watch", "ask", "history"})
	assert.Equal(t, ExitInvalidUsage, ExitCode(err))
	assert.Equal(t, `unknown command "watcch"`, err.Error())
	assert.Equal(t, []string{"did you mean: farewatch watch", "farewatch --help"}, ErrorHints(err))

	err = unknownCommand("history", "lisst", []string{"list", "min", "last"})
	assert.Equal(t, `unknown history action "lisst"`, err.Error())
	assert.Equal(t, "did you mean: farewatch history list", ErrorHints(err)[0])
}

func TestUnknownKeySuggestion(t *testing.T) {
	err := unknownKey("treshold")
	assert.Equal(t, ExitInvalidUsage, ExitCode(err))
	assert.Equal(t, []string{"did you mean: threshold", "farewatch config list"}, ErrorHints(err))
}

func TestErrorHintsByKind(t *testing.T) {
	auth := ErrorHints(fmt.Errorf("%w: missing", provider.ErrAuthRequired))
	assert.Contains(t, auth, "farewatch doctor")
	assert.Len(t, auth, 3)

	assert.Contains(t, ErrorHints(fmt.Errorf("%w", history.ErrStorage)), "farewatch doctor")
	assert.NotEmpty(t, ErrorHints(newExitError(ExitNoMatches, "none")))
	assert.Empty(t, ErrorHints(errors.New("plain")))
	assert.Nil(t, ErrorHints(nil))
}
