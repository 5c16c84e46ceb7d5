package provider

import (
	"context"
	"errors"
	"strings"

	"github.com/agisilaos/farewatch/internal/model"
)

var (
	// ErrSearchFailure marks a per-pair failure; the cycle skips the pair.
	ErrSearchFailure = errors.New("search failure")
	ErrAuthRequired  = errors.New("provider authentication required")
	ErrRateLimited   = errors.New("provider rate limited")
	ErrTransient     = errors.New("transient provider error")
)

type Request struct {
	Origin      string
	Destination string
	Dates       model.DatePair
	Currency    string
	Adults      int
	MaxStops    int
}

// Searcher is the search collaborator. Authentication and session refresh
// are entirely its business.
type Searcher interface {
	Name() string
	Search(ctx context.Context, req Request) ([]model.Offer, error)
}

func firstOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func maxInt(v, fallback int) int {
	if v <= 0 {
		return fallback
	}
	return v
}

// appendCarrier keeps carriers unique and in first-seen order.
func appendCarrier(carriers []string, code string) []string {
	code = strings.TrimSpace(code)
	if code == "" {
		return carriers
	}
	for _, c := range carriers {
		if c == code {
			return carriers
		}
	}
	return append(carriers, code)
}
