package postgres

import (
	"fmt"
	"time"

	"github.com/olgagaga/web3-learning/internal/domain/shared"
)

// nullTime maps the zero time to NULL for nullable timestamp columns.
func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// timeVal maps NULL back to the zero time.
func timeVal(p *time.Time) time.Time {
	if p == nil {
		return time.Time{}
	}
	return *p
}

// scanAmount parses a NUMERIC column selected as text.
func scanAmount(s string) (shared.Amount, error) {
	a, err := shared.NewAmount(s)
	if err != nil {
		return shared.Amount{}, fmt.Errorf("invalid stored amount %q: %w", s, err)
	}
	return a, nil
}
