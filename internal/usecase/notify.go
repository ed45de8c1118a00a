package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"NoteSalesTracker/internal/ports"
)

// Notifiers fans a message out to every configured channel.
type Notifiers []ports.Notifier

var _ ports.Notifier = Notifiers(nil)

// Notify delivers to all channels and joins their failures.
func (n Notifiers) Notify(ctx context.Context, level ports.Level, message string) error {
	var errs []error
	for _, notifier := range n {
		if notifier == nil {
			continue
		}
		if err := notifier.Notify(ctx, level, message); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// CategoryCount is the number of records routed to one category in a pass.
type CategoryCount struct {
	Category string
	Count    int
}

const notifyTimeLayout = "2006-01-02 15:04"

func completeMessage(at time.Time, s Summary) string {
	lines := []string{
		"[Reconcile] pass complete",
		"• Time: " + at.Format(notifyTimeLayout),
		fmt.Sprintf("• Processed: %d", s.Processed),
		fmt.Sprintf("• Removed by cleaning: %d", s.Removed),
	}
	if s.NewArrivals > 0 {
		lines = append(lines, fmt.Sprintf("• New arrivals: %d", s.NewArrivals))
	}

	var breakdown []string
	for _, c := range s.Categories {
		if c.Count > 0 {
			breakdown = append(breakdown, fmt.Sprintf("  - %s: %d", c.Category, c.Count))
		}
	}
	if len(breakdown) > 0 {
		lines = append(lines, "• By category:")
		lines = append(lines, breakdown...)
	}
	if s.TargetCreated {
		lines = append(lines, "• New target workbook: "+s.TargetWorkbook)
	}
	return strings.Join(lines, "\n")
}

func noDataMessage(at time.Time, s Summary) string {
	lines := []string{
		"[Reconcile] pass complete",
		"• Time: " + at.Format(notifyTimeLayout),
		"• Nothing to process",
	}
	if s.TargetCreated {
		lines = append(lines, "• New target workbook: "+s.TargetWorkbook)
	}
	return strings.Join(lines, "\n")
}

func errorMessage(at time.Time, err error) string {
	return strings.Join([]string{
		"[Reconcile] pass failed",
		"• Time: " + at.Format(notifyTimeLayout),
		"• Error: " + err.Error(),
	}, "\n")
}
