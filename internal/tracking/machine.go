// Package tracking runs the bounded polling lifecycle of confirmed-sale
// articles: Active until the end date, then Completed.
package tracking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"NoteSalesTracker/internal/domain"
	"NoteSalesTracker/internal/ports"
)

// ErrNoTrackingData is returned when results arrive for an empty tracking table.
var ErrNoTrackingData = errors.New("no tracking data")

// Candidate is the article data needed to open a tracking item.
type Candidate struct {
	URL    string
	Title  string
	Author string
	Price  int64
}

// UpdateReport counts the effect of one results batch.
type UpdateReport struct {
	Updated   int
	Completed int
}

// Options configures a Machine.
type Options struct {
	TrackingDays int
	Location     *time.Location
	Clock        ports.Clock
	Logger       *slog.Logger
}

// Machine owns the tracking table exclusively.
type Machine struct {
	store    ports.TableStore
	ref      ports.TableRef
	days     int
	location *time.Location
	now      ports.Clock
	logger   *slog.Logger
}

// NewMachine wires the tracking table; TrackingDays defaults to 14.
func NewMachine(store ports.TableStore, ref ports.TableRef, opts Options) *Machine {
	if opts.TrackingDays <= 0 {
		opts.TrackingDays = domain.DefaultTrackingDays
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Machine{
		store:    store,
		ref:      ref,
		days:     opts.TrackingDays,
		location: opts.Location,
		now:      opts.Clock,
		logger:   opts.Logger,
	}
}

// Add opens a tracking item unless an Active one already exists for the URL.
func (m *Machine) Add(ctx context.Context, c Candidate) (bool, error) {
	if c.URL == "" {
		return false, errors.New("tracking candidate without url")
	}

	items, _, err := m.load(ctx)
	if err != nil {
		return false, err
	}
	for _, item := range items {
		if item.URL == c.URL && item.Status == domain.TrackingActive {
			m.debug("already tracking", "url", c.URL)
			return false, nil
		}
	}

	today := m.today()
	item := domain.TrackingItem{
		URL:             c.URL,
		Title:           c.Title,
		Author:          c.Author,
		Price:           c.Price,
		ListInDate:      today,
		EndDate:         today.AddDate(0, 0, m.days),
		CheckCount:      0,
		HitCount:        1,
		LastCheckedDate: today,
		Status:          domain.TrackingActive,
	}
	if err := m.store.AppendRow(ctx, m.ref, item.Cells()); err != nil {
		return false, fmt.Errorf("append tracking item: %w", err)
	}
	m.debug("tracking started", "url", c.URL, "end_date", item.EndDate.Format("2006-01-02"))
	return true, nil
}

// UpdateResults applies one polling round. Active items present in results
// get a check (and a hit when true), then expire if their window is over.
// Items missing from results are left untouched.
func (m *Machine) UpdateResults(ctx context.Context, results map[string]bool) (UpdateReport, error) {
	items, raw, err := m.load(ctx)
	if err != nil {
		return UpdateReport{}, err
	}
	if len(items) == 0 {
		return UpdateReport{}, ErrNoTrackingData
	}

	today := m.today()
	var report UpdateReport
	for i := range items {
		item := &items[i]
		if item.Status != domain.TrackingActive {
			continue
		}
		hit, ok := results[item.URL]
		if !ok {
			continue
		}

		item.CheckCount++
		if hit {
			item.HitCount++
		}
		item.LastCheckedDate = today
		report.Updated++

		if item.Expired(today, m.location) {
			item.Status = domain.TrackingCompleted
			report.Completed++
		}
	}

	if report.Updated == 0 {
		return report, nil
	}
	if err := m.save(ctx, items, raw); err != nil {
		return UpdateReport{}, err
	}
	return report, nil
}

// ExpireOld completes every Active item whose window has ended, whether or
// not it was ever polled.
func (m *Machine) ExpireOld(ctx context.Context) (int, error) {
	items, raw, err := m.load(ctx)
	if err != nil {
		return 0, err
	}

	today := m.today()
	expired := 0
	for i := range items {
		if items[i].Status == domain.TrackingActive && items[i].Expired(today, m.location) {
			items[i].Status = domain.TrackingCompleted
			expired++
		}
	}

	if expired == 0 {
		return 0, nil
	}
	if err := m.save(ctx, items, raw); err != nil {
		return 0, err
	}
	return expired, nil
}

// ActiveItems lists the items still being polled.
func (m *Machine) ActiveItems(ctx context.Context) ([]domain.TrackingItem, error) {
	items, _, err := m.load(ctx)
	if err != nil {
		return nil, err
	}
	active := make([]domain.TrackingItem, 0, len(items))
	for _, item := range items {
		if item.Status == domain.TrackingActive {
			active = append(active, item)
		}
	}
	return active, nil
}

// load returns the decoded items together with the raw rows they came from.
func (m *Machine) load(ctx context.Context) ([]domain.TrackingItem, [][]any, error) {
	if _, err := m.store.EnsureTable(ctx, m.ref, domain.TrackingHeaders); err != nil {
		return nil, nil, fmt.Errorf("ensure tracking table: %w", err)
	}
	lastRow, err := m.store.LastRow(ctx, m.ref)
	if err != nil {
		return nil, nil, fmt.Errorf("tracking last row: %w", err)
	}
	if lastRow <= 1 {
		return nil, nil, nil
	}

	data, err := m.store.ReadRegion(ctx, m.ref, 2, 1, lastRow-1, domain.TrackingColumns)
	if err != nil {
		return nil, nil, fmt.Errorf("read tracking table: %w", err)
	}
	items := make([]domain.TrackingItem, len(data))
	for i, row := range data {
		items[i] = domain.TrackingItemFromCells(row, i+2, m.location)
	}
	return items, data, nil
}

// save rewrites the whole tracking region in one bulk write. Rows without a
// URL are written back as they were read.
func (m *Machine) save(ctx context.Context, items []domain.TrackingItem, raw [][]any) error {
	rows := make([][]any, len(items))
	for i, item := range items {
		if item.URL == "" {
			rows[i] = raw[i]
			continue
		}
		rows[i] = item.Cells()
	}
	if err := m.store.WriteRegion(ctx, m.ref, 2, 1, rows); err != nil {
		return fmt.Errorf("write tracking table: %w", err)
	}
	return nil
}

func (m *Machine) today() time.Time {
	return domain.DateOf(m.now(), m.location)
}

func (m *Machine) debug(msg string, args ...interface{}) {
	if m.logger != nil {
		m.logger.Debug(msg, args...)
	}
}
