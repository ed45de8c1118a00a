package usecase

import (
	"context"
	"fmt"
	"math"

	"NoteSalesTracker/internal/domain"
	"NoteSalesTracker/internal/ports"
)

// StatsReport summarizes the observation table.
type StatsReport struct {
	TotalRecords           int   `json:"totalRecords"`
	UniqueURLs             int   `json:"uniqueUrls"`
	Duplicates             int   `json:"duplicates"`
	TotalLikes             int64 `json:"totalLikes"`
	AverageLikes           int64 `json:"averageLikes"`
	ArticlesWithHighRating int   `json:"articlesWithHighRating"`
	TotalHighRating        int64 `json:"totalHighRating"`
	PaidArticles           int   `json:"paidArticles"`
}

// Stats computes StatsReport over the data rows of ref.
func Stats(ctx context.Context, store ports.TableStore, ref ports.TableRef) (StatsReport, error) {
	lastRow, err := store.LastRow(ctx, ref)
	if err != nil {
		return StatsReport{}, fmt.Errorf("stats last row: %w", err)
	}
	if lastRow <= 1 {
		return StatsReport{}, nil
	}

	data, err := store.ReadRegion(ctx, ref, 2, 1, lastRow-1, domain.ColTags+1)
	if err != nil {
		return StatsReport{}, fmt.Errorf("stats read: %w", err)
	}

	var report StatsReport
	urls := make(map[string]struct{}, len(data))
	for _, row := range data {
		report.TotalRecords++
		urls[domain.CellString(row[domain.ColURL])] = struct{}{}

		report.TotalLikes += domain.CellInt(row[domain.ColLikes])
		high := domain.CellInt(row[domain.ColHighRating])
		report.TotalHighRating += high
		if high > 0 {
			report.ArticlesWithHighRating++
		}
		if domain.CellInt(row[domain.ColPrice]) > 0 {
			report.PaidArticles++
		}
	}
	report.UniqueURLs = len(urls)
	report.Duplicates = report.TotalRecords - report.UniqueURLs
	report.AverageLikes = int64(math.Round(float64(report.TotalLikes) / float64(report.TotalRecords)))
	return report, nil
}
