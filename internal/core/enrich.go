package core

import (
	"context"
	"log/slog"
	"strings"
)

// Placeholders written into a row's description during enrichment.
const (
	DescriptionLoading  = "Loading..."
	DescriptionNotFound = "Not found"
	DescriptionError    = "Error"

	// DefaultUnitOfMeasure is used whenever the lookup cannot supply a unit.
	DefaultUnitOfMeasure = "H"
)

// PointLookup reads measuring point master data from the backend.
type PointLookup interface {
	LookupMeasuringPoint(ctx context.Context, id string) (PointInfo, error)
	LatestReading(ctx context.Context, id string) (float64, bool, error)
}

// Enricher fills description, position and unit on imported rows.
type Enricher struct {
	Lookup PointLookup

	// WithLatestReading also fetches the newest recorded reading per row.
	WithLatestReading bool

	Logger *slog.Logger

	// OnRow fires after each row is enriched.
	OnRow func(i int, row *CanonicalRow)
}

// Enrich looks up every row in order. Lookups are not cached, so a measuring
// point that appears twice is fetched twice. Failures only change the
// placeholders; they never return an error.
func (e *Enricher) Enrich(ctx context.Context, rows []CanonicalRow) {
	logger := e.Logger
	if logger == nil {
		logger = slog.Default()
	}

	for i := range rows {
		row := &rows[i]
		if ctx.Err() != nil {
			row.Description = DescriptionError
			row.PositionNumber = ""
			row.UnitOfMeasure = DefaultUnitOfMeasure
			continue
		}

		row.Description = DescriptionLoading
		row.PositionNumber = ""
		e.enrichRow(ctx, logger, row)

		if e.OnRow != nil {
			e.OnRow(i, row)
		}
	}
}

func (e *Enricher) enrichRow(ctx context.Context, logger *slog.Logger, row *CanonicalRow) {
	if e.Lookup == nil || row.MeasuringPoint == "" {
		row.Description = DescriptionNotFound
		row.UnitOfMeasure = DefaultUnitOfMeasure
		return
	}

	info, err := e.Lookup.LookupMeasuringPoint(ctx, row.MeasuringPoint)
	switch {
	case err != nil:
		logger.Warn("measuring point lookup failed",
			"measuring_point", row.MeasuringPoint,
			"error", err,
		)
		row.Description = DescriptionError
		row.PositionNumber = ""
		row.UnitOfMeasure = DefaultUnitOfMeasure
	case !info.Found:
		row.Description = DescriptionNotFound
		row.PositionNumber = ""
		row.UnitOfMeasure = DefaultUnitOfMeasure
	default:
		row.Description = info.Description
		row.PositionNumber = info.PositionNumber
		row.UnitOfMeasure = orDefault(strings.TrimSpace(info.UnitOfMeasure), DefaultUnitOfMeasure)
	}

	if !e.WithLatestReading {
		return
	}
	last, ok, err := e.Lookup.LatestReading(ctx, row.MeasuringPoint)
	if err != nil {
		logger.Debug("latest reading lookup failed",
			"measuring_point", row.MeasuringPoint,
			"error", err,
		)
		return
	}
	if ok {
		row.LastReading = &last
	}
}
