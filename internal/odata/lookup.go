package odata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/JonMunkholm/msmtupload/internal/core"
)

var (
	_ core.Submitter   = (*Client)(nil)
	_ core.PointLookup = (*Client)(nil)
)

type pointRecord struct {
	Description          string `json:"MeasuringPointDescription"`
	PositionNumber       string `json:"MeasuringPointPositionNumber"`
	MeasurementRangeUnit string `json:"MeasurementRangeUnit"`
	MeasuringPointUoM    string `json:"MeasuringPointUoM"`
}

// LookupMeasuringPoint reads master data for one measuring point. A 404 is
// reported as PointInfo{Found: false} with no error.
func (c *Client) LookupMeasuringPoint(ctx context.Context, id string) (core.PointInfo, error) {
	path := c.lookupPath + "('" + url.PathEscape(id) + "')"

	// V2 services wrap the entity in "d"; V4 services return it bare.
	var raw map[string]json.RawMessage
	if err := c.getJSON(ctx, c.url(path, nil), &raw); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return core.PointInfo{Found: false}, nil
		}
		return core.PointInfo{}, fmt.Errorf("lookup measuring point %s: %w", id, err)
	}

	entity, err := unwrapV2(raw)
	if err != nil {
		return core.PointInfo{}, fmt.Errorf("lookup measuring point %s: %w", id, err)
	}

	var rec pointRecord
	if err := json.Unmarshal(entity, &rec); err != nil {
		return core.PointInfo{}, fmt.Errorf("decode measuring point %s: %w", id, err)
	}

	unit := strings.TrimSpace(rec.MeasurementRangeUnit)
	if unit == "" {
		unit = strings.TrimSpace(rec.MeasuringPointUoM)
	}
	if unit == "" {
		unit = core.DefaultUnitOfMeasure
	}

	return core.PointInfo{
		Found:          true,
		Description:    rec.Description,
		PositionNumber: rec.PositionNumber,
		UnitOfMeasure:  unit,
	}, nil
}

func unwrapV2(raw map[string]json.RawMessage) (json.RawMessage, error) {
	if d, ok := raw["d"]; ok {
		return d, nil
	}
	return json.Marshal(raw)
}

type readingRecord struct {
	MeasurementCounterReading any `json:"MeasurementCounterReading"`
	MeasurementReading        any `json:"MeasurementReading"`
}

// LatestReading returns the most recent counter reading (or plain reading)
// recorded for a measuring point. ok is false when none exists.
func (c *Client) LatestReading(ctx context.Context, id string) (float64, bool, error) {
	q := url.Values{}
	q.Set("$filter", "MeasuringPoint eq '"+strings.ReplaceAll(id, "'", "''")+"'")
	q.Set("$orderby", "MsmtRdngDate desc,MsmtRdngTime desc")
	q.Set("$top", "1")
	q.Set("$select", "MeasurementCounterReading,MeasurementReading,MsmtRdngDate,MsmtRdngTime")

	var reply struct {
		Value []readingRecord `json:"value"`
	}
	if err := c.getJSON(ctx, c.url(c.createPath, q), &reply); err != nil {
		return 0, false, fmt.Errorf("latest reading %s: %w", id, err)
	}
	if len(reply.Value) == 0 {
		return 0, false, nil
	}

	rec := reply.Value[0]
	if rec.MeasurementCounterReading != nil {
		v, ok := core.ParseNumber(rec.MeasurementCounterReading)
		return v, ok, nil
	}
	if rec.MeasurementReading != nil {
		v, ok := core.ParseNumber(rec.MeasurementReading)
		return v, ok, nil
	}
	return 0, false, nil
}
