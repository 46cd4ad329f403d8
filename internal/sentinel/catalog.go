package sentinel

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/paulmach/orb"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

const (
	catalogPath = "/api/v1/catalog/1.0.0/search"
	catalogPage = 100
	// Guards against a catalog that keeps returning a next token.
	maxCatalogPages = 100
)

// Scene is one Sentinel-2 acquisition returned by the catalog.
type Scene struct {
	ID         string    `json:"id"`
	Time       time.Time `json:"time"`
	CloudCover float64   `json:"cloud_cover"`
}

// Day is the UTC acquisition day.
func (s Scene) Day() time.Time {
	return s.Time.UTC().Truncate(24 * time.Hour)
}

type catalogRequest struct {
	Collections []string      `json:"collections"`
	Datetime    string        `json:"datetime"`
	BBox        [4]float64    `json:"bbox"`
	Limit       int           `json:"limit"`
	Filter      string        `json:"filter,omitempty"`
	FilterLang  string        `json:"filter-lang,omitempty"`
	Fields      catalogFields `json:"fields"`
	Next        int           `json:"next,omitempty"`
}

type catalogFields struct {
	Include []string `json:"include"`
}

type catalogResponse struct {
	Features []struct {
		ID         string `json:"id"`
		Properties struct {
			Datetime   time.Time `json:"datetime"`
			CloudCover float64   `json:"eo:cloud_cover"`
		} `json:"properties"`
	} `json:"features"`
	Context struct {
		Next     int `json:"next"`
		Returned int `json:"returned"`
	} `json:"context"`
}

// SearchScenes lists scenes intersecting bbox acquired in [from, to) whose
// cloud cover is below the configured maximum, ordered by time.
func (c *Client) SearchScenes(ctx context.Context, bbox orb.Bound, from, to time.Time) ([]Scene, error) {
	if !from.Before(to) {
		return nil, eris.Errorf("sentinel: empty time range %s/%s", from, to)
	}

	req := catalogRequest{
		Collections: []string{c.collection},
		Datetime: fmt.Sprintf("%s/%s",
			from.UTC().Format(time.RFC3339),
			to.UTC().Add(-time.Millisecond).Format("2006-01-02T15:04:05.000Z07:00"),
		),
		BBox:   [4]float64{bbox.Min.X(), bbox.Min.Y(), bbox.Max.X(), bbox.Max.Y()},
		Limit:  catalogPage,
		Fields: catalogFields{Include: []string{"id", "properties.datetime", "properties.eo:cloud_cover"}},
	}
	if c.maxCloud > 0 && c.maxCloud < 100 {
		req.Filter = fmt.Sprintf("eo:cloud_cover < %g", c.maxCloud)
		req.FilterLang = "cql2-text"
	}

	var scenes []Scene
	for page := 0; page < maxCatalogPages; page++ {
		data, err := c.post(ctx, "catalog search", catalogPath, req, "application/geo+json")
		if err != nil {
			return nil, err
		}

		var resp catalogResponse
		if err := json.Unmarshal(data, &resp); err != nil {
			return nil, eris.Wrap(err, "sentinel: decode catalog response")
		}

		for _, f := range resp.Features {
			t := f.Properties.Datetime
			if t.Before(from) || !t.Before(to) {
				continue
			}
			// the catalog filter is authoritative, this only covers servers ignoring it
			if c.maxCloud > 0 && c.maxCloud < 100 && f.Properties.CloudCover >= c.maxCloud {
				continue
			}
			scenes = append(scenes, Scene{ID: f.ID, Time: t.UTC(), CloudCover: f.Properties.CloudCover})
		}

		if resp.Context.Next == 0 || len(resp.Features) == 0 {
			break
		}
		req.Next = resp.Context.Next
	}

	slices.SortFunc(scenes, func(a, b Scene) int {
		if n := a.Time.Compare(b.Time); n != 0 {
			return n
		}
		return cmp.Compare(a.ID, b.ID)
	})

	zap.L().Debug("sentinel: catalog search",
		zap.Time("from", from),
		zap.Time("to", to),
		zap.Int("scenes", len(scenes)),
	)
	return scenes, nil
}
