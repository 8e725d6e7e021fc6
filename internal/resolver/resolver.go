// Package resolver finds the hospitals nearest to a pickup point.
package resolver

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"

	"ambulance-dispatch-backend/config"
	"ambulance-dispatch-backend/internal/apperr"
	"ambulance-dispatch-backend/internal/geo"
	"ambulance-dispatch-backend/internal/metrics"
)

// maxPages bounds pagination; the provider never returns more than three pages.
const maxPages = 5

// Facility is a candidate destination annotated with its distance from the query point.
type Facility struct {
	Name       string  `json:"name"`
	Address    string  `json:"address"`
	DistanceKm float64 `json:"distance_km"`
	Lat        float64 `json:"latitude"`
	Lng        float64 `json:"longitude"`
}

// Resolver wraps a PlacesClient with pagination, ranking and caching.
type Resolver struct {
	client        PlacesClient
	category      string
	defaultRadius int
	pageDelay     time.Duration
	cache         *cache.Cache
	metrics       *metrics.Metrics
	log           logrus.FieldLogger
}

func New(client PlacesClient, cfg *config.ResolverConfig, m *metrics.Metrics, log logrus.FieldLogger) *Resolver {
	ttl := time.Duration(cfg.CacheTTLSeconds) * time.Second
	return &Resolver{
		client:        client,
		category:      cfg.Category,
		defaultRadius: cfg.DefaultRadiusM,
		pageDelay:     cfg.PageDelay,
		cache:         cache.New(ttl, 2*ttl),
		metrics:       m,
		log:           log,
	}
}

// DefaultRadius is used when a caller passes a non-positive radius.
func (r *Resolver) DefaultRadius() int {
	return r.defaultRadius
}

// FindNearest returns every facility within radiusM sorted by ascending distance.
// An empty result is not an error. When the provider fails before any result is
// read the list is empty and the error wraps apperr.ErrResolverUnavailable.
func (r *Resolver) FindNearest(ctx context.Context, lat, lng float64, radiusM int) ([]Facility, error) {
	if !geo.ValidCoordinate(lat, lng) {
		return []Facility{}, apperr.Validation("location", "invalid coordinates (%v, %v)", lat, lng)
	}
	if radiusM <= 0 {
		radiusM = r.defaultRadius
	}

	key := fmt.Sprintf("%.4f:%.4f:%d:%s", lat, lng, radiusM, r.category)
	if cached, found := r.cache.Get(key); found {
		r.metrics.ObserveResolver("cache_hit")
		return cached.([]Facility), nil
	}

	facilities := []Facility{}
	req := NearbyRequest{Lat: lat, Lng: lng, RadiusM: radiusM, Category: r.category}
	for page := 1; page <= maxPages; page++ {
		resp, err := r.client.Nearby(ctx, req)
		if err != nil {
			if page == 1 {
				r.metrics.ObserveResolver("error")
				r.log.WithError(err).Warn("places lookup failed")
				return []Facility{}, fmt.Errorf("%w: %w", apperr.ErrResolverUnavailable, err)
			}
			// Keep what the earlier pages returned.
			r.log.WithError(err).WithField("page", page).Warn("places pagination stopped early")
			break
		}
		for _, p := range resp.Places {
			facilities = append(facilities, Facility{
				Name:       p.Name,
				Address:    p.Address,
				DistanceKm: geo.Round2(geo.Distance(lat, lng, p.Lat, p.Lng)),
				Lat:        p.Lat,
				Lng:        p.Lng,
			})
		}
		if resp.NextPageToken == "" {
			break
		}

		// The provider only activates a page token after a short delay.
		select {
		case <-ctx.Done():
			return []Facility{}, fmt.Errorf("%w: %w", apperr.ErrResolverUnavailable, ctx.Err())
		case <-time.After(r.pageDelay):
		}
		req = NearbyRequest{PageToken: resp.NextPageToken}
	}

	sort.SliceStable(facilities, func(i, j int) bool {
		a, b := facilities[i], facilities[j]
		return geo.Distance(lat, lng, a.Lat, a.Lng) < geo.Distance(lat, lng, b.Lat, b.Lng)
	})

	result := "ok"
	if len(facilities) == 0 {
		result = "empty"
	}
	r.metrics.ObserveResolver(result)
	r.cache.Set(key, facilities, cache.DefaultExpiration)
	return facilities, nil
}
