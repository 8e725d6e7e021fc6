package tracking

import (
	"context"

	"ambulance-dispatch-backend/internal/geo"
	"ambulance-dispatch-backend/internal/model"
)

// InstantaneousSpeed returns the speed in km/h between the last two pings, which
// must be in ascending timestamp order. ok is false with fewer than two pings or
// when they share a timestamp.
func InstantaneousSpeed(pings []model.LocationPing) (float64, bool) {
	n := len(pings)
	if n < 2 {
		return 0, false
	}
	return segmentSpeed(pings[n-2], pings[n-1])
}

// AverageSpeed folds over the whole history in ascending order. Segments with a
// non-positive time delta are skipped.
func AverageSpeed(pings []model.LocationPing) (float64, bool) {
	if len(pings) < 2 {
		return 0, false
	}
	var distance, hours float64
	for i := 1; i < len(pings); i++ {
		a, b := pings[i-1], pings[i]
		dt := b.Timestamp.Sub(a.Timestamp).Hours()
		if dt <= 0 {
			continue
		}
		distance += geo.Distance(a.Latitude, a.Longitude, b.Latitude, b.Longitude)
		hours += dt
	}
	if hours <= 0 {
		return 0, false
	}
	return distance / hours, true
}

func segmentSpeed(a, b model.LocationPing) (float64, bool) {
	hours := b.Timestamp.Sub(a.Timestamp).Hours()
	if hours <= 0 {
		return 0, false
	}
	return geo.Distance(a.Latitude, a.Longitude, b.Latitude, b.Longitude) / hours, true
}

// Speeds is the speed read model. A nil value means unavailable.
type Speeds struct {
	AmbulanceID uint     `json:"ambulance_id"`
	CurrentKmh  *float64 `json:"current_speed"`
	AverageKmh  *float64 `json:"average_speed"`
}

// CurrentSpeed uses the two most recent pings, rounded to 2 decimals.
func (p *Pipeline) CurrentSpeed(ctx context.Context, id uint) (*float64, error) {
	if _, err := p.store.GetRequest(ctx, id); err != nil {
		return nil, err
	}
	recent, err := p.store.RecentPings(ctx, id, 2)
	if err != nil {
		return nil, err
	}
	// RecentPings is newest first.
	for i, j := 0, len(recent)-1; i < j; i, j = i+1, j-1 {
		recent[i], recent[j] = recent[j], recent[i]
	}
	return rounded(InstantaneousSpeed(recent)), nil
}

// AverageSpeedFor averages over the full history, rounded to 2 decimals.
func (p *Pipeline) AverageSpeedFor(ctx context.Context, id uint) (*float64, error) {
	if _, err := p.store.GetRequest(ctx, id); err != nil {
		return nil, err
	}
	pings, err := p.store.Pings(ctx, id)
	if err != nil {
		return nil, err
	}
	return rounded(AverageSpeed(pings)), nil
}

// Speeds returns both speeds.
func (p *Pipeline) Speeds(ctx context.Context, id uint) (*Speeds, error) {
	current, err := p.CurrentSpeed(ctx, id)
	if err != nil {
		return nil, err
	}
	average, err := p.AverageSpeedFor(ctx, id)
	if err != nil {
		return nil, err
	}
	return &Speeds{AmbulanceID: id, CurrentKmh: current, AverageKmh: average}, nil
}

func rounded(v float64, ok bool) *float64 {
	if !ok {
		return nil
	}
	r := geo.Round2(v)
	return &r
}
