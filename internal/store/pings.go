package store

import (
	"context"

	"ambulance-dispatch-backend/internal/apperr"
	"ambulance-dispatch-backend/internal/model"
)

// AppendPing inserts a single ping. It does not touch the request row, so it
// never waits on a transaction holding that row's lock.
func (s *gormStore) AppendPing(ctx context.Context, ping *model.LocationPing) error {
	var n int64
	err := s.db.WithContext(ctx).
		Model(&model.AmbulanceRequest{}).
		Where("id = ?", ping.AmbulanceID).
		Count(&n).Error
	if err != nil {
		return apperr.Storage("check request", err)
	}
	if n == 0 {
		return apperr.ErrUnknownAmbulance
	}

	if ping.Timestamp.IsZero() {
		ping.Timestamp = s.now().UTC()
	}
	if err := s.db.WithContext(ctx).Create(ping).Error; err != nil {
		return apperr.Storage("append ping", err)
	}
	return nil
}

// LatestPing returns the max-timestamp ping; equal timestamps fall back to the higher id.
func (s *gormStore) LatestPing(ctx context.Context, id uint) (*model.LocationPing, error) {
	var ping model.LocationPing
	err := s.db.WithContext(ctx).
		Where("ambulance_id = ?", id).
		Order(`"timestamp" DESC`).Order("id DESC").
		Limit(1).
		Find(&ping).Error
	if err != nil {
		return nil, apperr.Storage("latest ping", err)
	}
	if ping.ID == 0 {
		return nil, apperr.ErrNotFound
	}
	return &ping, nil
}

// Pings returns the full history in timestamp order.
func (s *gormStore) Pings(ctx context.Context, id uint) ([]model.LocationPing, error) {
	var pings []model.LocationPing
	err := s.db.WithContext(ctx).
		Where("ambulance_id = ?", id).
		Order(`"timestamp" ASC`).Order("id ASC").
		Find(&pings).Error
	if err != nil {
		return nil, apperr.Storage("list pings", err)
	}
	return pings, nil
}

// RecentPings returns up to n pings, newest first.
func (s *gormStore) RecentPings(ctx context.Context, id uint, n int) ([]model.LocationPing, error) {
	var pings []model.LocationPing
	err := s.db.WithContext(ctx).
		Where("ambulance_id = ?", id).
		Order(`"timestamp" DESC`).Order("id DESC").
		Limit(n).
		Find(&pings).Error
	if err != nil {
		return nil, apperr.Storage("recent pings", err)
	}
	return pings, nil
}

// LatestStatusEvent returns the most recent transition into status.
func (s *gormStore) LatestStatusEvent(ctx context.Context, id uint, status model.Status) (*model.StatusChangeEvent, error) {
	var event model.StatusChangeEvent
	err := s.db.WithContext(ctx).
		Where("ambulance_id = ? AND new_status = ?", id, status).
		Order(`"timestamp" DESC`).Order("id DESC").
		First(&event).Error
	if err != nil {
		return nil, notFoundOr("latest status event", err)
	}
	return &event, nil
}

// StatusEvents returns the audit trail of a request, oldest first.
func (s *gormStore) StatusEvents(ctx context.Context, id uint) ([]model.StatusChangeEvent, error) {
	var events []model.StatusChangeEvent
	err := s.db.WithContext(ctx).
		Where("ambulance_id = ?", id).
		Order(`"timestamp" ASC`).Order("id ASC").
		Find(&events).Error
	if err != nil {
		return nil, apperr.Storage("list status events", err)
	}
	return events, nil
}
