package store

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"ambulance-dispatch-backend/internal/apperr"
	"ambulance-dispatch-backend/internal/model"
)

// SaveSubscription upserts sub and replaces the set of requests it follows.
// Unknown request ids are ignored.
func (s *gormStore) SaveSubscription(ctx context.Context, sub *model.PushSubscription, requestIDs []uint) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "endpoint"}},
			DoUpdates: clause.AssignmentColumns([]string{"p256dh", "auth"}),
		}).Create(sub).Error; err != nil {
			return err
		}

		var requests []*model.AmbulanceRequest
		if len(requestIDs) > 0 {
			if err := tx.Find(&requests, requestIDs).Error; err != nil {
				return err
			}
		}

		return tx.Model(sub).Association("Requests").Replace(&requests)
	})
	return apperr.Storage("save subscription", err)
}

// GetSubscription loads a subscription with the requests it follows.
func (s *gormStore) GetSubscription(ctx context.Context, endpoint string) (*model.PushSubscription, error) {
	var sub model.PushSubscription
	if err := s.db.WithContext(ctx).Preload("Requests").First(&sub, "endpoint = ?", endpoint).Error; err != nil {
		return nil, notFoundOr("get subscription", err)
	}
	return &sub, nil
}

// DeleteSubscription removes the subscription and its request mappings.
func (s *gormStore) DeleteSubscription(ctx context.Context, endpoint string) error {
	sub := model.PushSubscription{Endpoint: endpoint}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&sub).Association("Requests").Clear(); err != nil {
			return err
		}
		return tx.Delete(&sub).Error
	})
	return apperr.Storage("delete subscription", err)
}

// SubscriptionsForRequest returns every subscription following request id.
func (s *gormStore) SubscriptionsForRequest(ctx context.Context, id uint) ([]model.PushSubscription, error) {
	var subs []model.PushSubscription
	err := s.db.WithContext(ctx).
		Joins("JOIN subscription_request_mapping srm ON srm.push_subscription_endpoint = push_subscriptions.endpoint").
		Where("srm.ambulance_request_id = ?", id).
		Find(&subs).Error
	if err != nil {
		return nil, apperr.Storage("subscriptions for request", err)
	}
	return subs, nil
}
