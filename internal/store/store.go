package store

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"ambulance-dispatch-backend/internal/apperr"
	"ambulance-dispatch-backend/internal/model"
)

// ErrNoChange is returned by a MutateFunc to end the transaction without writing.
var ErrNoChange = errors.New("no change")

// MutateFunc edits a locked request in place.
type MutateFunc func(req *model.AmbulanceRequest) error

// Store defines the interface for all database operations.
type Store interface {
	CreateRequest(ctx context.Context, req *model.AmbulanceRequest, initial *model.LocationPing) error
	GetRequest(ctx context.Context, id uint) (*model.AmbulanceRequest, error)
	FindByPatientName(ctx context.Context, name string) (*model.AmbulanceRequest, error)
	UpdateStatus(ctx context.Context, id uint, status model.Status, at time.Time) (*model.AmbulanceRequest, error)
	Mutate(ctx context.Context, id uint, fn MutateFunc) (*model.AmbulanceRequest, error)
	Search(ctx context.Context, q string) ([]model.AmbulanceRequest, error)
	ListByStatus(ctx context.Context, status model.Status) ([]model.AmbulanceRequest, error)
	ListAll(ctx context.Context) ([]model.AmbulanceRequest, error)
	DeleteRequest(ctx context.Context, id uint) error

	AppendPing(ctx context.Context, ping *model.LocationPing) error
	LatestPing(ctx context.Context, id uint) (*model.LocationPing, error)
	Pings(ctx context.Context, id uint) ([]model.LocationPing, error)
	RecentPings(ctx context.Context, id uint, n int) ([]model.LocationPing, error)

	LatestStatusEvent(ctx context.Context, id uint, status model.Status) (*model.StatusChangeEvent, error)
	StatusEvents(ctx context.Context, id uint) ([]model.StatusChangeEvent, error)

	SaveSubscription(ctx context.Context, sub *model.PushSubscription, requestIDs []uint) error
	GetSubscription(ctx context.Context, endpoint string) (*model.PushSubscription, error)
	DeleteSubscription(ctx context.Context, endpoint string) error
	SubscriptionsForRequest(ctx context.Context, id uint) ([]model.PushSubscription, error)

	Ping(ctx context.Context) error
	DB() *gorm.DB
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db  *gorm.DB
	now func() time.Time
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db, now: time.Now}
}

func (s *gormStore) DB() *gorm.DB {
	return s.db
}

// Ping checks that the database answers.
func (s *gormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return apperr.Storage("ping", err)
	}
	return apperr.Storage("ping", sqlDB.PingContext(ctx))
}

// CreateRequest persists a new request, its first status event and an optional
// initial ping in one transaction.
func (s *gormStore) CreateRequest(ctx context.Context, req *model.AmbulanceRequest, initial *model.LocationPing) error {
	if !req.HasDestination() {
		return apperr.Validation("destination", "coordinates are required")
	}
	if req.Status == "" {
		req.Status = model.StatusPending
	}
	if req.RequestTime.IsZero() {
		req.RequestTime = s.now().UTC()
	}
	if req.StatusUpdatedAt.IsZero() {
		req.StatusUpdatedAt = req.RequestTime
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(req).Error; err != nil {
			return apperr.Storage("create request", err)
		}
		event := model.StatusChangeEvent{
			AmbulanceID: req.ID,
			NewStatus:   req.Status,
			Timestamp:   req.StatusUpdatedAt,
		}
		if err := tx.Create(&event).Error; err != nil {
			return apperr.Storage("create status event", err)
		}
		if initial == nil {
			return nil
		}
		initial.AmbulanceID = req.ID
		if initial.Timestamp.IsZero() {
			initial.Timestamp = req.RequestTime
		}
		if initial.Status == "" {
			initial.Status = req.Status
		}
		if err := tx.Create(initial).Error; err != nil {
			return apperr.Storage("create initial ping", err)
		}
		return nil
	})
	return txError("create request", err)
}

// GetRequest loads a live (not tombstoned) request.
func (s *gormStore) GetRequest(ctx context.Context, id uint) (*model.AmbulanceRequest, error) {
	var req model.AmbulanceRequest
	if err := s.db.WithContext(ctx).First(&req, id).Error; err != nil {
		return nil, notFoundOr("get request", err)
	}
	return &req, nil
}

// FindByPatientName returns the most recent request booked under name.
func (s *gormStore) FindByPatientName(ctx context.Context, name string) (*model.AmbulanceRequest, error) {
	var req model.AmbulanceRequest
	err := s.db.WithContext(ctx).
		Where("patient_name = ?", name).
		Order("request_time DESC").Order("id DESC").
		First(&req).Error
	if err != nil {
		return nil, notFoundOr("find by patient name", err)
	}
	return &req, nil
}

// UpdateStatus writes status without any derived-field logic.
func (s *gormStore) UpdateStatus(ctx context.Context, id uint, status model.Status, at time.Time) (*model.AmbulanceRequest, error) {
	return s.Mutate(ctx, id, func(req *model.AmbulanceRequest) error {
		if req.Status == status {
			return ErrNoChange
		}
		req.Status = status
		req.StatusUpdatedAt = at
		return nil
	})
}

// Mutate runs fn against the current row inside a transaction and saves the result.
// On postgres the row is locked with SELECT ... FOR UPDATE so concurrent writers
// serialize. A status change appends a StatusChangeEvent in the same transaction.
func (s *gormStore) Mutate(ctx context.Context, id uint, fn MutateFunc) (*model.AmbulanceRequest, error) {
	var out model.AmbulanceRequest
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx
		if tx.Dialector.Name() == "postgres" {
			q = tx.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		var req model.AmbulanceRequest
		if err := q.First(&req, id).Error; err != nil {
			return notFoundOr("load request", err)
		}

		before := req.Status
		if err := fn(&req); err != nil {
			if errors.Is(err, ErrNoChange) {
				out = req
				return nil
			}
			return err
		}

		if err := tx.Save(&req).Error; err != nil {
			return apperr.Storage("save request", err)
		}

		if req.Status != before {
			at := req.StatusUpdatedAt
			if at.IsZero() {
				at = s.now().UTC()
			}
			event := model.StatusChangeEvent{
				AmbulanceID: req.ID,
				OldStatus:   before,
				NewStatus:   req.Status,
				Timestamp:   at,
			}
			if err := tx.Create(&event).Error; err != nil {
				return apperr.Storage("append status event", err)
			}
		}
		out = req
		return nil
	})
	if err != nil {
		return nil, txError("mutate request", err)
	}
	return &out, nil
}

// Search matches q as a substring of patient name or contact. An empty q lists everything.
func (s *gormStore) Search(ctx context.Context, q string) ([]model.AmbulanceRequest, error) {
	if q == "" {
		return s.ListAll(ctx)
	}
	pattern := "%" + q + "%"
	var reqs []model.AmbulanceRequest
	err := s.db.WithContext(ctx).
		Where("patient_name LIKE ? OR contact LIKE ?", pattern, pattern).
		Order("request_time DESC").
		Find(&reqs).Error
	if err != nil {
		return nil, apperr.Storage("search requests", err)
	}
	return reqs, nil
}

// ListByStatus is backed by idx_requests_status.
func (s *gormStore) ListByStatus(ctx context.Context, status model.Status) ([]model.AmbulanceRequest, error) {
	var reqs []model.AmbulanceRequest
	err := s.db.WithContext(ctx).
		Where("status = ?", status).
		Order("request_time DESC").
		Find(&reqs).Error
	if err != nil {
		return nil, apperr.Storage("list by status", err)
	}
	return reqs, nil
}

func (s *gormStore) ListAll(ctx context.Context) ([]model.AmbulanceRequest, error) {
	var reqs []model.AmbulanceRequest
	if err := s.db.WithContext(ctx).Order("request_time DESC").Find(&reqs).Error; err != nil {
		return nil, apperr.Storage("list requests", err)
	}
	return reqs, nil
}

// DeleteRequest tombstones the request. Its pings and events are kept.
func (s *gormStore) DeleteRequest(ctx context.Context, id uint) error {
	res := s.db.WithContext(ctx).Delete(&model.AmbulanceRequest{}, id)
	if res.Error != nil {
		return apperr.Storage("delete request", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

func notFoundOr(op string, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.ErrNotFound
	}
	return apperr.Storage(op, err)
}

// txError passes through errors that already carry a meaning and wraps the rest,
// typically a failed commit, as storage errors.
func txError(op string, err error) error {
	if err == nil ||
		errors.Is(err, apperr.ErrStorage) ||
		errors.Is(err, apperr.ErrNotFound) ||
		errors.Is(err, apperr.ErrInvalidTransition) ||
		apperr.IsValidation(err) {
		return err
	}
	return apperr.Storage(op, err)
}
