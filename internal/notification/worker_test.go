package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/SherClockHolmes/webpush-go"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"ambulance-dispatch-backend/config"
	"ambulance-dispatch-backend/internal/apperr"
	"ambulance-dispatch-backend/internal/broadcast"
	"ambulance-dispatch-backend/internal/model"
	"ambulance-dispatch-backend/internal/store"
	"ambulance-dispatch-backend/internal/testutil"
)

// mockSender is a mock implementation of the NotificationSender interface.
type mockSender struct {
	SendFunc func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

func (m *mockSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return m.SendFunc(payload, sub, options)
}

func respond(code int) (*http.Response, error) {
	return &http.Response{StatusCode: code, Body: io.NopCloser(bytes.NewBufferString(""))}, nil
}

// A helper function to create a mock database connection.
func newTestDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: db,
	}), &gorm.Config{})
	require.NoError(t, err)

	return gormDB, mock
}

func seedFollowed(t *testing.T, s store.Store, endpoint string) *model.AmbulanceRequest {
	t.Helper()
	ctx := context.Background()
	req := &model.AmbulanceRequest{
		PatientName:    "Asha",
		Contact:        "9800000002",
		DestinationLat: testutil.Float(27.70),
		DestinationLng: testutil.Float(85.33),
	}
	require.NoError(t, s.CreateRequest(ctx, req, nil))
	require.NoError(t, s.SaveSubscription(ctx, &model.PushSubscription{
		Endpoint: endpoint,
		P256DH:   "test_p256dh",
		Auth:     "test_auth",
	}, []uint{req.ID}))
	return req
}

func newPool(s store.Store) *WorkerPool {
	log, _ := test.NewNullLogger()
	return NewWorkerPool(1, s, WebPushOptions(&config.PushConfig{Subject: "mailto:ops@example.com", TTL: 60}), nil, log)
}

func TestWorkerPool_Dispatch(t *testing.T) {
	wp := newPool(store.NewGormStore(testutil.NewSQLite(t)))

	assert.True(t, wp.Dispatch(context.Background(), Job{AmbulanceID: 123, Status: "Started"}))

	select {
	case job := <-wp.Jobs():
		assert.Equal(t, uint(123), job.AmbulanceID)
	case <-time.After(1 * time.Second):
		t.Fatal("timed out waiting for job to be dispatched")
	}

	// The queue holds one job; a cancelled context unblocks the second.
	assert.True(t, wp.Dispatch(context.Background(), Job{AmbulanceID: 1}))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, wp.Dispatch(ctx, Job{AmbulanceID: 2}))
}

func TestWorkerPool_SendsToFollowers(t *testing.T) {
	s := store.NewGormStore(testutil.NewSQLite(t))
	req := seedFollowed(t, s, "https://example.com/push")
	wp := newPool(s)

	var wg sync.WaitGroup
	wg.Add(1)
	wp.sender = &mockSender{
		SendFunc: func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
			defer wg.Done()
			assert.Equal(t, "https://example.com/push", sub.Endpoint)
			assert.Equal(t, "test_p256dh", sub.Keys.P256dh)
			assert.Equal(t, 60, options.TTL)

			var p Payload
			assert.NoError(t, json.Unmarshal(payload, &p))
			assert.Equal(t, req.ID, p.AmbulanceID)
			assert.Contains(t, p.Body, "Asha")
			assert.Contains(t, p.Body, "Patient Received")
			return respond(http.StatusCreated)
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	wp.Start(ctx)
	wp.Dispatch(ctx, Job{AmbulanceID: req.ID, Status: "Patient Received"})
	wg.Wait()
}

func TestWorkerPool_DeletesExpiredSubscription(t *testing.T) {
	s := store.NewGormStore(testutil.NewSQLite(t))
	req := seedFollowed(t, s, "https://example.com/expired")
	wp := newPool(s)
	wp.sender = &mockSender{
		SendFunc: func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
			return respond(http.StatusGone)
		},
	}

	wp.sendNotificationsForRequest(context.Background(), Job{AmbulanceID: req.ID, Status: "Started"})

	_, err := s.GetSubscription(context.Background(), "https://example.com/expired")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestWorkerPool_NoFollowers(t *testing.T) {
	s := store.NewGormStore(testutil.NewSQLite(t))
	wp := newPool(s)
	wp.sender = &mockSender{
		SendFunc: func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
			t.Fatal("no subscription should be notified")
			return nil, nil
		},
	}

	wp.sendNotificationsForRequest(context.Background(), Job{AmbulanceID: 77, Status: "Started"})
}

func TestWorkerPool_SubscriptionLookupFails(t *testing.T) {
	gormDB, mock := newTestDB(t)
	wp := newPool(store.NewGormStore(gormDB))
	wp.sender = &mockSender{
		SendFunc: func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
			t.Fatal("nothing should be sent when the lookup fails")
			return nil, nil
		},
	}

	mock.ExpectQuery(`SELECT .* FROM "push_subscriptions".*JOIN subscription_request_mapping srm.*WHERE srm\.ambulance_request_id = \$1`).
		WillReturnError(errors.New("connection reset"))

	wp.sendNotificationsForRequest(context.Background(), Job{AmbulanceID: 9, Status: "Started"})
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRelayForwardsStatusUpdates(t *testing.T) {
	s := store.NewGormStore(testutil.NewSQLite(t))
	req := seedFollowed(t, s, "https://example.com/relay")
	log, _ := test.NewNullLogger()
	hub := broadcast.NewHub(8, nil, log)
	wp := newPool(s)

	sent := make(chan string, 4)
	wp.sender = &mockSender{
		SendFunc: func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
			var p Payload
			assert.NoError(t, json.Unmarshal(payload, &p))
			sent <- p.Status
			return respond(http.StatusCreated)
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	relay := NewRelay(hub, wp, log)
	go relay.Run(ctx)

	require.Eventually(t, func() bool { return hub.Subscribers() == 1 }, time.Second, 5*time.Millisecond)

	hub.Publish(broadcast.NewEvent(broadcast.TypeLocationUpdate, req.ID, broadcast.LocationUpdate{AmbulanceID: req.ID}))
	hub.Publish(broadcast.NewEvent(broadcast.TypeStatusUpdate, req.ID, broadcast.StatusUpdate{AmbulanceID: req.ID, Status: "Assigned"}))

	select {
	case status := <-sent:
		assert.Equal(t, "Assigned", status)
	case <-time.After(2 * time.Second):
		t.Fatal("status update was not pushed")
	}
}

func TestRelayKeepsStatusUpdatesWhilePoolIsBusy(t *testing.T) {
	s := store.NewGormStore(testutil.NewSQLite(t))
	req := seedFollowed(t, s, "https://example.com/busy")
	log, _ := test.NewNullLogger()
	hub := broadcast.NewHub(2, nil, log)
	wp := newPool(s)

	sent := make(chan string, 8)
	release := make(chan struct{})
	wp.sender = &mockSender{
		SendFunc: func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
			var p Payload
			assert.NoError(t, json.Unmarshal(payload, &p))
			sent <- p.Status
			<-release
			return respond(http.StatusCreated)
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go NewRelay(hub, wp, log).Run(ctx)
	require.Eventually(t, func() bool { return hub.Subscribers() == 1 }, time.Second, 5*time.Millisecond)

	status := func(v string) {
		hub.Publish(broadcast.NewEvent(broadcast.TypeStatusUpdate, req.ID, broadcast.StatusUpdate{AmbulanceID: req.ID, Status: v}))
	}

	// The only worker is stuck sending and the one-slot queue is full.
	status("Assigned")
	select {
	case got := <-sent:
		assert.Equal(t, "Assigned", got)
	case <-time.After(2 * time.Second):
		t.Fatal("first status update was not pushed")
	}
	status("Started")
	require.Eventually(t, func() bool { return len(wp.Jobs()) == 1 }, time.Second, 5*time.Millisecond)

	status("Patient Received")
	for i := 0; i < 10; i++ {
		hub.Publish(broadcast.NewEvent(broadcast.TypeLocationUpdate, req.ID, broadcast.LocationUpdate{AmbulanceID: req.ID}))
	}
	status("Patient Reached")
	close(release)

	var got []string
	for len(got) < 3 {
		select {
		case v := <-sent:
			got = append(got, v)
		case <-time.After(2 * time.Second):
			t.Fatalf("missing status pushes, got %v", got)
		}
	}
	assert.Equal(t, []string{"Started", "Patient Received", "Patient Reached"}, got)
}
