// Package housekeeping tells housekeeping devices which rooms need cleaning.
package housekeeping

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"gorm.io/gorm"

	"hotel-core-backend/internal/model"
)

// Sender sends a single web push notification.
type Sender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender sends through the webpush library.
type WebPushSender struct{}

func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// WorkerPool pushes "ready for cleaning" notifications for dirty rooms.
type WorkerPool struct {
	size    int
	jobs    chan int64
	db      *gorm.DB
	webpush *webpush.Options
	sender  Sender
}

// NewWorkerPool creates a pool of size workers. The queue holds a few jobs
// per worker; Dispatch drops jobs when it is full.
func NewWorkerPool(size int, db *gorm.DB, webpushOptions *webpush.Options) *WorkerPool {
	if size <= 0 {
		size = 1
	}
	return &WorkerPool{
		size:    size,
		jobs:    make(chan int64, size*16),
		db:      db,
		webpush: webpushOptions,
		sender:  &WebPushSender{},
	}
}

// Start launches the worker goroutines; they stop when ctx is done.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	log.Printf("Housekeeping worker %d started", id)
	for {
		select {
		case roomID := <-wp.jobs:
			wp.notifyRoom(ctx, roomID)
		case <-ctx.Done():
			log.Printf("Housekeeping worker %d shutting down", id)
			return
		}
	}
}

// Dispatch queues a dirty room without blocking the caller.
func (wp *WorkerPool) Dispatch(roomID int64) {
	select {
	case wp.jobs <- roomID:
	default:
		log.Printf("Warning: housekeeping queue is full; dropping notification for room %d", roomID)
	}
}

func (wp *WorkerPool) notifyRoom(ctx context.Context, roomID int64) {
	var room model.Room
	if err := wp.db.WithContext(ctx).
		Select("id", "property_id", "room_number").
		First(&room, roomID).Error; err != nil {
		log.Printf("Error fetching room %d: %v", roomID, err)
		return
	}

	var subscriptions []model.DeviceSubscription
	if err := wp.db.WithContext(ctx).
		Where("property_id = ?", room.PropertyID).
		Find(&subscriptions).Error; err != nil {
		log.Printf("Error fetching device subscriptions for property %d: %v", room.PropertyID, err)
		return
	}
	if len(subscriptions) == 0 {
		return
	}

	log.Printf("Sending %d notifications for room %s", len(subscriptions), room.RoomNumber)
	message := fmt.Sprintf("Room %s is ready for cleaning", room.RoomNumber)
	for _, sub := range subscriptions {
		wp.send(ctx, sub, []byte(message))
	}
}

func (wp *WorkerPool) send(ctx context.Context, sub model.DeviceSubscription, payload []byte) {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := wp.sender.Send(payload, wpSub, wp.webpush)
	if err != nil {
		log.Printf("Error sending notification to %s: %v", sub.Endpoint, err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusGone {
		log.Printf("Subscription for endpoint %s is expired. Deleting.", sub.Endpoint)
		if err := wp.db.WithContext(ctx).Delete(&sub).Error; err != nil {
			log.Printf("Failed to delete expired subscription %s: %v", sub.Endpoint, err)
		}
	}
}

// NopNotifier discards notifications; used when push is not configured.
type NopNotifier struct{}

func (NopNotifier) Dispatch(int64) {}
