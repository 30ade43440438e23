package api

import (
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"hotel-core-backend/config"
	"hotel-core-backend/internal/mw"
)

// NewRouter creates and configures a new Gin router.
func NewRouter(svc Services, cfg config.ServerConfig, webpushOptions *webpush.Options) *gin.Engine {
	r := gin.Default()
	handler := NewHandler(svc, webpushOptions)

	rateLimiter := mw.RateLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst, cfg.RequestIPHeader)

	// Stats are cached per property; any successful write clears the cache.
	cacheStore := cache.New(cfg.CacheTTL, 2*cfg.CacheTTL+time.Minute)
	caching := mw.Cache(cacheStore, cfg.CacheTTL)

	r.Use(mw.RequestID())

	api := r.Group("/api")
	api.Use(rateLimiter)
	{
		api.GET("/vapid_public_key", handler.GetVAPIDPublicKey)

		scoped := api.Group("", PropertyScope(), mw.Invalidate(cacheStore))

		scoped.POST("/room-types", handler.CreateRoomType)
		scoped.POST("/rooms", handler.CreateRoom)
		scoped.GET("/rooms", handler.ListRooms)
		scoped.GET("/rooms/:id", handler.GetRoom)
		scoped.PUT("/rooms/:id/status", handler.SetRoomStatus)
		scoped.GET("/availability", handler.GetAvailability)

		scoped.POST("/reservations", handler.CreateReservation)
		scoped.GET("/reservations", handler.ListReservations)
		scoped.GET("/reservations/:id", handler.GetReservation)
		scoped.GET("/reservations/:id/folio", handler.GetReservationFolio)
		scoped.POST("/reservations/:id/check-in", handler.CheckIn)
		scoped.POST("/reservations/:id/check-out", handler.CheckOut)
		scoped.POST("/reservations/:id/cancel", handler.CancelReservation)
		scoped.POST("/reservations/:id/no-show", handler.MarkNoShow)
		scoped.PUT("/reservations/:id/dates", handler.AmendDates)

		scoped.GET("/folios/:id", handler.GetFolio)
		scoped.POST("/folios/:id/charges", handler.PostCharge)
		scoped.POST("/folios/:id/payments", handler.RecordPayment)
		scoped.POST("/folios/:id/adjustments", handler.Adjust)
		scoped.POST("/folios/:id/close", handler.CloseFolio)
		scoped.POST("/folio-items/:id/void", handler.VoidItem)

		scoped.GET("/stats/reservations", caching, handler.GetReservationStats)
		scoped.GET("/stats/folios", caching, handler.GetFolioStats)

		scoped.GET("/subscriptions", handler.GetSubscription)
		scoped.PUT("/subscriptions", handler.PutSubscription)
		scoped.DELETE("/subscriptions", handler.DeleteSubscription)
	}

	return r
}
