package api

import (
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"housekeyper-backend/config"
	"housekeyper-backend/internal/mw"
	"housekeyper-backend/internal/store"
)

// NewRouter creates and configures a new Gin router for the read API used by
// external consumers (dashboard, notification clients).
func NewRouter(cfg *config.ServerConfig, s store.Store, webpushOptions *webpush.Options) *gin.Engine {
	r := gin.Default()

	handler := NewHandler(s, webpushOptions)

	rateLimiter := mw.RateLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst)

	cacheTTL := time.Duration(cfg.CacheTTLSeconds) * time.Second
	cacheStore := cache.New(cacheTTL, 10*time.Minute)
	caching := mw.Cache(cacheStore, cacheTTL)

	api := r.Group("/api")
	api.Use(rateLimiter)
	{
		api.GET("/healthz", handler.GetHealth)

		api.GET("/devices", caching, handler.GetDevices)
		api.GET("/readings/latest", caching, handler.GetLatestReadings)
		api.GET("/alerts", handler.GetAlerts)

		api.GET("/subscriptions", handler.GetSubscription)
		api.PUT("/subscriptions", handler.PutSubscription)
		api.DELETE("/subscriptions", handler.DeleteSubscription)
		api.GET("/vapid_public_key", handler.GetVAPIDPublicKey)
	}

	return r
}
