package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/suchimauz/speaker-session-booking/internal/config"
	"github.com/suchimauz/speaker-session-booking/internal/core/domain"
	"github.com/suchimauz/speaker-session-booking/internal/core/ports/out"
)

const cacheKeyPrefix = "booking:"

func speakerKey(speakerID string) string {
	return fmt.Sprintf("%sspeaker:%s", cacheKeyPrefix, speakerID)
}

func windowKey(speakerID string) string {
	return fmt.Sprintf("%swindow:%s", cacheKeyPrefix, speakerID)
}

type redisWindow struct {
	From domain.SessionDate `json:"from"`
	Days map[string]bool    `json:"days"`
}

// RedisCacheAdapter кэш, общий для нескольких экземпляров сервиса.
// Ошибки Redis не пробрасываются: промах и запись в лог.
type RedisCacheAdapter struct {
	client *redis.Client
	ttl    time.Duration
	logger out.LoggerPort
}

func NewRedisClient(cfg *config.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr: cfg.Cache.RedisAddr,
		DB:   cfg.Cache.RedisDB,
	})
}

func NewRedisCacheAdapter(client *redis.Client, ttl time.Duration, logger out.LoggerPort) *RedisCacheAdapter {
	return &RedisCacheAdapter{
		client: client,
		ttl:    ttl,
		logger: logger.WithModule("RedisCacheAdapter"),
	}
}

func (c *RedisCacheAdapter) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCacheAdapter) GetSpeaker(ctx context.Context, speakerID string) (*domain.Speaker, bool) {
	var speaker domain.Speaker
	if !c.get(ctx, speakerKey(speakerID), &speaker) {
		return nil, false
	}
	return &speaker, true
}

func (c *RedisCacheAdapter) StoreSpeaker(ctx context.Context, speaker domain.Speaker) {
	c.set(ctx, speakerKey(speaker.ID), speaker)
}

func (c *RedisCacheAdapter) GetAvailabilityWindow(ctx context.Context, speakerID string, from domain.SessionDate) (domain.AvailabilityWindow, bool) {
	var cached redisWindow
	if !c.get(ctx, windowKey(speakerID), &cached) {
		return nil, false
	}
	if !cached.From.Equal(from) {
		return nil, false
	}

	window := make(domain.AvailabilityWindow, len(cached.Days))
	for raw, available := range cached.Days {
		date, err := domain.ParseSessionDate(raw)
		if err != nil {
			return nil, false
		}
		window[date] = available
	}
	return window, true
}

func (c *RedisCacheAdapter) StoreAvailabilityWindow(ctx context.Context, speakerID string, from domain.SessionDate, window domain.AvailabilityWindow) {
	days := make(map[string]bool, len(window))
	for date, available := range window {
		days[date.String()] = available
	}
	c.set(ctx, windowKey(speakerID), redisWindow{From: from, Days: days})
}

func (c *RedisCacheAdapter) InvalidateSpeaker(ctx context.Context, speakerID string) {
	if err := c.client.Del(ctx, speakerKey(speakerID), windowKey(speakerID)).Err(); err != nil {
		c.logger.Error("cache.invalidate_failed", out.LogFields{
			"speakerId": speakerID,
			"error":     err.Error(),
		})
	}
}

func (c *RedisCacheAdapter) get(ctx context.Context, key string, dst interface{}) bool {
	val, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		c.logger.Debug("cache.get.miss", out.LogFields{"key": key})
		return false
	}
	if err != nil {
		c.logger.Error("cache.get_failed", out.LogFields{
			"key":   key,
			"error": err.Error(),
		})
		return false
	}

	if err := json.Unmarshal(val, dst); err != nil {
		c.logger.Warn("cache.get.corrupt", out.LogFields{
			"key":   key,
			"error": err.Error(),
		})
		return false
	}
	return true
}

func (c *RedisCacheAdapter) set(ctx context.Context, key string, value interface{}) {
	data, err := json.Marshal(value)
	if err != nil {
		c.logger.Error("cache.encode_failed", out.LogFields{
			"key":   key,
			"error": err.Error(),
		})
		return
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.Error("cache.set_failed", out.LogFields{
			"key":   key,
			"error": err.Error(),
		})
	}
}
