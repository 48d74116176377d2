package storage_test

import (
	"context"
	"garagechat/backend/internal/models"
	"garagechat/backend/internal/storage"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestInboxChannel(t *testing.T) {
	assert.Equal(t, "inbox:u1", storage.InboxChannel("u1"))
	assert.NotEqual(t, storage.InboxChannel("u1"), storage.InboxChannel("u2"))
}

func unreachableRedis() *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
}

func TestPublishInbound_RedisDown(t *testing.T) {
	rdb := unreachableRedis()
	defer rdb.Close()
	s := storage.NewStorageService(nil, rdb, zerolog.Nop())

	err := s.PublishInbound("u1", models.InboundEvent{SenderID: "u2", Text: "hi"})

	assert.Error(t, err)
}

func TestSubscribeInbound_RedisDown(t *testing.T) {
	rdb := unreachableRedis()
	defer rdb.Close()
	s := storage.NewStorageService(nil, rdb, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	ch, err := s.SubscribeInbound(ctx, "u1")

	assert.Error(t, err)
	assert.Nil(t, ch)
}
