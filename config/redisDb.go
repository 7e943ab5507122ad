package config

import (
	"context"
	"log"
	"os"
	"sync/atomic"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

type redisClients struct {
	rdb    *redis.Client
	locker *redislock.Client
}

// swapped as a pair; requests may run while the connect loop is still retrying
var redisState atomic.Pointer[redisClients]

func GetRedisDB() *redis.Client {
	if c := redisState.Load(); c != nil {
		return c.rdb
	}
	return nil
}

func GetRedisLock() *redislock.Client {
	if c := redisState.Load(); c != nil {
		return c.locker
	}
	return nil
}

// SetRedisDB replaces the global client (nil disables redis).
func SetRedisDB(client *redis.Client) {
	if client == nil {
		redisState.Store(nil)
		return
	}
	redisState.Store(&redisClients{rdb: client, locker: redislock.New(client)})
}

// store key in a set for faster adding & retrieving
func AddRedisSet(ctx context.Context, setKey string, exp time.Duration, members ...string) error {
	rdb := GetRedisDB()
	if rdb == nil || len(members) == 0 {
		return nil
	}
	args := make([]interface{}, 0, len(members))
	for _, m := range members {
		args = append(args, m)
	}
	pipe := rdb.TxPipeline()
	pipe.SAdd(ctx, setKey, args...)
	if exp > 0 {
		pipe.Expire(ctx, setKey, exp)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// IsRedisSetMember reports (isMember, setExists, err).
func IsRedisSetMember(ctx context.Context, setKey string, member string) (bool, bool, error) {
	rdb := GetRedisDB()
	if rdb == nil {
		return false, false, nil
	}
	n, err := rdb.Exists(ctx, setKey).Result()
	if err != nil {
		return false, false, err
	}
	if n == 0 {
		return false, false, nil
	}
	ok, err := rdb.SIsMember(ctx, setKey, member).Result()
	if err != nil {
		return false, true, err
	}
	return ok, true, nil
}

func RemoveRedisKey(ctx context.Context, keys ...string) error {
	rdb := GetRedisDB()
	if rdb == nil {
		return nil
	}
	_, err := rdb.Del(ctx, keys...).Result()
	return err
}

// ConnectRedisWithRetry connects and sets the global Redis client + lock client.
func ConnectRedisWithRetry() {
	redisAddr := os.Getenv("REDIS_ADDRESS")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
		log.Printf("REDIS_ADDRESS not set; defaulting to %s", redisAddr)
	}

	ctx := context.Background()
	var attempt int
	for {
		attempt++
		client := redis.NewClient(&redis.Options{
			Addr:     redisAddr,
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       0,
			PoolSize: 100,
		})
		err := client.Ping(ctx).Err()
		if err == nil {
			SetRedisDB(client)
			log.Printf("connected to redis (attempt=%d addr=%s)", attempt, redisAddr)
			return
		}
		_ = client.Close()
		sleep := retryDelay(attempt)
		log.Printf("failed to connect redis (attempt=%d addr=%s): %v; retrying in %s", attempt, redisAddr, err, sleep)
		time.Sleep(sleep)
	}
}
