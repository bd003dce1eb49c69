package record

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"lichess-pilot/internal/botlog"
	"lichess-pilot/internal/domain"
)

const finishRetries = 3

// RedisStore는 판 기록을 Redis에 JSON으로 보관한다.
// 키는 pilot:game:<id>, 최근 목록 조회용 인덱스는 pilot:games 집합.
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisStore(redisURL string, ttl time.Duration) (*RedisStore, error) {
	if strings.TrimSpace(redisURL) == "" {
		return nil, fmt.Errorf("REDIS_URL required for record store")
	}
	opts, err := parseRedisURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &RedisStore{rdb: rdb, ttl: ttl}, nil
}

func (s *RedisStore) Save(ctx context.Context, rec domain.GameRecord) error {
	id := strings.TrimSpace(rec.GameID)
	if id == "" {
		return nil
	}
	if err := s.write(ctx, &rec); err != nil {
		return err
	}
	return s.index(ctx, id)
}

// Finish는 WATCH 낙관적 갱신으로 종료 기록을 합친다.
// 동시 갱신으로 밀리면 몇 번 다시 시도하고, 진행 기록이 없으면 그냥 새로 쓴다.
func (s *RedisStore) Finish(ctx context.Context, rec domain.GameRecord) error {
	id := strings.TrimSpace(rec.GameID)
	if id == "" {
		return nil
	}
	key := gameKey(id)

	var err error
	for attempt := 0; attempt < finishRetries; attempt++ {
		err = s.rdb.Watch(ctx, func(tx *redis.Tx) error {
			raw, gerr := tx.Get(ctx, key).Bytes()
			if gerr != nil && gerr != redis.Nil {
				return gerr
			}
			merged := rec
			if gerr != redis.Nil {
				var stored domain.GameRecord
				if jerr := json.Unmarshal(raw, &stored); jerr == nil {
					mergeStartedAt(&merged, &stored)
				}
			}
			newRaw, jerr := json.Marshal(&merged)
			if jerr != nil {
				return jerr
			}
			pipe := tx.TxPipeline()
			pipe.Set(ctx, key, newRaw, s.ttl)
			_, perr := pipe.Exec(ctx)
			return perr
		}, key)
		if !errors.Is(err, redis.TxFailedErr) {
			break
		}
		botlog.L().Warn("record_finish_retry", zap.String("game_id", id), zap.Int("attempt", attempt+1))
	}
	if err != nil {
		return err
	}
	return s.index(ctx, id)
}

func (s *RedisStore) Load(ctx context.Context, gameID string) (*domain.GameRecord, error) {
	raw, err := s.rdb.Get(ctx, gameKey(gameID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var rec domain.GameRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Recent은 인덱스 집합의 판들을 시작 시각 역순으로 돌려준다.
// TTL로 본문이 먼저 사라진 ID는 건너뛴다.
func (s *RedisStore) Recent(ctx context.Context, limit int) ([]*domain.GameRecord, error) {
	ids, err := s.rdb.SMembers(ctx, indexKey()).Result()
	if err != nil {
		return nil, err
	}
	list := make([]*domain.GameRecord, 0, len(ids))
	for _, id := range ids {
		rec, lerr := s.Load(ctx, id)
		if lerr != nil || rec == nil {
			continue
		}
		list = append(list, rec)
	}
	sortRecent(list)
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}

func (s *RedisStore) Close() error {
	if s == nil || s.rdb == nil {
		return nil
	}
	return s.rdb.Close()
}

func (s *RedisStore) write(ctx context.Context, rec *domain.GameRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, gameKey(rec.GameID), raw, s.ttl).Err()
}

// index는 최근 목록 집합에 ID를 넣고 집합 TTL도 같이 갱신한다. 누적 방지.
func (s *RedisStore) index(ctx context.Context, id string) error {
	key := indexKey()
	if err := s.rdb.SAdd(ctx, key, id).Err(); err != nil {
		return err
	}
	_ = s.rdb.Expire(ctx, key, s.ttl).Err()
	return nil
}

func gameKey(id string) string { return "pilot:game:" + strings.TrimSpace(id) }
func indexKey() string         { return "pilot:games" }

func parseRedisURL(raw string) (*redis.Options, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "redis" && u.Scheme != "rediss" {
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	db := 0
	if p := strings.TrimPrefix(u.Path, "/"); p != "" {
		if n, err := strconv.Atoi(p); err == nil {
			db = n
		}
	}
	pass, _ := u.User.Password()
	return &redis.Options{Addr: u.Host, Password: pass, DB: db}, nil
}
