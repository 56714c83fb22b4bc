package infra

import (
	"context"
	"errors"
	"strings"
	"time"

	"content-gateway/access/domain"

	"github.com/redis/go-redis/v9"
)

// advanceScript faz o read-compare-write do token atomicamente no Redis, usando o
// relógio do servidor para que hosts diferentes concordem sobre "agora".
const advanceScript = `
local t = redis.call('TIME')
local now = tonumber(t[1]) * 1000 + math.floor(tonumber(t[2]) / 1000)
local interval = tonumber(ARGV[1])
local ttl = tonumber(ARGV[2])
local last = tonumber(redis.call('GET', KEYS[1])) or 0

if last > 0 and interval > 0 then
  if now < last then
    return interval
  end
  if now - last < interval then
    return interval - (now - last)
  end
end

redis.call('SET', KEYS[1], now, 'PX', ttl)
return 0
`

// RedisTokenStore guarda o RateToken no Redis, para frotas que passam de um host.
//
// Não há lock explícito: o script é a seção crítica, então não existe lock abandonado
// para recuperar.
type RedisTokenStore struct {
	rdb    redis.Cmdable
	key    string
	ttl    time.Duration
	script *redis.Script
}

type RedisTokenOption func(*RedisTokenStore)

func WithTokenKey(key string) RedisTokenOption {
	return func(s *RedisTokenStore) { s.key = strings.Trim(key, ":") }
}

func WithTokenTTL(d time.Duration) RedisTokenOption {
	return func(s *RedisTokenStore) { s.ttl = d }
}

func NewRedisTokenStore(rdb redis.Cmdable, opts ...RedisTokenOption) *RedisTokenStore {
	s := &RedisTokenStore{
		rdb:    rdb,
		key:    "gateway:ratetoken",
		ttl:    time.Hour,
		script: redis.NewScript(advanceScript),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisTokenStore) Advance(ctx context.Context, minInterval time.Duration) (time.Duration, error) {
	waitMs, err := s.script.Run(ctx, s.rdb, []string{s.key}, minInterval.Milliseconds(), s.ttl.Milliseconds()).Int64()
	if err != nil {
		return 0, unavailable("token.redis", err)
	}
	return time.Duration(waitMs) * time.Millisecond, nil
}

func (s *RedisTokenStore) Load(ctx context.Context) (domain.RateToken, error) {
	ms, err := s.rdb.Get(ctx, s.key).Int64()
	if errors.Is(err, redis.Nil) {
		return domain.RateToken{}, nil
	}
	if err != nil {
		return domain.RateToken{}, unavailable("token.redis", err)
	}
	return domain.RateToken{LastDispatchMillis: ms}, nil
}
