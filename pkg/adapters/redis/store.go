package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/chatflow/pkg/domain"
	backend "github.com/redis/go-redis/v9"
)

// DefaultPrefix namespaces every key written by this package.
const DefaultPrefix = "chatflow:"

// farFuture is the index score of sessions without expiration (2100-01-01).
const farFuture = 4102444800

// createScript reserves the contact and writes the session atomically.
// KEYS: active, session, index. ARGV: id, json, score, ttl ms.
var createScript = backend.NewScript(`
local ttl = tonumber(ARGV[4])
local ok
if ttl > 0 then
	ok = redis.call("SET", KEYS[1], ARGV[1], "NX", "PX", ttl)
else
	ok = redis.call("SET", KEYS[1], ARGV[1], "NX")
end
if not ok then
	return 0
end
if ttl > 0 then
	redis.call("SET", KEYS[2], ARGV[2], "PX", ttl)
else
	redis.call("SET", KEYS[2], ARGV[2])
end
redis.call("ZADD", KEYS[3], ARGV[3], ARGV[1])
return 1
`)

// saveScript writes the session and keeps the contact reservation in sync:
// live sessions must own it, terminal sessions release it.
// KEYS: active, session, index. ARGV: id, json, score, ttl ms, live.
var saveScript = backend.NewScript(`
local ttl = tonumber(ARGV[4])
local owner = redis.call("GET", KEYS[1])
if ARGV[5] == "1" then
	if owner and owner ~= ARGV[1] then
		return 0
	end
	if ttl > 0 then
		redis.call("SET", KEYS[1], ARGV[1], "PX", ttl)
	else
		redis.call("SET", KEYS[1], ARGV[1])
	end
elseif owner == ARGV[1] then
	redis.call("DEL", KEYS[1])
end
if ttl > 0 then
	redis.call("SET", KEYS[2], ARGV[2], "PX", ttl)
else
	redis.call("SET", KEYS[2], ARGV[2])
end
redis.call("ZADD", KEYS[3], ARGV[3], ARGV[1])
return 1
`)

// Store implements ports.SessionStore using Redis.
//
// Uniqueness is enforced by a per-contact key holding the id of the live
// session; it is reserved with SET NX on Create and released by Save when
// the session reaches a terminal status.
type Store struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

type Option func(*Store)

// WithTTL sets the expiration for sessions.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// New creates a new Redis store with options.
func New(address, password string, db int, opts ...Option) *Store {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(rdb, opts...)
}

// NewFromClient creates a new Redis store from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Store {
	store := &Store{
		client: client,
		prefix: DefaultPrefix,
		ttl:    0, // No expiration by default
	}

	for _, opt := range opts {
		opt(store)
	}

	return store
}

func (s *Store) sessionKey(id string) string {
	return s.prefix + "session:" + id
}

func (s *Store) activeKey(key domain.ContactKey) string {
	return s.prefix + "active:" + key.String()
}

func (s *Store) indexKey() string {
	return s.prefix + "session:index"
}

func (s *Store) score() float64 {
	if s.ttl == 0 {
		return farFuture
	}
	return float64(time.Now().Add(s.ttl).Unix())
}

// FindActiveByContact retrieves the live session of the contact.
func (s *Store) FindActiveByContact(ctx context.Context, key domain.ContactKey) (*domain.Session, error) {
	id, err := s.client.Get(ctx, s.activeKey(key)).Result()
	if errors.Is(err, backend.Nil) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get from redis: %w", err)
	}

	session, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !session.Status.Live() {
		return nil, domain.ErrSessionNotFound
	}
	return session, nil
}

// Create inserts a new live session.
func (s *Store) Create(ctx context.Context, session *domain.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	keys := []string{s.activeKey(session.Key()), s.sessionKey(session.ID), s.indexKey()}
	ok, err := createScript.Run(ctx, s.client, keys, session.ID, data, s.score(), s.ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("failed to create session in redis: %w", err)
	}
	if ok == 0 {
		return domain.ErrSessionConflict
	}
	return nil
}

// Save persists the session.
func (s *Store) Save(ctx context.Context, session *domain.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	live := "0"
	if session.Status.Live() {
		live = "1"
	}
	keys := []string{s.activeKey(session.Key()), s.sessionKey(session.ID), s.indexKey()}
	ok, err := saveScript.Run(ctx, s.client, keys, session.ID, data, s.score(), s.ttl.Milliseconds(), live).Int()
	if err != nil {
		return fmt.Errorf("failed to save to redis: %w", err)
	}
	if ok == 0 {
		return domain.ErrSessionConflict
	}
	return nil
}

// Get retrieves a session by id.
func (s *Store) Get(ctx context.Context, sessionID string) (*domain.Session, error) {
	val, err := s.client.Get(ctx, s.sessionKey(sessionID)).Result()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get from redis: %w", err)
	}

	var session domain.Session
	if err := json.Unmarshal([]byte(val), &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	if session.CollectedData == nil {
		session.CollectedData = make(map[string]string)
	}
	return &session, nil
}

// List returns stored session ids.
// Expired entries are pruned from the index lazily.
func (s *Store) List(ctx context.Context) ([]string, error) {
	now := float64(time.Now().Unix())
	err := s.client.ZRemRangeByScore(ctx, s.indexKey(), "-inf", fmt.Sprintf("%f", now)).Err()
	if err != nil {
		return nil, fmt.Errorf("failed to prune expired sessions: %w", err)
	}

	sessions, err := s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return sessions, nil
}

// Close closes the redis client.
func (s *Store) Close() error {
	return s.client.Close()
}
