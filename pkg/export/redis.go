package export

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/routelens/routelens/pkg/config"
	rlerrors "github.com/routelens/routelens/pkg/errors"
	"github.com/routelens/routelens/pkg/stock"
)

// Snapshot is the JSON document stored per profile.
type Snapshot struct {
	RunID       string    `json:"runId"`
	Profile     string    `json:"profile"`
	PublishedAt time.Time `json:"publishedAt"`
	Records     []Record  `json:"records"`
}

// RedisPublisher stores the latest stock snapshot of each profile under
// "<prefix>stock:<profile>" and announces it on "<prefix>updates".
type RedisPublisher struct {
	client  redis.UniversalClient
	prefix  string
	ttl     time.Duration
	timeout time.Duration
}

// NewRedisPublisher connects to the server in cfg and checks it answers.
func NewRedisPublisher(ctx context.Context, cfg config.RedisConfig) (*RedisPublisher, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, rlerrors.Wrap(err, rlerrors.CodeRedis, "failed to connect to Redis").WithContext("addr", cfg.Addr)
	}
	return NewRedisPublisherWithClient(client, cfg.Prefix, cfg.TTL), nil
}

// NewRedisPublisherWithClient wraps an existing client.
func NewRedisPublisherWithClient(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisPublisher {
	return &RedisPublisher{client: client, prefix: prefix, ttl: ttl, timeout: 5 * time.Second}
}

// Key returns the snapshot key of profile.
func (p *RedisPublisher) Key(profile string) string {
	return p.prefix + "stock:" + sanitizeKey(profile)
}

// Channel returns the pub/sub channel snapshots are announced on.
func (p *RedisPublisher) Channel() string {
	return p.prefix + "updates"
}

// sanitizeKey removes characters that may cause issues in Redis keys.
func sanitizeKey(s string) string {
	return strings.NewReplacer("/", "_", ":", "_", " ", "_").Replace(s)
}

// Export implements Exporter.
func (p *RedisPublisher) Export(ctx context.Context, profile string, view *stock.View) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	snap := Snapshot{
		RunID:       newRunID(),
		Profile:     profile,
		PublishedAt: time.Now().UTC(),
		Records:     Records(view),
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return nil, rlerrors.Wrap(err, rlerrors.CodePublishFailed, "failed to marshal snapshot")
	}

	key := p.Key(profile)
	pipe := p.client.TxPipeline()
	pipe.Set(ctx, key, data, p.ttl)
	pipe.Publish(ctx, p.Channel(), key)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, rlerrors.Wrap(err, rlerrors.CodeRedis, "failed to publish snapshot").WithContext("key", key)
	}

	return &Result{RunID: snap.RunID, Target: TargetRedis, Profile: profile, Location: key, Rows: len(snap.Records)}, nil
}

// Load reads back the stored snapshot of profile.
func (p *RedisPublisher) Load(ctx context.Context, profile string) (*Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	data, err := p.client.Get(ctx, p.Key(profile)).Bytes()
	if err == redis.Nil {
		return nil, rlerrors.FileNotFound(p.Key(profile))
	}
	if err != nil {
		return nil, rlerrors.Wrap(err, rlerrors.CodeRedis, "failed to read snapshot")
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, rlerrors.JSONParse(p.Key(profile), err)
	}
	return &snap, nil
}

// Close closes the client.
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
