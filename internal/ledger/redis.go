package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/resguarit/ticketera-rg-sub002/internal/domain"
)

// Redis stores holds in a hash per ticket type, with the expiry embedded in
// each entry rather than as a per-field TTL (hash fields cannot expire
// individually). A per-session index set supports release-all and
// release-by-prefix. Key TTLs are a leak guard only; every read filters on
// the embedded expiry.
type Redis struct {
	cli *redis.Client
	// keyTTL caps how long abandoned keys linger. It must exceed the hold
	// TTL; entries past their own expiry are already invisible to readers.
	keyTTL time.Duration
}

const defaultKeyTTL = time.Hour

func NewRedis(cli *redis.Client) *Redis {
	return &Redis{cli: cli, keyTTL: defaultKeyTTL}
}

func typeKey(ticketTypeID string) string {
	return "holds:t:" + ticketTypeID
}

func sessionKey(sessionID string) string {
	return "holds:s:" + sessionID
}

func (r *Redis) Put(ctx context.Context, h domain.Hold) error {
	data, err := json.Marshal(h)
	if err != nil {
		return fmt.Errorf("marshal hold: %w", err)
	}

	pipe := r.cli.TxPipeline()
	pipe.HSet(ctx, typeKey(h.TicketTypeID), h.SessionID, data)
	pipe.Expire(ctx, typeKey(h.TicketTypeID), r.keyTTL)
	pipe.SAdd(ctx, sessionKey(h.SessionID), h.TicketTypeID)
	pipe.Expire(ctx, sessionKey(h.SessionID), r.keyTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store hold: %w", err)
	}
	return nil
}

func (r *Redis) Get(ctx context.Context, ticketTypeID, sessionID string) (*domain.Hold, error) {
	data, err := r.cli.HGet(ctx, typeKey(ticketTypeID), sessionID).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get hold: %w", err)
	}

	var h domain.Hold
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, fmt.Errorf("decode hold: %w", err)
	}
	return &h, nil
}

func (r *Redis) ActiveForType(ctx context.Context, ticketTypeID string, now time.Time) ([]domain.Hold, error) {
	entries, err := r.cli.HGetAll(ctx, typeKey(ticketTypeID)).Result()
	if err != nil {
		return nil, fmt.Errorf("list holds: %w", err)
	}

	var active []domain.Hold
	var expired []string
	for sessionID, raw := range entries {
		var h domain.Hold
		if err := json.Unmarshal([]byte(raw), &h); err != nil {
			expired = append(expired, sessionID)
			continue
		}
		if !h.Active(now) {
			expired = append(expired, sessionID)
			continue
		}
		active = append(active, h)
	}

	if len(expired) > 0 {
		pipe := r.cli.Pipeline()
		pipe.HDel(ctx, typeKey(ticketTypeID), expired...)
		for _, sessionID := range expired {
			pipe.SRem(ctx, sessionKey(sessionID), ticketTypeID)
		}
		_, _ = pipe.Exec(ctx)
	}
	return active, nil
}

func (r *Redis) Remove(ctx context.Context, ticketTypeID, sessionID string) error {
	pipe := r.cli.TxPipeline()
	pipe.HDel(ctx, typeKey(ticketTypeID), sessionID)
	pipe.SRem(ctx, sessionKey(sessionID), ticketTypeID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("remove hold: %w", err)
	}
	return nil
}

func (r *Redis) RemoveSession(ctx context.Context, sessionID string, ticketTypeIDs ...string) error {
	if len(ticketTypeIDs) == 0 {
		members, err := r.cli.SMembers(ctx, sessionKey(sessionID)).Result()
		if err != nil {
			return fmt.Errorf("list session holds: %w", err)
		}
		ticketTypeIDs = members
	}
	for _, typeID := range ticketTypeIDs {
		if err := r.Remove(ctx, typeID, sessionID); err != nil {
			return err
		}
	}
	return nil
}

func (r *Redis) RemoveSessionPrefix(ctx context.Context, baseSessionID string) error {
	var cursor uint64
	for {
		keys, next, err := r.cli.Scan(ctx, cursor, sessionKey(baseSessionID)+"*", 100).Result()
		if err != nil {
			return fmt.Errorf("scan sessions: %w", err)
		}
		for _, key := range keys {
			sessionID := strings.TrimPrefix(key, sessionKey(""))
			if err := r.RemoveSession(ctx, sessionID); err != nil {
				return err
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

func (r *Redis) Sweep(ctx context.Context, now time.Time) error {
	var cursor uint64
	for {
		keys, next, err := r.cli.Scan(ctx, cursor, typeKey("")+"*", 100).Result()
		if err != nil {
			return fmt.Errorf("scan hold sets: %w", err)
		}
		for _, key := range keys {
			ticketTypeID := strings.TrimPrefix(key, typeKey(""))
			if _, err := r.ActiveForType(ctx, ticketTypeID, now); err != nil {
				return err
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}
