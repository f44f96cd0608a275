// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/bureau-foundation/mirror/lib/clock"
	"github.com/bureau-foundation/mirror/lib/codec"
)

// Compile-time interface check.
var _ Signaler = (*RedisSignaler)(nil)

// redisKeyPrefix namespaces signaling hashes in a shared Redis.
const redisKeyPrefix = "mirror:signal:"

// RedisSignaler implements Signaler over a shared Redis, for hosts and
// joiners that cannot reach each other's HTTP servers but can reach a
// common broker.
//
// Offers for a target live in the hash "mirror:signal:offers:<target>"
// with one field per offerer; answers in
// "mirror:signal:answers:<offerer>" with one field per answerer. Values
// are CBOR-encoded signal records. Every publish refreshes the hash's
// TTL, so abandoned signaling expires on its own.
type RedisSignaler struct {
	client *redis.Client
	ttl    time.Duration
	clock  clock.Clock
	logger *slog.Logger

	mu       sync.Mutex
	lastSeen map[string]time.Time // key: "<hash>|<field>"
}

// redisSignal is the stored form of one offer or answer.
type redisSignal struct {
	SDP       string    `cbor:"sdp"`
	Timestamp time.Time `cbor:"timestamp"`
}

// NewRedisSignaler connects to the Redis at url ("redis://host:port/db")
// and verifies it is reachable.
func NewRedisSignaler(ctx context.Context, url string, ttl time.Duration, logger *slog.Logger) (*RedisSignaler, error) {
	options, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	client := redis.NewClient(options)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	return NewRedisSignalerWithClient(client, ttl, logger), nil
}

// NewRedisSignalerWithClient wraps an existing client.
func NewRedisSignalerWithClient(client *redis.Client, ttl time.Duration, logger *slog.Logger) *RedisSignaler {
	return &RedisSignaler{
		client:   client,
		ttl:      ttl,
		clock:    clock.Real(),
		logger:   logger,
		lastSeen: make(map[string]time.Time),
	}
}

// Close closes the Redis client.
func (s *RedisSignaler) Close() error {
	return s.client.Close()
}

func offersKey(target string) string  { return redisKeyPrefix + "offers:" + target }
func answersKey(offerer string) string { return redisKeyPrefix + "answers:" + offerer }

func (s *RedisSignaler) PublishOffer(ctx context.Context, offerer, target, sdp string) error {
	if err := s.publish(ctx, offersKey(target), offerer, sdp); err != nil {
		return fmt.Errorf("publishing offer to %s: %w", target, err)
	}
	return nil
}

func (s *RedisSignaler) PublishAnswer(ctx context.Context, offerer, answerer, sdp string) error {
	if err := s.publish(ctx, answersKey(offerer), answerer, sdp); err != nil {
		return fmt.Errorf("publishing answer to %s: %w", offerer, err)
	}
	return nil
}

func (s *RedisSignaler) publish(ctx context.Context, key, field, sdp string) error {
	value, err := codec.Marshal(redisSignal{SDP: sdp, Timestamp: s.clock.Now().UTC()})
	if err != nil {
		return fmt.Errorf("encoding signal: %w", err)
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, field, value)
		pipe.Expire(ctx, key, s.ttl)
		return nil
	})
	return err
}

func (s *RedisSignaler) PollOffers(ctx context.Context, target string) ([]SignalMessage, error) {
	messages, err := s.poll(ctx, offersKey(target))
	if err != nil {
		return nil, fmt.Errorf("polling offers for %s: %w", target, err)
	}
	return messages, nil
}

func (s *RedisSignaler) PollAnswers(ctx context.Context, offerer string) ([]SignalMessage, error) {
	messages, err := s.poll(ctx, answersKey(offerer))
	if err != nil {
		return nil, fmt.Errorf("polling answers for %s: %w", offerer, err)
	}
	return messages, nil
}

func (s *RedisSignaler) poll(ctx context.Context, key string) ([]SignalMessage, error) {
	fields, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var messages []SignalMessage
	for peer, raw := range fields {
		var signal redisSignal
		if err := codec.Unmarshal([]byte(raw), &signal); err != nil {
			s.logger.Warn("discarding undecodable signal", "key", key, "peer", peer, "error", err)
			continue
		}
		if signal.SDP == "" {
			continue
		}

		seenKey := key + signalingSeparator + peer
		if last, ok := s.lastSeen[seenKey]; ok && !signal.Timestamp.After(last) {
			continue
		}
		s.lastSeen[seenKey] = signal.Timestamp

		messages = append(messages, SignalMessage{
			Peer:      peer,
			SDP:       signal.SDP,
			Timestamp: signal.Timestamp.Format(time.RFC3339Nano),
		})
	}
	return messages, nil
}

// Forget deletes offers by and answers to peer. Offers the peer
// published under other targets expire through the TTL.
func (s *RedisSignaler) Forget(ctx context.Context, peer string) error {
	return s.client.Del(ctx, offersKey(peer), answersKey(peer)).Err()
}
