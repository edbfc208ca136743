// Relayer - Nostr-style Relay Aggregator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/relayer

// Package subscription is the relational-database-backed service mapping
// bot identities to subscribers with per-pair shared secrets, and the
// encrypted per-subscriber fanout it produces for each event.
package subscription

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/tomtom215/relayer/internal/logging"
	"github.com/tomtom215/relayer/internal/relay"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS bots (
	bot_pubkey    TEXT PRIMARY KEY,
	nostr_pubkey  TEXT NOT NULL DEFAULT '',
	eth_address   TEXT UNIQUE,
	name          TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	last_seen_at  TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS subscriptions (
	id              BIGSERIAL PRIMARY KEY,
	bot_pubkey      TEXT NOT NULL REFERENCES bots(bot_pubkey) ON DELETE CASCADE,
	follower_pubkey TEXT NOT NULL,
	shared_secret   TEXT NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (bot_pubkey, follower_pubkey)
);

ALTER TABLE bots ADD COLUMN IF NOT EXISTS nostr_pubkey TEXT NOT NULL DEFAULT '';
ALTER TABLE bots ADD COLUMN IF NOT EXISTS eth_address TEXT UNIQUE;
ALTER TABLE bots ADD COLUMN IF NOT EXISTS name TEXT NOT NULL DEFAULT '';
ALTER TABLE bots ADD COLUMN IF NOT EXISTS created_at TIMESTAMPTZ NOT NULL DEFAULT now();
ALTER TABLE bots ADD COLUMN IF NOT EXISTS last_seen_at TIMESTAMPTZ;
ALTER TABLE subscriptions ADD COLUMN IF NOT EXISTS created_at TIMESTAMPTZ NOT NULL DEFAULT now();

CREATE TABLE IF NOT EXISTS platform_state (
	id         TEXT PRIMARY KEY,
	pubkey     TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// BotRecord is a row from the bots table.
type BotRecord struct {
	BotPubKey   string
	NostrPubKey string
	EthAddress  string
	Name        string
	CreatedAt   time.Time
	LastSeenAt  *time.Time
}

// Broadcaster is invoked with a synthesized rotation-announcement event
// when the platform's signing pubkey changes. It is supplied by the caller
// of EnsurePlatformPubKey.
type Broadcaster func(event *relay.Event) error

// Service is the Postgres-backed subscription store.
type Service struct {
	pool *pgxpool.Pool
}

// New connects to Postgres at dsn with the given pool size and
// idempotently creates the schema.
func New(ctx context.Context, dsn string, maxConnections int) (*Service, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("subscription: parse dsn: %w", err)
	}
	if maxConnections > 0 {
		cfg.MaxConns = int32(maxConnections)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("subscription: connect: %w", err)
	}

	s := &Service{pool: pool}
	if err := s.initSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the connection pool.
func (s *Service) Close() {
	s.pool.Close()
}

func (s *Service) initSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("subscription: init schema: %w", err)
	}
	return nil
}

// RegisterBot upserts a bot identity, keyed on bot_pubkey.
func (s *Service) RegisterBot(ctx context.Context, botPubKey, nostrPubKey, ethAddress, name string) error {
	const q = `
INSERT INTO bots (bot_pubkey, nostr_pubkey, eth_address, name)
VALUES ($1, $2, $3, $4)
ON CONFLICT (bot_pubkey) DO UPDATE SET
	nostr_pubkey = EXCLUDED.nostr_pubkey,
	eth_address  = EXCLUDED.eth_address,
	name         = EXCLUDED.name
`
	if _, err := s.pool.Exec(ctx, q, botPubKey, nostrPubKey, ethAddress, name); err != nil {
		return fmt.Errorf("subscription: register_bot %s: %w", botPubKey, err)
	}
	return nil
}

// AddSubscription upserts a (bot, follower) pair, keyed on the pair.
func (s *Service) AddSubscription(ctx context.Context, botPubKey, followerPubKey, sharedSecret string) error {
	const q = `
INSERT INTO subscriptions (bot_pubkey, follower_pubkey, shared_secret)
VALUES ($1, $2, $3)
ON CONFLICT (bot_pubkey, follower_pubkey) DO UPDATE SET
	shared_secret = EXCLUDED.shared_secret
`
	if _, err := s.pool.Exec(ctx, q, botPubKey, followerPubKey, sharedSecret); err != nil {
		return fmt.Errorf("subscription: add_subscription %s/%s: %w", botPubKey, followerPubKey, err)
	}
	return nil
}

// subscriberRow is an internal pairing used by ListSubscriptions and
// FanoutForEvent.
type subscriberRow struct {
	FollowerPubKey string
	SharedSecret   string
}

// ListSubscriptions returns the (follower, shared_secret) pairs for a bot.
func (s *Service) ListSubscriptions(ctx context.Context, botPubKey string) ([]subscriberRow, error) {
	const q = `SELECT follower_pubkey, shared_secret FROM subscriptions WHERE bot_pubkey = $1`
	rows, err := s.pool.Query(ctx, q, botPubKey)
	if err != nil {
		return nil, fmt.Errorf("subscription: list_subscriptions %s: %w", botPubKey, err)
	}
	defer rows.Close()

	var out []subscriberRow
	for rows.Next() {
		var r subscriberRow
		if err := rows.Scan(&r.FollowerPubKey, &r.SharedSecret); err != nil {
			return nil, fmt.Errorf("subscription: scan subscriber row: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("subscription: list_subscriptions rows: %w", err)
	}
	return out, nil
}

// FanoutForEvent looks up subscribers of event.PubKey and produces one
// encrypted FanoutMessage per subscriber. Returns an empty slice (not an
// error) when the bot has no subscribers.
func (s *Service) FanoutForEvent(ctx context.Context, event *relay.Event) ([]FanoutMessage, error) {
	subs, err := s.ListSubscriptions(ctx, event.PubKey)
	if err != nil {
		return nil, err
	}

	messages := make([]FanoutMessage, 0, len(subs))
	for _, sub := range subs {
		payload, err := encryptWithSecret(event.Content, sub.SharedSecret)
		if err != nil {
			logging.Error().Err(err).Str("event_id", event.ID).Str("follower", sub.FollowerPubKey).
				Msg("subscription: fanout encryption failed for subscriber, skipping")
			continue
		}
		messages = append(messages, FanoutMessage{
			TargetPubKey:    sub.FollowerPubKey,
			BotPubKey:       event.PubKey,
			Kind:            event.Kind,
			OriginalEventID: event.ID,
			Payload:         payload,
		})
	}
	return messages, nil
}

// FindBotByEth looks up a bot by its linked Ethereum address.
func (s *Service) FindBotByEth(ctx context.Context, ethAddress string) (*BotRecord, error) {
	const q = `SELECT bot_pubkey, nostr_pubkey, eth_address, name, created_at, last_seen_at FROM bots WHERE eth_address = $1`
	var rec BotRecord
	err := s.pool.QueryRow(ctx, q, ethAddress).Scan(
		&rec.BotPubKey, &rec.NostrPubKey, &rec.EthAddress, &rec.Name, &rec.CreatedAt, &rec.LastSeenAt,
	)
	if err != nil {
		return nil, fmt.Errorf("subscription: find_bot_by_eth %s: %w", ethAddress, err)
	}
	return &rec, nil
}

// UpdateBotLastSeen stamps last_seen_at to now for botPubKey.
func (s *Service) UpdateBotLastSeen(ctx context.Context, botPubKey string) error {
	const q = `UPDATE bots SET last_seen_at = now() WHERE bot_pubkey = $1`
	if _, err := s.pool.Exec(ctx, q, botPubKey); err != nil {
		return fmt.Errorf("subscription: update_bot_last_seen %s: %w", botPubKey, err)
	}
	return nil
}

// EnsurePlatformPubKey reads the platform_state singleton; if currentPubKey
// differs from what is stored (or nothing is stored yet), it upserts the
// new value and, if broadcaster is non-nil, invokes it with a rotation
// announcement event.
func (s *Service) EnsurePlatformPubKey(ctx context.Context, currentPubKey string, broadcaster Broadcaster) error {
	const selectQ = `SELECT pubkey FROM platform_state WHERE id = 'platform'`
	var previous string
	err := s.pool.QueryRow(ctx, selectQ).Scan(&previous)
	hadPrevious := err == nil
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("subscription: ensure_platform_pubkey read: %w", err)
	}

	if hadPrevious && previous == currentPubKey {
		return nil
	}

	const upsertQ = `
INSERT INTO platform_state (id, pubkey, updated_at) VALUES ('platform', $1, now())
ON CONFLICT (id) DO UPDATE SET pubkey = EXCLUDED.pubkey, updated_at = now()
`
	if _, err := s.pool.Exec(ctx, upsertQ, currentPubKey); err != nil {
		return fmt.Errorf("subscription: ensure_platform_pubkey upsert: %w", err)
	}

	if broadcaster == nil {
		return nil
	}

	content := rotationAnnouncement(currentPubKey, previous)
	announcement := &relay.Event{
		PubKey:    currentPubKey,
		Kind:      0,
		CreatedAt: time.Now().Unix(),
		Content:   content,
	}
	if err := broadcaster(announcement); err != nil {
		logging.Error().Err(err).Msg("subscription: platform pubkey rotation broadcast failed")
	}
	return nil
}

func rotationAnnouncement(newPubKey, previousPubKey string) string {
	return fmt.Sprintf(`{"op":"platform_key_rotation","new_pubkey":%q,"previous_pubkey":%q,"ts":%d}`,
		newPubKey, previousPubKey, time.Now().Unix())
}

// encryptWithSecret derives a 32-byte key via SHA-256(sharedSecret),
// generates a fresh 12-byte random nonce, encrypts content with
// ChaCha20-Poly1305 (empty AAD), and returns base64(nonce || ciphertext).
func encryptWithSecret(content, sharedSecret string) (string, error) {
	key := sha256.Sum256([]byte(sharedSecret))

	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return "", fmt.Errorf("subscription: init cipher: %w", err)
	}

	nonce := make([]byte, chacha20poly1305.NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("subscription: generate nonce: %w", err)
	}

	ciphertext := aead.Seal(nil, nonce, []byte(content), nil)

	out := make([]byte, 0, len(nonce)+len(ciphertext))
	out = append(out, nonce...)
	out = append(out, ciphertext...)

	return base64.StdEncoding.EncodeToString(out), nil
}

// DecryptForSubscriber reverses encryptWithSecret. Provided for tests and
// for a downstream consumer implemented in Go.
func DecryptForSubscriber(payload, sharedSecret string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", fmt.Errorf("subscription: decode payload: %w", err)
	}
	if len(raw) < chacha20poly1305.NonceSize {
		return "", fmt.Errorf("subscription: payload too short")
	}

	key := sha256.Sum256([]byte(sharedSecret))
	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return "", fmt.Errorf("subscription: init cipher: %w", err)
	}

	nonce, ciphertext := raw[:chacha20poly1305.NonceSize], raw[chacha20poly1305.NonceSize:]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("subscription: decrypt: %w", err)
	}
	return string(plaintext), nil
}
