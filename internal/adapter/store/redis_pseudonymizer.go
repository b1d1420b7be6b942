package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"auditlens/internal/domain/entity"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultPseudonymRetention is how long a session's mappings survive.
const DefaultPseudonymRetention = 30 * 24 * time.Hour

// RedisPseudonymizer keeps session-scoped pseudonym mappings in two Redis
// hashes: original -> pseudonym and pseudonym -> original. Within a session
// a value always maps to the same pseudonym; sessions never share mappings.
type RedisPseudonymizer struct {
	client    *redis.Client
	retention time.Duration
}

func NewRedisPseudonymizer(client *redis.Client, retention time.Duration) *RedisPseudonymizer {
	if retention <= 0 {
		retention = DefaultPseudonymRetention
	}
	return &RedisPseudonymizer{client: client, retention: retention}
}

func forwardKey(sessionID string) string { return "pseudo:" + sessionID + ":fwd" }
func reverseKey(sessionID string) string { return "pseudo:" + sessionID + ":rev" }

// Pseudonymize replaces the person fields of each finding. It returns the
// rewritten copies and how many new mappings were created.
func (p *RedisPseudonymizer) Pseudonymize(ctx context.Context, findings []entity.Finding, sessionID string) ([]entity.Finding, int, error) {
	if sessionID == "" {
		return nil, 0, fmt.Errorf("pseudonymize: empty session id")
	}
	out := make([]entity.Finding, len(findings))
	created := 0
	seen := make(map[string]string)

	lookup := func(value string, category entity.MaskCategory) (string, error) {
		if value == "" {
			return "", nil
		}
		if ps, ok := seen[value]; ok {
			return ps, nil
		}
		ps, isNew, err := p.pseudonymFor(ctx, sessionID, value, category)
		if err != nil {
			return "", err
		}
		if isNew {
			created++
		}
		seen[value] = ps
		return ps, nil
	}

	for i, f := range findings {
		var err error
		if f.Owner, err = lookup(f.Owner, entity.MaskName); err != nil {
			return nil, 0, err
		}
		if f.Auditor, err = lookup(f.Auditor, entity.MaskName); err != nil {
			return nil, 0, err
		}
		if f.OwnerEmail, err = lookup(f.OwnerEmail, entity.MaskEmail); err != nil {
			return nil, 0, err
		}
		out[i] = f
	}

	pipe := p.client.Pipeline()
	pipe.Expire(ctx, forwardKey(sessionID), p.retention)
	pipe.Expire(ctx, reverseKey(sessionID), p.retention)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, 0, fmt.Errorf("refresh pseudonym retention: %w", err)
	}
	return out, created, nil
}

// pseudonymFor returns the session's pseudonym for value, creating it with
// HSETNX so concurrent requests in one session agree on a single mapping.
func (p *RedisPseudonymizer) pseudonymFor(ctx context.Context, sessionID, value string, category entity.MaskCategory) (string, bool, error) {
	candidate := newPseudonym(category)
	ok, err := p.client.HSetNX(ctx, forwardKey(sessionID), value, candidate).Result()
	if err != nil {
		return "", false, fmt.Errorf("store pseudonym: %w", err)
	}
	if !ok {
		existing, err := p.client.HGet(ctx, forwardKey(sessionID), value).Result()
		if err != nil {
			return "", false, fmt.Errorf("load pseudonym: %w", err)
		}
		return existing, false, nil
	}
	if err := p.client.HSet(ctx, reverseKey(sessionID), candidate, value).Err(); err != nil {
		return "", false, fmt.Errorf("store reverse pseudonym: %w", err)
	}
	return candidate, true, nil
}

func newPseudonym(category entity.MaskCategory) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	if category == entity.MaskEmail {
		return "user_" + id + "@example.invalid"
	}
	return "PERSON_" + id
}

// Depseudonymize restores every pseudonym of the session found in text.
// An unknown or expired session yields entity.ErrSessionNotFound.
func (p *RedisPseudonymizer) Depseudonymize(ctx context.Context, text, sessionID string) (string, error) {
	mapping, err := p.client.HGetAll(ctx, reverseKey(sessionID)).Result()
	if err != nil {
		return "", fmt.Errorf("load pseudonyms: %w", err)
	}
	if len(mapping) == 0 {
		return "", fmt.Errorf("%w: %s", entity.ErrSessionNotFound, sessionID)
	}
	return ReplaceLongestFirst(text, mapping), nil
}

// ReplaceLongestFirst substitutes keys of mapping in text, trying longer
// keys first so a key that prefixes another never wins.
func ReplaceLongestFirst(text string, mapping map[string]string) string {
	keys := make([]string, 0, len(mapping))
	for k := range mapping {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})
	pairs := make([]string, 0, len(keys)*2)
	for _, k := range keys {
		pairs = append(pairs, k, mapping[k])
	}
	return strings.NewReplacer(pairs...).Replace(text)
}
