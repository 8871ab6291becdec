// Package storage is the persistence gateway: the durable source of
// truth for events, blocks, alerts and user profiles across restarts.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"strings"
	"time"

	"authwatch/internal/config"
	"authwatch/internal/model"
)

type Store interface {
	Init(ctx context.Context) error
	Close() error

	// RecordEvent is append-only, one row per parsed login event.
	RecordEvent(ctx context.Context, ev model.Event, country string) error
	// RecordBlock is idempotent on ip: repeats are no-ops.
	RecordBlock(ctx context.Context, ip, user, country string, at time.Time) error
	RecordAlert(ctx context.Context, alert model.Alert) error
	IsIPAlerted(ctx context.Context, ip string) (bool, error)
	AllBlockedIPs(ctx context.Context) (map[string]struct{}, error)

	GetOrCreateUserProfile(ctx context.Context, user string) (model.UserProfile, error)
	AddUserProfileCountry(ctx context.Context, user, country string) error
	BumpLoginCounters(ctx context.Context, user string, success bool) error
}

func NewStore(cfg config.StorageConfig) (Store, error) {
	switch strings.ToLower(cfg.Driver) {
	case "sqlite":
		return NewSQLite(cfg.DSN)
	case "postgres", "postgresql":
		return NewPostgres(cfg.DSN)
	default:
		return nil, errors.New("unsupported storage driver")
	}
}

type baseStore struct {
	db *sql.DB
}

func (b *baseStore) Close() error {
	if b.db != nil {
		return b.db.Close()
	}
	return nil
}

// Known-country sets are stored as a sorted comma-joined list.
func encodeCountries(countries []string) string {
	dedup := make(map[string]struct{}, len(countries))
	for _, c := range countries {
		if c != "" {
			dedup[c] = struct{}{}
		}
	}
	out := make([]string, 0, len(dedup))
	for c := range dedup {
		out = append(out, c)
	}
	sort.Strings(out)
	return strings.Join(out, ",")
}

func decodeCountries(encoded string) []string {
	if strings.TrimSpace(encoded) == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(encoded, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
