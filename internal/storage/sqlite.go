package storage

import (
	"context"
	"database/sql"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"authwatch/internal/model"
)

type sqliteStore struct {
	baseStore
}

func NewSQLite(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "file:authwatch.db?_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	return &sqliteStore{baseStore{db: db}}, nil
}

func (s *sqliteStore) Init(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS login_attempts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts TEXT NOT NULL,
			ip TEXT NOT NULL,
			user TEXT NOT NULL,
			action TEXT NOT NULL,
			result TEXT NOT NULL,
			country TEXT,
			raw_log TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_login_attempts_ip ON login_attempts(ip)`,
		`CREATE TABLE IF NOT EXISTS blocked_ips (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ip TEXT NOT NULL UNIQUE,
			user TEXT,
			country TEXT,
			block_time TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS alerts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ip TEXT,
			user TEXT,
			country TEXT,
			alert_time TEXT NOT NULL,
			reason TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_ip ON alerts(ip)`,
		`CREATE TABLE IF NOT EXISTS user_profiles (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user TEXT NOT NULL UNIQUE,
			known_countries TEXT NOT NULL DEFAULT '',
			successful_logins INTEGER NOT NULL DEFAULT 0,
			failed_logins INTEGER NOT NULL DEFAULT 0
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *sqliteStore) RecordEvent(ctx context.Context, ev model.Event, country string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO login_attempts (ts, ip, user, action, result, country, raw_log)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ev.Time.UTC().Format(time.RFC3339),
		ev.IP, ev.User, ev.Action, string(ev.Result), country, ev.Raw,
	)
	return err
}

func (s *sqliteStore) RecordBlock(ctx context.Context, ip, user, country string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO blocked_ips (ip, user, country, block_time) VALUES (?, ?, ?, ?)`,
		ip, user, country, at.UTC().Format(time.RFC3339),
	)
	return err
}

func (s *sqliteStore) RecordAlert(ctx context.Context, alert model.Alert) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO alerts (ip, user, country, alert_time, reason) VALUES (?, ?, ?, ?, ?)`,
		alert.IP, alert.User, alert.Country,
		alert.Time.UTC().Format(time.RFC3339),
		string(alert.Reason),
	)
	return err
}

func (s *sqliteStore) IsIPAlerted(ctx context.Context, ip string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM alerts WHERE ip = ? LIMIT 1`, ip).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *sqliteStore) AllBlockedIPs(ctx context.Context) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT ip FROM blocked_ips`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	ips := make(map[string]struct{})
	for rows.Next() {
		var ip string
		if err := rows.Scan(&ip); err != nil {
			return nil, err
		}
		ips[ip] = struct{}{}
	}
	return ips, rows.Err()
}

func (s *sqliteStore) GetOrCreateUserProfile(ctx context.Context, user string) (model.UserProfile, error) {
	if _, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO user_profiles (user, known_countries) VALUES (?, '')`, user); err != nil {
		return model.UserProfile{}, err
	}
	var profile model.UserProfile
	var countries string
	err := s.db.QueryRowContext(ctx,
		`SELECT user, known_countries, successful_logins, failed_logins FROM user_profiles WHERE user = ?`,
		user,
	).Scan(&profile.User, &countries, &profile.SuccessfulLogins, &profile.FailedLogins)
	if err != nil {
		return model.UserProfile{}, err
	}
	profile.KnownCountries = decodeCountries(countries)
	return profile, nil
}

func (s *sqliteStore) AddUserProfileCountry(ctx context.Context, user, country string) error {
	profile, err := s.GetOrCreateUserProfile(ctx, user)
	if err != nil {
		return err
	}
	if profile.KnowsCountry(country) {
		return nil
	}
	encoded := encodeCountries(append(profile.KnownCountries, country))
	_, err = s.db.ExecContext(ctx,
		`UPDATE user_profiles SET known_countries = ? WHERE user = ?`, encoded, user)
	return err
}

func (s *sqliteStore) BumpLoginCounters(ctx context.Context, user string, success bool) error {
	column := "failed_logins"
	if success {
		column = "successful_logins"
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE user_profiles SET `+column+` = `+column+` + 1 WHERE user = ?`, user)
	return err
}
