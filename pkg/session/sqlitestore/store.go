// Package sqlitestore persists session state in a local SQLite database, one
// row per profile, so several accounts can be kept side by side.
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/portal/pkg/session"
	_ "modernc.org/sqlite"
)

type Store struct {
	db      *sql.DB
	profile string
}

var _ session.Persister = (*Store)(nil)

// Open opens (creating if needed) the database at path, applies migrations
// and returns a persister bound to profile.
func Open(path, profile string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	if profile == "" {
		profile = "default"
	}
	s := &Store{db: db, profile: profile}

	if err := s.ApplyMigrations(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply session migrations: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Load(ctx context.Context) (session.State, error) {
	var (
		st       session.State
		userJSON sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT access_token, refresh_token, user_json, base_url FROM session_state WHERE profile = ?`,
		s.profile,
	).Scan(&st.AccessToken, &st.RefreshToken, &userJSON, &st.BaseURL)
	if errors.Is(err, sql.ErrNoRows) {
		return session.State{}, nil
	}
	if err != nil {
		return session.State{}, err
	}

	if userJSON.Valid && userJSON.String != "" {
		var u session.User
		if err := json.Unmarshal([]byte(userJSON.String), &u); err != nil {
			return session.State{}, fmt.Errorf("decode stored user: %w", err)
		}
		st.User = &u
	}
	return st, nil
}

func (s *Store) Save(ctx context.Context, st session.State) error {
	var userJSON sql.NullString
	if st.User != nil {
		b, err := json.Marshal(st.User)
		if err != nil {
			return err
		}
		userJSON = sql.NullString{String: string(b), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO session_state (profile, access_token, refresh_token, user_json, base_url, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(profile) DO UPDATE SET
			access_token  = excluded.access_token,
			refresh_token = excluded.refresh_token,
			user_json     = excluded.user_json,
			base_url      = excluded.base_url,
			updated_at    = excluded.updated_at`,
		s.profile, st.AccessToken, st.RefreshToken, userJSON, st.BaseURL, time.Now().UTC(),
	)
	return err
}

func (s *Store) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM session_state WHERE profile = ?`, s.profile)
	return err
}

// Profiles lists every profile with stored state.
func (s *Store) Profiles(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT profile FROM session_state ORDER BY profile`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
