// Package history persists finished scan reports.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kailas-cloud/lensmatch/internal/domain"
	"github.com/kailas-cloud/lensmatch/internal/domain/scan"
)

// DefaultListLimit caps List when no limit is given.
const DefaultListLimit = 20

// MaxListLimit is the upper bound accepted by List.
const MaxListLimit = 100

// Repo stores reports as JSON rows keyed by run ID.
type Repo struct {
	conn *sql.DB
}

// New creates a history repository on an open connection with the scans schema.
func New(conn *sql.DB) *Repo {
	return &Repo{conn: conn}
}

// Save inserts or replaces a report. Crop images are not persisted.
func (r *Repo) Save(ctx context.Context, rep *scan.Report) error {
	stored := rep.WithoutCrops()
	data, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}

	query := `
		INSERT OR REPLACE INTO scans (id, state, region_count, started_at, finished_at, report_json)
		VALUES (?, ?, ?, ?, ?, ?)`
	_, err = r.conn.ExecContext(ctx, query,
		stored.ID,
		string(stored.State),
		len(stored.Regions),
		stored.StartedAt.UnixMilli(),
		stored.FinishedAt.UnixMilli(),
		string(data),
	)
	if err != nil {
		return fmt.Errorf("insert scan %s: %w", stored.ID, err)
	}
	return nil
}

// Get returns one report or domain.ErrNotFound.
func (r *Repo) Get(ctx context.Context, id string) (*scan.Report, error) {
	var data string
	err := r.conn.QueryRowContext(ctx, `SELECT report_json FROM scans WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get scan %s: %w", id, err)
	}
	return decode(data)
}

// List returns up to limit reports, newest first.
func (r *Repo) List(ctx context.Context, limit int) ([]*scan.Report, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}

	rows, err := r.conn.QueryContext(ctx,
		`SELECT report_json FROM scans ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list scans: %w", err)
	}
	defer func() { _ = rows.Close() }()

	reports := make([]*scan.Report, 0, limit)
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		rep, err := decode(data)
		if err != nil {
			return nil, err
		}
		reports = append(reports, rep)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate scans: %w", err)
	}
	return reports, nil
}

// DeleteOlderThan removes reports started before cutoff and returns how many were removed.
func (r *Repo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.conn.ExecContext(ctx, `DELETE FROM scans WHERE started_at < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("prune scans: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune scans: %w", err)
	}
	return n, nil
}

func decode(data string) (*scan.Report, error) {
	var rep scan.Report
	if err := json.Unmarshal([]byte(data), &rep); err != nil {
		return nil, fmt.Errorf("decode report: %w", err)
	}
	return &rep, nil
}
