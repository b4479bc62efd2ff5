package storage

import (
	"context"
	"database/sql"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"homepulse/internal/model"
)

type postgresStore struct {
	baseStore
}

func NewPostgres(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "postgres://localhost:5432/homepulse?sslmode=disable"
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	return &postgresStore{baseStore{db: db}}, nil
}

func (s *postgresStore) Init(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS alerts (
			id TEXT PRIMARY KEY,
			ts TIMESTAMPTZ NOT NULL,
			device_id TEXT NOT NULL,
			metric TEXT NOT NULL,
			category TEXT NOT NULL,
			severity TEXT NOT NULL,
			status TEXT NOT NULL,
			title TEXT NOT NULL,
			message TEXT NOT NULL,
			value DOUBLE PRECISION,
			threshold DOUBLE PRECISION,
			unit TEXT,
			confidence INTEGER,
			group_id TEXT,
			notifiable BOOLEAN NOT NULL DEFAULT FALSE,
			channels_json JSONB,
			acknowledged_ts TIMESTAMPTZ,
			resolved_ts TIMESTAMPTZ
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_ts ON alerts(ts)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_device ON alerts(device_id, metric)`,
		`CREATE TABLE IF NOT EXISTS alert_groups (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			device_id TEXT NOT NULL,
			category TEXT NOT NULL,
			severity TEXT NOT NULL,
			count INTEGER NOT NULL,
			first_ts TIMESTAMPTZ NOT NULL,
			last_ts TIMESTAMPTZ NOT NULL,
			snoozed BOOLEAN NOT NULL DEFAULT FALSE,
			snooze_until TIMESTAMPTZ,
			members_json JSONB NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *postgresStore) SaveAlert(ctx context.Context, alert model.Alert) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO alerts (id, ts, device_id, metric, category, severity, status, title, message,
			value, threshold, unit, confidence, group_id, notifiable, channels_json, acknowledged_ts, resolved_ts)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status, group_id = EXCLUDED.group_id,
			acknowledged_ts = EXCLUDED.acknowledged_ts, resolved_ts = EXCLUDED.resolved_ts`,
		alert.ID,
		alert.Timestamp.UTC(),
		alert.DeviceID,
		alert.Metric,
		string(alert.Category),
		string(alert.Severity),
		string(alert.Status),
		alert.Title,
		alert.Message,
		alert.Value,
		alert.Threshold,
		alert.Unit,
		alert.Confidence,
		alert.GroupID,
		alert.Notifiable,
		encodeJSON(alert.NotifyChannels),
		timePtr(alert.AcknowledgedAt),
		timePtr(alert.ResolvedAt),
	)
	return err
}

func (s *postgresStore) UpdateAlertStatus(ctx context.Context, id string, status model.Status, ts time.Time) error {
	if s.db == nil {
		return nil
	}
	switch status {
	case model.StatusAcknowledged:
		_, err := s.db.ExecContext(ctx,
			`UPDATE alerts SET status = $1, acknowledged_ts = $2 WHERE id = $3`,
			string(status), ts.UTC(), id)
		return err
	case model.StatusResolved:
		_, err := s.db.ExecContext(ctx,
			`UPDATE alerts SET status = $1, resolved_ts = $2 WHERE id = $3`,
			string(status), ts.UTC(), id)
		return err
	default:
		_, err := s.db.ExecContext(ctx,
			`UPDATE alerts SET status = $1 WHERE id = $2`,
			string(status), id)
		return err
	}
}

func (s *postgresStore) SaveGroup(ctx context.Context, group model.AlertGroup) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO alert_groups (id, title, device_id, category, severity, count, first_ts, last_ts, snoozed, snooze_until, members_json)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET severity = EXCLUDED.severity, count = EXCLUDED.count,
			last_ts = EXCLUDED.last_ts, snoozed = EXCLUDED.snoozed,
			snooze_until = EXCLUDED.snooze_until, members_json = EXCLUDED.members_json`,
		group.ID,
		group.Title,
		group.DeviceID,
		string(group.Category),
		string(group.Severity),
		group.Count,
		group.FirstOccurrence.UTC(),
		group.LastOccurrence.UTC(),
		group.Snoozed,
		timePtr(group.SnoozeUntil),
		encodeJSON(group.MemberIDs),
	)
	return err
}
