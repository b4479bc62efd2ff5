package storage

import (
	"context"
	"database/sql"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"homepulse/internal/model"
)

type sqliteStore struct {
	baseStore
}

func NewSQLite(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "file:homepulse.db?_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	return &sqliteStore{baseStore{db: db}}, nil
}

func (s *sqliteStore) Init(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS alerts (
			id TEXT PRIMARY KEY,
			ts TEXT NOT NULL,
			device_id TEXT NOT NULL,
			metric TEXT NOT NULL,
			category TEXT NOT NULL,
			severity TEXT NOT NULL,
			status TEXT NOT NULL,
			title TEXT NOT NULL,
			message TEXT NOT NULL,
			value REAL,
			threshold REAL,
			unit TEXT,
			confidence INTEGER,
			group_id TEXT,
			notifiable INTEGER NOT NULL DEFAULT 0,
			channels_json TEXT,
			acknowledged_ts TEXT,
			resolved_ts TEXT
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
			first_ts TEXT NOT NULL,
			last_ts TEXT NOT NULL,
			snoozed INTEGER NOT NULL DEFAULT 0,
			snooze_until TEXT,
			members_json TEXT NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *sqliteStore) SaveAlert(ctx context.Context, alert model.Alert) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO alerts (id, ts, device_id, metric, category, severity, status, title, message,
			value, threshold, unit, confidence, group_id, notifiable, channels_json, acknowledged_ts, resolved_ts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET status = excluded.status, group_id = excluded.group_id,
			acknowledged_ts = excluded.acknowledged_ts, resolved_ts = excluded.resolved_ts`,
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

func (s *sqliteStore) UpdateAlertStatus(ctx context.Context, id string, status model.Status, ts time.Time) error {
	if s.db == nil {
		return nil
	}
	col := ""
	switch status {
	case model.StatusAcknowledged:
		col = ", acknowledged_ts = ?"
	case model.StatusResolved:
		col = ", resolved_ts = ?"
	}
	args := []any{string(status)}
	if col != "" {
		args = append(args, ts.UTC())
	}
	args = append(args, id)
	_, err := s.db.ExecContext(ctx, `UPDATE alerts SET status = ?`+col+` WHERE id = ?`, args...)
	return err
}

func (s *sqliteStore) SaveGroup(ctx context.Context, group model.AlertGroup) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO alert_groups (id, title, device_id, category, severity, count, first_ts, last_ts, snoozed, snooze_until, members_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET severity = excluded.severity, count = excluded.count,
			last_ts = excluded.last_ts, snoozed = excluded.snoozed,
			snooze_until = excluded.snooze_until, members_json = excluded.members_json`,
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
