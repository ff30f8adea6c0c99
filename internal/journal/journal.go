// Package journal records device and volume lifecycle events in SQLite so
// operators can see what was mounted where, and when.
//
// The journal is history only; the automounter never reads it back.
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Kind names a lifecycle event.
type Kind string

// Event kinds, one per notification.
const (
	DeviceAdded    Kind = "device_added"
	DeviceRemoving Kind = "device_removing"
	DeviceRemoved  Kind = "device_removed"
	VolumeAdded    Kind = "volume_added"
)

// List page sizes.
const (
	DefaultLimit = 50
	MaxLimit     = 200
)

// timeFormat has fixed width so created_at sorts as text.
const timeFormat = "2006-01-02T15:04:05.000000Z"

// Event is a single journal entry.
type Event struct {
	ID         string         `json:"id"`
	Kind       Kind           `json:"event"`
	DeviceID   int            `json:"device_id"`
	Devlink    string         `json:"devlink"`
	Volume     *int           `json:"volume_index,omitempty"`
	VolumeUUID string         `json:"volume_uuid,omitempty"`
	Label      string         `json:"label,omitempty"`
	Mountpoint string         `json:"mountpoint,omitempty"`
	Detail     map[string]any `json:"detail,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Filter selects journal entries. Zero values match everything.
type Filter struct {
	Kind     Kind
	DeviceID int // device IDs start at 1
	Since    time.Time
	Limit    int // default 50, max 200
	Offset   int
}

// ListResult is a page of entries, most recent first.
type ListResult struct {
	Events []Event `json:"events"`
	Total  int     `json:"total"`
	Limit  int     `json:"limit"`
	Offset int     `json:"offset"`
}

// Repository is the journal store.
type Repository interface {
	Append(ctx context.Context, e *Event) error
	List(ctx context.Context, filter Filter) (*ListResult, error)
}

// SQLiteRepository stores the journal in the mount_events table.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a repository over an open, migrated database.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Append inserts e, generating its ID and timestamp when empty.
func (r *SQLiteRepository) Append(ctx context.Context, e *Event) error {
	if e.Kind == "" {
		return errors.New("journal: event kind is required")
	}
	if e.ID == "" {
		e.ID = "evt-" + uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	e.CreatedAt = e.CreatedAt.UTC()

	var detail *string
	if len(e.Detail) > 0 {
		b, err := json.Marshal(e.Detail)
		if err != nil {
			return fmt.Errorf("marshalling journal detail: %w", err)
		}
		s := string(b)
		detail = &s
	}

	var volume any
	if e.Volume != nil {
		volume = *e.Volume
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO mount_events
		   (id, event, device_id, devlink, volume_index, volume_uuid, label, mountpoint, detail, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, string(e.Kind), e.DeviceID, e.Devlink, volume,
		nullableString(e.VolumeUUID), nullableString(e.Label), nullableString(e.Mountpoint),
		detail, e.CreatedAt.Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("inserting journal event: %w", err)
	}
	return nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// List returns entries matching filter, most recent first.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) (*ListResult, error) {
	filter = clamp(filter)

	var conditions []string
	var args []any
	if filter.Kind != "" {
		conditions = append(conditions, "event = ?")
		args = append(args, string(filter.Kind))
	}
	if filter.DeviceID > 0 {
		conditions = append(conditions, "device_id = ?")
		args = append(args, filter.DeviceID)
	}
	if !filter.Since.IsZero() {
		conditions = append(conditions, "created_at >= ?")
		args = append(args, filter.Since.UTC().Format(timeFormat))
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM mount_events " + where //nolint:gosec // conditions are placeholders
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting journal events: %w", err)
	}

	query := `SELECT id, event, device_id, devlink, volume_index, volume_uuid, label, mountpoint, detail, created_at
		FROM mount_events ` + where + ` ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?` //nolint:gosec // conditions are placeholders
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying journal events: %w", err)
	}
	defer rows.Close()

	events := []Event{}
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating journal events: %w", err)
	}

	return &ListResult{
		Events: events,
		Total:  total,
		Limit:  filter.Limit,
		Offset: filter.Offset,
	}, nil
}

func clamp(f Filter) Filter {
	if f.Limit <= 0 {
		f.Limit = DefaultLimit
	}
	if f.Limit > MaxLimit {
		f.Limit = MaxLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

func scanEvent(rows *sql.Rows) (Event, error) {
	var (
		e                               Event
		kind, createdAt                 string
		volume                          sql.NullInt64
		volumeUUID, label, mp, detailJS sql.NullString
	)
	if err := rows.Scan(&e.ID, &kind, &e.DeviceID, &e.Devlink, &volume,
		&volumeUUID, &label, &mp, &detailJS, &createdAt); err != nil {
		return Event{}, fmt.Errorf("scanning journal event: %w", err)
	}

	e.Kind = Kind(kind)
	if volume.Valid {
		v := int(volume.Int64)
		e.Volume = &v
	}
	e.VolumeUUID = volumeUUID.String
	e.Label = label.String
	e.Mountpoint = mp.String
	if detailJS.Valid && detailJS.String != "" {
		var detail map[string]any
		if json.Unmarshal([]byte(detailJS.String), &detail) == nil {
			e.Detail = detail
		}
	}

	t, err := time.Parse(timeFormat, createdAt)
	if err != nil {
		return Event{}, fmt.Errorf("parsing journal timestamp %q: %w", createdAt, err)
	}
	e.CreatedAt = t
	return e, nil
}
