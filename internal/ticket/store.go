package ticket

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/xXKillerNoobYT/copilot-orchestration-extension-sub014/pkg/models"
)

// ErrNotFound indicates the ticket does not exist.
var ErrNotFound = errors.New("ticket not found")

// VersionConflictError reports a stale write: the version the writer
// presented no longer matches the stored row.
type VersionConflictError struct {
	TicketID        string
	ExpectedVersion int64
	ActualVersion   int64
}

func (e *VersionConflictError) Error() string {
	return fmt.Sprintf("ticket %s: version conflict (have %d, stored %d)",
		e.TicketID, e.ExpectedVersion, e.ActualVersion)
}

// Create inserts a new ticket. A missing ID gets a generated UUID, a
// missing status defaults to open, and the version starts at 1.
func (db *DB) Create(t *models.Ticket) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Status == "" {
		t.Status = models.TicketOpen
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	t.UpdatedAt = t.CreatedAt
	t.Version = 1

	_, err := db.Exec(`
		INSERT INTO tickets (id, title, description, status, assignee, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, t.ID, t.Title, t.Description, string(t.Status), t.Assignee, t.Version,
		formatTime(t.CreatedAt), formatTime(t.UpdatedAt))
	if err != nil {
		return fmt.Errorf("create ticket: %w", err)
	}
	return nil
}

// Get retrieves a ticket by ID.
func (db *DB) Get(id string) (*models.Ticket, error) {
	row := db.QueryRow(`
		SELECT id, title, description, status, assignee, version, created_at, updated_at
		FROM tickets WHERE id = ?
	`, id)

	t, err := scanTicket(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("ticket %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get ticket: %w", err)
	}
	return t, nil
}

// List lists all tickets, optionally filtered by status.
func (db *DB) List(status *models.TicketStatus) ([]models.Ticket, error) {
	var rows *sql.Rows
	var err error

	if status != nil {
		rows, err = db.Query(`
			SELECT id, title, description, status, assignee, version, created_at, updated_at
			FROM tickets WHERE status = ? ORDER BY created_at
		`, string(*status))
	} else {
		rows, err = db.Query(`
			SELECT id, title, description, status, assignee, version, created_at, updated_at
			FROM tickets ORDER BY created_at
		`)
	}
	if err != nil {
		return nil, fmt.Errorf("list tickets: %w", err)
	}
	defer rows.Close()

	var tickets []models.Ticket
	for rows.Next() {
		t, err := scanTicket(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan ticket: %w", err)
		}
		tickets = append(tickets, *t)
	}
	return tickets, rows.Err()
}

// Delete deletes a ticket by ID.
func (db *DB) Delete(id string) error {
	result, err := db.Exec("DELETE FROM tickets WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete ticket: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("ticket %s: %w", id, ErrNotFound)
	}
	return nil
}

// UpdateWithVersion applies the ticket's mutable fields only if the
// stored version still equals expectedVersion. On success the stored
// version increments and the passed ticket is refreshed to match. On a
// stale write it returns a *VersionConflictError carrying the stored
// version, so the caller can re-read and resolve.
func (db *DB) UpdateWithVersion(t *models.Ticket, expectedVersion int64) error {
	now := time.Now().UTC()
	result, err := db.Exec(`
		UPDATE tickets SET title = ?, description = ?, status = ?, assignee = ?,
			version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?
	`, t.Title, t.Description, string(t.Status), t.Assignee, formatTime(now), t.ID, expectedVersion)
	if err != nil {
		return fmt.Errorf("update ticket: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if n == 0 {
		var actual int64
		row := db.QueryRow("SELECT version FROM tickets WHERE id = ?", t.ID)
		if scanErr := row.Scan(&actual); scanErr != nil {
			if errors.Is(scanErr, sql.ErrNoRows) {
				return fmt.Errorf("ticket %s: %w", t.ID, ErrNotFound)
			}
			return fmt.Errorf("read stored version: %w", scanErr)
		}
		return &VersionConflictError{
			TicketID:        t.ID,
			ExpectedVersion: expectedVersion,
			ActualVersion:   actual,
		}
	}

	t.Version = expectedVersion + 1
	t.UpdatedAt = now
	return nil
}

// scanTicket scans one ticket row via the given Scan function.
func scanTicket(scan func(dest ...any) error) (*models.Ticket, error) {
	var t models.Ticket
	var description, assignee sql.NullString
	var createdAt, updatedAt string
	if err := scan(&t.ID, &t.Title, &description, &t.Status, &assignee,
		&t.Version, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	if description.Valid {
		t.Description = description.String
	}
	if assignee.Valid {
		t.Assignee = assignee.String
	}
	var err error
	if t.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if t.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return &t, nil
}
