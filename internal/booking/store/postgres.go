// internal/booking/store/postgres.go
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"booking-workers/internal/common/errors"
	"booking-workers/internal/models"
)

// PostgresStore implements Store on database/sql. The per-session critical
// section is a serializable transaction that locks the session row with
// SELECT ... FOR UPDATE, so reserve, release and promotion for one session
// serialize while other sessions proceed unblocked.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) CreateSession(ctx context.Context, s *models.Session) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO sessions (id, title, host_phone, capacity, status, starts_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		s.ID, s.Title, s.HostPhone, s.Capacity, s.Status, s.StartsAt, s.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (p *PostgresStore) GetSession(ctx context.Context, id string) (*models.Session, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT id, title, host_phone, capacity, status, starts_at, created_at
		 FROM sessions WHERE id = $1`, id)
	return scanSession(row)
}

func (p *PostgresStore) Atomic(ctx context.Context, sessionID string, fn func(tx SessionTx) error) error {
	tx, err := p.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx,
		`SELECT id, title, host_phone, capacity, status, starts_at, created_at
		 FROM sessions WHERE id = $1 FOR UPDATE`, sessionID)
	sess, err := scanSession(row)
	if err != nil {
		return err
	}

	ptx := &pgTx{ctx: ctx, tx: tx, session: sess}
	if err := fn(ptx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (p *PostgresStore) PendingEvents(ctx context.Context, limit int) ([]*models.NotificationEvent, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT id, type, session_id, enrollment_id, recipient, payload, delivery_status, attempts, published_at, created_at
		 FROM notification_events
		 WHERE published_at IS NULL
		 ORDER BY seq ASC
		 LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("select pending events: %w", err)
	}
	defer rows.Close()

	var events []*models.NotificationEvent
	for rows.Next() {
		evt, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, evt)
	}
	return events, rows.Err()
}

func (p *PostgresStore) MarkPublished(ctx context.Context, eventID string, at time.Time) error {
	_, err := p.db.ExecContext(ctx,
		`UPDATE notification_events SET published_at = $2 WHERE id = $1`, eventID, at)
	if err != nil {
		return fmt.Errorf("mark published: %w", err)
	}
	return nil
}

func (p *PostgresStore) Event(ctx context.Context, id string) (*models.NotificationEvent, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT id, type, session_id, enrollment_id, recipient, payload, delivery_status, attempts, published_at, created_at
		 FROM notification_events WHERE id = $1`, id)
	return scanEvent(row)
}

func (p *PostgresStore) UpdateEventDelivery(ctx context.Context, eventID string, status models.DeliveryStatus, attempts int) error {
	_, err := p.db.ExecContext(ctx,
		`UPDATE notification_events SET delivery_status = $2, attempts = $3 WHERE id = $1`,
		eventID, status, attempts)
	if err != nil {
		return fmt.Errorf("update event delivery: %w", err)
	}
	return nil
}

func (p *PostgresStore) DueSessions(ctx context.Context, now time.Time, limit int) ([]string, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT id FROM sessions
		 WHERE status IN ('open', 'full') AND starts_at <= $1
		 ORDER BY starts_at ASC
		 LIMIT $2`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("select due sessions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// pgTx implements SessionTx over an open serializable transaction holding
// the session row lock.
type pgTx struct {
	ctx     context.Context
	tx      *sql.Tx
	session *models.Session
}

func (t *pgTx) Session() *models.Session { return t.session }

func (t *pgTx) UpdateSession(s *models.Session) error {
	_, err := t.tx.ExecContext(t.ctx,
		`UPDATE sessions SET title = $2, host_phone = $3, capacity = $4, status = $5, starts_at = $6
		 WHERE id = $1`,
		s.ID, s.Title, s.HostPhone, s.Capacity, s.Status, s.StartsAt)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	t.session = s
	return nil
}

func (t *pgTx) ConfirmedCount() (int, error) {
	var count int
	err := t.tx.QueryRowContext(t.ctx,
		`SELECT COUNT(*) FROM enrollments WHERE session_id = $1 AND status = 'confirmed'`,
		t.session.ID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("confirmed count: %w", err)
	}
	return count, nil
}

func (t *pgTx) ActiveEnrollmentFor(participantID string) (*models.Enrollment, error) {
	row := t.tx.QueryRowContext(t.ctx,
		enrollmentColumns+` WHERE session_id = $1 AND participant_id = $2 AND status IN ('confirmed', 'waitlisted')`,
		t.session.ID, participantID)
	e, err := scanEnrollment(row)
	if err != nil {
		if errors.HasCode(err, errors.ErrCodeEnrollmentNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return e, nil
}

func (t *pgTx) Enrollment(id string) (*models.Enrollment, error) {
	row := t.tx.QueryRowContext(t.ctx, enrollmentColumns+` WHERE id = $1`, id)
	return scanEnrollment(row)
}

func (t *pgTx) InsertEnrollment(e *models.Enrollment) error {
	_, err := t.tx.ExecContext(t.ctx,
		`INSERT INTO enrollments (id, session_id, participant_id, participant_name, status, waitlist_pos, created_at, cancelled_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.ID, e.SessionID, e.ParticipantID, e.ParticipantName, e.Status, e.WaitlistPos, e.CreatedAt, e.CancelledAt)
	if err != nil {
		return fmt.Errorf("insert enrollment: %w", err)
	}
	return nil
}

func (t *pgTx) UpdateEnrollment(e *models.Enrollment) error {
	_, err := t.tx.ExecContext(t.ctx,
		`UPDATE enrollments SET status = $2, waitlist_pos = $3, cancelled_at = $4 WHERE id = $1`,
		e.ID, e.Status, e.WaitlistPos, e.CancelledAt)
	if err != nil {
		return fmt.Errorf("update enrollment: %w", err)
	}
	return nil
}

func (t *pgTx) ActiveEnrollments() ([]*models.Enrollment, error) {
	rows, err := t.tx.QueryContext(t.ctx,
		enrollmentColumns+` WHERE session_id = $1 AND status IN ('confirmed', 'waitlisted') ORDER BY created_at ASC`,
		t.session.ID)
	if err != nil {
		return nil, fmt.Errorf("select active enrollments: %w", err)
	}
	defer rows.Close()
	return scanEnrollments(rows)
}

func (t *pgTx) MaxWaitlistPos() (int, error) {
	var max int
	err := t.tx.QueryRowContext(t.ctx,
		`SELECT COALESCE(MAX(waitlist_pos), 0) FROM enrollments WHERE session_id = $1 AND status = 'waitlisted'`,
		t.session.ID).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("max waitlist pos: %w", err)
	}
	return max, nil
}

func (t *pgTx) WaitlistHead() (*models.Enrollment, error) {
	row := t.tx.QueryRowContext(t.ctx,
		enrollmentColumns+` WHERE session_id = $1 AND status = 'waitlisted' ORDER BY waitlist_pos ASC LIMIT 1`,
		t.session.ID)
	e, err := scanEnrollment(row)
	if err != nil {
		if errors.HasCode(err, errors.ErrCodeEnrollmentNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return e, nil
}

func (t *pgTx) Waitlist() ([]*models.Enrollment, error) {
	rows, err := t.tx.QueryContext(t.ctx,
		enrollmentColumns+` WHERE session_id = $1 AND status = 'waitlisted' ORDER BY waitlist_pos ASC`,
		t.session.ID)
	if err != nil {
		return nil, fmt.Errorf("select waitlist: %w", err)
	}
	defer rows.Close()
	return scanEnrollments(rows)
}

func (t *pgTx) ShiftWaitlistAfter(pos int) error {
	_, err := t.tx.ExecContext(t.ctx,
		`UPDATE enrollments SET waitlist_pos = waitlist_pos - 1
		 WHERE session_id = $1 AND status = 'waitlisted' AND waitlist_pos > $2`,
		t.session.ID, pos)
	if err != nil {
		return fmt.Errorf("shift waitlist: %w", err)
	}
	return nil
}

func (t *pgTx) AppendEvent(evt *models.NotificationEvent) error {
	payload, err := json.Marshal(evt.Payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = t.tx.ExecContext(t.ctx,
		`INSERT INTO notification_events (id, type, session_id, enrollment_id, recipient, payload, delivery_status, attempts, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		evt.ID, evt.Type, evt.SessionID, evt.EnrollmentID, evt.Recipient, payload, evt.DeliveryStatus, evt.Attempts, evt.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

const enrollmentColumns = `SELECT id, session_id, participant_id, participant_name, status, waitlist_pos, created_at, cancelled_at FROM enrollments`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row *sql.Row) (*models.Session, error) {
	var s models.Session
	err := row.Scan(&s.ID, &s.Title, &s.HostPhone, &s.Capacity, &s.Status, &s.StartsAt, &s.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, errors.NewSessionNotFoundError("")
	}
	if err != nil {
		return nil, fmt.Errorf("scan session: %w", err)
	}
	return &s, nil
}

func scanEnrollment(row rowScanner) (*models.Enrollment, error) {
	var e models.Enrollment
	var cancelledAt sql.NullTime
	err := row.Scan(&e.ID, &e.SessionID, &e.ParticipantID, &e.ParticipantName, &e.Status, &e.WaitlistPos, &e.CreatedAt, &cancelledAt)
	if err == sql.ErrNoRows {
		return nil, errors.NewEnrollmentNotFoundError("")
	}
	if err != nil {
		return nil, fmt.Errorf("scan enrollment: %w", err)
	}
	if cancelledAt.Valid {
		e.CancelledAt = &cancelledAt.Time
	}
	return &e, nil
}

func scanEnrollments(rows *sql.Rows) ([]*models.Enrollment, error) {
	var out []*models.Enrollment
	for rows.Next() {
		e, err := scanEnrollment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanEvent(row rowScanner) (*models.NotificationEvent, error) {
	var evt models.NotificationEvent
	var payload []byte
	var publishedAt sql.NullTime
	err := row.Scan(&evt.ID, &evt.Type, &evt.SessionID, &evt.EnrollmentID, &evt.Recipient, &payload, &evt.DeliveryStatus, &evt.Attempts, &publishedAt, &evt.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, errors.NewEnrollmentNotFoundError("")
	}
	if err != nil {
		return nil, fmt.Errorf("scan event: %w", err)
	}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &evt.Payload); err != nil {
			return nil, fmt.Errorf("unmarshal event payload: %w", err)
		}
	}
	if publishedAt.Valid {
		evt.PublishedAt = &publishedAt.Time
	}
	return &evt, nil
}
