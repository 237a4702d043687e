package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/suchimauz/speaker-session-booking/internal/core/domain"
	"github.com/suchimauz/speaker-session-booking/internal/core/ports/out"
	"github.com/suchimauz/speaker-session-booking/internal/utils"
)

// SqliteStore хранилище спикеров и записей. Атомарность записи на дату
// обеспечивается уникальным индексом (speaker_id, session_date).
type SqliteStore struct {
	db     *sql.DB
	logger out.LoggerPort
	now    func() time.Time
}

func NewSqliteStore(db *sql.DB, logger out.LoggerPort) *SqliteStore {
	return &SqliteStore{
		db:     db,
		logger: logger.WithModule("SqliteStore"),
		now:    time.Now,
	}
}

func (s *SqliteStore) UpsertSpeaker(ctx context.Context, speaker domain.Speaker) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO speaker (id, name, specialty, bio, level) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, specialty = excluded.specialty,
			bio = excluded.bio, level = excluded.level`,
		speaker.ID, speaker.Name, string(speaker.Specialty), speaker.Bio, speaker.Level,
	)
	if err != nil {
		s.logger.Error("store.speaker.upsert_failed", out.LogFields{
			"speakerId": speaker.ID,
			"error":     err.Error(),
		})
		return fmt.Errorf("store.speaker.upsert_failed: %w", err)
	}
	return nil
}

func (s *SqliteStore) GetSpeaker(ctx context.Context, speakerID string) (*domain.Speaker, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, name, specialty, bio, level FROM speaker WHERE id = ?", speakerID)

	speaker, err := scanSpeaker(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("store.speaker.get %s: %w", speakerID, domain.ErrSpeakerNotFound)
	}
	if err != nil {
		s.logger.Error("store.speaker.get_failed", out.LogFields{
			"speakerId": speakerID,
			"error":     err.Error(),
		})
		return nil, fmt.Errorf("store.speaker.get_failed: %w", err)
	}

	return &speaker, nil
}

func (s *SqliteStore) SearchSpeakers(ctx context.Context, filter domain.SpeakerFilter) ([]domain.Speaker, error) {
	query := "SELECT id, name, specialty, bio, level FROM speaker WHERE 1 = 1"
	args := make([]interface{}, 0, 2)

	if filter.Name != "" {
		query += " AND name LIKE '%' || ? || '%' COLLATE NOCASE"
		args = append(args, filter.Name)
	}
	if filter.Specialty != "" {
		query += " AND specialty = ?"
		args = append(args, string(filter.Specialty))
	}
	query += " ORDER BY name, id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		s.logger.Error("store.speaker.search_failed", out.LogFields{
			"name":      filter.Name,
			"specialty": filter.Specialty,
			"error":     err.Error(),
		})
		return nil, fmt.Errorf("store.speaker.search_failed: %w", err)
	}
	defer rows.Close()

	speakers := make([]domain.Speaker, 0)
	for rows.Next() {
		speaker, err := scanSpeaker(rows)
		if err != nil {
			return nil, fmt.Errorf("store.speaker.search.scan_failed: %w", err)
		}
		speakers = append(speakers, speaker)
	}

	return speakers, rows.Err()
}

func (s *SqliteStore) CheckAvailability(ctx context.Context, speakerID string, date domain.SessionDate) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM assignment WHERE speaker_id = ? AND session_date = ?",
		speakerID, date.String(),
	).Scan(&count)
	if err != nil {
		s.logger.Error("store.availability.check_failed", out.LogFields{
			"speakerId": speakerID,
			"date":      date.String(),
			"error":     err.Error(),
		})
		return false, fmt.Errorf("store.availability.check_failed: %w", err)
	}

	return count == 0, nil
}

func (s *SqliteStore) CreateAssignment(ctx context.Context, speakerID string, date domain.SessionDate, specialty domain.Specialty) (domain.Assignment, error) {
	assignment := domain.Assignment{
		ID:          uuid.NewString(),
		SpeakerID:   speakerID,
		SessionDate: date,
		Specialty:   specialty,
		CreatedAt:   s.now().UTC(),
	}

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO assignment (id, speaker_id, session_date, specialty, created_at) VALUES (?, ?, ?, ?, ?)",
		assignment.ID, speakerID, date.String(), string(specialty), assignment.CreatedAt.Format(time.RFC3339),
	)
	switch {
	case isUniqueViolation(err):
		s.logger.Warn("store.assignment.conflict", out.LogFields{
			"speakerId": speakerID,
			"date":      date.String(),
		})
		return domain.Assignment{}, fmt.Errorf("store.assignment.create %s/%s: %w", speakerID, date, domain.ErrConflictOnCommit)
	case isForeignKeyViolation(err):
		return domain.Assignment{}, fmt.Errorf("store.assignment.create %s: %w", speakerID, domain.ErrSpeakerNotFound)
	case err != nil:
		s.logger.Error("store.assignment.create_failed", out.LogFields{
			"speakerId": speakerID,
			"date":      date.String(),
			"error":     err.Error(),
		})
		return domain.Assignment{}, fmt.Errorf("store.assignment.create_failed: %w", err)
	}

	s.logger.Info("store.assignment.created", out.LogFields{
		"assignmentId": assignment.ID,
		"speakerId":    speakerID,
		"date":         date.String(),
	})

	return assignment, nil
}

func (s *SqliteStore) GetAvailabilityWindow(ctx context.Context, speakerID string, from domain.SessionDate, daysAhead int) (domain.AvailabilityWindow, error) {
	to := from.AddDays(daysAhead)

	rows, err := s.db.QueryContext(ctx,
		"SELECT session_date FROM assignment WHERE speaker_id = ? AND session_date >= ? AND session_date < ?",
		speakerID, from.String(), to.String(),
	)
	if err != nil {
		s.logger.Error("store.availability.window_failed", out.LogFields{
			"speakerId": speakerID,
			"error":     err.Error(),
		})
		return nil, fmt.Errorf("store.availability.window_failed: %w", err)
	}
	defer rows.Close()

	window := make(domain.AvailabilityWindow, daysAhead)
	for d := from; d.Before(to); d = d.AddDays(1) {
		window[d] = true
	}

	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("store.availability.window.scan_failed: %w", err)
		}
		booked, err := domain.ParseSessionDate(raw)
		if err != nil {
			s.logger.Warn("store.availability.window.bad_date", out.LogFields{
				"speakerId": speakerID,
				"value":     raw,
			})
			continue
		}
		window[booked] = false
	}

	return window, rows.Err()
}

// ListAssignments записи спикера в хронологическом порядке.
func (s *SqliteStore) ListAssignments(ctx context.Context, speakerID string) ([]domain.Assignment, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, speaker_id, session_date, specialty, created_at FROM assignment WHERE speaker_id = ? ORDER BY session_date",
		speakerID,
	)
	if err != nil {
		return nil, fmt.Errorf("store.assignment.list_failed: %w", err)
	}
	defer rows.Close()

	assignments := make([]domain.Assignment, 0)
	for rows.Next() {
		var a domain.Assignment
		var date, specialty, createdAt string
		if err := rows.Scan(&a.ID, &a.SpeakerID, &date, &specialty, &createdAt); err != nil {
			return nil, fmt.Errorf("store.assignment.list.scan_failed: %w", err)
		}
		if a.SessionDate, err = domain.ParseSessionDate(date); err != nil {
			return nil, fmt.Errorf("store.assignment.list.bad_date: %w", err)
		}
		if a.CreatedAt, err = utils.ParseDate(createdAt, time.UTC); err != nil {
			return nil, fmt.Errorf("store.assignment.list.bad_created_at: %w", err)
		}
		a.Specialty = domain.Specialty(specialty)
		assignments = append(assignments, a)
	}

	return assignments, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSpeaker(row rowScanner) (domain.Speaker, error) {
	var speaker domain.Speaker
	var specialty string
	if err := row.Scan(&speaker.ID, &speaker.Name, &specialty, &speaker.Bio, &speaker.Level); err != nil {
		return domain.Speaker{}, err
	}
	speaker.Specialty = domain.Specialty(specialty)
	return speaker, nil
}
