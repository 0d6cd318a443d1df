package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"
	"github.com/polly-app/polly/internal/apperror"
	"github.com/polly-app/polly/internal/model"
	"github.com/polly-app/polly/internal/repository"
)

// PollRepo implements repository.PollRepository on the shared pool.
type PollRepo struct {
	conn *sql.DB
}

func NewPollRepo(db *DB) *PollRepo {
	return &PollRepo{conn: db.conn}
}

var _ repository.PollRepository = (*PollRepo)(nil)

// Create inserts a poll and its options in one transaction, assigning IDs and
// timestamps. The options slice keeps its order via the position column.
func (r *PollRepo) Create(ctx context.Context, poll *model.Poll) error {
	now := time.Now()
	poll.ID = xid.New().String()
	poll.CreatedAt = now
	poll.UpdatedAt = now

	tx, err := r.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning transaction: %w", err)
	}
	// Rollback is a no-op after Commit — safe to always defer.
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO polls (id, title, description, creator_id, is_public,
		                    allow_multiple_votes, allow_add_options, expires_at,
		                    created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		poll.ID,
		poll.Title,
		poll.Description,
		poll.CreatorID,
		poll.IsPublic,
		poll.AllowMultipleVotes,
		poll.AllowAddOptions,
		nullableTime(poll.ExpiresAt),
		poll.CreatedAt,
		poll.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting poll: %w", err)
	}

	for i := range poll.Options {
		opt := &poll.Options[i]
		opt.ID = xid.New().String()
		opt.PollID = poll.ID
		opt.Position = i

		_, err = tx.ExecContext(ctx,
			`INSERT INTO poll_options (id, poll_id, text, votes, position)
			 VALUES (?, ?, ?, 0, ?)`,
			opt.ID, opt.PollID, opt.Text, opt.Position,
		)
		if err != nil {
			return fmt.Errorf("sqlite: inserting option %q: %w", opt.Text, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing poll create: %w", err)
	}

	poll.RecountTotal()
	return nil
}

// GetByID loads a poll with its options and derived total.
func (r *PollRepo) GetByID(ctx context.Context, id string) (*model.Poll, error) {
	var (
		p         model.Poll
		expiresAt sql.NullTime
	)

	err := r.conn.QueryRowContext(ctx,
		`SELECT id, title, description, creator_id, is_public,
		        allow_multiple_votes, allow_add_options, expires_at,
		        created_at, updated_at
		 FROM polls WHERE id = ?`,
		id,
	).Scan(
		&p.ID,
		&p.Title,
		&p.Description,
		&p.CreatorID,
		&p.IsPublic,
		&p.AllowMultipleVotes,
		&p.AllowAddOptions,
		&expiresAt,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("poll", id)
		}
		return nil, fmt.Errorf("sqlite: getting poll %s: %w", id, err)
	}

	if expiresAt.Valid {
		t := expiresAt.Time
		p.ExpiresAt = &t
	}

	if err := r.loadOptions(ctx, &p); err != nil {
		return nil, err
	}

	return &p, nil
}

func (r *PollRepo) loadOptions(ctx context.Context, p *model.Poll) error {
	rows, err := r.conn.QueryContext(ctx,
		`SELECT id, poll_id, text, votes, position
		 FROM poll_options WHERE poll_id = ?
		 ORDER BY position`,
		p.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: loading options for poll %s: %w", p.ID, err)
	}
	defer rows.Close()

	p.Options = p.Options[:0]
	for rows.Next() {
		var o model.Option
		if err := rows.Scan(&o.ID, &o.PollID, &o.Text, &o.Votes, &o.Position); err != nil {
			return fmt.Errorf("sqlite: scanning option row: %w", err)
		}
		p.Options = append(p.Options, o)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("sqlite: iterating options: %w", err)
	}

	p.RecountTotal()
	return nil
}

// List returns one page of polls matching opts plus the total match count.
//
// The WHERE clause is assembled from the option fields; every value goes
// through a ? placeholder, never string concatenation.
func (r *PollRepo) List(ctx context.Context, opts repository.PollListOptions) ([]model.Poll, int, error) {
	var (
		where []string
		args  []any
	)

	switch {
	case opts.CreatorID != "":
		where = append(where, `p.creator_id = ?`)
		args = append(args, opts.CreatorID)
	case opts.ViewerID != "":
		where = append(where, `(p.is_public = 1 OR p.creator_id = ?)`)
		args = append(args, opts.ViewerID)
	default:
		where = append(where, `p.is_public = 1`)
	}

	if opts.VoterID != "" {
		where = append(where, `p.id IN (SELECT DISTINCT poll_id FROM votes WHERE user_id = ?)`)
		args = append(args, opts.VoterID)
	}

	if opts.Search != "" {
		pattern := "%" + escapeLike(opts.Search) + "%"
		where = append(where, `(p.title LIKE ? ESCAPE '\' OR p.description LIKE ? ESCAPE '\')`)
		args = append(args, pattern, pattern)
	}

	whereSQL := "WHERE " + strings.Join(where, " AND ")

	var total int
	err := r.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM polls p `+whereSQL, args...,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("sqlite: counting polls: %w", err)
	}

	orderSQL := orderClause(opts.SortBy, opts.Ascending)

	query := `SELECT p.id, p.title, p.description, p.creator_id, p.is_public,
	                 p.allow_multiple_votes, p.allow_add_options, p.expires_at,
	                 p.created_at, p.updated_at
	          FROM polls p ` + whereSQL + orderSQL + ` LIMIT ? OFFSET ?`

	rows, err := r.conn.QueryContext(ctx, query, append(args, opts.Limit, opts.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("sqlite: listing polls: %w", err)
	}
	defer rows.Close()

	polls := make([]model.Poll, 0, opts.Limit)
	for rows.Next() {
		var (
			p         model.Poll
			expiresAt sql.NullTime
		)
		if err := rows.Scan(
			&p.ID, &p.Title, &p.Description, &p.CreatorID, &p.IsPublic,
			&p.AllowMultipleVotes, &p.AllowAddOptions, &expiresAt,
			&p.CreatedAt, &p.UpdatedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("sqlite: scanning poll row: %w", err)
		}
		if expiresAt.Valid {
			t := expiresAt.Time
			p.ExpiresAt = &t
		}
		polls = append(polls, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("sqlite: iterating polls: %w", err)
	}

	for i := range polls {
		if err := r.loadOptions(ctx, &polls[i]); err != nil {
			return nil, 0, err
		}
	}

	return polls, total, nil
}

// orderClause maps a sort selection to SQL. The votes ordering uses a scalar
// subquery over the option counters so it always reflects the live totals.
func orderClause(sortBy repository.PollSort, ascending bool) string {
	dir := " DESC"
	if ascending {
		dir = " ASC"
	}
	switch sortBy {
	case repository.SortVotes:
		return ` ORDER BY (SELECT COALESCE(SUM(o.votes), 0) FROM poll_options o WHERE o.poll_id = p.id)` + dir
	case repository.SortTitle:
		return ` ORDER BY p.title COLLATE NOCASE` + dir
	default:
		return ` ORDER BY p.created_at` + dir
	}
}

// escapeLike escapes LIKE wildcards in user-supplied search text.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}

// Update rewrites the poll row and reconciles the option set.
//
// Options in poll.Options that carry an ID are kept: their text and position
// are updated and their vote counters untouched. Options with an empty ID are
// inserted fresh at zero votes. Stored options missing from poll.Options are
// deleted — the ON DELETE CASCADE on votes removes their vote records with
// them, so no orphaned votes survive an option swap.
func (r *PollRepo) Update(ctx context.Context, poll *model.Poll) error {
	poll.UpdatedAt = time.Now()

	tx, err := r.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`UPDATE polls
		 SET title = ?, description = ?, is_public = ?, allow_multiple_votes = ?,
		     allow_add_options = ?, expires_at = ?, updated_at = ?
		 WHERE id = ?`,
		poll.Title,
		poll.Description,
		poll.IsPublic,
		poll.AllowMultipleVotes,
		poll.AllowAddOptions,
		nullableTime(poll.ExpiresAt),
		poll.UpdatedAt,
		poll.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating poll %s: %w", poll.ID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("poll", poll.ID)
	}

	// Collect the IDs the caller wants to keep.
	keep := make(map[string]bool, len(poll.Options))
	for i := range poll.Options {
		if poll.Options[i].ID != "" {
			keep[poll.Options[i].ID] = true
		}
	}

	// Delete stored options that are no longer part of the poll.
	rows, err := tx.QueryContext(ctx,
		`SELECT id FROM poll_options WHERE poll_id = ?`, poll.ID)
	if err != nil {
		return fmt.Errorf("sqlite: loading option ids for poll %s: %w", poll.ID, err)
	}
	var stale []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return fmt.Errorf("sqlite: scanning option id: %w", err)
		}
		if !keep[id] {
			stale = append(stale, id)
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("sqlite: iterating option ids: %w", err)
	}
	rows.Close()

	for _, id := range stale {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM poll_options WHERE id = ?`, id); err != nil {
			return fmt.Errorf("sqlite: deleting option %s: %w", id, err)
		}
	}

	// Apply the submitted option set.
	for i := range poll.Options {
		opt := &poll.Options[i]
		opt.PollID = poll.ID
		opt.Position = i

		if opt.ID == "" {
			opt.ID = xid.New().String()
			opt.Votes = 0
			_, err = tx.ExecContext(ctx,
				`INSERT INTO poll_options (id, poll_id, text, votes, position)
				 VALUES (?, ?, ?, 0, ?)`,
				opt.ID, opt.PollID, opt.Text, opt.Position,
			)
		} else {
			_, err = tx.ExecContext(ctx,
				`UPDATE poll_options SET text = ?, position = ? WHERE id = ?`,
				opt.Text, opt.Position, opt.ID,
			)
		}
		if err != nil {
			return fmt.Errorf("sqlite: writing option %q: %w", opt.Text, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing poll update: %w", err)
	}

	return nil
}

// Delete removes the poll; options and votes go with it via the FK cascades.
func (r *PollRepo) Delete(ctx context.Context, id string) error {
	result, err := r.conn.ExecContext(ctx,
		`DELETE FROM polls WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting poll %s: %w", id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("poll", id)
	}

	return nil
}

// AddOption appends a single option to an existing poll, placing it after the
// current last position.
func (r *PollRepo) AddOption(ctx context.Context, opt *model.Option) error {
	opt.ID = xid.New().String()
	opt.Votes = 0

	err := r.conn.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(position), -1) + 1 FROM poll_options WHERE poll_id = ?`,
		opt.PollID,
	).Scan(&opt.Position)
	if err != nil {
		return fmt.Errorf("sqlite: finding next option position: %w", err)
	}

	_, err = r.conn.ExecContext(ctx,
		`INSERT INTO poll_options (id, poll_id, text, votes, position)
		 VALUES (?, ?, ?, 0, ?)`,
		opt.ID, opt.PollID, opt.Text, opt.Position,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting option %q: %w", opt.Text, err)
	}

	return nil
}

// DashboardStats aggregates the per-user dashboard counters.
func (r *PollRepo) DashboardStats(ctx context.Context, userID string) (*model.DashboardStats, error) {
	var stats model.DashboardStats

	err := r.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM polls WHERE is_public = 1 OR creator_id = ?`,
		userID,
	).Scan(&stats.TotalPolls)
	if err != nil {
		return nil, fmt.Errorf("sqlite: counting visible polls: %w", err)
	}

	err = r.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM polls WHERE creator_id = ?`,
		userID,
	).Scan(&stats.PollsCreated)
	if err != nil {
		return nil, fmt.Errorf("sqlite: counting created polls: %w", err)
	}

	err = r.conn.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(o.votes), 0)
		 FROM poll_options o
		 JOIN polls p ON p.id = o.poll_id
		 WHERE p.creator_id = ?`,
		userID,
	).Scan(&stats.TotalVotes)
	if err != nil {
		return nil, fmt.Errorf("sqlite: summing received votes: %w", err)
	}

	err = r.conn.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT poll_id) FROM votes WHERE user_id = ?`,
		userID,
	).Scan(&stats.PollsVoted)
	if err != nil {
		return nil, fmt.Errorf("sqlite: counting voted polls: %w", err)
	}

	return &stats, nil
}

// nullableTime converts an optional expiry to a driver-friendly value.
func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}
