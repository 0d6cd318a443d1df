package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/xid"
	"github.com/polly-app/polly/internal/model"
	"github.com/polly-app/polly/internal/repository"
)

// VoteRepo implements repository.VoteRepository on the shared pool.
type VoteRepo struct {
	conn *sql.DB
}

func NewVoteRepo(db *DB) *VoteRepo {
	return &VoteRepo{conn: db.conn}
}

var _ repository.VoteRepository = (*VoteRepo)(nil)

// ListByUserAndPoll returns the user's current votes on one poll, oldest first.
func (r *VoteRepo) ListByUserAndPoll(ctx context.Context, userID, pollID string) ([]model.Vote, error) {
	rows, err := r.conn.QueryContext(ctx,
		`SELECT id, user_id, poll_id, option_id, created_at
		 FROM votes
		 WHERE user_id = ? AND poll_id = ?
		 ORDER BY created_at`,
		userID, pollID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing votes: %w", err)
	}
	defer rows.Close()

	var votes []model.Vote
	for rows.Next() {
		var v model.Vote
		if err := rows.Scan(&v.ID, &v.UserID, &v.PollID, &v.OptionID, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scanning vote row: %w", err)
		}
		votes = append(votes, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating votes: %w", err)
	}

	return votes, nil
}

// Cast applies a validated vote in a single transaction.
//
// Order of operations inside the transaction:
//
//	1. replace only: decrement the counter of every option the user had
//	   voted for, then delete those vote rows
//	2. INSERT OR IGNORE one vote row per requested option
//	3. increment a counter only for rows the insert actually created
//
// Step 3 is what makes a duplicate cast idempotent: on a multi-vote poll,
// re-sending an already-held option hits the UNIQUE(user_id, poll_id,
// option_id) constraint, the insert is ignored, and the counter stays put.
// Counters only ever move via relative updates (votes = votes ± 1), so
// concurrent voters on the same poll cannot lose each other's increments,
// and because everything commits atomically the derived poll total equals
// the sum of option counters at every observable point.
func (r *VoteRepo) Cast(ctx context.Context, userID, pollID string, optionIDs []string, replace bool) ([]model.Vote, error) {
	tx, err := r.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("sqlite: beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if replace {
		rows, err := tx.QueryContext(ctx,
			`SELECT option_id FROM votes WHERE user_id = ? AND poll_id = ?`,
			userID, pollID,
		)
		if err != nil {
			return nil, fmt.Errorf("sqlite: loading prior votes: %w", err)
		}
		var prior []string
		for rows.Next() {
			var optID string
			if err := rows.Scan(&optID); err != nil {
				rows.Close()
				return nil, fmt.Errorf("sqlite: scanning prior vote: %w", err)
			}
			prior = append(prior, optID)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, fmt.Errorf("sqlite: iterating prior votes: %w", err)
		}
		rows.Close()

		for _, optID := range prior {
			if _, err := tx.ExecContext(ctx,
				`UPDATE poll_options SET votes = votes - 1 WHERE id = ? AND votes > 0`,
				optID,
			); err != nil {
				return nil, fmt.Errorf("sqlite: decrementing option %s: %w", optID, err)
			}
		}

		if _, err := tx.ExecContext(ctx,
			`DELETE FROM votes WHERE user_id = ? AND poll_id = ?`,
			userID, pollID,
		); err != nil {
			return nil, fmt.Errorf("sqlite: deleting prior votes: %w", err)
		}
	}

	now := time.Now()
	for _, optID := range optionIDs {
		result, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO votes (id, user_id, poll_id, option_id, created_at)
			 VALUES (?, ?, ?, ?, ?)`,
			xid.New().String(), userID, pollID, optID, now,
		)
		if err != nil {
			return nil, fmt.Errorf("sqlite: inserting vote for option %s: %w", optID, err)
		}

		inserted, err := result.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("sqlite: checking rows affected: %w", err)
		}
		if inserted == 1 {
			if _, err := tx.ExecContext(ctx,
				`UPDATE poll_options SET votes = votes + 1 WHERE id = ?`,
				optID,
			); err != nil {
				return nil, fmt.Errorf("sqlite: incrementing option %s: %w", optID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("sqlite: committing vote cast: %w", err)
	}

	return r.ListByUserAndPoll(ctx, userID, pollID)
}

// Withdraw removes all of the user's votes on a poll and decrements the
// affected counters. Withdrawing when no votes exist removes nothing and is
// not an error.
func (r *VoteRepo) Withdraw(ctx context.Context, userID, pollID string) (int, error) {
	tx, err := r.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("sqlite: beginning transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx,
		`SELECT option_id FROM votes WHERE user_id = ? AND poll_id = ?`,
		userID, pollID,
	)
	if err != nil {
		return 0, fmt.Errorf("sqlite: loading votes to withdraw: %w", err)
	}
	var optionIDs []string
	for rows.Next() {
		var optID string
		if err := rows.Scan(&optID); err != nil {
			rows.Close()
			return 0, fmt.Errorf("sqlite: scanning vote to withdraw: %w", err)
		}
		optionIDs = append(optionIDs, optID)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, fmt.Errorf("sqlite: iterating votes to withdraw: %w", err)
	}
	rows.Close()

	for _, optID := range optionIDs {
		if _, err := tx.ExecContext(ctx,
			`UPDATE poll_options SET votes = votes - 1 WHERE id = ? AND votes > 0`,
			optID,
		); err != nil {
			return 0, fmt.Errorf("sqlite: decrementing option %s: %w", optID, err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM votes WHERE user_id = ? AND poll_id = ?`,
		userID, pollID,
	); err != nil {
		return 0, fmt.Errorf("sqlite: deleting votes: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("sqlite: committing withdrawal: %w", err)
	}

	return len(optionIDs), nil
}
