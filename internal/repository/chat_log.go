package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/talentboard/supportbot/internal/domain"
	"github.com/talentboard/supportbot/internal/pagination"
)

const chatLogColumns = `id, question, top_k, history_turns, sources, grounded, duration_ms, helpful, feedback_at, created_at`

// ChatLogRepository stores answered questions for support analytics.
type ChatLogRepository struct {
	db dbtx
}

func NewChatLogRepository(pool *pgxpool.Pool) *ChatLogRepository {
	return &ChatLogRepository{db: pool}
}

func (r *ChatLogRepository) Create(ctx context.Context, log *domain.ChatLog) error {
	sources := log.Sources
	if sources == nil {
		sources = []domain.ChatLogSource{}
	}
	sourcesJSON, err := json.Marshal(sources)
	if err != nil {
		return fmt.Errorf("failed to encode sources: %w", err)
	}

	_, err = r.db.Exec(ctx,
		`INSERT INTO chat_logs (`+chatLogColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		log.ID, log.Question, log.TopK, log.HistoryTurns, sourcesJSON, log.Grounded,
		log.DurationMs, log.Helpful, log.FeedbackAt, log.CreatedAt,
	)
	return err
}

func (r *ChatLogRepository) RecordFeedback(ctx context.Context, id string, helpful bool, at time.Time) error {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE chat_logs SET helpful = $1, feedback_at = $2 WHERE id = $3`,
		helpful, at, id,
	)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrChatLogNotFound
		}
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrChatLogNotFound
	}
	return nil
}

// List pages over (created_at, id) descending.
func (r *ChatLogRepository) List(ctx context.Context, filter domain.ChatLogFilter, cursor *pagination.Cursor, limit int) ([]*domain.ChatLog, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.UngroundedOnly {
		where = append(where, "NOT grounded")
	}
	if filter.Helpful != nil {
		where = append(where, "helpful = "+arg(*filter.Helpful))
	}
	if cursor != nil {
		where = append(where, fmt.Sprintf("(created_at, id) < (%s, %s)", arg(cursor.Timestamp), arg(cursor.LastID)))
	}

	query := `SELECT ` + chatLogColumns + ` FROM chat_logs`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ` + arg(limit)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []*domain.ChatLog
	for rows.Next() {
		log, err := scanChatLog(rows)
		if err != nil {
			return nil, err
		}
		logs = append(logs, log)
	}
	return logs, rows.Err()
}

func scanChatLog(row pgx.Row) (*domain.ChatLog, error) {
	var (
		l           domain.ChatLog
		sourcesJSON []byte
	)
	if err := row.Scan(&l.ID, &l.Question, &l.TopK, &l.HistoryTurns, &sourcesJSON, &l.Grounded,
		&l.DurationMs, &l.Helpful, &l.FeedbackAt, &l.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(sourcesJSON, &l.Sources); err != nil {
		return nil, fmt.Errorf("failed to decode sources of chat log %s: %w", l.ID, err)
	}
	return &l, nil
}
