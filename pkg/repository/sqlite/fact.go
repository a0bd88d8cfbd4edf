package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/Dev-Marygold/Laffey/pkg/domain/model"
	"github.com/goccy/go-json"
	"github.com/m-mizutani/goerr/v2"
)

type factRepository struct {
	db *sql.DB
}

func encodeIDs(ids []model.MemoryID) (string, error) {
	if ids == nil {
		ids = []model.MemoryID{}
	}
	raw, err := json.Marshal(ids)
	if err != nil {
		return "", goerr.Wrap(err, "failed to encode source memory IDs")
	}
	return string(raw), nil
}

func decodeIDs(raw string) []model.MemoryID {
	var ids []model.MemoryID
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		return nil
	}
	return ids
}

func (r *factRepository) Upsert(ctx context.Context, fact *model.SemanticFact) (*model.SemanticFact, error) {
	if fact == nil {
		return nil, goerr.New("fact is nil")
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to begin transaction")
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	result := *fact
	result.LastUpdated = now

	var (
		createdAt string
		rawIDs    string
	)
	err = tx.QueryRowContext(ctx,
		`SELECT created_at, source_memory_ids FROM semantic_facts WHERE subject = ? AND fact_type = ? AND content = ?`,
		fact.Subject, fact.Kind, fact.Content,
	).Scan(&createdAt, &rawIDs)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		result.CreatedAt = now
		result.SourceMemoryIDs = model.MergeSourceIDs(nil, fact.SourceMemoryIDs)
		encoded, err := encodeIDs(result.SourceMemoryIDs)
		if err != nil {
			return nil, err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO semantic_facts (fact_type, subject, content, confidence, source_memory_ids, created_at, last_updated)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			result.Kind, result.Subject, result.Content, result.Confidence, encoded,
			formatTime(now), formatTime(now),
		); err != nil {
			return nil, goerr.Wrap(err, "failed to insert fact", goerr.V("subject", fact.Subject))
		}

	case err != nil:
		return nil, goerr.Wrap(err, "failed to look up fact", goerr.V("subject", fact.Subject))

	default:
		result.CreatedAt = parseTime(createdAt)
		result.SourceMemoryIDs = model.MergeSourceIDs(decodeIDs(rawIDs), fact.SourceMemoryIDs)
		encoded, err := encodeIDs(result.SourceMemoryIDs)
		if err != nil {
			return nil, err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE semantic_facts SET confidence = ?, source_memory_ids = ?, last_updated = ?
			 WHERE subject = ? AND fact_type = ? AND content = ?`,
			result.Confidence, encoded, formatTime(now),
			fact.Subject, fact.Kind, fact.Content,
		); err != nil {
			return nil, goerr.Wrap(err, "failed to update fact", goerr.V("subject", fact.Subject))
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, goerr.Wrap(err, "failed to commit fact upsert")
	}
	return &result, nil
}

func (r *factRepository) Query(ctx context.Context, q model.FactQuery) ([]*model.SemanticFact, error) {
	var (
		where []string
		args  []any
	)
	if q.Subject != "" {
		where = append(where, "subject = ?")
		args = append(args, q.Subject)
	}
	if q.Kind != "" {
		where = append(where, "fact_type = ?")
		args = append(args, q.Kind)
	}

	query := `SELECT fact_type, subject, content, confidence, source_memory_ids, created_at, last_updated FROM semantic_facts`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY confidence DESC, last_updated DESC"
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to query facts", goerr.V("subject", q.Subject), goerr.V("kind", q.Kind))
	}
	defer rows.Close()

	facts := make([]*model.SemanticFact, 0)
	for rows.Next() {
		var (
			f                        model.SemanticFact
			rawIDs, created, updated string
		)
		if err := rows.Scan(&f.Kind, &f.Subject, &f.Content, &f.Confidence, &rawIDs, &created, &updated); err != nil {
			return nil, goerr.Wrap(err, "failed to scan fact")
		}
		f.SourceMemoryIDs = decodeIDs(rawIDs)
		f.CreatedAt = parseTime(created)
		f.LastUpdated = parseTime(updated)
		facts = append(facts, &f)
	}
	if err := rows.Err(); err != nil {
		return nil, goerr.Wrap(err, "failed to iterate facts")
	}

	return facts, nil
}

func (r *factRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM semantic_facts`).Scan(&n); err != nil {
		return 0, goerr.Wrap(err, "failed to count facts")
	}
	return n, nil
}

func (r *factRepository) DeleteAll(ctx context.Context) (int, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM semantic_facts`)
	if err != nil {
		return 0, goerr.Wrap(err, "failed to delete facts")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, goerr.Wrap(err, "failed to get deleted fact count")
	}
	return int(n), nil
}

// timeLayout is fixed width so that TEXT order matches time order
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
