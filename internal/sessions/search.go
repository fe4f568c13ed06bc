// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package sessions

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pdiddy/expression-learner/pkg/types"
)

// QueryOptions holds parameters for expression searches.
type QueryOptions struct {
	// Query is matched against phrase and meaning. Each whitespace
	// separated word must appear.
	Query string

	// SessionID restricts results to one session.
	SessionID string

	// MaxResults limits result count. Zero uses the store default.
	MaxResults int
}

// SearchResult is a stored expression with the turn it came from.
type SearchResult struct {
	types.Expression `yaml:",inline"`
	SessionID        string    `json:"session_id" yaml:"session_id"`
	Turn             int       `json:"turn" yaml:"turn"`
	CreatedAt        time.Time `json:"created_at" yaml:"created_at"`
}

// SearchExpressions returns stored expressions matching opts. Full-text
// queries are ranked by relevance; otherwise results are ordered by
// session and turn.
func (s *Store) SearchExpressions(ctx context.Context, opts QueryOptions) ([]SearchResult, error) {
	maxResults := opts.MaxResults
	if maxResults <= 0 {
		maxResults = s.maxResults
	}

	var (
		qb    strings.Builder
		args  []any
		terms = strings.Fields(opts.Query)
	)

	switch {
	case len(terms) > 0 && s.fts:
		qb.WriteString(
			`SELECT e.phrase, e.meaning, e.session_id, e.turn, e.created_at
			FROM expressions_fts
			JOIN expressions e ON e.rowid = expressions_fts.rowid
			WHERE expressions_fts MATCH ?`)
		args = append(args, matchExpr(terms))
	default:
		qb.WriteString(
			`SELECT e.phrase, e.meaning, e.session_id, e.turn, e.created_at
			FROM expressions e
			WHERE 1=1`)
		for _, term := range terms {
			qb.WriteString(` AND (e.phrase LIKE ? ESCAPE '\' OR e.meaning LIKE ? ESCAPE '\')`)
			pattern := "%" + escapeLike(term) + "%"
			args = append(args, pattern, pattern)
		}
	}

	if opts.SessionID != "" {
		qb.WriteString(` AND e.session_id = ?`)
		args = append(args, opts.SessionID)
	}

	if len(terms) > 0 && s.fts {
		qb.WriteString(` ORDER BY expressions_fts.rank`)
	} else {
		qb.WriteString(` ORDER BY e.session_id, e.turn, e.rowid`)
	}
	qb.WriteString(` LIMIT ?`)
	args = append(args, maxResults)

	rows, err := s.db.QueryContext(ctx, qb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("searching expressions: %w", err)
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		var created string
		if err := rows.Scan(&r.Phrase, &r.Meaning, &r.SessionID, &r.Turn, &created); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		r.CreatedAt = parseTime(created)
		results = append(results, r)
	}
	return results, rows.Err()
}

// matchExpr quotes each term so FTS5 operators in user input are literal.
func matchExpr(terms []string) string {
	quoted := make([]string, len(terms))
	for i, t := range terms {
		quoted[i] = `"` + strings.ReplaceAll(t, `"`, `""`) + `"`
	}
	return strings.Join(quoted, " ")
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
