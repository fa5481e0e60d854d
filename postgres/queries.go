package postgres

import "fmt"

type queries struct {
	insert         string
	claimDue       string
	markSent       string
	markFailed     string
	countByStatus  string
	selectByStatus string
	requeue        string
	cleanupSent    string
	cleanupDead    string
}

func newQueries(table string) queries {
	cols := "id, aggregate_type, aggregate_id, event_type, payload, status, attempts, occurred_at, trace_id"

	return queries{
		insert: fmt.Sprintf(
			"INSERT INTO %s (aggregate_type, aggregate_id, event_type, payload, trace_id) VALUES ($1, $2, $3, $4, $5) RETURNING id",
			table,
		),
		claimDue: fmt.Sprintf(
			"SELECT %s FROM %s WHERE status IN ($1, $2) AND occurred_at <= $3 ORDER BY occurred_at ASC LIMIT $4 FOR UPDATE SKIP LOCKED",
			cols,
			table,
		),
		markSent: fmt.Sprintf(
			"UPDATE %s SET status = $1, sent_at = $2 WHERE id = ANY($3)",
			table,
		),
		markFailed: fmt.Sprintf(
			"UPDATE %s SET attempts = attempts + 1, "+
				"status = CASE WHEN attempts + 1 >= $1 THEN $2 ELSE $3 END "+
				"WHERE id = ANY($4) RETURNING status",
			table,
		),
		countByStatus: fmt.Sprintf(
			"SELECT COUNT(*) FROM %s WHERE status = $1",
			table,
		),
		selectByStatus: fmt.Sprintf(
			"SELECT %s FROM %s WHERE status = $1 ORDER BY occurred_at ASC LIMIT $2",
			cols,
			table,
		),
		requeue: fmt.Sprintf(
			"UPDATE %s SET status = $1, sent_at = NULL, "+
				"attempts = CASE WHEN $2 THEN 0 ELSE attempts END "+
				"WHERE id = $3 AND status = $4",
			table,
		),
		cleanupSent: fmt.Sprintf(
			"DELETE FROM %s WHERE id IN (SELECT id FROM %s WHERE status = $1 AND sent_at < $2 ORDER BY id LIMIT $3)",
			table,
			table,
		),
		cleanupDead: fmt.Sprintf(
			"DELETE FROM %s WHERE id IN (SELECT id FROM %s WHERE status = $1 AND occurred_at < $2 ORDER BY id LIMIT $3)",
			table,
			table,
		),
	}
}
