package postgres

import (
	"fmt"
	"strings"
)

const schemaTemplate = `CREATE TABLE IF NOT EXISTS %s (
	id BIGSERIAL PRIMARY KEY,
	aggregate_type TEXT NOT NULL,
	aggregate_id TEXT NOT NULL,
	event_type TEXT NOT NULL,
	payload %s NOT NULL,
	status TEXT NOT NULL DEFAULT 'PENDING' CHECK (status IN ('PENDING', 'SENT', 'FAILED', 'DLQ')),
	attempts INTEGER NOT NULL DEFAULT 0 CHECK (attempts >= 0),
	occurred_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	sent_at TIMESTAMPTZ NULL,
	trace_id UUID NOT NULL
);
CREATE INDEX IF NOT EXISTS %s_claim_idx ON %s (occurred_at) WHERE status IN ('PENDING', 'FAILED');`

const (
	payloadJSON   = "JSONB"
	payloadBinary = "BYTEA"
)

// Schema returns the DDL for an outbox table with a JSONB payload.
func Schema(table string) (string, error) {
	return buildSchema(table, payloadJSON)
}

// SchemaBinary returns the DDL for an outbox table with a BYTEA payload, for
// deployments that relay non-JSON blobs.
func SchemaBinary(table string) (string, error) {
	return buildSchema(table, payloadBinary)
}

func buildSchema(table, payloadType string) (string, error) {
	name, err := sanitizeTableName(table)
	if err != nil {
		return "", err
	}

	// Index names may not be qualified; strip the schema prefix if present.
	indexBase := name
	if i := strings.LastIndex(indexBase, "."); i >= 0 {
		indexBase = indexBase[i+1:]
	}

	return fmt.Sprintf(schemaTemplate, name, payloadType, indexBase, name), nil
}
