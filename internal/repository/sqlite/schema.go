package sqlite

import (
	"context"
	"database/sql"

	"github.com/kaamsetu/kaamsetu/pkg/models"
)

// CreateSchema inserts or updates an intent schema by version.
func (r *SQLiteRepo) CreateSchema(ctx context.Context, version, schemaJSON string) (int64, error) {
	res, err := r.conn.Exec(ctx, `INSERT INTO intent_schemas (version, schema_json, created, updated) VALUES (?, ?, strftime('%s','now'), strftime('%s','now')) ON CONFLICT(version) DO UPDATE SET schema_json=excluded.schema_json, updated=strftime('%s','now')`, version, schemaJSON)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r *SQLiteRepo) GetSchemaByVersion(ctx context.Context, version string) (*models.IntentSchema, error) {
	row := r.conn.QueryRow(ctx, `SELECT id, version, schema_json, created, updated FROM intent_schemas WHERE version = ?`, version)
	var s models.IntentSchema
	if err := row.Scan(&s.ID, &s.Version, &s.SchemaJSON, &s.Created, &s.Updated); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

func (r *SQLiteRepo) ListSchemas(ctx context.Context) ([]models.IntentSchema, error) {
	rows, err := r.conn.QueryRows(ctx, `SELECT id, version, schema_json, created, updated FROM intent_schemas ORDER BY version`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.IntentSchema
	for rows.Next() {
		var s models.IntentSchema
		if err := rows.Scan(&s.ID, &s.Version, &s.SchemaJSON, &s.Created, &s.Updated); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
