package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/tendant/community-admin/pkg/community"
)

// DBTX is an interface that allows us to use either a database connection or a transaction
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Repository implements community.DocumentRepository with one JSONB table
// per collection. Field names are the entity's JSON names; FindMany returns
// insertion order.
type Repository[T community.Entity] struct {
	db    DBTX
	table string
	ident string
}

// New creates a repository over table. Call EnsureTable first on a fresh
// database.
func New[T community.Entity](db DBTX, table string) *Repository[T] {
	return &Repository[T]{
		db:    db,
		table: table,
		ident: pgx.Identifier{table}.Sanitize(),
	}
}

// EnsureTable creates the backing table when it does not exist yet
func EnsureTable(ctx context.Context, db DBTX, table string) error {
	ident := pgx.Identifier{table}.Sanitize()
	index := pgx.Identifier{table + "_data_idx"}.Sanitize()

	_, err := db.Exec(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			seq BIGSERIAL NOT NULL,
			id TEXT PRIMARY KEY,
			data JSONB NOT NULL
		)`, ident))
	if err != nil {
		return fmt.Errorf("%w: create table %s: %v", community.ErrStoreUnavailable, table, err)
	}

	_, err = db.Exec(ctx, fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s USING GIN (data)`, index, ident))
	if err != nil {
		return fmt.Errorf("%w: create index on %s: %v", community.ErrStoreUnavailable, table, err)
	}
	return nil
}

func (r *Repository[T]) FindOneByID(ctx context.Context, id string) (T, bool, error) {
	var zero T
	var data []byte
	err := r.db.QueryRow(ctx, fmt.Sprintf(`SELECT data FROM %s WHERE id = $1`, r.ident), id).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return zero, false, nil
	}
	if err != nil {
		return zero, false, r.handlePostgresError("find_one", id, err)
	}

	doc, err := r.decode(data)
	if err != nil {
		return zero, false, r.handlePostgresError("find_one", id, err)
	}
	return doc, true, nil
}

func (r *Repository[T]) FindMany(ctx context.Context, filter community.Filter) ([]T, error) {
	if err := filter.Validate(); err != nil {
		return nil, r.handlePostgresError("find_many", "", err)
	}

	query, args, err := r.selectQuery(filter)
	if err != nil {
		return nil, r.handlePostgresError("find_many", "", err)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, r.handlePostgresError("find_many", "", err)
	}
	defer rows.Close()

	result := []T{}
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, r.handlePostgresError("find_many", "", err)
		}
		doc, err := r.decode(data)
		if err != nil {
			return nil, r.handlePostgresError("find_many", "", err)
		}
		result = append(result, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, r.handlePostgresError("find_many", "", err)
	}
	return result, nil
}

func (r *Repository[T]) InsertOne(ctx context.Context, doc T) (T, error) {
	var zero T
	if doc.GetID() == "" {
		doc.SetID(uuid.NewString())
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return zero, r.handlePostgresError("insert_one", doc.GetID(), err)
	}

	_, err = r.db.Exec(ctx,
		fmt.Sprintf(`INSERT INTO %s (id, data) VALUES ($1, $2::jsonb)`, r.ident),
		doc.GetID(), string(data))
	if err != nil {
		return zero, r.handlePostgresError("insert_one", doc.GetID(), err)
	}
	return doc, nil
}

func (r *Repository[T]) UpdateOne(ctx context.Context, id string, patch community.Patch) (T, bool, error) {
	var zero T
	if err := patch.Validate(); err != nil {
		return zero, false, r.handlePostgresError("update_one", id, err)
	}

	var stored []byte
	err := r.db.QueryRow(ctx, fmt.Sprintf(`SELECT data FROM %s WHERE id = $1`, r.ident), id).Scan(&stored)
	if errors.Is(err, pgx.ErrNoRows) {
		return zero, false, nil
	}
	if err != nil {
		return zero, false, r.handlePostgresError("update_one", id, err)
	}

	doc, set, unset, err := r.mergePatch(stored, patch)
	if err != nil {
		return zero, false, r.handlePostgresError("update_one", id, err)
	}
	if len(patch) == 0 {
		return doc, true, nil
	}

	fields, err := json.Marshal(set)
	if err != nil {
		return zero, false, r.handlePostgresError("update_one", id, err)
	}

	var data []byte
	err = r.db.QueryRow(ctx,
		fmt.Sprintf(`UPDATE %s SET data = (data - $3::text[]) || $2::jsonb WHERE id = $1 RETURNING data`, r.ident),
		id, string(fields), unset).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return zero, false, nil
	}
	if err != nil {
		return zero, false, r.handlePostgresError("update_one", id, err)
	}

	doc, err = r.decode(data)
	if err != nil {
		return zero, false, r.handlePostgresError("update_one", id, err)
	}
	return doc, true, nil
}

// mergePatch overlays patch on a stored row and decodes the result into T,
// so a patch that does not fit the entity is rejected before anything is
// written. It returns the typed values for the patched keys, and the
// patched keys the entity encoding omits, which are removed from the row.
func (r *Repository[T]) mergePatch(stored []byte, patch community.Patch) (T, map[string]any, []string, error) {
	var zero T
	fields := map[string]any{}
	if err := json.Unmarshal(stored, &fields); err != nil {
		return zero, nil, nil, err
	}
	for k, v := range patch {
		fields[k] = v
	}

	merged, err := json.Marshal(fields)
	if err != nil {
		return zero, nil, nil, fmt.Errorf("%w: %v", community.ErrInvalidQuery, err)
	}
	doc, err := r.decode(merged)
	if err != nil {
		return zero, nil, nil, fmt.Errorf("%w: %v", community.ErrInvalidQuery, err)
	}
	if err := community.ValidateEntity(doc); err != nil {
		return zero, nil, nil, err
	}

	canonical, err := json.Marshal(doc)
	if err != nil {
		return zero, nil, nil, err
	}
	typed := map[string]any{}
	if err := json.Unmarshal(canonical, &typed); err != nil {
		return zero, nil, nil, err
	}

	set := make(map[string]any, len(patch))
	unset := []string{}
	for k := range patch {
		if v, ok := typed[k]; ok {
			set[k] = v
		} else {
			unset = append(unset, k)
		}
	}
	return doc, set, unset, nil
}

func (r *Repository[T]) DeleteOne(ctx context.Context, id string) (bool, error) {
	tag, err := r.db.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, r.ident), id)
	if err != nil {
		return false, r.handlePostgresError("delete_one", id, err)
	}
	return tag.RowsAffected() > 0, nil
}

// selectQuery turns a filter into a containment query. The identifier lives
// in its own column, everything else in data.
func (r *Repository[T]) selectQuery(filter community.Filter) (string, []any, error) {
	query := fmt.Sprintf(`SELECT data FROM %s WHERE TRUE`, r.ident)
	var args []any

	fields := make(map[string]any, len(filter))
	for k, v := range filter {
		if k == "id" || k == "_id" {
			id, ok := v.(string)
			if !ok {
				return "", nil, fmt.Errorf("%w: id must be a string", community.ErrInvalidQuery)
			}
			args = append(args, id)
			query += fmt.Sprintf(` AND id = $%d`, len(args))
			continue
		}
		fields[k] = v
	}

	if len(fields) > 0 {
		encoded, err := json.Marshal(fields)
		if err != nil {
			return "", nil, fmt.Errorf("%w: %v", community.ErrInvalidQuery, err)
		}
		args = append(args, string(encoded))
		query += fmt.Sprintf(` AND data @> $%d::jsonb`, len(args))
	}

	return query + ` ORDER BY seq`, args, nil
}

func (r *Repository[T]) decode(data []byte) (T, error) {
	var doc T
	if err := json.Unmarshal(data, &doc); err != nil {
		return doc, err
	}
	return doc, nil
}

// Error handling helper
func (r *Repository[T]) handlePostgresError(op, id string, err error) error {
	wrapped := err
	var pgErr *pgconn.PgError
	switch {
	case errors.Is(err, community.ErrInvalidQuery), errors.Is(err, community.ErrDuplicateMedia):
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
	case errors.As(err, &pgErr):
		switch pgErr.Code {
		case "23505": // unique_violation
			wrapped = fmt.Errorf("%w: %s", community.ErrDuplicateID, pgErr.Message)
		case "22P02", "22023", "42804": // invalid_text_representation, invalid_parameter_value, datatype_mismatch
			wrapped = fmt.Errorf("%w: %s", community.ErrInvalidQuery, pgErr.Message)
		case "42P01": // undefined_table
			wrapped = fmt.Errorf("%w: table %s does not exist", community.ErrStoreUnavailable, r.table)
		default:
			wrapped = fmt.Errorf("%w: %s (code: %s)", community.ErrStoreUnavailable, pgErr.Message, pgErr.Code)
		}
	default:
		var syntaxErr *json.SyntaxError
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
			// stored row no longer matches the entity shape
			wrapped = fmt.Errorf("decode %s row: %w", r.table, err)
		} else {
			wrapped = fmt.Errorf("%w: %v", community.ErrStoreUnavailable, err)
		}
	}
	return &community.DocumentError{Collection: r.table, ID: id, Op: op, Err: wrapped}
}
