package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"sessionlog/internal/models"
	"sessionlog/internal/query"
)

// timestampPattern guards timestamptz casts so documents holding arbitrary
// strings in a date field are skipped instead of failing the query.
const timestampPattern = `^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(\.\d+)?(Z|[+-]\d{2}:\d{2})$`

type postgresRepository struct {
	pool *pgxpool.Pool
	cfg  PostgresConfig

	tablesMu sync.Mutex
	tables   map[string]struct{}
}

// NewPostgresRepository opens a Postgres-backed repository that stores each
// collection as a table of JSONB documents. Missing tables are created.
func NewPostgresRepository(ctx context.Context, dsn string, opts ...Option) (Repository, error) {
	cfg := newPostgresConfig(dsn, opts...)
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("postgres dsn required")
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	if cfg.MaxConnections > 0 {
		poolCfg.MaxConns = cfg.MaxConnections
	}
	if cfg.MinConnections >= 0 {
		poolCfg.MinConns = cfg.MinConnections
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	if cfg.HealthCheckInterval > 0 {
		poolCfg.HealthCheckPeriod = cfg.HealthCheckInterval
	}
	if cfg.AcquireTimeout > 0 {
		poolCfg.ConnConfig.ConnectTimeout = cfg.AcquireTimeout
	}
	if cfg.ApplicationName != "" {
		if poolCfg.ConnConfig.RuntimeParams == nil {
			poolCfg.ConnConfig.RuntimeParams = make(map[string]string)
		}
		poolCfg.ConnConfig.RuntimeParams["application_name"] = cfg.ApplicationName
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}

	repo := &postgresRepository{
		pool:   pool,
		cfg:    cfg,
		tables: make(map[string]struct{}),
	}
	for _, collection := range cfg.Collections {
		if err := repo.ensureTable(ctx, collection); err != nil {
			pool.Close()
			return nil, err
		}
	}
	return repo, nil
}

func (r *postgresRepository) Ping(ctx context.Context) error {
	ctx, cancel := r.operationContext(ctx)
	defer cancel()
	if err := r.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

func (r *postgresRepository) Close(ctx context.Context) error {
	if r == nil || r.pool == nil {
		return nil
	}
	done := make(chan struct{})
	go func() {
		r.pool.Close()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

// operationContext applies the acquire timeout to a single operation.
func (r *postgresRepository) operationContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.cfg.AcquireTimeout > 0 {
		return context.WithTimeout(ctx, r.cfg.AcquireTimeout)
	}
	return ctx, func() {}
}

func tableName(collection string) string {
	return pgx.Identifier{collection}.Sanitize()
}

func (r *postgresRepository) ensureTable(ctx context.Context, collection string) error {
	r.tablesMu.Lock()
	defer r.tablesMu.Unlock()
	if _, ok := r.tables[collection]; ok {
		return nil
	}

	table := tableName(collection)
	index := pgx.Identifier{collection + "_doc_idx"}.Sanitize()
	statements := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			seq BIGSERIAL NOT NULL,
			id TEXT PRIMARY KEY,
			doc JSONB NOT NULL
		)`, table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s USING GIN (doc jsonb_path_ops)`, index, table),
	}
	for _, stmt := range statements {
		if _, err := r.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("prepare table %s: %w", collection, err)
		}
	}
	r.tables[collection] = struct{}{}
	return nil
}

func (r *postgresRepository) InsertOne(ctx context.Context, collection string, doc models.Document) (models.InsertResult, error) {
	ctx, cancel := r.operationContext(ctx)
	defer cancel()
	if err := r.ensureTable(ctx, collection); err != nil {
		return models.InsertResult{}, err
	}

	stored := cloneDocument(doc)
	if stored == nil {
		stored = models.Document{}
	}
	id := ensureID(stored, r.cfg.Clock)
	key, err := idKey(id)
	if err != nil {
		return models.InsertResult{}, err
	}
	payload, err := json.Marshal(stored)
	if err != nil {
		return models.InsertResult{}, fmt.Errorf("encode document: %w", err)
	}

	tag, err := r.pool.Exec(ctx,
		fmt.Sprintf(`INSERT INTO %s (id, doc) VALUES ($1, $2::jsonb) ON CONFLICT (id) DO NOTHING`, tableName(collection)),
		key, string(payload),
	)
	if err != nil {
		return models.InsertResult{}, fmt.Errorf("insert into %s: %w", collection, err)
	}
	if tag.RowsAffected() == 0 {
		return models.InsertResult{}, fmt.Errorf("insert into %s: %w", collection, ErrDuplicateKey)
	}
	return models.InsertResult{Acknowledged: true, InsertedID: id}, nil
}

func (r *postgresRepository) FindOne(ctx context.Context, collection string, filter query.Filter) (models.Document, bool, error) {
	ctx, cancel := r.operationContext(ctx)
	defer cancel()
	if err := r.ensureTable(ctx, collection); err != nil {
		return nil, false, err
	}

	where, args, err := postgresWhere(filter)
	if err != nil {
		return nil, false, err
	}
	stmt := fmt.Sprintf(`SELECT doc FROM %s WHERE %s ORDER BY seq LIMIT 1`, tableName(collection), where)

	var raw []byte
	if err := r.pool.QueryRow(ctx, stmt, args...).Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("find in %s: %w", collection, err)
	}
	doc, err := decodeJSONDocument(raw)
	if err != nil {
		return nil, false, err
	}
	return doc, true, nil
}

func (r *postgresRepository) Find(ctx context.Context, collection string, filter query.Filter) ([]models.Document, error) {
	ctx, cancel := r.operationContext(ctx)
	defer cancel()
	if err := r.ensureTable(ctx, collection); err != nil {
		return nil, err
	}

	where, args, err := postgresWhere(filter)
	if err != nil {
		return nil, err
	}
	stmt := fmt.Sprintf(`SELECT doc FROM %s WHERE %s ORDER BY seq`, tableName(collection), where)

	rows, err := r.pool.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("find in %s: %w", collection, err)
	}
	defer rows.Close()

	results := make([]models.Document, 0)
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan %s: %w", collection, err)
		}
		doc, err := decodeJSONDocument(raw)
		if err != nil {
			return nil, err
		}
		results = append(results, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", collection, err)
	}
	return results, nil
}

func (r *postgresRepository) UpdateOne(ctx context.Context, collection string, filter query.Filter, set models.Document) (models.UpdateResult, error) {
	if err := validateSet(set); err != nil {
		return models.UpdateResult{}, err
	}
	ctx, cancel := r.operationContext(ctx)
	defer cancel()
	if err := r.ensureTable(ctx, collection); err != nil {
		return models.UpdateResult{}, err
	}

	where, args, err := postgresWhere(filter)
	if err != nil {
		return models.UpdateResult{}, err
	}
	table := tableName(collection)

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.UpdateResult{}, fmt.Errorf("begin update: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	var (
		key string
		raw []byte
	)
	stmt := fmt.Sprintf(`SELECT id, doc FROM %s WHERE %s ORDER BY seq LIMIT 1 FOR UPDATE`, table, where)
	if err := tx.QueryRow(ctx, stmt, args...).Scan(&key, &raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.UpdateResult{Acknowledged: true}, nil
		}
		return models.UpdateResult{}, fmt.Errorf("select %s for update: %w", collection, err)
	}

	doc, err := decodeJSONDocument(raw)
	if err != nil {
		return models.UpdateResult{}, err
	}
	// Round-trip the patch through JSON so comparisons see stored shapes.
	patch, err := jsonShape(set)
	if err != nil {
		return models.UpdateResult{}, err
	}
	changed, err := applySet(doc, patch)
	if err != nil {
		return models.UpdateResult{}, fmt.Errorf("update %s: %w", collection, err)
	}
	result := models.UpdateResult{Acknowledged: true, MatchedCount: 1}
	if !changed {
		return result, nil
	}

	payload, err := json.Marshal(doc)
	if err != nil {
		return models.UpdateResult{}, fmt.Errorf("encode document: %w", err)
	}
	if _, err := tx.Exec(ctx, fmt.Sprintf(`UPDATE %s SET doc = $1::jsonb WHERE id = $2`, table), string(payload), key); err != nil {
		return models.UpdateResult{}, fmt.Errorf("update %s: %w", collection, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return models.UpdateResult{}, fmt.Errorf("commit update: %w", err)
	}
	result.ModifiedCount = 1
	return result, nil
}

func (r *postgresRepository) DeleteOne(ctx context.Context, collection string, filter query.Filter) (models.DeleteResult, error) {
	ctx, cancel := r.operationContext(ctx)
	defer cancel()
	if err := r.ensureTable(ctx, collection); err != nil {
		return models.DeleteResult{}, err
	}

	where, args, err := postgresWhere(filter)
	if err != nil {
		return models.DeleteResult{}, err
	}
	table := tableName(collection)
	stmt := fmt.Sprintf(`DELETE FROM %s WHERE seq = (SELECT seq FROM %s WHERE %s ORDER BY seq LIMIT 1)`, table, table, where)
	tag, err := r.pool.Exec(ctx, stmt, args...)
	if err != nil {
		return models.DeleteResult{}, fmt.Errorf("delete from %s: %w", collection, err)
	}
	return models.DeleteResult{Acknowledged: true, DeletedCount: tag.RowsAffected()}, nil
}

// postgresWhere renders a filter as a WHERE clause over the doc column with
// positional arguments.
func postgresWhere(filter query.Filter) (string, []any, error) {
	if filter.Empty() {
		return "TRUE", nil, nil
	}
	conditions := make([]string, 0, len(filter.Clauses))
	args := make([]any, 0, len(filter.Clauses))
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	for _, clause := range filter.Clauses {
		field := "doc -> " + quoteLiteral(clause.Field)
		text := "doc ->> " + quoteLiteral(clause.Field)

		switch clause.Op {
		case query.OpEq:
			if clause.Field == models.FieldID {
				key, err := idKey(clause.Value)
				if err != nil {
					return "", nil, err
				}
				conditions = append(conditions, "id = "+next(key))
				continue
			}
			probe, err := json.Marshal(map[string]any{clause.Field: clause.Value})
			if err != nil {
				return "", nil, fmt.Errorf("encode filter: %w", err)
			}
			conditions = append(conditions, "doc @> "+next(string(probe))+"::jsonb")
		case query.OpGte, query.OpLte:
			op := ">="
			if clause.Op == query.OpLte {
				op = "<="
			}
			switch value := clause.Value.(type) {
			case time.Time:
				conditions = append(conditions, fmt.Sprintf(
					"(CASE WHEN jsonb_typeof(%s) = 'string' AND %s ~ '%s' THEN (%s)::timestamptz END) %s %s",
					field, text, timestampPattern, text, op, next(value.UTC()),
				))
			case string:
				conditions = append(conditions, fmt.Sprintf(
					"(jsonb_typeof(%s) = 'string' AND (%s) COLLATE \"C\" %s %s)",
					field, text, op, next(value),
				))
			default:
				return "", nil, fmt.Errorf("unsupported range value %T for %s", clause.Value, clause.Field)
			}
		case query.OpIn:
			values, ok := clause.Value.([]string)
			if !ok {
				return "", nil, fmt.Errorf("unsupported set value %T for %s", clause.Value, clause.Field)
			}
			// ?| also matches object keys, so only strings and arrays qualify.
			conditions = append(conditions, fmt.Sprintf(
				"(jsonb_typeof(%s) IN ('string', 'array') AND (%s) ?| %s::text[])",
				field, field, next(values),
			))
		default:
			return "", nil, fmt.Errorf("unsupported operator %q", clause.Op)
		}
	}
	return strings.Join(conditions, " AND "), args, nil
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func decodeJSONDocument(raw []byte) (models.Document, error) {
	var doc models.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return normalizeDocument(doc), nil
}

func jsonShape(doc models.Document) (models.Document, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode update: %w", err)
	}
	return decodeJSONDocument(raw)
}
