package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"github.com/rotisserie/eris"

	"github.com/KevinLaRosa/yorimichi-workers/internal/db"
	"github.com/KevinLaRosa/yorimichi-workers/internal/model"
)

// PostgresStore implements Store using pgxpool, pgvector and PostGIS.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var imageColumns = []string{"path", "entity_id", "url", "source"}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	// A run is one sequential loop, so a small pool is enough.
	maxConns, minConns := int32(4), int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE EXTENSION IF NOT EXISTS vector;
CREATE EXTENSION IF NOT EXISTS postgis;

CREATE TABLE IF NOT EXISTS processed_items (
	id           TEXT PRIMARY KEY,
	status       TEXT NOT NULL,
	stage        TEXT,
	error_detail TEXT,
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS neighborhoods (
	id   BIGSERIAL PRIMARY KEY,
	name TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS tags (
	id   BIGSERIAL PRIMARY KEY,
	name TEXT NOT NULL,
	type TEXT NOT NULL,
	slug TEXT NOT NULL,
	UNIQUE (name, type)
);

CREATE TABLE IF NOT EXISTS entities (
	id                UUID PRIMARY KEY,
	name              TEXT NOT NULL,
	name_jp           TEXT,
	description       TEXT,
	summary           TEXT,
	category          TEXT,
	subcategory       TEXT,
	neighborhood_id   BIGINT REFERENCES neighborhoods(id),
	address           TEXT,
	latitude          DOUBLE PRECISION,
	longitude         DOUBLE PRECISION,
	location          geometry(Point, 4326),
	embedding         vector(1536),
	embedding_model   TEXT,
	embedded_at       TIMESTAMPTZ,
	source_url        TEXT NOT NULL UNIQUE,
	source_name       TEXT,
	is_active         BOOLEAN NOT NULL DEFAULT false,
	attributes        JSONB NOT NULL DEFAULT '{}'::jsonb,
	enrichment_status TEXT NOT NULL DEFAULT 'pending',
	scraped_at        TIMESTAMPTZ,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_entities_enrichment ON entities(enrichment_status);
CREATE INDEX IF NOT EXISTS idx_entities_created_at ON entities(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_entities_location ON entities USING GIST (location);

CREATE TABLE IF NOT EXISTS entity_external_ids (
	entity_id   UUID NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
	provider    TEXT NOT NULL,
	external_id TEXT NOT NULL,
	enriched_at TIMESTAMPTZ,
	PRIMARY KEY (entity_id, provider),
	UNIQUE (provider, external_id)
);

CREATE TABLE IF NOT EXISTS entity_tags (
	entity_id UUID NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
	tag_id    BIGINT NOT NULL REFERENCES tags(id),
	PRIMARY KEY (entity_id, tag_id)
);

CREATE TABLE IF NOT EXISTS entity_images (
	path      TEXT PRIMARY KEY,
	entity_id UUID NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
	url       TEXT NOT NULL,
	source    TEXT
);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) LoadStatuses(ctx context.Context) (map[string]model.Status, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, status FROM processed_items`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: load statuses")
	}
	defer rows.Close()

	out := make(map[string]model.Status)
	for rows.Next() {
		var id, status string
		if err := rows.Scan(&id, &status); err != nil {
			return nil, eris.Wrap(err, "postgres: scan status")
		}
		out[id] = model.Status(status)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate statuses")
}

func (s *PostgresStore) SaveStatus(ctx context.Context, item model.WorkItem) error {
	if item.UpdatedAt.IsZero() {
		item.UpdatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO processed_items (id, status, stage, error_detail, updated_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO UPDATE SET
		   status = EXCLUDED.status,
		   stage = EXCLUDED.stage,
		   error_detail = EXCLUDED.error_detail,
		   updated_at = EXCLUDED.updated_at`,
		item.ID, string(item.Status), nullString(item.Stage), nullString(item.ErrorDetail), item.UpdatedAt,
	)
	return eris.Wrapf(err, "postgres: save status %s", item.ID)
}

func (s *PostgresStore) InsertEntity(ctx context.Context, e *model.Entity, tagIDs []int64) (string, error) {
	id := e.ID
	if id == "" {
		id = uuid.New().String()
	}
	attrs, err := marshalAttributes(e.Attributes)
	if err != nil {
		return "", err
	}

	var location []byte
	if e.HasCoordinates() {
		if location, err = pointEWKB(*e.Latitude, *e.Longitude); err != nil {
			return "", err
		}
	}
	status := e.EnrichmentStatus
	if status == "" {
		status = model.EnrichmentPending
	}
	createdAt := e.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	var (
		embedding  any
		embeddedAt *time.Time
	)
	if len(e.Embedding) > 0 {
		embedding = pgvector.NewVector(e.Embedding)
		embeddedAt = e.EmbeddedAt
		if embeddedAt == nil {
			embeddedAt = &createdAt
		}
	}

	return db.InTx(ctx, s.pool, func(tx pgx.Tx) (string, error) {
		_, err := tx.Exec(ctx,
			`INSERT INTO entities (id, name, name_jp, description, summary, category, subcategory,
			   neighborhood_id, address, latitude, longitude, location, embedding, embedding_model, embedded_at,
			   source_url, source_name, is_active, attributes, enrichment_status, scraped_at, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, ST_GeomFromEWKB($12), $13, $14, $15,
			   $16, $17, $18, $19, $20, $21, $22)`,
			id, e.Name, nullString(e.NameJP), e.Description, e.Summary, nullString(e.Category), nullString(e.Subcategory),
			e.NeighborhoodID, nullString(e.Address), e.Latitude, e.Longitude, location, embedding, nullString(e.EmbeddingModel), embeddedAt,
			e.SourceURL, e.SourceName, e.Active, attrs, string(status), nullTime(e.ScrapedAt), createdAt,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return "", eris.Wrapf(ErrConflict, "postgres: entity for %s", e.SourceURL)
			}
			return "", eris.Wrap(err, "postgres: insert entity")
		}

		tagIDs = uniqueIDs(tagIDs)
		if len(tagIDs) == 0 {
			return id, nil
		}
		q := psql.Insert("entity_tags").Columns("entity_id", "tag_id").Suffix("ON CONFLICT DO NOTHING")
		for _, tagID := range tagIDs {
			q = q.Values(id, tagID)
		}
		sqlStr, args, err := q.ToSql()
		if err != nil {
			return "", eris.Wrap(err, "postgres: build entity tags")
		}
		if _, err = tx.Exec(ctx, sqlStr, args...); err != nil {
			return "", eris.Wrap(err, "postgres: insert entity tags")
		}
		return id, nil
	})
}

var entityColumns = []string{
	"id::text", "name", "COALESCE(name_jp, '')", "COALESCE(description, '')", "COALESCE(summary, '')",
	"COALESCE(category, '')", "COALESCE(subcategory, '')", "neighborhood_id", "COALESCE(address, '')",
	"latitude", "longitude", "COALESCE(embedding_model, '')", "embedded_at", "source_url",
	"COALESCE(source_name, '')", "is_active", "attributes", "enrichment_status", "scraped_at", "created_at",
}

func (s *PostgresStore) GetEntity(ctx context.Context, id string) (*model.Entity, error) {
	sqlStr, args, err := psql.Select(entityColumns...).From("entities").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, eris.Wrap(err, "postgres: build get entity")
	}
	e, err := scanEntity(s.pool.QueryRow(ctx, sqlStr, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Errorf("postgres: entity not found: %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get entity %s", id)
	}
	found := []model.Entity{*e}
	if err := s.attachLinks(ctx, found); err != nil {
		return nil, err
	}
	return &found[0], nil
}

func (s *PostgresStore) ListForEnrichment(ctx context.Context, f EnrichmentFilter) ([]model.Entity, error) {
	if err := checkProvider(f); err != nil {
		return nil, err
	}
	q := psql.Select(entityColumns...).From("entities").
		Where(sq.NotEq{"source_url": nil}).
		Where(sq.NotEq{"enrichment_status": []string{string(model.EnrichmentDuplicate), string(model.EnrichmentIgnored)}})

	switch {
	case f.Linked:
		q = q.Where(linkedToProvider, f.Provider)
	case !f.Force:
		q = q.Where(notEnrichedFromProvider, f.Provider)
	}
	if f.OnlyMissingCoords {
		q = q.Where("(latitude IS NULL OR longitude IS NULL OR (latitude = 0 AND longitude = 0))")
	}
	q = q.OrderBy("created_at DESC")
	if f.Limit > 0 {
		q = q.Limit(uint64(f.Limit))
	}
	return s.listEntities(ctx, q, "list for enrichment")
}

func (s *PostgresStore) ListMissingCoordinates(ctx context.Context, limit int) ([]model.Entity, error) {
	q := psql.Select(entityColumns...).From("entities").
		Where("address IS NOT NULL AND address <> ''").
		Where("(latitude IS NULL OR longitude IS NULL OR (latitude = 0 AND longitude = 0))").
		OrderBy("created_at DESC")
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}
	return s.listEntities(ctx, q, "list missing coordinates")
}

func (s *PostgresStore) ListForReembedding(ctx context.Context, f ReembedFilter) ([]model.Entity, error) {
	q := psql.Select(entityColumns...).From("entities").
		Where("description IS NOT NULL AND description <> ''").
		Where(sq.Or{
			sq.Eq{"embedding": nil},
			sq.Eq{"embedded_at": nil},
			sq.Expr("COALESCE(embedding_model, '') <> ?", f.Model),
			sq.Expr(enrichedSinceEmbedding),
		}).
		OrderBy("created_at DESC")
	if f.Limit > 0 {
		q = q.Limit(uint64(f.Limit))
	}
	return s.listEntities(ctx, q, "list for re-embedding")
}

func (s *PostgresStore) UpdateEmbedding(ctx context.Context, id string, embedding []float32, embeddingModel string, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE entities SET embedding = $1, embedding_model = $2, embedded_at = $3 WHERE id = $4`,
		pgvector.NewVector(embedding), embeddingModel, at, id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update embedding %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("postgres: entity not found: %s", id)
	}
	return nil
}

func (s *PostgresStore) listEntities(ctx context.Context, q sq.SelectBuilder, op string) ([]model.Entity, error) {
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: build %s", op)
	}
	rows, err := s.pool.Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: %s", op)
	}
	defer rows.Close()

	var out []model.Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, eris.Wrapf(err, "postgres: scan %s", op)
		}
		out = append(out, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrapf(err, "postgres: iterate %s", op)
	}
	rows.Close()
	return out, s.attachLinks(ctx, out)
}

// attachLinks loads the directory links of entities in one query.
func (s *PostgresStore) attachLinks(ctx context.Context, entities []model.Entity) error {
	if len(entities) == 0 {
		return nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT entity_id::text, provider, external_id, enriched_at
		 FROM entity_external_ids WHERE entity_id::text = ANY($1)`,
		entityIDs(entities),
	)
	if err != nil {
		return eris.Wrap(err, "postgres: load external ids")
	}
	defer rows.Close()

	var links []externalLink
	for rows.Next() {
		var l externalLink
		if err := rows.Scan(&l.EntityID, &l.Provider, &l.ExternalID, &l.EnrichedAt); err != nil {
			return eris.Wrap(err, "postgres: scan external id")
		}
		links = append(links, l)
	}
	if err := rows.Err(); err != nil {
		return eris.Wrap(err, "postgres: iterate external ids")
	}
	applyLinks(entities, links)
	return nil
}

func (s *PostgresStore) UpdateEnrichment(ctx context.Context, id string, u EnrichmentUpdate) error {
	if u.ExternalID != "" && u.Provider == "" {
		return ErrNoProvider
	}
	attrs, err := marshalAttributes(u.Attributes)
	if err != nil {
		return err
	}
	enrichedAt := u.EnrichedAt
	if enrichedAt.IsZero() {
		enrichedAt = time.Now().UTC()
	}

	q := psql.Update("entities").
		Set("enrichment_status", string(u.Status)).
		Set("attributes", sq.Expr("attributes || ?::jsonb", string(attrs)))
	if u.Address != "" {
		q = q.Set("address", u.Address)
	}
	if u.Category != "" {
		q = q.Set("category", u.Category)
	}
	if u.Latitude != nil && u.Longitude != nil {
		loc, err := pointEWKB(*u.Latitude, *u.Longitude)
		if err != nil {
			return err
		}
		q = q.Set("latitude", *u.Latitude).
			Set("longitude", *u.Longitude).
			Set("location", sq.Expr("ST_GeomFromEWKB(?)", loc))
	}
	sqlStr, args, err := q.Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return eris.Wrap(err, "postgres: build update enrichment")
	}

	_, err = db.InTx(ctx, s.pool, func(tx pgx.Tx) (struct{}, error) {
		tag, err := tx.Exec(ctx, sqlStr, args...)
		if err != nil {
			return struct{}{}, eris.Wrapf(err, "postgres: update enrichment %s", id)
		}
		if tag.RowsAffected() == 0 {
			return struct{}{}, eris.Errorf("postgres: entity not found: %s", id)
		}
		if u.ExternalID == "" {
			return struct{}{}, nil
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO entity_external_ids (entity_id, provider, external_id, enriched_at)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (entity_id, provider) DO UPDATE SET
			   external_id = EXCLUDED.external_id,
			   enriched_at = EXCLUDED.enriched_at`,
			id, u.Provider, u.ExternalID, enrichedAt,
		)
		if isUniqueViolation(err) {
			return struct{}{}, eris.Wrapf(ErrConflict, "postgres: %s id %s already linked", u.Provider, u.ExternalID)
		}
		return struct{}{}, eris.Wrapf(err, "postgres: link %s to %s", id, u.Provider)
	})
	return err
}

func (s *PostgresStore) SetEnrichmentStatus(ctx context.Context, id string, status model.EnrichmentStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE entities SET enrichment_status = $1 WHERE id = $2`,
		string(status), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: set enrichment status %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("postgres: entity not found: %s", id)
	}
	return nil
}

func (s *PostgresStore) MarkDuplicatesIgnored(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE entities SET enrichment_status = $1 WHERE enrichment_status = $2`,
		string(model.EnrichmentIgnored), string(model.EnrichmentDuplicate),
	)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: mark duplicates ignored")
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) UpdateCoordinates(ctx context.Context, id string, lat, lng float64) error {
	loc, err := pointEWKB(lat, lng)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE entities SET latitude = $1, longitude = $2, location = ST_GeomFromEWKB($3) WHERE id = $4`,
		lat, lng, loc, id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update coordinates %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("postgres: entity not found: %s", id)
	}
	return nil
}

func (s *PostgresStore) DeleteImages(ctx context.Context, pathPrefix string) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM entity_images WHERE path LIKE $1`, pathPrefix+"%")
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: delete images %s", pathPrefix)
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) SaveImages(ctx context.Context, images []model.Image) error {
	_, err := db.CopyRows(ctx, s.pool, "entity_images", imageColumns, images, func(img model.Image) []any {
		return []any{img.Path, img.EntityID, img.URL, img.Source}
	})
	return err
}

func (s *PostgresStore) GetOrCreateTag(ctx context.Context, name string, tagType model.TagType) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO tags (name, type, slug) VALUES ($1, $2, $3)
		 ON CONFLICT (name, type) DO UPDATE SET slug = EXCLUDED.slug
		 RETURNING id`,
		name, string(tagType), model.Slug(name),
	).Scan(&id)
	return id, eris.Wrapf(err, "postgres: get or create tag %s/%s", tagType, name)
}

func (s *PostgresStore) GetOrCreateNeighborhood(ctx context.Context, name string) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO neighborhoods (name) VALUES ($1)
		 ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		 RETURNING id`,
		name,
	).Scan(&id)
	return id, eris.Wrapf(err, "postgres: get or create neighborhood %s", name)
}

func (s *PostgresStore) FindSimilar(ctx context.Context, embedding []float32, threshold float64, limit int) ([]SimilarMatch, error) {
	if limit <= 0 {
		limit = 1
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id::text, name, 1 - (embedding <=> $1) AS similarity
		 FROM entities
		 WHERE embedding IS NOT NULL AND 1 - (embedding <=> $1) >= $2
		 ORDER BY embedding <=> $1
		 LIMIT $3`,
		pgvector.NewVector(embedding), threshold, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: find similar")
	}
	defer rows.Close()

	var out []SimilarMatch
	for rows.Next() {
		var m SimilarMatch
		if err := rows.Scan(&m.ID, &m.Name, &m.Similarity); err != nil {
			return nil, eris.Wrap(err, "postgres: scan similar")
		}
		out = append(out, m)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate similar")
}

type scannable interface {
	Scan(dest ...any) error
}

func scanEntity(row scannable) (*model.Entity, error) {
	var (
		e         model.Entity
		status    string
		attrs     []byte
		scrapedAt *time.Time
	)
	err := row.Scan(
		&e.ID, &e.Name, &e.NameJP, &e.Description, &e.Summary,
		&e.Category, &e.Subcategory, &e.NeighborhoodID, &e.Address,
		&e.Latitude, &e.Longitude, &e.EmbeddingModel, &e.EmbeddedAt, &e.SourceURL,
		&e.SourceName, &e.Active, &attrs, &status, &scrapedAt, &e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	e.EnrichmentStatus = model.EnrichmentStatus(status)
	if scrapedAt != nil {
		e.ScrapedAt = *scrapedAt
	}
	if len(attrs) > 0 {
		if err := json.Unmarshal(attrs, &e.Attributes); err != nil {
			return nil, eris.Wrap(err, "unmarshal attributes")
		}
	}
	return &e, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func marshalAttributes(attrs map[string]any) ([]byte, error) {
	if attrs == nil {
		return []byte("{}"), nil
	}
	data, err := json.Marshal(attrs)
	if err != nil {
		return nil, eris.Wrap(err, "store: marshal attributes")
	}
	return data, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]bool, len(ids))
	out := ids[:0:0]
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
