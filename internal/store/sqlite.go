package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/KevinLaRosa/yorimichi-workers/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. Embeddings are
// stored as JSON arrays and compared in Go.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS processed_items (
	id           TEXT PRIMARY KEY,
	status       TEXT NOT NULL,
	stage        TEXT,
	error_detail TEXT,
	updated_at   DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS neighborhoods (
	id   INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS tags (
	id   INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	type TEXT NOT NULL,
	slug TEXT NOT NULL,
	UNIQUE (name, type)
);

CREATE TABLE IF NOT EXISTS entities (
	id                TEXT PRIMARY KEY,
	name              TEXT NOT NULL,
	name_jp           TEXT,
	description       TEXT,
	summary           TEXT,
	category          TEXT,
	subcategory       TEXT,
	neighborhood_id   INTEGER REFERENCES neighborhoods(id),
	address           TEXT,
	latitude          REAL,
	longitude         REAL,
	embedding         TEXT,
	embedding_model   TEXT,
	embedded_at       DATETIME,
	source_url        TEXT NOT NULL UNIQUE,
	source_name       TEXT,
	is_active         INTEGER NOT NULL DEFAULT 0,
	attributes        TEXT NOT NULL DEFAULT '{}',
	enrichment_status TEXT NOT NULL DEFAULT 'pending',
	scraped_at        DATETIME,
	created_at        DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_entities_enrichment ON entities(enrichment_status);
CREATE INDEX IF NOT EXISTS idx_entities_created_at ON entities(created_at);

CREATE TABLE IF NOT EXISTS entity_external_ids (
	entity_id   TEXT NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
	provider    TEXT NOT NULL,
	external_id TEXT NOT NULL,
	enriched_at DATETIME,
	PRIMARY KEY (entity_id, provider),
	UNIQUE (provider, external_id)
);

CREATE TABLE IF NOT EXISTS entity_tags (
	entity_id TEXT NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
	tag_id    INTEGER NOT NULL REFERENCES tags(id),
	PRIMARY KEY (entity_id, tag_id)
);

CREATE TABLE IF NOT EXISTS entity_images (
	path      TEXT PRIMARY KEY,
	entity_id TEXT NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
	url       TEXT NOT NULL,
	source    TEXT
);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) LoadStatuses(ctx context.Context) (map[string]model.Status, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, status FROM processed_items`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: load statuses")
	}
	defer rows.Close()

	out := make(map[string]model.Status)
	for rows.Next() {
		var id, status string
		if err := rows.Scan(&id, &status); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan status")
		}
		out[id] = model.Status(status)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate statuses")
}

func (s *SQLiteStore) SaveStatus(ctx context.Context, item model.WorkItem) error {
	if item.UpdatedAt.IsZero() {
		item.UpdatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO processed_items (id, status, stage, error_detail, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		   status = excluded.status,
		   stage = excluded.stage,
		   error_detail = excluded.error_detail,
		   updated_at = excluded.updated_at`,
		item.ID, string(item.Status), nullString(item.Stage), nullString(item.ErrorDetail), item.UpdatedAt,
	)
	return eris.Wrapf(err, "sqlite: save status %s", item.ID)
}

func (s *SQLiteStore) InsertEntity(ctx context.Context, e *model.Entity, tagIDs []int64) (string, error) {
	id := e.ID
	if id == "" {
		id = uuid.New().String()
	}
	attrs, err := marshalAttributes(e.Attributes)
	if err != nil {
		return "", err
	}
	status := e.EnrichmentStatus
	if status == "" {
		status = model.EnrichmentPending
	}
	createdAt := e.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	embedding, err := encodeVector(e.Embedding)
	if err != nil {
		return "", err
	}
	var embeddedAt *time.Time
	if embedding != nil {
		embeddedAt = e.EmbeddedAt
		if embeddedAt == nil {
			embeddedAt = &createdAt
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx,
		`INSERT INTO entities (id, name, name_jp, description, summary, category, subcategory,
		   neighborhood_id, address, latitude, longitude, embedding, embedding_model, embedded_at,
		   source_url, source_name, is_active, attributes, enrichment_status, scraped_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, e.Name, nullString(e.NameJP), e.Description, e.Summary, nullString(e.Category), nullString(e.Subcategory),
		e.NeighborhoodID, nullString(e.Address), e.Latitude, e.Longitude, embedding, nullString(e.EmbeddingModel), embeddedAt,
		e.SourceURL, e.SourceName, e.Active, string(attrs), string(status), nullTime(e.ScrapedAt), createdAt,
	)
	if err != nil {
		if isSQLiteUnique(err) {
			return "", eris.Wrapf(ErrConflict, "sqlite: entity for %s", e.SourceURL)
		}
		return "", eris.Wrap(err, "sqlite: insert entity")
	}

	for _, tagID := range uniqueIDs(tagIDs) {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO entity_tags (entity_id, tag_id) VALUES (?, ?) ON CONFLICT DO NOTHING`,
			id, tagID,
		); err != nil {
			return "", eris.Wrapf(err, "sqlite: insert entity tag %d", tagID)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", eris.Wrap(err, "sqlite: commit entity")
	}
	return id, nil
}

const sqliteEntityColumns = `id, name, COALESCE(name_jp, ''), COALESCE(description, ''), COALESCE(summary, ''),
	COALESCE(category, ''), COALESCE(subcategory, ''), neighborhood_id, COALESCE(address, ''),
	latitude, longitude, COALESCE(embedding_model, ''), embedded_at, source_url,
	COALESCE(source_name, ''), is_active, attributes, enrichment_status, scraped_at, created_at`

func (s *SQLiteStore) GetEntity(ctx context.Context, id string) (*model.Entity, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sqliteEntityColumns+` FROM entities WHERE id = ?`, id)
	e, err := scanSQLiteEntity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Errorf("sqlite: entity not found: %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get entity %s", id)
	}
	found := []model.Entity{*e}
	if err := s.attachLinks(ctx, found); err != nil {
		return nil, err
	}
	return &found[0], nil
}

// EntityTagIDs returns the tag ids linked to an entity.
func (s *SQLiteStore) EntityTagIDs(ctx context.Context, id string) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT tag_id FROM entity_tags WHERE entity_id = ? ORDER BY tag_id`, id)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: entity tags")
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var tagID int64
		if err := rows.Scan(&tagID); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan entity tag")
		}
		out = append(out, tagID)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) ListForEnrichment(ctx context.Context, f EnrichmentFilter) ([]model.Entity, error) {
	if err := checkProvider(f); err != nil {
		return nil, err
	}
	where := []string{"source_url IS NOT NULL", "enrichment_status NOT IN (?, ?)"}
	args := []any{string(model.EnrichmentDuplicate), string(model.EnrichmentIgnored)}

	switch {
	case f.Linked:
		where = append(where, linkedToProvider)
		args = append(args, f.Provider)
	case !f.Force:
		where = append(where, notEnrichedFromProvider)
		args = append(args, f.Provider)
	}
	if f.OnlyMissingCoords {
		where = append(where, "(latitude IS NULL OR longitude IS NULL OR (latitude = 0 AND longitude = 0))")
	}

	query := `SELECT ` + sqliteEntityColumns + ` FROM entities WHERE ` + strings.Join(where, " AND ") +
		` ORDER BY created_at DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}
	return s.listEntities(ctx, query, args, "list for enrichment")
}

func (s *SQLiteStore) ListMissingCoordinates(ctx context.Context, limit int) ([]model.Entity, error) {
	query := `SELECT ` + sqliteEntityColumns + ` FROM entities
		WHERE address IS NOT NULL AND address <> ''
		AND (latitude IS NULL OR longitude IS NULL OR (latitude = 0 AND longitude = 0))
		ORDER BY created_at DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return s.listEntities(ctx, query, args, "list missing coordinates")
}

func (s *SQLiteStore) ListForReembedding(ctx context.Context, f ReembedFilter) ([]model.Entity, error) {
	query := `SELECT ` + sqliteEntityColumns + ` FROM entities
		WHERE description IS NOT NULL AND description <> ''
		AND (embedding IS NULL OR embedded_at IS NULL OR COALESCE(embedding_model, '') <> ? OR ` + enrichedSinceEmbedding + `)
		ORDER BY created_at DESC`
	args := []any{f.Model}
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}
	return s.listEntities(ctx, query, args, "list for re-embedding")
}

func (s *SQLiteStore) UpdateEmbedding(ctx context.Context, id string, embedding []float32, embeddingModel string, at time.Time) error {
	vec, err := encodeVector(embedding)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE entities SET embedding = ?, embedding_model = ?, embedded_at = ? WHERE id = ?`,
		vec, embeddingModel, at, id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update embedding %s", id)
	}
	return checkRowsAffected(res, "entity", id)
}

func encodeVector(v []float32) (*string, error) {
	if len(v) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal embedding")
	}
	str := string(data)
	return &str, nil
}

func (s *SQLiteStore) listEntities(ctx context.Context, query string, args []any, op string) ([]model.Entity, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: %s", op)
	}
	defer rows.Close()

	var out []model.Entity
	for rows.Next() {
		e, err := scanSQLiteEntity(rows)
		if err != nil {
			return nil, eris.Wrapf(err, "sqlite: scan %s", op)
		}
		out = append(out, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrapf(err, "sqlite: iterate %s", op)
	}
	rows.Close()
	return out, s.attachLinks(ctx, out)
}

// attachLinks loads the directory links of entities in one query.
func (s *SQLiteStore) attachLinks(ctx context.Context, entities []model.Entity) error {
	if len(entities) == 0 {
		return nil
	}
	query, args, err := sq.Select("entity_id", "provider", "external_id", "enriched_at").
		From("entity_external_ids").
		Where(sq.Eq{"entity_id": entityIDs(entities)}).
		ToSql()
	if err != nil {
		return eris.Wrap(err, "sqlite: build external ids")
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return eris.Wrap(err, "sqlite: load external ids")
	}
	defer rows.Close()

	var links []externalLink
	for rows.Next() {
		var (
			l          externalLink
			enrichedAt sql.NullTime
		)
		if err := rows.Scan(&l.EntityID, &l.Provider, &l.ExternalID, &enrichedAt); err != nil {
			return eris.Wrap(err, "sqlite: scan external id")
		}
		if enrichedAt.Valid {
			l.EnrichedAt = &enrichedAt.Time
		}
		links = append(links, l)
	}
	if err := rows.Err(); err != nil {
		return eris.Wrap(err, "sqlite: iterate external ids")
	}
	applyLinks(entities, links)
	return nil
}

func (s *SQLiteStore) UpdateEnrichment(ctx context.Context, id string, u EnrichmentUpdate) error {
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

	sets := []string{"enrichment_status = ?", "attributes = json_patch(attributes, ?)"}
	args := []any{string(u.Status), string(attrs)}
	if u.Address != "" {
		sets = append(sets, "address = ?")
		args = append(args, u.Address)
	}
	if u.Category != "" {
		sets = append(sets, "category = ?")
		args = append(args, u.Category)
	}
	if u.Latitude != nil && u.Longitude != nil {
		sets = append(sets, "latitude = ?", "longitude = ?")
		args = append(args, *u.Latitude, *u.Longitude)
	}
	args = append(args, id)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx, `UPDATE entities SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update enrichment %s", id)
	}
	if err := checkRowsAffected(res, "entity", id); err != nil {
		return err
	}

	if u.ExternalID != "" {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO entity_external_ids (entity_id, provider, external_id, enriched_at)
			 VALUES (?, ?, ?, ?)
			 ON CONFLICT (entity_id, provider) DO UPDATE SET
			   external_id = excluded.external_id,
			   enriched_at = excluded.enriched_at`,
			id, u.Provider, u.ExternalID, enrichedAt,
		)
		if isSQLiteUnique(err) {
			return eris.Wrapf(ErrConflict, "sqlite: %s id %s already linked", u.Provider, u.ExternalID)
		}
		if err != nil {
			return eris.Wrapf(err, "sqlite: link %s to %s", id, u.Provider)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit enrichment")
}

func (s *SQLiteStore) SetEnrichmentStatus(ctx context.Context, id string, status model.EnrichmentStatus) error {
	res, err := s.db.ExecContext(ctx, `UPDATE entities SET enrichment_status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: set enrichment status %s", id)
	}
	return checkRowsAffected(res, "entity", id)
}

func (s *SQLiteStore) MarkDuplicatesIgnored(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE entities SET enrichment_status = ? WHERE enrichment_status = ?`,
		string(model.EnrichmentIgnored), string(model.EnrichmentDuplicate),
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: mark duplicates ignored")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

func (s *SQLiteStore) UpdateCoordinates(ctx context.Context, id string, lat, lng float64) error {
	res, err := s.db.ExecContext(ctx, `UPDATE entities SET latitude = ?, longitude = ? WHERE id = ?`, lat, lng, id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update coordinates %s", id)
	}
	return checkRowsAffected(res, "entity", id)
}

func (s *SQLiteStore) DeleteImages(ctx context.Context, pathPrefix string) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM entity_images WHERE path LIKE ?`, pathPrefix+"%")
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: delete images %s", pathPrefix)
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

func (s *SQLiteStore) SaveImages(ctx context.Context, images []model.Image) error {
	for _, img := range images {
		if _, err := s.db.ExecContext(ctx,
			`INSERT INTO entity_images (path, entity_id, url, source) VALUES (?, ?, ?, ?)
			 ON CONFLICT (path) DO UPDATE SET url = excluded.url, source = excluded.source`,
			img.Path, img.EntityID, img.URL, img.Source,
		); err != nil {
			return eris.Wrapf(err, "sqlite: save image %s", img.Path)
		}
	}
	return nil
}

// ListImages returns the stored images under a path prefix.
func (s *SQLiteStore) ListImages(ctx context.Context, pathPrefix string) ([]model.Image, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT path, entity_id, url, COALESCE(source, '') FROM entity_images WHERE path LIKE ? ORDER BY path`,
		pathPrefix+"%",
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list images")
	}
	defer rows.Close()

	var out []model.Image
	for rows.Next() {
		var img model.Image
		if err := rows.Scan(&img.Path, &img.EntityID, &img.URL, &img.Source); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan image")
		}
		out = append(out, img)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) GetOrCreateTag(ctx context.Context, name string, tagType model.TagType) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO tags (name, type, slug) VALUES (?, ?, ?)
		 ON CONFLICT (name, type) DO UPDATE SET slug = excluded.slug
		 RETURNING id`,
		name, string(tagType), model.Slug(name),
	).Scan(&id)
	return id, eris.Wrapf(err, "sqlite: get or create tag %s/%s", tagType, name)
}

func (s *SQLiteStore) GetOrCreateNeighborhood(ctx context.Context, name string) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO neighborhoods (name) VALUES (?)
		 ON CONFLICT (name) DO UPDATE SET name = excluded.name
		 RETURNING id`,
		name,
	).Scan(&id)
	return id, eris.Wrapf(err, "sqlite: get or create neighborhood %s", name)
}

func (s *SQLiteStore) FindSimilar(ctx context.Context, embedding []float32, threshold float64, limit int) ([]SimilarMatch, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, embedding FROM entities WHERE embedding IS NOT NULL`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: find similar")
	}
	defer rows.Close()

	var matches []SimilarMatch
	for rows.Next() {
		var (
			m   SimilarMatch
			raw string
			vec []float32
		)
		if err := rows.Scan(&m.ID, &m.Name, &raw); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan similar")
		}
		if err := json.Unmarshal([]byte(raw), &vec); err != nil {
			return nil, eris.Wrapf(err, "sqlite: decode embedding %s", m.ID)
		}
		if m.Similarity = cosine(embedding, vec); m.Similarity >= threshold {
			matches = append(matches, m)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: iterate similar")
	}
	if limit <= 0 {
		limit = 1
	}
	return rankMatches(matches, limit), nil
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

func isSQLiteUnique(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		return se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE || se.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}

func scanSQLiteEntity(row scannable) (*model.Entity, error) {
	var (
		e            model.Entity
		neighborhood sql.NullInt64
		lat, lng     sql.NullFloat64
		embeddedAt   sql.NullTime
		attrs        string
		status       string
		scrapedAt    sql.NullTime
	)
	err := row.Scan(
		&e.ID, &e.Name, &e.NameJP, &e.Description, &e.Summary,
		&e.Category, &e.Subcategory, &neighborhood, &e.Address,
		&lat, &lng, &e.EmbeddingModel, &embeddedAt, &e.SourceURL,
		&e.SourceName, &e.Active, &attrs, &status, &scrapedAt, &e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if neighborhood.Valid {
		e.NeighborhoodID = &neighborhood.Int64
	}
	if lat.Valid && lng.Valid {
		e.Latitude, e.Longitude = &lat.Float64, &lng.Float64
	}
	e.EnrichmentStatus = model.EnrichmentStatus(status)
	if embeddedAt.Valid {
		e.EmbeddedAt = &embeddedAt.Time
	}
	if scrapedAt.Valid {
		e.ScrapedAt = scrapedAt.Time
	}
	if attrs != "" {
		if err := json.Unmarshal([]byte(attrs), &e.Attributes); err != nil {
			return nil, eris.Wrap(err, "unmarshal attributes")
		}
	}
	return &e, nil
}
