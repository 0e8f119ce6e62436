package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"stays-service/models"
	"stays-service/utils"

	"github.com/lib/pq"
)

// PostgresStore handles storing listings in PostgreSQL
type PostgresStore struct {
	db        *sql.DB
	logger    *utils.Logger
	retention time.Duration
	now       func() time.Time
}

// NewPostgresStore opens a connection pool and pings the DB
func NewPostgresStore(connStr string, retention time.Duration, logger *utils.Logger) (*PostgresStore, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open DB: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Minute * 5)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping DB: %w", err)
	}

	logger.Info("Connected to PostgreSQL successfully")
	return NewPostgresStoreFromDB(db, retention, logger), nil
}

// NewPostgresStoreFromDB wraps an existing handle; tests pass a sqlmock DB.
func NewPostgresStoreFromDB(db *sql.DB, retention time.Duration, logger *utils.Logger) *PostgresStore {
	return &PostgresStore{db: db, logger: logger, retention: retention, now: time.Now}
}

// CreateTable creates the stays table if it doesn't exist, with indexes
func (s *PostgresStore) CreateTable(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS stays (
		id           SERIAL PRIMARY KEY,
		source       VARCHAR(32)  NOT NULL,
		identity_key TEXT         NOT NULL,
		name         TEXT         NOT NULL,
		description  TEXT         NOT NULL DEFAULT '',
		type         VARCHAR(16)  NOT NULL,
		address      TEXT         NOT NULL DEFAULT '',
		city         TEXT         NOT NULL DEFAULT '',
		lat          DOUBLE PRECISION NOT NULL,
		lon          DOUBLE PRECISION NOT NULL,
		rating       DOUBLE PRECISION,
		price        TEXT         NOT NULL DEFAULT 'N/A',
		amenities    TEXT[]       NOT NULL DEFAULT '{}',
		images       TEXT[]       NOT NULL DEFAULT '{}',
		source_url   TEXT         NOT NULL DEFAULT '',
		created_at   TIMESTAMPTZ  NOT NULL DEFAULT NOW(),
		last_updated TIMESTAMPTZ  NOT NULL DEFAULT NOW(),
		UNIQUE (source, identity_key)
	);

	CREATE INDEX IF NOT EXISTS idx_stays_last_updated ON stays (last_updated);
	CREATE INDEX IF NOT EXISTS idx_stays_source       ON stays (source);
	`
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}
	s.logger.Info("Table 'stays' is ready")
	return nil
}

const upsertStaySQL = `
	INSERT INTO stays (source, identity_key, name, description, type, address, city,
		lat, lon, rating, price, amenities, images, source_url, created_at, last_updated)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $15)
	ON CONFLICT (source, identity_key) DO UPDATE SET
		name         = EXCLUDED.name,
		description  = EXCLUDED.description,
		type         = EXCLUDED.type,
		address      = EXCLUDED.address,
		city         = EXCLUDED.city,
		lat          = EXCLUDED.lat,
		lon          = EXCLUDED.lon,
		rating       = COALESCE(EXCLUDED.rating, stays.rating),
		price        = EXCLUDED.price,
		source_url   = EXCLUDED.source_url,
		amenities    = stays.amenities || ARRAY(
			SELECT DISTINCT x FROM unnest(EXCLUDED.amenities) x WHERE x <> ALL(stays.amenities)),
		images       = stays.images || ARRAY(
			SELECT DISTINCT x FROM unnest(EXCLUDED.images) x WHERE x <> ALL(stays.images)),
		last_updated = EXCLUDED.last_updated
	RETURNING (xmax = 0) AS inserted`

// UpsertListings runs one statement per listing outside a transaction so a
// failing row does not roll back the others.
func (s *PostgresStore) UpsertListings(ctx context.Context, listings []*models.Listing, now time.Time) UpsertResult {
	var res UpsertResult
	if len(listings) == 0 {
		return res
	}

	stmt, err := s.db.PrepareContext(ctx, upsertStaySQL)
	if err != nil {
		res.Err = fmt.Errorf("failed to prepare statement: %w", err)
		return res
	}
	defer stmt.Close()

	for _, l := range listings {
		if err := ctx.Err(); err != nil {
			res.Err = err
			break
		}
		var rating sql.NullFloat64
		if l.Rating != nil {
			rating = sql.NullFloat64{Float64: *l.Rating, Valid: true}
		}
		var inserted bool
		err := stmt.QueryRowContext(ctx,
			string(l.Source),
			l.IdentityKey,
			l.Name,
			l.Description,
			string(l.Type),
			l.Address,
			l.City,
			l.Location.Lat,
			l.Location.Lon,
			rating,
			l.Price,
			pq.Array(dedupe(l.Amenities)),
			pq.Array(dedupe(l.Images)),
			l.SourceURL,
			now,
		).Scan(&inserted)
		if err != nil {
			s.logger.Warn("Skipping upsert for '%s': %v", l.Name, err)
			res.Failed = append(res.Failed, models.MergeFailure{IdentityKey: l.IdentityKey, Error: err.Error()})
			continue
		}
		if inserted {
			res.Inserted++
		} else {
			res.Modified++
		}
	}

	s.logger.Debug("Upserted %d/%d listings into PostgreSQL", res.Inserted+res.Modified, len(listings))
	return res
}

const selectStaysSQL = `
	SELECT source, identity_key, name, description, type, address, city, lat, lon,
		rating, price, amenities, images, source_url, created_at, last_updated
	FROM stays
	WHERE source = $1 AND (address ILIKE $2 OR city ILIKE $2) AND last_updated > $3
	ORDER BY last_updated DESC, identity_key`

// FindListings returns unexpired listings in scope, newest first
func (s *PostgresStore) FindListings(ctx context.Context, q ListingQuery) ([]*models.Listing, error) {
	cutoff := s.now().Add(-s.retention)
	rows, err := s.db.QueryContext(ctx, selectStaysSQL, string(q.Source), likePattern(q.City), cutoff)
	if err != nil {
		return nil, fmt.Errorf("query stays: %w", err)
	}
	defer rows.Close()

	var out []*models.Listing
	for rows.Next() {
		var (
			l      models.Listing
			source string
			typ    string
			rating sql.NullFloat64
		)
		if err := rows.Scan(
			&source, &l.IdentityKey, &l.Name, &l.Description, &typ, &l.Address, &l.City,
			&l.Location.Lat, &l.Location.Lon, &rating, &l.Price,
			pq.Array(&l.Amenities), pq.Array(&l.Images), &l.SourceURL, &l.CreatedAt, &l.LastUpdated,
		); err != nil {
			return nil, fmt.Errorf("scan stay: %w", err)
		}
		l.Source = models.SourceKind(source)
		l.Type = models.ListingType(typ)
		if rating.Valid {
			r := rating.Float64
			l.Rating = &r
		}
		out = append(out, &l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stays: %w", err)
	}
	return out, nil
}

// DeleteListings removes every listing in scope
func (s *PostgresStore) DeleteListings(ctx context.Context, q ListingQuery) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM stays WHERE source = $1 AND (address ILIKE $2 OR city ILIKE $2)`,
		string(q.Source), likePattern(q.City))
	if err != nil {
		return 0, fmt.Errorf("delete stays: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete stays: %w", err)
	}
	return int(n), nil
}

// PurgeExpired deletes rows past the retention window. Run by the scheduler.
func (s *PostgresStore) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM stays WHERE last_updated <= $1`, now.Add(-s.retention))
	if err != nil {
		return 0, fmt.Errorf("purge stays: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge stays: %w", err)
	}
	return int(n), nil
}

// Close closes the database connection
func (s *PostgresStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// likePattern wraps a query in % after escaping LIKE metacharacters
func likePattern(city string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(strings.TrimSpace(city)) + "%"
}

func dedupe(in []string) []string {
	return unionStrings(nil, in)
}
