package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"videoconverter/models"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS conversion_jobs (
		id BIGSERIAL PRIMARY KEY,
		original_name TEXT NOT NULL,
		mime_type TEXT,
		size BIGINT,
		status TEXT NOT NULL DEFAULT 'pending',
		progress INTEGER DEFAULT 0,
		output_url TEXT,
		error TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS conversion_jobs_created_at_idx ON conversion_jobs (created_at DESC)`,
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS conversion_jobs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		original_name TEXT NOT NULL,
		mime_type TEXT,
		size INTEGER,
		status TEXT NOT NULL DEFAULT 'pending',
		progress INTEGER DEFAULT 0,
		output_url TEXT,
		error TEXT,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS conversion_jobs_created_at_idx ON conversion_jobs (created_at DESC)`,
}

const jobColumns = `id, original_name, mime_type, size, status, progress, output_url, error, created_at`

// DatabaseService is the relational JobStore, backed by PostgreSQL or SQLite.
type DatabaseService struct {
	db     *sql.DB
	driver string
}

func NewDatabaseService(driver, databaseURL string) (*DatabaseService, error) {
	driver = strings.ToLower(strings.TrimSpace(driver))

	switch driver {
	case DriverPostgres:
		db, err := sql.Open("postgres", databaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := db.Ping(); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to ping database: %w", err)
		}
		return &DatabaseService{db: db, driver: driver}, nil
	case DriverSQLite:
		return openSQLite(databaseURL)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

func openSQLite(path string) (*DatabaseService, error) {
	inMemory := path == ":memory:" || strings.Contains(path, "mode=memory")
	if !inMemory {
		if dir := filepath.Dir(path); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("ensure sqlite directory: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One connection serializes writers; with :memory: every connection
	// would otherwise see its own empty database.
	db.SetMaxOpenConns(1)

	pragmas := []string{"PRAGMA busy_timeout = 5000"}
	if !inMemory {
		pragmas = append(pragmas, "PRAGMA journal_mode=WAL")
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	return &DatabaseService{db: db, driver: DriverSQLite}, nil
}

// Migrate creates the conversion_jobs table when missing.
func (d *DatabaseService) Migrate(ctx context.Context) error {
	schema := postgresSchema
	if d.driver == DriverSQLite {
		schema = sqliteSchema
	}
	for _, stmt := range schema {
		if _, err := d.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

func (d *DatabaseService) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

func (d *DatabaseService) Create(ctx context.Context, input models.NewConversionJob) (*models.ConversionJob, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}

	createdAt := time.Now().UTC().Truncate(time.Microsecond)
	query := d.rebind(`INSERT INTO conversion_jobs (original_name, mime_type, size, status, progress, created_at)
		VALUES (?, ?, ?, ?, 0, ?) RETURNING id`)

	var id int64
	err := d.db.QueryRowContext(ctx, query,
		input.OriginalName,
		nullableString(input.MimeType),
		nullableInt64(input.Size),
		models.StatusPending,
		createdAt,
	).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}

	return &models.ConversionJob{
		ID:           id,
		OriginalName: input.OriginalName,
		MimeType:     input.MimeType,
		Size:         input.Size,
		Status:       models.StatusPending,
		Progress:     0,
		CreatedAt:    createdAt,
	}, nil
}

func (d *DatabaseService) Get(ctx context.Context, id int64) (*models.ConversionJob, error) {
	row := d.db.QueryRowContext(ctx, d.rebind(`SELECT `+jobColumns+` FROM conversion_jobs WHERE id = ?`), id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

func (d *DatabaseService) List(ctx context.Context) ([]*models.ConversionJob, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT `+jobColumns+` FROM conversion_jobs ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	jobs := make([]*models.ConversionJob, 0)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func (d *DatabaseService) UpdateStatus(ctx context.Context, id int64, status models.Status, outputURL string, errMsg string) error {
	var set string
	args := []interface{}{status}

	switch status {
	case models.StatusPending:
		return nil
	case models.StatusProcessing:
		set = `status = ?, output_url = NULL, error = NULL`
	case models.StatusCompleted:
		set = `status = ?, output_url = ?, error = NULL, progress = 100`
		args = append(args, outputURL)
	case models.StatusFailed:
		set = `status = ?, error = ?, output_url = NULL`
		args = append(args, errMsg)
	default:
		return fmt.Errorf("update status: unknown status %q", status)
	}

	from := status.AllowedFrom()
	query := `UPDATE conversion_jobs SET ` + set + ` WHERE id = ? AND status IN (` + placeholders(len(from)) + `)`
	args = append(args, id)
	for _, s := range from {
		args = append(args, s)
	}

	if _, err := d.db.ExecContext(ctx, d.rebind(query), args...); err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	return nil
}

func (d *DatabaseService) UpdateProgress(ctx context.Context, id int64, progress int) error {
	if progress < 0 || progress > 100 {
		return nil
	}
	query := `UPDATE conversion_jobs SET progress = ?
		WHERE id = ? AND status = ? AND (progress IS NULL OR progress < ?)`
	if _, err := d.db.ExecContext(ctx, d.rebind(query), progress, id, models.StatusProcessing, progress); err != nil {
		return fmt.Errorf("update progress: %w", err)
	}
	return nil
}

func (d *DatabaseService) Delete(ctx context.Context, id int64) error {
	if _, err := d.db.ExecContext(ctx, d.rebind(`DELETE FROM conversion_jobs WHERE id = ?`), id); err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	return nil
}

func (d *DatabaseService) DeleteAll(ctx context.Context) error {
	if _, err := d.db.ExecContext(ctx, `DELETE FROM conversion_jobs`); err != nil {
		return fmt.Errorf("delete all jobs: %w", err)
	}
	return nil
}

func (d *DatabaseService) Close() error {
	return d.db.Close()
}

// rebind rewrites ? placeholders into $n for PostgreSQL.
func (d *DatabaseService) rebind(query string) string {
	if d.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row rowScanner) (*models.ConversionJob, error) {
	var (
		job       models.ConversionJob
		mimeType  sql.NullString
		size      sql.NullInt64
		status    string
		progress  sql.NullInt64
		outputURL sql.NullString
		errMsg    sql.NullString
		createdAt dbTime
	)
	if err := row.Scan(&job.ID, &job.OriginalName, &mimeType, &size, &status, &progress, &outputURL, &errMsg, &createdAt); err != nil {
		return nil, err
	}

	parsed, err := models.ParseStatus(status)
	if err != nil {
		return nil, err
	}
	job.Status = parsed
	job.Progress = int(progress.Int64)
	job.CreatedAt = createdAt.Time
	if mimeType.Valid {
		job.MimeType = stringPtr(mimeType.String)
	}
	if size.Valid {
		v := size.Int64
		job.Size = &v
	}
	if outputURL.Valid {
		job.OutputURL = stringPtr(outputURL.String)
	}
	if errMsg.Valid {
		job.Error = stringPtr(errMsg.String)
	}
	return &job, nil
}

// dbTime accepts timestamps as time.Time or as the text forms SQLite may return.
type dbTime struct {
	time.Time
}

var timeLayouts = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

func (t *dbTime) Scan(value interface{}) error {
	switch v := value.(type) {
	case time.Time:
		t.Time = v.UTC()
		return nil
	case string:
		return t.parse(v)
	case []byte:
		return t.parse(string(v))
	case nil:
		t.Time = time.Time{}
		return nil
	default:
		return fmt.Errorf("unsupported timestamp type %T", value)
	}
}

func (t *dbTime) parse(s string) error {
	for _, layout := range timeLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed.UTC()
			return nil
		}
	}
	return fmt.Errorf("unrecognized timestamp %q", s)
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func nullableString(s *string) interface{} {
	if s == nil {
		return nil
	}
	return *s
}

func nullableInt64(v *int64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}
