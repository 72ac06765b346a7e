package seq

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hms/hms/internal/platform/db"
)

type queryable interface {
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// Source names the column that stores identifiers for a tag. It is used to
// seed a fresh counter from identifiers already present in the table.
type Source struct {
	Table  string
	Column string
}

// DefaultSources maps every tag to the column holding its identifiers.
var DefaultSources = map[Tag]Source{
	Patient:     {Table: "patient", Column: "patient_id"},
	Appointment: {Table: "appointment", Column: "appointment_id"},
	Invoice:     {Table: "bill", Column: "bill_number"},
}

type pgGenerator struct {
	pool    *pgxpool.Pool
	loc     *time.Location
	sources map[Tag]Source
}

// NewPGGenerator returns a Generator backed by the id_sequence table. The
// increment runs on the transaction bound to ctx, so a rolled back insert
// also rolls back its number.
func NewPGGenerator(pool *pgxpool.Pool, loc *time.Location) Generator {
	if loc == nil {
		loc = time.Local
	}
	return &pgGenerator{pool: pool, loc: loc, sources: DefaultSources}
}

func (g *pgGenerator) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return g.pool
}

func (g *pgGenerator) Next(ctx context.Context, tag Tag, at time.Time) (string, error) {
	src, ok := g.sources[tag]
	if !ok {
		return "", fmt.Errorf("seq: unknown tag %q", tag)
	}
	at = at.In(g.loc)
	prefix := Prefix(tag, at)

	var n int
	err := g.conn(ctx).QueryRow(ctx, nextSQL(src), string(tag), Period(at), prefix+"%").Scan(&n)
	if err != nil {
		return "", fmt.Errorf("seq: next %s: %w", prefix, err)
	}
	return Format(tag, at, n), nil
}

// nextSQL increments the (tag, period) counter. The row-level lock taken by
// ON CONFLICT DO UPDATE serializes concurrent creators on the same period.
func nextSQL(src Source) string {
	return fmt.Sprintf(`
		INSERT INTO id_sequence (tag, period, last_value)
		VALUES ($1, $2, (SELECT COUNT(*) FROM %s WHERE %s LIKE $3) + 1)
		ON CONFLICT (tag, period) DO UPDATE SET last_value = id_sequence.last_value + 1
		RETURNING last_value`, src.Table, src.Column)
}
