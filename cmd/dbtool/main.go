package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func main() {
	if len(os.Args) < 2 {
		fatalf("usage: dbtool <overlap-smoke|rls-smoke|seed-demo> [args]")
	}

	switch os.Args[1] {
	case "overlap-smoke":
		overlapSmoke(os.Args[2:])
	case "rls-smoke":
		rlsSmoke(os.Args[2:])
	case "seed-demo":
		seedDemo(os.Args[2:])
	default:
		fatalf("unknown subcommand: %s", os.Args[1])
	}
}

// inTx dials url and hands fn a transaction. commit=false keeps smoke
// checks side-effect free by rolling everything back.
func inTx(url string, commit bool, fn func(ctx context.Context, tx pgx.Tx)) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn, err := pgx.Connect(ctx, url)
	if err != nil {
		fatal(err)
	}
	defer conn.Close(context.Background())

	tx, err := conn.Begin(ctx)
	if err != nil {
		fatal(err)
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	fn(ctx, tx)

	if commit {
		if err := tx.Commit(ctx); err != nil {
			fatal(err)
		}
	}
}

// expectReject runs stmt under a savepoint and returns the error it raised.
// A nil return means the statement unexpectedly succeeded.
func expectReject(ctx context.Context, tx pgx.Tx, stmt func() error) error {
	if _, err := tx.Exec(ctx, `SAVEPOINT sp_probe;`); err != nil {
		fatal(err)
	}
	err := stmt()
	if _, rbErr := tx.Exec(ctx, `ROLLBACK TO SAVEPOINT sp_probe;`); rbErr != nil {
		fatal(rbErr)
	}
	return err
}

func urlFlag(name string, args []string, extra func(*flag.FlagSet)) string {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	var url string
	fs.StringVar(&url, "url", "", "postgres connection string")
	if extra != nil {
		extra(fs)
	}
	if err := fs.Parse(args); err != nil {
		fatal(err)
	}
	if url == "" {
		fatalf("missing --url")
	}
	return url
}

// overlapSmoke proves the exclusion constraint rejects overlapping windows
// for the same subject and admits adjacent ones, against a temp table shaped
// like rates.assignments.
func overlapSmoke(args []string) {
	url := urlFlag("overlap-smoke", args, nil)

	inTx(url, false, func(ctx context.Context, tx pgx.Tx) {
		if _, err := tx.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS btree_gist;`); err != nil {
			fatal(err)
		}
		if _, err := tx.Exec(ctx, `
CREATE TEMP TABLE overlap_smoke (
    assignment_id uuid PRIMARY KEY DEFAULT gen_random_uuid(),
    tenant_id     uuid NOT NULL,
    subject_kind  text NOT NULL,
    subject_key   text NOT NULL,
    valid_from    date NOT NULL,
    valid_until   date,
    status        text NOT NULL DEFAULT 'ACTIVE',
    EXCLUDE USING gist (
        tenant_id WITH =,
        subject_kind WITH =,
        subject_key WITH =,
        daterange(valid_from, COALESCE(valid_until, 'infinity'::date), '[]') WITH &&
    ) WHERE (status = 'ACTIVE')
);`); err != nil {
			fatal(err)
		}

		tenant := "00000000-0000-0000-0000-00000000000a"
		insert := func(from string, until any) error {
			_, err := tx.Exec(ctx,
				`INSERT INTO overlap_smoke (tenant_id, subject_kind, subject_key, valid_from, valid_until)
				 VALUES ($1, 'rate', 'g1/d1', $2::date, $3::date);`, tenant, from, until)
			return err
		}

		if err := insert("2024-01-01", "2024-06-30"); err != nil {
			fatal(err)
		}

		err := expectReject(ctx, tx, func() error { return insert("2024-06-30", nil) })
		if err == nil {
			fatalf("expected exclusion violation on overlapping window")
		}
		var pgErr *pgconn.PgError
		if !errors.As(err, &pgErr) || pgErr.Code != "23P01" {
			fatalf("expected 23P01 exclusion_violation, got: %v", err)
		}

		if err := insert("2024-07-01", nil); err != nil {
			fatalf("adjacent window rejected: %v", err)
		}

		var count int
		if err := tx.QueryRow(ctx, `SELECT count(*) FROM overlap_smoke;`).Scan(&count); err != nil {
			fatal(err)
		}
		if count != 2 {
			fatalf("expected 2 rows, got %d", count)
		}
	})

	fmt.Println("overlap-smoke: OK")
}

// rlsSmoke proves tenant isolation fails closed when app.current_tenant is
// unset and rejects cross-tenant writes.
func rlsSmoke(args []string) {
	url := urlFlag("rls-smoke", args, nil)

	inTx(url, false, func(ctx context.Context, tx pgx.Tx) {
		stmts := []string{
			`CREATE TEMP TABLE rls_smoke (tenant_id uuid NOT NULL, val text NOT NULL);`,
			`ALTER TABLE rls_smoke ENABLE ROW LEVEL SECURITY;`,
			`ALTER TABLE rls_smoke FORCE ROW LEVEL SECURITY;`,
			`CREATE POLICY tenant_isolation ON rls_smoke
USING (tenant_id = current_setting('app.current_tenant')::uuid)
WITH CHECK (tenant_id = current_setting('app.current_tenant')::uuid);`,
		}
		for _, stmt := range stmts {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				fatal(err)
			}
		}

		err := expectReject(ctx, tx, func() error {
			_, err := tx.Exec(ctx, `SELECT count(*) FROM rls_smoke;`)
			return err
		})
		if err == nil {
			fatalf("expected fail-closed error when app.current_tenant is missing")
		}

		tenantA := "00000000-0000-0000-0000-00000000000a"
		tenantB := "00000000-0000-0000-0000-00000000000b"
		if _, err := tx.Exec(ctx, `SELECT set_config('app.current_tenant', $1, true);`, tenantA); err != nil {
			fatal(err)
		}
		if _, err := tx.Exec(ctx, `INSERT INTO rls_smoke (tenant_id, val) VALUES ($1, 'a');`, tenantA); err != nil {
			fatal(err)
		}

		err = expectReject(ctx, tx, func() error {
			_, err := tx.Exec(ctx, `INSERT INTO rls_smoke (tenant_id, val) VALUES ($1, 'b');`, tenantB)
			return err
		})
		if err == nil {
			fatalf("expected RLS rejection on cross-tenant insert")
		}

		var count int
		if err := tx.QueryRow(ctx, `SELECT count(*) FROM rls_smoke;`).Scan(&count); err != nil {
			fatal(err)
		}
		if count != 1 {
			fatalf("expected count=1 under tenant A, got %d", count)
		}
	})

	fmt.Println("rls-smoke: OK")
}

// seedDemo loads a small set of rate cards and one role grant so a fresh
// database has something to resolve against.
func seedDemo(args []string) {
	var tenant string
	url := urlFlag("seed-demo", args, func(fs *flag.FlagSet) {
		fs.StringVar(&tenant, "tenant", "", "tenant id (uuid)")
	})
	if tenant == "" {
		fatalf("missing --tenant")
	}

	type seed struct {
		kind, key, value, from string
		until                  any
	}
	seeds := []seed{
		{"rate", "g1/d1", `{"hourly_rate":"25.00","base_salary":"3500.00"}`, "2024-01-01", "2024-06-30"},
		{"rate", "g1/d1", `{"hourly_rate":"30.00","base_salary":"4000.00"}`, "2024-07-01", nil},
		{"rate", "g2/d1", `{"hourly_rate":"35.00","base_salary":"4800.00"}`, "2024-01-01", nil},
		{"role", "rate-viewer", `{"permissions":["rates.assignments:read","rates.ratecards:read"]}`, "2024-01-01", nil},
	}

	inTx(url, true, func(ctx context.Context, tx pgx.Tx) {
		if _, err := tx.Exec(ctx, `SELECT set_config('app.current_tenant', $1, true);`, tenant); err != nil {
			fatal(err)
		}
		for _, s := range seeds {
			if _, err := tx.Exec(ctx,
				`INSERT INTO rates.assignments (assignment_id, tenant_id, subject_kind, subject_key, value, valid_from, valid_until)
				 VALUES (gen_random_uuid(), $1, $2, $3, $4::jsonb, $5::date, $6::date);`,
				tenant, s.kind, s.key, s.value, s.from, s.until); err != nil {
				fatal(err)
			}
		}
	})

	fmt.Printf("seed-demo: %d assignments for tenant %s\n", len(seeds), tenant)
}

func fatal(err error) {
	if err == nil {
		os.Exit(1)
	}
	fatalf("%v", err)
}

func fatalf(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
