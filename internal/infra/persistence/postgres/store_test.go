package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"testing"

	"procurecore/internal/infra/persistence/postgres/testutil"
	"procurecore/pkg/domain"
)

func openStubStore(t *testing.T, state *testutil.State) *Store {
	t.Helper()
	restore := OverrideSQLOpen(func(driverName, dsn string) (*sql.DB, error) {
		if driverName != "pgx" {
			t.Fatalf("driver = %q, want pgx", driverName)
		}
		return testutil.Open(state)
	})
	t.Cleanup(restore)

	store, err := NewStore("postgres://stub/procurecore", nil)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestNewStoreCreatesStateTable(t *testing.T) {
	state := testutil.NewState()
	store := openStubStore(t, state)

	if store.DSN() != "postgres://stub/procurecore" {
		t.Fatalf("dsn = %q", store.DSN())
	}
	var sawCreate bool
	for _, stmt := range state.Statements() {
		if strings.Contains(stmt, "CREATE TABLE IF NOT EXISTS state") {
			sawCreate = true
		}
	}
	if !sawCreate {
		t.Fatalf("state table never created; statements: %v", state.Statements())
	}
}

func TestCommitPersistsSnapshotBuckets(t *testing.T) {
	state := testutil.NewState()
	store := openStubStore(t, state)

	if _, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.CreateCase(domain.Case{
			Base:   domain.Base{ID: "c-1"},
			Title:  "persisted",
			Method: domain.MethodPublicBidding,
			State:  domain.StateDraft,
		})
		return err
	}); err != nil {
		t.Fatalf("RunInTransaction: %v", err)
	}

	payload, ok := state.Bucket("cases")
	if !ok {
		t.Fatalf("cases bucket never written")
	}
	var cases map[string]domain.Case
	if err := json.Unmarshal(payload, &cases); err != nil {
		t.Fatalf("decode cases bucket: %v", err)
	}
	c, ok := cases["c-1"]
	if !ok || c.Title != "persisted" || c.Method != domain.MethodPublicBidding {
		t.Fatalf("persisted case = %+v", cases)
	}
	for _, bucket := range []string{"stage_records", "audit_entries", "idempotency", "audit_seq"} {
		if _, ok := state.Bucket(bucket); !ok {
			t.Fatalf("bucket %s never written", bucket)
		}
	}
}

func TestSeededBucketsHydrateOnOpen(t *testing.T) {
	seed, err := json.Marshal(map[string]domain.Case{
		"c-9": {
			Base:   domain.Base{ID: "c-9"},
			Title:  "from a previous process",
			Method: domain.MethodInfrastructure,
			State:  domain.StateNTPIssued,
		},
	})
	if err != nil {
		t.Fatalf("marshal seed: %v", err)
	}
	state := testutil.NewState()
	state.Seed("cases", seed)
	state.Seed("audit_seq", []byte("7"))

	store := openStubStore(t, state)
	c, ok := store.GetCase("c-9")
	if !ok {
		t.Fatalf("seeded case not hydrated")
	}
	if c.State != domain.StateNTPIssued {
		t.Fatalf("hydrated state = %s", c.State)
	}

	if _, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		entry, err := tx.AppendAuditEntry(domain.AuditEntry{ID: "a-1", CaseID: "c-9", Action: domain.AuditTransition})
		if err != nil {
			return err
		}
		if entry.Seq != 8 {
			t.Errorf("seq = %d, want 8 after hydrating counter", entry.Seq)
		}
		return nil
	}); err != nil {
		t.Fatalf("append: %v", err)
	}
}

func TestPingFailureSurfacesOnOpen(t *testing.T) {
	state := testutil.NewState()
	state.FailPing = true
	restore := OverrideSQLOpen(func(string, string) (*sql.DB, error) {
		return testutil.Open(state)
	})
	defer restore()

	if _, err := NewStore("postgres://stub/procurecore", nil); err == nil {
		t.Fatalf("expected ping failure")
	}
}

func TestDefaultDSNApplied(t *testing.T) {
	state := testutil.NewState()
	var gotDSN string
	restore := OverrideSQLOpen(func(_, dsn string) (*sql.DB, error) {
		gotDSN = dsn
		return testutil.Open(state)
	})
	defer restore()

	store, err := NewStore("", nil)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	defer store.Close()
	if gotDSN != DefaultDSN || store.DSN() != DefaultDSN {
		t.Fatalf("dsn = %q / %q", gotDSN, store.DSN())
	}
}
