package shell

import (
	"testing"

	"github.com/Unhackables/chainbase/dynamic"
)

// TestShellDatabaseLifecycle covers create/get/find/remove for named
// databases plus Modify's push-on-success path; the revert-on-error path
// is covered by TestShellModifyRevertsOnError.
func TestShellDatabaseLifecycle(t *testing.T) {
	sh, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("open shell: %v", err)
	}
	defer sh.Close()

	if _, ok := sh.FindDatabase("test"); ok {
		t.Fatalf("expected no database named test yet")
	}

	db, err := sh.CreateDatabase("test")
	if err != nil {
		t.Fatalf("create database: %v", err)
	}

	got, err := sh.GetDatabase("test")
	if err != nil || got != db {
		t.Fatalf("get database: %+v err=%v", got, err)
	}

	var balances *dynamic.Table
	err = sh.Modify(db, func(db *dynamic.Database) error {
		t, err := db.CreateTable("balances", dynamic.CompareInteger, dynamic.CompareUnsigned)
		if err != nil {
			return err
		}
		if _, _, err := t.Create(dynamic.KeyFromUint64(1), dynamic.KeyFromUint64(2), []byte("abc")); err != nil {
			return err
		}
		balances = t
		return nil
	})
	if err != nil {
		t.Fatalf("modify: %v", err)
	}

	// Outside any session: create a second record directly through the
	// table the Modify call established.
	rec2, id2, err := balances.Create(dynamic.KeyFromUint64(4), dynamic.KeyFromUint64(3), []byte("d"))
	if err != nil {
		t.Fatalf("create second record: %v", err)
	}
	if rec2.ID != id2 {
		t.Fatalf("expected rec2.ID == id2, got %d != %d", rec2.ID, id2)
	}

	byID, err := balances.GetByID(id2)
	if err != nil {
		t.Fatalf("get by id: %v", err)
	}
	byPrimary, ok := balances.FindByPrimary(dynamic.KeyFromUint64(4))
	if !ok {
		t.Fatalf("find by primary failed")
	}
	bySecondary, ok := balances.FindBySecondary(dynamic.KeyFromUint64(3))
	if !ok {
		t.Fatalf("find by secondary failed")
	}
	if byID.ID != id2 || byPrimary.ID != id2 || bySecondary.ID != id2 {
		t.Fatalf("expected all three lookups to agree on id %d, got byID=%d byPrimary=%d bySecondary=%d",
			id2, byID.ID, byPrimary.ID, bySecondary.ID)
	}
	if string(byID.Value) != "d" {
		t.Fatalf("expected value %q, got %q", "d", byID.Value)
	}

	if err := sh.RemoveDatabase("test"); err != nil {
		t.Fatalf("remove database: %v", err)
	}
	if _, ok := sh.FindDatabase("test"); ok {
		t.Fatalf("expected database removed")
	}
}

// TestShellModifyRevertsOnError ensures a mutator error drops the fanned
// session instead of leaving partial work committed.
func TestShellModifyRevertsOnError(t *testing.T) {
	sh, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("open shell: %v", err)
	}
	defer sh.Close()

	db, err := sh.CreateDatabase("test")
	if err != nil {
		t.Fatalf("create database: %v", err)
	}
	ledger, err := db.CreateTable("ledger", dynamic.CompareInteger, dynamic.CompareUnsigned)
	if err != nil {
		t.Fatalf("create table: %v", err)
	}

	err = sh.Modify(db, func(db *dynamic.Database) error {
		if _, _, err := ledger.Create(dynamic.KeyFromUint64(1), dynamic.KeyFromUint64(1), []byte("x")); err != nil {
			return err
		}
		return errBoom
	})
	if err != errBoom {
		t.Fatalf("expected errBoom, got %v", err)
	}

	if _, ok := ledger.FindByPrimary(dynamic.KeyFromUint64(1)); ok {
		t.Fatalf("expected record reverted after mutator error")
	}
}

var errBoom = &testError{"boom"}

type testError struct{ msg string }

func (e *testError) Error() string { return e.msg }
