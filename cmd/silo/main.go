// silo is a small demo binary exercising both the static database façade
// and the schema-less shell façade: open a store, seed some rows, inspect
// them, exercise an undo session, and report what it did.
package main

import (
	"encoding/binary"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/Unhackables/chainbase/config"
	"github.com/Unhackables/chainbase/database"
	"github.com/Unhackables/chainbase/dynamic"
	"github.com/Unhackables/chainbase/index"
	"github.com/Unhackables/chainbase/logging"
	"github.com/Unhackables/chainbase/segment"
	"github.com/Unhackables/chainbase/shell"
)

type account struct {
	Owner   uint64
	Balance int64
}

func accountCodec() index.Codec[account] {
	return index.Codec[account]{
		Encode: func(a *account) ([]byte, error) {
			buf := make([]byte, 16)
			binary.LittleEndian.PutUint64(buf[0:8], a.Owner)
			binary.LittleEndian.PutUint64(buf[8:16], uint64(a.Balance))
			return buf, nil
		},
		Decode: func(data []byte) (account, error) {
			return account{
				Owner:   binary.LittleEndian.Uint64(data[0:8]),
				Balance: int64(binary.LittleEndian.Uint64(data[8:16])),
			}, nil
		},
	}
}

func main() {
	var (
		dir  = flag.String("dir", "./silo-data", "store directory")
		wipe = flag.Bool("wipe", false, "wipe the store directory before running")
	)
	flag.Parse()

	cfg := config.Load()
	logging.Init(cfg.LogLevel)
	log := logging.L()

	if *wipe {
		if err := os.RemoveAll(*dir); err != nil {
			fmt.Fprintf(os.Stderr, "wipe: %v\n", err)
			os.Exit(1)
		}
	}

	if err := runStatic(*dir); err != nil {
		log.Error("static demo failed", zap.Error(err))
		fmt.Fprintf(os.Stderr, "static demo: %v\n", err)
		os.Exit(1)
	}
	if err := runDynamic(*dir); err != nil {
		fmt.Fprintf(os.Stderr, "dynamic demo: %v\n", err)
		os.Exit(1)
	}
}

func runStatic(dir string) error {
	db, err := database.Open(dir+"/static", segment.ReadWrite, 8<<20, 4)
	if err != nil {
		return err
	}
	defer db.Close()

	accounts := index.New[account]("account", 1, 0, accountCodec(), nil)
	if err := database.AddIndex(db, accounts); err != nil {
		return err
	}

	_, id, err := database.Create(db, accounts, func(a *account) { a.Owner, a.Balance = 1, 100 })
	if err != nil {
		return err
	}
	fmt.Printf("static: created account %d with balance 100\n", id)

	sess := db.StartUndoSession(true)
	if err := database.Modify(db, accounts, id, func(a *account) { a.Balance = 50 }); err != nil {
		return err
	}
	got, _ := accounts.Get(id)
	fmt.Printf("static: balance inside session is now %d\n", got.Balance)
	sess.Drop()

	got, _ = accounts.Get(id)
	fmt.Printf("static: balance after dropping the session is back to %d\n", got.Balance)
	return nil
}

func runDynamic(dir string) error {
	sh, err := shell.Open(dir + "/dynamic")
	if err != nil {
		return err
	}
	defer sh.Close()

	db, err := sh.CreateDatabase("demo")
	if err != nil {
		return err
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
		return err
	}

	rec, id, err := balances.Create(dynamic.KeyFromUint64(4), dynamic.KeyFromUint64(3), []byte("d"))
	if err != nil {
		return err
	}
	fmt.Printf("dynamic: created record %d primary=4 secondary=3 value=%q\n", id, rec.Value)

	byPrimary, _ := balances.FindByPrimary(dynamic.KeyFromUint64(4))
	bySecondary, _ := balances.FindBySecondary(dynamic.KeyFromUint64(3))
	fmt.Printf("dynamic: lookups agree: byID=%d byPrimary=%d bySecondary=%d\n", id, byPrimary.ID, bySecondary.ID)
	return nil
}
