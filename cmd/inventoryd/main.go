package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/DarkarBlays/inventario/internal/daemon"
	"github.com/DarkarBlays/inventario/internal/instance"
	"github.com/DarkarBlays/inventario/internal/lock"
	"github.com/DarkarBlays/inventario/internal/store"
	"go.uber.org/fx"
)

func main() {
	instanceFlag := flag.String("instance", "", "instance name (overrides config default)")
	migrateOnly := flag.Bool("migrate-only", false, "apply schema migrations and exit")
	flag.Parse()

	name := instance.Resolve(*instanceFlag)
	if err := instance.ValidateName(name); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if *migrateOnly {
		if err := migrate(name); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	app := fx.New(
		daemon.Module(daemon.Params{Instance: name}),
	)

	app.Run()
}

func migrate(name string) error {
	if err := instance.EnsureDir(name); err != nil {
		return err
	}
	lk, err := lock.Acquire(instance.Dir(name))
	if err != nil {
		return err
	}
	defer func() { _ = lk.Release() }()

	db, err := store.Open(instance.DBPath(name))
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	result, err := db.Migrate()
	if err != nil {
		return err
	}
	fmt.Printf("schema at version %d (changed: %v)\n", result.Version, result.Changed)
	return nil
}
