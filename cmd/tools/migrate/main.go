package main

import (
	"errors"
	"flag"
	"log"

	migrate "github.com/golang-migrate/migrate/v4"

	"github.com/noah-isme/tuition-ledger/internal/app"
	"github.com/noah-isme/tuition-ledger/internal/config"
)

func main() {
	var (
		direction = flag.String("direction", "up", "up, down or version")
		steps     = flag.Int("steps", 0, "number of migrations to apply; 0 applies all (up) or one (down)")
		force     = flag.Int("force", -1, "force the schema version without running migrations")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	m, err := app.NewMigrator(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer func() {
		if srcErr, dbErr := m.Close(); srcErr != nil || dbErr != nil {
			log.Printf("close migrate: %v", errors.Join(srcErr, dbErr))
		}
	}()

	if *force >= 0 {
		if err := m.Force(*force); err != nil {
			log.Fatalf("force version %d: %v", *force, err)
		}
		log.Printf("forced schema version %d", *force)
		return
	}

	switch *direction {
	case "up":
		if *steps > 0 {
			err = m.Steps(*steps)
		} else {
			err = app.RunMigrations(m)
		}
	case "down":
		n := *steps
		if n <= 0 {
			n = 1
		}
		err = m.Steps(-n)
	case "version":
	default:
		log.Fatalf("unknown direction %q", *direction)
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		log.Fatalf("migrate %s: %v", *direction, err)
	}

	version, dirty, err := m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		log.Println("no migrations applied")
	case err != nil:
		log.Fatalf("read version: %v", err)
	default:
		log.Printf("schema version %d (dirty=%t)", version, dirty)
	}
}
