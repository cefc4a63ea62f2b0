package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/joho/godotenv/autoload"

	"dogecrash/internal/database"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	if err := run(os.Args[1], os.Args[2:]); err != nil {
		log.Fatal(err)
	}
}

func run(command string, args []string) error {
	migrationsPath := envOr("MIGRATIONS_PATH", "./migrations")

	// create needs no database connection.
	if command == "create" {
		if len(args) < 1 {
			return fmt.Errorf("usage: migrate create <name>")
		}
		return createMigration(migrationsPath, args[0])
	}

	db, err := openDB()
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer db.Close()

	switch command {
	case "up":
		if err := database.RunMigrations(db, migrationsPath); err != nil {
			return fmt.Errorf("migrate up: %w", err)
		}
		log.Println("schema is up to date")

	case "down":
		if err := database.RollbackMigration(db, migrationsPath); err != nil {
			return fmt.Errorf("migrate down: %w", err)
		}
		log.Println("rolled back one migration")

	case "version":
		version, dirty, err := database.GetMigrationVersion(db, migrationsPath)
		if err != nil {
			return fmt.Errorf("read version: %w", err)
		}
		if dirty {
			log.Printf("version %d (dirty, fix the schema by hand before migrating further)", version)
		} else {
			log.Printf("version %d", version)
		}

	default:
		usage()
		return fmt.Errorf("unknown command %q", command)
	}
	return nil
}

func openDB() (*sql.DB, error) {
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable&search_path=%s",
		envOr("BLUEPRINT_DB_USERNAME", "postgres"),
		envOr("BLUEPRINT_DB_PASSWORD", "postgres"),
		envOr("BLUEPRINT_DB_HOST", "localhost"),
		envOr("BLUEPRINT_DB_PORT", "5432"),
		envOr("BLUEPRINT_DB_DATABASE", "dogecrash"),
		envOr("BLUEPRINT_DB_SCHEMA", "public"),
	)

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	return db, db.Ping()
}

// createMigration writes an empty up/down pair numbered after the highest
// migration already on disk.
func createMigration(dir, name string) error {
	version, err := nextVersion(dir)
	if err != nil {
		return err
	}

	upFile := fmt.Sprintf("%s/%06d_%s.up.sql", dir, version, name)
	downFile := fmt.Sprintf("%s/%06d_%s.down.sql", dir, version, name)

	if err := os.WriteFile(upFile, []byte("-- "+name+"\n"), 0644); err != nil {
		return err
	}
	if err := os.WriteFile(downFile, []byte("-- revert "+name+"\n"), 0644); err != nil {
		return err
	}

	log.Printf("created %s", upFile)
	log.Printf("created %s", downFile)
	return nil
}

func nextVersion(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}

	highest := 0
	for _, entry := range entries {
		prefix, _, ok := strings.Cut(entry.Name(), "_")
		if !ok {
			continue
		}
		if v, err := strconv.Atoi(prefix); err == nil && v > highest {
			highest = v
		}
	}
	return highest + 1, nil
}

func usage() {
	fmt.Println("manage the dogecrash Postgres schema (users, games, bets, transactions)")
	fmt.Println()
	fmt.Println("commands:")
	fmt.Println("  up              apply pending migrations")
	fmt.Println("  down            roll back the last migration")
	fmt.Println("  version         print the current schema version")
	fmt.Println("  create <name>   add an empty migration pair")
	fmt.Println()
	fmt.Println("connection comes from the BLUEPRINT_DB_* variables; MIGRATIONS_PATH")
	fmt.Println("overrides the default ./migrations directory.")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
