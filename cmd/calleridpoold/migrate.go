package main

import (
    "context"
    "database/sql"
    "fmt"

    _ "github.com/go-sql-driver/mysql"
    "github.com/spf13/cobra"

    "github.com/hamzaKhattat/callerid-pool/internal/poolstore"
)

func createMigrateCommand() *cobra.Command {
    migrateCmd := &cobra.Command{
        Use:   "migrate",
        Short: "Manage the Pool Store schema",
    }

    migrateCmd.AddCommand(
        &cobra.Command{
            Use:   "up",
            Short: "Apply pending migrations",
            RunE: func(cmd *cobra.Command, args []string) error {
                db, err := openMigrateDB()
                if err != nil {
                    return err
                }
                defer db.Close()
                if err := poolstore.RunMigrations(db); err != nil {
                    return fmt.Errorf("migration failed: %w", err)
                }
                fmt.Println(green("migrations applied"))
                return nil
            },
        },
        &cobra.Command{
            Use:   "down",
            Short: "Roll back one migration",
            RunE: func(cmd *cobra.Command, args []string) error {
                db, err := openMigrateDB()
                if err != nil {
                    return err
                }
                defer db.Close()
                if err := poolstore.RollbackMigrations(db); err != nil {
                    return fmt.Errorf("rollback failed: %w", err)
                }
                fmt.Println(yellow("rolled back one migration"))
                return nil
            },
        },
    )

    return migrateCmd
}

func openMigrateDB() (*sql.DB, error) {
    if err := loadAndInit(); err != nil {
        return nil, err
    }
    db, err := sql.Open(cfg.Database.Driver, cfg.Database.GetDSN())
    if err != nil {
        return nil, fmt.Errorf("failed to open database: %w", err)
    }
    if err := db.PingContext(context.Background()); err != nil {
        db.Close()
        return nil, fmt.Errorf("failed to connect to database: %w", err)
    }
    return db, nil
}
