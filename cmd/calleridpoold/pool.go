package main

import (
    "context"
    "fmt"
    "os"
    "strings"
    "time"

    "github.com/fatih/color"
    _ "github.com/go-sql-driver/mysql"
    "github.com/olekukonko/tablewriter"
    "github.com/spf13/cobra"

    "github.com/hamzaKhattat/callerid-pool/internal/db"
    "github.com/hamzaKhattat/callerid-pool/internal/poolstore"
)

var (
    green  = color.New(color.FgGreen).SprintFunc()
    red    = color.New(color.FgRed).SprintFunc()
    yellow = color.New(color.FgYellow).SprintFunc()
)

// cliStore opens a one-off database connection for CLI commands.
func cliStore(ctx context.Context) (*poolstore.Store, *db.DB, error) {
    if err := loadAndInit(); err != nil {
        return nil, nil, err
    }

    conn, err := db.Open(ctx, db.Config{
        Driver:          cfg.Database.Driver,
        Host:            cfg.Database.Host,
        Port:            cfg.Database.Port,
        Username:        cfg.Database.Username,
        Password:        cfg.Database.Password,
        Database:        cfg.Database.Database,
        Charset:         cfg.Database.Charset,
        MaxOpenConns:    cfg.Database.MaxOpenConns,
        MaxIdleConns:    cfg.Database.MaxIdleConns,
        ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
        RetryAttempts:   cfg.Database.RetryAttempts,
        RetryDelay:      cfg.Database.RetryDelay,
    })
    if err != nil {
        return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
    }
    return poolstore.NewStore(conn.DB), conn, nil
}

func createPoolCommands() *cobra.Command {
    poolCmd := &cobra.Command{
        Use:   "pool",
        Short: "Manage the caller-ID pool",
    }

    poolCmd.AddCommand(
        createPoolAddCommand(),
        createPoolListCommand(),
        createPoolDisableCommand(),
        createPoolStatsCommand(),
    )

    return poolCmd
}

func createPoolAddCommand() *cobra.Command {
    var (
        areaCode     string
        carrier      string
        hourlyCap    int
        dailyCap     int
    )

    cmd := &cobra.Command{
        Use:   "add <number>",
        Short: "Add a caller ID to the pool",
        Args:  cobra.ExactArgs(1),
        RunE: func(cmd *cobra.Command, args []string) error {
            ctx := context.Background()
            store, db, err := cliStore(ctx)
            if err != nil {
                return err
            }
            defer db.Close()

            if areaCode == "" {
                digits := args[0]
                if len(digits) == 11 && digits[0] == '1' {
                    digits = digits[1:]
                }
                if len(digits) >= 10 {
                    areaCode = digits[:3]
                }
            }

            c := &poolstore.CallerID{
                Number:    args[0],
                AreaCode:  areaCode,
                Carrier:   carrier,
                Active:    true,
                HourlyCap: hourlyCap,
                DailyCap:  dailyCap,
            }
            if err := store.Create(ctx, c); err != nil {
                return fmt.Errorf("failed to add caller ID: %w", err)
            }

            fmt.Printf("%s Caller ID '%s' added to pool\n", green("+"), args[0])
            return nil
        },
    }

    cmd.Flags().StringVar(&areaCode, "area-code", "", "Area code (first 3 digits, derived if omitted)")
    cmd.Flags().StringVar(&carrier, "carrier", "", "Carrier label")
    cmd.Flags().IntVar(&hourlyCap, "hourly-cap", 20, "Maximum allocations per UTC clock hour")
    cmd.Flags().IntVar(&dailyCap, "daily-cap", 200, "Maximum allocations per UTC calendar day")

    return cmd
}

func createPoolListCommand() *cobra.Command {
    var activeOnly bool

    cmd := &cobra.Command{
        Use:   "list",
        Short: "List caller IDs in the pool",
        RunE: func(cmd *cobra.Command, args []string) error {
            ctx := context.Background()
            store, db, err := cliStore(ctx)
            if err != nil {
                return err
            }
            defer db.Close()

            list, err := store.List(ctx)
            if err != nil {
                return fmt.Errorf("failed to list caller IDs: %w", err)
            }

            table := tablewriter.NewWriter(os.Stdout)
            table.SetHeader([]string{"Number", "Area Code", "Carrier", "Active", "Hourly Cap", "Daily Cap", "Last Used"})

            for _, c := range list {
                if activeOnly && !c.Active {
                    continue
                }
                active := red("no")
                if c.Active {
                    active = green("yes")
                }
                lastUsed := "never"
                if c.LastUsedAt != nil {
                    lastUsed = c.LastUsedAt.Format(time.RFC3339)
                }
                table.Append([]string{
                    c.Number, c.AreaCode, c.Carrier, active,
                    fmt.Sprintf("%d", c.HourlyCap), fmt.Sprintf("%d", c.DailyCap), lastUsed,
                })
            }
            table.Render()
            return nil
        },
    }

    cmd.Flags().BoolVar(&activeOnly, "active-only", false, "Show only active caller IDs")
    return cmd
}

func createPoolDisableCommand() *cobra.Command {
    return &cobra.Command{
        Use:   "disable <number>",
        Short: "Deactivate a caller ID",
        Args:  cobra.ExactArgs(1),
        RunE: func(cmd *cobra.Command, args []string) error {
            ctx := context.Background()
            store, db, err := cliStore(ctx)
            if err != nil {
                return err
            }
            defer db.Close()

            if err := store.Deactivate(ctx, args[0]); err != nil {
                return fmt.Errorf("failed to disable caller ID: %w", err)
            }
            fmt.Printf("%s Caller ID '%s' deactivated\n", yellow("-"), args[0])
            return nil
        },
    }
}

func createPoolStatsCommand() *cobra.Command {
    return &cobra.Command{
        Use:   "stats",
        Short: "Show pool utilization summary",
        RunE: func(cmd *cobra.Command, args []string) error {
            ctx := context.Background()
            store, db, err := cliStore(ctx)
            if err != nil {
                return err
            }
            defer db.Close()

            list, err := store.List(ctx)
            if err != nil {
                return fmt.Errorf("failed to list caller IDs: %w", err)
            }

            var active, inactive, neverUsed int
            byAreaCode := map[string]int{}
            for _, c := range list {
                if c.Active {
                    active++
                } else {
                    inactive++
                }
                if c.LastUsedAt == nil {
                    neverUsed++
                }
                byAreaCode[c.AreaCode]++
            }

            fmt.Printf("Total: %d  Active: %s  Inactive: %s  Never used: %d\n",
                len(list), green(active), red(inactive), neverUsed)

            table := tablewriter.NewWriter(os.Stdout)
            table.SetHeader([]string{"Area Code", "Count"})
            for code, count := range byAreaCode {
                label := code
                if strings.TrimSpace(label) == "" {
                    label = "(none)"
                }
                table.Append([]string{label, fmt.Sprintf("%d", count)})
            }
            table.Render()
            return nil
        },
    }
}
