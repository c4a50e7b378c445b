package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/angelmondragon/storefront-backend/internal/bootstrap"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/migrate"
)

const serviceName = "migrate"

type options struct {
	dir     string
	name    string
	version string
}

// sourceCommands only touch the migrations directory and never open a database.
var sourceCommands = map[string]func(opts options) error{
	"create": func(opts options) error {
		if opts.name == "" {
			return errors.New("-name is required")
		}
		path, err := migrate.CreateSQLMigration(opts.dir, opts.name)
		if err != nil {
			return err
		}
		fmt.Println("created", path)
		return nil
	},
	"validate": func(opts options) error {
		if err := migrate.ValidateDir(opts.dir); err != nil {
			return err
		}
		fmt.Println("migrations ok")
		return nil
	},
}

var databaseCommands = map[string]func(ctx context.Context, m *migrate.Migrator, opts options) error{
	"up": func(ctx context.Context, m *migrate.Migrator, _ options) error {
		applied, err := m.Up(ctx)
		fmt.Println("applied", applied, "migrations")
		return err
	},
	"down": func(ctx context.Context, m *migrate.Migrator, _ options) error {
		return m.Down(ctx)
	},
	"status": func(ctx context.Context, m *migrate.Migrator, _ options) error {
		statuses, err := m.Status(ctx)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "VERSION\tSTATE\tAPPLIED AT\tFILE")
		for _, st := range statuses {
			applied := "-"
			if !st.AppliedAt.IsZero() {
				applied = st.AppliedAt.Format(time.RFC3339)
			}
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", st.Source.Version, st.State, applied, st.Source.Path)
		}
		return w.Flush()
	},
	"version": func(ctx context.Context, m *migrate.Migrator, opts options) error {
		if opts.version == "" {
			current, err := m.Version(ctx)
			fmt.Println("current version", current)
			return err
		}
		return m.To(ctx, opts.version)
	},
}

func main() {
	cmd := flag.String("cmd", "up", "up|down|status|version|create|validate")
	var opts options
	flag.StringVar(&opts.dir, "dir", migrate.DefaultDir, "migrations directory used by create and validate")
	flag.StringVar(&opts.name, "name", "", "migration name for -cmd=create")
	flag.StringVar(&opts.version, "version", "", "target version (YYYYMMDDHHMMSS) for -cmd=version; omit to print the current one")
	flag.Parse()

	if run, ok := sourceCommands[*cmd]; ok {
		exitOn(*cmd, run(opts))
		return
	}
	run, ok := databaseCommands[*cmd]
	if !ok {
		exitOn(*cmd, fmt.Errorf("unknown command %q", *cmd))
	}

	cfg, logg := bootstrap.Init(serviceName)
	if cfg.Store.Backend != config.StoreBackendSQL {
		exitOn(*cmd, fmt.Errorf("needs %s=%s", config.EnvStoreBackend, config.StoreBackendSQL))
	}

	ctx := bootstrap.Context(cfg, logg, serviceName, map[string]any{"cmd": *cmd})
	client, err := db.New(ctx, cfg.DB, cfg.FeatureFlags, logg)
	bootstrap.Must(ctx, logg, "database", err)
	defer client.Close()

	conn, err := client.DB().DB()
	bootstrap.Must(ctx, logg, "sql handle", err)
	migrator, err := migrate.New(conn, client.Driver())
	bootstrap.Must(ctx, logg, "migrator", err)

	ctx = logg.WithField(ctx, "dialect", migrate.Dialect(client.Driver()))
	if err := run(ctx, migrator, opts); err != nil {
		logg.Error(ctx, "migration command failed", err)
		client.Close()
		os.Exit(1)
	}
	logg.Info(ctx, "migration command finished")
}

func exitOn(cmd string, err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "%s: %v\n", cmd, err)
	os.Exit(1)
}
