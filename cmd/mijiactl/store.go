package main

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"mijia-gateway/internal/advert"
	"mijia-gateway/internal/db"
	"mijia-gateway/internal/devices"
)

var (
	migrateCmd = &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending device store migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(conn *sql.DB) error { return nil })
		},
	}

	devicesCmd = &cobra.Command{
		Use:   "devices",
		Short: "Manage the SQLite device store",
	}

	devicesImportCmd = &cobra.Command{
		Use:   "import <file>",
		Short: "Import a devices file, replacing the topics of listed devices",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := devices.ReadFile(args[0])
			if err != nil {
				return err
			}
			return withStore(cmd.Context(), func(conn *sql.DB) error {
				n, err := devices.NewStore(conn).Import(cmd.Context(), list)
				if err != nil {
					return err
				}
				logrus.WithFields(logrus.Fields{"file": args[0], "devices": n}).Info("devices imported")
				return nil
			})
		},
	}

	devicesListCmd = &cobra.Command{
		Use:   "list",
		Short: "List stored devices and their topics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(conn *sql.DB) error {
				list, err := devices.NewStore(conn).List(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				for _, d := range list {
					fmt.Fprintln(out, formatDevice(d))
				}
				return nil
			})
		},
	}

	devicesDeleteCmd = &cobra.Command{
		Use:   "delete <address>",
		Short: "Remove a device and its topics",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(conn *sql.DB) error {
				ok, err := devices.NewStore(conn).Delete(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("device %s not found", args[0])
				}
				logrus.WithField("address", args[0]).Info("device deleted")
				return nil
			})
		},
	}
)

func init() {
	devicesCmd.AddCommand(devicesImportCmd, devicesListCmd, devicesDeleteCmd)
}

// withStore opens the device store, migrates it and runs fn.
func withStore(ctx context.Context, fn func(conn *sql.DB) error) error {
	conn, err := db.Open(dbPath, nil)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close(conn) }()

	applied, err := db.Migrate(ctx, conn)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	if len(applied) > 0 {
		logrus.WithFields(logrus.Fields{"db": dbPath, "applied": applied}).Info("device store migrated")
	}
	return fn(conn)
}

// formatDevice renders "ADDR\tname\treading=topic ..." with readings in
// publish order.
func formatDevice(d devices.Device) string {
	var pairs []string
	for _, name := range advert.ReadingNames {
		if topic, ok := d.Topics[name]; ok {
			pairs = append(pairs, string(name)+"="+topic)
		}
	}
	return d.Address + "\t" + d.Name + "\t" + strings.Join(pairs, " ")
}
