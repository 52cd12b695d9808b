// Command filedl-admin manages the object registry directly, without going
// through the server. It opens the same sqlite database the server uses;
// sqlite's locking makes that safe while the server is running.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	cli "github.com/urfave/cli/v3"

	"filedl/internal/store"
)

var databaseFlag = &cli.StringFlag{
	Name:    "database-dir",
	Usage:   "Directory holding the object registry database",
	Value:   "/database",
	Sources: cli.EnvVars("FILEDL_DATABASE_DIR"),
}

func main() {
	app := &cli.Command{
		Name:  "filedl-admin",
		Usage: "Manage filedl objects",
		Commands: []*cli.Command{
			{
				Name:  "add",
				Usage: "Register a new object",
				Flags: []cli.Flag{
					databaseFlag,
					&cli.StringFlag{
						Name:     "name",
						Usage:    "Display name of the object",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "linked-path",
						Usage: "Relative path under the linked root; omit for an owned object",
					},
					&cli.StringFlag{
						Name:  "key",
						Usage: "Unlisted access key; omit for a public object",
					},
					&cli.DurationFlag{
						Name:  "expires",
						Usage: "Lifetime before the object expires (for example 72h); omit for no expiry",
					},
				},
				Action: addObject,
			},
			{
				Name:  "list",
				Usage: "List registered objects",
				Flags: []cli.Flag{
					databaseFlag,
					&cli.BoolFlag{
						Name:  "all",
						Usage: "Include unlisted and expired objects",
					},
				},
				Action: listObjects,
			},
			{
				Name:      "remove",
				Usage:     "Remove an object from the registry (files are not touched)",
				ArgsUsage: "<object-id>",
				Flags:     []cli.Flag{databaseFlag},
				Action:    removeObject,
			},
			{
				Name:      "set-expiry",
				Usage:     "Change an object's expiry",
				ArgsUsage: "<object-id>",
				Flags: []cli.Flag{
					databaseFlag,
					&cli.DurationFlag{
						Name:  "expires",
						Usage: "New lifetime from now; omit to clear the expiry",
					},
				},
				Action: setExpiry,
			},
			{
				Name:   "prune",
				Usage:  "Delete expired objects from the registry",
				Flags:  []cli.Flag{databaseFlag},
				Action: pruneObjects,
			},
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func openStore(ctx context.Context, cmd *cli.Command) (*store.Store, error) {
	dbPath := filepath.Join(cmd.String("database-dir"), "filedl.db")
	st, err := store.New(ctx, dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open registry at %s: %w", dbPath, err)
	}
	return st, nil
}

func addObject(ctx context.Context, cmd *cli.Command) error {
	st, err := openStore(ctx, cmd)
	if err != nil {
		return err
	}
	defer st.Close()

	obj := store.Object{
		Name:        cmd.String("name"),
		Ownership:   store.OwnershipOwned,
		UnlistedKey: cmd.String("key"),
	}
	if linked := cmd.String("linked-path"); linked != "" {
		obj.Ownership = store.OwnershipLinked
		obj.LinkedPath = linked
	}
	if ttl := cmd.Duration("expires"); ttl > 0 {
		expires := time.Now().Add(ttl)
		obj.ExpiresAt = &expires
	}

	created, err := st.Put(ctx, obj)
	if err != nil {
		return err
	}

	fmt.Printf("Created object %s (%s)\n", created.ID, created.Ownership)
	if created.Unlisted() {
		fmt.Printf("  Access key: %s\n", created.UnlistedKey)
	}
	if created.ExpiresAt != nil {
		fmt.Printf("  Expires:    %s\n", created.ExpiresAt.Format(time.RFC3339))
	}
	return nil
}

func listObjects(ctx context.Context, cmd *cli.Command) error {
	st, err := openStore(ctx, cmd)
	if err != nil {
		return err
	}
	defer st.Close()

	objects, err := st.List(ctx, cmd.Bool("all"))
	if err != nil {
		return err
	}
	if len(objects) == 0 {
		fmt.Println("No objects registered")
		return nil
	}

	now := time.Now()
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tTYPE\tVISIBILITY\tEXPIRES")
	for _, obj := range objects {
		visibility := "listed"
		if obj.Unlisted() {
			visibility = "unlisted"
		}
		expires := "-"
		if obj.ExpiresAt != nil {
			expires = obj.ExpiresAt.Format(time.RFC3339)
			if obj.Expired(now) {
				expires += " (expired)"
			}
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", obj.ID, obj.Name, obj.Ownership, visibility, expires)
	}
	return w.Flush()
}

func removeObject(ctx context.Context, cmd *cli.Command) error {
	id := cmd.Args().First()
	if id == "" {
		return fmt.Errorf("object ID required")
	}

	st, err := openStore(ctx, cmd)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.Remove(ctx, id); err != nil {
		return err
	}
	fmt.Printf("Removed object %s\n", id)
	return nil
}

func setExpiry(ctx context.Context, cmd *cli.Command) error {
	id := cmd.Args().First()
	if id == "" {
		return fmt.Errorf("object ID required")
	}

	st, err := openStore(ctx, cmd)
	if err != nil {
		return err
	}
	defer st.Close()

	var expires *time.Time
	if ttl := cmd.Duration("expires"); ttl > 0 {
		at := time.Now().Add(ttl)
		expires = &at
	}

	if err := st.SetExpiry(ctx, id, expires); err != nil {
		return err
	}
	if expires != nil {
		fmt.Printf("Object %s now expires at %s\n", id, expires.Format(time.RFC3339))
	} else {
		fmt.Printf("Object %s no longer expires\n", id)
	}
	return nil
}

func pruneObjects(ctx context.Context, cmd *cli.Command) error {
	st, err := openStore(ctx, cmd)
	if err != nil {
		return err
	}
	defer st.Close()

	n, err := st.PruneExpired(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Pruned %d expired objects\n", n)
	return nil
}
