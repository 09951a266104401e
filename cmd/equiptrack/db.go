package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/foxzi/equiptrack/internal/workspace"
)

var dbEmail string

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Manage a user's database files",
}

var dbListCmd = &cobra.Command{
	Use:   "list",
	Short: "List databases visible to a user",
	RunE:  runDBList,
}

var dbCreateCmd = &cobra.Command{
	Use:   "create [name]",
	Short: "Create an empty database",
	Args:  cobra.ExactArgs(1),
	RunE:  runDBCreate,
}

var dbDeleteCmd = &cobra.Command{
	Use:   "delete [name]",
	Short: "Delete a database",
	Args:  cobra.ExactArgs(1),
	RunE:  runDBDelete,
}

var dbRenameCmd = &cobra.Command{
	Use:   "rename [old] [new]",
	Short: "Rename a database",
	Args:  cobra.ExactArgs(2),
	RunE:  runDBRename,
}

func init() {
	dbCmd.PersistentFlags().StringVar(&dbEmail, "email", "", "User the databases belong to")
	dbCmd.MarkPersistentFlagRequired("email")

	dbCmd.AddCommand(dbListCmd)
	dbCmd.AddCommand(dbCreateCmd)
	dbCmd.AddCommand(dbDeleteCmd)
	dbCmd.AddCommand(dbRenameCmd)
}

func runDBList(cmd *cobra.Command, args []string) error {
	_, c, err := openComponents()
	if err != nil {
		return err
	}
	defer c.Close()

	t, err := c.Resolver.Resolve(context.Background(), dbEmail)
	if err != nil {
		return err
	}
	if len(t.Databases) == 0 {
		fmt.Println("No databases")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tSIZE\tMODIFIED")
	fmt.Fprintln(w, "----\t----\t--------")
	for _, name := range t.Databases {
		info, err := os.Stat(t.Path(name))
		if err != nil {
			fmt.Fprintf(w, "%s\t-\t-\n", name)
			continue
		}
		fmt.Fprintf(w, "%s\t%d\t%s\n", name, info.Size(), info.ModTime().Format("2006-01-02 15:04"))
	}
	return w.Flush()
}

func runDBCreate(cmd *cobra.Command, args []string) error {
	_, c, err := openComponents()
	if err != nil {
		return err
	}
	defer c.Close()

	ctx := context.Background()
	name, err := c.Resolver.CreateDatabase(ctx, dbEmail, args[0])
	if err != nil {
		return err
	}
	path, err := c.Resolver.SelectDatabase(ctx, dbEmail, name)
	if err != nil {
		return err
	}
	// Opening applies the schema
	db, err := c.Pool.Open(ctx, path)
	if err != nil {
		return err
	}
	db.LogAudit(ctx, dbEmail, workspace.ActionCreateDB, "Created "+name+" from the command line")

	fmt.Printf("Database %s created\n", name)
	return nil
}

func runDBDelete(cmd *cobra.Command, args []string) error {
	_, c, err := openComponents()
	if err != nil {
		return err
	}
	defer c.Close()
	c.Resolver.OnRemove(func(email, name, path string) {
		c.Pool.Evict(path)
		c.Sessions.ClearDatabase(context.Background(), email, name)
	})

	if err := c.Resolver.DeleteDatabase(context.Background(), dbEmail, args[0]); err != nil {
		return err
	}
	fmt.Printf("Database %s deleted\n", args[0])
	return nil
}

func runDBRename(cmd *cobra.Command, args []string) error {
	_, c, err := openComponents()
	if err != nil {
		return err
	}
	defer c.Close()
	c.Resolver.OnRemove(func(email, name, path string) {
		c.Pool.Evict(path)
		c.Sessions.ClearDatabase(context.Background(), email, name)
	})

	name, err := c.Resolver.RenameDatabase(context.Background(), dbEmail, args[0], args[1])
	if err != nil {
		return err
	}
	fmt.Printf("Database %s renamed to %s\n", args[0], name)
	return nil
}
