package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/foxzi/equiptrack/internal/tenant"
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "User and role management",
}

var userListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all users",
	RunE:  runUserList,
}

var userShowCmd = &cobra.Command{
	Use:   "show [email]",
	Short: "Show a user with the databases visible to them",
	Args:  cobra.ExactArgs(1),
	RunE:  runUserShow,
}

var userSetRoleCmd = &cobra.Command{
	Use:   "set-role [email] [admin|user|guest]",
	Short: "Set the role of a user",
	Args:  cobra.ExactArgs(2),
	RunE:  runUserSetRole,
}

var userGrantCmd = &cobra.Command{
	Use:   "grant [email] [database...]",
	Short: "Grant access to databases (use \"all\" for every file)",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runUserGrant,
}

var userRevokeCmd = &cobra.Command{
	Use:   "revoke [email] [database...]",
	Short: "Revoke access to databases",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runUserRevoke,
}

func init() {
	userCmd.AddCommand(userListCmd)
	userCmd.AddCommand(userShowCmd)
	userCmd.AddCommand(userSetRoleCmd)
	userCmd.AddCommand(userGrantCmd)
	userCmd.AddCommand(userRevokeCmd)
}

func runUserList(cmd *cobra.Command, args []string) error {
	_, c, err := openComponents()
	if err != nil {
		return err
	}
	defer c.Close()

	users, err := c.Roles.ListUsers(context.Background())
	if err != nil {
		return err
	}
	if len(users) == 0 {
		fmt.Println("No users")
		return nil
	}

	emails := make([]string, 0, len(users))
	for email := range users {
		emails = append(emails, email)
	}
	sort.Strings(emails)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "EMAIL\tROLE\tALLOWED DBS")
	fmt.Fprintln(w, "-----\t----\t-----------")
	for _, email := range emails {
		u := users[email]
		fmt.Fprintf(w, "%s\t%s\t%s\n", email, u.Role, formatAllowed(u.AllowedDBs))
	}
	return w.Flush()
}

func runUserShow(cmd *cobra.Command, args []string) error {
	_, c, err := openComponents()
	if err != nil {
		return err
	}
	defer c.Close()

	t, err := c.Resolver.Resolve(context.Background(), args[0])
	if err != nil {
		return err
	}

	fmt.Printf("Email:       %s\n", t.Email)
	fmt.Printf("Directory:   %s\n", t.Dir)
	fmt.Printf("Role:        %s\n", t.Role)
	fmt.Printf("Allowed DBs: %s\n", formatAllowed(t.AllowedDBs))
	if t.Created {
		fmt.Println("(record created)")
	}
	fmt.Println("Databases:")
	if len(t.Databases) == 0 {
		fmt.Println("  (none)")
	}
	for _, name := range t.Databases {
		fmt.Printf("  %s\n", name)
	}
	return nil
}

func runUserSetRole(cmd *cobra.Command, args []string) error {
	role, err := tenant.ParseRole(args[1])
	if err != nil {
		return err
	}

	_, c, err := openComponents()
	if err != nil {
		return err
	}
	defer c.Close()

	rec, err := c.Resolver.SetRole(context.Background(), args[0], role)
	if err != nil {
		return err
	}
	fmt.Printf("User %s is now %s (allowed: %s)\n", args[0], rec.Role, formatAllowed(rec.AllowedDBs))
	return nil
}

func runUserGrant(cmd *cobra.Command, args []string) error {
	_, c, err := openComponents()
	if err != nil {
		return err
	}
	defer c.Close()

	rec, err := c.Resolver.Grant(context.Background(), args[0], args[1:]...)
	if err != nil {
		return err
	}
	fmt.Printf("User %s allowed: %s\n", args[0], formatAllowed(rec.AllowedDBs))
	return nil
}

func runUserRevoke(cmd *cobra.Command, args []string) error {
	_, c, err := openComponents()
	if err != nil {
		return err
	}
	defer c.Close()

	rec, err := c.Resolver.Revoke(context.Background(), args[0], args[1:]...)
	if err != nil {
		return err
	}
	fmt.Printf("User %s allowed: %s\n", args[0], formatAllowed(rec.AllowedDBs))
	return nil
}

func formatAllowed(dbs []string) string {
	if len(dbs) == 0 {
		return "-"
	}
	return strings.Join(dbs, ", ")
}
