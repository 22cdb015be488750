package main

import (
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"facegate/internal/util/timezone"

	"github.com/spf13/cobra"
)

var usersQuery string

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Manage enrolled identities",
}

var usersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List enrolled identities",
	Args:  cobra.NoArgs,
	RunE:  runUsersList,
}

var usersRenameCmd = &cobra.Command{
	Use:   "rename <id> <name>",
	Short: "Rename an identity",
	Args:  cobra.ExactArgs(2),
	RunE:  runUsersRename,
}

var usersDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete an identity and retrain the model",
	Args:  cobra.ExactArgs(1),
	RunE:  runUsersDelete,
}

func init() {
	rootCmd.AddCommand(usersCmd)
	usersCmd.AddCommand(usersListCmd, usersRenameCmd, usersDeleteCmd)
	usersListCmd.Flags().StringVarP(&usersQuery, "query", "q", "", "Filter by name (case-insensitive substring)")
}

const timeLayout = "2006-01-02 15:04:05"

func formatOptional(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return timezone.Format(*t, timeLayout)
}

func parseIdentityID(arg string) (int, error) {
	id, err := strconv.Atoi(arg)
	if err != nil || id < 0 {
		return 0, fmt.Errorf("invalid id %q", arg)
	}
	return id, nil
}

func runUsersList(cmd *cobra.Command, args []string) error {
	a, err := openRegistry()
	if err != nil {
		return err
	}
	defer a.close()

	users := a.registry.Search(usersQuery)
	if len(users) == 0 {
		fmt.Println("No identities found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tREGISTERED\tUPDATED\tLAST VERIFIED")
	for _, u := range users {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", u.ID, u.Name,
			timezone.Format(u.RegisteredAt, timeLayout),
			formatOptional(u.UpdatedAt),
			formatOptional(u.LastVerified))
	}
	return w.Flush()
}

func runUsersRename(cmd *cobra.Command, args []string) error {
	id, err := parseIdentityID(args[0])
	if err != nil {
		return err
	}

	a, err := openRegistry()
	if err != nil {
		return err
	}
	defer a.close()

	identity, err := a.registry.Rename(id, args[1])
	if err != nil {
		return err
	}
	fmt.Printf("Renamed identity %d to %q\n", identity.ID, identity.Name)
	return nil
}

func runUsersDelete(cmd *cobra.Command, args []string) error {
	id, err := parseIdentityID(args[0])
	if err != nil {
		return err
	}

	a, err := openRegistry()
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.registry.Delete(id); err != nil {
		return err
	}
	fmt.Printf("Deleted identity %d (%d remaining)\n", id, a.registry.Len())
	return nil
}
