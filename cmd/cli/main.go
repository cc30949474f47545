package main

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/aryan0dhankhar/datingapp/internal/handler"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		apiURL      string
		cookieName  string
		sessionPath string
		client      *apiClient
	)

	rootCmd := &cobra.Command{
		Use:          "datingapp",
		Short:        "Command line client for the datingapp REST API",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			client = newAPIClient(apiURL, cookieName, sessionPath)
		},
	}
	rootCmd.PersistentFlags().StringVar(&apiURL, "api", defaultAPIURL(), "API base URL (env DATINGAPP_API)")
	rootCmd.PersistentFlags().StringVar(&cookieName, "cookie-name", "profileId", "session cookie name")
	rootCmd.PersistentFlags().StringVar(&sessionPath, "session-file", defaultSessionPath(), "where the session token is kept")

	c := func() *apiClient { return client }
	rootCmd.AddCommand(newProfileCmd(c), newRelationCmd(c))
	return rootCmd
}

func newProfileCmd(client func() *apiClient) *cobra.Command {
	profileCmd := &cobra.Command{Use: "profile", Short: "Register, sign in and manage profiles"}

	var reg struct{ name, email, password, open, closed string }
	registerCmd := &cobra.Command{
		Use:   "register",
		Short: "Create a profile and sign in",
		RunE: func(cmd *cobra.Command, args []string) error {
			var p handler.ProfileResponse
			if _, err := client().call(http.MethodPost, "/api/profiles/register", map[string]string{
				"name": reg.name, "email": reg.email, "password": reg.password,
				"openInfo": reg.open, "closedInfo": reg.closed,
			}, &p); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Registered profile %d (%s)\n", p.ID, p.Email)
			return nil
		},
	}
	registerCmd.Flags().StringVar(&reg.name, "name", "", "display name")
	registerCmd.Flags().StringVar(&reg.email, "email", "", "email address")
	registerCmd.Flags().StringVar(&reg.password, "password", "", "password")
	registerCmd.Flags().StringVar(&reg.open, "open", "", "info visible to everyone")
	registerCmd.Flags().StringVar(&reg.closed, "closed", "", "info visible to approved contacts")
	_ = registerCmd.MarkFlagRequired("name")
	_ = registerCmd.MarkFlagRequired("email")
	_ = registerCmd.MarkFlagRequired("password")

	var login struct{ email, password string }
	loginCmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with email and password",
		RunE: func(cmd *cobra.Command, args []string) error {
			var p handler.ProfileResponse
			if _, err := client().call(http.MethodPost, "/api/profiles/login", map[string]string{
				"email": login.email, "password": login.password,
			}, &p); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Logged in as %s (profile %d)\n", p.Name, p.ID)
			return nil
		},
	}
	loginCmd.Flags().StringVar(&login.email, "email", "", "email address")
	loginCmd.Flags().StringVar(&login.password, "password", "", "password")
	_ = loginCmd.MarkFlagRequired("email")
	_ = loginCmd.MarkFlagRequired("password")

	logoutCmd := &cobra.Command{
		Use:   "logout",
		Short: "End the current session",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := client().call(http.MethodPost, "/api/profiles/logout", nil, nil)
			if err != nil {
				_ = client().clearSession()
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "✓ Logged out")
			return nil
		},
	}

	meCmd := &cobra.Command{
		Use:   "me",
		Short: "Show your own profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			var p handler.ProfileResponse
			if _, err := client().call(http.MethodGet, "/api/profiles/me", nil, &p); err != nil {
				return err
			}
			printProfile(cmd.OutOrStdout(), p)
			return nil
		},
	}

	getCmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Show a profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			var p handler.ProfileResponse
			if _, err := client().call(http.MethodGet, "/api/profiles/"+id, nil, &p); err != nil {
				return err
			}
			printProfile(cmd.OutOrStdout(), p)
			return nil
		},
	}

	var list struct {
		page, size int
		keyword    string
	}
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List profiles page by page",
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{}
			q.Set("page", strconv.Itoa(list.page))
			if list.size > 0 {
				q.Set("size", strconv.Itoa(list.size))
			}
			if list.keyword != "" {
				q.Set("keyword", list.keyword)
			}
			return listProfiles(cmd.OutOrStdout(), client(), "/api/profiles/all?"+q.Encode())
		},
	}
	listCmd.Flags().IntVar(&list.page, "page", 0, "zero-based page number")
	listCmd.Flags().IntVar(&list.size, "size", 0, "page size (server default when 0)")
	listCmd.Flags().StringVar(&list.keyword, "keyword", "", "filter by open info")

	approvedCmd := &cobra.Command{
		Use:   "approved",
		Short: "List your approved contacts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return listProfiles(cmd.OutOrStdout(), client(), "/api/profiles/all/approved")
		},
	}

	var upd struct{ name, email, password, open, closed string }
	updateCmd := &cobra.Command{
		Use:   "update",
		Short: "Change fields of your profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]string{}
			for flag, value := range map[string]string{
				"name": upd.name, "email": upd.email, "password": upd.password,
				"open": upd.open, "closed": upd.closed,
			} {
				if cmd.Flags().Changed(flag) {
					body[jsonField(flag)] = value
				}
			}
			if len(body) == 0 {
				return errors.New("nothing to update")
			}
			var p handler.ProfileResponse
			if _, err := client().call(http.MethodPost, "/api/profiles/update", body, &p); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "✓ Profile updated")
			printProfile(cmd.OutOrStdout(), p)
			return nil
		},
	}
	updateCmd.Flags().StringVar(&upd.name, "name", "", "display name")
	updateCmd.Flags().StringVar(&upd.email, "email", "", "email address")
	updateCmd.Flags().StringVar(&upd.password, "password", "", "new password")
	updateCmd.Flags().StringVar(&upd.open, "open", "", "info visible to everyone")
	updateCmd.Flags().StringVar(&upd.closed, "closed", "", "info visible to approved contacts")

	var del struct{ password string }
	deleteCmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete your profile and all its relations",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := client().call(http.MethodDelete, "/api/profiles/delete", map[string]string{"password": del.password}, nil); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "✓ Profile deleted")
			return nil
		},
	}
	deleteCmd.Flags().StringVar(&del.password, "password", "", "current password")
	_ = deleteCmd.MarkFlagRequired("password")

	profileCmd.AddCommand(registerCmd, loginCmd, logoutCmd, meCmd, getCmd, listCmd, approvedCmd, updateCmd, deleteCmd)
	return profileCmd
}

func newRelationCmd(client func() *apiClient) *cobra.Command {
	relationCmd := &cobra.Command{Use: "relation", Short: "Like profiles and answer likes"}

	likeCmd := &cobra.Command{
		Use:   "like <profile-id>",
		Short: "Like a profile; liking someone who liked you makes a match",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			var res handler.LikeResponse
			if _, err := client().call(http.MethodPost, "/api/relations/like/"+id, nil, &res); err != nil {
				return err
			}
			if res.Created {
				fmt.Fprintf(cmd.OutOrStdout(), "✓ Liked profile %s\n", id)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "✓ It's a match with profile %s\n", id)
			}
			return nil
		},
	}

	decide := func(verb string) *cobra.Command {
		return &cobra.Command{
			Use:   verb + " <initiator-id>",
			Short: "Answer a pending like: " + verb,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := parseID(args[0])
				if err != nil {
					return err
				}
				var rel handler.RelationResponse
				if _, err := client().call(http.MethodPost, "/api/relations/"+verb+"/"+id, nil, &rel); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "✓ Relation %d is now %s\n", rel.ID, rel.State)
				return nil
			},
		}
	}

	deleteCmd := &cobra.Command{
		Use:   "delete <relation-id>",
		Short: "Delete a rejected relation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if _, err := client().call(http.MethodDelete, "/api/relations/delete/"+id, nil, nil); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Relation %s deleted\n", id)
			return nil
		},
	}

	var filter struct{ state, role string }
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List your relations",
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{}
			if filter.state != "" {
				q.Set("state", filter.state)
			}
			if filter.role != "" {
				q.Set("role", filter.role)
			}
			var rels []handler.RelationResponse
			_, err := client().call(http.MethodGet, "/api/relations/all?"+q.Encode(), nil, &rels)
			if errors.Is(err, errNoContent) {
				fmt.Fprintln(cmd.OutOrStdout(), "No relations")
				return nil
			}
			if err != nil {
				return err
			}
			printRelations(cmd.OutOrStdout(), rels)
			return nil
		},
	}
	listCmd.Flags().StringVar(&filter.state, "state", "", "PENDING, APPROVED or REJECTED")
	listCmd.Flags().StringVar(&filter.role, "role", "", "initiator or aim")

	overviewCmd := &cobra.Command{
		Use:   "overview",
		Short: "Show matches, pending likes and rejections",
		RunE: func(cmd *cobra.Command, args []string) error {
			var ov handler.OverviewResponse
			if _, err := client().call(http.MethodGet, "/api/relations/overview", nil, &ov); err != nil {
				return err
			}
			printOverview(cmd.OutOrStdout(), ov)
			return nil
		},
	}

	relationCmd.AddCommand(likeCmd, decide("approve"), decide("reject"), deleteCmd, listCmd, overviewCmd)
	return relationCmd
}

func listProfiles(out io.Writer, client *apiClient, path string) error {
	var profiles []handler.ProfileResponse
	_, err := client.call(http.MethodGet, path, nil, &profiles)
	if errors.Is(err, errNoContent) {
		fmt.Fprintln(out, "No profiles")
		return nil
	}
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tOPEN INFO\tCLOSED INFO")
	for _, p := range profiles {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", p.ID, p.Name, p.OpenInfo, p.ClosedInfo)
	}
	return w.Flush()
}

func printProfile(out io.Writer, p handler.ProfileResponse) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "ID\t%d\n", p.ID)
	fmt.Fprintf(w, "Name\t%s\n", p.Name)
	if p.Email != "" {
		fmt.Fprintf(w, "Email\t%s\n", p.Email)
	}
	fmt.Fprintf(w, "Open info\t%s\n", p.OpenInfo)
	if p.ClosedInfo != "" {
		fmt.Fprintf(w, "Closed info\t%s\n", p.ClosedInfo)
	}
	_ = w.Flush()
}

func printRelations(out io.Writer, rels []handler.RelationResponse) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tINITIATOR\tAIM\tSTATE\tUPDATED")
	for _, r := range rels {
		fmt.Fprintf(w, "%d\t%d\t%d\t%s\t%s\n", r.ID, r.InitiatorID, r.AimID, r.State, r.UpdatedAt.Format("2006-01-02 15:04"))
	}
	_ = w.Flush()
}

func printOverview(out io.Writer, ov handler.OverviewResponse) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "GROUP\tRELATION\tPROFILE\tNAME")
	groups := []struct {
		name    string
		entries []handler.OverviewEntry
	}{
		{"matched", ov.Approved},
		{"waiting for you", ov.PendingReceived},
		{"sent", ov.PendingSent},
		{"rejected", ov.Rejected},
	}
	for _, g := range groups {
		for _, e := range g.entries {
			name := "?"
			var pid int64
			if e.Counterparty != nil {
				name, pid = e.Counterparty.Name, e.Counterparty.ID
			}
			fmt.Fprintf(w, "%s\t%d\t%d\t%s\n", g.name, e.Relation.ID, pid, name)
		}
	}
	_ = w.Flush()
}

func parseID(raw string) (string, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return "", fmt.Errorf("invalid id %q", raw)
	}
	return strconv.FormatInt(id, 10), nil
}

func jsonField(flag string) string {
	switch flag {
	case "open":
		return "openInfo"
	case "closed":
		return "closedInfo"
	default:
		return flag
	}
}
