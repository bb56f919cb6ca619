package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/hashicorp/terraform-plugin-log/tflog"
	"github.com/spf13/cobra"

	"github.com/isometry/ad-onboard/internal/directory"
	"github.com/isometry/ad-onboard/internal/identity"
)

// PasswordEnv supplies the new user's password when --password-stdin is
// not given.
const PasswordEnv = "AD_ONBOARD_USER_PASSWORD"

type userFlags struct {
	first         string
	last          string
	description   string
	role          string
	groups        string
	homeDrive     string
	homeDir       string
	passwordStdin bool
}

func (a *app) newUserCommand() *cobra.Command {
	user := &cobra.Command{
		Use:   "user",
		Short: "Manage directory users",
	}

	var f userFlags
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a user, join its groups and provision its home folder",
		Long: `Create a user in the domain's organizational unit, set its initial
password, add it to every requested group that exists and create its home
folder owned by the new account.

Groups that do not exist are reported but do not fail the command. When
--groups is omitted the user joins the department group of --role.`,
		Example: `  echo "$PASSWORD" | ad-onboard user create --first Anna --last Hansen \
    --role Salgskonsulent --description "Sælger" --password-stdin`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.createUser(cmd, f)
		},
	}

	flags := create.Flags()
	flags.StringVar(&f.first, "first", "", "first name, also the logon name")
	flags.StringVar(&f.last, "last", "", "last name")
	flags.StringVar(&f.description, "description", "", "description, e.g. the job title")
	flags.StringVar(&f.role, "role", "", "role label, see 'ad-onboard roles'")
	flags.StringVar(&f.groups, "groups", "", "comma-separated group names")
	flags.StringVar(&f.homeDrive, "home-drive", "", "home drive letter (default from config)")
	flags.StringVar(&f.homeDir, "home-dir", "", "home folder path (default <home root>/<first>)")
	flags.BoolVar(&f.passwordStdin, "password-stdin", false, "read the password from the first line of stdin")

	user.AddCommand(create)
	return user
}

func (a *app) createUser(cmd *cobra.Command, f userFlags) error {
	ctx := cmd.Context()

	if err := requireArg("first", f.first); err != nil {
		return err
	}
	if err := requireArg("last", f.last); err != nil {
		return err
	}

	password, err := readPassword(cmd.InOrStdin(), f.passwordStdin)
	if err != nil {
		return err
	}

	role := identity.ParseRole(f.role)
	if role == identity.RoleUnknown && f.role != "" {
		tflog.Warn(ctx, "Unrecognised role label", map[string]any{"role": f.role})
	}

	groups := identity.ParseGroupList(f.groups)
	if len(groups) == 0 && role != identity.RoleUnknown {
		groups = []string{role.Group()}
	}

	rt, err := a.connect(cmd)
	if err != nil {
		return err
	}
	defer rt.close(ctx)

	layout := rt.config.HomeLayout()
	drive, dir := layout.Drive, layout.PathFor(f.first)
	if f.homeDrive != "" {
		drive = f.homeDrive
	}
	if f.homeDir != "" {
		dir = f.homeDir
	}

	id := identity.NewWithHome(f.first, f.last, f.description, role, password, groups, drive, dir)

	result, err := rt.provisioner.AddUser(ctx, id)
	if result != nil {
		printResult(cmd.OutOrStdout(), result)
	}
	return err
}

func readPassword(in io.Reader, fromStdin bool) (string, error) {
	if !fromStdin {
		if pw := os.Getenv(PasswordEnv); pw != "" {
			return pw, nil
		}
		return "", fmt.Errorf("no password given: use --password-stdin or set %s", PasswordEnv)
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read password from stdin: %w", err)
	}
	pw := strings.TrimRight(line, "\r\n")
	if pw == "" {
		return "", fmt.Errorf("password read from stdin is empty")
	}
	return pw, nil
}

func printResult(w io.Writer, r *directory.UserResult) {
	fmt.Fprintf(w, "Created %s\n", r.DN)
	fmt.Fprintf(w, "  principal: %s\n", r.UserPrincipalName)
	if r.SID != "" {
		fmt.Fprintf(w, "  sid:       %s\n", r.SID)
	}
	if r.GUID != "" {
		fmt.Fprintf(w, "  guid:      %s\n", r.GUID)
	}
	fmt.Fprintf(w, "  joined:    %s\n", joinOrNone(r.Membership.Joined))
	if !r.Membership.Complete() {
		fmt.Fprintf(w, "  missing:   %s\n", joinOrNone(r.Membership.Missing))
	}
	fmt.Fprintf(w, "  home:      %s\n", r.HomeDirectory)
}

func joinOrNone(s []string) string {
	if len(s) == 0 {
		return "(none)"
	}
	return strings.Join(s, ", ")
}
