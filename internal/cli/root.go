// Package cli implements the ad-onboard commands.
package cli

import (
	"context"
	"fmt"

	"github.com/hashicorp/terraform-plugin-log/tflog"
	"github.com/spf13/cobra"

	"github.com/isometry/ad-onboard/internal/config"
	"github.com/isometry/ad-onboard/internal/directory"
	"github.com/isometry/ad-onboard/internal/ldap"
	"github.com/isometry/ad-onboard/internal/metrics"
	"github.com/isometry/ad-onboard/internal/storage"
)

type app struct {
	configPath string
	dial       ldap.DialFunc
	access     storage.AccessController
}

// Option configures the command tree.
type Option func(*app)

// WithDialer replaces the directory dialer.
func WithDialer(dial ldap.DialFunc) Option {
	return func(a *app) { a.dial = dial }
}

// WithAccessController replaces the platform ACL implementation.
func WithAccessController(ac storage.AccessController) Option {
	return func(a *app) { a.access = ac }
}

// NewRootCommand builds the ad-onboard command tree.
func NewRootCommand(opts ...Option) *cobra.Command {
	a := &app{
		dial:   ldap.Dial,
		access: storage.NewAccessController(),
	}
	for _, opt := range opts {
		opt(a)
	}

	root := &cobra.Command{
		Use:   "ad-onboard",
		Short: "Onboard employees into Active Directory",
		Long: `ad-onboard creates directory users and groups and provisions each
user's home folder with ownership and access granted to the new account.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&a.configPath, "config", "", "path to a configuration file (yaml, toml or json)")
	root.PersistentFlags().String("domain", "", "directory domain, e.g. danskvinimport.local (overrides config)")

	root.AddCommand(
		a.newUserCommand(),
		a.newGroupCommand(),
		newRolesCommand(),
	)

	return root
}

// Execute runs the command tree with a logger configured from the
// environment.
func Execute() error {
	ctx := newLoggerContext(context.Background())
	return NewRootCommand().ExecuteContext(ctx)
}

// runtime is a connected session plus the collaborators built from config.
type runtime struct {
	config      *config.Config
	session     *directory.Session
	provisioner *directory.Provisioner
	metrics     *metrics.Recorder
}

func (a *app) connect(cmd *cobra.Command) (*runtime, error) {
	ctx := cmd.Context()

	cfg, err := config.Load(a.configPath, cmd.Flags())
	if err != nil {
		return nil, err
	}

	conn, err := cfg.ConnectionConfig()
	if err != nil {
		return nil, err
	}
	mode, err := directory.ParsePasswordMode(cfg.Provisioning.PasswordMode)
	if err != nil {
		return nil, err
	}
	scope, category, err := cfg.GroupType()
	if err != nil {
		return nil, err
	}

	rec := metrics.New()
	home := storage.NewHomeProvisioner(a.access,
		storage.WithRetryPolicy(cfg.RetryPolicy()),
		storage.WithMetrics(rec))

	session := directory.NewSession(conn, directory.WithDialer(a.dial))
	provisioner := directory.NewProvisioner(session,
		directory.WithHomeProvisioner(home),
		directory.WithPasswordMode(mode),
		directory.WithEnableAccount(cfg.Provisioning.EnableAccount),
		directory.WithGroupType(scope, category),
		directory.WithMetrics(rec))

	if err := session.Connect(ctx); err != nil {
		return nil, err
	}

	tflog.Debug(ctx, "Connected to directory", map[string]any{
		"domain":  session.Domain(),
		"bind_dn": session.BindDN(),
	})

	return &runtime{
		config:      cfg,
		session:     session,
		provisioner: provisioner,
		metrics:     rec,
	}, nil
}

// close releases the session and writes the metrics textfile if one is
// configured. Textfile failures are logged only.
func (r *runtime) close(ctx context.Context) {
	if err := r.session.Close(); err != nil {
		tflog.Warn(ctx, "Failed to close directory session", map[string]any{"error": err.Error()})
	}
	if err := r.metrics.WriteTextfile(r.config.Metrics.Textfile); err != nil {
		tflog.Warn(ctx, "Failed to write metrics", map[string]any{
			"path":  r.config.Metrics.Textfile,
			"error": err.Error(),
		})
	}
}

func requireArg(name, value string) error {
	if value == "" {
		return fmt.Errorf("--%s is required", name)
	}
	return nil
}
