package directory

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	goldap "github.com/go-ldap/ldap/v3"
	"github.com/hashicorp/terraform-plugin-log/tflog"

	"github.com/isometry/ad-onboard/internal/identity"
	"github.com/isometry/ad-onboard/internal/ldap"
	"github.com/isometry/ad-onboard/internal/metrics"
	"github.com/isometry/ad-onboard/internal/storage"
)

// userAccountControl value for an enabled normal account.
const uacNormalAccount = 512

// HomeProvisioner creates the home folder for a new user.
type HomeProvisioner interface {
	ProvisionHome(ctx context.Context, id *identity.Identity, domain string) error
}

// PasswordMode selects how the initial password is written.
type PasswordMode int

const (
	// PasswordModeUnicodePwd replaces unicodePwd. Active Directory only
	// accepts this over an encrypted connection.
	PasswordModeUnicodePwd PasswordMode = iota

	// PasswordModeExtended uses the RFC 3062 password modify operation.
	PasswordModeExtended
)

func (m PasswordMode) String() string {
	switch m {
	case PasswordModeUnicodePwd:
		return "unicodepwd"
	case PasswordModeExtended:
		return "extended"
	default:
		return "unknown"
	}
}

// ParsePasswordMode parses a configured mode name. Empty means unicodepwd.
func ParsePasswordMode(s string) (PasswordMode, error) {
	switch s {
	case "", "unicodepwd":
		return PasswordModeUnicodePwd, nil
	case "extended":
		return PasswordModeExtended, nil
	}
	return PasswordModeUnicodePwd, fmt.Errorf("unsupported password mode: %q", s)
}

// Provisioner creates groups and users through a connected Session.
type Provisioner struct {
	session       *Session
	home          HomeProvisioner
	passwordMode  PasswordMode
	enableAccount bool
	groupScope    ldap.GroupScope
	groupCategory ldap.GroupCategory
	metrics       *metrics.Recorder
}

// ProvisionerOption configures a Provisioner.
type ProvisionerOption func(*Provisioner)

func WithHomeProvisioner(h HomeProvisioner) ProvisionerOption {
	return func(p *Provisioner) { p.home = h }
}

func WithPasswordMode(m PasswordMode) ProvisionerOption {
	return func(p *Provisioner) { p.passwordMode = m }
}

// WithEnableAccount controls whether new accounts are enabled after the
// password is set. Enabled by default.
func WithEnableAccount(enable bool) ProvisionerOption {
	return func(p *Provisioner) { p.enableAccount = enable }
}

// WithGroupType sets the scope and category of groups created by AddGroup.
// The default is a global security group.
func WithGroupType(scope ldap.GroupScope, category ldap.GroupCategory) ProvisionerOption {
	return func(p *Provisioner) {
		p.groupScope = scope
		p.groupCategory = category
	}
}

func WithMetrics(r *metrics.Recorder) ProvisionerOption {
	return func(p *Provisioner) { p.metrics = r }
}

// NewProvisioner returns a Provisioner operating on session.
func NewProvisioner(session *Session, opts ...ProvisionerOption) *Provisioner {
	p := &Provisioner{
		session:       session,
		passwordMode:  PasswordModeUnicodePwd,
		enableAccount: true,
		groupScope:    ldap.GroupScopeGlobal,
		groupCategory: ldap.GroupCategorySecurity,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// AddGroup creates a group named name beside the bound organizational unit.
// An existing group of the same name is reported as a conflict; see
// IsConflict.
func (p *Provisioner) AddGroup(ctx context.Context, name string) (err error) {
	const op = "add_group"
	start := time.Now()
	defer func() { p.metrics.ObserveOperation(op, outcome(err, true), start) }()

	client, err := p.session.handle(op)
	if err != nil {
		return err
	}
	if name == "" {
		return newError(KindDirectoryWrite, op, fmt.Errorf("group name cannot be empty"))
	}

	dn := ldap.ChildDN("CN", name, p.session.ParentDN())
	groupType := ldap.CalculateGroupType(p.groupScope, p.groupCategory)

	return ldap.LogOperation(ctx, ldap.SubsystemDirectory, op, map[string]any{
		"dn":         dn,
		"group_type": groupType,
	}, func() error {
		err := client.Add(ctx, &ldap.AddRequest{
			DN: dn,
			Attributes: map[string][]string{
				"objectClass": {"top", "group"},
				"cn":          {name},
				"groupType":   {strconv.FormatInt(int64(groupType), 10)},
			},
		})
		if err != nil {
			return newError(KindDirectoryWrite, op, fmt.Errorf("failed to create group %s: %w", dn, err))
		}
		return nil
	})
}

// AddUser creates the user described by id, sets its password, joins the
// requested groups that exist and provisions the home folder. Stages run in
// that order and the first failure stops the rest; nothing is rolled back.
//
// Once the entry has been created, the partially filled result is returned
// together with any later error.
func (p *Provisioner) AddUser(ctx context.Context, id *identity.Identity) (result *UserResult, err error) {
	const op = "add_user"
	start := time.Now()
	defer func() {
		partial := result != nil && !result.Membership.Complete()
		p.metrics.ObserveOperation(op, outcome(err, !partial), start)
	}()

	client, err := p.session.handle(op)
	if err != nil {
		return nil, err
	}
	if id == nil {
		return nil, newError(KindDirectoryWrite, op, fmt.Errorf("identity cannot be nil"))
	}

	domain := p.session.Domain()
	dn := ldap.ChildDN("CN", id.FullName(), p.session.BindDN())
	upn := id.Username() + "@" + domain

	fields := map[string]any{
		"dn":                  dn,
		"user_principal_name": upn,
		"role":                id.Role().String(),
		"groups":              id.Groups(),
	}
	tflog.SubsystemInfo(ctx, ldap.SubsystemDirectory, "Creating user", fields)

	if err := client.Add(ctx, &ldap.AddRequest{DN: dn, Attributes: userAttributes(id, upn)}); err != nil {
		return nil, newError(KindDirectoryWrite, op, fmt.Errorf("failed to create user %s: %w", dn, err))
	}

	result = &UserResult{
		DN:                dn,
		UserPrincipalName: upn,
		HomeDirectory:     id.HomeDirectory(),
	}

	if err := p.setPassword(ctx, client, dn, id.Password()); err != nil {
		return result, newError(KindCredential, op, err)
	}

	if p.enableAccount {
		err := client.Modify(ctx, &ldap.ModifyRequest{
			DN:                dn,
			ReplaceAttributes: map[string][]string{"userAccountControl": {strconv.Itoa(uacNormalAccount)}},
		})
		if err != nil {
			return result, newError(KindCredential, op, fmt.Errorf("failed to enable account %s: %w", dn, err))
		}
	}

	p.readIdentifiers(ctx, client, result)

	for _, group := range id.Groups() {
		joined, err := p.joinGroup(ctx, client, dn, group)
		if err != nil {
			p.metrics.IncGroupMembership(metrics.MembershipFailed)
			return result, newError(KindDirectoryWrite, op, err)
		}
		if joined {
			p.metrics.IncGroupMembership(metrics.MembershipJoined)
			result.Membership.Joined = append(result.Membership.Joined, group)
			continue
		}
		p.metrics.IncGroupMembership(metrics.MembershipMissing)
		result.Membership.Missing = append(result.Membership.Missing, group)
		tflog.SubsystemWarn(ctx, ldap.SubsystemDirectory, "Requested group does not exist, skipping", map[string]any{
			"group": group,
			"dn":    dn,
		})
	}

	if p.home != nil {
		if err := p.home.ProvisionHome(ctx, id, domain); err != nil {
			kind := KindStorage
			if errors.Is(err, storage.ErrOwnershipTimeout) {
				kind = KindIdentityUnresolved
			}
			return result, newError(kind, op, err)
		}
	}

	tflog.SubsystemInfo(ctx, ldap.SubsystemDirectory, "User created", map[string]any{
		"dn":              dn,
		"groups_joined":   result.Membership.Joined,
		"groups_missing":  result.Membership.Missing,
		"home_directory":  result.HomeDirectory,
		"duration_ms":     time.Since(start).Milliseconds(),
		"membership_full": result.Membership.Complete(),
	})

	return result, nil
}

// userAttributes builds the entry for id. Empty optional values are
// omitted because directories reject empty attribute values.
func userAttributes(id *identity.Identity, upn string) map[string][]string {
	attrs := map[string][]string{
		"objectClass":       {"top", "person", "organizationalPerson", "user"},
		"cn":                {id.FullName()},
		"userPrincipalName": {upn},
		"sAMAccountName":    {id.Username()},
		"displayName":       {id.FullName()},
	}

	optional := map[string]string{
		"givenName":     id.FirstName(),
		"sn":            id.LastName(),
		"description":   id.Description(),
		"homeDrive":     id.HomeDrive(),
		"homeDirectory": id.HomeDirectory(),
	}
	for attr, value := range optional {
		if value != "" {
			attrs[attr] = []string{value}
		}
	}

	return attrs
}

func (p *Provisioner) setPassword(ctx context.Context, client ldap.Client, dn string, password identity.Secret) error {
	switch p.passwordMode {
	case PasswordModeExtended:
		if err := client.PasswordModify(ctx, dn, password.Reveal()); err != nil {
			return fmt.Errorf("failed to set password for %s: %w", dn, err)
		}
		return nil
	default:
		encoded, err := ldap.EncodeUnicodePwd(password.Reveal())
		if err != nil {
			return err
		}
		err = client.Modify(ctx, &ldap.ModifyRequest{
			DN:                dn,
			ReplaceAttributes: map[string][]string{"unicodePwd": {encoded}},
		})
		if err != nil {
			return fmt.Errorf("failed to set password for %s: %w", dn, err)
		}
		return nil
	}
}

// joinGroup adds userDN to the group called name under the parent
// container. It reports false when no such group exists.
func (p *Provisioner) joinGroup(ctx context.Context, client ldap.Client, userDN, name string) (bool, error) {
	res, err := client.Search(ctx, &ldap.SearchRequest{
		BaseDN:     p.session.ParentDN(),
		Scope:      ldap.ScopeSingleLevel,
		Filter:     fmt.Sprintf("(&(objectClass=group)(cn=%s))", goldap.EscapeFilter(name)),
		Attributes: []string{"distinguishedName"},
		SizeLimit:  1,
	})
	if err != nil {
		if ldap.IsNotFoundError(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to look up group %q: %w", name, err)
	}
	if len(res.Entries) == 0 {
		return false, nil
	}

	groupDN := res.Entries[0].DN
	err = client.Modify(ctx, &ldap.ModifyRequest{
		DN:            groupDN,
		AddAttributes: map[string][]string{"member": {userDN}},
	})
	if err != nil {
		if ldap.ResultCode(err) == goldap.LDAPResultAttributeOrValueExists {
			tflog.SubsystemDebug(ctx, ldap.SubsystemDirectory, "User already a member", map[string]any{
				"group_dn": groupDN,
			})
			return true, nil
		}
		return false, fmt.Errorf("failed to add %s to group %s: %w", userDN, groupDN, err)
	}

	return true, nil
}

// readIdentifiers fills the GUID and SID of the new entry. Failures are
// logged only.
func (p *Provisioner) readIdentifiers(ctx context.Context, client ldap.Client, result *UserResult) {
	res, err := client.Search(ctx, &ldap.SearchRequest{
		BaseDN:     result.DN,
		Scope:      ldap.ScopeBaseObject,
		Filter:     "(objectClass=user)",
		Attributes: []string{"objectGUID", "objectSid"},
		SizeLimit:  1,
	})
	if err != nil || len(res.Entries) == 0 {
		fields := map[string]any{"dn": result.DN}
		if err != nil {
			fields["error"] = err.Error()
		}
		tflog.SubsystemWarn(ctx, ldap.SubsystemDirectory, "Could not read back user identifiers", fields)
		return
	}

	entry := res.Entries[0]
	if guid, err := ldap.ExtractGUID(entry); err == nil {
		result.GUID = guid
	}
	if sid, err := ldap.ExtractSID(entry); err == nil {
		result.SID = sid
	}
}

func outcome(err error, complete bool) string {
	switch {
	case err != nil:
		return metrics.OutcomeFailure
	case !complete:
		return metrics.OutcomePartial
	default:
		return metrics.OutcomeSuccess
	}
}
