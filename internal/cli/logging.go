package cli

import (
	"context"
	"os"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/terraform-plugin-log/tfsdklog"

	"github.com/isometry/ad-onboard/internal/ldap"
)

// LogEnv sets the root log level. Subsystem levels are read from
// AD_ONBOARD_LOG_LDAP, AD_ONBOARD_LOG_DIRECTORY and AD_ONBOARD_LOG_STORAGE.
const LogEnv = "AD_ONBOARD_LOG"

// newLoggerContext returns ctx carrying a JSON logger on stderr. Without
// AD_ONBOARD_LOG only warnings and errors are written.
func newLoggerContext(ctx context.Context) context.Context {
	level := tfsdklog.WithLevel(hclog.Warn)
	if os.Getenv(LogEnv) != "" {
		level = tfsdklog.WithLevelFromEnv(LogEnv)
	}

	ctx = tfsdklog.NewRootProviderLogger(ctx,
		tfsdklog.WithLogName("ad-onboard"),
		level,
		tfsdklog.WithoutLocation(),
	)
	return ldap.InitSubsystems(ctx, LogEnv)
}
