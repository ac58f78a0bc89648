package provision

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/agent-enroll/pkg/domain"
)

const (
	// DefaultIngestAddress is the ingest endpoint agents report to.
	DefaultIngestAddress = "localhost:9002"
	// DefaultInstallerBaseURL hosts install.sh and install.ps1.
	DefaultInstallerBaseURL = "https://raw.githubusercontent.com/mulutu/security-manager/main/installer"
)

// InstallConfig addresses the installer script and the ingest endpoint.
type InstallConfig struct {
	InstallerBaseURL string
	IngestAddress    string
}

func (c InstallConfig) withDefaults() InstallConfig {
	if c.InstallerBaseURL == "" {
		c.InstallerBaseURL = DefaultInstallerBaseURL
	}
	c.InstallerBaseURL = strings.TrimRight(c.InstallerBaseURL, "/")
	if c.IngestAddress == "" {
		c.IngestAddress = DefaultIngestAddress
	}
	return c
}

// InstallRequest describes the host an install command is rendered for.
// An empty HostID renders a headless command.
type InstallRequest struct {
	OSType         string
	APIKey         string
	OrganizationID string
	HostID         string
}

// IsWindows reports whether the target OS family is windows.
func (r InstallRequest) IsWindows() bool {
	return strings.EqualFold(strings.TrimSpace(r.OSType), "windows")
}

// RenderInstallCommand renders the one-line installer invocation. Windows
// targets get comment lines only since no Windows installer exists.
func RenderInstallCommand(req InstallRequest, cfg InstallConfig) string {
	cfg = cfg.withDefaults()

	if req.IsWindows() {
		return strings.Join([]string{
			"# Windows installer not yet available - please use Linux/WSL",
			fmt.Sprintf("# $env:SM_TOKEN=%s; irm %s/install.ps1 | iex", shellQuote(req.APIKey), cfg.InstallerBaseURL),
		}, "\n")
	}

	env := []string{"SM_TOKEN=" + shellQuote(req.APIKey)}
	if req.HostID != "" {
		env = append(env,
			"SM_ORG_ID="+shellQuote(req.OrganizationID),
			"SM_HOST_ID="+shellQuote(req.HostID),
		)
	}
	env = append(env, "SM_INGEST_URL="+shellQuote(cfg.IngestAddress))

	return fmt.Sprintf("curl -fsSL %s/install.sh | sudo %s bash", cfg.InstallerBaseURL, strings.Join(env, " "))
}

// shellQuote wraps s in single quotes for a POSIX shell.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// InstallCommand is a rendered command together with the key it embeds.
type InstallCommand struct {
	Command       string
	APIKey        *domain.APIKey
	IngestAddress string
}

// Issuer hands out organization API keys and the install commands that
// embed them. It never mutates agents.
type Issuer struct {
	keys     APIKeyStore
	cfg      InstallConfig
	logger   *slog.Logger
	random   io.Reader
	now      func() time.Time
	maxTries uint
}

// NewIssuer creates a credential issuer.
func NewIssuer(keys APIKeyStore, cfg InstallConfig, logger *slog.Logger) *Issuer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Issuer{
		keys:     keys,
		cfg:      cfg.withDefaults(),
		logger:   logger,
		random:   defaultRandom,
		now:      time.Now,
		maxTries: DefaultMaxTries,
	}
}

// Config returns the effective install configuration.
func (i *Issuer) Config() InstallConfig {
	return i.cfg
}

// TargetedCommand renders the install command for an existing agent.
func (i *Issuer) TargetedCommand(ctx context.Context, agent *domain.Agent) (*InstallCommand, error) {
	key, err := i.EnsureAPIKey(ctx, agent.OrganizationID)
	if err != nil {
		return nil, err
	}
	return &InstallCommand{
		Command: RenderInstallCommand(InstallRequest{
			OSType:         agent.OSType(),
			APIKey:         key.Key,
			OrganizationID: agent.OrganizationID.String(),
			HostID:         agent.HostID,
		}, i.cfg),
		APIKey:        key,
		IngestAddress: i.cfg.IngestAddress,
	}, nil
}

// HeadlessCommand renders an install command for a host that will register
// itself with the embedded key.
func (i *Issuer) HeadlessCommand(ctx context.Context, orgID uuid.UUID, osType string) (*InstallCommand, error) {
	key, err := i.EnsureAPIKey(ctx, orgID)
	if err != nil {
		return nil, err
	}
	return &InstallCommand{
		Command: RenderInstallCommand(InstallRequest{
			OSType: osType,
			APIKey: key.Key,
		}, i.cfg),
		APIKey:        key,
		IngestAddress: i.cfg.IngestAddress,
	}, nil
}
