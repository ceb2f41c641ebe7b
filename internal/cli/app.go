package cli

import (
	"os"

	"github.com/avenalabs/regsub/internal/ack"
	"github.com/avenalabs/regsub/internal/config"
	"github.com/avenalabs/regsub/internal/lifecycle"
	"github.com/avenalabs/regsub/internal/profile"
	"github.com/avenalabs/regsub/internal/qc"
	"github.com/avenalabs/regsub/internal/store"
	"github.com/avenalabs/regsub/internal/transport"
	"github.com/avenalabs/regsub/internal/validation"
)

// app is the wired application a command operates on.
type app struct {
	cfg      *config.Config
	store    *store.Store
	profiles profile.Set
	manager  *lifecycle.Manager
	gate     *qc.Gate

	// client and poller are nil when no gateway is configured.
	client *transport.Client
	poller *ack.Poller
}

// openApp loads configuration and builds the full application wiring.
// Callers must Close.
func openApp(opts *RootOptions) (*app, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "load configuration", err)
	}

	profiles, err := loadProfiles(cfg)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "load region profiles", err)
	}

	if err := os.MkdirAll(cfg.BaseRoot, 0o755); err != nil {
		return nil, WrapExitError(ExitCommandError, "create base root", err)
	}
	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "open database", err)
	}

	var external validation.ExternalValidator
	if cfg.Validator.Command != "" {
		external = validation.CommandValidator{Path: cfg.Validator.Command, Args: cfg.Validator.Args}
	}
	orchestrator := validation.New(profiles, external)

	client := newTransportClient(cfg)
	var submitter lifecycle.Submitter
	if client != nil {
		submitter = client
	}

	manager := lifecycle.NewManager(lifecycle.Config{
		BaseRoot:     cfg.BaseRoot,
		Applicant:    cfg.Applicant,
		SubmissionID: cfg.SubmissionID,
		Actor:        "cli",
	}, st, st, st, st, profiles, orchestrator, submitter, nil)

	a := &app{
		cfg:      cfg,
		store:    st,
		profiles: profiles,
		manager:  manager,
		gate: qc.NewGate(qc.Config{
			MaxSize: cfg.QC.MaxSizeBytes,
			Workers: cfg.QC.Workers,
		}, qc.PassthroughNormalizer{}),
		client: client,
	}
	if client != nil {
		a.poller = ack.NewPoller(manager, st, st, client)
	}
	return a, nil
}

func (a *app) Close() {
	a.store.Close()
}

func loadProfiles(cfg *config.Config) (profile.Set, error) {
	if cfg.ProfileDir != "" {
		return profile.LoadDir(cfg.ProfileDir)
	}
	return profile.LoadDefaults()
}

// newTransportClient builds the gateway client per configuration, or nil
// when no gateway is configured.
func newTransportClient(cfg *config.Config) *transport.Client {
	switch {
	case cfg.Gateway.LocalDir != "":
		return transport.NewClient(func() (transport.Gateway, error) {
			return transport.NewDirGateway(cfg.Gateway.LocalDir), nil
		})
	case cfg.Gateway.Host != "":
		sftpCfg := transport.SFTPConfig{
			Host:           cfg.Gateway.Host,
			Port:           cfg.Gateway.Port,
			User:           cfg.Gateway.User,
			Password:       cfg.Gateway.Password,
			PrivateKeyPath: cfg.Gateway.PrivateKeyPath,
			KnownHostsKey:  cfg.Gateway.HostKey,
		}
		return transport.NewClient(func() (transport.Gateway, error) {
			return transport.DialSFTP(sftpCfg)
		})
	default:
		return nil
	}
}
