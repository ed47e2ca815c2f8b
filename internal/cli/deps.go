package cli

import (
	"github.com/Peter-Willmott/asana-updater/internal/config"
	"github.com/Peter-Willmott/asana-updater/internal/jobs"
	"github.com/Peter-Willmott/asana-updater/internal/secrets"
	"github.com/Peter-Willmott/asana-updater/internal/source"
	"github.com/Peter-Willmott/asana-updater/internal/tracker"
)

// loadConfig loads and validates the config package directory.
func loadConfig(dir string) (*config.Config, error) {
	cfg, err := config.Load(dir)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "load config", err)
	}
	return cfg, nil
}

// buildDeps assembles live job dependencies from config and environment
// credentials. The Bitbucket provider is wired only when its credentials
// are present; the PR job reports the absence itself when invoked.
func buildDeps(cfg *config.Config) (*jobs.Deps, error) {
	bundle, err := secrets.FromEnv()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "load credentials", err)
	}

	asanaKey, err := bundle.Get(secrets.KeyAsanaAPIKey)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "load credentials", err)
	}
	gatewayToken, err := bundle.Get(secrets.KeyGatewayToken)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "load credentials", err)
	}

	deps := &jobs.Deps{
		Config:  cfg,
		Gateway: tracker.NewAsanaClient(asanaKey),
		GatewayFor: func(apiKey string) tracker.Gateway {
			return tracker.NewAsanaClient(apiKey)
		},
		AssigneeKey: bundle.AssigneeAPIKey,
		Source:      source.NewGatewayProvider(cfg.Gateway.BaseURL, gatewayToken),
	}

	clientID, idErr := bundle.Get(secrets.KeyBitbucketClientID)
	clientSecret, secretErr := bundle.Get(secrets.KeyBitbucketSecret)
	if idErr == nil && secretErr == nil {
		deps.Bitbucket = source.NewBitbucketProvider(cfg.BitbucketPRs.Workspace, clientID, clientSecret)
	}

	return deps, nil
}
