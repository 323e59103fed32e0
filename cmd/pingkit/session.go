package main

import (
	"fmt"

	"github.com/vcf-tools/pingkit/internal/config"
	"github.com/vcf-tools/pingkit/internal/credential"
	"github.com/vcf-tools/pingkit/internal/reconcile"
	"github.com/vcf-tools/pingkit/internal/state"
	"github.com/vcf-tools/pingkit/internal/vcfops"
)

// newSession wires one complete reconciliation stack: login config,
// credential store, suite API client, state store, engine, driver.
func newSession(cfg *config.ToolConfig) (*reconcile.Driver, error) {
	login, err := config.LoadLoginConfig(cfg.LoginFile)
	if err != nil {
		return nil, err
	}

	creds := credential.NewStore(cfg.TokenFile, credential.NewTokenAcquirer(
		login.OperationsHost, login.LoginData, cfg.TokenFile, cfg.InsecureTLS))

	client, err := vcfops.NewClient(
		fmt.Sprintf("https://%s", login.OperationsHost), creds, cfg.InsecureTLS)
	if err != nil {
		return nil, err
	}

	store := state.NewStore(cfg.StateFile)
	store.Load()

	engine := reconcile.NewEngine(client, store)
	return reconcile.NewDriver(engine, client, store), nil
}

// newCredentialStore wires a credential store without the rest of the
// reconciliation stack, for token-only commands.
func newCredentialStore(cfg *config.ToolConfig) (*credential.Store, error) {
	login, err := config.LoadLoginConfig(cfg.LoginFile)
	if err != nil {
		return nil, err
	}

	return credential.NewStore(cfg.TokenFile, credential.NewTokenAcquirer(
		login.OperationsHost, login.LoginData, cfg.TokenFile, cfg.InsecureTLS)), nil
}
