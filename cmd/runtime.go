// Package cmd holds the relay subcommand constructors.
package cmd

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/relaykit/relay/cli"
	"github.com/relaykit/relay/config"
	"github.com/relaykit/relay/pkg/agent"
	"github.com/relaykit/relay/pkg/agent/claude"
	"github.com/relaykit/relay/pkg/api"
	"github.com/relaykit/relay/pkg/hooks"
	"github.com/relaykit/relay/pkg/paths"
	"github.com/relaykit/relay/pkg/processor"
	"github.com/relaykit/relay/pkg/session"
)

// runtime bundles the collaborators every subcommand wires the same way.
type runtime struct {
	cfg      *config.Config
	store    *session.Store
	client   *api.Client
	pipeline *processor.Pipeline
	registry *agent.Registry
	log      *logrus.Entry
}

func newRuntime(cmd *cobra.Command) (*runtime, error) {
	cfg, err := cli.LoadConfig(cmd)
	if err != nil {
		return nil, err
	}

	log := logrus.NewEntry(cli.GetLogger(cmd)).WithField("component", "relay")

	// Without a backend the hook flow must still record sessions and queue
	// payloads; the client degrades to dry-run instead of failing.
	apiCfg := cfg.API
	if apiCfg.BaseURL == "" && !apiCfg.DryRun {
		log.Debug("No sync backend configured, API client running dry")
		apiCfg.DryRun = true
	}
	client, err := api.NewClient(apiCfg, log)
	if err != nil {
		return nil, err
	}

	registry := agent.NewRegistry()
	if err := registry.Register(claude.New()); err != nil {
		return nil, err
	}

	return &runtime{
		cfg:   cfg,
		store: session.NewStore(paths.SessionsDir(), log),
		client: client,
		pipeline: processor.NewPipeline(log,
			processor.NewMetricsProcessor(),
			processor.NewConversationProcessor(),
		),
		registry: registry,
		log:      log,
	}, nil
}

// router resolves the plugin for agentName and wires an event router.
func (rt *runtime) router(agentName string) (*hooks.Router, error) {
	plugin, err := rt.registry.Resolve(agentName)
	if err != nil {
		return nil, err
	}
	return hooks.NewRouter(rt.cfg, plugin, rt.store, rt.pipeline, rt.client, rt.log), nil
}
