package cmd

import (
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/relaykit/relay/errors"
	"github.com/relaykit/relay/pkg/agent/claude"
	"github.com/relaykit/relay/pkg/hooks"
)

func NewHookCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hook",
		Short: "Process one agent lifecycle event from stdin",
		Long: `Process one agent lifecycle event from stdin.

The wrapped agent invokes this command with the hook event JSON on stdin.
The event is validated, routed to its handler, and any queued telemetry is
synced to the configured backend.

A malformed event is a hard error. Backend or sync failures are logged and
swallowed: the hook must never break the wrapped agent, and failed payloads
stay queued for the next event or a manual 'relay sync'.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := io.ReadAll(os.Stdin)
			if err != nil {
				return errors.Wrap(err, errors.ErrCodeEventInvalid, "failed to read hook event from stdin")
			}

			event, err := hooks.ParseEvent(data)
			if err != nil {
				return err
			}

			rt, err := newRuntime(cmd)
			if err != nil {
				return err
			}

			agentName, _ := cmd.Flags().GetString("agent")
			router, err := rt.router(agentName)
			if err != nil {
				return err
			}

			if err := router.ProcessEvent(cmd.Context(), event); err != nil {
				if errors.GetCode(err) == errors.ErrCodeEventInvalid {
					return err
				}
				rt.log.WithError(err).Error("Hook event handling failed")
				return nil
			}
			return nil
		},
	}

	cmd.Flags().String("agent", claude.Name, "Agent plugin handling the event")
	return cmd
}
