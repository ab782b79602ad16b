package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/agentmesh/agentmesh/internal/capability"
	"github.com/agentmesh/agentmesh/internal/daemon"
	"github.com/agentmesh/agentmesh/internal/identity"
	"github.com/agentmesh/agentmesh/internal/negotiation"
	"github.com/agentmesh/agentmesh/internal/session"
)

// NewProviderCmd wires the provider demo entrypoint: listen for peers and
// serve negotiations against the configured capability description.
func NewProviderCmd(opts *Options) *cobra.Command {
	var didPath string

	cmd := &cobra.Command{
		Use:   "provider",
		Short: "Serve protocol negotiations for incoming peers",
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := buildEngine(opts)
			if err != nil {
				return err
			}
			defer eng.logger.Sync() //nolint:errcheck // best-effort

			if didPath == "" {
				didPath = eng.cfg.Identity.DIDPath
			}
			doc, err := identity.Load(didPath)
			if err != nil {
				return err
			}
			eng.logger.Info("provider identity loaded", zap.String("did", doc.DID))

			caps, err := capability.LoadStore(eng.cfg.Capability)
			if err != nil {
				return err
			}

			factory := func(peerDID string, send session.SendFunc) (*session.Session, error) {
				neg := negotiation.NewNegotiator(eng.strategy, negotiation.RoleProvider, caps.Info, eng.logger)
				return session.New(negotiation.RoleProvider, peerDID, eng.sessionConfig(), neg, eng.generator, send, eng.logger, eng.metrics), nil
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			server := daemon.NewServer(eng.cfg, eng.logger, eng.metrics, factory)
			return server.Run(ctx)
		},
	}

	cmd.Flags().StringVar(&didPath, "did", "", "Path to local DID JSON (default: identity.did_path from config)")

	return cmd
}
