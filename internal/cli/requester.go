package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/agentmesh/agentmesh/internal/identity"
	"github.com/agentmesh/agentmesh/internal/negotiation"
	"github.com/agentmesh/agentmesh/internal/session"
	"github.com/agentmesh/agentmesh/internal/transport/ws"
)

// Demo requirement used when no flags are given, mirroring the canonical
// education-history example.
const (
	defaultRequirement = `Design an API interface for retrieving user education history.
- API should support retrieving education history for a single user
- Education history should include: school name, major, degree, achievements, start time, end time
- Must support error handling and parameter validation`

	defaultInputDescription = `Input parameters should include:
- user_id: User ID (string)
- include_details: Whether to include detailed information (boolean, optional)`

	defaultOutputDescription = `Output should include:
- List of education history, each containing:
* institution: School name
* major: Major
* degree: Degree (Bachelor/Master/Doctorate)
* achievements: Achievements
* start_date: Start time (YYYY-MM-DD)
* end_date: End time (YYYY-MM-DD)
- Support for pagination and error message return`
)

// NewRequesterCmd wires the requester demo entrypoint: connect to a peer,
// negotiate a protocol, generate handler code, exchange acks.
func NewRequesterCmd(opts *Options) *cobra.Command {
	var (
		peerURL     string
		peerDID     string
		didPath     string
		requirement string
		inputDesc   string
		outputDesc  string
	)

	cmd := &cobra.Command{
		Use:   "requester",
		Short: "Negotiate a protocol with a provider and generate requester code",
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

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			conn, err := ws.Dial(ctx, peerURL, doc.DID, peerDID)
			if err != nil {
				return fmt.Errorf("connect to provider: %w", err)
			}
			defer conn.Close()

			neg := negotiation.NewNegotiator(eng.strategy, negotiation.RoleRequester, nil, eng.logger)
			sess := session.New(negotiation.RoleRequester, peerDID, eng.sessionConfig(), neg, eng.generator, conn.Send, eng.logger, eng.metrics)

			mux := session.NewMux(nil, eng.logger, eng.metrics)
			mux.Register(sess)
			defer mux.Remove(peerDID)

			go func() {
				if err := conn.ReadLoop(ctx, func(data []byte) {
					mux.HandleInbound(peerDID, data)
				}); err != nil {
					eng.logger.Debug("read loop ended", zap.Error(err))
				}
			}()

			success, modulePath := sess.NegotiateProtocol(ctx, requirement, inputDesc, outputDesc)
			if !success {
				return fmt.Errorf("protocol negotiation failed")
			}

			fmt.Fprintf(cmd.OutOrStdout(), "negotiation succeeded, handler: %s\n", modulePath)
			return nil
		},
	}

	cmd.Flags().StringVar(&peerURL, "peer-url", "ws://localhost:5000/ws", "Provider WebSocket URL")
	cmd.Flags().StringVar(&peerDID, "peer-did", "", "Provider DID")
	cmd.Flags().StringVar(&didPath, "did", "", "Path to local DID JSON (default: identity.did_path from config)")
	cmd.Flags().StringVar(&requirement, "requirement", defaultRequirement, "Protocol requirement description")
	cmd.Flags().StringVar(&inputDesc, "input-description", defaultInputDescription, "Expected input format description")
	cmd.Flags().StringVar(&outputDesc, "output-description", defaultOutputDescription, "Expected output format description")
	_ = cmd.MarkFlagRequired("peer-did")

	return cmd
}
