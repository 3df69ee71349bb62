package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/malbeclabs/querybroker/pkg/broker"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

type askFlags struct {
	connection string
	limit      int
	userID     int64
	role       string
	userName   string
	email      string
}

func (f *askFlags) register(fs *pflag.FlagSet) {
	fs.StringVarP(&f.connection, "connection", "c", "", "target id to query (inferred from the question when empty)")
	fs.IntVarP(&f.limit, "limit", "l", 0, "maximum rows to return (1-500)")
	fs.Int64Var(&f.userID, "user-id", 0, "caller user id")
	fs.StringVar(&f.role, "role", "", "caller role (head_of_household, family_member)")
	fs.StringVar(&f.userName, "user-name", "", "caller username")
	fs.StringVar(&f.email, "email", "", "caller email")
}

func (f *askFlags) request(message string) broker.Request {
	return broker.Request{
		Message:      message,
		ConnectionID: f.connection,
		Limit:        f.limit,
		UserID:       f.userID,
		UserRole:     f.role,
		UserName:     f.userName,
		Email:        f.email,
	}
}

func newAskCmd(flags *globalFlags) *cobra.Command {
	var af askFlags
	cmd := &cobra.Command{
		Use:   "ask <message>",
		Short: "Run a single question and print the JSON response",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := flags.load()
			if err != nil {
				return err
			}
			a, err := newApp(log, cfg)
			if err != nil {
				return err
			}
			defer func() {
				if err := a.Close(); err != nil {
					log.Error("failed to close broker components", "error", err)
				}
			}()

			ctx := cmd.Context()
			resp, err := a.broker.Ask(ctx, af.request(strings.Join(args, " ")))
			if err != nil {
				return fmt.Errorf("failed to answer: %w", err)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(resp); err != nil {
				return fmt.Errorf("failed to write response: %w", err)
			}
			return nil
		},
	}
	af.register(cmd.Flags())
	return cmd
}
