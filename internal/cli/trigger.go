package cli

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/CoReason-AI/coreason-signal/internal/connector/httpclient"
	"github.com/CoReason-AI/coreason-signal/internal/model"
)

// NewTriggerCommand creates the trigger command.
func NewTriggerCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		apiURL    string
		reasoning string
		params    []string
	)

	cmd := &cobra.Command{
		Use:   "trigger <ACTION>",
		Short: "Manually trigger a reflex on a running agent",
		Long: `Send an operator reflex to a running agent's admin API. The agent
rejects actions that are not allowed on its device.`,
		Example: `  signal trigger PAUSE --reasoning "operator hold" --param reason=maintenance`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r := model.AgentReflex{
				Action:     model.Action(strings.ToUpper(args[0])),
				Parameters: model.Params{},
				Reasoning:  reasoning,
			}
			for _, kv := range params {
				k, v, err := parseParam(kv)
				if err != nil {
					return err
				}
				r.Parameters[k] = v
			}
			if err := r.Validate(); err != nil {
				return err
			}

			if apiURL == "" {
				apiURL = "http://" + listenHost(rootOpts.Config.API.Addr)
			}
			var resp json.RawMessage
			client := httpclient.New(apiURL, "")
			if err := client.PostJSON(cmd.Context(), "/reflex/trigger", r, &resp); err != nil {
				return fmt.Errorf("trigger: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(resp))
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&apiURL, "api", "", "admin API base URL (default: derived from SIGNAL_API_ADDR)")
	f.StringVarP(&reasoning, "reasoning", "r", "Manual operator trigger", "justification recorded with the reflex")
	f.StringArrayVarP(&params, "param", "p", nil, "reflex parameter key=value (repeatable)")
	return cmd
}

// parseParam splits key=value and types the value: true/false become
// booleans, numeric literals numbers, anything else a string.
func parseParam(kv string) (string, model.Value, error) {
	k, v, ok := strings.Cut(kv, "=")
	if !ok || strings.TrimSpace(k) == "" {
		return "", model.Value{}, fmt.Errorf("invalid parameter %q: want key=value", kv)
	}
	k = strings.TrimSpace(k)
	if v == "true" || v == "false" {
		return k, model.Bool(v == "true"), nil
	}
	if n, err := strconv.ParseFloat(v, 64); err == nil {
		return k, model.Number(n), nil
	}
	return k, model.String(v), nil
}

// listenHost turns a listen address such as ":8080" into a dialable one.
func listenHost(addr string) string {
	if strings.HasPrefix(addr, ":") {
		return "localhost" + addr
	}
	return addr
}
