package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tcmartin/promptflow/pkg/api"
	"github.com/tcmartin/promptflow/pkg/flow"
	"github.com/tcmartin/promptflow/pkg/runtime"
	"github.com/tcmartin/promptflow/pkg/storage"
)

func newFlowCmd(opts *cliOptions) *cobra.Command {
	flowCmd := &cobra.Command{
		Use:   "flow",
		Short: "Manage and execute flows",
	}

	flowCmd.AddCommand(
		newFlowListCmd(opts),
		newFlowGetCmd(opts),
		newFlowWriteCmd(opts, "create"),
		newFlowWriteCmd(opts, "update"),
		newFlowDeleteCmd(opts),
		newFlowExecCmd(opts),
	)
	return flowCmd
}

func flowPath(id string) string {
	return "/api/v1/flows/" + url.PathEscape(id)
}

func newFlowListCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all flows",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var flows []storage.FlowSummary
			if err := opts.client().do(cmd.Context(), http.MethodGet, "/api/v1/flows", nil, &flows); err != nil {
				return fmt.Errorf("failed to list flows: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(flows) == 0 {
				fmt.Fprintln(out, "No flows found")
				return nil
			}

			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tSTEPS\tACTIVE")
			for _, f := range flows {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%t\n", f.ID, f.Name, f.StepsCount, f.IsActive)
			}
			return tw.Flush()
		},
	}
}

func newFlowGetCmd(opts *cliOptions) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Show a flow definition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var f flow.Flow
			if err := opts.client().do(cmd.Context(), http.MethodGet, flowPath(args[0]), nil, &f); err != nil {
				return fmt.Errorf("failed to get flow: %w", err)
			}
			return printDefinition(cmd.OutOrStdout(), flow.DefinitionFromFlow(f), output)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "yaml", "Output format (yaml or json)")
	return cmd
}

func printDefinition(out io.Writer, def flow.Definition, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(def)
	case "yaml":
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(def); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unsupported output format %q", format)
	}
}

// newFlowWriteCmd builds the create and update commands, which share
// their arguments and only differ in the request they send
func newFlowWriteCmd(opts *cliOptions, action string) *cobra.Command {
	return &cobra.Command{
		Use:   action + " <id> <file>",
		Short: fmt.Sprintf("%s a flow from a YAML or JSON definition file", capitalize(action)),
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, file := args[0], args[1]

			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("failed to read flow file: %w", err)
			}

			def, err := flow.ParseDefinition(data)
			if err != nil {
				return err
			}
			def.ID = id

			client := opts.client()
			if action == "create" {
				err = client.do(cmd.Context(), http.MethodPost, "/api/v1/flows", def, nil)
			} else {
				err = client.do(cmd.Context(), http.MethodPut, flowPath(id), def, nil)
			}
			if err != nil {
				return fmt.Errorf("failed to %s flow: %w", action, err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Flow %s: %s\n", action+"d", id)
			return nil
		},
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func newFlowDeleteCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a flow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.client().do(cmd.Context(), http.MethodDelete, flowPath(args[0]), nil, nil); err != nil {
				return fmt.Errorf("failed to delete flow: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Flow deleted: %s\n", args[0])
			return nil
		},
	}
}

func newFlowExecCmd(opts *cliOptions) *cobra.Command {
	var stream bool

	cmd := &cobra.Command{
		Use:   "exec <id> <message>",
		Short: "Execute a flow with a user message",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, message := args[0], args[1]
			out := cmd.OutOrStdout()

			if stream {
				return streamExecution(cmd.Context(), opts.client(), out, id, message)
			}

			var result runtime.Result
			req := api.ExecuteRequest{UserMessage: message}
			if err := opts.client().do(cmd.Context(), http.MethodPost, flowPath(id)+"/exec", req, &result); err != nil {
				return fmt.Errorf("failed to execute flow: %w", err)
			}

			fmt.Fprintln(out, result.FinalResponse)
			return nil
		},
	}

	cmd.Flags().BoolVar(&stream, "stream", false, "Stream step progress over a websocket")
	return cmd
}

// streamExecution runs one execution over the websocket endpoint, printing
// step progress as it arrives and the final response last
func streamExecution(ctx context.Context, client *apiClient, out io.Writer, id, message string) error {
	header := http.Header{}
	client.authorize(header)

	ws, resp, err := websocket.DefaultDialer.DialContext(ctx, client.websocketURL(flowPath(id)+"/exec/ws"), header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("failed to connect: HTTP %d: %w", resp.StatusCode, err)
		}
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer ws.Close()

	if err := ws.WriteJSON(api.WebSocketMessage{Type: "execute", UserMessage: message}); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}

	for {
		var update api.ExecutionUpdate
		if err := ws.ReadJSON(&update); err != nil {
			return fmt.Errorf("connection closed before the execution finished: %w", err)
		}

		switch update.Type {
		case api.UpdateStepStarted:
			fmt.Fprintf(out, "[%d/%d] %s ...\n", update.Step.Index+1, update.Step.Total, update.Step.Name)
		case api.UpdateStepCompleted:
			fmt.Fprintf(out, "[%d/%d] %s done (%dms)\n", update.Step.Index+1, update.Step.Total, update.Step.Name, update.Step.DurationMS)
		case api.UpdateStepFailed:
			fmt.Fprintf(out, "[%d/%d] %s failed: %s\n", update.Step.Index+1, update.Step.Total, update.Step.Name, update.Step.Error)
		case api.UpdateResult:
			if update.Result != nil {
				fmt.Fprintln(out, update.Result.FinalResponse)
			}
			_ = ws.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return nil
		case api.UpdateError:
			if update.Error == nil {
				return fmt.Errorf("execution failed")
			}
			return &APIError{Kind: update.Error.Kind, Message: update.Error.Error}
		}
	}
}
