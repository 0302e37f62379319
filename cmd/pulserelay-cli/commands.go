package main

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/cobra"
)

// --- submit ---

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit an AI request",
	Long: `Submit an AI request and print its id.

Examples:
  pulserelay-cli submit --type general_query --prompt "why is latency high?"
  pulserelay-cli submit --type diagnostic_analysis --prompt "full check" --context zone=attic --wait`,
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, _ := cmd.Flags().GetString("type")
		prompt, _ := cmd.Flags().GetString("prompt")
		ctxPairs, _ := cmd.Flags().GetStringSlice("context")
		wait, _ := cmd.Flags().GetBool("wait")
		timeout, _ := cmd.Flags().GetString("timeout")

		if prompt == "" {
			return fmt.Errorf("--prompt is required")
		}

		req := map[string]any{
			"request_type": kind,
			"prompt":       prompt,
		}
		if len(ctxPairs) > 0 {
			ctxMap := map[string]string{}
			for _, p := range ctxPairs {
				k, v, ok := strings.Cut(p, "=")
				if !ok {
					return fmt.Errorf("invalid --context entry %q, want key=value", p)
				}
				ctxMap[k] = v
			}
			req["context"] = ctxMap
		}

		client := newAPIClient()
		resp, err := client.post(cmd.Context(), "/v1/requests", req)
		if err != nil {
			return err
		}
		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		printSuccess("Submitted request %s (expires %s)", result["id"], result["expires_at"])

		if !wait {
			fmt.Println(result["id"])
			return nil
		}
		return awaitResponse(cmd, result["id"], timeout)
	},
}

// --- await ---

var awaitCmd = &cobra.Command{
	Use:   "await <request-id>",
	Short: "Wait for the response to a request",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		timeout, _ := cmd.Flags().GetString("timeout")
		return awaitResponse(cmd, args[0], timeout)
	},
}

func awaitResponse(cmd *cobra.Command, id, timeout string) error {
	printStep("Waiting for response to %s", id)
	path := "/v1/requests/" + url.PathEscape(id) + "/response"
	if timeout != "" {
		path += "?timeout=" + url.QueryEscape(timeout)
	}
	client := newAPIClient()
	resp, err := client.get(cmd.Context(), path)
	if err != nil {
		return err
	}
	var result map[string]any
	if err := decodeJSON(resp, &result); err != nil {
		return err
	}
	return printJSON(result)
}

// --- pending ---

var pendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "List pending requests, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := newAPIClient()
		resp, err := client.get(cmd.Context(), "/v1/requests/pending")
		if err != nil {
			return err
		}
		var result map[string]any
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		return printJSON(result)
	},
}

// --- cancel ---

var cancelCmd = &cobra.Command{
	Use:   "cancel <request-id>",
	Short: "Cancel an in-flight request",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := newAPIClient()
		resp, err := client.delete(cmd.Context(), "/v1/requests/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}
		if err := decodeJSON(resp, nil); err != nil {
			return err
		}
		printSuccess("Cancelled %s", args[0])
		return nil
	},
}

// --- sweep ---

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run an expiration sweep now (admin)",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := newAPIClient()
		resp, err := client.post(cmd.Context(), "/v1/admin/sweep", nil)
		if err != nil {
			return err
		}
		var result map[string]int
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		printSuccess("Swept %d documents", result["swept"])
		return nil
	},
}

// --- anomalies ---

var anomaliesCmd = &cobra.Command{
	Use:   "anomalies",
	Short: "List anomalies for a device",
	RunE: func(cmd *cobra.Command, args []string) error {
		device, _ := cmd.Flags().GetString("device")
		includeResolved, _ := cmd.Flags().GetBool("resolved")

		q := url.Values{}
		if device != "" {
			q.Set("device_id", device)
		}
		if includeResolved {
			q.Set("include_resolved", "true")
		}
		path := "/v1/telemetry/anomalies"
		if len(q) > 0 {
			path += "?" + q.Encode()
		}
		client := newAPIClient()
		resp, err := client.get(cmd.Context(), path)
		if err != nil {
			return err
		}
		var result map[string]any
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		return printJSON(result)
	},
}

func init() {
	submitCmd.Flags().String("type", "general_query", "request type")
	submitCmd.Flags().String("prompt", "", "prompt text")
	submitCmd.Flags().StringSlice("context", nil, "context entries as key=value")
	submitCmd.Flags().Bool("wait", false, "wait for the response after submitting")
	submitCmd.Flags().String("timeout", "", "await timeout, e.g. 30s")
	awaitCmd.Flags().String("timeout", "", "await timeout, e.g. 30s")
	anomaliesCmd.Flags().String("device", "", "device id (defaults to the server's own)")
	anomaliesCmd.Flags().Bool("resolved", false, "include resolved anomalies")

	rootCmd.AddCommand(submitCmd)
	rootCmd.AddCommand(awaitCmd)
	rootCmd.AddCommand(pendingCmd)
	rootCmd.AddCommand(cancelCmd)
	rootCmd.AddCommand(sweepCmd)
	rootCmd.AddCommand(anomaliesCmd)
}
