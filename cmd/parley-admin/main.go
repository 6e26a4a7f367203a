// ABOUTME: Admin CLI for parley-gateway agent and thread management
// ABOUTME: Talks to the operator HTTP API with bearer token authentication

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/joho/godotenv"

	"github.com/2389/parley/internal/gateway"
	"github.com/2389/parley/internal/presence"
)

const banner = `
                     _                                   _           _
  _ __    __ _  _ __ | |  ___  _   _          __ _   __| | _ __ ___  (_) _ __
 | '_ \  / _' || '__|| | / _ \| | | |  _____  / _' | / _' || '_ ' _ \ | || '_ \
 | |_) || (_| || |   | ||  __/| |_| | |_____|| (_| || (_| || | | | | || || | | |
 | .__/  \__,_||_|   |_| \___| \__, |         \__,_| \__,_||_| |_| |_||_||_| |_|
 |_|                            |___/
`

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	cfg, err := loadConfig()
	if err != nil {
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}

	client := &apiClient{
		baseURL: strings.TrimRight(cfg.Gateway.URL, "/"),
		token:   cfg.Auth.Token,
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "status":
		err = cmdStatus(client)
	case "agents":
		err = cmdAgents(client, args)
	case "flagged":
		err = cmdFlagged(client, args)
	case "send":
		err = cmdSend(client, args)
	case "threads":
		err = cmdThreads(client, args)
	case "stats":
		err = cmdStats(client)
	case "session":
		err = cmdSession(client, args)
	case "token":
		err = cmdToken(client, args)
	case "health":
		err = cmdHealth(client)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	cyan := color.New(color.FgCyan)
	yellow := color.New(color.FgYellow)

	cyan.Print(banner)
	fmt.Println()
	fmt.Println("Usage: parley-admin <command> [args]")
	fmt.Println()
	yellow.Println("Commands:")
	fmt.Println("  status                   Show gateway status summary")
	fmt.Println("  agents                   List known agents")
	fmt.Println("  agents show <id>         Show agent detail with identity and metrics")
	fmt.Println("  flagged                  List agents over performance thresholds")
	fmt.Println("  send --from <a> --to <b> --content <msg>   Inject a message")
	fmt.Println("  threads --agent <id>     List threads an agent participates in")
	fmt.Println("  threads show <id>        Show thread detail with messages")
	fmt.Println("  threads archive <id>     Archive an active thread")
	fmt.Println("  threads close <id>       Close an active thread")
	fmt.Println("  stats                    Show server, presence, and thread counts")
	fmt.Println("  session create --agent <id> [--ttl <duration>]   Mint a session JWT")
	fmt.Println("  token create --agent <id> [--caps <a,b>]         Mint an MCP access token")
	fmt.Println("  health                   Check gateway health")
	fmt.Println()
	yellow.Println("Environment:")
	fmt.Println("  PARLEY_GATEWAY_URL       Gateway base URL (default: http://localhost:8390)")
	fmt.Println("  PARLEY_TOKEN             Session token (falls back to the bootstrap token file)")
	fmt.Println("  PARLEY_ADMIN_CONFIG      Config file path (default: ~/.config/parley/admin.toml)")
	fmt.Println()
	yellow.Println("Examples:")
	fmt.Println("  parley-admin agents")
	fmt.Println("  parley-admin send --from operator --to researcher --content 'wrap up by 5'")
	fmt.Println("  parley-admin token create --agent researcher --caps comms,status")
	fmt.Println()
}

// apiClient talks to the gateway operator API.
type apiClient struct {
	baseURL string
	token   string
}

// errorBody is the JSON error shape the gateway returns.
type errorBody struct {
	Error string `json:"error"`
}

func (c *apiClient) do(method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr errorBody
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s (status %d)", apiErr.Error, resp.StatusCode)
		}
		return fmt.Errorf("request failed with status %d", resp.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}

func (c *apiClient) get(path string, out any) error {
	return c.do(http.MethodGet, path, nil, out)
}

func (c *apiClient) post(path string, body, out any) error {
	return c.do(http.MethodPost, path, body, out)
}

// cmdStatus shows gateway reachability and a stats summary.
func cmdStatus(client *apiClient) error {
	cyan := color.New(color.FgCyan)
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	cyan.Print(banner)
	fmt.Println()

	var stats gateway.StatsResponse
	if err := client.get("/api/stats", &stats); err != nil {
		yellow.Printf("  Gateway:  ")
		color.Red("UNREACHABLE (%v)\n", err)
		fmt.Println()
		return nil
	}

	green.Printf("  Gateway:  ")
	fmt.Printf("%s (%s)\n", client.baseURL, stats.ServerID)
	green.Printf("  Agents:   ")
	fmt.Printf("%d known, %d online\n", stats.KnownAgents, stats.OnlineCount)
	green.Printf("  Threads:  ")
	fmt.Printf("%d total, %d active\n", stats.Threads.TotalThreads, stats.Threads.ActiveThreads)
	green.Printf("  Sessions: ")
	fmt.Printf("%d MCP sessions, %d tools\n", stats.MCPSessions, stats.Tools)
	fmt.Println()

	return nil
}

// cmdAgents handles agents subcommands.
func cmdAgents(client *apiClient, args []string) error {
	subcmd := "list"
	if len(args) > 0 {
		subcmd = args[0]
		args = args[1:]
	}

	switch subcmd {
	case "list", "ls":
		return cmdAgentsList(client)
	case "show", "get":
		if len(args) < 1 {
			return fmt.Errorf("usage: agents show <agent-id>")
		}
		return cmdAgentsShow(client, args[0])
	default:
		return fmt.Errorf("unknown agents subcommand: %s (use list, show)", subcmd)
	}
}

// cmdAgentsList lists every agent the gateway has seen.
func cmdAgentsList(client *apiClient) error {
	var roster []presence.AgentStatus
	if err := client.get("/api/agents", &roster); err != nil {
		return err
	}

	cyan := color.New(color.FgCyan)
	fmt.Println()
	cyan.Println("  Agents")
	cyan.Println("  ------")

	if len(roster) == 0 {
		fmt.Println("  (no agents seen yet)")
		fmt.Println()
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  AGENT\tONLINE\tLAST SEEN\tMSGS\tERRS\tAVG MS\tUPTIME")
	fmt.Fprintln(w, "  -----\t------\t---------\t----\t----\t------\t------")

	for _, a := range roster {
		online := "no"
		if a.Online {
			online = "yes"
		}
		lastSeen := "(never)"
		if !a.LastSeen.IsZero() {
			lastSeen = a.LastSeen.Format("Jan 02 15:04")
		}
		fmt.Fprintf(w, "  %s\t%s\t%s\t%d\t%d\t%.0f\t%.1f%%\n",
			truncate(a.AgentID, 24), online, lastSeen,
			a.MessageCount, a.ErrorCount, a.AvgResponseTime, a.UptimePercent)
	}
	w.Flush()
	fmt.Println()

	return nil
}

// cmdAgentsShow shows one agent with identity validation and metrics.
func cmdAgentsShow(client *apiClient, agentID string) error {
	var detail gateway.AgentDetailResponse
	if err := client.get("/api/agents/"+agentID, &detail); err != nil {
		return err
	}

	cyan := color.New(color.FgCyan)
	green := color.New(color.FgGreen)
	red := color.New(color.FgRed)

	fmt.Println()
	cyan.Printf("  Agent: %s\n", detail.Status.AgentID)
	cyan.Println("  ------")

	if detail.Status.Online {
		green.Println("  Online:       yes")
	} else {
		fmt.Println("  Online:       no")
	}
	if !detail.Status.LastSeen.IsZero() {
		fmt.Printf("  Last seen:    %s\n", detail.Status.LastSeen.Format(time.RFC3339))
	}
	fmt.Printf("  Messages:     %d\n", detail.Status.MessageCount)
	fmt.Printf("  Errors:       %d\n", detail.Status.ErrorCount)
	if len(detail.Status.ActiveThreads) > 0 {
		fmt.Printf("  Threads:      %s\n", strings.Join(detail.Status.ActiveThreads, ", "))
	}

	fmt.Println()
	cyan.Println("  Identity")
	cyan.Println("  --------")
	if detail.Identity.Valid {
		green.Println("  Valid:        yes")
	} else {
		red.Println("  Valid:        no")
	}
	fmt.Printf("  Confidence:   %.2f\n", detail.Identity.Confidence)
	if detail.Identity.DriftDetected {
		red.Println("  Drift:        DETECTED")
	} else {
		fmt.Println("  Drift:        none")
	}

	if detail.Metrics != nil {
		fmt.Println()
		cyan.Println("  Performance")
		cyan.Println("  -----------")
		fmt.Printf("  Throughput:   %.2f msg/min\n", detail.Metrics.Throughput)
		fmt.Printf("  Success rate: %.1f%%\n", detail.Metrics.SuccessRate*100)
		fmt.Printf("  Avg response: %.0f ms\n", detail.Metrics.AvgResponseTime)
		fmt.Printf("  Stability:    %.2f\n", detail.Metrics.IdentityStability)
	}
	fmt.Println()

	return nil
}

// cmdFlagged lists agents exceeding performance thresholds.
func cmdFlagged(client *apiClient, args []string) error {
	query := ""
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--threshold-ms", "-t":
			if i+1 < len(args) {
				query = appendQuery(query, "threshold_ms="+args[i+1])
				i++
			}
		case "--errors", "-e":
			if i+1 < len(args) {
				query = appendQuery(query, "errors="+args[i+1])
				i++
			}
		}
	}

	var resp struct {
		Slow     []presence.AgentMetric `json:"slow"`
		Erroring []presence.AgentMetric `json:"erroring"`
	}
	if err := client.get("/api/flagged"+query, &resp); err != nil {
		return err
	}

	cyan := color.New(color.FgCyan)
	fmt.Println()
	cyan.Println("  Flagged Agents")
	cyan.Println("  --------------")

	if len(resp.Slow) == 0 && len(resp.Erroring) == 0 {
		fmt.Println("  (nothing flagged)")
		fmt.Println()
		return nil
	}

	if len(resp.Slow) > 0 {
		fmt.Println("  Slow responders:")
		for _, m := range resp.Slow {
			fmt.Printf("    %s (avg %.0f ms)\n", m.AgentID, m.Value)
		}
	}
	if len(resp.Erroring) > 0 {
		fmt.Println("  High error counts:")
		for _, m := range resp.Erroring {
			fmt.Printf("    %s (%d errors)\n", m.AgentID, int64(m.Value))
		}
	}
	fmt.Println()

	return nil
}

func appendQuery(query, param string) string {
	if query == "" {
		return "?" + param
	}
	return query + "&" + param
}

// cmdSend injects a message through the gateway.
func cmdSend(client *apiClient, args []string) error {
	req := gateway.SendMessageRequest{}

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--from", "-f":
			if i+1 < len(args) {
				req.From = args[i+1]
				i++
			}
		case "--to", "-t":
			if i+1 < len(args) {
				req.To = args[i+1]
				i++
			}
		case "--subject", "-s":
			if i+1 < len(args) {
				req.Subject = args[i+1]
				i++
			}
		case "--content", "-c":
			if i+1 < len(args) {
				req.Content = args[i+1]
				i++
			}
		case "--priority", "-p":
			if i+1 < len(args) {
				req.Priority = args[i+1]
				i++
			}
		case "--security":
			if i+1 < len(args) {
				req.Security = args[i+1]
				i++
			}
		}
	}

	if req.From == "" || req.To == "" || req.Content == "" {
		return fmt.Errorf("usage: send --from <agent> --to <agent> --content <message> [--subject <s>] [--priority <p>]")
	}

	var result struct {
		MessageID      string `json:"message_id"`
		ThreadID       string `json:"thread_id"`
		State          string `json:"state"`
		Duplicate      bool   `json:"duplicate"`
		GhostRecipient bool   `json:"ghost_recipient"`
	}
	if err := client.post("/api/send", req, &result); err != nil {
		return err
	}

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	green.Printf("✓ Sent message: %s\n", result.MessageID)
	fmt.Printf("  Thread: %s\n", result.ThreadID)
	fmt.Printf("  State:  %s\n", result.State)
	if result.Duplicate {
		yellow.Println("  (duplicate send, original returned)")
	}
	if result.GhostRecipient {
		yellow.Printf("  Warning: %s has never been seen by this gateway\n", req.To)
	}

	return nil
}

// cmdThreads handles thread subcommands.
func cmdThreads(client *apiClient, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: threads --agent <id> | threads show <id> | threads archive <id> | threads close <id>")
	}

	switch args[0] {
	case "--agent", "-a":
		if len(args) < 2 {
			return fmt.Errorf("usage: threads --agent <agent-id>")
		}
		return cmdThreadsList(client, args[1])
	case "show", "get":
		if len(args) < 2 {
			return fmt.Errorf("usage: threads show <thread-id>")
		}
		return cmdThreadsShow(client, args[1])
	case "archive":
		if len(args) < 2 {
			return fmt.Errorf("usage: threads archive <thread-id>")
		}
		return cmdThreadsStateChange(client, args[1], "archive")
	case "close":
		if len(args) < 2 {
			return fmt.Errorf("usage: threads close <thread-id>")
		}
		return cmdThreadsStateChange(client, args[1], "close")
	default:
		return fmt.Errorf("unknown threads subcommand: %s (use --agent, show, archive, close)", args[0])
	}
}

// cmdThreadsList lists threads for an agent.
func cmdThreadsList(client *apiClient, agentID string) error {
	var threads []gateway.ThreadResponse
	if err := client.get("/api/threads?agent="+agentID, &threads); err != nil {
		return err
	}

	cyan := color.New(color.FgCyan)
	fmt.Println()
	cyan.Printf("  Threads for %s\n", agentID)
	cyan.Println("  ----------------")

	if len(threads) == 0 {
		fmt.Println("  (no threads)")
		fmt.Println()
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  ID\tSUBJECT\tSTATE\tPRIORITY\tMSGS\tLAST ACTIVITY")
	fmt.Fprintln(w, "  --\t-------\t-----\t--------\t----\t-------------")

	for _, t := range threads {
		fmt.Fprintf(w, "  %s\t%s\t%s\t%s\t%d\t%s\n",
			truncate(t.ID, 20), truncate(t.Subject, 28), t.State, t.Priority,
			t.MessageCount, t.LastActivity.Format("Jan 02 15:04"))
	}
	w.Flush()
	fmt.Println()

	return nil
}

// cmdThreadsShow shows one thread with its messages.
func cmdThreadsShow(client *apiClient, threadID string) error {
	var detail gateway.ThreadDetailResponse
	if err := client.get("/api/threads/"+threadID, &detail); err != nil {
		return err
	}

	cyan := color.New(color.FgCyan)
	fmt.Println()
	cyan.Printf("  Thread: %s\n", detail.Thread.ID)
	cyan.Println("  -------")
	fmt.Printf("  Subject:      %s\n", detail.Thread.Subject)
	fmt.Printf("  Participants: %s\n", strings.Join(detail.Thread.Participants, ", "))
	fmt.Printf("  State:        %s\n", detail.Thread.State)
	fmt.Printf("  Priority:     %s\n", detail.Thread.Priority)
	fmt.Println()

	if len(detail.Messages) == 0 {
		fmt.Println("  (no messages)")
		fmt.Println()
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  TIME\tFROM\tTO\tSTATE\tID")
	fmt.Fprintln(w, "  ----\t----\t--\t-----\t--")

	for _, m := range detail.Messages {
		fmt.Fprintf(w, "  %s\t%s\t%s\t%s\t%s\n",
			m.Timestamp.Format("Jan 02 15:04"), m.Sender, m.Recipient,
			m.State, truncate(m.ID, 20))
	}
	w.Flush()
	fmt.Println()

	return nil
}

// cmdThreadsStateChange archives or closes a thread.
func cmdThreadsStateChange(client *apiClient, threadID, action string) error {
	var resp map[string]string
	if err := client.post("/api/threads/"+threadID+"/"+action, nil, &resp); err != nil {
		return err
	}

	green := color.New(color.FgGreen)
	green.Printf("✓ Thread %s: %s\n", resp["state"], threadID)

	return nil
}

// cmdStats shows the raw stats response.
func cmdStats(client *apiClient) error {
	var stats gateway.StatsResponse
	if err := client.get("/api/stats", &stats); err != nil {
		return err
	}

	cyan := color.New(color.FgCyan)
	fmt.Println()
	cyan.Println("  Gateway Stats")
	cyan.Println("  -------------")
	fmt.Printf("  Server ID:        %s\n", stats.ServerID)
	fmt.Printf("  Known agents:     %d\n", stats.KnownAgents)
	fmt.Printf("  Online agents:    %d\n", stats.OnlineCount)
	fmt.Printf("  Total threads:    %d\n", stats.Threads.TotalThreads)
	fmt.Printf("  Active threads:   %d\n", stats.Threads.ActiveThreads)
	fmt.Printf("  Archived threads: %d\n", stats.Threads.ArchivedThreads)
	fmt.Printf("  Closed threads:   %d\n", stats.Threads.ClosedThreads)
	fmt.Printf("  Total messages:   %d\n", stats.Threads.TotalMessages)
	fmt.Printf("  MCP sessions:     %d\n", stats.MCPSessions)
	fmt.Printf("  Tools:            %d\n", stats.Tools)
	fmt.Println()

	return nil
}

// cmdSession handles session subcommands.
func cmdSession(client *apiClient, args []string) error {
	subcmd := ""
	if len(args) > 0 {
		subcmd = args[0]
		args = args[1:]
	}

	switch subcmd {
	case "create":
		return cmdSessionCreate(client, args)
	default:
		return fmt.Errorf("usage: session create --agent <id> [--ttl <duration>]")
	}
}

// cmdSessionCreate mints a session JWT for an agent.
func cmdSessionCreate(client *apiClient, args []string) error {
	req := gateway.MintSessionRequest{}

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--agent", "-a":
			if i+1 < len(args) {
				req.AgentID = args[i+1]
				i++
			}
		case "--ttl", "-t":
			if i+1 < len(args) {
				req.TTL = args[i+1]
				i++
			}
		}
	}

	if req.AgentID == "" {
		return fmt.Errorf("usage: session create --agent <id> [--ttl <duration>]")
	}

	var resp gateway.MintSessionResponse
	if err := client.post("/api/sessions", req, &resp); err != nil {
		return err
	}

	green := color.New(color.FgGreen)
	cyan := color.New(color.FgCyan)

	fmt.Println()
	green.Println("  Session created")
	fmt.Println()
	cyan.Println("  Agent:    " + resp.AgentID)
	cyan.Println("  Expires:  " + resp.ExpiresAt.Format(time.RFC3339))
	fmt.Println()
	fmt.Println("  Token (keep this secret!):")
	fmt.Println()
	fmt.Println("  " + resp.Token)
	fmt.Println()

	return nil
}

// cmdToken handles token subcommands.
func cmdToken(client *apiClient, args []string) error {
	subcmd := ""
	if len(args) > 0 {
		subcmd = args[0]
		args = args[1:]
	}

	switch subcmd {
	case "create":
		return cmdTokenCreate(client, args)
	default:
		return fmt.Errorf("usage: token create --agent <id> [--caps <a,b>]")
	}
}

// cmdTokenCreate mints an MCP access token for an agent.
func cmdTokenCreate(client *apiClient, args []string) error {
	req := gateway.MintTokenRequest{}

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--agent", "-a":
			if i+1 < len(args) {
				req.AgentID = args[i+1]
				i++
			}
		case "--caps", "-c":
			if i+1 < len(args) {
				for _, c := range strings.Split(args[i+1], ",") {
					if c = strings.TrimSpace(c); c != "" {
						req.Capabilities = append(req.Capabilities, c)
					}
				}
				i++
			}
		}
	}

	if req.AgentID == "" {
		return fmt.Errorf("usage: token create --agent <id> [--caps <a,b>]")
	}

	var resp gateway.MintTokenResponse
	if err := client.post("/api/tokens", req, &resp); err != nil {
		return err
	}

	green := color.New(color.FgGreen)
	cyan := color.New(color.FgCyan)
	yellow := color.New(color.FgYellow)

	fmt.Println()
	green.Println("  MCP token created")
	fmt.Println()
	cyan.Println("  Agent: " + resp.AgentID)
	if len(req.Capabilities) > 0 {
		cyan.Println("  Caps:  " + strings.Join(req.Capabilities, ", "))
	} else {
		cyan.Println("  Caps:  (all tools)")
	}
	fmt.Println()
	fmt.Println("  Endpoint URL (keep this secret!):")
	fmt.Println()
	fmt.Println("  " + resp.URL)
	fmt.Println()
	yellow.Println("  Add to Claude Code:")
	fmt.Printf("    claude mcp add --transport http parley %s\n", resp.URL)
	fmt.Println()

	// Tokens live in gateway memory; they do not survive a restart
	yellow.Println("  Note: tokens are valid until the gateway restarts.")
	fmt.Println()

	return nil
}

// cmdHealth checks the gateway health endpoint.
func cmdHealth(client *apiClient) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, client.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}

	fmt.Println("healthy")
	return nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
