// slotstrikectl is the operator console for slotstriked.
//
// Runtime status, telemetry and health come from the gRPC API; rules,
// candidates and alerts come from the HTTP API.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/psaab/slotstrike/pkg/api"
	"github.com/psaab/slotstrike/pkg/grpcapi"
	"github.com/psaab/slotstrike/pkg/logging"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:50061", "slotstriked gRPC address")
	apiURL := flag.String("api", "http://127.0.0.1:8090", "slotstriked HTTP API base URL")
	apiKey := flag.String("api-key", os.Getenv("SLOTSTRIKE_API_KEY"), "HTTP API key")
	flag.Parse()

	conn, err := grpc.NewClient(*addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		fmt.Fprintf(os.Stderr, "slotstrikectl: connect: %v\n", err)
		os.Exit(1)
	}
	defer conn.Close()

	c := &ctl{
		runtime: grpcapi.NewRuntimeClient(conn),
		health:  healthpb.NewHealthClient(conn),
		apiURL:  strings.TrimRight(*apiURL, "/"),
		apiKey:  *apiKey,
		http:    &http.Client{Timeout: 5 * time.Second},
	}

	// Verify connectivity
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	st, err := c.runtime.GetStatus(ctx)
	cancel()
	if err != nil {
		fmt.Fprintf(os.Stderr, "slotstrikectl: cannot reach slotstriked at %s: %v\n", *addr, err)
		os.Exit(1)
	}

	// Non-interactive: run the arguments as one command.
	if flag.NArg() > 0 {
		if err := c.dispatch(strings.Join(flag.Args(), " ")); err != nil && err != errExit {
			fmt.Fprintf(os.Stderr, "slotstrikectl: %v\n", err)
			os.Exit(1)
		}
		return
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "slotstrike> ",
		HistoryFile:     "/tmp/slotstrikectl_history",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		AutoComplete:    completer,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "slotstrikectl: readline: %v\n", err)
		os.Exit(1)
	}
	defer rl.Close()

	fmt.Printf("slotstrikectl - connected to slotstriked (uptime: %s)\n", st.GetFields()["uptime"].GetStringValue())
	fmt.Println("Type 'help' for commands")
	fmt.Println()

	for {
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			if err == io.EOF {
				break
			}
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			break
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if err := c.dispatch(line); err != nil {
			if err == errExit {
				break
			}
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
	}
}

var errExit = errors.New("exit")

var completer = readline.NewPrefixCompleter(
	readline.PcItem("show",
		readline.PcItem("status"),
		readline.PcItem("telemetry"),
		readline.PcItem("health"),
		readline.PcItem("rules", readline.PcItem("history")),
		readline.PcItem("candidates"),
		readline.PcItem("alerts"),
	),
	readline.PcItem("help"),
	readline.PcItem("quit"),
)

type ctl struct {
	runtime *grpcapi.RuntimeClient
	health  healthpb.HealthClient
	apiURL  string
	apiKey  string
	http    *http.Client
}

func (c *ctl) dispatch(line string) error {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return nil
	}

	switch parts[0] {
	case "show":
		return c.handleShow(parts[1:])
	case "quit", "exit":
		return errExit
	case "?", "help":
		showHelp()
		return nil
	default:
		return fmt.Errorf("unknown command: %s", parts[0])
	}
}

func (c *ctl) handleShow(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("show: missing argument")
	}
	switch args[0] {
	case "status":
		return c.showStatus()
	case "telemetry":
		return c.showTelemetry()
	case "health":
		return c.showHealth()
	case "rules":
		if len(args) > 1 && args[1] == "history" {
			return c.showRuleHistory()
		}
		return c.showRules()
	case "candidates":
		return c.showRecords("/api/v1/candidates", args[1:])
	case "alerts":
		return c.showRecords("/api/v1/alerts", args[1:])
	default:
		return fmt.Errorf("unknown show target: %s", args[0])
	}
}

func (c *ctl) showStatus() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	st, err := c.runtime.GetStatus(ctx)
	if err != nil {
		return err
	}
	m := st.AsMap()
	fmt.Printf("Uptime:          %v\n", m["uptime"])
	fmt.Printf("Network stack:   %v\n", m["network_stack"])
	if name, ok := m["ingress"]; ok {
		fmt.Printf("Ingress:         %v\n", name)
	}
	fmt.Printf("Mint rules:      %s\n", num(m["mint_rules"]))
	fmt.Printf("Deployer rules:  %s\n", num(m["deployer_rules"]))
	printCounters("Ingress counters", m["ingress_counters"])
	printCounters("Engine counters", m["engine"])
	return nil
}

func printCounters(title string, v any) {
	counters, ok := v.(map[string]any)
	if !ok {
		return
	}
	keys := make([]string, 0, len(counters))
	for k := range counters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Printf("%s:\n", title)
	for _, k := range keys {
		fmt.Printf("  %-20s %s\n", k, num(counters[k]))
	}
}

func (c *ctl) showTelemetry() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	t, err := c.runtime.GetTelemetry(ctx)
	if err != nil {
		return err
	}
	m := t.AsMap()
	fmt.Printf("Enabled: %v  SLO: %sns  Dropped samples: %s\n",
		m["enabled"], num(m["slo_ns"]), num(m["dropped_samples"]))
	hops, _ := m["hops"].([]any)
	if len(hops) == 0 {
		fmt.Println("No samples recorded")
		return nil
	}
	fmt.Printf("%-28s %-8s %-12s %-12s %-12s\n", "Hop", "Samples", "p50 ns", "p99 ns", "max ns")
	for _, h := range hops {
		hop, ok := h.(map[string]any)
		if !ok {
			continue
		}
		fmt.Printf("%-28v %-8s %-12s %-12s %-12s\n", hop["hop"],
			num(hop["sample_count"]), num(hop["p50_ns"]), num(hop["p99_ns"]), num(hop["max_ns"]))
	}
	return nil
}

func (c *ctl) showHealth() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, svc := range []string{"", grpcapi.ServiceName} {
		resp, err := c.health.Check(ctx, &healthpb.HealthCheckRequest{Service: svc})
		if err != nil {
			return err
		}
		name := svc
		if name == "" {
			name = "(server)"
		}
		fmt.Printf("%-24s %s\n", name, resp.GetStatus())
	}
	return nil
}

func (c *ctl) showRules() error {
	var rr api.RulesResponse
	if err := c.getJSON("/api/v1/rules", &rr); err != nil {
		return err
	}
	printRules("Mint rules", rr.Mints)
	printRules("Deployer rules", rr.Deployers)
	return nil
}

func printRules(title string, rs []api.RuleInfo) {
	fmt.Printf("%s (%d):\n", title, len(rs))
	for _, r := range rs {
		fmt.Printf("  %s  snipe=%s SOL  tip=%s SOL  slippage=%s%%\n",
			r.Address, r.SnipeHeightSOL, r.JitoTipSOL, r.SlippagePct)
	}
}

func (c *ctl) showRuleHistory() error {
	var entries []api.RuleHistoryEntry
	if err := c.getJSON("/api/v1/rules/history", &entries); err != nil {
		return err
	}
	for _, e := range entries {
		fmt.Printf("%3d  %s\n", e.Index, e.Timestamp.Format(time.RFC3339))
		for _, ch := range e.Changes {
			fmt.Printf("       %s\n", ch)
		}
	}
	return nil
}

func (c *ctl) showRecords(path string, args []string) error {
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid count: %s", args[0])
		}
		path += "?limit=" + strconv.Itoa(n)
	}
	var recs []logging.Record
	if err := c.getJSON(path, &recs); err != nil {
		return err
	}
	if len(recs) == 0 {
		fmt.Println("No records")
		return nil
	}
	for _, r := range recs {
		ts := r.Time.Format("15:04:05.000")
		if r.Category == logging.CategoryAlert {
			fmt.Printf("%s  %-5s %s\n", ts, r.Level, r.Message)
			continue
		}
		matched := r.Matched
		if matched == "" {
			matched = "-"
		}
		fmt.Printf("%s  %-8s %-13s mint=%s matched=%s ingress=%dns\n",
			ts, r.Strategy, r.Source, orDash(r.Mint), matched, r.IngressNs)
	}
	return nil
}

// getJSON fetches path and decodes the envelope's data into out.
func (c *ctl) getJSON(path string, out any) error {
	req, err := http.NewRequest(http.MethodGet, c.apiURL+path, nil)
	if err != nil {
		return err
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var env struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
		Error   string          `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	if !env.Success {
		return fmt.Errorf("%s: %s", path, env.Error)
	}
	return json.Unmarshal(env.Data, out)
}

// num renders a JSON number without a fractional part.
func num(v any) string {
	switch n := v.(type) {
	case float64:
		return strconv.FormatFloat(n, 'f', 0, 64)
	case nil:
		return "-"
	default:
		return fmt.Sprint(n)
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func showHelp() {
	fmt.Println("Commands:")
	fmt.Println("  show status                Show network path and counters")
	fmt.Println("  show telemetry             Show hop latency percentiles")
	fmt.Println("  show health                Show gRPC health status")
	fmt.Println("  show rules                 Show active snipe rules")
	fmt.Println("  show rules history         Show rule snapshot history")
	fmt.Println("  show candidates [N]        Show recent pool candidates")
	fmt.Println("  show alerts [N]            Show recent warnings and errors")
	fmt.Println("  quit                       Exit")
}
