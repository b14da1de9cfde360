package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"swarmline/internal/agent"
	"swarmline/internal/config"
	"swarmline/internal/db"
	"swarmline/internal/delegate"
	"swarmline/internal/domain"
	"swarmline/internal/migrate"
	"swarmline/internal/orchestrator"
	"swarmline/internal/registry"
	"swarmline/internal/repo"
	"swarmline/internal/server"
	swarmsdk "swarmline/sdk/go"
)

var rootCmd = &cobra.Command{
	Use:   "swarm",
	Short: "Swarmline CLI",
	Long: `Swarmline coordinates specialist agents behind one request surface.
- Coordinator: accepts a request, splits it into capability subtasks, fans
  them out to agents, and merges the answers into one response.
- Agents: single-capability services (research, code, analytics) that accept
  tasks, run them in the background, and answer status long-polls.
- Contexts: conversations; every request/response pair is stored under one.
- Workspace: the .swarmline directory holding the conversation database;
  routing lives in swarmline.yml next to it.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("SWARMLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("server", "http://localhost:8000", "coordinator base URL")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("server", rootCmd.PersistentFlags().Lookup("server"))
}

func registerCommands() {
	rootCmd.AddCommand(coordinatorCmd())
	rootCmd.AddCommand(agentCmd())
	rootCmd.AddCommand(askCmd())
	rootCmd.AddCommand(contextCmd())
	rootCmd.AddCommand(agentsCmd())
	rootCmd.AddCommand(tasksCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(configCmd())
}

func coordinatorCmd() *cobra.Command {
	var addr, cfgPath string
	cmd := &cobra.Command{
		Use:   "coordinator",
		Short: "Start the coordinator server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			cfg, err := loadConfig(workspace, cfgPath)
			if err != nil {
				return err
			}
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			coord := orchestrator.New(cfg, delegate.New(), conn)
			handler, err := server.NewCoordinatorAPI(server.CoordinatorConfig{Coordinator: coord})
			if err != nil {
				return err
			}
			if addr == "" {
				addr = cfg.Coordinator.Listen
			}
			fmt.Printf("Serving coordinator on http://%s (OpenAPI at /v0/openapi.json, Swagger UI at /docs)\n", addr)
			return serve(cmd.Context(), addr, handler)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	cmd.Flags().StringVar(&cfgPath, "config", "", "config file (default <workspace>/swarmline.yml)")
	return cmd
}

func agentCmd() *cobra.Command {
	var capability, addr, cfgPath string
	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Start a capability agent server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			cfg, err := loadConfig(workspace, cfgPath)
			if err != nil {
				return err
			}
			cap := domain.Capability(capability)
			provider, err := agent.BuiltinProvider(cap)
			if err != nil {
				return err
			}
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			r := repo.Repo{DB: conn}

			reg := registry.New()
			defer reg.Close()
			reg.SetArchive(func(t domain.Task) {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := r.ArchiveTask(ctx, t, repo.Now(time.Now())); err != nil {
					log.Printf("archive task %s: %v", t.ID, err)
				}
			})
			reg.StartJanitor(cfg.ArchiveTTL(), time.Minute)

			rt := agent.NewRuntime(cap, reg, provider, cfg.MaxExecution())
			handler, err := server.NewAgentAPI(server.AgentConfig{Runtime: rt, Config: cfg})
			if err != nil {
				return err
			}
			if addr == "" {
				if route := cfg.Route(cap); route != nil && route.URL != "" {
					addr = listenAddr(route.URL)
				}
			}
			if addr == "" {
				addr = cfg.Agent.Listen
			}
			fmt.Printf("Serving %s agent on http://%s\n", cap, addr)
			return serve(cmd.Context(), addr, handler)
		},
	}
	cmd.Flags().StringVar(&capability, "capability", "research", "capability to serve (research, code, analytics)")
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config route)")
	cmd.Flags().StringVar(&cfgPath, "config", "", "config file (default <workspace>/swarmline.yml)")
	return cmd
}

func loadConfig(workspace, cfgPath string) (*config.Config, error) {
	if cfgPath != "" {
		return config.FromFile(cfgPath)
	}
	return config.LoadOptional(workspace)
}

// listenAddr derives a listen address from a route URL like
// http://localhost:8001 by keeping only the port.
func listenAddr(routeURL string) string {
	idx := strings.LastIndex(routeURL, ":")
	if idx < 0 {
		return ""
	}
	port := strings.TrimRight(routeURL[idx:], "/")
	if len(port) < 2 {
		return ""
	}
	return port
}

func serve(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{Addr: addr, Handler: handler}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func askCmd() *cobra.Command {
	var contextID string
	cmd := &cobra.Command{
		Use:   "ask <message>",
		Short: "Send a request to the coordinator",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := swarmsdk.New(viper.GetString("server"))
			answer, err := client.Ask(cmd.Context(), args[0], contextID, nil)
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(answer)
			}
			fmt.Printf("Context: %s\n\n%s\n", answer.ContextID, answer.Summary)
			return nil
		},
	}
	cmd.Flags().StringVar(&contextID, "context", "", "continue an existing conversation")
	return cmd
}

func contextCmd() *cobra.Command {
	ctxCmd := &cobra.Command{Use: "contexts", Short: "Inspect conversations"}
	ctxCmd.AddCommand(contextShowCmd())
	return ctxCmd
}

func contextShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <context-id>",
		Short: "Show a conversation and its exchanges",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := swarmsdk.New(viper.GetString("server"))
			conv, err := client.Context(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(conv)
			}
			fmt.Printf("Context: %s (%s)\n", conv.ContextID, conv.Status)
			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"ID", "Request", "Success", "Created"})
			for _, e := range conv.Exchanges {
				tw.AppendRow(table.Row{e.ID, clip(e.Request, 60), e.Success, e.CreatedAt})
			}
			tw.Render()
			return nil
		},
	}
	return cmd
}

func agentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agents",
		Short: "List configured agents and reachability",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := swarmsdk.New(viper.GetString("server"))
			statuses, err := client.Agents(cmd.Context())
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(statuses)
			}
			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"Capability", "URL", "Connected"})
			for _, s := range statuses {
				tw.AppendRow(table.Row{s.Capability, s.URL, s.Connected})
			}
			tw.Render()
			return nil
		},
	}
	return cmd
}

func tasksCmd() *cobra.Command {
	var limit int
	var agentURL string
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "List tasks: live from an agent, or archived from the workspace database",
		RunE: func(cmd *cobra.Command, args []string) error {
			if agentURL != "" {
				return listAgentTasks(cmd.Context(), agentURL)
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				tasks, err := r.ListArchivedTasks(ctx, limit)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(tasks)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Capability", "Status", "Context", "Updated"})
				for _, t := range tasks {
					tw.AppendRow(table.Row{t.ID, t.Capability, t.Status, t.ContextID, t.UpdatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "n", 50, "number of tasks")
	cmd.Flags().StringVar(&agentURL, "agent-url", "", "list live tasks from this agent endpoint instead")
	return cmd
}

func listAgentTasks(ctx context.Context, agentURL string) error {
	url := strings.TrimRight(agentURL, "/") + "/a2a/tasks"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode >= 300 {
		return fmt.Errorf("agent returned status %d", res.StatusCode)
	}
	var tasks []server.TaskResponse
	if err := json.NewDecoder(res.Body).Decode(&tasks); err != nil {
		return err
	}
	if viper.GetBool("json") {
		return printJSON(tasks)
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"ID", "Capability", "Status", "Context", "Updated"})
	for _, t := range tasks {
		tw.AppendRow(table.Row{t.TaskID, t.Capability, t.Status, t.ContextID, t.UpdatedAt})
	}
	tw.Render()
	return nil
}

func logCmd() *cobra.Command {
	log := &cobra.Command{Use: "log", Short: "Inspect the event log"}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var contextID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				events, err := r.ListEvents(ctx, contextID, n)
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&contextID, "context", "", "context id filter")
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Manage swarmline.yml"}
	cfg.AddCommand(configInitCmd())
	cfg.AddCommand(configShowCmd())
	return cfg
}

func configInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default swarmline.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}
	return cmd
}

func configShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOptional(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			return printJSONOrTable(cfg)
		},
	}
	return cmd
}

// --- helpers ---

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, repo.Repo{DB: conn})
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
