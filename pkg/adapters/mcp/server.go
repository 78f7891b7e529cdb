package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/botasky11/totml/internal/logging"
	"github.com/botasky11/totml/internal/presentation/graph"
	"github.com/botasky11/totml/pkg/domain"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

const experimentsURI = "totml://experiments"

// Service is the read side of the experiment manager used by the MCP tools.
type Service interface {
	List(ctx context.Context) ([]string, error)
	Get(ctx context.Context, id string) (*domain.Experiment, error)
}

// ExperimentInfo is one entry of list_experiments and the experiments resource.
type ExperimentInfo struct {
	ID          string   `json:"id" jsonschema_description:"Experiment identifier"`
	Name        string   `json:"name"`
	Goal        string   `json:"goal"`
	Status      string   `json:"status" jsonschema_description:"pending, running, completed or failed"`
	CurrentStep int      `json:"current_step"`
	TotalSteps  int      `json:"total_steps"`
	BestMetric  *float64 `json:"best_metric,omitempty" jsonschema_description:"Metric of the best working node, if any"`
}

// ExperimentList wraps list_experiments results.
type ExperimentList struct {
	Experiments []ExperimentInfo `json:"experiments"`
}

// Server exposes experiment journals as an MCP server.
type Server struct {
	svc       Service
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// Option configures the server.
type Option func(*Server)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewServer creates a new MCP Server instance.
func NewServer(svc Service, version string, opts ...Option) *Server {
	s := &Server{
		svc:       svc,
		logger:    logging.NewNop(),
		mcpServer: server.NewMCPServer("totml-mcp", version),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer returns the underlying server, e.g. for in-process clients.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE serves the MCP protocol over SSE on addr until ctx is done.
func (s *Server) ServeSSE(ctx context.Context, addr, baseURL string) error {
	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", sseServer.SSEHandler())
	mux.Handle("/message", sseServer.MessageHandler())

	httpServer := &http.Server{Addr: addr, Handler: mux}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("MCP server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool("list_experiments",
		mcp.WithDescription("List stored experiments with their status and best metric."),
		mcp.WithOutputSchema[ExperimentList](),
	), mcp.NewStructuredToolHandler(s.handleListExperiments))

	s.mcpServer.AddTool(mcp.NewTool("get_best_node",
		mcp.WithDescription("Return the best working node (plan, code, metric) of an experiment."),
		mcp.WithString("experiment_id", mcp.Required(), mcp.Description("Experiment identifier")),
	), s.handleBestNode)

	s.mcpServer.AddTool(mcp.NewTool("journal_summary",
		mcp.WithDescription("Summarize the working attempts of an experiment, as shown to the agent."),
		mcp.WithString("experiment_id", mcp.Required(), mcp.Description("Experiment identifier")),
	), s.handleSummary)

	s.mcpServer.AddTool(mcp.NewTool("get_node",
		mcp.WithDescription("Return one node of an experiment journal, including its terminal output."),
		mcp.WithString("experiment_id", mcp.Required(), mcp.Description("Experiment identifier")),
		mcp.WithString("node_id", mcp.Required(), mcp.Description("Node identifier")),
	), s.handleGetNode)

	s.mcpServer.AddTool(mcp.NewTool("get_tree",
		mcp.WithDescription("Render the solution tree of an experiment as a Mermaid graph."),
		mcp.WithString("experiment_id", mcp.Required(), mcp.Description("Experiment identifier")),
	), s.handleTree)
}

func (s *Server) handleListExperiments(ctx context.Context, _ mcp.CallToolRequest, _ map[string]any) (ExperimentList, error) {
	infos, err := s.experiments(ctx)
	if err != nil {
		return ExperimentList{}, err
	}
	return ExperimentList{Experiments: infos}, nil
}

func (s *Server) handleBestNode(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("experiment_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	j, err := s.journal(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	best := j.BestNode(true)
	if best == nil {
		return mcp.NewToolResultText("no working solution yet"), nil
	}
	return jsonResult(best)
}

func (s *Server) handleSummary(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("experiment_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	j, err := s.journal(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	summary := j.GenerateSummary()
	if summary == "" {
		summary = "no attempts recorded yet"
	}
	return mcp.NewToolResultText(summary), nil
}

func (s *Server) handleGetNode(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("experiment_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	nodeID, err := request.RequireString("node_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	exp, err := s.svc.Get(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	for _, n := range exp.Journal.Nodes {
		if n.ID == nodeID {
			return jsonResult(n)
		}
	}
	return mcp.NewToolResultError(fmt.Sprintf("node %q not found in experiment %q", nodeID, id)), nil
}

func (s *Server) handleTree(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("experiment_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	exp, err := s.svc.Get(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(graph.GenerateMermaid(exp.Journal.Nodes, &graph.TreeOverlay{BestNodeID: exp.BestNodeID})), nil
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource(experimentsURI, "Stored experiments",
		mcp.WithResourceDescription("Every stored experiment with its status and best metric"),
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		infos, err := s.experiments(ctx)
		if err != nil {
			return nil, err
		}
		data, err := json.Marshal(infos)
		if err != nil {
			return nil, err
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      experimentsURI,
				MIMEType: "application/json",
				Text:     string(data),
			},
		}, nil
	})
}

func (s *Server) experiments(ctx context.Context) ([]ExperimentInfo, error) {
	ids, err := s.svc.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list experiments: %w", err)
	}
	infos := make([]ExperimentInfo, 0, len(ids))
	for _, id := range ids {
		exp, err := s.svc.Get(ctx, id)
		if errors.Is(err, domain.ErrExperimentNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("load experiment %s: %w", id, err)
		}
		infos = append(infos, ExperimentInfo{
			ID:          exp.ID,
			Name:        exp.Name,
			Goal:        exp.Task.Goal,
			Status:      string(exp.Status),
			CurrentStep: exp.CurrentStep,
			TotalSteps:  exp.TotalSteps,
			BestMetric:  exp.BestMetric,
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos, nil
}

func (s *Server) journal(ctx context.Context, id string) (*domain.Journal, error) {
	exp, err := s.svc.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	j, err := domain.RestoreJournal(exp.Journal)
	if err != nil {
		s.logger.Error("stored journal is inconsistent", "experiment", id, "error", err)
		return nil, err
	}
	return j, nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(data)), nil
}
