package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"golang.org/x/sync/errgroup"

	"github.com/aretw0/formbridge"
	"github.com/aretw0/formbridge/internal/logging"
	"github.com/aretw0/formbridge/pkg/domain"
	"github.com/aretw0/formbridge/pkg/mapping"
)

const mappingsURI = "formbridge://mappings"

// Bridge defines the facade operations exposed as MCP tools.
type Bridge interface {
	Mappings(ctx context.Context) ([]string, error)
	Definition(ctx context.Context, name string) (domain.MappingDefinition, error)
	Preview(ctx context.Context, name string, data domain.FormData, audit domain.Audit) (*mapping.Batch, error)
	All(data domain.FormData) ([]domain.Parameter, error)
}

// MappingsResponse lists the available mappings.
type MappingsResponse struct {
	Mappings []string `json:"mappings" jsonschema_description:"Names of the available mapping definitions"`
}

// ParametersResponse aligns with the HTTP API and provides a unified structure across adapters.
type ParametersResponse struct {
	SubmissionID string             `json:"submission_id,omitempty" jsonschema_description:"Identifier generated for this mapping run"`
	Parameters   []domain.Parameter `json:"parameters" jsonschema_description:"Ordered parameters as they would be sent to the engine"`
	Duplicates   []string           `json:"duplicates,omitempty" jsonschema_description:"Parameter names sent more than once"`
}

// Server wraps the Bridge and exposes it as an MCP Server.
type Server struct {
	bridge    Bridge
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// NewServer creates a new MCP Server instance. A nil logger discards output.
func NewServer(bridge Bridge, logger *slog.Logger) *Server {
	if logger == nil {
		logger = logging.NewNop()
	}
	s := &Server{
		bridge:    bridge,
		logger:    logger,
		mcpServer: server.NewMCPServer("formbridge-mcp", formbridge.Version),
	}
	s.registerTools()
	s.registerResources()
	return s
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE starts the server on the given port using SSE.
func (s *Server) ServeSSE(ctx context.Context, port int) error {
	addr := fmt.Sprintf(":%d", port)
	baseURL := fmt.Sprintf("http://localhost:%d", port)

	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sseServer.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sseServer.MessageHandler()))

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("MCP Server listening (SSE)", "address", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.logger.Info("Shutdown signal received, shutting down MCP server")
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	})
	return g.Wait()
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) registerTools() {
	// TOOL: list_mappings
	s.mcpServer.AddTool(mcp.NewTool("list_mappings",
		mcp.WithDescription("List the form mappings that can be previewed or submitted."),
		mcp.WithOutputSchema[MappingsResponse](),
	), mcp.NewStructuredToolHandler(s.handleListMappings))

	// TOOL: get_mapping
	s.mcpServer.AddTool(mcp.NewTool("get_mapping",
		mcp.WithDescription("Get the declarative definition of a mapping: event, fields, hidden parameters and schema."),
		mcp.WithString("mapping", mcp.Required(), mcp.Description("Mapping name")),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		name, _ := request.GetArguments()["mapping"].(string)
		def, err := s.bridge.Definition(ctx, name)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("get mapping failed: %v", err)), nil
		}
		jsonBytes, _ := json.Marshal(def)
		return mcp.NewToolResultText(string(jsonBytes)), nil
	})

	// TOOL: preview_parameters
	s.mcpServer.AddTool(mcp.NewTool("preview_parameters",
		mcp.WithDescription("Map form data through a mapping and return the parameters that would be sent. Nothing is submitted."),
		mcp.WithString("mapping", mcp.Required(), mcp.Description("Mapping name")),
		mcp.WithString("data", mcp.Required(), mcp.Description("JSON object of form field values")),
		mcp.WithString("user_id", mcp.Description("User recorded in audit parameters (optional)")),
		mcp.WithString("device", mcp.Description("Device recorded in audit parameters (optional)")),
		mcp.WithOutputSchema[ParametersResponse](),
	), mcp.NewStructuredToolHandler(s.handlePreview))

	// TOOL: all_parameters
	s.mcpServer.AddTool(mcp.NewTool("all_parameters",
		mcp.WithDescription("Convert every form field into an Input parameter, ordered by field name."),
		mcp.WithString("data", mcp.Required(), mcp.Description("JSON object of form field values")),
		mcp.WithOutputSchema[ParametersResponse](),
	), mcp.NewStructuredToolHandler(s.handleAllParameters))
}

// Handler methods for structured tools

func (s *Server) handleListMappings(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (MappingsResponse, error) {
	names, err := s.bridge.Mappings(ctx)
	if err != nil {
		return MappingsResponse{}, fmt.Errorf("list mappings failed: %w", err)
	}
	if names == nil {
		names = []string{}
	}
	return MappingsResponse{Mappings: names}, nil
}

func (s *Server) handlePreview(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (ParametersResponse, error) {
	name, _ := args["mapping"].(string)
	data, err := parseData(args["data"])
	if err != nil {
		return ParametersResponse{}, err
	}

	audit := domain.Audit{}
	audit.UserID, _ = args["user_id"].(string)
	audit.Device, _ = args["device"].(string)

	batch, err := s.bridge.Preview(ctx, name, data, audit)
	if err != nil {
		s.logger.Debug("MCP Preview: rejected", "mapping", name, "err", err)
		return ParametersResponse{}, fmt.Errorf("preview failed: %w", err)
	}
	return ParametersResponse{
		SubmissionID: batch.SubmissionID,
		Parameters:   batch.Parameters,
		Duplicates:   domain.DuplicateNames(batch.Parameters),
	}, nil
}

func (s *Server) handleAllParameters(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (ParametersResponse, error) {
	data, err := parseData(args["data"])
	if err != nil {
		return ParametersResponse{}, err
	}
	params, err := s.bridge.All(data)
	if err != nil {
		return ParametersResponse{}, fmt.Errorf("conversion failed: %w", err)
	}
	return ParametersResponse{Parameters: params}, nil
}

// parseData accepts form data as a JSON string or an already decoded object.
func parseData(raw any) (domain.FormData, error) {
	switch v := raw.(type) {
	case nil:
		return domain.FormData{}, nil
	case map[string]any:
		return domain.FormData(v), nil
	case string:
		data := domain.FormData{}
		if v == "" {
			return data, nil
		}
		dec := json.NewDecoder(bytes.NewReader([]byte(v)))
		dec.UseNumber()
		if err := dec.Decode(&data); err != nil {
			return nil, fmt.Errorf("data must be a JSON object: %w", err)
		}
		return data, nil
	default:
		return nil, fmt.Errorf("data must be a JSON object, got %T", raw)
	}
}

func (s *Server) registerResources() {
	// EXPOSE: formbridge://mappings
	s.mcpServer.AddResource(mcp.NewResource(mappingsURI, "Mapping Definitions",
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		names, err := s.bridge.Mappings(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list mappings: %w", err)
		}
		defs := make([]domain.MappingDefinition, 0, len(names))
		for _, n := range names {
			def, err := s.bridge.Definition(ctx, n)
			if err != nil {
				return nil, err
			}
			defs = append(defs, def)
		}
		jsonBytes, _ := json.Marshal(defs)

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      mappingsURI,
				MIMEType: "application/json",
				Text:     string(jsonBytes),
			},
		}, nil
	})
}
