// Package toolserver exposes a Driver as MCP tools over stdio, so that
// assistants can list test suites, start tasks and inspect their results.
package toolserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/giantswarm/suidriver/internal/api"
	"github.com/giantswarm/suidriver/internal/driver"
	"github.com/giantswarm/suidriver/internal/report"
	"github.com/giantswarm/suidriver/pkg/logging"
)

// Server registers the driver tools on an MCP server.
type Server struct {
	drv       *driver.Driver
	mcpServer *server.MCPServer
}

// New creates the MCP server for drv.
func New(drv *driver.Driver) *Server {
	info := drv.Info()
	s := &Server{
		drv: drv,
		mcpServer: server.NewMCPServer(
			"suidriver",
			info.Version,
			server.WithToolCapabilities(false),
		),
	}
	s.registerTools()
	return s
}

// MCPServer returns the underlying server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// Serve speaks MCP on in/out until ctx is done or in is closed.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	logging.Info("ToolServer", "Serving MCP tools on stdio")
	return server.NewStdioServer(s.mcpServer).Listen(ctx, in, out)
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool("list_descriptors",
		mcp.WithDescription("List the executable test suites known to the driver"),
		mcp.WithArray("ids",
			mcp.Description("Only return these descriptor ids"),
			mcp.WithStringItems(),
		),
	), s.handleListDescriptors)

	s.mcpServer.AddTool(mcp.NewTool("get_descriptor",
		mcp.WithDescription("Get one test suite descriptor"),
		mcp.WithString("id", mcp.Required(), mcp.Description("Descriptor id")),
	), s.handleGetDescriptor)

	s.mcpServer.AddTool(mcp.NewTool("start_task",
		mcp.WithDescription("Run a test suite against a test object"),
		mcp.WithString("descriptor_id", mcp.Required(), mcp.Description("Descriptor id to run")),
		mcp.WithArray("cases",
			mcp.Description("Test case names to run; all cases when empty"),
			mcp.WithStringItems(),
		),
		mcp.WithString("suite", mcp.Description("Restrict the run to this test suite")),
		mcp.WithObject("arguments", mcp.Description("Test run arguments (string values)")),
		mcp.WithObject("resources", mcp.Description("Test object resources, name to URI")),
		mcp.WithString("username", mcp.Description("Test object user name")),
		mcp.WithString("password", mcp.Description("Test object password")),
		mcp.WithBoolean("ignore_errors", mcp.Description("Report the run as passed even with failed assertions")),
		mcp.WithBoolean("wait", mcp.Description("Block until the task has finished")),
	), s.handleStartTask)

	s.mcpServer.AddTool(mcp.NewTool("task_progress",
		mcp.WithDescription("Get the progress of a task"),
		mcp.WithString("task_id", mcp.Required(), mcp.Description("Task id")),
	), s.handleTaskProgress)

	s.mcpServer.AddTool(mcp.NewTool("task_result",
		mcp.WithDescription("Get the outcome and result tree of a task"),
		mcp.WithString("task_id", mcp.Required(), mcp.Description("Task id")),
		mcp.WithString("format",
			mcp.Description("Output format: json (default), yaml, text or table"),
			mcp.Enum("json", "yaml", "text", "table"),
		),
	), s.handleTaskResult)

	s.mcpServer.AddTool(mcp.NewTool("cancel_task",
		mcp.WithDescription("Cancel a task; finished tasks are left unchanged"),
		mcp.WithString("task_id", mcp.Required(), mcp.Description("Task id")),
	), s.handleCancelTask)
}

func (s *Server) handleListDescriptors(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ids, err := stringList(request.GetArguments()["ids"])
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	descs := s.drv.Descriptors()
	if len(ids) > 0 {
		descs = s.drv.Lookup(ids)
	}
	if descs == nil {
		descs = []*api.ProjectDescriptor{}
	}
	return jsonResult(descs)
}

func (s *Server) handleGetDescriptor(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError("id argument is required"), nil
	}
	d, err := s.drv.Descriptor(id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(d)
}

func (s *Server) handleStartTask(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	cfg, err := taskConfig(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if request.GetBool("wait", false) {
		ctrl, err := s.drv.Execute(ctx, cfg)
		if ctrl == nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(ctrl.Outcome())
	}

	ctrl, err := s.drv.Submit(cfg)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(ctrl.Outcome())
}

func (s *Server) handleTaskProgress(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("task_id")
	if err != nil {
		return mcp.NewToolResultError("task_id argument is required"), nil
	}
	ctrl, err := s.drv.Task(id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	snap := ctrl.Progress()
	return jsonResult(map[string]any{
		"state":          ctrl.State(),
		"stepsCompleted": snap.StepsCompleted,
		"stepsTotal":     snap.StepsTotal,
		"percent":        snap.Percent(),
		"elapsed":        snap.Elapsed().String(),
	})
}

func (s *Server) handleTaskResult(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("task_id")
	if err != nil {
		return mcp.NewToolResultError("task_id argument is required"), nil
	}
	format, err := report.ParseFormat(request.GetString("format", string(report.FormatJSON)))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	rep, err := s.lookupReport(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var buf bytes.Buffer
	if err := (report.Renderer{Format: format}).Task(&buf, rep); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to render result: %v", err)), nil
	}
	return mcp.NewToolResultText(buf.String()), nil
}

func (s *Server) handleCancelTask(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("task_id")
	if err != nil {
		return mcp.NewToolResultError("task_id argument is required"), nil
	}
	ctrl, err := s.drv.Task(id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	ctrl.Cancel()
	return jsonResult(ctrl.Outcome())
}

// lookupReport prefers the live task and falls back to the store.
func (s *Server) lookupReport(ctx context.Context, id string) (report.Report, error) {
	if ctrl, err := s.drv.Task(id); err == nil {
		return report.Report{Outcome: ctrl.Outcome(), Result: ctrl.Result()}, nil
	}
	out, err := s.drv.StoredOutcome(ctx, id)
	if err != nil {
		if api.IsNotFound(err) {
			return report.Report{}, api.NewTaskNotFoundError(id)
		}
		return report.Report{}, err
	}
	rep := report.Report{Outcome: out}
	if node, err := s.drv.StoredResult(ctx, id); err == nil {
		rep.Result = node
	}
	return rep, nil
}

func taskConfig(request mcp.CallToolRequest) (api.TaskConfig, error) {
	descriptorID, err := request.RequireString("descriptor_id")
	if err != nil {
		return api.TaskConfig{}, fmt.Errorf("descriptor_id argument is required")
	}
	args := request.GetArguments()

	cases, err := stringList(args["cases"])
	if err != nil {
		return api.TaskConfig{}, err
	}
	arguments, err := parameterSet("arguments", args["arguments"])
	if err != nil {
		return api.TaskConfig{}, err
	}
	resources, err := parameterSet("resources", args["resources"])
	if err != nil {
		return api.TaskConfig{}, err
	}

	return api.TaskConfig{
		DescriptorID: descriptorID,
		Cases:        cases,
		Suite:        request.GetString("suite", ""),
		Arguments:    arguments,
		TestObject: api.TestObject{
			Resources: resources,
			Username:  request.GetString("username", ""),
			Password:  request.GetString("password", ""),
		},
		IgnoreErrors: request.GetBool("ignore_errors", false),
	}, nil
}

func stringList(raw any) ([]string, error) {
	if raw == nil {
		return nil, nil
	}
	items, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("expected a list of strings, got %T", raw)
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("expected a list of strings, got element %T", item)
		}
		out = append(out, s)
	}
	return out, nil
}

// parameterSet converts a JSON object argument. Object key order is not
// preserved by the MCP transport, so keys are applied as decoded.
func parameterSet(name string, raw any) (api.ParameterSet, error) {
	var ps api.ParameterSet
	if raw == nil {
		return ps, nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return ps, fmt.Errorf("invalid %s: %w", name, err)
	}
	if err := json.Unmarshal(data, &ps); err != nil {
		return ps, fmt.Errorf("invalid %s: %w", name, err)
	}
	return ps, nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to format result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
