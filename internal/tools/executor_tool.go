package tools

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/standardbeagle/comet/internal/control"
	"github.com/standardbeagle/comet/internal/executor"
	"github.com/standardbeagle/comet/internal/history"
)

// ExecutorInput represents input for the executor tool.
type ExecutorInput struct {
	Action string `json:"action" jsonschema:"Action: status, send, setting, refresh, next_port, execute_once, execute_last, history"`
	Script string `json:"script,omitempty" jsonschema:"Script text (required for send and execute_once)"`
	Key    string `json:"key,omitempty" jsonschema:"Setting name (required for setting)"`
	Value  string `json:"value,omitempty" jsonschema:"Setting value (for setting)"`
	Limit  int    `json:"limit,omitempty" jsonschema:"Maximum history records to return (default: all)"`
}

// ExecutorOutput represents output from the executor tool.
type ExecutorOutput struct {
	CurrentPort  int              `json:"current_port"`
	Port         int              `json:"port,omitempty"`
	IsConnected  bool             `json:"is_connected"`
	IsConnecting bool             `json:"is_connecting"`
	Success      bool             `json:"success,omitempty"`
	Output       string           `json:"output,omitempty"`
	ExecutedOn   int              `json:"executed_on,omitempty"`
	Count        int              `json:"count,omitempty"`
	History      []history.Record `json:"history"`
}

// ExecutorTools serves the executor MCP tool.
type ExecutorTools struct {
	ctrl *control.Controller
}

// NewExecutorTools creates the tool handlers for ctrl.
func NewExecutorTools(ctrl *control.Controller) *ExecutorTools {
	return &ExecutorTools{ctrl: ctrl}
}

// RegisterExecutorTool registers the executor MCP tool with the server.
func RegisterExecutorTool(server *mcp.Server, et *ExecutorTools) {
	mcp.AddTool(server, &mcp.Tool{
		Name: "executor",
		Description: `Drive the local script executor listening on a loopback port.

Actions:
  status: Report the current port and whether it is connected
  send: Send a script to the connected executor
  setting: Send a "<key> <value>" setting command to the connected executor
  refresh: Try to connect to the current port now
  next_port: Move to the next port in the range (wraps) and disconnect
  execute_once: Scan the whole port range and run a script on the first executor found
  execute_last: Run the newest script in history again, the same way as execute_once
  history: List recent sends and executions, newest first

Examples:
  executor {action: "status"}
  executor {action: "refresh"}
  executor {action: "send", script: "print('hello')"}
  executor {action: "setting", key: "fps", value: "60"}
  executor {action: "execute_once", script: "print('hello')"}
  executor {action: "execute_last"}
  executor {action: "history", limit: 10}

send and setting need a connection; call refresh or next_port until
is_connected is true. execute_once and execute_last work without one.`,
	}, et.Handle)
}

// Handle dispatches one executor tool call.
func (et *ExecutorTools) Handle(ctx context.Context, req *mcp.CallToolRequest, input ExecutorInput) (*mcp.CallToolResult, ExecutorOutput, error) {
	switch input.Action {
	case "status":
		return nil, statusOutput(et.ctrl.Status()), nil
	case "send":
		return et.handleSend(ctx, input)
	case "setting":
		return et.handleSetting(ctx, input)
	case "refresh":
		return nil, statusOutput(et.ctrl.Refresh(ctx)), nil
	case "next_port":
		return nil, statusOutput(et.ctrl.NextPort()), nil
	case "execute_once":
		return et.handleExecuteOnce(ctx, input)
	case "execute_last":
		res, err := et.ctrl.ExecuteLast(ctx)
		return executeResult("execute_last", et.ctrl.Status(), res, err)
	case "history":
		records := et.ctrl.History(input.Limit)
		out := statusOutput(et.ctrl.Status())
		out.History = records
		out.Count = len(records)
		return nil, out, nil
	default:
		return errorResult(fmt.Sprintf("unknown action: %s (use: status, send, setting, refresh, next_port, execute_once, execute_last, history)", input.Action)),
			statusOutput(et.ctrl.Status()), nil
	}
}

func (et *ExecutorTools) handleSend(ctx context.Context, input ExecutorInput) (*mcp.CallToolResult, ExecutorOutput, error) {
	if input.Script == "" {
		return errorResult("script required"), statusOutput(et.ctrl.Status()), nil
	}

	err := et.ctrl.Send(ctx, input.Script)
	out := statusOutput(et.ctrl.Status())
	if err != nil {
		return errorResult("send: " + err.Error()), out, nil
	}
	out.Success = true
	return nil, out, nil
}

func (et *ExecutorTools) handleSetting(ctx context.Context, input ExecutorInput) (*mcp.CallToolResult, ExecutorOutput, error) {
	if input.Key == "" {
		return errorResult("key required"), statusOutput(et.ctrl.Status()), nil
	}

	err := et.ctrl.ChangeSetting(ctx, input.Key, input.Value)
	out := statusOutput(et.ctrl.Status())
	if err != nil {
		return errorResult("setting: " + err.Error()), out, nil
	}
	out.Success = true
	return nil, out, nil
}

func (et *ExecutorTools) handleExecuteOnce(ctx context.Context, input ExecutorInput) (*mcp.CallToolResult, ExecutorOutput, error) {
	if input.Script == "" {
		return errorResult("script required"), statusOutput(et.ctrl.Status()), nil
	}

	res, err := et.ctrl.ExecuteOnce(ctx, input.Script)
	return executeResult("execute_once", et.ctrl.Status(), res, err)
}

func executeResult(action string, st executor.Status, res control.ExecuteResult, err error) (*mcp.CallToolResult, ExecutorOutput, error) {
	out := statusOutput(st)
	out.ExecutedOn = res.Port
	if err != nil {
		return errorResult(action + ": " + err.Error()), out, nil
	}
	out.Success = true
	out.Output = res.Output
	return nil, out, nil
}

func statusOutput(st executor.Status) ExecutorOutput {
	return ExecutorOutput{
		CurrentPort:  st.CurrentPort,
		Port:         st.BoundPort,
		IsConnected:  st.Connected,
		IsConnecting: st.Connecting,
		History:      []history.Record{},
	}
}

func errorResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: msg},
		},
		IsError: true,
	}
}
