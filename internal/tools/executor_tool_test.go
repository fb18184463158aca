package tools

import (
	"context"
	"net/http"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/comet/internal/control"
	"github.com/standardbeagle/comet/internal/executor"
	"github.com/standardbeagle/comet/internal/executor/executortest"
)

func newTools(t *testing.T) (*ExecutorTools, *executortest.Server) {
	t.Helper()
	srv := executortest.NewServer()
	t.Cleanup(srv.Close)
	opts := srv.Options()
	ctrl := control.New(control.Config{
		Manager: executor.NewManager(opts, nil),
		Scanner: executor.NewScanner(opts),
	})
	return NewExecutorTools(ctrl), srv
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, res)
	require.NotEmpty(t, res.Content)
	text, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	return text.Text
}

func TestExecutorTool_StatusRefreshSend(t *testing.T) {
	et, srv := newTools(t)
	ctx := context.Background()

	res, out, err := et.Handle(ctx, nil, ExecutorInput{Action: "status"})
	require.NoError(t, err)
	assert.Nil(t, res)
	assert.Equal(t, srv.Port(), out.CurrentPort)
	assert.False(t, out.IsConnected)
	assert.NotNil(t, out.History)

	res, _, err = et.Handle(ctx, nil, ExecutorInput{Action: "send", Script: "print(1)"})
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(t, res), "not connected")

	_, out, err = et.Handle(ctx, nil, ExecutorInput{Action: "refresh"})
	require.NoError(t, err)
	assert.True(t, out.IsConnected)
	assert.Equal(t, srv.Port(), out.Port)

	res, out, err = et.Handle(ctx, nil, ExecutorInput{Action: "send", Script: "print(1)"})
	require.NoError(t, err)
	assert.Nil(t, res)
	assert.True(t, out.Success)
	assert.Equal(t, []string{"print(1)"}, srv.Payloads())
}

func TestExecutorTool_Setting(t *testing.T) {
	et, srv := newTools(t)
	ctx := context.Background()

	res, _, _ := et.Handle(ctx, nil, ExecutorInput{Action: "setting", Value: "60"})
	assert.Equal(t, "key required", resultText(t, res))

	et.Handle(ctx, nil, ExecutorInput{Action: "refresh"})
	res, out, err := et.Handle(ctx, nil, ExecutorInput{Action: "setting", Key: "fps", Value: "60"})
	require.NoError(t, err)
	assert.Nil(t, res)
	assert.True(t, out.Success)
	assert.Equal(t, []string{"fps 60"}, srv.Payloads())
}

func TestExecutorTool_NextPort(t *testing.T) {
	et, srv := newTools(t)
	ctx := context.Background()

	et.Handle(ctx, nil, ExecutorInput{Action: "refresh"})
	_, out, err := et.Handle(ctx, nil, ExecutorInput{Action: "next_port"})
	require.NoError(t, err)
	assert.False(t, out.IsConnected)
	assert.Zero(t, out.Port)
	assert.Equal(t, srv.Port(), out.CurrentPort)
}

func TestExecutorTool_ExecuteOnceAndHistory(t *testing.T) {
	et, srv := newTools(t)
	ctx := context.Background()
	srv.SetResponse(http.StatusOK, "42")

	res, out, err := et.Handle(ctx, nil, ExecutorInput{Action: "execute_once", Script: "return 42"})
	require.NoError(t, err)
	assert.Nil(t, res)
	assert.Equal(t, "42", out.Output)
	assert.Equal(t, srv.Port(), out.ExecutedOn)

	srv.SetResponse(http.StatusInternalServerError, "nope")
	res, _, err = et.Handle(ctx, nil, ExecutorInput{Action: "execute_once", Script: "error()"})
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Equal(t, "execute_once: HTTP 500: nope", resultText(t, res))

	_, out, err = et.Handle(ctx, nil, ExecutorInput{Action: "history"})
	require.NoError(t, err)
	require.Equal(t, 2, out.Count)
	assert.Equal(t, "error()", out.History[0].Content)
	assert.Equal(t, "return 42", out.History[1].Content)

	_, out, _ = et.Handle(ctx, nil, ExecutorInput{Action: "history", Limit: 1})
	assert.Len(t, out.History, 1)
}

func TestExecutorTool_ExecuteLast(t *testing.T) {
	et, srv := newTools(t)
	ctx := context.Background()
	srv.SetResponse(http.StatusOK, "7")

	res, _, err := et.Handle(ctx, nil, ExecutorInput{Action: "execute_last"})
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Equal(t, "execute_last: no last script found", resultText(t, res))

	_, _, err = et.Handle(ctx, nil, ExecutorInput{Action: "execute_once", Script: "return 7"})
	require.NoError(t, err)

	res, out, err := et.Handle(ctx, nil, ExecutorInput{Action: "execute_last"})
	require.NoError(t, err)
	assert.Nil(t, res)
	assert.True(t, out.Success)
	assert.Equal(t, "7", out.Output)
	assert.Equal(t, srv.Port(), out.ExecutedOn)
	assert.Equal(t, []string{"return 7", "return 7"}, srv.Payloads())
}

func TestExecutorTool_Validation(t *testing.T) {
	et, _ := newTools(t)
	ctx := context.Background()

	res, _, _ := et.Handle(ctx, nil, ExecutorInput{Action: "send"})
	assert.Equal(t, "script required", resultText(t, res))

	res, _, _ = et.Handle(ctx, nil, ExecutorInput{Action: "execute_once"})
	assert.Equal(t, "script required", resultText(t, res))

	res, _, _ = et.Handle(ctx, nil, ExecutorInput{Action: "launch"})
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(t, res), "unknown action: launch")
}

func TestExecutorTool_OverMCP(t *testing.T) {
	et, srv := newTools(t)
	ctx := context.Background()

	server := mcp.NewServer(&mcp.Implementation{Name: "comet", Version: "test"}, nil)
	RegisterExecutorTool(server, et)

	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	serverSession, err := server.Connect(ctx, serverTransport, nil)
	require.NoError(t, err)
	defer serverSession.Close()

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "test"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	defer session.Close()

	tools, err := session.ListTools(ctx, nil)
	require.NoError(t, err)
	require.Len(t, tools.Tools, 1)
	assert.Equal(t, "executor", tools.Tools[0].Name)

	res, err := session.CallTool(ctx, &mcp.CallToolParams{
		Name:      "executor",
		Arguments: map[string]any{"action": "refresh"},
	})
	require.NoError(t, err)
	assert.False(t, res.IsError)

	structured, ok := res.StructuredContent.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, structured["is_connected"])
	assert.EqualValues(t, srv.Port(), structured["port"])
}
