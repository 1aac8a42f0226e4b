package providers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/llmgate/llmgate/pkg/models"
)

func TestTranslateInboundSafetyBlock(t *testing.T) {
	d := &GeminiDriver{}
	wireResp := geminiResponse{
		Candidates: []struct {
			Content *geminiContent `json:"content"`
		}{{Content: nil}},
	}
	resp := d.translateInbound(wireResp)
	require.Len(t, resp.Choices, 1)
	require.NotNil(t, resp.Choices[0].Message.Content)
	require.Equal(t, SafetyPlaceholder, *resp.Choices[0].Message.Content)
}

func TestTranslateInboundPlainText(t *testing.T) {
	d := &GeminiDriver{}
	wireResp := geminiResponse{
		Candidates: []struct {
			Content *geminiContent `json:"content"`
		}{{Content: &geminiContent{Parts: []geminiPart{{Text: "hello there"}}}}},
	}
	resp := d.translateInbound(wireResp)
	require.Equal(t, "hello there", *resp.Choices[0].Message.Content)
}

func TestTranslateInboundFunctionCall(t *testing.T) {
	d := &GeminiDriver{}
	wireResp := geminiResponse{
		Candidates: []struct {
			Content *geminiContent `json:"content"`
		}{{Content: &geminiContent{Parts: []geminiPart{{
			FunctionCall: &geminiFunctionCall{Name: "get_weather", Args: map[string]interface{}{"city": "nyc"}},
		}}}}},
	}
	resp := d.translateInbound(wireResp)
	require.Nil(t, resp.Choices[0].Message.Content)
	require.Len(t, resp.Choices[0].Message.ToolCalls, 1)
	require.Equal(t, "get_weather", resp.Choices[0].Message.ToolCalls[0].Function.Name)
	require.JSONEq(t, `{"city":"nyc"}`, resp.Choices[0].Message.ToolCalls[0].Function.Arguments)
}

func TestBuildOutboundToolRoleBecomesFunctionResponse(t *testing.T) {
	d := &GeminiDriver{client: newHTTPClient()}
	messages := []models.Message{
		{Role: models.RoleTool, ToolName: "get_weather", RawString: `{"temp":72}`},
	}
	out := d.buildOutbound(context.Background(), messages, nil)
	require.Len(t, out, 1)
	require.Equal(t, "user", out[0].Role)
	require.NotNil(t, out[0].Parts[0].FunctionResponse)
	require.Equal(t, "get_weather", out[0].Parts[0].FunctionResponse.Name)
}

func TestBuildOutboundAssistantToolCallsBecomeFunctionCall(t *testing.T) {
	d := &GeminiDriver{client: newHTTPClient()}
	messages := []models.Message{
		{
			Role: models.RoleAssistant,
			ToolCalls: []models.ToolCall{
				{ID: "call_1", Type: "function", Function: models.ToolCallFunc{Name: "get_weather", Arguments: `{"city":"nyc"}`}},
			},
		},
	}
	out := d.buildOutbound(context.Background(), messages, nil)
	require.Len(t, out, 1)
	require.Equal(t, "model", out[0].Role)
	require.NotNil(t, out[0].Parts[0].FunctionCall)
	require.Equal(t, "get_weather", out[0].Parts[0].FunctionCall.Name)
}

func TestBuildOutboundRoleMapping(t *testing.T) {
	d := &GeminiDriver{client: newHTTPClient()}
	messages := []models.Message{
		{Role: models.RoleSystem, RawString: "be nice"},
		{Role: models.RoleAssistant, RawString: "ok"},
	}
	out := d.buildOutbound(context.Background(), messages, nil)
	require.Equal(t, "user", out[0].Role)
	require.Equal(t, "model", out[1].Role)
}
