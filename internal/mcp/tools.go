package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/mnemex/mnemex/internal/buffer"
	"github.com/mnemex/mnemex/internal/hierarchy"
	"github.com/mnemex/mnemex/internal/index"
)

func (s *Server) handleObserve(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: content"), nil
	}
	importance := req.GetFloat("importance", 0.5)

	id, obsErr := s.sess.Observe(ctx, content, importance)
	if obsErr != nil {
		var capErr *buffer.CapacityError
		if errors.As(obsErr, &capErr) {
			return mcp.NewToolResultError(capErr.Error()), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("failed to observe: %v", obsErr)), nil
	}

	st := s.sess.Status()
	return mcp.NewToolResultText(fmt.Sprintf("Observed (id: %d). Buffer at %.0f%% of %d tokens.",
		id, st.BufferUsage*100, st.MaxTokens)), nil
}

func (s *Server) handleRecall(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: query"), nil
	}
	topK := req.GetInt("top_k", 0)

	memories, recErr := s.sess.Recall(ctx, query, topK)
	if recErr != nil {
		if errors.Is(recErr, index.ErrEmptyIndex) {
			return mcp.NewToolResultText("No memories stored yet."), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("recall failed: %v", recErr)), nil
	}
	if len(memories) == 0 {
		return mcp.NewToolResultText("No relevant memories."), nil
	}
	return mcp.NewToolResultText(formatRecalled(memories)), nil
}

func (s *Server) handleSearch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: query"), nil
	}
	topK := req.GetInt("top_k", 0)

	mode := index.Mode(req.GetString("mode", string(index.ModeHybrid)))
	switch mode {
	case index.ModeLexical, index.ModeSemantic, index.ModeHybrid:
	default:
		return mcp.NewToolResultError(fmt.Sprintf("invalid mode %q (valid: lexical, semantic, hybrid)", mode)), nil
	}

	hits, searchErr := s.sess.Search(ctx, query, topK, mode)
	if searchErr != nil {
		if errors.Is(searchErr, index.ErrEmptyIndex) {
			return mcp.NewToolResultText("No memories stored yet."), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", searchErr)), nil
	}
	if len(hits) == 0 {
		return mcp.NewToolResultText("No results found."), nil
	}
	return mcp.NewToolResultText(formatRecalled(hits)), nil
}

func (s *Server) handleConsolidate(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stats, err := s.sess.Consolidate(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("consolidation interrupted: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf(
		"Consolidated: %d patterns created, %d updated; %d rules created, %d updated; %d episodes forgotten.",
		stats.PatternsCreated, stats.PatternsUpdated, stats.RulesCreated, stats.RulesUpdated, stats.Forgotten)), nil
}

func (s *Server) handleStatus(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	st := s.sess.Status()

	var sb strings.Builder
	fmt.Fprintf(&sb, "Buffer:   %d items, %.0f%% of %d tokens (policy: %s)\n",
		st.BufferItems, st.BufferUsage*100, st.MaxTokens, st.Policy)
	fmt.Fprintf(&sb, "Episodes: %d\n", st.Episodes)
	fmt.Fprintf(&sb, "Patterns: %d\n", st.Patterns)
	fmt.Fprintf(&sb, "Rules:    %d\n", st.Rules)
	fmt.Fprintf(&sb, "Index:    %d entries\n", st.IndexEntries)
	return mcp.NewToolResultText(sb.String()), nil
}

// formatRecalled renders ranked hits for tool output.
func formatRecalled(memories []hierarchy.Recalled) string {
	var sb strings.Builder
	for _, m := range memories {
		fmt.Fprintf(&sb, "- [%s %.2f] %s (id: %s)\n", m.Tier, m.Score, m.Summary, m.ID)
	}
	return sb.String()
}
