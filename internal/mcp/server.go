// Package mcp exposes the memory core over the Model Context Protocol so
// agent frontends can observe, recall, and consolidate through stdio.
package mcp

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/mnemex/mnemex/internal/session"
)

// Server wraps one memory session behind MCP tools.
type Server struct {
	sess *session.Session
	mcp  *server.MCPServer
}

// NewServer builds the MCP server and registers all tools.
func NewServer(sess *session.Session, version string) *Server {
	s := &Server{
		sess: sess,
		mcp: server.NewMCPServer(
			"mnemex",
			version,
			server.WithToolCapabilities(false),
		),
	}
	s.registerTools()
	return s
}

func (s *Server) registerTools() {
	s.mcp.AddTool(mcp.NewTool("observe",
		mcp.WithDescription("Store a piece of content in working memory. Older content is evicted into episodic memory when the token budget fills."),
		mcp.WithString("content", mcp.Required(), mcp.Description("The content to remember")),
		mcp.WithNumber("importance", mcp.Description("Importance in [0,1]; important items survive eviction longer (default 0.5)")),
	), s.handleObserve)

	s.mcp.AddTool(mcp.NewTool("recall",
		mcp.WithDescription("Recall memories relevant to a query from the episodic, tactical, and strategic tiers."),
		mcp.WithString("query", mcp.Required(), mcp.Description("What to recall")),
		mcp.WithNumber("top_k", mcp.Description("Maximum number of memories to return")),
	), s.handleRecall)

	s.mcp.AddTool(mcp.NewTool("search",
		mcp.WithDescription("Search all memory tiers, including live working context, with lexical, semantic, or hybrid scoring."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query")),
		mcp.WithString("mode", mcp.Description("Scoring mode: lexical, semantic, or hybrid (default hybrid)")),
		mcp.WithNumber("top_k", mcp.Description("Maximum number of results")),
	), s.handleSearch)

	s.mcp.AddTool(mcp.NewTool("consolidate",
		mcp.WithDescription("Run one consolidation pass: extract patterns from similar episodes, generalize high-confidence patterns into rules, forget decayed episodes."),
	), s.handleConsolidate)

	s.mcp.AddTool(mcp.NewTool("status",
		mcp.WithDescription("Report memory occupancy: buffer usage and the number of episodes, patterns, and rules."),
	), s.handleStatus)
}

// Serve runs the server over stdio until the client disconnects. State is
// consolidated and persisted on shutdown.
func (s *Server) Serve() error {
	defer s.sess.End(context.Background())
	return server.ServeStdio(s.mcp)
}
