// Package mcp exposes trigger word management and listening control as MCP
// tools for assistants.
package mcp

import (
	"context"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"

	"github.com/emmett/hark/internal/server"
)

type Config struct {
	ServerName    string
	ServerVersion string
}

type Server struct {
	config    Config
	mcpServer *sdk.Server
	ctrl      server.Controller
	words     server.Words
	log       zerolog.Logger
}

// NewServer creates the MCP server. words may be nil, which leaves out the
// word tools.
func NewServer(cfg Config, ctrl server.Controller, words server.Words, log zerolog.Logger) *Server {
	if cfg.ServerName == "" {
		cfg.ServerName = "hark"
	}
	s := &Server{
		config: cfg,
		ctrl:   ctrl,
		words:  words,
		log:    log.With().Str("component", "mcp").Logger(),
	}

	s.mcpServer = sdk.NewServer(&sdk.Implementation{
		Name:    cfg.ServerName,
		Version: cfg.ServerVersion,
	}, nil)

	s.registerTools()
	return s
}

// RunStdio serves over stdin/stdout until the client disconnects or ctx ends
func (s *Server) RunStdio(ctx context.Context) error {
	return s.Run(ctx, &sdk.StdioTransport{})
}

// Run serves one session over t
func (s *Server) Run(ctx context.Context, t sdk.Transport) error {
	s.log.Info().Str("name", s.config.ServerName).Msg("MCP server running")
	return s.mcpServer.Run(ctx, t)
}

// Connect starts a session over t without blocking
func (s *Server) Connect(ctx context.Context, t sdk.Transport) (*sdk.ServerSession, error) {
	return s.mcpServer.Connect(ctx, t, nil)
}
