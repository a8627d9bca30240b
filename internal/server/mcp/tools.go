package mcp

import (
	"context"
	"fmt"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/emmett/hark/internal/supervisor"
	"github.com/emmett/hark/internal/wordstore"
)

type NoArgs struct{}

type SetWordsArgs struct {
	Words []string `json:"words,omitempty" jsonschema:"trigger words to listen for, replacing the saved list"`
	Input string   `json:"input,omitempty" jsonschema:"comma-separated trigger words, an alternative to words"`
}

type DeleteWordArgs struct {
	Word string `json:"word" jsonschema:"the trigger word to remove"`
}

type WordsResult struct {
	Words []string `json:"words"`
}

func (s *Server) registerTools() {
	if s.words != nil {
		sdk.AddTool(s.mcpServer, &sdk.Tool{
			Name:        "list_trigger_words",
			Description: "List the saved trigger words",
		}, s.handleListWords)

		sdk.AddTool(s.mcpServer, &sdk.Tool{
			Name:        "set_trigger_words",
			Description: "Replace the saved trigger words and apply them to the running listener",
		}, s.handleSetWords)

		sdk.AddTool(s.mcpServer, &sdk.Tool{
			Name:        "delete_trigger_word",
			Description: "Remove one trigger word",
		}, s.handleDeleteWord)
	}

	sdk.AddTool(s.mcpServer, &sdk.Tool{
		Name:        "start_listening",
		Description: "Start continuous listening for trigger words",
	}, s.control(s.ctrl.Start))

	sdk.AddTool(s.mcpServer, &sdk.Tool{
		Name:        "stop_listening",
		Description: "Stop listening",
	}, s.control(s.ctrl.Stop))

	sdk.AddTool(s.mcpServer, &sdk.Tool{
		Name:        "listening_status",
		Description: "Report the listener state, restart failures and the last utterance",
	}, s.handleStatus)
}

func (s *Server) handleListWords(ctx context.Context, req *sdk.CallToolRequest, _ NoArgs) (*sdk.CallToolResult, WordsResult, error) {
	return nil, wordsResult(s.words.Words()), nil
}

func (s *Server) handleSetWords(ctx context.Context, req *sdk.CallToolRequest, args SetWordsArgs) (*sdk.CallToolResult, WordsResult, error) {
	words := append(args.Words, wordstore.ParseInput(args.Input)...)
	saved, err := s.words.Save(ctx, words)
	if err != nil {
		return nil, WordsResult{}, fmt.Errorf("failed to save trigger words: %w", err)
	}
	s.log.Info().Int("count", len(saved)).Msg("trigger words saved")
	return nil, wordsResult(saved), nil
}

func (s *Server) handleDeleteWord(ctx context.Context, req *sdk.CallToolRequest, args DeleteWordArgs) (*sdk.CallToolResult, WordsResult, error) {
	left, err := s.words.Delete(ctx, args.Word)
	if err != nil {
		return nil, WordsResult{}, fmt.Errorf("failed to delete %q: %w", args.Word, err)
	}
	return nil, wordsResult(left), nil
}

func (s *Server) control(fn func(context.Context) error) sdk.ToolHandlerFor[NoArgs, supervisor.Status] {
	return func(ctx context.Context, req *sdk.CallToolRequest, _ NoArgs) (*sdk.CallToolResult, supervisor.Status, error) {
		if err := fn(ctx); err != nil {
			return nil, supervisor.Status{}, err
		}
		return s.handleStatus(ctx, req, NoArgs{})
	}
}

func (s *Server) handleStatus(ctx context.Context, req *sdk.CallToolRequest, _ NoArgs) (*sdk.CallToolResult, supervisor.Status, error) {
	st, err := s.ctrl.Status(ctx)
	if err != nil {
		return nil, supervisor.Status{}, err
	}
	return nil, st, nil
}

func wordsResult(words []string) WordsResult {
	if words == nil {
		words = []string{}
	}
	return WordsResult{Words: words}
}
