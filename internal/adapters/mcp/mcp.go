// Package mcp exposes league reads as Model Context Protocol tools.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/okian/paddle/internal/domain/types"
)

const (
	serverName         = "paddle-league"
	defaultGamesLimit  = 20
	defaultBoardLimit  = 0
	maxToolResultLimit = 500
)

// ErrMissingArgument is reported when a required tool argument is blank.
var ErrMissingArgument = errors.New("missing argument")

// Dependencies is the read side the tools query.
type Dependencies interface {
	Leaderboard(ctx context.Context, limit int) (types.Leaderboard, error)
	Rank(ctx context.Context, player string) (types.Entry, error)
	Player(ctx context.Context, player string) (types.Player, error)
	Simulate(ctx context.Context, a, b string) (types.WhatIf, error)
}

// LeaderboardArgs are the leaderboard tool arguments.
type LeaderboardArgs struct {
	Limit int `json:"limit,omitempty" jsonschema:"Number of entries to return (0 = all)"`
}

// RankArgs are the rank tool arguments.
type RankArgs struct {
	Player string `json:"player" jsonschema:"Player name (required)"`
}

// PlayerGamesArgs are the player_games tool arguments.
type PlayerGamesArgs struct {
	Player string `json:"player" jsonschema:"Player name (required)"`
	Limit  int    `json:"limit,omitempty" jsonschema:"Most recent games to return (default 20)"`
}

// WhatIfArgs are the what_if tool arguments.
type WhatIfArgs struct {
	PlayerA string `json:"player_a" jsonschema:"First player (required)"`
	PlayerB string `json:"player_b" jsonschema:"Second player (required)"`
}

// NewServer builds an MCP server with the league tools registered.
func NewServer(deps Dependencies, version string) *sdk.Server {
	server := sdk.NewServer(&sdk.Implementation{Name: serverName, Version: version}, nil)

	sdk.AddTool(server, &sdk.Tool{
		Name:        "leaderboard",
		Description: "Ranked leaderboard with composite z-scores, ratings and win percentages",
	}, func(ctx context.Context, _ *sdk.CallToolRequest, args LeaderboardArgs) (*sdk.CallToolResult, any, error) {
		limit := clamp(args.Limit, defaultBoardLimit)
		return toolJSON(deps.Leaderboard(ctx, limit))
	})

	sdk.AddTool(server, &sdk.Tool{
		Name:        "rank",
		Description: "One player's leaderboard entry",
	}, func(ctx context.Context, _ *sdk.CallToolRequest, args RankArgs) (*sdk.CallToolResult, any, error) {
		player, err := required("player", args.Player)
		if err != nil {
			return toolError(err), nil, nil
		}
		return toolJSON(deps.Rank(ctx, player))
	})

	sdk.AddTool(server, &sdk.Tool{
		Name:        "player_games",
		Description: "A player's most recent games, newest first, with the rating after each",
	}, func(ctx context.Context, _ *sdk.CallToolRequest, args PlayerGamesArgs) (*sdk.CallToolResult, any, error) {
		player, err := required("player", args.Player)
		if err != nil {
			return toolError(err), nil, nil
		}
		p, err := deps.Player(ctx, player)
		if err != nil {
			return toolError(err), nil, nil
		}
		limit := clamp(args.Limit, defaultGamesLimit)
		games := make([]types.PlayerGame, 0, limit)
		for i := len(p.Games) - 1; i >= 0 && len(games) < limit; i-- {
			games = append(games, p.Games[i])
		}
		return toolJSON(struct {
			Player types.Entry        `json:"player"`
			Games  []types.PlayerGame `json:"games"`
		}{p.Entry, games}, nil)
	})

	sdk.AddTool(server, &sdk.Tool{
		Name:        "what_if",
		Description: "Project how the leaderboard would move if player_a or player_b won one more game; nothing is recorded",
	}, func(ctx context.Context, _ *sdk.CallToolRequest, args WhatIfArgs) (*sdk.CallToolResult, any, error) {
		a, err := required("player_a", args.PlayerA)
		if err != nil {
			return toolError(err), nil, nil
		}
		b, err := required("player_b", args.PlayerB)
		if err != nil {
			return toolError(err), nil, nil
		}
		return toolJSON(deps.Simulate(ctx, a, b))
	})

	return server
}

// Handler serves server over streamable HTTP with plain JSON responses.
func Handler(server *sdk.Server) http.Handler {
	return sdk.NewStreamableHTTPHandler(func(*http.Request) *sdk.Server {
		return server
	}, &sdk.StreamableHTTPOptions{JSONResponse: true})
}

func required(name, v string) (string, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return "", fmt.Errorf("%w: %s", ErrMissingArgument, name)
	}
	return v, nil
}

// clamp maps a non-positive limit to def and caps it.
func clamp(limit, def int) int {
	if limit <= 0 {
		return def
	}
	return min(limit, maxToolResultLimit)
}

func toolJSON(v any, err error) (*sdk.CallToolResult, any, error) {
	if err != nil {
		return toolError(err), nil, nil
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return toolError(err), nil, nil
	}
	return &sdk.CallToolResult{
		Content: []sdk.Content{&sdk.TextContent{Text: string(b)}},
	}, nil, nil
}

func toolError(err error) *sdk.CallToolResult {
	return &sdk.CallToolResult{
		IsError: true,
		Content: []sdk.Content{&sdk.TextContent{Text: fmt.Sprintf("error: %v", err)}},
	}
}
