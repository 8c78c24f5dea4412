package apiclient

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"github.com/park285/Cheese-chess-client/pkg/chessdto"
	"github.com/valyala/fasthttp"
)

func (c *Client) Register(ctx context.Context, req chessdto.RegisterRequest) error {
	return c.doJSON(ctx, fasthttp.MethodPost, "/register", req, nil, false)
}

// Login exchanges credentials for a bearer token.
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	var resp chessdto.LoginResponse
	req := chessdto.LoginRequest{Username: username, Password: password}
	if err := c.doJSON(ctx, fasthttp.MethodPost, "/login", req, &resp, false); err != nil {
		return "", err
	}
	if strings.TrimSpace(resp.AccessToken) == "" {
		return "", &chessdto.DomainError{Kind: chessdto.KindAPI, Status: 200, Message: "login response carried no token"}
	}
	return resp.AccessToken, nil
}

func (c *Client) Profile(ctx context.Context) (*chessdto.Identity, error) {
	var id chessdto.Identity
	if err := c.doJSON(ctx, fasthttp.MethodGet, "/profile", nil, &id, true); err != nil {
		return nil, err
	}
	return &id, nil
}

func (c *Client) OpenGames(ctx context.Context) ([]chessdto.OpenGameSummary, error) {
	var games []chessdto.OpenGameSummary
	if err := c.doJSON(ctx, fasthttp.MethodGet, "/games", nil, &games, true); err != nil {
		return nil, err
	}
	return games, nil
}

func (c *Client) CreateGame(ctx context.Context, playAs chessdto.Color) (*chessdto.GameState, error) {
	var st chessdto.GameState
	if err := c.doJSON(ctx, fasthttp.MethodPost, "/create_game", chessdto.CreateGameRequest{PlayAs: playAs}, &st, false); err != nil {
		return nil, err
	}
	return &st, nil
}

func (c *Client) JoinGame(ctx context.Context, gameID string) (*chessdto.GameState, error) {
	return c.gameAction(ctx, "/join_game", gameID)
}

// GameState fetches the current snapshot. 401 and 404 are reported as KindGone.
func (c *Client) GameState(ctx context.Context, gameID string) (*chessdto.GameState, error) {
	var st chessdto.GameState
	err := c.doJSON(ctx, fasthttp.MethodGet, "/game_state/"+url.PathEscape(gameID), nil, &st, true)
	if err != nil {
		switch chessdto.StatusOf(err) {
		case fasthttp.StatusUnauthorized, fasthttp.StatusNotFound:
			var de *chessdto.DomainError
			if errors.As(err, &de) {
				return nil, de.WithKind(chessdto.KindGone)
			}
		}
		return nil, err
	}
	return &st, nil
}

func (c *Client) Move(ctx context.Context, gameID, move string) (*chessdto.MoveOutcome, error) {
	var out chessdto.MoveOutcome
	req := chessdto.MoveRequest{GameID: gameID, Move: move}
	if err := c.doJSON(ctx, fasthttp.MethodPost, "/move", req, &out, false); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Suggest(ctx context.Context, gameID string) (string, error) {
	var resp chessdto.SuggestResponse
	if err := c.doJSON(ctx, fasthttp.MethodPost, "/suggest", chessdto.GameRef{GameID: gameID}, &resp, false); err != nil {
		return "", err
	}
	return resp.Suggestion, nil
}

func (c *Client) RequestRematch(ctx context.Context, gameID string) (*chessdto.GameState, error) {
	return c.gameAction(ctx, "/request_rematch", gameID)
}

func (c *Client) AcceptRematch(ctx context.Context, gameID string) (*chessdto.GameState, error) {
	return c.gameAction(ctx, "/accept_rematch", gameID)
}

func (c *Client) gameAction(ctx context.Context, path, gameID string) (*chessdto.GameState, error) {
	var st chessdto.GameState
	if err := c.doJSON(ctx, fasthttp.MethodPost, path, chessdto.GameRef{GameID: gameID}, &st, false); err != nil {
		return nil, err
	}
	return &st, nil
}
