package chessdto

type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
}

type CreateGameRequest struct {
	PlayAs Color `json:"play_as"`
}

// GameRef is the body of every action addressed to one game.
type GameRef struct {
	GameID string `json:"game_id"`
}

type MoveRequest struct {
	GameID string `json:"game_id"`
	Move   string `json:"move"`
}

type SuggestResponse struct {
	Suggestion string `json:"suggestion"`
}
