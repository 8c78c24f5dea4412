package chessdto

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestValidate_TerminalIffResult(t *testing.T) {
	cases := []struct {
		name   string
		status Status
		result *string
		ok     bool
	}{
		{"waiting no result", StatusWaiting, nil, true},
		{"ongoing no result", StatusOngoing, nil, true},
		{"ongoing with result", StatusOngoing, StringPtr(ResultWhiteWins), false},
		{"checkmate with result", StatusCheckmate, StringPtr(ResultWhiteWins), true},
		{"checkmate without result", StatusCheckmate, nil, false},
		{"stalemate draw", StatusStalemate, StringPtr(ResultDraw), true},
		{"draw empty result", StatusDraw, StringPtr(""), false},
		{"resignation bogus result", StatusResignation, StringPtr("2-0"), false},
		{"unknown status", Status("paused"), nil, false},
	}
	for _, tc := range cases {
		g := &GameState{GameID: "g1", Status: tc.status, Result: tc.result}
		err := g.Validate()
		if (err == nil) != tc.ok {
			t.Fatalf("%s: ok=%v err=%v", tc.name, tc.ok, err)
		}
	}
	if err := (&GameState{Status: StatusWaiting}).Validate(); err == nil {
		t.Fatalf("expected error for missing game_id")
	}
}

func TestDecodePushPayload(t *testing.T) {
	raw := `{"game_id":"g7","fen":"rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq - 0 1",
	"status":"ongoing","result":null,"turn":"black","player_white":"alice","player_black":"bob",
	"last_move_at":"2026-10-15T10:00:01","rematch_requested_by":null,
	"last_move":"e2e4","evaluation":{"label":"Good","probability_good":0.82}}`
	var out MoveOutcome
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.GameID != "g7" || out.Turn != Black || out.BlackName() != "bob" || out.Result != nil {
		t.Fatalf("unexpected state: %+v", out.GameState)
	}
	if out.Evaluation == nil || out.Evaluation.Label != "Good" || out.Evaluation.ProbabilityGood != 0.82 {
		t.Fatalf("unexpected evaluation: %+v", out.Evaluation)
	}
	if err := out.GameState.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestLastMoveOrdering(t *testing.T) {
	older := &GameState{LastMoveAt: "2026-10-15T10:00:00"}
	newer := &GameState{LastMoveAt: "2026-10-15T10:00:00.500000"}
	httpDate := &GameState{LastMoveAt: "Thu, 15 Oct 2026 10:00:02 GMT"}
	junk := &GameState{LastMoveAt: "yesterday"}

	if !older.OlderThan(newer) || newer.OlderThan(older) {
		t.Fatalf("fractional seconds should order")
	}
	if older.OlderThan(older) {
		t.Fatalf("equal timestamps are not strictly older")
	}
	if !newer.OlderThan(httpDate) {
		t.Fatalf("http date should parse and order after iso timestamp")
	}
	if junk.OlderThan(newer) || newer.OlderThan(junk) {
		t.Fatalf("unparseable timestamps never count as older")
	}
}

func TestCloneIsDeep(t *testing.T) {
	g := &GameState{GameID: "g1", PlayerWhite: StringPtr("alice")}
	cp := g.Clone()
	*cp.PlayerWhite = "mallory"
	if g.WhiteName() != "alice" {
		t.Fatalf("clone shares player pointer")
	}
}

func TestUserMessage(t *testing.T) {
	err := &DomainError{Kind: KindAPI, Status: 400, Message: "Illegal move"}
	wrapped := errors.Join(errors.New("submit"), err)
	if UserMessage(wrapped) != "Illegal move" || KindOf(wrapped) != KindAPI || StatusOf(wrapped) != 400 {
		t.Fatalf("unexpected classification of %v", wrapped)
	}
	if UserMessage(&DomainError{Kind: KindAPI}) != DefaultErrorMessage {
		t.Fatalf("expected default message")
	}
	if !IsKind(err.WithKind(KindGone), KindGone) {
		t.Fatalf("WithKind should reclassify")
	}
}
