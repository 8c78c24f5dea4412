package chessdto

import "testing"

func finished(result string, status Status, white, black string) *GameState {
	g := &GameState{GameID: "g1", Status: status, Result: StringPtr(result)}
	if white != "" {
		g.PlayerWhite = StringPtr(white)
	}
	if black != "" {
		g.PlayerBlack = StringPtr(black)
	}
	return g
}

func TestClassifyOutcome_CheckmateWhiteWins(t *testing.T) {
	g := finished(ResultWhiteWins, StatusCheckmate, "alice", "bob")
	if got := ClassifyOutcome(g, "alice"); got != OutcomeWin {
		t.Fatalf("alice: want win, got %q", got)
	}
	if got := ClassifyOutcome(g, "bob"); got != OutcomeLoss {
		t.Fatalf("bob: want loss, got %q", got)
	}
	if got := ClassifyOutcome(g, "carol"); got != OutcomeSpectator {
		t.Fatalf("carol: want spectator, got %q", got)
	}
}

func TestClassifyOutcome_BlackWinsAndDraw(t *testing.T) {
	g := finished(ResultBlackWins, StatusResignation, "alice", "bob")
	if got := ClassifyOutcome(g, "bob"); got != OutcomeWin {
		t.Fatalf("bob: want win, got %q", got)
	}
	if got := ClassifyOutcome(g, "alice"); got != OutcomeLoss {
		t.Fatalf("alice: want loss, got %q", got)
	}
	d := finished(ResultDraw, StatusStalemate, "alice", "bob")
	for _, who := range []string{"alice", "bob"} {
		if got := ClassifyOutcome(d, who); got != OutcomeDraw {
			t.Fatalf("%s: want draw, got %q", who, got)
		}
	}
}

func TestClassifyOutcome_NoResult(t *testing.T) {
	g := &GameState{GameID: "g1", Status: StatusOngoing, PlayerWhite: StringPtr("alice")}
	if got := ClassifyOutcome(g, "alice"); got != OutcomeNone {
		t.Fatalf("want none, got %q", got)
	}
	if got := ClassifyOutcome(nil, "alice"); got != OutcomeNone {
		t.Fatalf("nil: want none, got %q", got)
	}
}

func TestOrientationAndSeat(t *testing.T) {
	g := &GameState{PlayerWhite: StringPtr("alice"), PlayerBlack: StringPtr("bob")}
	if Orientation(g, "bob") != Black {
		t.Fatalf("bob should see black at the bottom")
	}
	if Orientation(g, "alice") != White || Orientation(g, "carol") != White {
		t.Fatalf("white orientation expected for alice and spectators")
	}
	if SeatOf(g, "alice") != White || SeatOf(g, "bob") != Black || SeatOf(g, "carol") != "" {
		t.Fatalf("unexpected seats")
	}
	if Winner(finished(ResultBlackWins, StatusCheckmate, "a", "b")) != Black {
		t.Fatalf("expected black winner")
	}
}
