package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/park285/Cheese-chess-client/internal/apiclient"
	"github.com/park285/Cheese-chess-client/internal/auth"
	appcfg "github.com/park285/Cheese-chess-client/internal/config"
	"github.com/park285/Cheese-chess-client/internal/livechan"
	"github.com/park285/Cheese-chess-client/pkg/chessdto"
)

// livecheck signs in (or reuses the saved credential), opens the live channel,
// optionally joins LIVECHECK_GAME_ID and prints pushes for a short window.
func main() {
	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	user := os.Getenv("CHESS_USER")
	password := os.Getenv("CHESS_PASSWORD")
	gameID := os.Getenv("LIVECHECK_GAME_ID")
	window := 10 * time.Second
	if v, err := time.ParseDuration(os.Getenv("LIVECHECK_WINDOW")); err == nil && v > 0 {
		window = v
	}

	api := apiclient.NewClient(cfg.APIURL, apiclient.WithTimeout(8*time.Second))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	creds := auth.CredentialStore(auth.NewMemoryStore())
	if user == "" {
		switch cfg.CredentialBackend {
		case appcfg.CredentialFile:
			path := cfg.CredentialFile
			if path == "" {
				path = auth.DefaultCredentialFile()
			}
			creds = auth.NewFileStore(path)
		case appcfg.CredentialRedis:
			rs, err := auth.NewRedisStoreFromURL(ctx, cfg.RedisURL, cfg.CredentialProfile)
			if err != nil {
				log.Fatalf("redis error: %v", err)
			}
			defer rs.Close()
			creds = rs
		}
	}
	session := auth.NewStore(api, creds)
	api.SetTokenProvider(session.Token)

	if user != "" {
		id, err := session.Login(ctx, user, password)
		if err != nil {
			log.Fatalf("login error: %s", chessdto.UserMessage(err))
		}
		log.Printf("login ok: %s (%d)", id.Username, id.Rating)
	} else {
		if err := session.Restore(ctx); err != nil {
			log.Printf("restore error: %s", chessdto.UserMessage(err))
		}
		if !session.Authenticated() {
			log.Fatal("no saved credential; set CHESS_USER and CHESS_PASSWORD")
		}
		if id := session.Identity(); id != nil {
			log.Printf("credential ok: %s (%d)", id.Username, id.Rating)
		}
	}

	live := livechan.New(cfg.LiveURL,
		livechan.WithReconnect(cfg.LiveReconnectAttempts, cfg.LiveReconnectDelay),
		livechan.WithAuthProvider(session.Token),
	)
	live.OnStateChange(func(state livechan.State) {
		log.Printf("live state: %s", state)
	})
	live.OnResubscribe(func(id string) {
		log.Printf("live joined: %s", id)
	})
	live.OnUpdate(func(u *chessdto.MoveOutcome) {
		fmt.Printf("push game=%s status=%s turn=%s last_move=%s at=%s\n", u.GameID, u.Status, u.Turn, u.LastMove, u.LastMoveAt)
	})

	cctx, ccancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer ccancel()
	if err := live.Connect(cctx); err != nil {
		log.Printf("live connect error: %v", err)
		return
	}
	if gameID != "" {
		if err := live.Subscribe(cctx, gameID); err != nil {
			log.Printf("subscribe error: %v", err)
		}
	} else {
		log.Println("LIVECHECK_GAME_ID not set; watching connection only")
	}

	t := time.NewTimer(window)
	<-t.C

	_ = live.Close(context.Background())
}
