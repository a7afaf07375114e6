package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/noazlee/code-off/internal/client/gateway"
	"github.com/noazlee/code-off/internal/client/session"
	"github.com/noazlee/code-off/internal/client/transport"
	"github.com/noazlee/code-off/internal/config"
	"github.com/noazlee/code-off/pkg/protocol"
)

// Headless terminal client: joins or creates a room and drives the
// session from stdin. Commands: pick <difficulty>, code <text>, submit,
// skip, hard on|off, view, leave.
func main() {
	configPath := flag.String("config", "", "path to yaml config")
	userID := flag.String("user", "", "user id (random if empty)")
	name := flag.String("name", "anon", "display name")
	create := flag.Bool("create", false, "create a new room")
	random := flag.Bool("random", false, "find a random game")
	roomCode := flag.String("room", "", "room code to join")
	flag.Parse()

	_ = godotenv.Load()
	log := zerolog.New(os.Stderr).With().Timestamp().Logger().Level(zerolog.WarnLevel)

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	if *userID == "" {
		*userID = uuid.NewString()
	}

	gw := gateway.NewHTTPGateway(cfg.Client.APIURL, log)

	if *random {
		resp, err := gw.FindRandomGame(context.Background(), *userID)
		if err != nil {
			fmt.Fprintln(os.Stderr, "find random game:", err)
			os.Exit(1)
		}
		*roomCode = resp.RoomCode
		*create = resp.CreatedGame
		if resp.CreatedGame {
			fmt.Println("opened room", resp.RoomCode, "- waiting for an opponent")
		} else {
			fmt.Println("matched into room", resp.RoomCode)
		}
	}

	ch := transport.NewWebsocketChannel(cfg.Client.SocketURL, log)
	sess := session.New(session.Config{
		UserID:      *userID,
		DisplayName: *name,
		IsCreator:   *create,
		RoomCode:    *roomCode,
	}, gw, ch, clockwork.NewRealClock(), log)

	sess.Start(context.Background())
	defer sess.Close()

	go func() {
		h := <-sess.Handoffs()
		switch h.Target {
		case session.HandoffResults:
			fmt.Printf("game over: winner %s, loser %s, final health %v\n",
				h.Result.WinnerID, h.Result.LoserID, h.Result.FinalHealth)
		default:
			fmt.Println("returning home")
		}
		os.Exit(0)
	}()

	fmt.Println("commands: pick <easy|medium|hard>, code <text>, submit, skip, hard on|off, view, leave")
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		cmd, rest, _ := strings.Cut(line, " ")
		switch cmd {
		case "pick":
			sess.SelectDifficulty(protocol.Difficulty(rest))
		case "code":
			sess.EditCode(rest)
		case "submit":
			sess.Submit()
		case "skip":
			sess.Skip()
		case "hard":
			sess.SetHardMode(rest == "on")
		case "view":
			printView(sess.View())
		case "leave":
			sess.Leave()
		case "":
		default:
			fmt.Println("unknown command:", cmd)
		}
	}
}

func printView(v session.View) {
	fmt.Printf("room=%s status=%s conn=%s role=%s\n", v.RoomCode, v.Status, v.Conn, v.Role)
	for _, p := range v.Players {
		name := v.Names[p]
		if name == "" {
			name = p
		}
		fmt.Printf("  %s: %d hp\n", name, v.Health[p])
	}
	if v.ActiveQuestion != nil {
		fmt.Printf("  question: %s (%s)\n", v.ActiveQuestion.Title, v.ActiveQuestion.Difficulty)
	}
	for kind, text := range v.Notifications {
		fmt.Printf("  [%s] %s\n", kind, text)
	}
}
