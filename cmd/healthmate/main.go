// Command healthmate is an interactive terminal session with the HealthMate
// chatbot.  It uses the same knowledge base and model settings as the
// server and keeps the conversation history in process.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"

	"github.com/iliyamo/ambulance-dispatch/internal/chat"
	"github.com/iliyamo/ambulance-dispatch/internal/config"
	"github.com/iliyamo/ambulance-dispatch/internal/logging"
)

func main() {
	config.LoadDotEnv()
	cfg := config.LoadChatConfig()

	logger, err := logging.New("prod", "warn", "")
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	kb, err := chat.OpenKnowledgeBase(cfg.KnowledgeDir, cfg.IndexPath)
	if err != nil {
		log.Fatalf("open knowledge base: %v", err)
	}
	defer kb.Close()

	model, closer, err := chat.NewModel(ctx, cfg)
	if err != nil {
		log.Fatalf("create model: %v", err)
	}
	defer closer.Close()

	bot := chat.NewGateway(kb, model, chat.WithTopK(cfg.TopK), chat.WithLogger(logger))
	if err := run(ctx, bot, os.Stdin, os.Stdout, cfg.HistoryTurns); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal(err)
	}
}

// run reads one message per line until EOF or a farewell.
func run(ctx context.Context, bot *chat.Gateway, in io.Reader, out io.Writer, maxTurns int) error {
	fmt.Fprintln(out, "HealthMate 🩺 here. Type 'bye' to leave.")
	var history []chat.Turn
	sc := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "You: ")
		if !sc.Scan() {
			fmt.Fprintln(out)
			return sc.Err()
		}
		msg := strings.TrimSpace(sc.Text())
		if msg == "" {
			continue
		}
		if chat.IsFarewell(msg) {
			fmt.Fprintln(out, "HealthMate:", chat.FarewellReply)
			return nil
		}

		answer, err := bot.Respond(ctx, msg, history)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			fmt.Fprintln(out, "HealthMate: sorry, something went wrong:", err)
			continue
		}
		fmt.Fprintln(out, "HealthMate:", answer)

		if !chat.IsSmallTalk(msg) {
			history = append(history, chat.Turn{Question: msg, Answer: answer})
			if maxTurns > 0 && len(history) > maxTurns {
				history = history[len(history)-maxTurns:]
			}
		}
	}
}
