package commands

import (
	"bufio"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"pqchat/internal/domain"
	"pqchat/internal/services/chat"
)

// chat <peer>: interactive session. Each stdin line is sent; /quit leaves.
func chatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat <peer>",
		Short: "Open an interactive chat with a peer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			s, err := appCtx.Chat(ctx, domain.UserID(args[0]))
			if err != nil {
				return err
			}
			defer func() { _ = s.Deactivate() }()

			for _, m := range s.Timeline() {
				printMessage(m)
			}

			lines := make(chan string)
			go scanLines(lines)

			for {
				select {
				case <-ctx.Done():
					return nil
				case ev, ok := <-s.Events():
					if !ok {
						return nil
					}
					printEvent(ev, args[0])
				case line, ok := <-lines:
					if !ok || line == "/quit" {
						return nil
					}
					if strings.TrimSpace(line) == "" {
						continue
					}
					if _, err := s.Send(ctx, line); err != nil {
						text, ok := chat.Recoverable(err)
						if !ok {
							return err
						}
						fmt.Printf("(%s)\n", text)
					}
				}
			}
		},
	}
}

func scanLines(out chan<- string) {
	defer close(out)
	sc := bufio.NewScanner(os.Stdin)
	for sc.Scan() {
		out <- sc.Text()
	}
}

func printEvent(ev chat.Event, peer string) {
	switch ev.Kind {
	case chat.EventMessage:
		printMessage(ev.Message)
	case chat.EventStatus:
		fmt.Printf("-- %s\n", ev.Status.Text)
	case chat.EventPresence:
		state := "offline"
		if ev.Online {
			state = "online"
		}
		fmt.Printf("-- %s is %s\n", peer, state)
	}
}
