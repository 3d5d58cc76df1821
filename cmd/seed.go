package main

import (
	"fmt"
	"slices"

	"github.com/urfave/cli/v2"

	"github.com/Vasu1712/buddychat/internal/messaging"
	"github.com/Vasu1712/buddychat/internal/models"
	"github.com/Vasu1712/buddychat/internal/profiles"
	"github.com/Vasu1712/buddychat/internal/storage"
)

var seedTexts = []string{
	"Hey! Are you also taking this module?",
	"Yes, the problem sets are brutal",
	"Want to go through sheet 3 together?",
	"Sure, library tomorrow at 5?",
	"See you there",
}

func seedCommand() *cli.Command {
	return &cli.Command{
		Name:  "seed",
		Usage: "Write a demo conversation between two users",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "user", Usage: "first participant id", Required: true},
			&cli.StringFlag{Name: "user-name", Usage: "first participant display name", Value: "Test User"},
			&cli.StringFlag{Name: "buddy", Usage: "second participant id", Value: "study-buddy"},
			&cli.StringFlag{Name: "buddy-name", Usage: "second participant display name", Value: "Study Buddy"},
			&cli.IntFlag{Name: "messages", Usage: "number of messages to write", Value: len(seedTexts)},
		},
		Action: func(c *cli.Context) error {
			cfg, log, err := setup(c)
			if err != nil {
				return err
			}
			defer log.Sync()

			lines, err := seedLines(c.Int("messages"), c.String("user"), c.String("buddy"))
			if err != nil {
				return err
			}

			store, err := storage.Open(c.Context, cfg.Store, log)
			if err != nil {
				return err
			}
			defer store.Close()

			user := messaging.SeedParticipant{ID: c.String("user"), Name: c.String("user-name")}
			buddy := messaging.SeedParticipant{ID: c.String("buddy"), Name: c.String("buddy-name")}

			dir := profiles.NewDirectory(store)
			for _, p := range []struct {
				self, other messaging.SeedParticipant
			}{{user, buddy}, {buddy, user}} {
				profile := models.Profile{ID: p.self.ID, Name: p.self.Name, StudyBuddies: []string{p.other.ID}}
				if existing, err := dir.Get(c.Context, p.self.ID); err == nil {
					profile = *existing
					if !slices.Contains(profile.StudyBuddies, p.other.ID) {
						profile.StudyBuddies = append(profile.StudyBuddies, p.other.ID)
					}
				}
				if err := dir.Put(c.Context, profile); err != nil {
					return fmt.Errorf("failed to write profile %s: %w", p.self.ID, err)
				}
			}

			coord := messaging.NewCoordinator(store, dir, log, messaging.Options{
				DefaultSenderName: cfg.Messaging.DefaultSenderName,
			})
			id, err := coord.SeedConversation(c.Context, user, buddy, lines)
			if err != nil {
				return err
			}
			fmt.Fprintln(c.App.Writer, id)
			return nil
		},
	}
}

// seedLines alternates n demo messages between user and buddy, starting
// with user.
func seedLines(n int, user, buddy string) ([]messaging.SeedLine, error) {
	if n < 0 {
		return nil, fmt.Errorf("--messages must not be negative, got %d", n)
	}
	lines := make([]messaging.SeedLine, 0, n)
	for i := 0; i < n; i++ {
		sender := user
		if i%2 == 1 {
			sender = buddy
		}
		lines = append(lines, messaging.SeedLine{Sender: sender, Text: seedTexts[i%len(seedTexts)]})
	}
	return lines, nil
}
