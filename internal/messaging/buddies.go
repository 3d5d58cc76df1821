package messaging

import (
	"context"
	"errors"
	"strings"

	"github.com/Vasu1712/buddychat/internal/apperrors"
	"github.com/Vasu1712/buddychat/internal/docstore"
	"github.com/Vasu1712/buddychat/internal/models"
)

// BuddyCandidates lists the user's study buddies that can still be offered
// as new conversations: buddies with a profile name that does not already
// label one of the user's threads.
func (c *Coordinator) BuddyCandidates(ctx context.Context, userID string) ([]models.Profile, error) {
	if userID == "" {
		return nil, apperrors.Unauthenticated("no current user")
	}
	me, err := c.profiles.Get(ctx, userID)
	if errors.Is(err, docstore.ErrNotFound) {
		return []models.Profile{}, nil
	}
	if err != nil {
		return nil, storeError("profile not loaded", err)
	}
	if len(me.StudyBuddies) == 0 {
		return []models.Profile{}, nil
	}

	threads, err := c.threads.List(ctx, userID)
	if err != nil {
		return nil, storeError("inbox not loaded", err)
	}
	taken := make(map[string]bool, len(threads))
	for _, t := range threads {
		taken[strings.TrimSpace(t.ConversationName)] = true
	}

	buddies, err := c.profiles.Lookup(ctx, me.StudyBuddies)
	if err != nil {
		return nil, storeError("buddies not loaded", err)
	}
	out := make([]models.Profile, 0, len(buddies))
	for _, b := range buddies {
		name := strings.TrimSpace(b.Name)
		if name == "" || taken[name] || b.ID == userID {
			continue
		}
		b.Name = name
		out = append(out, b)
	}
	return out, nil
}
