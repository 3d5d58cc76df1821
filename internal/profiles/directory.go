// Package profiles reads user profiles for display names and buddy lists.
package profiles

import (
	"context"
	"errors"
	"strings"

	"github.com/Vasu1712/buddychat/internal/docstore"
	"github.com/Vasu1712/buddychat/internal/models"
)

// lookupChunk bounds the identifier list of one membership query.
const lookupChunk = 10

type Directory struct {
	store docstore.Store
}

func NewDirectory(store docstore.Store) *Directory {
	return &Directory{store: store}
}

// Get returns the profile of userID, or docstore.ErrNotFound.
func (d *Directory) Get(ctx context.Context, userID string) (*models.Profile, error) {
	doc, err := d.store.Get(ctx, models.UserRef(userID))
	if err != nil {
		return nil, err
	}
	var p models.Profile
	if err := doc.DataTo(&p); err != nil {
		return nil, err
	}
	p.ID = doc.Ref.ID
	return &p, nil
}

// DisplayName returns the trimmed profile name of userID, or "" when the
// user has no profile or a blank name. Other store failures are returned.
func (d *Directory) DisplayName(ctx context.Context, userID string) (string, error) {
	p, err := d.Get(ctx, userID)
	if errors.Is(err, docstore.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(p.Name), nil
}

// Put overwrites a profile.
func (d *Directory) Put(ctx context.Context, p models.Profile) error {
	id := p.ID
	p.ID = ""
	return d.store.Set(ctx, models.UserRef(id), p)
}

// Lookup fetches the profiles of ids in chunks. Unknown IDs are skipped
// and the result follows the order of ids.
func (d *Directory) Lookup(ctx context.Context, ids []string) ([]models.Profile, error) {
	byID := make(map[string]models.Profile, len(ids))
	for start := 0; start < len(ids); start += lookupChunk {
		end := min(start+lookupChunk, len(ids))
		q := docstore.NewQuery(models.Users).Where(docstore.DocumentID, docstore.OpIn, ids[start:end])
		docs, err := d.store.Query(ctx, q)
		if err != nil {
			return nil, err
		}
		for _, doc := range docs {
			var p models.Profile
			if err := doc.DataTo(&p); err != nil {
				return nil, err
			}
			p.ID = doc.Ref.ID
			byID[p.ID] = p
		}
	}
	out := make([]models.Profile, 0, len(byID))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if p, ok := byID[id]; ok && !seen[id] {
			seen[id] = true
			out = append(out, p)
		}
	}
	return out, nil
}
