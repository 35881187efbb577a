package application

import (
	"context"
	"fmt"
	"path"

	"github.com/dfryer1193/cropfeed/feed/domain"
	"github.com/rs/zerolog/log"
)

// PruneImages deletes stored photos that no post refers to and returns their
// paths. The collection is read straight from the store so a failed load
// never counts every photo as unused.
func PruneImages(ctx context.Context, store domain.PostStore, images domain.ImageRepository) ([]string, error) {
	snap, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load posts: %w", err)
	}

	inUse := make(map[string]struct{}, len(snap.Posts))
	for _, p := range snap.Posts {
		if p.Image != "" {
			inUse[path.Base(p.Image)] = struct{}{}
		}
	}

	stored, err := images.ListImages(ctx)
	if err != nil {
		return nil, err
	}

	var removed []string
	for _, img := range stored {
		if _, ok := inUse[path.Base(img.Path)]; ok {
			continue
		}
		if err := images.DeleteImage(ctx, img.Path); err != nil {
			return removed, fmt.Errorf("failed to prune image %s: %w", img.Path, err)
		}
		removed = append(removed, img.Path)
	}

	log.Info().Int("removed", len(removed)).Int("kept", len(stored)-len(removed)).Msg("Pruned unused images")
	return removed, nil
}
