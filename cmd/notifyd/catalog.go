package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dmitrymomot/notifykit/pkg/config"
	"github.com/dmitrymomot/notifykit/pkg/logger"
	"github.com/dmitrymomot/notifykit/pkg/notification"
)

// catalog is the YAML file listing digest configurations:
//
//	digests:
//	  - tag: comments
//	    message: "You have ${count} new comments"
type catalog struct {
	Digests []catalogEntry `yaml:"digests"`
}

type catalogEntry struct {
	Tag     string `yaml:"tag"`
	Message string `yaml:"message"`
}

type configurationStore interface {
	EnsureConfiguration(ctx context.Context, cfg notification.DigestConfiguration) (*notification.DigestConfiguration, error)
}

// seedCatalog creates every configuration of the catalog at path that does
// not exist yet. Existing tags keep their stored message.
func seedCatalog(ctx context.Context, store configurationStore, path string, log *slog.Logger) (int, error) {
	var c catalog
	if err := config.LoadYAML(path, &c); err != nil {
		return 0, err
	}

	for i, entry := range c.Digests {
		cfg, err := notification.NewDigestConfiguration(entry.Tag, entry.Message)
		if err != nil {
			return i, fmt.Errorf("catalog entry %d: %w", i, err)
		}
		stored, err := store.EnsureConfiguration(ctx, *cfg)
		if err != nil {
			return i, fmt.Errorf("catalog entry %q: %w", cfg.Tag, err)
		}
		log.DebugContext(ctx, "digest configuration ready",
			logger.Tag(stored.Tag),
			slog.String("configuration_id", stored.ID.String()))
	}
	return len(c.Digests), nil
}
