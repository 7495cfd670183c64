package config

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// WatchCatalog reloads catalog.yaml on change and calls onUpdate with the
// latest valid catalog. It performs an initial load before entering the
// watch loop. A failure of the initial load or of its onUpdate is returned.
// On reload an invalid file or a failing onUpdate is logged and the
// previous catalog stays in effect.
func WatchCatalog(ctx context.Context, path string, interval time.Duration, logger *zerolog.Logger, onUpdate func(*Catalog) error) error {
	if path == "" {
		path = "configs/catalog.yaml"
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}

	cat, err := LoadCatalog(path)
	if err != nil {
		return err
	}
	if onUpdate != nil {
		if err := onUpdate(cat); err != nil {
			return fmt.Errorf("apply catalog %s: %w", path, err)
		}
	}

	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	lastMod := info.ModTime()

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				info, err := os.Stat(path)
				if err != nil {
					continue // transient errors
				}
				if !info.ModTime().After(lastMod) {
					continue
				}
				cat, err := LoadCatalog(path)
				if err != nil {
					if logger != nil {
						logger.Error().Err(err).Str("path", path).Msg("catalog reload rejected")
					}
					continue
				}
				lastMod = info.ModTime()
				if logger != nil {
					logger.Info().Str("path", path).Str("catalog", cat.String()).Msg("catalog reloaded")
				}
				if onUpdate != nil {
					if err := onUpdate(cat); err != nil && logger != nil {
						logger.Error().Err(err).Str("path", path).Msg("catalog update failed")
					}
				}
			}
		}
	}()

	return nil
}
