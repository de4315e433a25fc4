package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/melophiliacs/internal/formatter"
	"github.com/desertthunder/melophiliacs/internal/library"
	"github.com/desertthunder/melophiliacs/internal/session"
	"github.com/desertthunder/melophiliacs/internal/shared"
	"github.com/desertthunder/melophiliacs/internal/ui"
	"github.com/urfave/cli/v3"
)

// CacheInspect renders what is cached for a session. It only reads the store, never Spotify.
func (r *Runner) CacheInspect(ctx context.Context, cmd *cli.Command) error {
	token := cmd.String("session")
	format := cmd.String("format")
	output := cmd.String("output")

	config, err := r.loadConfig(cmd.String("config"))
	if err != nil {
		return err
	}
	store, closeStore, err := r.openStore(config, r.logger)
	if err != nil {
		return err
	}
	defer closeStore()

	report, err := readReport(ctx, library.NewCache(store, nil), token)
	if err != nil {
		return err
	}

	if format == ui.FormatPretty {
		if output != "" {
			return fmt.Errorf("%w: --output needs one of %v", shared.ErrInvalidArgument, formatter.Formats)
		}
		return r.writePlain("%s", ui.RenderReport(report))
	}

	if output != "" {
		if err := formatter.WriteExport(report, format, output); err != nil {
			return err
		}
		r.logger.Info("report written", "path", output, "format", format)
		return nil
	}

	data, err := formatter.Render(report, format)
	if err != nil {
		return err
	}
	return r.writePlain("%s", data)
}

// CachePurge deletes a session and every cached slot, the same keys logout removes.
func (r *Runner) CachePurge(ctx context.Context, cmd *cli.Command) error {
	token := cmd.String("session")

	config, err := r.loadConfig(cmd.String("config"))
	if err != nil {
		return err
	}
	store, closeStore, err := r.openStore(config, r.logger)
	if err != nil {
		return err
	}
	defer closeStore()

	cache := library.NewCache(store, nil)
	if err := session.NewStore(store, config.Auth.SessionTTL).Delete(ctx, token, cache.Keys(token)...); err != nil {
		return err
	}

	r.logger.Info("purged session", "session", session.Mask(token))
	return r.writePlain("%s\n", ui.Success("Purged session "+session.Mask(token)))
}

func readReport(ctx context.Context, cache *library.Cache, token string) (*formatter.Report, error) {
	report := &formatter.Report{Session: session.Mask(token)}

	var err error
	if report.SavedItems, report.HasSavedItems, err = cache.SavedItems(ctx, token); err != nil {
		return nil, err
	}
	if report.Artists, report.HasArtists, err = cache.TopArtists(ctx, token); err != nil {
		return nil, err
	}
	if report.Albums, report.HasAlbums, err = cache.TopAlbums(ctx, token); err != nil {
		return nil, err
	}
	return report, nil
}
