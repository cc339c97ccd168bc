package main

import (
	"context"
	"fmt"
	"os"

	"github.com/desertthunder/ytr/internal/models"
	"github.com/desertthunder/ytr/internal/shared"
	"github.com/desertthunder/ytr/internal/tasks"
	"github.com/urfave/cli/v3"
)

// loadConfig reads the --config file into the runner, falling back to the
// defaults already set when the file is absent or malformed.
func (r *Runner) loadConfig(cmd *cli.Command) {
	configPath := cmd.String("config")
	if _, err := os.Stat(configPath); err != nil {
		return
	}

	config, err := shared.LoadConfig(configPath)
	if err != nil {
		r.logger.Warn("failed to load config, using defaults", "error", err)
		return
	}
	r.config = config
}

// Setup writes a starter config file and initializes the cache database.
func (r *Runner) Setup(ctx context.Context, cmd *cli.Command) error {
	configPath := cmd.String("config")

	if _, err := os.Stat(configPath); err != nil {
		r.logger.Info("config file not found, creating from template", "path", configPath)
		if err := shared.CreateConfigFile(configPath); err != nil {
			return fmt.Errorf("failed to create config file: %w", err)
		}
	}
	r.loadConfig(cmd)

	r.logger.Info("initializing cache database", "path", r.config.Cache.Path)

	db, err := shared.NewDatabase(r.config.Cache.Path)
	if err != nil {
		return fmt.Errorf("failed to create database: %w", err)
	}
	defer db.Close()

	rebuilt, err := shared.EnsureSchema(db)
	if err != nil {
		return fmt.Errorf("failed to prepare schema: %w", err)
	}
	if rebuilt {
		r.logger.Warn("existing cache had an old schema, rebuilt from empty")
	}

	r.writePlainln("✓ Setup complete")
	r.writePlainln("  Config: %s", configPath)
	r.writePlainln("  Cache:  %s", r.config.Cache.Path)
	r.writePlainln("Run an external OAuth flow and point youtube.token_file at the result.")
	return nil
}

// Ls lists collections, or one collection's items when an argument is given.
func (r *Runner) Ls(ctx context.Context, cmd *cli.Command) error {
	r.loadConfig(cmd)

	session, err := r.openSession(ctx)
	if err != nil {
		return err
	}
	defer session.Close()

	collectionID := cmd.StringArg("collection")
	force := cmd.Bool("refresh")

	if collectionID == "" {
		collections, stale, err := session.Collections(ctx, force)
		if err != nil {
			return fmt.Errorf("failed to list collections: %w", err)
		}
		if cmd.Bool("json") {
			return r.writeJSON(collections, cmd.Bool("pretty"))
		}
		for _, c := range collections {
			marker := ""
			if c.Kind == models.CollectionVirtual {
				marker = " (virtual)"
			}
			r.writePlainln("%-40s  %4d items  %s%s", c.ID, c.ItemCount, c.Title, marker)
		}
		if stale {
			r.writePlainln("(listing is stale; refresh was not possible)")
		}
		return nil
	}

	view, err := session.GetView(ctx, collectionID, force)
	if err != nil {
		return fmt.Errorf("failed to list %s: %w", collectionID, err)
	}
	if cmd.Bool("json") {
		return r.writeJSON(view, cmd.Bool("pretty"))
	}
	for _, item := range view.Items {
		flag := ""
		if item.NeedsVerification {
			flag = " ⚠"
		}
		r.writePlainln("%3d  %-15s  %s%s", item.Position, item.VideoID, item.Title, flag)
	}
	if view.Stale {
		r.writePlainln("(listing is stale; refresh was not possible)")
	}
	return nil
}

// Refresh forces a cache refresh for one collection or for everything.
func (r *Runner) Refresh(ctx context.Context, cmd *cli.Command) error {
	r.loadConfig(cmd)

	session, err := r.openSession(ctx)
	if err != nil {
		return err
	}
	defer session.Close()

	progress := make(chan tasks.ProgressUpdate, 64)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for update := range progress {
			r.logger.Info(update.Message, "phase", update.Phase.String())
		}
	}()

	collectionID := cmd.StringArg("collection")
	if cmd.Bool("all") {
		// A collection argument alongside --all names the visible scope to
		// refetch eagerly; everything else is fetched lazily on next access.
		err = session.RefreshAll(ctx, collectionID, progress)
	} else {
		if collectionID == "" {
			close(progress)
			<-done
			return fmt.Errorf("%w: a collection ID or --all is required", shared.ErrValidation)
		}
		err = session.Coordinator().Refresh(ctx, collectionID, progress)
	}
	close(progress)
	<-done

	if err != nil {
		return fmt.Errorf("refresh failed: %w", err)
	}

	quota, quotaErr := session.Quota()
	if quotaErr == nil {
		r.writePlainln("✓ Refresh complete (quota %d/%d)", quota.Used, quota.Budget)
	} else {
		r.writePlainln("✓ Refresh complete")
	}
	return nil
}

// QuotaStatus reports today's budget consumption.
func (r *Runner) QuotaStatus(ctx context.Context, cmd *cli.Command) error {
	r.loadConfig(cmd)

	session, err := r.openSession(ctx)
	if err != nil {
		return err
	}
	defer session.Close()

	quota, err := session.Quota()
	if err != nil {
		return fmt.Errorf("failed to read quota: %w", err)
	}

	if cmd.Bool("json") {
		return r.writeJSON(quota, false)
	}

	r.writePlainln("Day:       %s", quota.Day)
	r.writePlainln("Used:      %d / %d units", quota.Used, quota.Budget)
	r.writePlainln("Remaining: %d units", quota.Remaining())
	r.writePlainln("Resets:    %s", quota.ResetAt.Format("2006-01-02 15:04 UTC"))
	return nil
}

// Sweep evicts expired records from the cache.
func (r *Runner) Sweep(ctx context.Context, cmd *cli.Command) error {
	r.loadConfig(cmd)

	session, err := r.openSession(ctx)
	if err != nil {
		return err
	}
	defer session.Close()

	evicted, err := session.Sweep()
	if err != nil {
		return fmt.Errorf("sweep failed: %w", err)
	}

	r.writePlainln("✓ Evicted %d expired record(s)", evicted)
	return nil
}

// ColCreate creates a new remote collection.
func (r *Runner) ColCreate(ctx context.Context, cmd *cli.Command) error {
	r.loadConfig(cmd)

	title := cmd.StringArg("title")
	if title == "" {
		return fmt.Errorf("%w: a title is required", shared.ErrValidation)
	}

	session, err := r.openSession(ctx)
	if err != nil {
		return err
	}
	defer session.Close()

	payload := &models.CreateCollectionPayload{Title: title, Privacy: cmd.String("privacy")}
	command := models.NewCommand(shared.GenerateID(), "Create "+title, payload)
	if err := session.Execute(ctx, command, nil); err != nil {
		return fmt.Errorf("create failed: %w", err)
	}

	r.writePlainln("✓ Created %s (ID: %s)", title, payload.CreatedID)
	return nil
}

// ColRename retitles a collection.
func (r *Runner) ColRename(ctx context.Context, cmd *cli.Command) error {
	r.loadConfig(cmd)

	collectionID := cmd.StringArg("collection")
	title := cmd.StringArg("title")
	if collectionID == "" || title == "" {
		return fmt.Errorf("%w: a collection ID and a new title are required", shared.ErrValidation)
	}

	session, err := r.openSession(ctx)
	if err != nil {
		return err
	}
	defer session.Close()

	// The old title is captured so the command could reverse; a one-shot CLI
	// invocation still validates against it.
	oldTitle := ""
	if collections, _, err := session.Collections(ctx, false); err == nil {
		for _, c := range collections {
			if c.ID == collectionID {
				oldTitle = c.Title
			}
		}
	}

	payload := &models.RenamePayload{CollectionID: collectionID, OldTitle: oldTitle, NewTitle: title}
	command := models.NewCommand(shared.GenerateID(), "Rename to "+title, payload)
	if err := session.Execute(ctx, command, nil); err != nil {
		return fmt.Errorf("rename failed: %w", err)
	}

	r.writePlainln("✓ Renamed %s to %q", collectionID, title)
	return nil
}

// ColDelete deletes a collection after confirmation.
func (r *Runner) ColDelete(ctx context.Context, cmd *cli.Command) error {
	r.loadConfig(cmd)

	collectionID := cmd.StringArg("collection")
	if collectionID == "" {
		return fmt.Errorf("%w: a collection ID is required", shared.ErrValidation)
	}
	if !cmd.Bool("yes") {
		return fmt.Errorf("%w: deleting a collection is irreversible across invocations, pass --yes to confirm", shared.ErrValidation)
	}

	session, err := r.openSession(ctx)
	if err != nil {
		return err
	}
	defer session.Close()

	// Snapshot the contents first so the in-session command is reversible.
	collection := models.Collection{ID: collectionID, Kind: models.CollectionReal}
	var refs []models.ItemRef
	if view, err := session.GetView(ctx, collectionID, false); err == nil {
		for _, item := range view.Items {
			refs = append(refs, models.ItemRef{
				ItemID:   item.ID,
				VideoID:  item.VideoID,
				Title:    item.Title,
				Position: item.Position,
			})
		}
	}
	if collections, _, err := session.Collections(ctx, false); err == nil {
		for _, c := range collections {
			if c.ID == collectionID {
				collection = c
			}
		}
	}

	payload := &models.DeleteCollectionPayload{Collection: collection, Items: refs}
	command := models.NewCommand(shared.GenerateID(), "Delete "+collection.Title, payload)
	if err := session.Execute(ctx, command, nil); err != nil {
		return fmt.Errorf("delete failed: %w", err)
	}

	r.writePlainln("✓ Deleted %s", collectionID)
	return nil
}
