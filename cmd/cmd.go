// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to configuration file",
		Value:   "config.toml",
	}
}

// setupCommand initializes the config file and the cache database
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "setup",
		Usage:  "Write a starter config file and initialize the cache database",
		Flags:  []cli.Flag{configFlag()},
		Action: r.Setup,
	}
}

// browseCommand launches the interactive TUI
func browseCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "browse",
		Aliases: []string{"tui"},
		Usage:   "Browse collections interactively",
		Flags:   []cli.Flag{configFlag()},
		Action:  r.Browse,
	}
}

// lsCommand lists collections or one collection's items
func lsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "ls",
		Usage: "List collections, or the items of one collection",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "collection"},
		},
		Flags: []cli.Flag{
			configFlag(),
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output raw JSON",
			},
			&cli.BoolFlag{
				Name:  "pretty",
				Usage: "Pretty-print JSON output",
			},
			&cli.BoolFlag{
				Name:    "refresh",
				Aliases: []string{"r"},
				Usage:   "Bypass the cache and fetch fresh listings",
			},
		},
		Action: r.Ls,
	}
}

// refreshCommand forces cache refreshes
func refreshCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "refresh",
		Usage: "Refresh the cache for one collection, or everything with --all",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "collection"},
		},
		Flags: []cli.Flag{
			configFlag(),
			&cli.BoolFlag{
				Name:  "all",
				Usage: "Empty the cache and refetch the collection listing",
			},
		},
		Action: r.Refresh,
	}
}

// quotaCommand reports daily budget consumption
func quotaCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "quota",
		Usage: "Show today's API quota usage",
		Flags: []cli.Flag{
			configFlag(),
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output raw JSON",
			},
		},
		Action: r.QuotaStatus,
	}
}

// sweepCommand evicts expired cache records
func sweepCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "sweep",
		Usage:  "Evict expired records from the cache",
		Flags:  []cli.Flag{configFlag()},
		Action: r.Sweep,
	}
}

// colCommand groups one-shot collection mutations
func colCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "col",
		Usage: "Collection operations",
		Commands: []*cli.Command{
			{
				Name:  "create",
				Usage: "Create a new collection",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "title"},
				},
				Flags: []cli.Flag{
					configFlag(),
					&cli.StringFlag{
						Name:  "privacy",
						Usage: "Privacy status for the new collection",
						Value: "private",
					},
				},
				Action: r.ColCreate,
			},
			{
				Name:  "rename",
				Usage: "Rename a collection",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "collection"},
					&cli.StringArg{Name: "title"},
				},
				Flags:  []cli.Flag{configFlag()},
				Action: r.ColRename,
			},
			{
				Name:  "delete",
				Usage: "Delete a collection and all its items",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "collection"},
				},
				Flags: []cli.Flag{
					configFlag(),
					&cli.BoolFlag{
						Name:  "yes",
						Usage: "Skip the confirmation prompt",
					},
				},
				Action: r.ColDelete,
			},
		},
	}
}
