// submodule cmd contains command definitions
package main

import (
	"time"

	"github.com/desertthunder/musiclink/internal/formatter"
	"github.com/urfave/cli/v3"
)

func userFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "user",
		Aliases: []string{"u"},
		Usage:   "Internal user id the credentials belong to",
		Sources: cli.EnvVars("MUSICLINK_USER"),
	}
}

func jsonFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:  "json",
			Usage: "Output raw JSON",
		},
		&cli.BoolFlag{
			Name:  "pretty",
			Usage: "Pretty-print JSON output",
			Value: true,
		},
	}
}

// setupCommand handles setup operations for the database.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Setup and configuration commands",
		Commands: []*cli.Command{
			{
				Name:   "database",
				Usage:  "Create the config file if missing, initialize the database and run migrations",
				Action: r.SetupDatabase,
			},
		},
	}
}

// linkCommand links a provider account through the authorization code flow.
func linkCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "link",
		Usage: "Link a Spotify or YouTube account (opens the browser and waits for the callback)",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "provider"},
		},
		Flags: []cli.Flag{
			userFlag(),
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "How long to wait for the provider redirect",
				Value: 2 * time.Minute,
			},
			&cli.BoolFlag{
				Name:  "no-browser",
				Usage: "Print the authorization URL without opening a browser",
			},
		},
		Action: r.Link,
	}
}

// statusCommand reports linked providers.
func statusCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "status",
		Usage:  "Show which providers are linked for a user",
		Flags:  append([]cli.Flag{userFlag()}, jsonFlags()...),
		Action: r.Status,
	}
}

// playlistsCommand lists playlists, or one playlist's tracks.
func playlistsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "playlists",
		Usage: "List a provider's playlists, the tracks of one playlist with --id, or saved tracks with --saved",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "provider"},
		},
		Flags: append([]cli.Flag{
			userFlag(),
			&cli.StringFlag{
				Name:  "id",
				Usage: "Playlist ID whose tracks to list",
			},
			&cli.BoolFlag{
				Name:  "saved",
				Usage: "List saved tracks (Liked Songs) instead of playlists; Spotify only",
			},
		}, jsonFlags()...),
		Action: r.Playlists,
	}
}

// searchCommand searches the provider catalogs.
func searchCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "search",
		Usage: "Search every linked provider for a track",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "query"},
		},
		Flags: append([]cli.Flag{
			userFlag(),
			&cli.StringSliceFlag{
				Name:    "provider",
				Aliases: []string{"p"},
				Usage:   "Restrict the search to these providers",
			},
		}, jsonFlags()...),
		Action: r.Search,
	}
}

// migrateCommand copies a playlist between providers.
func migrateCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Copy a playlist from one provider to another by search-and-match",
		Flags: []cli.Flag{
			userFlag(),
			&cli.StringFlag{
				Name:  "from",
				Usage: "Source provider (spotify or youtube)",
				Value: "spotify",
			},
			&cli.StringFlag{
				Name:  "to",
				Usage: "Target provider (spotify or youtube)",
				Value: "youtube",
			},
			&cli.StringFlag{
				Name:     "playlist",
				Usage:    "Source playlist ID",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "target-playlist",
				Usage: "Existing target playlist ID (a new playlist is created when empty)",
			},
			&cli.StringFlag{
				Name:  "name",
				Usage: "Name for the new target playlist (defaults to the source name)",
			},
			&cli.StringFlag{
				Name:  "visibility",
				Usage: "Visibility of the new target playlist (private, public or unlisted)",
				Value: "private",
			},
			&cli.FloatFlag{
				Name:  "min-score",
				Usage: "Minimum match score in [0, 100] for a candidate to be added (defaults to migration.min_score)",
			},
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "Search and score without creating or modifying playlists",
			},
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Usage:   "Report format (text, json, csv or markdown)",
				Value:   string(formatter.Text),
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Write the report to a file instead of stdout",
			},
		},
		Action: r.Migrate,
	}
}

// serveCommand runs the HTTP service.
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP service (linking, migration, search and metrics endpoints)",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Usage: "Listen address (defaults to server.host:server.port from the config)",
			},
			&cli.DurationFlag{
				Name:  "purge-interval",
				Usage: "How often expired correlation states are purged",
				Value: time.Hour,
			},
		},
		Action: r.Serve,
	}
}
