package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"danmu/internal/apiclient"
	"danmu/internal/importer"
	"danmu/internal/provider"
	"danmu/internal/tasks"
)

// submitOptions are shared by every command that queues a job.
type submitOptions struct {
	wait     bool
	interval time.Duration
	asJSON   bool
}

func (o *submitOptions) bind(cmd *cobra.Command) {
	cmd.Flags().BoolVarP(&o.wait, "wait", "w", false, "Follow the job until it finishes")
	cmd.Flags().DurationVar(&o.interval, "interval", time.Second, "Polling interval used with --wait")
	cmd.Flags().BoolVar(&o.asJSON, "json", false, "Print the queued job as JSON")
}

// submit queues kind with params and reports the outcome. A duplicate is not
// an error: the job already holding the key is reported instead.
func (c *commandContext) submit(cmd *cobra.Command, opts *submitOptions, kind tasks.Kind, params any) error {
	return c.withClient(func(client *apiclient.Client) error {
		out := cmd.OutOrStdout()
		job, err := client.Submit(cmd.Context(), string(kind), params)
		duplicate := errors.Is(err, apiclient.ErrConflict) && job.ID > 0
		if err != nil && !duplicate {
			return err
		}
		if opts.asJSON {
			if err := writeJSON(cmd, job); err != nil {
				return err
			}
		} else if duplicate {
			fmt.Fprintf(out, "Already queued as job #%d (%s)\n", job.ID, job.Status)
		} else {
			fmt.Fprintf(out, "Queued job #%d: %s\n", job.ID, job.Title)
		}
		if !opts.wait {
			return nil
		}
		return followJob(cmd, client, job.ID, opts.interval)
	})
}

func newImportCommand(ctx *commandContext) *cobra.Command {
	importCmd := &cobra.Command{
		Use:   "import",
		Short: "Import danmaku from providers",
	}
	importCmd.AddCommand(newGenericImportCommand(ctx))
	importCmd.AddCommand(newManualImportCommand(ctx))
	importCmd.AddCommand(newBatchImportCommand(ctx))
	return importCmd
}

func newGenericImportCommand(ctx *commandContext) *cobra.Command {
	var req importer.Request
	var episode, year int
	var episodesFile string
	var opts submitOptions

	cmd := &cobra.Command{
		Use:   "media",
		Short: "Import every episode (or one) of a provider media item",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("episode") {
				req.EpisodeIndex = &episode
			}
			if cmd.Flags().Changed("year") {
				req.Year = &year
			}
			if episodesFile == "" {
				return ctx.submit(cmd, &opts, tasks.KindGenericImport, req)
			}
			var episodes []provider.Episode
			if err := readJSONFile(episodesFile, &episodes); err != nil {
				return err
			}
			return ctx.submit(cmd, &opts, tasks.KindEditedImport, tasks.EditedImportParams{Request: req, Episodes: episodes})
		},
	}
	f := cmd.Flags()
	f.StringVarP(&req.Provider, "provider", "p", "", "Provider name, e.g. bilibili")
	f.StringVarP(&req.MediaID, "media-id", "m", "", "Provider media id")
	f.StringVarP(&req.Title, "title", "t", "", "Work title")
	f.StringVar(&req.Type, "type", "tv_series", "Media type: tv_series, movie, ova or other")
	f.IntVarP(&req.Season, "season", "s", 1, "Season number")
	f.IntVarP(&episode, "episode", "e", 0, "Only import this episode index")
	f.StringVar(&req.ImageURL, "image-url", "", "Poster image URL")
	f.StringVar(&req.TMDBID, "tmdb-id", "", "TMDB id")
	f.StringVar(&req.IMDBID, "imdb-id", "", "IMDb id")
	f.StringVar(&req.TVDBID, "tvdb-id", "", "TVDB id")
	f.StringVar(&req.DoubanID, "douban-id", "", "Douban id")
	f.StringVar(&req.BangumiID, "bangumi-id", "", "Bangumi id")
	f.StringVar(&req.EpisodeGroupID, "episode-group", "", "TMDB episode group id")
	f.IntVar(&year, "year", 0, "Release year")
	f.StringVar(&episodesFile, "episodes-file", "", "JSON file with an edited episode list")
	_ = cmd.MarkFlagRequired("provider")
	_ = cmd.MarkFlagRequired("media-id")
	_ = cmd.MarkFlagRequired("title")
	opts.bind(cmd)
	return cmd
}

func newManualImportCommand(ctx *commandContext) *cobra.Command {
	var params tasks.ManualImportParams
	var contentFile string
	var opts submitOptions

	cmd := &cobra.Command{
		Use:   "manual",
		Short: "Import one episode into a source from a URL or an XML file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if contentFile != "" {
				data, err := os.ReadFile(contentFile)
				if err != nil {
					return fmt.Errorf("read content: %w", err)
				}
				params.Content = string(data)
			}
			return ctx.submit(cmd, &opts, tasks.KindManualImport, params)
		},
	}
	f := cmd.Flags()
	f.Int64Var(&params.SourceID, "source", 0, "Target source id")
	f.IntVarP(&params.Index, "index", "i", 0, "Episode index")
	f.StringVarP(&params.Title, "title", "t", "", "Episode title")
	f.StringVarP(&params.URL, "url", "u", "", "Episode page URL")
	f.StringVar(&contentFile, "content-file", "", "Danmaku XML file (custom sources only)")
	_ = cmd.MarkFlagRequired("source")
	_ = cmd.MarkFlagRequired("index")
	opts.bind(cmd)
	return cmd
}

func newBatchImportCommand(ctx *commandContext) *cobra.Command {
	var params tasks.BatchManualImportParams
	var itemsFile string
	var opts submitOptions

	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Import several manual items into a source",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := readJSONFile(itemsFile, &params.Items); err != nil {
				return err
			}
			return ctx.submit(cmd, &opts, tasks.KindBatchManualImport, params)
		},
	}
	cmd.Flags().Int64Var(&params.SourceID, "source", 0, "Target source id")
	cmd.Flags().StringVar(&itemsFile, "items-file", "", "JSON array of {index,title,url,content}")
	_ = cmd.MarkFlagRequired("source")
	_ = cmd.MarkFlagRequired("items-file")
	opts.bind(cmd)
	return cmd
}

func newAutoImportCommand(ctx *commandContext) *cobra.Command {
	var params tasks.AutoImportParams
	var season, episode int
	var opts submitOptions

	cmd := &cobra.Command{
		Use:   "auto-import <id or keyword>",
		Short: "Search every provider and import the best match",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params.ID = strings.Join(args, " ")
			if cmd.Flags().Changed("season") {
				params.Season = &season
			}
			if cmd.Flags().Changed("episode") {
				params.Episode = &episode
			}
			return ctx.submit(cmd, &opts, tasks.KindAutoSearchAndImport, params)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&params.Provider, "provider", "p", tasks.KeywordSearch, "Metadata provider for the id, or \"keyword\"")
	f.StringVar(&params.Type, "type", "", "Media type hint")
	f.IntVarP(&season, "season", "s", 1, "Season number")
	f.IntVarP(&episode, "episode", "e", 0, "Only import this episode")
	opts.bind(cmd)
	return cmd
}

func newRefreshCommand(ctx *commandContext) *cobra.Command {
	refreshCmd := &cobra.Command{
		Use:   "refresh",
		Short: "Re-fetch danmaku for a source or an episode",
	}

	var incremental bool
	var nextIndex int
	var sourceOpts submitOptions
	sourceCmd := &cobra.Command{
		Use:   "source <id>",
		Short: "Refresh every episode of a source, or fetch the next one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parsePositiveIDs(args)
			if err != nil {
				return err
			}
			if incremental {
				return ctx.submit(cmd, &sourceOpts, tasks.KindIncrementalRefresh,
					tasks.IncrementalRefreshParams{SourceID: ids[0], NextIndex: nextIndex})
			}
			return ctx.submit(cmd, &sourceOpts, tasks.KindFullRefresh, tasks.SourceParams{SourceID: ids[0]})
		},
	}
	sourceCmd.Flags().BoolVar(&incremental, "incremental", false, "Only fetch the episode after the last stored one")
	sourceCmd.Flags().IntVar(&nextIndex, "next", 0, "Episode index to fetch with --incremental")
	sourceOpts.bind(sourceCmd)

	var episodeOpts submitOptions
	episodeCmd := &cobra.Command{
		Use:   "episode <id>",
		Short: "Refresh one episode",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parsePositiveIDs(args)
			if err != nil {
				return err
			}
			return ctx.submit(cmd, &episodeOpts, tasks.KindRefreshEpisode, tasks.EpisodeParams{EpisodeID: ids[0]})
		},
	}
	episodeOpts.bind(episodeCmd)

	refreshCmd.AddCommand(sourceCmd, episodeCmd)
	return refreshCmd
}

func newReorderCommand(ctx *commandContext) *cobra.Command {
	var opts submitOptions
	cmd := &cobra.Command{
		Use:   "reorder <source-id>",
		Short: "Renumber a source's episodes 1..n and realign their ids",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parsePositiveIDs(args)
			if err != nil {
				return err
			}
			return ctx.submit(cmd, &opts, tasks.KindReorderEpisodes, tasks.SourceParams{SourceID: ids[0]})
		},
	}
	opts.bind(cmd)
	return cmd
}

func newDeleteCommand(ctx *commandContext) *cobra.Command {
	deleteCmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete works, sources or episodes with their track files",
	}

	var animeOpts submitOptions
	animeCmd := &cobra.Command{
		Use:   "anime <work-id>",
		Short: "Delete a work and everything under it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parsePositiveIDs(args)
			if err != nil {
				return err
			}
			return ctx.submit(cmd, &animeOpts, tasks.KindDeleteAnime, tasks.WorkParams{WorkID: ids[0]})
		},
	}
	animeOpts.bind(animeCmd)

	var sourceOpts submitOptions
	sourceCmd := &cobra.Command{
		Use:   "source <id>...",
		Short: "Delete one or more sources",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parsePositiveIDs(args)
			if err != nil {
				return err
			}
			if len(ids) == 1 {
				return ctx.submit(cmd, &sourceOpts, tasks.KindDeleteSource, tasks.SourceParams{SourceID: ids[0]})
			}
			return ctx.submit(cmd, &sourceOpts, tasks.KindDeleteBulkSources, tasks.BulkParams{IDs: ids})
		},
	}
	sourceOpts.bind(sourceCmd)

	var episodeOpts submitOptions
	episodeCmd := &cobra.Command{
		Use:   "episode <id>...",
		Short: "Delete one or more episodes",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parsePositiveIDs(args)
			if err != nil {
				return err
			}
			if len(ids) == 1 {
				return ctx.submit(cmd, &episodeOpts, tasks.KindDeleteEpisode, tasks.EpisodeParams{EpisodeID: ids[0]})
			}
			return ctx.submit(cmd, &episodeOpts, tasks.KindDeleteBulkEpisodes, tasks.BulkParams{IDs: ids})
		},
	}
	episodeOpts.bind(episodeCmd)

	deleteCmd.AddCommand(animeCmd, sourceCmd, episodeCmd)
	return deleteCmd
}

func newMaintenanceCommand(ctx *commandContext) *cobra.Command {
	var opts submitOptions
	cmd := &cobra.Command{
		Use:   "maintenance",
		Short: "Prune old job history and optimize the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.submit(cmd, &opts, tasks.KindDatabaseMaintenance, nil)
		},
	}
	opts.bind(cmd)
	return cmd
}

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var paramsJSON string
	var paramsFile string
	var opts submitOptions

	cmd := &cobra.Command{
		Use:   "submit <kind>",
		Short: "Queue any job kind with raw JSON params",
		Long:  "Queue any job kind with raw JSON params.\n\nKinds: " + kindList(),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, ok := tasks.ParseKind(args[0])
			if !ok {
				return fmt.Errorf("unknown job kind %q (known: %s)", args[0], kindList())
			}
			var params json.RawMessage
			switch {
			case paramsJSON != "" && paramsFile != "":
				return errors.New("specify only one of --params or --params-file")
			case paramsJSON != "":
				params = json.RawMessage(paramsJSON)
			case paramsFile != "":
				data, err := os.ReadFile(paramsFile)
				if err != nil {
					return fmt.Errorf("read params: %w", err)
				}
				params = json.RawMessage(data)
			}
			if params != nil && !json.Valid(params) {
				return errors.New("params are not valid JSON")
			}
			if params == nil {
				return ctx.submit(cmd, &opts, kind, nil)
			}
			return ctx.submit(cmd, &opts, kind, params)
		},
	}
	cmd.Flags().StringVar(&paramsJSON, "params", "", "Job params as a JSON object")
	cmd.Flags().StringVar(&paramsFile, "params-file", "", "File holding the job params")
	opts.bind(cmd)
	return cmd
}

func kindList() string {
	kinds := tasks.Kinds()
	names := make([]string, 0, len(kinds))
	for _, k := range kinds {
		names = append(names, string(k))
	}
	return strings.Join(names, ", ")
}

func readJSONFile(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}
