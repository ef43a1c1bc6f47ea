package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/tagstate/internal/harness"
	"github.com/roach88/tagstate/internal/query"
)

// QueryOptions holds flags shared by the query subcommands.
type QueryOptions struct {
	*RootOptions
	Journal string
	Limit   int
}

// NewQueryCommand creates the query command and its subcommands.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "query",
		Short: "Query the state recorded in a journal",
		Long: `Rebuild the state recorded in the journal and run one read-only query
against it.

Examples:
  tagstate query --journal chain.db discussions --sort trending --tag go --limit 10
  tagstate query --journal chain.db tags --limit 20
  tagstate query --journal chain.db peers --voter alice
  tagstate query --journal chain.db author-tags --author alice`,
	}
	cmd.PersistentFlags().StringVar(&opts.Journal, "journal", "", "path to the SQLite journal (required)")
	_ = cmd.MarkPersistentFlagRequired("journal")
	cmd.PersistentFlags().IntVar(&opts.Limit, "limit", 20, "maximum number of results")

	cmd.AddCommand(newDiscussionsCommand(opts))
	cmd.AddCommand(newQuerySubcommand(opts, "tags", "List tags by trending weight", cobra.NoArgs,
		func(cmd *cobra.Command) func(*query.Service, []string) (any, error) {
			after := cmd.Flags().String("after", "", "start after this tag")
			return func(svc *query.Service, _ []string) (any, error) {
				return svc.TrendingTags(*after, opts.Limit)
			}
		}))
	cmd.AddCommand(newQuerySubcommand(opts, "tag <name>", "Show the stats of one tag", cobra.ExactArgs(1),
		func(*cobra.Command) func(*query.Service, []string) (any, error) {
			return func(svc *query.Service, args []string) (any, error) {
				info, ok := svc.Tag(args[0])
				if !ok {
					return nil, NewExitError(ExitFailure, fmt.Sprintf("tag %q not found", args[0]))
				}
				return info, nil
			}
		}))
	cmd.AddCommand(newQuerySubcommand(opts, "peers", "List a voter's peers by rank", cobra.NoArgs,
		func(cmd *cobra.Command) func(*query.Service, []string) (any, error) {
			voter := cmd.Flags().String("voter", "", "voting account (required)")
			_ = cmd.MarkFlagRequired("voter")
			return func(svc *query.Service, _ []string) (any, error) {
				return svc.Peers(*voter, opts.Limit)
			}
		}))
	cmd.AddCommand(newQuerySubcommand(opts, "author-tags", "List the tags an author posted under", cobra.NoArgs,
		func(cmd *cobra.Command) func(*query.Service, []string) (any, error) {
			author := cmd.Flags().String("author", "", "author account (required)")
			_ = cmd.MarkFlagRequired("author")
			rewards := cmd.Flags().Bool("rewards", false, "list per-tag rewards instead of post counts")
			return func(svc *query.Service, _ []string) (any, error) {
				if *rewards {
					return svc.AuthorTagRewards(*author), nil
				}
				return svc.TagsUsedByAuthor(*author), nil
			}
		}))
	cmd.AddCommand(newQuerySubcommand(opts, "top-authors", "List the authors of a tag by rewards", cobra.NoArgs,
		func(cmd *cobra.Command) func(*query.Service, []string) (any, error) {
			tag := cmd.Flags().String("tag", "", "tag name")
			return func(svc *query.Service, _ []string) (any, error) {
				return svc.TopAuthors(*tag, opts.Limit)
			}
		}))
	cmd.AddCommand(newQuerySubcommand(opts, "comment-tags <author/permlink>", "List the tag entries of a comment", cobra.ExactArgs(1),
		func(*cobra.Command) func(*query.Service, []string) (any, error) {
			return func(svc *query.Service, args []string) (any, error) {
				author, permlink, err := parseRef(args[0])
				if err != nil {
					return nil, NewExitError(ExitCommandError, err.Error())
				}
				return svc.TagsOfComment(author, permlink), nil
			}
		}))

	return cmd
}

// newQuerySubcommand builds a subcommand whose flags are registered by
// build and whose result is printed by runQuery.
func newQuerySubcommand(opts *QueryOptions, use, short string, args cobra.PositionalArgs,
	build func(*cobra.Command) func(*query.Service, []string) (any, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:           use,
		Short:         short,
		Args:          args,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	run := build(cmd)
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return runQuery(cmd.Context(), opts, cmd, func(svc *query.Service) (any, error) {
			return run(svc, args)
		})
	}
	return cmd
}

func newDiscussionsCommand(opts *QueryOptions) *cobra.Command {
	var sort, tag, parent, start string

	cmd := &cobra.Command{
		Use:   "discussions",
		Short: "List discussions under a tag",
		Long: fmt.Sprintf(`List the discussions of a tag in one of the sort orders:
  %s

--parent lists the replies of author/permlink instead of top-level posts.
--start resumes a listing at author/permlink.`, sortNames()),
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := query.ParseSort(sort)
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid --sort", err)
			}
			q := query.DiscussionQuery{Sort: s, Tag: tag, Limit: opts.Limit}
			if parent != "" {
				if q.ParentAuthor, q.ParentPermlink, err = parseRef(parent); err != nil {
					return WrapExitError(ExitCommandError, "invalid --parent", err)
				}
			}
			if start != "" {
				if q.Start.Author, q.Start.Permlink, err = parseRef(start); err != nil {
					return WrapExitError(ExitCommandError, "invalid --start", err)
				}
			}
			return runQuery(cmd.Context(), opts, cmd, func(svc *query.Service) (any, error) {
				return svc.Discussions(q)
			})
		},
	}
	cmd.Flags().StringVar(&sort, "sort", string(query.SortTrending), "sort order")
	cmd.Flags().StringVar(&tag, "tag", "", "tag name; empty lists every non-spam post")
	cmd.Flags().StringVar(&parent, "parent", "", "parent comment as author/permlink")
	cmd.Flags().StringVar(&start, "start", "", "first comment of the page as author/permlink")
	return cmd
}

func runQuery(ctx context.Context, opts *QueryOptions, cmd *cobra.Command, fn func(*query.Service) (any, error)) error {
	if ctx == nil {
		ctx = context.Background()
	}
	db, err := loadState(ctx, opts.RootOptions, opts.Journal)
	if err != nil {
		return err
	}
	snap, err := db.Snapshot()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to snapshot state", err)
	}
	value, err := fn(query.New(snap, opts.Settings().Query.MaxLimit))
	if err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			return err
		}
		return WrapExitError(ExitCommandError, "query failed", err)
	}

	if opts.Format == "json" {
		return opts.formatter(cmd).Success(value)
	}
	harness.RenderValue(cmd.OutOrStdout(), value)
	return nil
}

func sortNames() string {
	var names []string
	for _, s := range query.Sorts() {
		names = append(names, string(s))
	}
	return strings.Join(names, ", ")
}

// parseRef splits "author/permlink".
func parseRef(ref string) (string, string, error) {
	author, permlink, ok := strings.Cut(ref, "/")
	if !ok || author == "" || permlink == "" {
		return "", "", fmt.Errorf("%q must be author/permlink", ref)
	}
	return author, permlink, nil
}
