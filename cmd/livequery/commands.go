package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/arloliu/livequery"
)

func newWatchCmd(opts *globalOptions) *cobra.Command {
	watch := &cobra.Command{
		Use:   "watch",
		Short: "Stream the state of a document or collection as JSON lines",
	}

	watch.AddCommand(&cobra.Command{
		Use:   "doc <collection> <id>",
		Short: "Watch a single document",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd, opts, livequery.Doc(args[0], args[1]))
		},
	})

	var (
		where []string
		limit int
	)
	collection := &cobra.Command{
		Use:   "collection <collection>",
		Short: "Watch a filtered collection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q := livequery.Collection(args[0]).WithLimit(limit)
			for _, expr := range where {
				f, err := parseFilter(expr)
				if err != nil {
					return err
				}
				q = q.Where(f.Field, f.Op, f.Value)
			}
			if err := q.Validate(); err != nil {
				return err
			}

			return runWatch(cmd, opts, q)
		},
	}
	collection.Flags().StringArrayVarP(&where, "where", "w", nil, "filter field==value or field!=value (repeatable)")
	collection.Flags().IntVarP(&limit, "limit", "n", 0, "maximum number of documents (0 = unlimited)")
	watch.AddCommand(collection)

	return watch
}

// runWatch prints every state of a query until the command context is cancelled.
func runWatch(cmd *cobra.Command, opts *globalOptions, d livequery.Descriptor) error {
	e, err := opts.setup(cmd.Context(), cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer e.Close()

	g, ctx := errgroup.WithContext(cmd.Context())

	if opts.metricsAddr != "" {
		g.Go(func() error { return e.serveMetrics(ctx, opts.metricsAddr) })
	}

	g.Go(func() error {
		q := e.client.Query(livequery.WithDescriptor(d))
		defer q.Close()

		states, unsubscribe := q.Subscribe()
		defer unsubscribe()

		enc := json.NewEncoder(cmd.OutOrStdout())
		for {
			select {
			case <-ctx.Done():
				return nil
			case s, ok := <-states:
				if !ok {
					return nil
				}
				if err := enc.Encode(newStateLine(s)); err != nil {
					return fmt.Errorf("write output: %w", err)
				}
			}
		}
	})

	return g.Wait()
}

func newGetCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <collection> <id>",
		Short: "Print the current content of a document",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := opts.setup(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer e.Close()

			q := e.client.Query(livequery.WithDescriptor(livequery.Doc(args[0], args[1])))
			defer q.Close()

			state, err := q.Wait(cmd.Context(), func(s livequery.State) bool {
				return s.IsSuccess() || s.IsError()
			})
			if err != nil {
				return err
			}
			if state.IsError() {
				return state.Err
			}

			return json.NewEncoder(cmd.OutOrStdout()).Encode(newStateLine(state))
		},
	}
}

func newSetCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "set <collection> <id> <field> <value>",
		Short: "Set one field of a document (value is JSON, or a plain string)",
		Long: `Set one field of a document, creating the document when missing.
Other fields are preserved. The id may contain the %ID% placeholder, replaced by --identity.`,
		Args: cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := opts.setup(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer e.Close()

			id, err := resolveID(e.cfg, opts.identity, args[1])
			if err != nil {
				return err
			}

			ctx, cancel := contextWithTimeout(cmd, e.cfg.WriteTimeout)
			defer cancel()

			return e.store.Write(ctx, livequery.Doc(args[0], id), args[2], parseValue(args[3]))
		},
	}
}

func newDeleteCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <collection> <id>",
		Short: "Delete a document",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := opts.setup(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer e.Close()

			ctx, cancel := contextWithTimeout(cmd, e.cfg.WriteTimeout)
			defer cancel()

			return e.store.Delete(ctx, livequery.Doc(args[0], args[1]))
		},
	}
}

func newShareCmd(opts *globalOptions) *cobra.Command {
	var field string

	cmd := &cobra.Command{
		Use:   "resolve-share <collection> <share-id>",
		Short: "Print the id of the document carrying a share id",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := opts.setup(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer e.Close()

			ctx, cancel := contextWithTimeout(cmd, e.cfg.SubscribeTimeout)
			defer cancel()

			id, err := e.client.ResolveShare(ctx, args[0], field, args[1])
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), id)

			return err
		},
	}
	cmd.Flags().StringVar(&field, "field", "shareId", "document field holding the share id")

	return cmd
}

func newServeCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run until interrupted, keeping the bucket (and --embedded server) available",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := opts.setup(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer e.Close()

			url := e.nc.ConnectedUrl()
			fmt.Fprintf(cmd.OutOrStdout(), "bucket %s ready on %s\n", e.store.Bucket(), url)

			g, ctx := errgroup.WithContext(cmd.Context())
			if opts.metricsAddr != "" {
				g.Go(func() error { return e.serveMetrics(ctx, opts.metricsAddr) })
			}
			g.Go(func() error {
				<-ctx.Done()
				return nil
			})

			return g.Wait()
		},
	}
}

// resolveID substitutes the placeholder in id with identity.
func resolveID(cfg livequery.Config, identity, id string) (string, error) {
	if !strings.Contains(id, cfg.PlaceholderID) {
		return id, nil
	}
	if identity == "" {
		return "", errors.New("id contains the identity placeholder but --identity is not set")
	}

	return strings.ReplaceAll(id, cfg.PlaceholderID, identity), nil
}

func contextWithTimeout(cmd *cobra.Command, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), d)
}
