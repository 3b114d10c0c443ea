package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sipeed/picocrud/pkg/domain"
)

// NewResourceCommand manages parent resources in the configured store.
func NewResourceCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resource",
		Short: "Create, inspect and delete parent resources",
	}

	var (
		name        string
		description string
		tags        []string
	)
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a resource",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, rootOpts, func(rt *runtime) error {
				res, err := rt.container.Service.CreateResource(cmd.Context(), name, description, tags, cliUser)
				if err != nil {
					return WrapExitError(ExitFailure, "create resource", err)
				}
				return printJSON(cmd.OutOrStdout(), res)
			})
		},
	}
	create.Flags().StringVar(&name, "name", "", "resource name")
	create.Flags().StringVar(&description, "description", "", "resource description")
	create.Flags().StringSliceVar(&tags, "tag", nil, "tag (repeatable)")
	_ = create.MarkFlagRequired("name")

	get := &cobra.Command{
		Use:   "get <id>",
		Short: "Print one resource with its child collections",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, rootOpts, func(rt *runtime) error {
				res, err := rt.container.Service.GetResource(cmd.Context(), domain.EntityID(args[0]))
				if err != nil {
					return WrapExitError(ExitFailure, "get resource", err)
				}
				return printJSON(cmd.OutOrStdout(), res)
			})
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List resources",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, rootOpts, func(rt *runtime) error {
				all, count, err := rt.container.Service.ListResources(cmd.Context())
				if err != nil {
					return WrapExitError(ExitFailure, "list resources", err)
				}
				return printJSON(cmd.OutOrStdout(), map[string]interface{}{"resources": all, "count": count})
			})
		},
	}

	archive := &cobra.Command{
		Use:   "archive <id>",
		Short: "Mark a resource archived",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, rootOpts, func(rt *runtime) error {
				res, err := rt.container.Service.ArchiveResource(cmd.Context(), domain.EntityID(args[0]), cliUser)
				if err != nil {
					return WrapExitError(ExitFailure, "archive resource", err)
				}
				return printJSON(cmd.OutOrStdout(), res)
			})
		},
	}

	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a resource and all of its children",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, rootOpts, func(rt *runtime) error {
				if err := rt.container.Service.DeleteResource(cmd.Context(), domain.EntityID(args[0]), cliUser); err != nil {
					return WrapExitError(ExitFailure, "delete resource", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
				return nil
			})
		},
	}

	cmd.AddCommand(create, get, list, archive, del)
	return cmd
}

func withRuntime(cmd *cobra.Command, opts *RootOptions, fn func(*runtime) error) error {
	rt, err := openRuntime(cmd.Context(), opts.Config)
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(rt)
}
