package cli

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sipeed/picocrud/pkg/app"
	"github.com/sipeed/picocrud/pkg/domain"
	"github.com/sipeed/picocrud/pkg/domain/child"
	"github.com/sipeed/picocrud/pkg/rpc"
)

type ChildOptions struct {
	*RootOptions
	Kind     string
	Parent   string
	ID       string
	Value    string
	Element  string
	Elements string
	Criteria string
	Remote   string
	Token    string
}

// NewChildCommand runs one child operation, locally against the configured
// store or remotely over gRPC.
func NewChildCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ChildOptions{RootOptions: rootOpts}

	ops := make([]string, 0, len(domain.AllOperations()))
	for _, op := range domain.AllOperations() {
		ops = append(ops, string(op))
	}

	cmd := &cobra.Command{
		Use:   "child <operation>",
		Short: "Run a child collection operation",
		Long: `Run a child collection operation.

Operations: ` + strings.Join(ops, ", ") + `

Element JSON may be given inline or as @path/to/file.json. Criteria use the
REST query syntax, e.g. "name=work&type.in=email,phone".

Example:
  picocrud child save --kind contact-medium --parent <id> \
    --element '{"name":"work","type":"email","value":"a@b.c"}'`,
		Args:      cobra.ExactArgs(1),
		ValidArgs: ops,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChild(cmd, opts, domain.Operation(args[0]))
		},
	}

	cmd.Flags().StringVarP(&opts.Kind, "kind", "k", "", "child kind ("+kindList()+")")
	cmd.Flags().StringVarP(&opts.Parent, "parent", "p", "", "parent resource id")
	cmd.Flags().StringVar(&opts.ID, "id", "", "child id (*-by-id, get-by-id)")
	cmd.Flags().StringVar(&opts.Value, "value", "", "natural key value (*-by-name/key/type/related-id)")
	cmd.Flags().StringVarP(&opts.Element, "element", "e", "", "element JSON or @file")
	cmd.Flags().StringVar(&opts.Elements, "elements", "", "element array JSON or @file")
	cmd.Flags().StringVar(&opts.Criteria, "criteria", "", "criteria query string")
	cmd.Flags().StringVar(&opts.Remote, "remote", "", "gRPC address; empty runs against the local store")
	cmd.Flags().StringVar(&opts.Token, "token", "", "bearer token for --remote")
	_ = cmd.MarkFlagRequired("kind")
	_ = cmd.MarkFlagRequired("parent")

	return cmd
}

func kindList() string {
	kinds := child.AllKinds()
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = string(k)
	}
	return strings.Join(names, ", ")
}

func buildCommand(opts *ChildOptions, op domain.Operation) (app.Command, error) {
	if !op.Valid() {
		return app.Command{}, domain.BadRequestf("unknown operation %q", op)
	}
	kind, err := child.ParseKind(opts.Kind)
	if err != nil {
		return app.Command{}, err
	}
	cmd := app.Command{
		Operation: op,
		Kind:      kind,
		ParentID:  domain.EntityID(opts.Parent),
		ID:        domain.EntityID(opts.ID),
		Value:     opts.Value,
	}
	if opts.Criteria != "" {
		q, err := url.ParseQuery(opts.Criteria)
		if err != nil {
			return app.Command{}, domain.BadRequestf("criteria: %v", err)
		}
		if cmd.Criteria, err = child.ParseStrictQuery(q); err != nil {
			return app.Command{}, err
		}
	}
	if cmd.Element, err = readJSONArg(opts.Element); err != nil {
		return app.Command{}, err
	}
	if cmd.Elements, err = readJSONArg(opts.Elements); err != nil {
		return app.Command{}, err
	}
	return cmd, nil
}

// readJSONArg accepts inline JSON or @file.
func readJSONArg(arg string) (json.RawMessage, error) {
	if arg == "" {
		return nil, nil
	}
	data := []byte(arg)
	if path, ok := strings.CutPrefix(arg, "@"); ok {
		var err error
		if data, err = os.ReadFile(path); err != nil {
			return nil, domain.BadRequestf("read %s: %v", path, err)
		}
	}
	if !json.Valid(data) {
		return nil, domain.BadRequestf("invalid JSON: %s", arg)
	}
	return data, nil
}

func runChild(cmd *cobra.Command, opts *ChildOptions, op domain.Operation) error {
	command, err := buildCommand(opts, op)
	if err != nil {
		return WrapExitError(ExitCommandError, "child", err)
	}

	var reply *app.Reply
	if opts.Remote != "" {
		cl, err := rpc.Dial(opts.Remote, opts.Token)
		if err != nil {
			return WrapExitError(ExitCommandError, "dial "+opts.Remote, err)
		}
		defer cl.Close()
		if reply, err = cl.Execute(cmd.Context(), command); err != nil {
			return childFailure(op, err)
		}
	} else {
		err = withRuntime(cmd, opts.RootOptions, func(rt *runtime) error {
			r, err := rt.container.Dispatcher.Execute(cmd.Context(), command, cliUser)
			if err != nil {
				return childFailure(op, err)
			}
			reply = &r
			return nil
		})
		if err != nil {
			return err
		}
	}
	return printJSON(cmd.OutOrStdout(), reply)
}

func childFailure(op domain.Operation, err error) error {
	return WrapExitError(ExitFailure, fmt.Sprintf("%s (%d %s)", op, domain.StatusOf(err), domain.CodeOf(err)), err)
}
