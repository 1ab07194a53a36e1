package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/123123eeqweq/omocrm/board"
	"github.com/123123eeqweq/omocrm/client"
	"github.com/123123eeqweq/omocrm/domain"
)

type boardFlags struct {
	project string
	todo    bool
}

func (f *boardFlags) register(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVarP(&f.project, "project", "p", "", "Project id")
	cmd.PersistentFlags().BoolVar(&f.todo, "todo", false, "Use the shared ToDo board")
}

func (f *boardFlags) resolve() (string, board.Options, error) {
	switch {
	case f.todo && f.project != "" && f.project != domain.TodoBoardID:
		return "", board.Options{}, errors.New("--todo and --project are mutually exclusive")
	case f.todo || f.project == domain.TodoBoardID:
		return domain.TodoBoardID, board.TodoOptions(), nil
	case f.project == "":
		return "", board.Options{}, errors.New("--project or --todo is required")
	default:
		return f.project, board.ProjectOptions(), nil
	}
}

// withBoard loads the board, runs fn and waits for the resulting save.
func (app *App) withBoard(cmd *cobra.Command, flags *boardFlags, fn func(vm *board.ViewModel) error) error {
	projectID, opts, err := flags.resolve()
	if err != nil {
		return err
	}
	s, err := app.open()
	if err != nil {
		return err
	}
	opts.Gate = s.gate
	opts.Logger = app.Logger
	vm := board.New(s.client, projectID, opts)

	ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
	defer cancel()
	if err := vm.Load(ctx); err != nil {
		_ = vm.Close(ctx)
		if client.IsUnauthorized(err) {
			return errSessionExpired
		}
		return errors.New(board.MsgLoadFailed)
	}

	fnErr := fn(vm)
	closeErr := vm.Close(ctx)
	if vm.State() == board.StateUnauthorized {
		return errSessionExpired
	}
	if fnErr != nil {
		return fnErr
	}
	if msg := vm.SaveError(); msg != "" || closeErr != nil {
		if msg == "" {
			msg = board.MsgSaveFailed
		}
		return errors.New(msg)
	}
	if err := s.persist(); err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), renderBoard(vm.Board(), vm.Columns(), vm.CardsOnly()))
	return nil
}

func newBoardCmd(app *App) *cobra.Command {
	flags := &boardFlags{}
	cmd := &cobra.Command{
		Use:   "board",
		Short: "Show boards",
	}
	flags.register(cmd)
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the board",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.withBoard(cmd, flags, func(*board.ViewModel) error { return nil })
		},
	})
	return cmd
}

func newCardCmd(app *App) *cobra.Command {
	flags := &boardFlags{}
	cmd := &cobra.Command{
		Use:   "card",
		Short: "Add, edit, remove and move cards",
	}
	flags.register(cmd)

	cmd.AddCommand(
		&cobra.Command{
			Use:   "add <column> [title...]",
			Short: "Add a card to a column",
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return app.withBoard(cmd, flags, func(vm *board.ViewModel) error {
					if _, ok := vm.AddCard(args[0], strings.Join(args[1:], " ")); !ok {
						return fmt.Errorf("unknown column %q", args[0])
					}
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "edit <card> <title...>",
			Short: "Rename a card",
			Args:  cobra.MinimumNArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return app.withBoard(cmd, flags, func(vm *board.ViewModel) error {
					id, err := resolveCard(vm.Board(), args[0])
					if err != nil {
						return err
					}
					vm.UpdateCard(id, strings.Join(args[1:], " "))
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "rm <card>",
			Short: "Delete a card",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return app.withBoard(cmd, flags, func(vm *board.ViewModel) error {
					id, err := resolveCard(vm.Board(), args[0])
					if err != nil {
						return err
					}
					vm.RemoveCard(id)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "move <card> <column|card>",
			Short: "Move a card to a column, or to the column of another card",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return app.withBoard(cmd, flags, func(vm *board.ViewModel) error {
					b := vm.Board()
					id, err := resolveCard(b, args[0])
					if err != nil {
						return err
					}
					over := args[1]
					if !domain.HasColumn(vm.Columns(), over) {
						if over, err = resolveCard(b, over); err != nil {
							return err
						}
					}
					if !vm.MoveCard(id, over) {
						fmt.Fprintln(cmd.ErrOrStderr(), "card is already in that column")
					}
					return nil
				})
			},
		},
	)
	return cmd
}

func newStepCmd(app *App) *cobra.Command {
	flags := &boardFlags{}
	cmd := &cobra.Command{
		Use:   "step",
		Short: "Manage roadmap steps",
	}
	flags.register(cmd)

	roadmap := func(vm *board.ViewModel) error {
		if vm.CardsOnly() {
			return errors.New("this board has no roadmap")
		}
		return nil
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "add [title...]",
			Short: "Append a step",
			RunE: func(cmd *cobra.Command, args []string) error {
				return app.withBoard(cmd, flags, func(vm *board.ViewModel) error {
					if err := roadmap(vm); err != nil {
						return err
					}
					vm.AddStep(strings.Join(args, " "))
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "edit <step> <title...>",
			Short: "Rename a step",
			Args:  cobra.MinimumNArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return app.withBoard(cmd, flags, func(vm *board.ViewModel) error {
					if err := roadmap(vm); err != nil {
						return err
					}
					id, err := resolveStep(vm.Board(), args[0])
					if err != nil {
						return err
					}
					vm.UpdateStep(id, strings.Join(args[1:], " "))
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "rm <step>",
			Short: "Delete a step",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return app.withBoard(cmd, flags, func(vm *board.ViewModel) error {
					if err := roadmap(vm); err != nil {
						return err
					}
					id, err := resolveStep(vm.Board(), args[0])
					if err != nil {
						return err
					}
					vm.RemoveStep(id)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "toggle <step>",
			Short: "Mark a step done or not done",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return app.withBoard(cmd, flags, func(vm *board.ViewModel) error {
					if err := roadmap(vm); err != nil {
						return err
					}
					id, err := resolveStep(vm.Board(), args[0])
					if err != nil {
						return err
					}
					vm.ToggleStep(id)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "move <step> <target-step>",
			Short: "Move a step to the position of another step",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return app.withBoard(cmd, flags, func(vm *board.ViewModel) error {
					if err := roadmap(vm); err != nil {
						return err
					}
					b := vm.Board()
					from, err := resolveStep(b, args[0])
					if err != nil {
						return err
					}
					to, err := resolveStep(b, args[1])
					if err != nil {
						return err
					}
					vm.MoveStep(from, to)
					return nil
				})
			},
		},
	)
	return cmd
}

// resolveCard accepts a full card id or a unique id prefix.
func resolveCard(b domain.Board, ref string) (string, error) {
	ids := make([]string, len(b.Cards))
	for i, c := range b.Cards {
		ids[i] = c.ID
	}
	return resolveID("card", ids, ref)
}

// resolveStep accepts a step number, a full step id or a unique id prefix.
func resolveStep(b domain.Board, ref string) (string, error) {
	if n, err := strconv.Atoi(ref); err == nil {
		for i, s := range b.Steps {
			if domain.StepNumber(i) == n {
				return s.ID, nil
			}
		}
		return "", fmt.Errorf("no step number %d", n)
	}
	ids := make([]string, len(b.Steps))
	for i, s := range b.Steps {
		ids[i] = s.ID
	}
	return resolveID("step", ids, ref)
}

func resolveID(kind string, ids []string, ref string) (string, error) {
	var match string
	for _, id := range ids {
		if id == ref {
			return id, nil
		}
		if strings.HasPrefix(id, ref) {
			if match != "" {
				return "", fmt.Errorf("%s %q is ambiguous", kind, ref)
			}
			match = id
		}
	}
	if match == "" {
		return "", fmt.Errorf("no %s %q", kind, ref)
	}
	return match, nil
}
