package cli

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/anishgillella/Voice-Receptionist/pkg/domain/model"
	"github.com/anishgillella/Voice-Receptionist/pkg/domain/types"
)

func cmdDispatch() *cli.Command {
	return &cli.Command{
		Name:  "dispatch",
		Usage: "Inspect and retry action dispatches",
		Commands: []*cli.Command{
			cmdDispatchList(),
			cmdDispatchRetry(),
		},
	}
}

func cmdDispatchList() *cli.Command {
	var conversationID string
	var status string
	var engCfg engineConfig

	flags := []cli.Flag{
		&cli.StringFlag{Name: "conversation-id", Usage: "Dispatches of one conversation", Destination: &conversationID},
		&cli.StringFlag{Name: "status", Usage: "Dispatches in this status (pending, executed, skipped, failed)", Destination: &status},
	}
	flags = append(flags, engCfg.Flags()...)

	return &cli.Command{
		Name:  "list",
		Usage: "List dispatch ledger rows",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			if (conversationID == "") == (status == "") {
				return goerr.Wrap(model.ErrValidation, "specify exactly one of --conversation-id or --status")
			}

			eng, err := engCfg.Build(ctx)
			if err != nil {
				return err
			}
			defer eng.Close()

			var records []*model.DispatchRecord
			if conversationID != "" {
				records, err = eng.uc.Dispatch.List(ctx, model.ConversationID(conversationID))
			} else {
				records, err = eng.uc.Dispatch.ListByStatus(ctx, types.DispatchStatus(status))
			}
			if err != nil {
				return err
			}
			return printJSON(dispatchViews(records))
		},
	}
}

func cmdDispatchRetry() *cli.Command {
	var conversationID string
	var actionType string
	var engCfg engineConfig

	flags := []cli.Flag{
		&cli.StringFlag{Name: "conversation-id", Required: true, Destination: &conversationID},
		&cli.StringFlag{Name: "action", Usage: "Action type of the failed dispatch", Required: true, Destination: &actionType},
	}
	flags = append(flags, engCfg.Flags()...)

	return &cli.Command{
		Name:  "retry",
		Usage: "Run a failed action again",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			t, err := types.ParseActionType(actionType)
			if err != nil {
				return goerr.Wrap(model.ErrValidation, "invalid action type", goerr.V("action", actionType))
			}

			eng, err := engCfg.Build(ctx)
			if err != nil {
				return err
			}
			defer eng.Close()

			record, err := eng.uc.Dispatch.Retry(ctx, model.ConversationID(conversationID), t)
			if err != nil {
				return err
			}
			return printJSON(dispatchViews([]*model.DispatchRecord{record})[0])
		},
	}
}
