package cli

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/anishgillella/Voice-Receptionist/pkg/domain/model"
	"github.com/anishgillella/Voice-Receptionist/pkg/domain/types"
	"github.com/anishgillella/Voice-Receptionist/pkg/utils/logging"
)

func cmdConversation() *cli.Command {
	return &cli.Command{
		Name:  "conversation",
		Usage: "Operate on stored conversations",
		Commands: []*cli.Command{
			cmdConversationReanalyze(),
			cmdConversationReembed(),
			cmdConversationResume(),
		},
	}
}

func cmdConversationReanalyze() *cli.Command {
	var id string
	var engCfg engineConfig

	flags := []cli.Flag{
		&cli.StringFlag{Name: "id", Usage: "Conversation ID", Required: true, Destination: &id},
	}
	flags = append(flags, engCfg.Flags()...)

	return &cli.Command{
		Name:  "reanalyze",
		Usage: "Analyze a conversation again with a new epoch",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			eng, err := engCfg.Build(ctx)
			if err != nil {
				return err
			}
			defer eng.Close()

			result, err := eng.uc.Conversation.Reanalyze(ctx, model.ConversationID(id))
			if err != nil {
				return err
			}
			return printJSON(processView(result, false))
		},
	}
}

func cmdConversationReembed() *cli.Command {
	var id string
	var all bool
	var engCfg engineConfig

	flags := []cli.Flag{
		&cli.StringFlag{Name: "id", Usage: "Conversation ID", Destination: &id},
		&cli.BoolFlag{Name: "all", Usage: "Re-embed every conversation in needs_reembedding", Destination: &all},
	}
	flags = append(flags, engCfg.Flags()...)

	return &cli.Command{
		Name:  "reembed",
		Usage: "Rebuild the vectors of an analyzed conversation",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			if (id == "") == !all {
				return goerr.Wrap(model.ErrValidation, "specify exactly one of --id or --all")
			}

			eng, err := engCfg.Build(ctx)
			if err != nil {
				return err
			}
			defer eng.Close()

			ids := []model.ConversationID{model.ConversationID(id)}
			if all {
				convs, err := eng.uc.Conversation.ListByStatus(ctx, types.ConversationStatusNeedsReembedding)
				if err != nil {
					return err
				}
				ids = ids[:0]
				for _, conv := range convs {
					ids = append(ids, conv.ID)
				}
			}

			results := make([]map[string]any, 0, len(ids))
			for _, cid := range ids {
				conv, err := eng.uc.Conversation.Reembed(ctx, cid)
				if err != nil {
					if !all {
						return err
					}
					logging.Default().Error("failed to re-embed conversation", "conversation_id", cid, logging.ErrAttr(err))
					results = append(results, map[string]any{"conversation_id": cid, "error": err.Error()})
					continue
				}
				results = append(results, map[string]any{"conversation_id": conv.ID, "status": conv.Status})
			}
			return printJSON(results)
		},
	}
}

// cmdConversationResume re-runs processing for conversations stuck before
// indexing, e.g. after a crash or an LLM outage
func cmdConversationResume() *cli.Command {
	var status string
	var engCfg engineConfig

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "status",
			Usage:       "Status to resume (received, unanalyzed, analyzed)",
			Value:       types.ConversationStatusUnanalyzed.String(),
			Destination: &status,
		},
	}
	flags = append(flags, engCfg.Flags()...)

	return &cli.Command{
		Name:  "resume",
		Usage: "Process conversations that did not reach the indexed state",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			st, err := types.ParseConversationStatus(status)
			if err != nil {
				return goerr.Wrap(model.ErrValidation, "invalid status", goerr.V("status", status))
			}
			if st == types.ConversationStatusIndexed || st == types.ConversationStatusNeedsReembedding {
				return goerr.Wrap(model.ErrValidation, "use conversation reembed for this status", goerr.V("status", status))
			}

			eng, err := engCfg.Build(ctx)
			if err != nil {
				return err
			}
			defer eng.Close()

			convs, err := eng.uc.Conversation.ListByStatus(ctx, st)
			if err != nil {
				return err
			}

			results := make([]map[string]any, 0, len(convs))
			for _, conv := range convs {
				result, err := eng.uc.Conversation.Process(ctx, conv.ID)
				if err != nil {
					logging.Default().Error("failed to process conversation", "conversation_id", conv.ID, logging.ErrAttr(err))
					results = append(results, map[string]any{"conversation_id": conv.ID, "error": err.Error()})
					continue
				}
				results = append(results, processView(result, false))
			}
			return printJSON(results)
		},
	}
}
