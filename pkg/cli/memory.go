package cli

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/anishgillella/Voice-Receptionist/pkg/domain/model"
	"github.com/anishgillella/Voice-Receptionist/pkg/domain/types"
)

func cmdMemory() *cli.Command {
	return &cli.Command{
		Name:  "memory",
		Usage: "Inspect and record durable customer facts",
		Commands: []*cli.Command{
			cmdMemoryList(),
			cmdMemoryAdd(),
		},
	}
}

func cmdMemoryList() *cli.Command {
	var customerID string
	var memoryType string
	var engCfg engineConfig

	flags := []cli.Flag{
		&cli.StringFlag{Name: "customer-id", Required: true, Destination: &customerID},
		&cli.StringFlag{Name: "type", Usage: "Only facts of this type", Destination: &memoryType},
	}
	flags = append(flags, engCfg.Flags()...)

	return &cli.Command{
		Name:  "list",
		Usage: "List facts about a customer, newest first",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			eng, err := engCfg.Build(ctx)
			if err != nil {
				return err
			}
			defer eng.Close()

			entries, err := eng.uc.Memory.List(ctx, model.CustomerID(customerID), types.MemoryType(memoryType))
			if err != nil {
				return err
			}
			return printJSON(memoryViews(entries))
		},
	}
}

func cmdMemoryAdd() *cli.Command {
	var customerID string
	var memoryType string
	var content string
	var engCfg engineConfig

	flags := []cli.Flag{
		&cli.StringFlag{Name: "customer-id", Required: true, Destination: &customerID},
		&cli.StringFlag{Name: "type", Value: types.MemoryTypeNote.String(), Destination: &memoryType},
		&cli.StringFlag{Name: "content", Required: true, Destination: &content},
	}
	flags = append(flags, engCfg.Flags()...)

	return &cli.Command{
		Name:  "add",
		Usage: "Record a fact about a customer",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			eng, err := engCfg.Build(ctx)
			if err != nil {
				return err
			}
			defer eng.Close()

			entry, err := eng.uc.Memory.Record(ctx, &model.MemoryEntry{
				CustomerID: model.CustomerID(customerID),
				Type:       types.MemoryType(memoryType),
				Content:    content,
			})
			if err != nil {
				return err
			}
			return printJSON(memoryViews([]*model.MemoryEntry{entry})[0])
		},
	}
}
