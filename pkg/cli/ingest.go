package cli

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/anishgillella/Voice-Receptionist/pkg/domain/model"
	"github.com/anishgillella/Voice-Receptionist/pkg/domain/types"
	"github.com/anishgillella/Voice-Receptionist/pkg/usecase"
)

type ingestOptions struct {
	conversationID string
	customerID     string
	channel        string
	subject        string
	bodyFile       string
	name           string
	company        string
	email          string
	phone          string
	skipProcess    bool
}

func (o *ingestOptions) input() (usecase.IngestInput, error) {
	var body []byte
	var err error
	if o.bodyFile == "-" {
		body, err = io.ReadAll(os.Stdin)
	} else {
		// #nosec G304 - path is provided by the operator
		body, err = os.ReadFile(o.bodyFile)
	}
	if err != nil {
		return usecase.IngestInput{}, goerr.Wrap(err, "failed to read conversation body", goerr.V("path", o.bodyFile))
	}

	now := time.Now().UTC()
	return usecase.IngestInput{
		Conversation: &model.Conversation{
			ID:         model.ConversationID(o.conversationID),
			CustomerID: model.CustomerID(o.customerID),
			Channel:    types.Channel(o.channel),
			Subject:    o.subject,
			Body:       string(body),
			StartedAt:  now,
			EndedAt:    now,
		},
		Customer: &model.Customer{
			Name:        o.name,
			CompanyName: o.company,
			Email:       o.email,
			Phone:       o.phone,
			Active:      true,
		},
	}, nil
}

func cmdIngest() *cli.Command {
	var opts ingestOptions
	var engCfg engineConfig

	flags := []cli.Flag{
		&cli.StringFlag{Name: "conversation-id", Usage: "Provider conversation ID", Required: true, Destination: &opts.conversationID},
		&cli.StringFlag{Name: "customer-id", Usage: "Customer ID", Required: true, Destination: &opts.customerID},
		&cli.StringFlag{Name: "channel", Usage: "Channel (voice, email)", Value: "voice", Destination: &opts.channel},
		&cli.StringFlag{Name: "subject", Usage: "Email subject", Destination: &opts.subject},
		&cli.StringFlag{Name: "body-file", Usage: "Transcript or email body file, - for stdin", Value: "-", Destination: &opts.bodyFile},
		&cli.StringFlag{Name: "customer-name", Destination: &opts.name},
		&cli.StringFlag{Name: "customer-company", Destination: &opts.company},
		&cli.StringFlag{Name: "customer-email", Destination: &opts.email},
		&cli.StringFlag{Name: "customer-phone", Destination: &opts.phone},
		&cli.BoolFlag{Name: "skip-process", Usage: "Store the conversation without analyzing it", Destination: &opts.skipProcess},
	}
	flags = append(flags, engCfg.Flags()...)

	return &cli.Command{
		Name:  "ingest",
		Usage: "Ingest a finished conversation and process it",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			in, err := opts.input()
			if err != nil {
				return err
			}

			eng, err := engCfg.Build(ctx)
			if err != nil {
				return err
			}
			defer eng.Close()

			conv, created, err := eng.uc.Conversation.Ingest(ctx, in)
			if err != nil {
				return err
			}
			if opts.skipProcess {
				return printJSON(map[string]any{
					"conversation_id": conv.ID,
					"status":          conv.Status,
					"created":         created,
				})
			}

			result, err := eng.uc.Conversation.Process(ctx, conv.ID)
			if err != nil {
				return err
			}
			return printJSON(processView(result, created))
		},
	}
}
