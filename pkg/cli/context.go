package cli

import (
	"context"
	"fmt"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/anishgillella/Voice-Receptionist/pkg/domain/model"
	"github.com/anishgillella/Voice-Receptionist/pkg/usecase"
)

func cmdContext() *cli.Command {
	var customerID string
	var query string
	var topK int
	var minSimilarity float64
	var asJSON bool
	var engCfg engineConfig

	flags := []cli.Flag{
		&cli.StringFlag{Name: "customer-id", Usage: "Customer ID", Required: true, Destination: &customerID},
		&cli.StringFlag{Name: "query", Aliases: []string{"q"}, Usage: "What the customer is talking about now", Required: true, Destination: &query},
		&cli.IntFlag{Name: "top-k", Usage: "Maximum snippets; 0 uses the configured default", Destination: &topK},
		&cli.FloatFlag{Name: "min-similarity", Usage: "Similarity threshold; negative uses the configured default", Value: -1, Destination: &minSimilarity},
		&cli.BoolFlag{Name: "json", Usage: "Print the bundle as JSON instead of the prompt block", Destination: &asJSON},
	}
	flags = append(flags, engCfg.Flags()...)

	return &cli.Command{
		Name:  "context",
		Usage: "Retrieve the context block for a customer",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			eng, err := engCfg.Build(ctx)
			if err != nil {
				return err
			}
			defer eng.Close()

			in := usecase.RetrieveInput{
				CustomerID: model.CustomerID(customerID),
				Query:      query,
				TopK:       topK,
			}
			if minSimilarity >= 0 {
				if minSimilarity > 1 {
					return goerr.Wrap(model.ErrValidation, "min-similarity must be between 0 and 1")
				}
				in.MinSimilarity = &minSimilarity
			}

			bundle, err := eng.uc.Retrieval.RetrieveContext(ctx, in)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(bundle)
			}
			_, err = fmt.Fprint(stdout, bundle.Format())
			return err
		},
	}
}
