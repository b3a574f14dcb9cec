package cli_test

import (
	"testing"

	"github.com/m-mizutani/gt"

	"github.com/anishgillella/Voice-Receptionist/pkg/cli"
)

func TestGetIndexConfig(t *testing.T) {
	cfg := cli.GetIndexConfig("test_", 768)

	names := make([]string, 0, len(cfg.Collections))
	vectorDims := 0
	for _, c := range cfg.Collections {
		names = append(names, c.Name)
		for _, idx := range c.Indexes {
			for _, f := range idx.Fields {
				if f.Vector != nil {
					gt.Value(t, f.Vector.Dimension).Equal(768)
					vectorDims++
				}
			}
		}
	}

	gt.Array(t, names).Has("test_conversations")
	gt.Array(t, names).Has("test_dispatches")
	gt.Array(t, names).Has("test_memories")
	gt.Array(t, names).Has("test_embeddings")
	gt.Value(t, vectorDims).Equal(2)
}
