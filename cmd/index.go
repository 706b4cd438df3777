package cmd

import (
	"io"

	"github.com/jaffee/commandeer"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/metsis/solrbulk/bulk"
)

// IndexMain is wrapped by NewIndexCommand and only exported for testing purposes.
var IndexMain *bulk.SingleMain

// NewIndexCommand returns a new cobra command wrapping IndexMain.
func NewIndexCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	IndexMain = bulk.NewSingleMain()
	indexCommand := &cobra.Command{
		Use:   "index",
		Short: "index a single metadata record, or mark one as parent",
		Long: `Indexes one record or a short list of records, the small sibling of
the bulk command. With --mark-parent it skips indexing and just flags
an already indexed dataset as a parent.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			log := zerolog.Ctx(cmd.Context()).With().Str("command", "index").Logger()
			return IndexMain.Run(cmd.Context(), log)
		},
	}
	flags := indexCommand.Flags()
	if err := commandeer.Flags(flags, IndexMain); err != nil {
		panic(err)
	}
	return indexCommand
}

func init() {
	subcommandFns["index"] = NewIndexCommand
}
