package cmd

import (
	"io"
	"time"

	"github.com/jaffee/commandeer"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/metsis/solrbulk/bulk"
)

// BulkMain is wrapped by NewBulkCommand and only exported for testing purposes.
var BulkMain *bulk.Main

// NewBulkCommand returns a new cobra command wrapping BulkMain.
func NewBulkCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	BulkMain = bulk.NewMain()
	bulkCommand := &cobra.Command{
		Use:   "bulk",
		Short: "index every metadata record under a directory, list file or S3 bucket",
		Long: `Walks the configured input, converts each MMD record to an index
document and loads the documents in chunks, resolving parent/child
links along the way.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			log := zerolog.Ctx(cmd.Context()).With().Str("command", "bulk").Logger()
			start := time.Now()
			if err := BulkMain.Run(cmd.Context(), log); err != nil {
				return err
			}
			log.Info().Str("took", time.Since(start).String()).Msg("done")
			return nil
		},
	}
	flags := bulkCommand.Flags()
	if err := commandeer.Flags(flags, BulkMain); err != nil {
		panic(err)
	}
	return bulkCommand
}

func init() {
	subcommandFns["bulk"] = NewBulkCommand
}
