package cmd

import (
	"io"

	"github.com/jaffee/commandeer"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/metsis/solrbulk/solr"
)

// SearchMain is wrapped by NewSearchCommand and only exported for testing purposes.
var SearchMain *solr.Main

// NewSearchCommand returns a new cobra command wrapping SearchMain.
func NewSearchCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	SearchMain = solr.NewMain()
	searchCommand := &cobra.Command{
		Use:   "search [query]",
		Short: "query the dataset index",
		Long: `Queries the index and prints one line per hit. Bare terms search the
full text field; field:value queries pass through unchanged. With
--delete the matching datasets are removed instead.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				SearchMain.Query = args[0]
			}
			SearchMain.Stdout = stdout
			log := zerolog.Ctx(cmd.Context()).With().Str("command", "search").Logger()
			return SearchMain.Run(cmd.Context(), log)
		},
	}
	flags := searchCommand.Flags()
	if err := commandeer.Flags(flags, SearchMain); err != nil {
		panic(err)
	}
	return searchCommand
}

func init() {
	subcommandFns["search"] = NewSearchCommand
}
