package cmd

import (
	"io"

	"github.com/jaffee/commandeer"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/metsis/solrbulk/kafka"
)

// KafkaMain is wrapped by NewKafkaCommand and only exported for testing purposes.
var KafkaMain *kafka.Main

// NewKafkaCommand returns a new cobra command wrapping KafkaMain.
func NewKafkaCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	KafkaMain = kafka.NewMain()
	kafkaCommand := &cobra.Command{
		Use:   "kafka",
		Short: "consume metadata records from Kafka and index them continuously",
		Long: `Joins the harvester queue as a consumer group and feeds incoming MMD
records through the same transform and indexing path as the bulk
command, flushing by chunk size or linger time. Runs until the broker
closes the stream, --max-msgs is reached, or the process is stopped.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			log := zerolog.Ctx(cmd.Context()).With().Str("command", "kafka").Logger()
			return KafkaMain.Run(cmd.Context(), log)
		},
	}
	flags := kafkaCommand.Flags()
	if err := commandeer.Flags(flags, KafkaMain); err != nil {
		panic(err)
	}
	return kafkaCommand
}

func init() {
	subcommandFns["kafka"] = NewKafkaCommand
}
