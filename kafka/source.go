// Package kafka streams raw metadata records from the harvester queue
// and feeds them through the bulk indexing path in chunks.
package kafka

import (
	"fmt"
	"io"
	stdlog "log"

	"github.com/Shopify/sarama"
	cluster "github.com/bsm/sarama-cluster"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	solrbulk "github.com/metsis/solrbulk"
)

// Source consumes raw MMD XML messages through a consumer group. Each
// message value is one record; the location tag is
// topic/partition/offset.
type Source struct {
	Hosts   []string
	Topics  []string
	Group   string
	MaxMsgs int
	numMsgs int

	log      zerolog.Logger
	consumer *cluster.Consumer
}

// NewSource returns a Source with development defaults.
func NewSource(log zerolog.Logger) *Source {
	return &Source{
		Hosts:  []string{"localhost:9092"},
		Topics: []string{"mmd"},
		Group:  "solrbulk",
		log:    log.With().Str("component", "kafka").Logger(),
	}
}

// Open connects the consumer group and starts draining its error and
// rebalance channels.
func (s *Source) Open() error {
	sarama.Logger = stdlog.New(io.Discard, "", 0)
	config := cluster.NewConfig()
	config.Config.Version = sarama.V0_10_0_0
	config.Consumer.Return.Errors = true
	config.Consumer.Offsets.Initial = sarama.OffsetOldest
	config.Group.Return.Notifications = true

	var err error
	s.consumer, err = cluster.NewConsumer(s.Hosts, s.Group, s.Topics, config)
	if err != nil {
		return errors.Wrap(err, "getting new consumer")
	}

	go func() {
		for err := range s.consumer.Errors() {
			s.log.Error().Err(err).Msg("consumer error")
		}
	}()
	go func() {
		for ntf := range s.consumer.Notifications() {
			s.log.Info().Interface("claims", ntf.Current).Msg("rebalanced")
		}
	}()
	return nil
}

// Record returns the next record, marking its offset as processed. It
// returns io.EOF after MaxMsgs messages or when the consumer shuts
// down.
func (s *Source) Record() (solrbulk.RawRecord, error) {
	if s.MaxMsgs > 0 {
		s.numMsgs++
		if s.numMsgs > s.MaxMsgs {
			return solrbulk.RawRecord{}, io.EOF
		}
	}
	msg, ok := <-s.consumer.Messages()
	if !ok {
		return solrbulk.RawRecord{}, io.EOF
	}
	s.consumer.MarkOffset(msg, "")
	return solrbulk.RawRecord{
		Location: fmt.Sprintf("%s/%d/%d", msg.Topic, msg.Partition, msg.Offset),
		Data:     msg.Value,
	}, nil
}

// Close shuts down the consumer, which also unblocks Record.
func (s *Source) Close() error {
	return errors.Wrap(s.consumer.Close(), "closing kafka consumer")
}
