package producers

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
)

const (
	partitionReadAttempts = 5
	partitionReadDelay    = 2 * time.Second
)

// EnsureTopics dials the first broker and creates any missing topic
func EnsureTopics(brokers string, numPartitions, replicationFactor int, log *slog.Logger, topics ...string) error {
	conn, err := kafka.Dial("tcp", firstBroker(brokers))
	if err != nil {
		return fmt.Errorf("failed to dial kafka: %w", err)
	}
	defer conn.Close()

	for _, topic := range topics {
		if err := createKafkaTopicIfNotExists(conn, topic, numPartitions, replicationFactor, log, partitionReadDelay); err != nil {
			return err
		}
	}
	return nil
}

// createKafkaTopicIfNotExists creates Kafka topic if not found, retries on partition read errors
func createKafkaTopicIfNotExists(admin TopicAdmin, topicName string, numPartitions int, replicationFactor int, log *slog.Logger, retryDelay time.Duration) error {
	var partitions []kafka.Partition
	var err error

	log.Info("Checking if Kafka topic exists", "topic", topicName)
	for i := 0; i < partitionReadAttempts; i++ {
		partitions, err = admin.ReadPartitions(topicName)
		if err == nil {
			break
		}
		log.Warn("Failed to read partitions, retrying...", "topic", topicName, "attempt", i+1, "error", err)
		time.Sleep(retryDelay)
	}

	if len(partitions) > 0 {
		log.Info("Kafka topic already exists", "topic", topicName, "partitions", len(partitions))
		return nil
	}

	topicConfig := kafka.TopicConfig{
		Topic:             topicName,
		NumPartitions:     numPartitions,
		ReplicationFactor: replicationFactor,
	}
	if topicConfig.NumPartitions <= 0 {
		topicConfig.NumPartitions = 1
	}
	if topicConfig.ReplicationFactor <= 0 {
		topicConfig.ReplicationFactor = 1
	}

	log.Info("Kafka topic does not exist or is not accessible, attempting to create it",
		"topic", topicName,
		"partitions", topicConfig.NumPartitions,
		"last_read_error", err)
	if creationErr := admin.CreateTopics(topicConfig); creationErr != nil {
		return fmt.Errorf("failed to create kafka topic %s: %w", topicName, creationErr)
	}
	log.Info("Successfully created Kafka topic", "topic", topicName)
	return nil
}

func firstBroker(brokers string) string {
	return strings.TrimSpace(strings.Split(brokers, ",")[0])
}

// kafkaHeaders converts a header map into a stable, key-sorted header list
func kafkaHeaders(headers map[string]string) []kafka.Header {
	if len(headers) == 0 {
		return nil
	}
	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]kafka.Header, 0, len(keys))
	for _, k := range keys {
		out = append(out, kafka.Header{Key: k, Value: []byte(headers[k])})
	}
	return out
}
