package kafka

// Topic definitions for Kafka event streaming
const (
	// One message per evaluated symbol per cycle
	TopicDecisions = "gaps.decisions"

	// Classifier state save/load results
	TopicPersistence = "classifier.persistence"
)
