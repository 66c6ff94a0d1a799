package events

// Topic constants for payment audit events.
const (
	TopicPaymentPaid    = "payment.paid"
	TopicPaymentFailed  = "payment.failed"
	TopicPaymentAnomaly = "payment.anomaly"
)

// DefaultTopics returns the topics the payment adapter emits.
func DefaultTopics() []string {
	return []string{
		TopicPaymentPaid,
		TopicPaymentFailed,
		TopicPaymentAnomaly,
	}
}

// IsKnownTopic reports whether topic is one of DefaultTopics.
func IsKnownTopic(topic string) bool {
	for _, t := range DefaultTopics() {
		if t == topic {
			return true
		}
	}
	return false
}
