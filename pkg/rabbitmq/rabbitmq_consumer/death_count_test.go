package rabbitmq_consumer

import (
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
)

func TestDeathCount(t *testing.T) {
	tests := []struct {
		name    string
		headers amqp.Table
		want    int64
	}{
		{"no headers", nil, 0},
		{"malformed header", amqp.Table{"x-death": "oops"}, 0},
		{
			name: "counts only the main queue",
			headers: amqp.Table{"x-death": []interface{}{
				amqp.Table{"queue": "scan_tasks_wait", "count": int64(5)},
				amqp.Table{"queue": "scan_tasks", "count": int64(2)},
			}},
			want: 2,
		},
		{
			name: "other queue only",
			headers: amqp.Table{"x-death": []interface{}{
				amqp.Table{"queue": "scan_tasks_wait", "count": int64(3)},
			}},
			want: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DeathCount(amqp.Delivery{Headers: tt.headers}, "scan_tasks")
			if got != tt.want {
				t.Errorf("DeathCount() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestConsumerConfigValidate(t *testing.T) {
	base := ConsumerConfig{QueueName: "scan_tasks", DeclareQueue: true}
	base.URL = "amqp://localhost/"

	if err := base.validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	withRetry := base
	withRetry.EnableRetryMechanism = true
	if err := withRetry.validate(); err == nil {
		t.Error("retry config without exchanges should be rejected")
	}

	noQueue := ConsumerConfig{}
	noQueue.URL = "amqp://localhost/"
	if err := noQueue.validate(); err == nil {
		t.Error("config without queue name should be rejected")
	}
}
