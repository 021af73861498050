package broker

import (
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
)

func TestRetries_DefaultsToZeroWhenAbsent(t *testing.T) {
	d := amqp.Delivery{Headers: amqp.Table{}}
	assert.Equal(t, 0, Retries(d))
}

func TestRetries_ReadsInt32Header(t *testing.T) {
	d := amqp.Delivery{Headers: amqp.Table{RetriesHeader: int32(2)}}
	assert.Equal(t, 2, Retries(d))
}

func TestRetries_ReadsInt64Header(t *testing.T) {
	d := amqp.Delivery{Headers: amqp.Table{RetriesHeader: int64(3)}}
	assert.Equal(t, 3, Retries(d))
}

func TestRetries_UnknownTypeDefaultsToZero(t *testing.T) {
	d := amqp.Delivery{Headers: amqp.Table{RetriesHeader: "not-a-number"}}
	assert.Equal(t, 0, Retries(d))
}
