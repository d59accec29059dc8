package notify

import (
	"context"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/kadmin/core"
)

func TestMessage(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	msg, err := message("movie", core.OperationCreate, []byte(`{"id":1,"name":"Alien"}`), now)
	require.NoError(t, err)

	assert.Equal(t, "movie", string(msg.Key))
	assert.Equal(t, now, msg.Time)
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, "create", string(msg.Headers[0].Value))

	var n Notification
	require.NoError(t, json.Unmarshal(msg.Value, &n))
	assert.Equal(t, "movie", n.Table)
	assert.Equal(t, core.OperationCreate, n.Operation)
	assert.JSONEq(t, `{"id":1,"name":"Alien"}`, string(n.Payload))
	assert.True(t, now.Equal(n.Timestamp))
}

func TestNewKafka(t *testing.T) {
	k := NewKafka(&KafkaBuilder{Brokers: []string{"localhost:9092, localhost:9093", ""}})
	assert.Equal(t, DefaultTopic, k.writer.Topic)
	assert.Contains(t, k.writer.Addr.String(), "localhost:9092")
	assert.Contains(t, k.writer.Addr.String(), "localhost:9093")
}

func TestFunc(t *testing.T) {
	var got []string
	var notifier core.Notifier = Func(func(ctx context.Context, table string, operation core.Operation, payload []byte) error {
		got = append(got, table+":"+string(operation))
		return nil
	})
	require.NoError(t, notifier.Notify(context.Background(), "movie", core.OperationDelete, nil))
	assert.Equal(t, []string{"movie:delete"}, got)
}
