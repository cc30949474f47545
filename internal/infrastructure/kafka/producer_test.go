package kafka

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogPublisherWritesEvent(t *testing.T) {
	var buf bytes.Buffer
	p := NewLogPublisher(slog.New(slog.NewJSONHandler(&buf, nil)))

	require.NoError(t, p.Publish(context.Background(), "relation.matched", []byte("1:2"), []byte(`{"aimId":1}`)))
	require.NoError(t, p.Close())

	out := buf.String()
	assert.Contains(t, out, `"topic":"relation.matched"`)
	assert.Contains(t, out, `"key":"1:2"`)
}

func TestNewProducerConfiguresWriter(t *testing.T) {
	p := NewProducer([]string{"localhost:9092"}, "dev.")
	defer p.Close()

	assert.Equal(t, "dev.", p.prefix)
	assert.True(t, p.w.AllowAutoTopicCreation)
}
