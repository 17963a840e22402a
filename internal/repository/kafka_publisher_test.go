package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FKSEngine/internal/domain/models"
)

type sent struct {
	topic string
	key   string
	value interface{}
}

type fakeProducer struct{ sent []sent }

func (p *fakeProducer) Publish(_ context.Context, topic string, key []byte, value interface{}) error {
	p.sent = append(p.sent, sent{topic, string(key), value})
	return nil
}

func (p *fakeProducer) Close() error { return nil }

func TestKafkaPublisherKeysBySymbol(t *testing.T) {
	fp := &fakeProducer{}
	pub := NewKafkaPublisher(fp, "fks.composites")
	ctx := context.Background()

	require.NoError(t, pub.PublishComposite(ctx, &models.CompositeSignal{ID: "a", Symbol: "GC"}))
	require.NoError(t, pub.PublishSetup(ctx, &models.TradingSetup{Name: "breakout", Symbol: "NQ"}))
	require.NoError(t, pub.PublishComposite(ctx, nil))

	require.Len(t, fp.sent, 2)
	assert.Equal(t, "GC", fp.sent[0].key)
	assert.Equal(t, "composite", fp.sent[0].value.(envelope).Type)
	assert.Equal(t, "NQ", fp.sent[1].key)
	assert.Equal(t, "setup", fp.sent[1].value.(envelope).Type)
	assert.Equal(t, "fks.composites", fp.sent[1].topic)
}
