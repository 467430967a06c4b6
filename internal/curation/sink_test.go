package curation_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"github.com/DeafMist/competitor-newsletter/internal/curation"
	"github.com/DeafMist/competitor-newsletter/internal/models"
)

type stubWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *stubWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func TestKafkaSinkPublishesItem(t *testing.T) {
	w := &stubWriter{}
	sink := curation.NewKafkaSink(w)

	it := item("latest-news-Acme", "body")
	require.NoError(t, sink.Save(context.Background(), it))
	require.Len(t, w.msgs, 1)
	require.Equal(t, "latest-news-Acme", string(w.msgs[0].Key))

	var decoded models.CurationItem
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &decoded))
	require.Equal(t, it, decoded)
}

func TestKafkaSinkWrapsError(t *testing.T) {
	errBroker := errors.New("broker down")
	sink := curation.NewKafkaSink(&stubWriter{err: errBroker})
	require.ErrorIs(t, sink.Save(context.Background(), item("a", "x")), errBroker)
}

type recordingSaver struct {
	mu  sync.Mutex
	ids []string
	err error
}

func (r *recordingSaver) SaveItem(_ context.Context, it models.CurationItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, it.ID)
	return r.err
}

func TestDispatcherIsFireAndForget(t *testing.T) {
	ok := &recordingSaver{}
	failing := &recordingSaver{err: errors.New("remote down")}
	d := curation.NewDispatcher(nil, time.Second, curation.HTTPSink{Client: ok}, curation.HTTPSink{Client: failing})

	d.Dispatch([]models.CurationItem{item("a", "1"), item("b", "2")})
	d.Wait()

	require.ElementsMatch(t, []string{"a", "b"}, ok.ids)
	require.ElementsMatch(t, []string{"a", "b"}, failing.ids)
}

func TestNilDispatcherIsNoop(t *testing.T) {
	var d *curation.Dispatcher
	d.Dispatch([]models.CurationItem{item("a", "1")})
	d.Wait()
}
