package kcidb

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/kcibridge/internal/testutil"
)

func TestSubject(t *testing.T) {
	assert.Equal(t, "kernelci-prod.playground_kcidb_new", Subject("kernelci-prod", "playground_kcidb_new"))
}

func TestWriterSinkWritesJSONLines(t *testing.T) {
	var buf bytes.Buffer
	sink := NewWriterSink(&buf)
	rev := validRevision(t)

	require.NoError(t, sink.Submit(context.Background(), rev))
	require.NoError(t, sink.Submit(context.Background(), rev))
	assert.Equal(t, 2, sink.Count())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var got Revision
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &got))
	assert.Equal(t, rev.CheckoutID(), got.CheckoutID())
	assert.Equal(t, rev.Checkouts[0].StartTime, got.Checkouts[0].StartTime)
}

func TestNATSSinkWithoutConnection(t *testing.T) {
	sink := NewNATSSink(nil, "p", "t")
	err := sink.Submit(context.Background(), validRevision(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kernelci:n1")
}

func TestNATSSinkPublishesAndFlushes(t *testing.T) {
	url := testutil.RunNATSServer(t)
	consumer := testutil.ConnectNATS(t, url)
	sub, err := consumer.SubscribeSync("kernelci-prod.playground_kcidb_new")
	require.NoError(t, err)
	require.NoError(t, consumer.Flush())

	sink := NewNATSSink(testutil.ConnectNATS(t, url), "kernelci-prod", "playground_kcidb_new")
	rev := validRevision(t)
	require.NoError(t, sink.Submit(context.Background(), rev))

	// The bridge flushes with a context that carries no deadline.
	require.NoError(t, sink.Flush(context.WithoutCancel(context.Background())))

	msg, err := sub.NextMsg(time.Second)
	require.NoError(t, err)
	var got Revision
	require.NoError(t, json.Unmarshal(msg.Data, &got))
	assert.Equal(t, rev.CheckoutID(), got.CheckoutID())
	assert.Equal(t, "kernelci-pipeline", got.Checkouts[0].Misc.SubmittedBy)
}

func TestNATSSinkFlushHonoursCallerDeadline(t *testing.T) {
	url := testutil.RunNATSServer(t)
	sink := NewNATSSink(testutil.ConnectNATS(t, url), "p", "t", WithFlushTimeout(time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, sink.Submit(ctx, validRevision(t)))
	require.NoError(t, sink.Flush(ctx))
}

func TestNATSSinkFlushAfterClose(t *testing.T) {
	url := testutil.RunNATSServer(t)
	nc := testutil.ConnectNATS(t, url)
	sink := NewNATSSink(nc, "p", "t")
	nc.Close()

	err := sink.Flush(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "p.t")

	err = sink.Submit(context.Background(), validRevision(t))
	require.Error(t, err)
}

func TestWithFlushTimeoutIgnoresNonPositive(t *testing.T) {
	sink := NewNATSSink(nil, "p", "t", WithFlushTimeout(0))
	assert.Equal(t, DefaultFlushTimeout, sink.flushTimeout)

	sink = NewNATSSink(nil, "p", "t", WithFlushTimeout(time.Minute))
	assert.Equal(t, time.Minute, sink.flushTimeout)
}
