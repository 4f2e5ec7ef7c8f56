package stream

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/docstream/errors"
	"github.com/c360/docstream/values"
)

func snapshotWithTS(ts int64) values.Value {
	return values.NewObject(
		values.Entry("ref", values.RefV{ID: "42"}),
		values.Entry("ts", values.LongV(ts)),
		values.Entry("data", values.NewObject(values.Entry("name", values.StringV("widget")))),
	)
}

func staticLoader(snapshot values.Value) SnapshotLoader {
	return func(ctx context.Context, ref values.Value) (values.Value, error) {
		return snapshot, nil
	}
}

func newSnapshotFixture(t *testing.T, loader SnapshotLoader, chunks ...string) (*fakeSource, *Subscription) {
	t.Helper()
	src := newFakeSource(chunks...)
	chunkStage := NewChunkStage(src, nil, nil, nil)
	stage := NewSnapshotStage(chunkStage, values.RefV{ID: "42"}, loader, nil, nil)

	sub, err := stage.Subscribe(context.Background())
	require.NoError(t, err)
	return src, sub
}

func TestSnapshotStage_BootstrapAndStaleFilter(t *testing.T) {
	src, sub := newSnapshotFixture(t, staticLoader(snapshotWithTS(100)),
		`{"type":"start","event":{"@ref":{"id":"42"}}}`,
		`{"type":"version","txn":50}`,
		`{"type":"version","txn":100}`,
		`{"type":"version","txn":150}`,
		`{"type":"version","txn":200}`,
	)
	defer sub.Close()

	// First: the start event, passed through.
	v := receiveEvent(t, sub)
	typ, err := EventType(v)
	require.NoError(t, err)
	assert.Equal(t, TypeStart, typ)

	// Second: the synthesized snapshot event at the watermark.
	v = receiveEvent(t, sub)
	typ, err = EventType(v)
	require.NoError(t, err)
	assert.Equal(t, TypeSnapshot, typ)
	txn, ok := EventTxn(v)
	require.True(t, ok)
	assert.Equal(t, int64(100), txn)
	obj, isObj := v.(values.ObjectV)
	require.True(t, isObj)
	body, present := obj.Get("event")
	require.True(t, present)
	assert.True(t, values.Equal(snapshotWithTS(100), body))

	// Events at txn 50 and 100 are swallowed; only 150 and 200 surface.
	for _, want := range []int64{150, 200} {
		v = receiveEvent(t, sub)
		txn, ok = EventTxn(v)
		require.True(t, ok)
		assert.Equal(t, want, txn)
	}

	// Demand was still issued for the dropped events: every chunk got
	// pulled even though two never reached the consumer.
	assert.GreaterOrEqual(t, src.pulls.Load(), int64(5))
}

func TestSnapshotStage_NonStartFirstEventIsFatal(t *testing.T) {
	_, sub := newSnapshotFixture(t, staticLoader(snapshotWithTS(100)),
		`{"type":"version","txn":50}`,
	)

	err := receiveError(t, sub)
	assert.ErrorIs(t, err, errors.ErrProtocolSequence)
	assert.True(t, errors.IsFatal(err))

	<-sub.Done()
	select {
	case v := <-sub.Events():
		t.Fatalf("event delivered after protocol violation: %v", v)
	default:
	}
}

func TestSnapshotStage_LoaderFailureIsFatal(t *testing.T) {
	loader := func(ctx context.Context, ref values.Value) (values.Value, error) {
		return nil, fmt.Errorf("document missing")
	}
	src, sub := newSnapshotFixture(t, loader,
		`{"type":"start","event":{"@ref":{"id":"42"}}}`,
	)

	err := receiveError(t, sub)
	assert.ErrorIs(t, err, errors.ErrSnapshotLoad)

	<-sub.Done()
	select {
	case <-src.cancelled:
	case <-time.After(2 * time.Second):
		t.Fatal("upstream was not cancelled")
	}
}

func TestSnapshotStage_SnapshotWithoutTSIsFatal(t *testing.T) {
	noTS := values.NewObject(values.Entry("data", values.StringV("x")))
	_, sub := newSnapshotFixture(t, staticLoader(noTS),
		`{"type":"start","event":{"@ref":{"id":"42"}}}`,
	)

	err := receiveError(t, sub)
	assert.ErrorIs(t, err, errors.ErrSnapshotLoad)
}

func TestSnapshotStage_LoaderReceivesStartEventRef(t *testing.T) {
	var gotRef values.Value
	loader := func(ctx context.Context, ref values.Value) (values.Value, error) {
		gotRef = ref
		return snapshotWithTS(10), nil
	}
	_, sub := newSnapshotFixture(t, loader,
		`{"type":"start","event":{"@ref":{"id":"other-doc"}}}`,
	)
	defer sub.Close()

	receiveEvent(t, sub) // start
	receiveEvent(t, sub) // snapshot

	ref, ok := gotRef.(values.RefV)
	require.True(t, ok)
	assert.Equal(t, "other-doc", ref.ID)
}

func TestSnapshotStage_NoUpstreamPullDuringLoad(t *testing.T) {
	loading := make(chan int64, 1)
	release := make(chan struct{})
	var src *fakeSource
	loader := func(ctx context.Context, ref values.Value) (values.Value, error) {
		loading <- src.pulls.Load()
		<-release
		return snapshotWithTS(10), nil
	}

	src = newFakeSource(
		`{"type":"start"}`,
		`{"type":"version","txn":20}`,
	)
	chunkStage := NewChunkStage(src, nil, nil, nil)
	stage := NewSnapshotStage(chunkStage, values.RefV{ID: "42"}, loader, nil, nil)
	sub, err := stage.Subscribe(context.Background())
	require.NoError(t, err)
	defer sub.Close()

	pullsAtLoad := <-loading
	// The start chunk was pulled; with the loader suspended the chunk
	// stage may have at most the next chunk requested, never delivered.
	assert.LessOrEqual(t, pullsAtLoad, int64(2))
	close(release)

	receiveEvent(t, sub) // start
	receiveEvent(t, sub) // snapshot
	v := receiveEvent(t, sub)
	txn, ok := EventTxn(v)
	require.True(t, ok)
	assert.Equal(t, int64(20), txn)
}

func TestSnapshotStage_SecondSubscribeFails(t *testing.T) {
	src := newFakeSource()
	chunkStage := NewChunkStage(src, nil, nil, nil)
	stage := NewSnapshotStage(chunkStage, values.RefV{ID: "42"}, staticLoader(snapshotWithTS(1)), nil, nil)

	sub, err := stage.Subscribe(context.Background())
	require.NoError(t, err)
	defer sub.Close()

	_, err = stage.Subscribe(context.Background())
	assert.ErrorIs(t, err, errors.ErrAlreadySubscribed)
}

func TestSnapshotStage_UpstreamFatalPropagatesOnce(t *testing.T) {
	_, sub := newSnapshotFixture(t, staticLoader(snapshotWithTS(100)),
		`{"type":"start"}`,
		`{"type":"error","event":{"code":"permission denied","description":"revoked"}}`,
	)

	receiveEvent(t, sub) // start
	receiveEvent(t, sub) // snapshot

	err := receiveError(t, sub)
	assert.ErrorIs(t, err, errors.ErrPermissionDenied)

	<-sub.Done()
	select {
	case err := <-sub.Errors():
		t.Fatalf("second error delivered: %v", err)
	default:
	}
}
