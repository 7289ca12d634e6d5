package evlog_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openufs/ufshost/evlog"
	"github.com/openufs/ufshost/host"
)

func setupRecorder(t *testing.T) *evlog.Recorder {
	path := filepath.Join(t.TempDir(), "events")
	rec := evlog.NewRecorder(path)
	t.Cleanup(rec.Close)
	return rec
}

func TestRecorderInsertAndFlush(t *testing.T) {
	rec := setupRecorder(t)

	rec.Insert(evlog.Row{
		WhenNs:     time.Now().UnixNano(),
		Controller: "ctrl",
		Kind:       "dispatch",
		Tag:        3,
		Detail:     "abc",
	})
	rec.Insert(evlog.Row{Controller: "ctrl", Kind: "complete", Tag: 3})

	rec.Flush()

	assert.Equal(t, 2, rec.RowCount())
}

func TestRecorderFlushIsIdempotent(t *testing.T) {
	rec := setupRecorder(t)

	rec.Insert(evlog.Row{Controller: "ctrl", Kind: "gate"})
	rec.Flush()
	rec.Flush()

	assert.Equal(t, 1, rec.RowCount())
}

func TestSinkWritesEvents(t *testing.T) {
	rec := setupRecorder(t)
	sink := evlog.NewSink("ctrl0", rec)

	for i := 0; i < 10; i++ {
		sink.Record(host.Event{
			When: time.Now(), Kind: host.EventDispatch, Tag: i,
		})
	}

	sink.Close()
	rec.Flush()

	require.Equal(t, 10, rec.RowCount())
	assert.Equal(t, int64(0), sink.Dropped())
}
