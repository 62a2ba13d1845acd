package watcher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collectBatch(t *testing.T, d *Debouncer) []FileEvent {
	t.Helper()
	select {
	case batch := <-d.Output():
		return batch
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for debounced batch")
		return nil
	}
}

func TestDebouncer_CoalescesBurst(t *testing.T) {
	d := NewDebouncer(50 * time.Millisecond)
	defer d.Stop()

	for i := 0; i < 5; i++ {
		d.Add(FileEvent{Path: "corpus/particles.yaml", Operation: OpModify})
	}

	batch := collectBatch(t, d)
	require.Len(t, batch, 1)
	assert.Equal(t, OpModify, batch[0].Operation)
}

func TestDebouncer_CreateThenModifyStaysCreate(t *testing.T) {
	d := NewDebouncer(50 * time.Millisecond)
	defer d.Stop()

	d.Add(FileEvent{Path: "a.yaml", Operation: OpCreate})
	d.Add(FileEvent{Path: "a.yaml", Operation: OpModify})

	batch := collectBatch(t, d)
	require.Len(t, batch, 1)
	assert.Equal(t, OpCreate, batch[0].Operation)
}

func TestDebouncer_CreateThenDeleteCancels(t *testing.T) {
	d := NewDebouncer(50 * time.Millisecond)
	defer d.Stop()

	d.Add(FileEvent{Path: "a.yaml", Operation: OpCreate})
	d.Add(FileEvent{Path: "a.yaml", Operation: OpDelete})
	d.Add(FileEvent{Path: "b.yaml", Operation: OpModify})

	batch := collectBatch(t, d)
	require.Len(t, batch, 1)
	assert.Equal(t, "b.yaml", batch[0].Path)
}

func TestDebouncer_DeleteThenCreateBecomesModify(t *testing.T) {
	d := NewDebouncer(50 * time.Millisecond)
	defer d.Stop()

	d.Add(FileEvent{Path: "a.yaml", Operation: OpDelete})
	d.Add(FileEvent{Path: "a.yaml", Operation: OpCreate})

	batch := collectBatch(t, d)
	require.Len(t, batch, 1)
	assert.Equal(t, OpModify, batch[0].Operation)
}

func TestDebouncer_SeparatePathsKeptApart(t *testing.T) {
	d := NewDebouncer(50 * time.Millisecond)
	defer d.Stop()

	d.Add(FileEvent{Path: "a.yaml", Operation: OpModify})
	d.Add(FileEvent{Path: "b.yaml", Operation: OpModify})

	batch := collectBatch(t, d)
	assert.Len(t, batch, 2)
}

func TestDebouncer_StopClosesOutput(t *testing.T) {
	d := NewDebouncer(50 * time.Millisecond)
	d.Stop()
	d.Stop() // idempotent

	_, open := <-d.Output()
	assert.False(t, open)

	// Adds after stop are dropped without panic.
	d.Add(FileEvent{Path: "a.yaml", Operation: OpModify})
}

func TestIsCorpusFile(t *testing.T) {
	assert.True(t, isCorpusFile("corpus/particles.yaml"))
	assert.True(t, isCorpusFile("corpus/particles.yml"))
	assert.False(t, isCorpusFile("corpus/.hidden.yaml"))
	assert.False(t, isCorpusFile("corpus/notes.md"))
	assert.False(t, isCorpusFile("corpus/particles.yaml.bak"))
}
