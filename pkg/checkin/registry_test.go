package checkin

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordOverwrites(t *testing.T) {
	r := NewRegistry()

	r.Record("mason@avalon", "starting", "mason", "avalon", "")
	r.Record("mason@avalon", "working DBC-99", "mason", "avalon", "DBC-99")

	e, ok := r.Get("mason@avalon")
	require.True(t, ok)
	assert.Equal(t, "working DBC-99", e.Status)
	assert.Equal(t, "DBC-99", e.Ticket)
	assert.Equal(t, 1, r.Len())
}

func TestActiveEmptyRegistry(t *testing.T) {
	r := NewRegistry()
	assert.Empty(t, r.Active(""))
}

func TestActiveFiltersByTeamAndAge(t *testing.T) {
	r := NewRegistry()
	base := time.Now().UTC()
	r.now = func() time.Time { return base }

	r.Record("mason@avalon", "working", "mason", "avalon", "")
	r.Record("fresco@camelot", "designing", "fresco", "camelot", "")

	// Age out mason only.
	r.now = func() time.Time { return base.Add(UnresponsiveAfter) }
	r.Record("steve@avalon", "coordinating", "steve", "avalon", "")

	active := r.Active("")
	assert.Len(t, active, 1)
	assert.Contains(t, active, "steve@avalon")

	r.now = func() time.Time { return base }
	active = r.Active("avalon")
	assert.Len(t, active, 1)
	assert.Contains(t, active, "mason@avalon")
}

func TestStalenessThresholds(t *testing.T) {
	r := NewRegistry()
	base := time.Now().UTC()
	r.now = func() time.Time { return base }
	r.Record("mason@avalon", "working", "mason", "avalon", "")

	// Just under 5 minutes: fresh.
	r.now = func() time.Time { return base.Add(FreshWindow - time.Second) }
	assert.Equal(t, "", r.Staleness("mason@avalon"))

	// Exactly 5 minutes: stale.
	r.now = func() time.Time { return base.Add(FreshWindow) }
	assert.Equal(t, TagStale, r.Staleness("mason@avalon"))

	// Just under 10 minutes: still stale.
	r.now = func() time.Time { return base.Add(UnresponsiveAfter - time.Second) }
	assert.Equal(t, TagStale, r.Staleness("mason@avalon"))

	// 10 minutes and beyond: unresponsive.
	r.now = func() time.Time { return base.Add(UnresponsiveAfter) }
	assert.Equal(t, TagUnresponsive, r.Staleness("mason@avalon"))
}

func TestStalenessUnknownAddress(t *testing.T) {
	r := NewRegistry()
	assert.Equal(t, "", r.Staleness("nobody@nowhere"))
}

func TestEvictDropsOldEntries(t *testing.T) {
	r := NewRegistry()
	base := time.Now().UTC()
	r.now = func() time.Time { return base }

	r.Record("mason@avalon", "working", "mason", "avalon", "")
	r.now = func() time.Time { return base.Add(30 * time.Minute) }
	r.Record("steve@avalon", "coordinating", "steve", "avalon", "")

	r.now = func() time.Time { return base.Add(time.Hour) }
	assert.Equal(t, 1, r.Evict(45*time.Minute))
	assert.Equal(t, 1, r.Len())

	_, ok := r.Get("mason@avalon")
	assert.False(t, ok)
	_, ok = r.Get("steve@avalon")
	assert.True(t, ok)
}
