package bus

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"

	"github.com/herd-sh/herd/pkg/tier"
)

func openTestBus(t *testing.T) *Bus {
	t.Helper()
	b, err := Open(filepath.Join(t.TempDir(), "messages.db"), tier.DefaultRoster())
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestReadEmptyBus(t *testing.T) {
	b := openTestBus(t)
	assert.Empty(t, b.Read("mason", "", ""))
}

func TestDirectSendAndDrain(t *testing.T) {
	b := openTestBus(t)

	_, err := b.Send("steve@avalon", "mason", "build DBC-99", "directive", "normal")
	require.NoError(t, err)

	msgs := b.Read("mason", "", "")
	require.Len(t, msgs, 1)
	assert.Equal(t, "build DBC-99", msgs[0].Body)
	assert.Equal(t, "steve@avalon", msgs[0].From)

	// Drained: a second read returns nothing.
	assert.Empty(t, b.Read("mason", "", ""))
	assert.Equal(t, 0, b.Depth())
}

func TestFIFOOrdering(t *testing.T) {
	b := openTestBus(t)

	for i := 0; i < 5; i++ {
		_, err := b.Send("steve", "mason", fmt.Sprintf("task-%d", i), "directive", "normal")
		require.NoError(t, err)
	}

	msgs := b.Read("mason", "", "")
	require.Len(t, msgs, 5)
	for i, m := range msgs {
		assert.Equal(t, fmt.Sprintf("task-%d", i), m.Body)
	}
}

func TestTeamScopedDirect(t *testing.T) {
	b := openTestBus(t)

	_, err := b.Send("steve", "mason@avalon", "scoped", "directive", "normal")
	require.NoError(t, err)

	// Wrong team does not match.
	assert.Empty(t, b.Read("mason", "", "camelot"))
	// No team does not match a scoped address.
	assert.Empty(t, b.Read("mason", "", ""))
	// Right team drains it.
	require.Len(t, b.Read("mason", "", "avalon"), 1)
}

func TestInstanceScopedDirect(t *testing.T) {
	b := openTestBus(t)

	_, err := b.Send("steve", "mason.i1@avalon", "for i1", "directive", "normal")
	require.NoError(t, err)

	assert.Empty(t, b.Read("mason", "i2", "avalon"))
	require.Len(t, b.Read("mason", "i1", "avalon"), 1)
}

func TestUnscopedDirectIgnoresCallerTeam(t *testing.T) {
	b := openTestBus(t)

	_, err := b.Send("steve", "mason", "any team", "directive", "normal")
	require.NoError(t, err)

	// A bare-name address matches whatever team the caller is on.
	require.Len(t, b.Read("mason", "", "avalon"), 1)
}

func TestAnyoneFirstComeExcludingMechanicals(t *testing.T) {
	b := openTestBus(t)

	_, err := b.Send("steve", "@anyone", "take this", "directive", "normal")
	require.NoError(t, err)

	// Mechanical agents never match @anyone, even for directives.
	assert.Empty(t, b.Read("rook", "", ""))

	// First non-mechanical reader consumes it.
	require.Len(t, b.Read("mason", "", ""), 1)

	// Gone for everybody after that.
	assert.Empty(t, b.Read("fresco", "", ""))
}

func TestAnyoneTeamScopedStaysUntilMatch(t *testing.T) {
	b := openTestBus(t)

	_, err := b.Send("steve", "@anyone@avalon", "team work", "directive", "normal")
	require.NoError(t, err)

	assert.Empty(t, b.Read("mason", "", "camelot"))
	assert.Equal(t, 1, b.Depth())

	require.Len(t, b.Read("mason", "", "avalon"), 1)
	assert.Equal(t, 0, b.Depth())
}

func TestEveryoneOncePerReaderKey(t *testing.T) {
	b := openTestBus(t)

	_, err := b.Send("steve.s1@avalon", "@everyone", "standup now", "inform", "normal")
	require.NoError(t, err)

	require.Len(t, b.Read("mason", "inst-m1", ""), 1)
	// Same reader key: nothing the second time.
	assert.Empty(t, b.Read("mason", "inst-m1", ""))
	// Different reader still gets it.
	require.Len(t, b.Read("fresco", "inst-f1", ""), 1)

	// Broadcast stays on the bus until it expires.
	assert.Equal(t, 1, b.Depth())
}

func TestEveryoneSenderExcluded(t *testing.T) {
	b := openTestBus(t)

	_, err := b.Send("steve.s1@avalon", "@everyone", "announcement", "inform", "normal")
	require.NoError(t, err)

	// The sender reading back gets nothing, and their key joins read_by.
	assert.Empty(t, b.Read("steve", "s1", "avalon"))
	b.mu.Lock()
	require.Len(t, b.hot, 1)
	assert.True(t, b.hot[0].readBy("s1"))
	b.mu.Unlock()

	// Another incarnation of the same code is a different reader.
	require.Len(t, b.Read("steve", "s2", "avalon"), 1)
}

func TestLeaderVisibilityConsumesTeamScoped(t *testing.T) {
	b := openTestBus(t)

	_, err := b.Send("fresco@avalon", "mason@avalon", "peer note", "inform", "normal")
	require.NoError(t, err)

	// A leader on another team sees nothing.
	assert.Empty(t, b.Read("steve", "", "camelot"))

	// A leader on the same team consumes traffic for other codes.
	msgs := b.Read("steve", "", "avalon")
	require.Len(t, msgs, 1)
	assert.Equal(t, "peer note", msgs[0].Body)

	// First read won: the addressee no longer receives it.
	assert.Empty(t, b.Read("mason", "", "avalon"))
}

func TestLeaderDoesNotSeeUnscopedTraffic(t *testing.T) {
	b := openTestBus(t)

	_, err := b.Send("steve", "mason", "no scope", "directive", "normal")
	require.NoError(t, err)

	// Leader visibility only applies to team-scoped addresses.
	assert.Empty(t, b.Read("leonardo", "", "avalon"))
	require.Len(t, b.Read("mason", "", ""), 1)
}

func TestExpiryPrunesBothTiers(t *testing.T) {
	b := openTestBus(t)

	_, err := b.Send("steve", "mason", "old news", "directive", "normal")
	require.NoError(t, err)

	// Move the clock past the TTL.
	b.now = func() time.Time { return time.Now().Add(TTL + time.Minute) }

	assert.Empty(t, b.Read("mason", "", ""))
	assert.Equal(t, 0, b.Depth())

	// Mirror no longer holds the key either.
	count := 0
	err = b.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(messagesBucket).ForEach(func(k, v []byte) error {
			count++
			return nil
		})
	})
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestRehydrateAcrossRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "messages.db")
	roster := tier.DefaultRoster()

	b, err := Open(path, roster)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err := b.Send("steve", "mason", fmt.Sprintf("m-%d", i), "directive", "normal")
		require.NoError(t, err)
	}
	require.NoError(t, b.Close())

	b2, err := Open(path, roster)
	require.NoError(t, err)
	defer func() { _ = b2.Close() }()

	msgs := b2.Read("mason", "", "")
	require.Len(t, msgs, 3)
	for i, m := range msgs {
		assert.Equal(t, fmt.Sprintf("m-%d", i), m.Body)
	}
}

func TestRehydrateDropsCorruptEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "messages.db")
	roster := tier.DefaultRoster()

	b, err := Open(path, roster)
	require.NoError(t, err)
	_, err = b.Send("steve", "mason", "good", "directive", "normal")
	require.NoError(t, err)
	err = b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(messagesBucket).Put([]byte("junk"), []byte("{not json"))
	})
	require.NoError(t, err)
	require.NoError(t, b.Close())

	b2, err := Open(path, roster)
	require.NoError(t, err)
	defer func() { _ = b2.Close() }()

	msgs := b2.Read("mason", "", "")
	require.Len(t, msgs, 1)
	assert.Equal(t, "good", msgs[0].Body)
}

func TestSendDefaults(t *testing.T) {
	b := openTestBus(t)

	m, err := b.Send("steve", "mason", "defaults", "", "")
	require.NoError(t, err)
	assert.Equal(t, tier.TypeDirective, m.Type)
	assert.Equal(t, PriorityNormal, m.Priority)
	assert.NotEmpty(t, m.ID)
	assert.False(t, m.SentAt.IsZero())
}
