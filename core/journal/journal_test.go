package journal

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/pebble/vfs"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trufnetwork/launchpad-go/core/types"
	"github.com/trufnetwork/launchpad-go/core/util"
	"go.uber.org/zap"
)

var (
	sale    = util.LabelAddress("sale")
	factory = util.LabelAddress("factory")
	buyer   = util.LabelAddress("buyer")
)

func openMem(t *testing.T, fs vfs.FS, clock types.Clock) *Journal {
	t.Helper()
	j, err := Open("journal", WithFS(fs), WithClock(clock), WithLogger(zap.NewNop()))
	require.NoError(t, err)
	return j
}

func TestJournalAppend(t *testing.T) {
	clock := util.NewManualClock(time.Unix(1_767_225_600, 0))
	j := openMem(t, vfs.NewMem(), clock)
	defer j.Close()
	assert.Equal(t, uint64(0), j.Seq())

	entry, err := j.Append(sale, types.PurchaseEvent{Buyer: buyer, PaymentAmount: uint256.NewInt(5), SaleAmount: uint256.NewInt(10)})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), entry.Seq)
	assert.Equal(t, "Purchase", entry.Name)
	assert.Equal(t, sale, entry.Source)
	assert.Equal(t, int64(1_767_225_600), entry.Time)

	clock.Advance(time.Minute)
	j.Record(context.Background(), sale, types.ClaimEvent{Buyer: buyer, Amount: uint256.NewInt(10)})
	assert.Equal(t, uint64(2), j.Seq())

	entries, err := j.Events(0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, entry.ID, entries[0].ID)
	assert.NotEqual(t, entries[0].ID, entries[1].ID)
	assert.Equal(t, int64(1_767_225_660), entries[1].Time)

	var purchase types.PurchaseEvent
	require.NoError(t, entries[0].Decode(&purchase))
	assert.Equal(t, buyer, purchase.Buyer)
	assert.Equal(t, uint64(5), purchase.PaymentAmount.Uint64())
	assert.Equal(t, uint64(10), purchase.SaleAmount.Uint64())
}

func TestJournalResumesSequence(t *testing.T) {
	fs := vfs.NewMem()
	clock := util.NewManualClock(time.Unix(1_767_225_600, 0))

	j := openMem(t, fs, clock)
	for i := 0; i < 3; i++ {
		_, err := j.Append(factory, types.DeployerRoleEvent{Account: buyer, Granted: i%2 == 0})
		require.NoError(t, err)
	}
	require.NoError(t, j.Close())

	reopened := openMem(t, fs, clock)
	defer reopened.Close()
	assert.Equal(t, uint64(3), reopened.Seq())

	entry, err := reopened.Append(factory, types.PresaleCreatedEvent{Sale: sale, Funder: buyer})
	require.NoError(t, err)
	assert.Equal(t, uint64(4), entry.Seq)

	entries, err := reopened.Events(0)
	require.NoError(t, err)
	require.Len(t, entries, 4)
	for i, e := range entries {
		assert.Equal(t, uint64(i+1), e.Seq)
	}
}

func TestJournalEventsFrom(t *testing.T) {
	j := openMem(t, vfs.NewMem(), util.SystemClock{})
	defer j.Close()

	for i := 0; i < 5; i++ {
		_, err := j.Append(sale, types.SetLinearVestingEndTimeEvent{VestingEnd: int64(i)})
		require.NoError(t, err)
	}

	entries, err := j.Events(3)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, uint64(3), entries[0].Seq)

	entries, err = j.Events(6)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestJournalEventsOf(t *testing.T) {
	j := openMem(t, vfs.NewMem(), util.SystemClock{})
	defer j.Close()

	ctx := context.Background()
	j.Record(ctx, factory, types.PresaleCreatedEvent{Sale: sale})
	j.Record(ctx, sale, types.FundEvent{Funder: buyer, Amount: uint256.NewInt(1)})
	j.Record(ctx, sale, types.PurchaseEvent{Buyer: buyer, PaymentAmount: uint256.NewInt(1), SaleAmount: uint256.NewInt(1)})
	j.Record(ctx, sale, types.PurchaseEvent{Buyer: buyer, PaymentAmount: uint256.NewInt(2), SaleAmount: uint256.NewInt(2)})

	all, err := j.EventsOf(sale)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	purchases, err := j.EventsOf(sale, "Purchase")
	require.NoError(t, err)
	require.Len(t, purchases, 2)
	assert.Equal(t, uint64(3), purchases[0].Seq)

	created, err := j.EventsOf(factory, "Purchase", "PresaleCreated")
	require.NoError(t, err)
	require.Len(t, created, 1)
	var event types.PresaleCreatedEvent
	require.NoError(t, created[0].Decode(&event))
	assert.Equal(t, sale, event.Sale)

	none, err := j.EventsOf(buyer)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestEntryDecodeError(t *testing.T) {
	entry := Entry{Name: "Purchase", Payload: []byte("{")}
	var event types.PurchaseEvent
	err := entry.Decode(&event)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode Purchase payload")
}
