package archive

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bidstream/bidstream/internal/domain"
	"github.com/bidstream/bidstream/internal/store/memory"
)

var archiveBase = time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)

type captureWriter struct {
	failPaths map[string]bool
	paths     []string
	bodies    map[string][]byte
	types     map[string]string
}

func newCaptureWriter() *captureWriter {
	return &captureWriter{
		failPaths: make(map[string]bool),
		bodies:    make(map[string][]byte),
		types:     make(map[string]string),
	}
}

func (w *captureWriter) Put(_ context.Context, path string, body io.Reader, contentType string) error {
	if w.failPaths[path] {
		return errors.New("s3: upload failed")
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	w.paths = append(w.paths, path)
	w.bodies[path] = data
	w.types[path] = contentType
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// seedSettled inserts a completed auction that ended at the given time,
// optionally with a bid and its order.
func seedSettled(t *testing.T, st *memory.Store, id string, endedAt time.Time, withBids bool) {
	t.Helper()
	a := domain.Auction{
		ID:              id,
		ProductID:       "prod-" + id,
		SellerID:        "seller-1",
		ChannelID:       "chan-" + id,
		StartingCents:   5000,
		CurrentBidCents: 5000,
		DurationSec:     60,
		StartedAt:       endedAt.Add(-time.Minute),
		EndsAt:          endedAt,
		Status:          domain.AuctionStatusCompleted,
	}
	if withBids {
		a.CurrentBidCents = 10000
		a.HighestBidderID = "bidder-1"
	}
	require.NoError(t, st.Create(context.Background(), a))

	if withBids {
		require.NoError(t, st.Lock(context.Background(), id, func(tx domain.AuctionTx) error {
			if err := tx.InsertBid(domain.Bid{ID: "b-" + id, AuctionID: id, BidderID: "bidder-1", AmountCents: 10000, PlacedAt: endedAt}); err != nil {
				return err
			}
			return tx.InsertOrder(domain.Order{ID: "o-" + id, AuctionID: id, BuyerID: "bidder-1", SellerID: "seller-1", FinalPriceCents: 10000, PlatformFeeCents: 700, SellerPayoutCents: 9300, PaymentStatus: domain.PaymentStatusPending})
		}))
	}
}

func newArchiver(st *memory.Store, w domain.BlobWriter, now time.Time) *Archiver {
	return NewArchiver(st, st, st, w, discardLogger()).
		WithNow(func() time.Time { return now })
}

func TestArchiverExportsSettledAuctions(t *testing.T) {
	st := memory.NewStore()
	now := archiveBase
	seedSettled(t, st, "a-won", now.Add(-30*time.Hour), true)
	seedSettled(t, st, "a-nobids", now.Add(-30*time.Hour), false)
	seedSettled(t, st, "a-fresh", now.Add(-time.Hour), true)

	w := newCaptureWriter()
	require.NoError(t, newArchiver(st, w, now).Run(context.Background()))

	require.Len(t, w.paths, 2)
	wonPath := "auctions/2026/08/auction-a-won.json"
	require.Contains(t, w.paths, wonPath)
	require.Contains(t, w.paths, "auctions/2026/08/auction-a-nobids.json")
	require.Equal(t, "application/json", w.types[wonPath])

	var doc export
	require.NoError(t, json.Unmarshal(w.bodies[wonPath], &doc))
	require.Equal(t, "a-won", doc.Auction.ID)
	require.Len(t, doc.Bids, 1)
	require.NotNil(t, doc.Order)
	require.Equal(t, "o-a-won", doc.Order.ID)
	require.Equal(t, now, doc.ExportedAt)

	var noBids export
	require.NoError(t, json.Unmarshal(w.bodies["auctions/2026/08/auction-a-nobids.json"], &noBids))
	require.Empty(t, noBids.Bids)
	require.Nil(t, noBids.Order)

	// Exported rows are stamped so the next pass skips them; the fresh one
	// is still waiting out its retention.
	archived, err := st.GetByID(context.Background(), "a-won")
	require.NoError(t, err)
	require.NotNil(t, archived.ArchivedAt)

	fresh, err := st.GetByID(context.Background(), "a-fresh")
	require.NoError(t, err)
	require.Nil(t, fresh.ArchivedAt)

	w2 := newCaptureWriter()
	require.NoError(t, newArchiver(st, w2, now).Run(context.Background()))
	require.Empty(t, w2.paths)
}

func TestArchiverUploadFailureSkipsOnlyThatAuction(t *testing.T) {
	st := memory.NewStore()
	now := archiveBase
	seedSettled(t, st, "a-1", now.Add(-30*time.Hour), false)
	seedSettled(t, st, "a-2", now.Add(-29*time.Hour), false)

	w := newCaptureWriter()
	w.failPaths["auctions/2026/08/auction-a-1.json"] = true
	require.NoError(t, newArchiver(st, w, now).Run(context.Background()))

	require.Equal(t, []string{"auctions/2026/08/auction-a-2.json"}, w.paths)

	failed, err := st.GetByID(context.Background(), "a-1")
	require.NoError(t, err)
	require.Nil(t, failed.ArchivedAt)

	uploaded, err := st.GetByID(context.Background(), "a-2")
	require.NoError(t, err)
	require.NotNil(t, uploaded.ArchivedAt)

	// The failed auction is retried on the next pass.
	w.failPaths = map[string]bool{}
	require.NoError(t, newArchiver(st, w, now).Run(context.Background()))
	retried, err := st.GetByID(context.Background(), "a-1")
	require.NoError(t, err)
	require.NotNil(t, retried.ArchivedAt)
}

func TestArchiverBatchSize(t *testing.T) {
	st := memory.NewStore()
	now := archiveBase
	seedSettled(t, st, "a-1", now.Add(-40*time.Hour), false)
	seedSettled(t, st, "a-2", now.Add(-35*time.Hour), false)
	seedSettled(t, st, "a-3", now.Add(-30*time.Hour), false)

	w := newCaptureWriter()
	require.NoError(t, newArchiver(st, w, now).WithBatchSize(2).Run(context.Background()))
	require.Len(t, w.paths, 2)

	// Oldest settle first.
	require.Equal(t, "auctions/2026/08/auction-a-1.json", w.paths[0])
	require.Equal(t, "auctions/2026/08/auction-a-2.json", w.paths[1])
}
