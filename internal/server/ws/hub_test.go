package ws

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/bidstream/bidstream/internal/domain"
	"github.com/bidstream/bidstream/internal/fanout"
)

// chanBus is an in-process EventBus delivering published messages straight
// to the single subscriber.
type chanBus struct {
	msgs chan domain.BusMessage
}

func newChanBus() *chanBus {
	return &chanBus{msgs: make(chan domain.BusMessage, 16)}
}

func (b *chanBus) Publish(_ context.Context, topic string, payload []byte) error {
	b.msgs <- domain.BusMessage{Topic: topic, Payload: payload}
	return nil
}

func (b *chanBus) Subscribe(context.Context, string) (<-chan domain.BusMessage, error) {
	return b.msgs, nil
}

func startHub(t *testing.T) (*chanBus, *httptest.Server) {
	t.Helper()

	bus := newChanBus()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hub := NewHub(bus, logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = hub.Run(ctx)
	}()

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	t.Cleanup(func() {
		srv.Close()
		cancel()
		<-done
	})
	return bus, srv
}

func dial(t *testing.T, srv *httptest.Server, path string, header http.Header) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) domain.Event {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var evt domain.Event
	require.NoError(t, json.Unmarshal(data, &evt))
	return evt
}

func publishEvent(t *testing.T, bus *chanBus, topic string, evt domain.Event) {
	t.Helper()
	data, err := json.Marshal(evt)
	require.NoError(t, err)
	require.NoError(t, bus.Publish(context.Background(), topic, data))
}

func TestHubDeliversChannelEvents(t *testing.T) {
	bus, srv := startHub(t)
	conn := dial(t, srv, "/ws?channel_id=chan-1", nil)

	publishEvent(t, bus, fanout.ChannelTopic("chan-1"), domain.Event{
		Type:      domain.EventAuctionBid,
		ChannelID: "chan-1",
	})

	evt := readEvent(t, conn)
	require.Equal(t, domain.EventAuctionBid, evt.Type)
	require.Equal(t, "chan-1", evt.ChannelID)
}

func TestHubRoutesByTopic(t *testing.T) {
	bus, srv := startHub(t)
	conn := dial(t, srv, "/ws?channel_id=chan-1", nil)

	// A message for another channel must not reach this client; the
	// following chan-1 message acts as the fence.
	publishEvent(t, bus, fanout.ChannelTopic("chan-2"), domain.Event{
		Type:      domain.EventAuctionStarted,
		ChannelID: "chan-2",
	})
	publishEvent(t, bus, fanout.ChannelTopic("chan-1"), domain.Event{
		Type:      domain.EventAuctionEnded,
		ChannelID: "chan-1",
	})

	evt := readEvent(t, conn)
	require.Equal(t, domain.EventAuctionEnded, evt.Type)
	require.Equal(t, "chan-1", evt.ChannelID)
}

func TestHubUserTopicFromHeader(t *testing.T) {
	bus, srv := startHub(t)
	header := http.Header{"X-User-ID": []string{"bidder-1"}}
	conn := dial(t, srv, "/ws", header)

	publishEvent(t, bus, fanout.UserTopic("bidder-1"), domain.Event{
		Type:      domain.EventAuctionOutbid,
		ChannelID: "chan-1",
	})

	evt := readEvent(t, conn)
	require.Equal(t, domain.EventAuctionOutbid, evt.Type)
}

func TestHubWatchUnwatch(t *testing.T) {
	bus, srv := startHub(t)
	conn := dial(t, srv, "/ws", nil)

	require.NoError(t, conn.WriteJSON(watchMsg{Action: "watch", ChannelID: "chan-1"}))

	// The read pump applies the watch asynchronously, so publish on a
	// ticker until one delivery lands.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		ticker := time.NewTicker(50 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				publishEvent(t, bus, fanout.ChannelTopic("chan-1"), domain.Event{
					Type:      domain.EventAuctionBid,
					ChannelID: "chan-1",
				})
			}
		}
	}()

	evt := readEvent(t, conn)
	require.Equal(t, domain.EventAuctionBid, evt.Type)
}

func TestHubShutdownReleasesClientGoroutines(t *testing.T) {
	bus := newChanBus()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hub := NewHub(bus, logger)

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		_ = hub.Run(ctx)
	}()

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	baseline := runtime.NumGoroutine()

	conn := dial(t, srv, "/ws?channel_id=chan-1", nil)
	publishEvent(t, bus, fanout.ChannelTopic("chan-1"), domain.Event{
		Type:      domain.EventAuctionBid,
		ChannelID: "chan-1",
	})
	readEvent(t, conn)

	// Stopping the hub must release the connection's pump goroutines even
	// though nothing is left to receive their unregister.
	cancel()
	<-runDone

	require.Eventually(t, func() bool {
		return runtime.NumGoroutine() <= baseline
	}, 2*time.Second, 20*time.Millisecond)

	// A connection arriving after shutdown is closed instead of being
	// parked on the register channel.
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	late, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer late.Close()
	require.NoError(t, late.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = late.ReadMessage()
	require.Error(t, err)
}
