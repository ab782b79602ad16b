package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDialAndAcceptExchangeFrames(t *testing.T) {
	upgrader := NewUpgrader()

	var (
		mu       sync.Mutex
		received [][]byte
	)
	gotFrame := make(chan struct{}, 4)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Accept(w, r)
		if err != nil {
			return
		}
		require.Equal(t, "did:wba:alice", conn.PeerDID())

		_ = conn.ReadLoop(r.Context(), func(data []byte) {
			mu.Lock()
			received = append(received, data)
			mu.Unlock()
			gotFrame <- struct{}{}
			// echo back
			_ = conn.Send(context.Background(), append([]byte("echo:"), data...))
		})
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, err := Dial(context.Background(), url, "did:wba:alice", "did:wba:bob")
	require.NoError(t, err)
	defer conn.Close()
	require.Equal(t, "did:wba:bob", conn.PeerDID())

	echoed := make(chan []byte, 1)
	go func() {
		_ = conn.ReadLoop(context.Background(), func(data []byte) {
			echoed <- data
		})
	}()

	require.NoError(t, conn.Send(context.Background(), []byte{0x00, '{', '}'}))

	select {
	case <-gotFrame:
	case <-time.After(2 * time.Second):
		t.Fatal("server did not receive frame")
	}

	select {
	case data := <-echoed:
		require.Equal(t, "echo:", string(data[:5]))
	case <-time.After(2 * time.Second):
		t.Fatal("client did not receive echo")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, received, 1)
}

func TestAcceptRejectsMissingDID(t *testing.T) {
	upgrader := NewUpgrader()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, err := upgrader.Accept(w, r)
		require.Error(t, err)
	}))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDialRejectsBadURL(t *testing.T) {
	_, err := Dial(context.Background(), "://bad", "did:a", "did:b")
	require.Error(t, err)
}
