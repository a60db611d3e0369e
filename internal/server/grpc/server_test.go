package grpc

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/dmitrijs2005/userauth/internal/logging"
	"github.com/dmitrijs2005/userauth/internal/server/models"
	"github.com/dmitrijs2005/userauth/internal/server/store"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type fakeUsers struct {
	profile     *models.Profile
	err         error
	initialized bool
	gotToken    string
}

func (f *fakeUsers) Authenticate(_ context.Context, token string) (*models.Profile, error) {
	f.gotToken = token
	return f.profile, f.err
}

func (f *fakeUsers) Stats() store.Stats {
	return store.Stats{Initialized: f.initialized}
}

func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	t.Parallel()

	srv := NewGRPCServer("127.0.0.1:0", logging.Nop{}, &fakeUsers{initialized: true})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- srv.Run(ctx)
	}()

	select {
	case err := <-done:
		t.Fatalf("server exited too early: %v", err)
	case <-time.After(150 * time.Millisecond):
	}

	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error on graceful stop: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop within timeout after context cancel")
	}
}

func TestRun_ReturnsErrorOnBadAddress(t *testing.T) {
	t.Parallel()

	srv := NewGRPCServer("127.0.0.1:99999", logging.Nop{}, &fakeUsers{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := srv.Run(ctx); err == nil {
		t.Fatal("expected error from Run on bad address, got nil")
	}
}

func TestHealth_ReportsStoreState(t *testing.T) {
	for _, tc := range []struct {
		name        string
		initialized bool
		want        healthpb.HealthCheckResponse_ServingStatus
	}{
		{"ready", true, healthpb.HealthCheckResponse_SERVING},
		{"not loaded", false, healthpb.HealthCheckResponse_NOT_SERVING},
	} {
		t.Run(tc.name, func(t *testing.T) {
			addr := freeAddr(t)
			srv := NewGRPCServer(addr, logging.Nop{}, &fakeUsers{initialized: tc.initialized})

			ctx, cancel := context.WithCancel(context.Background())
			done := make(chan error, 1)
			go func() { done <- srv.Run(ctx) }()
			t.Cleanup(func() {
				cancel()
				<-done
			})

			conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
			require.NoError(t, err)
			defer conn.Close()
			client := healthpb.NewHealthClient(conn)

			var resp *healthpb.HealthCheckResponse
			require.Eventually(t, func() bool {
				cctx, ccancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
				defer ccancel()
				resp, err = client.Check(cctx, &healthpb.HealthCheckRequest{Service: ServiceName})
				return err == nil
			}, 2*time.Second, 20*time.Millisecond)
			require.Equal(t, tc.want, resp.GetStatus())
		})
	}
}
