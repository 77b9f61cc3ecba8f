package browser

import (
	"context"
	"errors"
	"testing"

	"github.com/martinsuchenak/labconsole/internal/labclient"
	"github.com/martinsuchenak/labconsole/internal/labtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubBackend struct {
	browse *labclient.BrowseResponse
	dns    *labclient.Result
	err    error
	calls  int
}

func (s *stubBackend) Browse(context.Context, string, string, string) (*labclient.BrowseResponse, error) {
	s.calls++
	return s.browse, s.err
}

func (s *stubBackend) AddDNSRecord(context.Context, string, string, string) (*labclient.Result, error) {
	s.calls++
	return s.dns, s.err
}

func TestBrowseMessages(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name    string
		host    string
		stub    stubBackend
		want    string
		wantErr string
	}{
		{name: "blank host", host: "  ", wantErr: "Please enter a hostname."},
		{name: "content", host: "a", stub: stubBackend{browse: &labclient.BrowseResponse{Success: true, Content: "hi"}}, want: "hi"},
		{name: "empty page", host: "a", stub: stubBackend{browse: &labclient.BrowseResponse{Success: true}}, want: NoContent},
		{name: "backend error", host: "a", stub: stubBackend{browse: &labclient.BrowseResponse{Error: "Host not found"}}, wantErr: "Error: Host not found"},
		{name: "backend error without message", host: "a", stub: stubBackend{browse: &labclient.BrowseResponse{}}, wantErr: "Error: Unknown"},
		{name: "transport", host: "a", stub: stubBackend{err: errors.New("connection refused")}, wantErr: "Request failed: connection refused"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := New("1", "PC1", &tt.stub)
			got, err := b.Browse(ctx, tt.host)
			if tt.wantErr != "" {
				require.EqualError(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBlankHostSendsNothing(t *testing.T) {
	stub := &stubBackend{}
	b := New("1", "PC1", stub)
	_, err := b.Browse(context.Background(), "")
	assert.ErrorIs(t, err, ErrHostname)
	_, err = b.AddDNS(context.Background(), " ", "x")
	assert.ErrorIs(t, err, ErrHostRequired)
	assert.Zero(t, stub.calls)
}

func TestAddDNSFailures(t *testing.T) {
	ctx := context.Background()
	_, err := New("1", "PC1", &stubBackend{dns: &labclient.Result{Error: "denied"}}).AddDNS(ctx, "h", "x")
	assert.EqualError(t, err, "denied")
	_, err = New("1", "PC1", &stubBackend{dns: &labclient.Result{}}).AddDNS(ctx, "h", "x")
	assert.EqualError(t, err, "Failed to add DNS entry")
}

func TestBrowseAgainstMockBackend(t *testing.T) {
	srv, _ := labtest.NewServer()
	defer srv.Close()
	client, err := labclient.New(labclient.Options{BaseURL: srv.URL})
	require.NoError(t, err)

	b := New("1", "PC1", client)
	ctx := context.Background()

	page, err := b.Browse(ctx, "intranet.lab")
	require.NoError(t, err)
	assert.Contains(t, page, "Welcome")

	_, err = b.Browse(ctx, "shop.lab")
	var pe *PageError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "Error: Host not found", err.Error())

	msg, err := b.AddDNS(ctx, "shop.lab", "<p>shop</p>")
	require.NoError(t, err)
	assert.Equal(t, DNSAdded, msg)

	page, err = b.Browse(ctx, " shop.lab ")
	require.NoError(t, err)
	assert.Equal(t, "<p>shop</p>", page)
}
