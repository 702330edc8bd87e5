package testutil

import (
	"net/http/httptest"
	"os"
	"time"

	"github.com/conduit-ai/conduit/internal/event"
	"github.com/conduit-ai/conduit/internal/provider"
	"github.com/conduit-ai/conduit/internal/server"
	"github.com/conduit-ai/conduit/internal/session"
	"github.com/conduit-ai/conduit/internal/storage"
	"github.com/conduit-ai/conduit/internal/tool"
)

// TestServer is a fully wired conduit server bound to a temp data
// directory and a mock provider, reachable over a local HTTP listener.
type TestServer struct {
	BaseURL  string
	Provider *MockProvider
	Store    *storage.Store
	Bus      *event.Bus
	Tools    *tool.Registry

	http       *httptest.Server
	supervisor *session.Supervisor
	dataDir    string
}

// StartTestServer boots a server around the given provider.
func StartTestServer(mock *MockProvider) (*TestServer, error) {
	dataDir, err := os.MkdirTemp("", "conduit-citest-*")
	if err != nil {
		return nil, err
	}

	store := storage.New(dataDir)
	bus := event.NewBus()

	tools := tool.NewRegistry()
	direct := tool.NewDirect(bus, 5*time.Second)

	providers := provider.NewRegistry("mock/mock-model")
	providers.Register(mock)

	supervisor := session.NewSupervisor(session.SupervisorOptions{
		Store:  store,
		Bus:    bus,
		Tools:  tools,
		Direct: direct,
	})

	cfg := server.DefaultConfig()
	cfg.DefaultModel = "mock/mock-model"
	cfg.EnableTitleGeneration = false

	srv := server.New(cfg, server.Options{
		Store:      store,
		Bus:        bus,
		Providers:  providers,
		Tools:      tools,
		Direct:     direct,
		Supervisor: supervisor,
	})

	httpSrv := httptest.NewServer(srv.Router())

	return &TestServer{
		BaseURL:    httpSrv.URL,
		Provider:   mock,
		Store:      store,
		Bus:        bus,
		Tools:      tools,
		http:       httpSrv,
		supervisor: supervisor,
		dataDir:    dataDir,
	}, nil
}

// Stop shuts everything down and removes the data directory.
func (s *TestServer) Stop() {
	s.supervisor.Shutdown()
	s.http.Close()
	s.Bus.Close()
	os.RemoveAll(s.dataDir)
}
