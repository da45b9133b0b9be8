package natsbus

import (
	"fmt"
	"time"

	"github.com/nats-io/nats-server/v2/server"
)

// EmbeddedServer runs an in-process NATS server. Used by tests and
// single-binary deployments that want the bus without an external broker.
type EmbeddedServer struct {
	server *server.Server
	url    string
}

// StartEmbeddedServer starts an embedded NATS server with JetStream on a
// random port.
func StartEmbeddedServer(storeDir string) (*EmbeddedServer, error) {
	opts := &server.Options{
		Host:      "127.0.0.1",
		Port:      -1,
		JetStream: true,
		StoreDir:  storeDir,
	}

	s, err := server.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedded server: %w", err)
	}

	go s.Start()
	if !s.ReadyForConnections(5 * time.Second) {
		s.Shutdown()
		return nil, fmt.Errorf("embedded server not ready")
	}

	return &EmbeddedServer{server: s, url: s.ClientURL()}, nil
}

func (e *EmbeddedServer) URL() string {
	return e.url
}

func (e *EmbeddedServer) Shutdown() {
	if e.server != nil {
		e.server.Shutdown()
		e.server.WaitForShutdown()
	}
}

// NewEmbedded starts an embedded server and a bus connected to it.
func NewEmbedded(storeDir string) (*Bus, *EmbeddedServer, error) {
	srv, err := StartEmbeddedServer(storeDir)
	if err != nil {
		return nil, nil, err
	}

	config := DefaultConfig()
	config.URL = srv.URL()
	bus, err := New(config)
	if err != nil {
		srv.Shutdown()
		return nil, nil, err
	}
	return bus, srv, nil
}
