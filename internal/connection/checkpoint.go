package connection

import (
	"fmt"
	"strings"

	"repairhub/internal/config"
)

// CheckpointStore is the resolved endpoint of the checkpoint store.
type CheckpointStore struct {
	Kind      Kind
	Backend   string
	Addr      string
	Password  string
	Container string
	TLS       bool
	CertFile  string
	KeyFile   string
}

// Anonymous reports a Redis store reached without any credential.
func (cs *CheckpointStore) Anonymous() bool {
	return cs.Backend == "redis" && cs.Kind == 0
}

// ResolveCheckpointStore applies the same identity-first rule as the event
// source. Without any credential the store is reached anonymously, which is
// only useful for local development.
func ResolveCheckpointStore(cfg config.Checkpoint) (*CheckpointStore, error) {
	backend := strings.ToLower(strings.TrimSpace(cfg.Backend))
	if backend == "" {
		backend = "redis"
	}
	if backend != "redis" && backend != "postgres" {
		return nil, fmt.Errorf("unsupported checkpoint backend %q", cfg.Backend)
	}

	container := strings.TrimSpace(cfg.Container)
	if container == "" {
		container = "checkpoint-store"
	}

	cs := &CheckpointStore{
		Backend:   backend,
		Addr:      cfg.Addr,
		Container: container,
	}

	switch {
	case cfg.ClientCertFile != "" || cfg.ClientKeyFile != "":
		if cfg.ClientCertFile == "" || cfg.ClientKeyFile == "" {
			return nil, fmt.Errorf("checkpoint identity: client certificate and key must be configured together")
		}
		cs.Kind = Identity
		cs.TLS = true
		cs.CertFile = cfg.ClientCertFile
		cs.KeyFile = cfg.ClientKeyFile
	case cfg.Password != "":
		cs.Kind = Secret
		cs.Password = cfg.Password
	}

	return cs, nil
}
