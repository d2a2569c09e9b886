// Copyright 2025 Certen Protocol
//
// Best-effort Firestore mirror of finalized randomness rounds: an
// enabled/disabled switch that degrades to a logged no-op rather than
// failing, since this sink must never affect consensus.

package firestoresync

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	gcpfirestore "cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"google.golang.org/api/option"
)

// Mirror pushes one document per finalized round to Firestore, under
// collection "randomnessRounds". It implements rngabci.RoundSink.
type Mirror struct {
	mu        sync.RWMutex
	firestore *gcpfirestore.Client
	app       *firebase.App
	enabled   bool
	logger    *log.Logger
}

// Config controls the Firestore mirror's connection and enablement.
type Config struct {
	ProjectID       string
	CredentialsFile string
	Enabled         bool
	Logger          *log.Logger
}

// DefaultConfig reads settings from the environment.
func DefaultConfig() Config {
	return Config{
		ProjectID:       os.Getenv("FIREBASE_PROJECT_ID"),
		CredentialsFile: os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"),
		Enabled:         os.Getenv("FIRESTORE_ENABLED") == "true",
	}
}

// New constructs a Mirror. If cfg.Enabled is false the Mirror is a
// logged no-op and RecordRound always returns nil.
func New(ctx context.Context, cfg Config) (*Mirror, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(os.Stdout, "[FirestoreSync] ", log.LstdFlags)
	}

	m := &Mirror{enabled: cfg.Enabled, logger: logger}
	if !cfg.Enabled {
		logger.Println("Firestore sync is DISABLED - running in no-op mode")
		return m, nil
	}

	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("firestoresync: FIREBASE_PROJECT_ID is required when enabled")
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.ProjectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("firestoresync: init firebase app: %w", err)
	}
	client, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("firestoresync: create firestore client: %w", err)
	}

	m.app = app
	m.firestore = client
	logger.Printf("Firestore sync enabled for project: %s", cfg.ProjectID)
	return m, nil
}

// IsEnabled reports whether the mirror performs real writes.
func (m *Mirror) IsEnabled() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.enabled
}

// Close releases the underlying Firestore client.
func (m *Mirror) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.firestore != nil {
		return m.firestore.Close()
	}
	return nil
}

// RecordRound mirrors one finalized round. Implements rngabci.RoundSink.
// Errors here must never propagate into consensus; callers log and
// continue rather than treating them as fatal.
func (m *Mirror) RecordRound(ctx context.Context, height int64, seedHex, randomnessHex string, participants int) error {
	if !m.IsEnabled() {
		m.logger.Printf("Firestore disabled - skipping round mirror for height=%d", height)
		return nil
	}

	docID := fmt.Sprintf("round_%d", height)
	_, err := m.firestore.Collection("randomnessRounds").Doc(docID).Set(ctx, map[string]interface{}{
		"height":        height,
		"seedHex":       seedHex,
		"randomnessHex": randomnessHex,
		"participants":  participants,
		"finalizedAt":   time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("firestoresync: write round %d: %w", height, err)
	}
	return nil
}
