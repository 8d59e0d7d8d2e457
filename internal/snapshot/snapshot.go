package snapshot

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/busyness-collector/internal/storage"
	"github.com/busyness-collector/internal/types"
	log "github.com/sirupsen/logrus"
)

// Manager holds the latest finished run for concurrent readers and
// persists every new run in the background.
type Manager struct {
	current atomic.Pointer[types.Run]
	storage storage.Storage

	persistMu sync.Mutex
	pending   sync.WaitGroup
	runs      atomic.Int64
}

func NewManager(store storage.Storage) *Manager {
	return &Manager{storage: store}
}

// Update swaps in run and saves it asynchronously.
func (m *Manager) Update(run *types.Run) {
	m.current.Store(run)
	m.runs.Add(1)
	log.WithFields(log.Fields{
		"run":        run.ID,
		"successful": run.Report.SuccessfulScrapes,
		"total":      run.Report.TotalLocations,
	}).Info("Snapshot updated")

	m.pending.Add(1)
	go func() {
		defer m.pending.Done()
		m.persist(run)
	}()
}

// Get returns the latest run, or nil before the first one.
func (m *Manager) Get() *types.Run {
	return m.current.Load()
}

// Runs counts the runs recorded since startup.
func (m *Manager) Runs() int64 {
	return m.runs.Load()
}

func (m *Manager) persist(run *types.Run) {
	m.persistMu.Lock()
	defer m.persistMu.Unlock()

	if err := m.storage.Save(run); err != nil {
		log.Errorf("Failed to persist run %s: %v", run.ID, err)
	} else {
		log.Debugf("Run %s persisted", run.ID)
	}
}

// LoadFromStorage restores the last saved run unless it finished more than
// maxAge ago.
func (m *Manager) LoadFromStorage(maxAge time.Duration) error {
	run, err := m.storage.Load()
	if err != nil {
		return err
	}

	if run == nil || run.Report == nil {
		log.Info("No previous run in storage")
		return nil
	}

	if maxAge > 0 && run.FinishedAt.Before(time.Now().Add(-maxAge)) {
		log.Infof("Previous run %s is stale (finished %v), ignoring", run.ID, run.FinishedAt)
		return nil
	}

	m.current.Store(run)
	log.Infof("Loaded previous run %s from storage", run.ID)
	return nil
}

// Close waits for pending saves.
func (m *Manager) Close() {
	m.pending.Wait()
}
