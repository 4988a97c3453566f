package suggest

import (
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/log"
)

// Outcome is the tri-state result of one updater run, consumed by the
// scheduler instead of using panics/errors for control flow.
type Outcome int

const (
	// OutcomeContinue reschedules the task normally.
	OutcomeContinue Outcome = iota
	// OutcomeSkip marks a transient failure; the task is rescheduled and
	// the failure counted against the budget.
	OutcomeSkip
	// OutcomeStop cancels the task permanently.
	OutcomeStop
)

// maxConsecutiveFailures is the transient-failure budget. One more failure
// than this stops the task for good; any success resets the counter.
const maxConsecutiveFailures = 5

// errUnavailable marks a provider that previously had data but currently
// reports none; retried as transient.
var errUnavailable = errors.New("provider temporarily unavailable")

// Updater is the recurring task bound to exactly one (provider, index,
// proxy) triple. On every run it checks both the source provider and the
// archive provider for newer data, builds a fresh engine when there is any,
// swaps it into the proxy and writes the built state back to the archive.
type Updater struct {
	indexName string
	source    DataProvider    // may be nil when serving from archive only
	archive   ArchiveProvider // may be nil
	factory   Factory
	proxy     *Proxy
	log       *log.Logger

	// lastUpdate is the mod-time (epoch ms) of the last applied dataset,
	// negative while no update ever succeeded. Epoch zero is a valid
	// provider mod-time and must not double as the sentinel.
	lastUpdate   int64
	failCount    int
	successCount int
	recordCount  int
}

// NewUpdater wires an update task. At least one of source and archive must
// be given.
func NewUpdater(indexName string, source DataProvider, archive ArchiveProvider, factory Factory, proxy *Proxy, logger *log.Logger) (*Updater, error) {
	if source == nil && archive == nil {
		return nil, fmt.Errorf("updater for index %s needs a data provider or an archive provider", indexName)
	}
	if factory == nil || proxy == nil {
		return nil, fmt.Errorf("updater for index %s needs factory and proxy", indexName)
	}
	return &Updater{
		indexName:  indexName,
		source:     source,
		archive:    archive,
		factory:    factory,
		proxy:      proxy,
		log:        logger,
		lastUpdate: -1,
	}, nil
}

// Run performs one update attempt and classifies its result. Unrecoverable
// conditions and a closed proxy stop the task permanently; any other error
// is transient and only stops the task once the failure budget is used up.
func (u *Updater) Run() Outcome {
	err := u.update()
	switch {
	case err == nil:
		u.failCount = 0
		return OutcomeContinue
	case errors.Is(err, ErrClosed):
		// suggester was destroyed while we were building; not a failure
		u.log.Info("stopping updates for closed suggester", "index", u.indexName)
		return OutcomeStop
	case errors.Is(err, ErrNoData), errors.Is(err, ErrInvalidModTime):
		u.log.Error("unrecoverable update condition, stopping updates",
			"index", u.indexName, "err", err)
		return OutcomeStop
	default:
		u.failCount++
		u.log.Warn("update failed", "index", u.indexName, "attempt", u.failCount, "err", err)
		if u.failCount > maxConsecutiveFailures {
			u.log.Error("too many consecutive update failures, stopping updates",
				"index", u.indexName, "failures", u.failCount)
			return OutcomeStop
		}
		return OutcomeSkip
	}
}

func (u *Updater) update() error {
	srcMod, srcAvailable, err := u.remoteModTime(u.sourceHandle())
	if err != nil {
		return err
	}
	arcMod, arcAvailable, err := u.remoteModTime(u.archiveHandle())
	if err != nil {
		return err
	}

	switch {
	case !srcAvailable && !arcAvailable:
		if u.lastUpdate < 0 {
			return fmt.Errorf("index %s: %w", u.indexName, ErrNoData)
		}
		u.log.Warn("providers report no data for previously updated index", "index", u.indexName)
		return nil

	case srcAvailable && !arcAvailable:
		applied, err := u.updateFromSource(srcMod)
		if err != nil {
			return err
		}
		if applied && u.archive != nil {
			return u.archiveSuggestIndex()
		}
		return nil

	case !srcAvailable:
		return u.updateFromArchive(arcMod)

	default:
		if srcMod <= u.lastUpdate && arcMod <= u.lastUpdate {
			u.log.Debug("no changes", "index", u.indexName,
				"lastUpdate", u.lastUpdate, "sourceModTime", srcMod, "archiveModTime", arcMod)
			return nil
		}
		// prefer the archive unless the source is strictly newer; loading
		// a snapshot is cheaper than a full rebuild
		if srcMod > arcMod {
			applied, err := u.updateFromSource(srcMod)
			if err != nil {
				return err
			}
			if applied {
				return u.archiveSuggestIndex()
			}
			return nil
		}
		return u.updateFromArchive(arcMod)
	}
}

// providerHandle folds DataProvider and ArchiveProvider under the common
// mod-time protocol they share.
type providerHandle struct {
	name    string
	hasData func(string) bool
	lastMod func(string) (int64, error)
}

func (u *Updater) sourceHandle() *providerHandle {
	if u.source == nil {
		return nil
	}
	return &providerHandle{name: u.source.Name(), hasData: u.source.HasData, lastMod: u.source.LastModTime}
}

func (u *Updater) archiveHandle() *providerHandle {
	if u.archive == nil {
		return nil
	}
	return &providerHandle{name: "archive", hasData: u.archive.HasData, lastMod: u.archive.LastModTime}
}

// remoteModTime resolves a provider's current mod-time. The bool reports
// availability; a negative mod-time from a provider that claims data is a
// contract violation and unrecoverable on the very first update.
func (u *Updater) remoteModTime(p *providerHandle) (int64, bool, error) {
	if p == nil {
		return 0, false, nil
	}
	if u.lastUpdate < 0 && !p.hasData(u.indexName) {
		return 0, false, nil
	}
	mod, err := p.lastMod(u.indexName)
	if err != nil {
		return 0, false, fmt.Errorf("provider %s: %w", p.name, err)
	}
	if mod < 0 {
		if u.lastUpdate >= 0 {
			return 0, false, fmt.Errorf("provider %s: %w", p.name, errUnavailable)
		}
		return 0, false, fmt.Errorf("provider %s claims data for index %s but reports mod-time %d: %w",
			p.name, u.indexName, mod, ErrInvalidModTime)
	}
	return mod, true, nil
}

// updateFromSource loads and indexes the full dataset if the reported
// mod-time is strictly newer than the last applied one.
func (u *Updater) updateFromSource(remoteMod int64) (bool, error) {
	if remoteMod <= u.lastUpdate {
		return false, nil
	}
	u.log.Info("fetching data", "index", u.indexName, "provider", u.source.Name())
	data, err := u.source.LoadData(u.indexName)
	if err != nil {
		return false, fmt.Errorf("provider %s: %w", u.source.Name(), err)
	}
	if data == nil {
		return false, fmt.Errorf("provider %s returned no dataset for index %s", u.source.Name(), u.indexName)
	}
	if data.ModTime > 0 && data.ModTime != remoteMod {
		return false, fmt.Errorf("provider %s delivered dataset with mod-time %d, expected %d: %w",
			u.source.Name(), data.ModTime, remoteMod, ErrModTimeMismatch)
	}

	engine, err := u.factory.Build(data)
	if err != nil {
		return false, fmt.Errorf("engine build for index %s: %w", u.indexName, err)
	}
	return true, u.finishUpdate(engine, remoteMod)
}

func (u *Updater) updateFromArchive(remoteMod int64) error {
	if remoteMod <= u.lastUpdate {
		return nil
	}
	u.log.Info("loading archive", "index", u.indexName)
	archive, err := u.archive.Load(u.indexName)
	if err != nil {
		return fmt.Errorf("archive load for index %s: %w", u.indexName, err)
	}
	if archive == nil {
		return fmt.Errorf("archive provider returned no snapshot for index %s", u.indexName)
	}
	if archive.Temp {
		defer os.Remove(archive.File)
	}
	if archive.ModTime > 0 && archive.ModTime != remoteMod {
		return fmt.Errorf("archive for index %s has mod-time %d, expected %d: %w",
			u.indexName, archive.ModTime, remoteMod, ErrModTimeMismatch)
	}

	engine, err := u.factory.Recover(archive)
	if err != nil {
		return fmt.Errorf("engine recovery for index %s: %w", u.indexName, err)
	}
	return u.finishUpdate(engine, remoteMod)
}

func (u *Updater) finishUpdate(engine Suggester, remoteMod int64) error {
	if err := u.proxy.UpdateDelegate(engine); err != nil {
		// the suggester was destroyed concurrently; drop the fresh build
		closeErr := engine.Close()
		if closeErr != nil {
			u.log.Warn("failed to release discarded engine", "index", u.indexName, "err", closeErr)
		}
		return err
	}
	u.lastUpdate = remoteMod
	u.successCount++
	u.recordCount = engine.RecordCount()
	u.log.Info("update applied", "index", u.indexName, "records", u.recordCount, "modTime", remoteMod)
	return nil
}

func (u *Updater) archiveSuggestIndex() error {
	archive, err := u.factory.CreateArchive(u.proxy.Delegate())
	if err != nil {
		return fmt.Errorf("packaging archive for index %s: %w", u.indexName, err)
	}
	if err := u.archive.Store(u.indexName, archive); err != nil {
		return fmt.Errorf("storing archive for index %s: %w", u.indexName, err)
	}
	return nil
}

// LastUpdate reports the mod-time of the last applied dataset, -1 if none.
func (u *Updater) LastUpdate() int64 { return u.lastUpdate }

// FailCount reports the current consecutive-failure count.
func (u *Updater) FailCount() int { return u.failCount }

// RecordCount reports the record count of the last applied dataset.
func (u *Updater) RecordCount() int { return u.recordCount }
