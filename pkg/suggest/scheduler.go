package suggest

import (
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/panjf2000/ants/v2"
)

// scheduler runs named recurring tasks with fixed-delay semantics: the
// interval is measured from the end of one run to the start of the next, so
// slow runs never pile up. Task bodies execute on a shared worker pool.
type scheduler struct {
	pool *ants.Pool
	log  *log.Logger

	mu     sync.Mutex
	tasks  map[string]*scheduledTask
	closed bool
}

type scheduledTask struct {
	name     string
	interval time.Duration
	run      func() Outcome
	timer    *time.Timer
	stopped  bool
}

func newScheduler(poolSize int, logger *log.Logger) (*scheduler, error) {
	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, err
	}
	return &scheduler{
		pool:  pool,
		log:   logger,
		tasks: make(map[string]*scheduledTask),
	}, nil
}

// schedule registers a recurring task. The first run happens after
// initialDelay, every later run interval after the previous one finished.
// A run returning OutcomeStop unregisters the task for good.
func (s *scheduler) schedule(name string, initialDelay, interval time.Duration, run func() Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if prev, ok := s.tasks[name]; ok {
		prev.stopped = true
		prev.timer.Stop()
	}
	task := &scheduledTask{name: name, interval: interval, run: run}
	task.timer = time.AfterFunc(initialDelay, func() { s.dispatch(task) })
	s.tasks[name] = task
}

func (s *scheduler) dispatch(task *scheduledTask) {
	err := s.pool.Submit(func() {
		outcome := task.run()
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.closed || task.stopped {
			return
		}
		if outcome == OutcomeStop {
			delete(s.tasks, task.name)
			return
		}
		task.timer.Reset(task.interval)
	})
	if err != nil {
		s.log.Warn("dropping scheduled run", "task", task.name, "err", err)
	}
}

// active reports whether the named task is still scheduled.
func (s *scheduler) active(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.tasks[name]
	return ok
}

// cancel stops the named task. Safe to call for unknown names.
func (s *scheduler) cancel(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if task, ok := s.tasks[name]; ok {
		task.stopped = true
		task.timer.Stop()
		delete(s.tasks, name)
	}
}

// close stops all tasks and releases the worker pool. Runs already in
// flight finish, no new runs start.
func (s *scheduler) close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	for _, task := range s.tasks {
		task.stopped = true
		task.timer.Stop()
	}
	s.tasks = map[string]*scheduledTask{}
	s.mu.Unlock()
	s.pool.Release()
}
