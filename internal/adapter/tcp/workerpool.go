package tcp

import (
	"github.com/rs/zerolog"
	"gopkg.in/tomb.v2"
)

// taskChanSize bounds how many accepted connections can queue for a worker
// before Accept blocks. Grounded on the teacher's internal/worker.go
// TASK_CHAN_SIZE.
const taskChanSize = 100

// workerFunc processes one queued task. A non-nil error is returned to the
// tomb, which kills it and every goroutine it tracks; the task is not
// retried or requeued.
type workerFunc = func(t *tomb.Tomb, task any) error

// workerPool is the teacher's fixed-size worker pool (internal/worker.go),
// kept nearly verbatim: a bounded number of goroutines pull from a shared
// task channel until the tomb starts dying.
type workerPool struct {
	n      int
	tasks  chan any
	logger zerolog.Logger
}

func newWorkerPool(size int, logger zerolog.Logger) workerPool {
	return workerPool{
		tasks:  make(chan any, taskChanSize),
		n:      size,
		logger: logger,
	}
}

func (p *workerPool) addTask(task any) {
	p.tasks <- task
}

// setup spawns n workers onto t and blocks until t starts dying, replacing
// any worker that exits so the pool always has n goroutines racing for
// tasks.
func (p *workerPool) setup(t *tomb.Tomb, work workerFunc) {
	active := 0
	for {
		select {
		case <-t.Dying():
			return
		default:
			if active < p.n {
				t.Go(func() error {
					err := p.worker(t, work)
					active--
					return err
				})
				active++
			}
		}
	}
}

func (p *workerPool) worker(t *tomb.Tomb, work workerFunc) error {
	select {
	case <-t.Dying():
		return nil
	case task := <-p.tasks:
		if err := work(t, task); err != nil {
			p.logger.Error().Err(err).Msg("tcp worker exiting")
			return err
		}
	}
	return nil
}
