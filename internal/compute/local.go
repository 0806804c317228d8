package compute

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/sells-group/extent-cli/internal/extent"
)

type job struct {
	req   Request
	reply chan Response
}

// LocalWorker runs requests on a background goroutine so callers can bound
// them with a context. A computation cannot be interrupted once started; a
// caller that gives up simply never reads the reply.
type LocalWorker struct {
	engine *extent.Engine
	jobs   chan job
	done   chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
}

// NewLocalWorker starts a worker with a queue of the given size.
func NewLocalWorker(engine *extent.Engine, queue int) *LocalWorker {
	if engine == nil {
		engine = extent.NewEngine()
	}
	if queue < 0 {
		queue = 0
	}
	w := &LocalWorker{
		engine: engine,
		jobs:   make(chan job, queue),
		done:   make(chan struct{}),
	}
	w.wg.Add(1)
	go w.loop()
	return w
}

func (w *LocalWorker) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case j := <-w.jobs:
			// reply is buffered; a late response is dropped with the job.
			j.reply <- Handle(w.engine, j.req)
		}
	}
}

// Do implements Transport.
func (w *LocalWorker) Do(ctx context.Context, req Request) (Response, error) {
	j := job{req: req, reply: make(chan Response, 1)}

	select {
	case <-w.done:
		return Response{}, eris.Wrap(ErrTransport, "local worker closed")
	case <-ctx.Done():
		return Response{}, eris.Wrap(ErrTransport, ctx.Err().Error())
	case w.jobs <- j:
	}

	select {
	case resp := <-j.reply:
		return resp, nil
	case <-w.done:
		return Response{}, eris.Wrap(ErrTransport, "local worker closed")
	case <-ctx.Done():
		return Response{}, eris.Wrap(ErrTransport, ctx.Err().Error())
	}
}

// Close stops the worker and waits for an in-progress job to finish.
func (w *LocalWorker) Close() {
	w.once.Do(func() { close(w.done) })
	w.wg.Wait()
}
