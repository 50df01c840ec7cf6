package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Proc is a long-running goroutine owned by the ProcMgr.
// It should only return once the context has been canceled.
type Proc func(context.Context) error

// ProcMgr is like a fancy implementation of sync.WaitGroup.
type ProcMgr struct {
	procs []Proc
}

func (p *ProcMgr) Add(proc Proc) { p.procs = append(p.procs, proc) }

// Run starts every proc and blocks until all of them have returned.
// A proc returning before the context is done is a programming error.
func (p *ProcMgr) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, proc := range p.procs {
		wg.Add(1)
		go func(proc Proc) {
			defer wg.Done()
			err := proc(ctx)
			if err == nil && ctx.Err() == nil {
				panic("a proc returned unexpectedly!")
			}
			if err != nil && ctx.Err() == nil {
				panic(fmt.Sprintf("proc returned an error: %s", err))
			}
		}(proc)
	}
	wg.Wait()
	slog.Info("all procs have stopped", "count", len(p.procs))
}
