// Copyright 2025 SPDX-FileCopyrightText: SAP SE or an SAP affiliate company and Gardener contributors
// SPDX-License-Identifier: Apache-2.0

package dispatch

import "sync"

// workerPool runs submitted jobs on a fixed number of goroutines. It
// stands in for the source material's worker-thread pool that an instance
// with tp_workers > 0 offloads its flush bodies to; jobs queue in a
// 256-slot buffer, and submit blocks only once that buffer is full.
type workerPool struct {
	jobs chan func()
	once sync.Once
	n    int
}

func newWorkerPool(n int) *workerPool {
	if n < 1 {
		n = 1
	}
	p := &workerPool{jobs: make(chan func(), 256), n: n}
	return p
}

func (p *workerPool) start() {
	p.once.Do(func() {
		for i := 0; i < p.n; i++ {
			go func() {
				for job := range p.jobs {
					job()
				}
			}()
		}
	})
}

func (p *workerPool) submit(job func()) {
	p.start()
	p.jobs <- job
}
