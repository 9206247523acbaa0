// Copyright 2025 CascadeDB
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package stopper

import (
	"context"
	"sync"

	"github.com/cascadedb/cascade/pkg/common/cerr"
)

// Stopper manages the background tasks of one component. Tasks receive
// a context that is canceled by Stop, and Stop blocks until every task
// has returned.
type Stopper struct {
	name   string
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu struct {
		sync.Mutex
		stopped bool
	}
}

func NewStopper(name string) *Stopper {
	s := &Stopper{name: name}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s
}

func (s *Stopper) Name() string {
	return s.name
}

// RunTask starts task on a new goroutine. It fails once Stop has been
// called.
func (s *Stopper) RunTask(task func(ctx context.Context)) error {
	s.mu.Lock()
	if s.mu.stopped {
		s.mu.Unlock()
		return cerr.NewInvalidState(s.ctx, "stopper %s already stopped", s.name)
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		task(s.ctx)
	}()
	return nil
}

// Stop cancels all running tasks and waits for them to exit. Calling
// Stop more than once is allowed.
func (s *Stopper) Stop() {
	s.mu.Lock()
	if s.mu.stopped {
		s.mu.Unlock()
		s.wg.Wait()
		return
	}
	s.mu.stopped = true
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
}
