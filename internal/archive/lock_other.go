//go:build !unix

package archive

import "sync"

// Without flock, bundle writes are serialised within the process only.
var (
	locksMu sync.Mutex
	locks   = map[string]*sync.Mutex{}
)

type fileLock struct {
	mu *sync.Mutex
}

func acquire(path string) (*fileLock, error) {
	locksMu.Lock()
	mu, ok := locks[path]
	if !ok {
		mu = &sync.Mutex{}
		locks[path] = mu
	}
	locksMu.Unlock()

	mu.Lock()
	return &fileLock{mu: mu}, nil
}

func (l *fileLock) release() error {
	l.mu.Unlock()
	return nil
}
