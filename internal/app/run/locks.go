package run

import (
	"path/filepath"
	"sync"
)

// dirLocks 是进程内按影片目录的互斥：同一目录上的重命名与写盘串行执行。
// 条目按引用计数回收，不会随目录数量无限增长。
type dirLocks struct {
	mu sync.Mutex
	m  map[string]*dirLock
}

type dirLock struct {
	mu   sync.Mutex
	refs int
}

var movieDirs = &dirLocks{m: map[string]*dirLock{}}

func (l *dirLocks) lock(dir string) (unlock func()) {
	key := filepath.Clean(dir)

	l.mu.Lock()
	e := l.m[key]
	if e == nil {
		e = &dirLock{}
		l.m[key] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()

		l.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(l.m, key)
		}
		l.mu.Unlock()
	}
}

func (l *dirLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.m)
}
