// Package locks provides the per-library reader/writer lock.
//
// An RWLock admits any number of concurrent readers or one writer. It is
// built on a weighted semaphore: readers take one unit, writers take the
// whole capacity. The semaphore is FIFO, so a waiting writer holds back
// readers that arrive after it. Acquisition honours context cancellation.
//
// The lock is not reentrant. A goroutine holding the write lock must not
// acquire it again.
//
// A Registry hands out one RWLock per library id. LockPair acquires two
// library write locks in a global order so that opposite-direction
// cross-library operations cannot deadlock.
package locks
