// Package workerpool provides a fixed-size pool of goroutines draining a
// FIFO task queue.
//
// The dispatch loop submits inbound device calls here so that slow driver
// callbacks never block bus reading.
//
//	pool, err := workerpool.New(4)
//	if err != nil {
//	    return err
//	}
//	defer pool.Shutdown()
//
//	pool.Submit(func() { handle(msg) })
package workerpool
