// Package cleanup provides a scoped rollback helper.
//
// Launch and tree operations in this daemon are built from many ordered,
// fallible steps (acquire a cgroup, fork a helper, apply a dirty property
// group). The C original expressed this as `goto err` with hand-placed
// labels; the Go equivalent registers compensating actions as each step
// succeeds and runs them in reverse only if the overall operation fails.
package cleanup

// Cleanup runs a cleanup function unless it is released. Additional
// functions can be registered with Add and are run in LIFO order, most
// recent first, mirroring how `goto err` unwinds the steps that already
// succeeded.
type Cleanup struct {
	cleanup []func()
}

// Make returns a Cleanup that will call f, and any functions subsequently
// added with Add, when Clean is called (unless Release was called first).
func Make(f func()) Cleanup {
	return Cleanup{cleanup: []func(){f}}
}

// Add registers an additional function to run on Clean, ahead of whatever
// was registered before it.
func (c *Cleanup) Add(f func()) {
	c.cleanup = append(c.cleanup, f)
}

// Clean calls all registered functions in reverse registration order,
// unless Release has already been called.
func (c *Cleanup) Clean() {
	for i := len(c.cleanup) - 1; i >= 0; i-- {
		c.cleanup[i]()
	}
	c.cleanup = nil
}

// Release disarms the deferred Clean (so a subsequent error on the calling
// function's return path doesn't undo work that already succeeded) and
// hands the registered functions back to the caller as a single callable,
// still in the same reverse registration order Clean would have used. The
// caller decides if and when to invoke it, typically wiring it into an
// outer scope's own Cleanup via Add.
func (c *Cleanup) Release() func() {
	saved := c.cleanup
	c.cleanup = nil
	return func() {
		for i := len(saved) - 1; i >= 0; i-- {
			saved[i]()
		}
	}
}
