package kernel

import "fmt"

// pidAllocator reuses freed pids before minting new ones.
type pidAllocator struct {
	next     int
	recycled []int
}

func (a *pidAllocator) alloc() int {
	if n := len(a.recycled); n > 0 {
		pid := a.recycled[n-1]
		a.recycled = a.recycled[:n-1]
		return pid
	}
	pid := a.next
	a.next++
	return pid
}

func (a *pidAllocator) dealloc(pid int) {
	if pid < 0 || pid >= a.next {
		panic(fmt.Errorf("kernel: pid %d was never allocated", pid))
	}
	for _, p := range a.recycled {
		if p == pid {
			panic(fmt.Errorf("kernel: pid %d freed twice", pid))
		}
	}
	a.recycled = append(a.recycled, pid)
}
