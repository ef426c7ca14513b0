package kernel

import (
	"math"

	"github.com/hashicorp/go-hclog"

	"strideos/kernel/hart"
)

// Manager is the stride scheduler. It owns the task arena and the index of
// the task on the hart.
type Manager struct {
	hart    *hart.Hart
	log     hclog.Logger
	slots   []*TaskControlBlock
	current int
	init    *TaskControlBlock
	pids    pidAllocator
}

// NewManager returns a scheduler with room for capacity tasks, switching
// through h.
func NewManager(h *hart.Hart, capacity int, log hclog.Logger) *Manager {
	return &Manager{
		hart:    h,
		log:     log,
		slots:   make([]*TaskControlBlock, capacity),
		current: -1,
	}
}

// Add places t in the lowest free slot. The first task added becomes the
// init task that adopts orphans.
func (m *Manager) Add(t *TaskControlBlock) (int, error) {
	for i, s := range m.slots {
		if s != nil {
			continue
		}
		m.slots[i] = t
		t.refs++
		if m.init == nil {
			m.init = t
		}
		m.log.Debug("add task", "pid", t.pid, "name", t.name, "slot", i)
		return i, nil
	}
	return -1, ErrTooManyTasks
}

// Current returns the task on the hart, or nil before the first switch.
func (m *Manager) Current() *TaskControlBlock {
	if m.current < 0 {
		return nil
	}
	return m.slots[m.current]
}

// Lookup finds a task in the arena by pid.
func (m *Manager) Lookup(pid int) *TaskControlBlock {
	for _, t := range m.slots {
		if t != nil && t.pid == pid {
			return t
		}
	}
	return nil
}

// Tasks returns the occupied slots in index order.
func (m *Manager) Tasks() []*TaskControlBlock {
	out := make([]*TaskControlBlock, 0, len(m.slots))
	for _, t := range m.slots {
		if t != nil {
			out = append(out, t)
		}
	}
	return out
}

// RunFirstTask switches into slot 0.
func (m *Manager) RunFirstTask() error {
	t := m.slots[0]
	if t == nil {
		return ErrNoRunnableTask
	}
	in := t.Exclusive()
	if in.status != Ready {
		t.Release()
		return ErrNoRunnableTask
	}
	in.status = Running
	next := &in.cx
	t.Release()

	m.current = 0
	m.log.Debug("run first task", "pid", t.pid, "name", t.name)
	m.hart.Switch(nil, next)
	return nil
}

// FindNextTask picks the Ready task with the smallest stride, lowest slot
// first on ties, and advances its stride by BigStride/priority.
func (m *Manager) FindNextTask() (int, bool) {
	best := -1
	var bestStride uint64
	for i, t := range m.slots {
		if t == nil {
			continue
		}
		in := t.Exclusive()
		status, stride := in.status, in.stride
		t.Release()
		if status != Ready {
			continue
		}
		if best < 0 || stride < bestStride {
			best, bestStride = i, stride
		}
	}
	if best < 0 {
		return -1, false
	}

	t := m.slots[best]
	in := t.Exclusive()
	in.stride = addStride(in.stride, in.priority)
	t.Release()
	return best, true
}

// addStride returns stride advanced by BigStride/priority, saturating at the
// top of the range. The pass is at least one.
func addStride(stride uint64, priority int64) uint64 {
	if priority <= 0 {
		priority = 1
	}
	pass := BigStride / uint64(priority)
	if pass == 0 {
		pass = 1
	}
	if stride > math.MaxUint64-pass {
		return math.MaxUint64
	}
	return stride + pass
}

// RunNextTask switches from the current task to the next one chosen by
// FindNextTask. The caller must already have set the current task's status.
func (m *Manager) RunNextTask() error {
	prev := m.current
	next, ok := m.FindNextTask()
	if !ok {
		if prev >= 0 {
			m.retire(prev)
		}
		return ErrNoRunnableTask
	}

	nt := m.slots[next]
	in := nt.Exclusive()
	in.status = Running
	nextCx := &in.cx
	nt.Release()

	var prevCx *hart.TaskContext
	if prev >= 0 && m.slots[prev] != nil {
		pt := m.slots[prev]
		pin := pt.Exclusive()
		prevCx = &pin.cx
		pt.Release()
	}

	m.current = next
	m.hart.Switch(prevCx, nextCx)
	if prev >= 0 && prev != next {
		m.retire(prev)
	}
	return nil
}

// MarkCurrentSuspended returns the current task to the Ready set.
func (m *Manager) MarkCurrentSuspended() {
	t := m.Current()
	in := t.Exclusive()
	in.status = Ready
	t.Release()
}

// MarkCurrentExited records code and tears the current task down. It becomes
// a Zombie awaiting waitpid if its parent is alive, and Exited otherwise.
// Its children are handed to the init task.
func (m *Manager) MarkCurrentExited(code int32) {
	t := m.Current()
	in := t.Exclusive()
	in.exitCode = code
	if in.parent != nil {
		in.status = Zombie
	} else {
		in.status = Exited
	}
	status := in.status
	fds := in.fds
	in.fds = nil
	children := in.children
	in.children = nil
	t.Release()

	for _, f := range fds {
		if f != nil {
			f.Release()
		}
	}
	m.log.Debug("task exited", "pid", t.pid, "code", code, "status", status)
	m.adopt(t, children)
}

// adopt moves orphans to the init task. Without a live init task they are
// left parentless, and those already dead are destroyed.
func (m *Manager) adopt(from *TaskControlBlock, children []*TaskControlBlock) {
	if len(children) == 0 {
		return
	}
	heir := m.init
	if heir == from || heir == nil || heir.Status().terminal() {
		heir = nil
	}
	for _, c := range children {
		cin := c.Exclusive()
		cin.parent = heir
		dead := cin.status == Zombie
		if heir == nil && dead {
			cin.status = Exited
		}
		c.Release()

		if heir != nil {
			hin := heir.Exclusive()
			hin.children = append(hin.children, c)
			heir.Release()
			continue
		}
		m.drop(c)
	}
}

// retire clears the slot of a task that left the hart for good.
func (m *Manager) retire(slot int) {
	t := m.slots[slot]
	if t == nil || !t.Status().terminal() {
		return
	}
	m.slots[slot] = nil
	m.drop(t)
}

// drop releases one owning reference and destroys t with the last one.
func (m *Manager) drop(t *TaskControlBlock) {
	t.refs--
	if t.refs > 0 {
		return
	}
	m.destroy(t)
}

func (m *Manager) destroy(t *TaskControlBlock) {
	in := t.Exclusive()
	in.space = nil
	in.cx = hart.TaskContext{}
	in.trap = nil
	t.Release()
	m.pids.dealloc(t.pid)
	m.log.Debug("task destroyed", "pid", t.pid)
}

// SetPriority sets the current task's priority. Values outside
// [1, MaxPriority] are refused.
func (m *Manager) SetPriority(p int64) bool {
	if p <= 0 || p > MaxPriority {
		return false
	}
	t := m.Current()
	in := t.Exclusive()
	in.priority = p
	t.Release()
	return true
}
