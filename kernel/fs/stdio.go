package fs

// Console is the character device behind stdin and stdout.
type Console interface {
	Write(p []byte) (int, error)
	// TryRead returns the next input byte if one is pending.
	TryRead() (byte, bool)
}

// Stdin reads whatever console input is pending.
type Stdin struct {
	con Console
}

// NewStdin returns the stdin file for con.
func NewStdin(con Console) *Stdin { return &Stdin{con: con} }

func (s *Stdin) Readable() bool { return true }
func (s *Stdin) Writable() bool { return false }

func (s *Stdin) Read(buf UserBuffer) (int, error) {
	n := 0
	for _, p := range buf.Buffers {
		for i := range p {
			c, ok := s.con.TryRead()
			if !ok {
				if n == 0 {
					return 0, ErrEmpty
				}
				return n, nil
			}
			p[i] = c
			n++
		}
	}
	return n, nil
}

func (s *Stdin) Write(UserBuffer) (int, error) { return 0, ErrNotWritable }
func (s *Stdin) IsFull() bool                  { return false }
func (s *Stdin) IsEmpty() bool                 { return false }
func (s *Stdin) Retain()                       {}
func (s *Stdin) Release()                      {}

// Stdout passes bytes straight to the console.
type Stdout struct {
	con Console
}

// NewStdout returns the stdout file for con.
func NewStdout(con Console) *Stdout { return &Stdout{con: con} }

func (s *Stdout) Readable() bool { return false }
func (s *Stdout) Writable() bool { return true }

func (s *Stdout) Read(UserBuffer) (int, error) { return 0, ErrNotReadable }

func (s *Stdout) Write(buf UserBuffer) (int, error) {
	n := 0
	for _, p := range buf.Buffers {
		c, err := s.con.Write(p)
		n += c
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

func (s *Stdout) IsFull() bool  { return false }
func (s *Stdout) IsEmpty() bool { return true }
func (s *Stdout) Retain()       {}
func (s *Stdout) Release()      {}
