package realtime

type replayEntry struct {
	id   uint64
	room string
	typ  string
	data []byte
}

// replayRing keeps the most recent delivered events. Ids are contiguous, so
// the ring always covers (last-len, last].
type replayRing struct {
	buf  []replayEntry
	head int // index of the oldest entry
	n    int
	last uint64
}

func newReplayRing(size int) *replayRing {
	return &replayRing{buf: make([]replayEntry, size)}
}

func (r *replayRing) add(e replayEntry) {
	r.last = e.id
	if len(r.buf) == 0 {
		return
	}
	if r.n < len(r.buf) {
		r.buf[(r.head+r.n)%len(r.buf)] = e
		r.n++
		return
	}
	r.buf[r.head] = e
	r.head = (r.head + 1) % len(r.buf)
}

// since returns entries after id in rooms. ok is false when id is older
// than the ring or newer than anything delivered, in which case the caller
// cannot be brought up to date by replay alone.
func (r *replayRing) since(id uint64, rooms map[string]struct{}) ([]replayEntry, bool) {
	if id > r.last {
		return nil, false
	}
	oldest := r.last - uint64(r.n) + 1
	if id+1 < oldest {
		return nil, false
	}

	var out []replayEntry
	for i := range r.n {
		e := r.buf[(r.head+i)%len(r.buf)]
		if e.id <= id {
			continue
		}
		if _, ok := rooms[e.room]; ok {
			out = append(out, e)
		}
	}
	return out, true
}

func (r *replayRing) len() int { return r.n }
