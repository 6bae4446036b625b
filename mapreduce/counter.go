package mapreduce

import (
	"fmt"
	"sync/atomic"
)

// Stats counts what went through one stage of a run.
type Stats struct {
	Stage string

	MapIn, MapOut         atomic.Uint64
	CombineIn, CombineOut atomic.Uint64
	ReduceIn, Groups      atomic.Uint64
	ReduceOut             atomic.Uint64
}

func (s *Stats) String() string {
	return fmt.Sprintf("%s: MapIn: %d, MapOut: %d, CombineIn: %d, CombineOut: %d, ReduceIn: %d, Groups: %d, ReduceOut: %d",
		s.Stage,
		s.MapIn.Load(), s.MapOut.Load(),
		s.CombineIn.Load(), s.CombineOut.Load(),
		s.ReduceIn.Load(), s.Groups.Load(), s.ReduceOut.Load(),
	)
}
