package mapreduce

import (
	"github.com/spaolacci/murmur3"
)

// Shuffle groups emissions by key equality. Groups come out in first-seen
// key order and values keep their emission order.
func Shuffle(kvs []KeyVal) ([]Group, error) {
	recs := make([]Record, 0, len(kvs))
	for _, kv := range kvs {
		rec, err := EncodeKeyVal(kv)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}

	return groupRecords(recs), nil
}

func groupRecords(recs []Record) []Group {
	index := make(map[string]int, len(recs))
	var groups []Group

	for _, rec := range recs {
		i, ok := index[string(rec.Key)]
		if !ok {
			i = len(groups)
			index[string(rec.Key)] = i
			groups = append(groups, Group{Key: rec.Key})
		}
		groups[i].Vals = append(groups[i].Vals, rec.Val)
	}

	return groups
}

// HashPartition spreads keys over reducers by the murmur3 hash of their
// encoding.
func HashPartition(reducers int) PartitionFunc {
	n := uint64(reducers)
	return func(key Datum) int {
		return int(murmur3.Sum64(key) % n)
	}
}
