package statistics

import "time"

const windowSize = 3600

type sample struct {
	bytes    float64
	duration time.Duration
}

// Throughput keeps the most recent transfer samples in a ring.
type Throughput struct {
	dataSeries [windowSize]sample
	currentPos int
	count      int
}

func (tp *Throughput) Add(bytes int64, d time.Duration) {
	tp.currentPos = (tp.currentPos + 1) % windowSize
	tp.dataSeries[tp.currentPos] = sample{bytes: float64(bytes), duration: d}
	if tp.count < windowSize {
		tp.count++
	}
}

// Rate is bytes per second over the recentn latest samples.
func (tp *Throughput) Rate(recentn int) float64 {
	if recentn > tp.count {
		recentn = tp.count
	}
	var sum float64
	var elapsed time.Duration
	pos := 0
	for i := 0; i < recentn; i++ {
		pos = tp.currentPos - i
		if pos < 0 {
			pos += windowSize
		}
		sum += tp.dataSeries[pos].bytes
		elapsed += tp.dataSeries[pos].duration
	}
	if elapsed <= 0 {
		return 0
	}
	return sum / elapsed.Seconds()
}

func (tp *Throughput) Reset() {
	*tp = Throughput{}
}
