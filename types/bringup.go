package types

type BringupStates int

const (
	Idle BringupStates = iota + 1
	Opening
	Erasing
	Writing
	Verifying
	Starting
	Running
	Failed
)

func (s BringupStates) String() string {
	switch s {
	case Idle:
		return "idle"
	case Opening:
		return "opening"
	case Erasing:
		return "erasing"
	case Writing:
		return "writing"
	case Verifying:
		return "verifying"
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

type BringupStatus struct {
	Status     BringupStates `json:"status"`
	State      string        `json:"state"`
	Bitstream  string        `json:"bitstream"`
	Size       int64         `json:"size"`
	Written    int64         `json:"written"`
	Digest     string        `json:"digest"`
	Throughput float64       `json:"throughput"`
	FlashID    string        `json:"flashid"`
	ClockHz    int           `json:"clockhz"`
	Error      string        `json:"error,omitempty"`
	Started    int64         `json:"started"`
	Finished   int64         `json:"finished"`
	Runs       int           `json:"runs"`
}

type IceflashStatus struct {
	Status *BringupStatus `json:"status"`
	Time   int64          `json:"time"`
}
