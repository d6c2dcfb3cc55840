package event

import "time"

// WorldBuilt is published when the lifecycle machine finishes the bulk
// placement pass.
type WorldBuilt struct {
	WorldName string
	Columns   int32
	Rows      int32
}

// PlaybackFinished is published exactly once per run when the lifecycle
// machine enters its terminal state.
type PlaybackFinished struct {
	WorldName     string
	Passed        bool
	GemsCollected int
	SwitchesOpen  int
	Commands      int
	Duration      time.Duration
}
