// Package prof captures runtime profiles around a register access workload.
//
// Profiling is compiled in only with the "profile" build tag:
//
//	go build -tags profile ./examples/latency-plot
//
// Without the tag [Start] returns a session that records nothing, so the
// example commands can keep their -cpuprofile style flags at no cost.
//
// # Sessions
//
// A [Session] starts CPU profiling and enables block and mutex sampling
// as requested by [Options]. [Session.Stop] ends CPU profiling and writes
// the snapshot profiles:
//
//	s, err := prof.Start(prof.Options{CPU: "cpu.prof", Block: "block.prof"})
//	if err != nil {
//	    return err
//	}
//	defer s.Stop()
//
// Only one session may be active at a time; a second [Start] returns
// [ErrActive].
package prof
