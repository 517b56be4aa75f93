package prof

import "flag"

// Options names the output file of each profile to capture. Empty paths
// are skipped.
type Options struct {
	CPU   string
	Heap  string
	Block string
	Mutex string
}

// Any reports whether at least one profile is requested.
func (o Options) Any() bool {
	return o.CPU != "" || o.Heap != "" || o.Block != "" || o.Mutex != ""
}

// RegisterFlags adds -cpuprofile, -memprofile, -blockprofile and
// -mutexprofile to fs, storing the paths in o.
func (o *Options) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&o.CPU, "cpuprofile", "", "write a CPU profile to `file`")
	fs.StringVar(&o.Heap, "memprofile", "", "write a heap profile to `file`")
	fs.StringVar(&o.Block, "blockprofile", "", "write a block profile to `file`")
	fs.StringVar(&o.Mutex, "mutexprofile", "", "write a mutex profile to `file`")
}
