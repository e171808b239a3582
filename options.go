package gpudebug

import "runtime/debug"

// DefaultBatchSize is the number of queued records DrainLog requests per call.
const DefaultBatchSize = 100

// Option configures a Processor during Setup.
//
// Example:
//
//	p, err := gpudebug.Setup(host, sink,
//	    gpudebug.WithBatchSize(32),
//	    gpudebug.WithSuppressions(gpudebug.IDBufferMemoryInfo),
//	)
type Option func(*processorOptions)

// processorOptions holds optional configuration for Setup.
type processorOptions struct {
	suppress  SuppressionSet
	batchSize int
	stack     func() string
}

// defaultProcessorOptions returns the default processor options.
func defaultProcessorOptions() processorOptions {
	return processorOptions{
		suppress:  DefaultSuppressions(),
		batchSize: DefaultBatchSize,
		stack:     captureStack,
	}
}

// WithSuppressions replaces the default suppression set with ids.
// Passing no ids disables suppression.
func WithSuppressions(ids ...uint32) Option {
	return func(o *processorOptions) {
		o.suppress = NewSuppressionSet(ids...)
	}
}

// WithBatchSize sets how many records DrainLog requests from the host.
// Values below 1 keep the default.
func WithBatchSize(n int) Option {
	return func(o *processorOptions) {
		if n > 0 {
			o.batchSize = n
		}
	}
}

// WithStackTrace sets the function used to capture the call stack that
// accompanies every forwarded event. A nil function keeps the default.
func WithStackTrace(fn func() string) Option {
	return func(o *processorOptions) {
		if fn != nil {
			o.stack = fn
		}
	}
}

// captureStack returns the current goroutine's stack.
func captureStack() string {
	return string(debug.Stack())
}
