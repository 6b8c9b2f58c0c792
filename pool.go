package thor

import "sync"

// bufferedResponseWriterPool recycles bufferedResponseWriter instances
// across TimeoutMiddleware and MinifyGas, both of which allocate one per
// request to hold a handler's output until it is safe to flush. Adapted
// from air's Pool, narrowed to the one object type this module actually
// buffers per request — Request and Response here carry per-request maps
// (PathParams, State) that make a generic reset-and-reuse pool error-prone,
// so only the buffer, which is always fully overwritten before reuse, is
// pooled.
var bufferedResponseWriterPool = sync.Pool{
	New: func() interface{} {
		return newBufferedResponseWriter()
	},
}

func acquireBufferedResponseWriter() *bufferedResponseWriter {
	return bufferedResponseWriterPool.Get().(*bufferedResponseWriter)
}

func releaseBufferedResponseWriter(b *bufferedResponseWriter) {
	b.header = make(map[string][]string)
	b.status = 200
	b.body.Reset()
	b.wroteHeader = false
	bufferedResponseWriterPool.Put(b)
}
