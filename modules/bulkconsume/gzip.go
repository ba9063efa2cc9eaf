package bulkconsume

import (
	"io"
	"net/http"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// maybeGzip wraps w in a gzip writer when the client advertises support,
// returning the writer to use for the body and a close func to flush and
// release it. The caller must call close before returning from the
// handler.
func maybeGzip(w http.ResponseWriter, r *http.Request) (io.Writer, func() error) {
	if !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
		return w, func() error { return nil }
	}

	w.Header().Set("Content-Encoding", "gzip")
	gz := gzip.NewWriter(w)
	return gz, gz.Close
}
