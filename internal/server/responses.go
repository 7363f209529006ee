package server

import (
	"net/http"

	"github.com/bryan-buckman/infovore/internal/atom"
	"github.com/bryan-buckman/infovore/internal/feedworker"
)

const headerCache = "X-Cache"

// writeResponse maps a worker outcome onto the HTTP response.
func writeResponse(w http.ResponseWriter, resp feedworker.Response) {
	switch resp.Outcome {
	case feedworker.OutcomeParseFailure:
		http.Error(w, "Invalid query string: "+errText(resp.Err), http.StatusBadRequest)
	case feedworker.OutcomeCacheHit:
		writeFeed(w, "HIT", resp.Body)
	case feedworker.OutcomeGenerated:
		writeFeed(w, "MISS", resp.Body)
	default:
		// Details are logged by the worker.
		http.Error(w, "Failed to produce feed", http.StatusInternalServerError)
	}
}

func writeFeed(w http.ResponseWriter, cache string, body []byte) {
	w.Header().Set("Content-Type", atom.ContentType)
	w.Header().Set(headerCache, cache)
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

func errText(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}
