package handlers

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
)

const mimeMsgpack = "application/msgpack"

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// respond writes v as msgpack when the client asks for it and JSON otherwise.
// msgpack reuses the json field names.
func respond(w http.ResponseWriter, r *http.Request, status int, v any) {
	if !wantsMsgpack(r) {
		writeJSON(w, status, v)
		return
	}

	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	if err := enc.Encode(v); err != nil {
		writeError(w, nil, NewInternalError("encode msgpack: "+err.Error()))
		return
	}
	w.Header().Set("Content-Type", mimeMsgpack)
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

func wantsMsgpack(r *http.Request) bool {
	for _, part := range strings.Split(r.Header.Get("Accept"), ",") {
		mt := strings.TrimSpace(strings.SplitN(part, ";", 2)[0])
		if mt == mimeMsgpack || mt == "application/x-msgpack" {
			return true
		}
	}
	return false
}

func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	apiErr := errorFor(err)
	if logger != nil && apiErr.Status >= http.StatusInternalServerError {
		logger.Error("request failed", "code", apiErr.Code, "err", err)
	}
	writeJSON(w, apiErr.Status, apiErr)
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return NewBadRequestError("invalid request body", err.Error())
	}
	return nil
}
