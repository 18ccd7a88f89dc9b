package main

import (
	"encoding/json"
	"io"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dgnsrekt/votestream"
)

// newClient builds a client from the loaded config. reg may be nil.
func newClient(reg prometheus.Registerer) (*votestream.Client, error) {
	return votestream.New(cfg.Options(logger, reg))
}

// printResult writes the result value as indented JSON or returns its
// failure message as an error.
func printResult[T any](w io.Writer, res votestream.Result[T]) error {
	v, err := res.Unwrap()
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// eventLine is one line of `listen` output.
type eventLine struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}
