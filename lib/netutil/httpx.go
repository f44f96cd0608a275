// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package netutil

import (
	"encoding/json"
	"fmt"
	"io"
)

// MaxResponseSize bounds JSON response reads. Signaling payloads and the
// local address body are a few kilobytes; 1 MiB only stops a broken or
// hostile server from exhausting memory.
const MaxResponseSize int64 = 1 << 20

// DecodeResponse reads at most MaxResponseSize bytes of body and
// JSON-decodes them into v.
func DecodeResponse(body io.Reader, v any) error {
	data, err := io.ReadAll(io.LimitReader(body, MaxResponseSize))
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}
	return json.Unmarshal(data, v)
}

// ErrorBody returns up to MaxResponseSize bytes of an error response for
// use in error messages. Read errors are ignored.
func ErrorBody(body io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(body, MaxResponseSize))
	return string(data)
}
