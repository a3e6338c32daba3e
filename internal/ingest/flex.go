package ingest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// flexInt decodes integers the remote sends as numbers, numeric strings,
// booleans or null. Missing and null values decode to zero.
type flexInt int64

func (f *flexInt) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0, bytes.Equal(data, []byte("null")):
		*f = 0
		return nil
	case bytes.Equal(data, []byte("true")):
		*f = 1
		return nil
	case bytes.Equal(data, []byte("false")):
		*f = 0
		return nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*f = 0
			return nil
		}
		data = []byte(s)
	}

	if n, err := strconv.ParseInt(string(data), 10, 64); err == nil {
		*f = flexInt(n)
		return nil
	}
	// Whole numbers sometimes arrive as 3.0.
	fl, err := strconv.ParseFloat(string(data), 64)
	if err != nil || fl != float64(int64(fl)) {
		return fmt.Errorf("not an integer: %s", data)
	}
	*f = flexInt(int64(fl))
	return nil
}

// flexString decodes strings, tolerating numbers and null.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	*f = flexString(data)
	return nil
}
