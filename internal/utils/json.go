// SPDX-License-Identifier: AGPL-3.0-only
package utils

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
)

// JsonUnmarshal decodes JSON into v after validating the payload. Validation
// up front yields a single clear error instead of a partial decode.
func JsonUnmarshal(data []byte, v interface{}) error {
	if len(data) == 0 {
		return fmt.Errorf("empty JSON payload")
	}
	if !gjson.ValidBytes(data) {
		return fmt.Errorf("invalid JSON payload")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("unmarshal JSON: %w", err)
	}
	return nil
}
