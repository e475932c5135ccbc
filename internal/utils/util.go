package utils

import (
	"encoding/json"
	"fmt"
)

func JsonIndent(v any) (string, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("json indent: %w", err)
	}
	return string(b), nil
}
