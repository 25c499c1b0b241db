package fs

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"
)

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// ResponseFileName builds "<route>_<id>_<unix>.json", id characters unsafe for file names become "_"
func ResponseFileName(route, id string, at time.Time) string {
	name := route
	if id != "" {
		name += "_" + unsafeNameChars.ReplaceAllString(id, "_")
	}
	return fmt.Sprintf("%s_%d.json", name, at.Unix())
}

// SaveResponse writes an API payload to outDir/filename as indented JSON
func SaveResponse(outDir, filename string, data json.RawMessage) (string, error) {
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	var jsonData []byte
	if len(data) == 0 {
		jsonData = []byte("null")
	} else {
		var pretty interface{}
		if err := json.Unmarshal(data, &pretty); err != nil {
			return "", fmt.Errorf("failed to unmarshal response: %w", err)
		}
		formatted, err := json.MarshalIndent(pretty, "", "  ")
		if err != nil {
			return "", fmt.Errorf("failed to marshal response: %w", err)
		}
		jsonData = formatted
	}

	fullPath := filepath.Join(outDir, filename)
	if err := os.WriteFile(fullPath, jsonData, 0644); err != nil {
		return "", fmt.Errorf("failed to save response: %w", err)
	}
	return fullPath, nil
}

// LoadJSON reads a JSON document, such as a request body or a file written by SaveResponse
func LoadJSON(path string) (json.RawMessage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read JSON file: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("JSON file %s is empty", path)
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("JSON file %s is not valid JSON", path)
	}
	return json.RawMessage(data), nil
}
