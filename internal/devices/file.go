package devices

import (
	"encoding/json"
	"fmt"
	"os"
)

// File is the on-disk registry format:
//
//	{"devices": [{"address": "4C:65:A8:D0:12:34", "name": "living room",
//	  "topics": {"temperature_fahrenheit": "home/living/temp"}}]}
type File struct {
	Devices []Device `json:"devices"`
}

func LoadFile(path string) (*Registry, error) {
	devices, err := ReadFile(path)
	if err != nil {
		return nil, err
	}
	return NewRegistry(devices)
}

// ReadFile parses the file without validating it.
func ReadFile(path string) ([]Device, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read devices file: %w", err)
	}
	var f File
	if err := json.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse devices file %s: %w", path, err)
	}
	return f.Devices, nil
}
