//go:build !linux

package ble

import (
	"context"
	"fmt"
)

type HCISource struct {
	adapter string
}

func NewHCISource(adapter string) *HCISource {
	return &HCISource{adapter: adapter}
}

func (s *HCISource) Run(context.Context, func(Advertisement)) error {
	return fmt.Errorf("hci source (%s): raw HCI sockets are only available on linux", s.adapter)
}
