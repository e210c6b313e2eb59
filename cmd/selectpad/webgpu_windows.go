//go:build windows

package main

import _ "github.com/born-ml/selectpad/internal/device/webgpu"
