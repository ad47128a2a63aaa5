// Copyright 2025 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

//go:build windows

package vfs

import "context"

// projfsBinding is a placeholder for a Windows Projected File System
// binding. No Go ProjFS library exists in this codebase's dependency set
// (winfsp/cgofuse wraps libfuse/winfsp's C ABI, not the ProjFS API
// directly), so mounting on Windows is not implemented.
type projfsBinding struct{}

// NewBinding returns the platform binding for the running OS.
func NewBinding() Binding { return &projfsBinding{} }

func (*projfsBinding) Mount(ctx context.Context, mountpoint string, client *Client) error {
	return ErrUnsupportedPlatform
}

func (*projfsBinding) Unmount(mountpoint string) error {
	return ErrUnsupportedPlatform
}
