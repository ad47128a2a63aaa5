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

package vfs

import (
	"context"
	"errors"
)

// ErrUnsupportedPlatform is returned by a Binding that has no real
// implementation on the running OS (Windows: this codebase has no ProjFS
// binding; see binding_windows.go).
var ErrUnsupportedPlatform = errors.New("vfs: no filesystem binding for this platform")

// Binding is the capability set spec §4.I's "Polymorphism" note
// describes: {attr callback, dir callback, read callback,
// invalidate-cache callback}. Each OS binding adapts the platform's
// actual filesystem-in-userspace API to calls against a *Client.
type Binding interface {
	// Mount attaches mountpoint to client and blocks until the mount is
	// torn down (by Unmount or an external unmount of mountpoint).
	Mount(ctx context.Context, mountpoint string, client *Client) error

	// Unmount requests that a Mount call in progress return.
	Unmount(mountpoint string) error
}
