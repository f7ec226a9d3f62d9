/*
Copyright 2026 The SkyServ Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package servenv

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHooksFireOnce(t *testing.T) {
	var h hooks
	var count int64
	for i := 0; i < 5; i++ {
		h.Add(func() { atomic.AddInt64(&count, 1) })
	}
	h.Fire()
	assert.Equal(t, int64(5), atomic.LoadInt64(&count))

	// A second fire is a no-op.
	h.Fire()
	assert.Equal(t, int64(5), atomic.LoadInt64(&count))
}

func TestHooksEmptyFire(t *testing.T) {
	var h hooks
	h.Fire()
}
