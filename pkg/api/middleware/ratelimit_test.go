// Deck Bridge
// Copyright (c) 2026 The Quick Command Deck Contributors.
// SPDX-License-Identifier: GPL-3.0-or-later
//
// This file is part of Deck Bridge.
//
// Deck Bridge is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Deck Bridge is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with Deck Bridge.  If not, see <http://www.gnu.org/licenses/>.

package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIPRateLimiter_Burst(t *testing.T) {
	t.Parallel()

	limiter := NewIPRateLimiter(60, clockwork.NewFakeClock())

	for i := range MaxBurst {
		assert.True(t, limiter.Allow("192.168.1.100"), "request %d within burst", i+1)
	}
	assert.False(t, limiter.Allow("192.168.1.100"))
	assert.True(t, limiter.Allow("192.168.1.101"), "other IPs have their own bucket")
}

func TestIPRateLimiter_RefillsWithClock(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClock()
	limiter := NewIPRateLimiter(60, clock)

	for range MaxBurst {
		limiter.Allow("10.0.0.1")
	}
	require.False(t, limiter.Allow("10.0.0.1"))

	clock.Advance(time.Second)
	assert.True(t, limiter.Allow("10.0.0.1"))
	assert.False(t, limiter.Allow("10.0.0.1"))
}

func TestIPRateLimiter_SmallLimitCapsBurst(t *testing.T) {
	t.Parallel()

	limiter := NewIPRateLimiter(2, clockwork.NewFakeClock())

	assert.True(t, limiter.Allow("::1"))
	assert.True(t, limiter.Allow("::1"))
	assert.False(t, limiter.Allow("::1"))
}

func TestIPRateLimiter_SameIPReuse(t *testing.T) {
	t.Parallel()

	limiter := NewIPRateLimiter(60, nil)

	assert.Same(t, limiter.GetLimiter("192.168.1.100"), limiter.GetLimiter("192.168.1.100"))
	assert.Equal(t, 1, limiter.Len())
}

func TestIPRateLimiter_Cleanup(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClock()
	limiter := NewIPRateLimiter(60, clock)

	limiter.GetLimiter("10.0.0.1")
	clock.Advance(6 * time.Minute)
	limiter.GetLimiter("10.0.0.2")
	clock.Advance(5 * time.Minute)

	limiter.Cleanup()

	assert.Equal(t, 1, limiter.Len())
}

func TestIPRateLimiter_StartCleanup(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClock()
	limiter := NewIPRateLimiter(60, clock)
	limiter.GetLimiter("10.0.0.1")

	ctx, cancel := context.WithCancel(context.Background())
	done := limiter.StartCleanup(ctx)

	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(15 * time.Minute)

	require.Eventually(t, func() bool {
		return limiter.Len() == 0
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	<-done
}

func TestHTTPRateLimitMiddleware(t *testing.T) {
	t.Parallel()

	limiter := NewIPRateLimiter(1, clockwork.NewFakeClock())
	handler := HTTPRateLimitMiddleware(limiter)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	send := func() int {
		req := httptest.NewRequest(http.MethodPost, "/api/display", http.NoBody)
		req.RemoteAddr = "127.0.0.1:50000"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusNoContent, send())
	assert.Equal(t, http.StatusTooManyRequests, send())
}
