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

package deviceio

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/quickcommanddeck/deckbridge/pkg/protocol"
	"github.com/quickcommanddeck/deckbridge/pkg/service/broker"
	"github.com/quickcommanddeck/deckbridge/pkg/service/queue"
	"github.com/quickcommanddeck/deckbridge/pkg/testing/helpers"
	"github.com/quickcommanddeck/deckbridge/pkg/testing/mocks"
	"github.com/quickcommanddeck/deckbridge/pkg/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fixture struct {
	tr       *helpers.FakeTransport
	inbound  *queue.Queue[protocol.ButtonEvent]
	outbound *queue.Queue[protocol.DisplayMessage]
	clock    *clockwork.FakeClock
	loop     *Loop
}

func newFixture(t *testing.T, staleCycles int) *fixture {
	t.Helper()
	f := &fixture{
		tr:       helpers.NewFakeTransport(),
		inbound:  queue.New[protocol.ButtonEvent]("inbound"),
		outbound: queue.New[protocol.DisplayMessage]("outbound"),
		clock:    clockwork.NewFakeClock(),
	}
	f.loop = New(Options{
		Transport:   f.tr,
		Inbound:     f.inbound,
		Outbound:    f.outbound,
		Clock:       f.clock,
		StaleCycles: staleCycles,
	})
	return f
}

func (f *fixture) drainInbound() []uint32 {
	var got []uint32
	for {
		ev, ok := f.inbound.TryPop()
		if !ok {
			return got
		}
		got = append(got, ev.Number)
	}
}

func button(n uint32) []byte {
	return protocol.EncodeButtonEvent(protocol.ButtonEvent{Number: n})
}

func TestNew_Defaults(t *testing.T) {
	t.Parallel()

	l := New(Options{Transport: helpers.NewFakeTransport()})

	assert.Equal(t, DefaultPollInterval, l.poll)
	assert.Equal(t, DefaultStaleCycles, l.stale)
	assert.NotNil(t, l.clock)
}

func TestStep_DecodesBackToBackFrames(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 0)
	var in []byte
	in = append(in, button(1)...)
	in = append(in, button(300)...)
	in = append(in, button(0)...)
	f.tr.Feed(in...)

	require.NoError(t, f.loop.Step())

	assert.Equal(t, []uint32{1, 300, 0}, f.drainInbound())
	assert.Equal(t, uint64(3), f.loop.Stats().FramesIn)
	assert.Zero(t, f.tr.Discards())
}

func TestStep_PartialFrameCompletesNextCycle(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 0)
	frame := button(200) // 0x08 0xc8 0x01
	require.Len(t, frame, 3)

	f.tr.Feed(frame[:2]...)
	require.NoError(t, f.loop.Step())
	assert.Empty(t, f.drainInbound())

	f.tr.Feed(frame[2:]...)
	require.NoError(t, f.loop.Step())
	assert.Equal(t, []uint32{200}, f.drainInbound())
	assert.Zero(t, f.tr.Discards())
}

func TestStep_FrameThenPartialTail(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 0)
	second := button(7)
	f.tr.Feed(append(button(4), second[0])...)

	require.NoError(t, f.loop.Step())
	assert.Equal(t, []uint32{4}, f.drainInbound())

	f.tr.Feed(second[1:]...)
	require.NoError(t, f.loop.Step())
	assert.Equal(t, []uint32{7}, f.drainInbound())
}

func TestStep_StalePartialFrameDiscarded(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 3)
	f.tr.Feed(0x08)

	for range 2 {
		require.NoError(t, f.loop.Step())
	}
	assert.Zero(t, f.tr.Discards())

	require.NoError(t, f.loop.Step())
	assert.Equal(t, 1, f.tr.Discards())
	assert.Equal(t, uint64(1), f.loop.Stats().Discards)

	// the dropped tag byte must not be glued onto the next frame
	f.tr.Feed(button(9)...)
	require.NoError(t, f.loop.Step())
	assert.Equal(t, []uint32{9}, f.drainInbound())
}

func TestStep_MalformedInputDiscarded(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 0)
	// field 2 length-delimited: not a ButtonPushed frame
	f.tr.Feed(0x12, 0x00, 0x08, 0x01)

	require.NoError(t, f.loop.Step())

	assert.Empty(t, f.drainInbound())
	assert.Equal(t, 1, f.tr.Discards())
	assert.Zero(t, f.tr.Pending())

	// the loop keeps going
	f.tr.Feed(button(3)...)
	require.NoError(t, f.loop.Step())
	assert.Equal(t, []uint32{3}, f.drainInbound())
}

func TestStep_ValidFramesBeforeGarbageAreKept(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 0)
	f.tr.Feed(append(button(5), 0xff, 0xff)...)

	require.NoError(t, f.loop.Step())

	// 0xff 0xff is an incomplete varint tag, so it waits for more bytes
	assert.Equal(t, []uint32{5}, f.drainInbound())
	assert.Zero(t, f.tr.Discards())
}

func TestStep_WritesOneMessagePerCycle(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 0)
	first := protocol.DisplayMessage{Lines: []string{"Done"}, Brightness: 255, DurationMS: 500}
	second := protocol.DisplayMessage{Lines: []string{"hello", "world"}, Brightness: 10}
	f.outbound.Push(first)
	f.outbound.Push(second)

	require.NoError(t, f.loop.Step())
	require.Len(t, f.tr.Written(), 1)
	assert.Equal(t, 1, f.outbound.Len())

	require.NoError(t, f.loop.Step())
	written := f.tr.Written()
	require.Len(t, written, 2)

	got0, err := protocol.DecodeDisplayMessage(written[0])
	require.NoError(t, err)
	assert.Equal(t, first, got0)

	got1, err := protocol.DecodeDisplayMessage(written[1])
	require.NoError(t, err)
	assert.Equal(t, second, got1)
	assert.Equal(t, uint64(2), f.loop.Stats().FramesOut)
}

func TestStep_ReportsSentDisplays(t *testing.T) {
	t.Parallel()

	events := make(chan broker.Event, 4)
	tr := helpers.NewFakeTransport()
	outbound := queue.New[protocol.DisplayMessage]("outbound")
	loop := New(Options{
		Transport: tr,
		Inbound:   queue.New[protocol.ButtonEvent]("inbound"),
		Outbound:  outbound,
		Clock:     clockwork.NewFakeClock(),
		Events:    events,
	})

	outbound.Push(protocol.DisplayMessage{Lines: []string{"x"}, Brightness: 300})
	outbound.Push(protocol.DisplayMessage{Lines: []string{"Done"}})

	require.NoError(t, loop.Step())
	require.NoError(t, loop.Step())

	require.Len(t, events, 1)
	ev := <-events
	assert.Equal(t, broker.DisplaySent, ev.Kind)
	assert.Equal(t, []string{"Done"}, ev.Lines)
}

func TestStep_UnencodableMessageDropped(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 0)
	f.outbound.Push(protocol.DisplayMessage{Lines: []string{"x"}, Brightness: 300})
	f.outbound.Push(protocol.DisplayMessage{Lines: []string{"ok"}})

	require.NoError(t, f.loop.Step())
	assert.Empty(t, f.tr.Written())
	assert.Equal(t, uint64(1), f.loop.Stats().Dropped)

	require.NoError(t, f.loop.Step())
	assert.Len(t, f.tr.Written(), 1)
}

func TestStep_WriteErrorNotRetried(t *testing.T) {
	t.Parallel()

	tr := &mocks.MockTransport{}
	tr.On("Available").Return(0, nil)
	tr.On("Write", mock.Anything).Return(errors.New("resource temporarily unavailable")).Once()

	outbound := queue.New[protocol.DisplayMessage]("outbound")
	outbound.Push(protocol.DisplayMessage{Lines: []string{"lost"}})

	l := New(Options{
		Transport: tr,
		Inbound:   queue.New[protocol.ButtonEvent]("inbound"),
		Outbound:  outbound,
	})

	require.NoError(t, l.Step())
	require.NoError(t, l.Step())

	assert.Zero(t, outbound.Len())
	tr.AssertNumberOfCalls(t, "Write", 1)
	tr.AssertExpectations(t)
}

func TestStep_ReadErrorsAreLogged(t *testing.T) {
	t.Parallel()

	tr := &mocks.MockTransport{}
	tr.On("Available").Return(4, nil)
	tr.On("ReadInto", mock.Anything).Return(nil, transport.ErrTimeout).Once()
	tr.On("ReadInto", mock.Anything).Return(nil, errors.New("interrupted system call")).Once()

	l := New(Options{
		Transport: tr,
		Inbound:   queue.New[protocol.ButtonEvent]("inbound"),
		Outbound:  queue.New[protocol.DisplayMessage]("outbound"),
	})

	require.NoError(t, l.Step())
	require.NoError(t, l.Step())
	tr.AssertExpectations(t)
}

func TestStep_DisconnectIsFatal(t *testing.T) {
	t.Parallel()

	tests := []struct {
		set  func(*helpers.FakeTransport)
		name string
	}{
		{
			name: "poll",
			set: func(tr *helpers.FakeTransport) {
				tr.SetAvailableError(transport.ErrDisconnected)
			},
		},
		{
			name: "read",
			set: func(tr *helpers.FakeTransport) {
				tr.Feed(0x08)
				tr.SetReadError(errors.New("read /dev/ttyUSB0: input/output error"))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t, 0)
			tt.set(f.tr)

			err := f.loop.Step()
			require.ErrorIs(t, err, transport.ErrDisconnected)
		})
	}
}

func TestStep_WriteDisconnectIsFatal(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 0)
	f.tr.SetWriteError(transport.ErrDisconnected)
	f.outbound.Push(protocol.DisplayMessage{Lines: []string{"bye"}})

	require.ErrorIs(t, f.loop.Step(), transport.ErrDisconnected)
}

func TestRun_PollsUntilCancelled(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 0)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- f.loop.Run(ctx)
	}()

	// first cycle done, loop parked on the poll timer
	require.NoError(t, f.clock.BlockUntilContext(ctx, 1))

	f.tr.Feed(button(2)...)
	f.clock.Advance(DefaultPollInterval)

	popCtx, popCancel := context.WithTimeout(ctx, 5*time.Second)
	defer popCancel()
	ev, err := f.inbound.Pop(popCtx)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), ev.Number)

	cancel()
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("loop did not stop after cancel")
	}
}

func TestRun_ReturnsOnDisconnect(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 0)
	f.tr.SetAvailableError(transport.ErrDisconnected)

	err := f.loop.Run(context.Background())
	require.ErrorIs(t, err, transport.ErrDisconnected)
}
