package notify

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/ctxbridge/internal/clip"
)

type inbox struct {
	msgs []Message
	err  error
}

func (b *inbox) receive(_ context.Context, msg Message) error {
	b.msgs = append(b.msgs, msg)
	return b.err
}

func TestSend_MissingReceiverIsNotAnError(t *testing.T) {
	r := NewRelay(nil)
	assert.False(t, r.Send(context.Background(), SurfacePanel, Message{Kind: KindClipAdded}))
}

func TestSend_PointToPoint(t *testing.T) {
	r := NewRelay(nil)
	var panel, tab inbox
	r.Register(SurfacePanel, panel.receive)
	r.Register(TabSurface("7"), tab.receive)

	assert.True(t, r.Send(context.Background(), TabSurface("7"), Message{Kind: KindParsePage}))
	assert.Len(t, tab.msgs, 1)
	assert.Empty(t, panel.msgs)
}

func TestSend_ReceiverErrorSwallowed(t *testing.T) {
	r := NewRelay(nil)
	box := &inbox{err: stderrors.New("closed")}
	r.Register(SurfacePanel, box.receive)

	assert.False(t, r.Send(context.Background(), SurfacePanel, Message{Kind: KindClipAdded}))
	assert.Len(t, box.msgs, 1)
}

func TestRegister_UnregisterKeepsReplacement(t *testing.T) {
	r := NewRelay(nil)
	var first, second inbox
	unregisterFirst := r.Register(SurfacePanel, first.receive)
	r.Register(SurfacePanel, second.receive)

	unregisterFirst()
	assert.True(t, r.Send(context.Background(), SurfacePanel, Message{Kind: KindClipAdded}))
	assert.Empty(t, first.msgs)
	assert.Len(t, second.msgs, 1)
}

func TestPanelConnection(t *testing.T) {
	r := NewRelay(nil)
	assert.False(t, r.PanelConnected())

	r.Connect()
	r.Connect()
	r.Disconnect()
	assert.True(t, r.PanelConnected())

	r.Disconnect()
	r.Disconnect()
	assert.False(t, r.PanelConnected())
}

func TestContextMenuAndShortcut(t *testing.T) {
	r := NewRelay(nil)
	var tab inbox
	r.Register(TabSurface("3"), tab.receive)

	assert.False(t, r.ContextMenu(context.Background(), "other-menu", "3"))
	assert.True(t, r.ContextMenu(context.Background(), MenuSavePage, "3"))

	assert.False(t, r.Shortcut(context.Background(), ""), "no active tab")
	r.Activate("3")
	assert.True(t, r.Shortcut(context.Background(), ""))

	require.Len(t, tab.msgs, 2)
	for _, m := range tab.msgs {
		assert.Equal(t, KindParsePage, m.Kind)
		assert.Equal(t, "3", m.TabID)
	}
}

func TestClipAdded(t *testing.T) {
	r := NewRelay(nil)
	var panel inbox
	r.Register(SurfacePanel, panel.receive)

	it := clip.Item{ID: "01A", ParentIDs: []string{"x"}}
	require.True(t, r.ClipAdded(context.Background(), it))
	require.Len(t, panel.msgs, 1)

	got := panel.msgs[0]
	assert.Equal(t, KindClipAdded, got.Kind)
	require.NotNil(t, got.Clip)
	assert.Equal(t, "01A", got.Clip.ID)

	got.Clip.ParentIDs[0] = "mutated"
	assert.Equal(t, "x", it.ParentIDs[0])
}
