package messaging

import (
	"context"
	"testing"

	"agency-chat/internal/model"

	"github.com/stretchr/testify/require"
)

type recordingEditor struct {
	edits   map[string]string
	removed []string
}

func (r *recordingEditor) Edit(ctx context.Context, id, content string) error {
	if r.edits == nil {
		r.edits = map[string]string{}
	}
	r.edits[id] = content
	return nil
}

func (r *recordingEditor) Remove(ctx context.Context, id string) error {
	r.removed = append(r.removed, id)
	return nil
}

func TestRender_GroupsConsecutiveSenders(t *testing.T) {
	voice := msg("v", "p", bob.ID, 4)
	voice.Kind = model.KindVoice
	in := []model.Message{msg("m3", "p", bob.ID, 3), msg("m1", "p", ada.ID, 1), msg("m2", "p", ada.ID, 2), voice, msg("m5", "p", ada.ID, 5)}

	groups := Render(in, ada)

	require.Len(t, groups, 3)
	require.True(t, groups[0].Mine)
	require.Equal(t, []string{"m1", "m2"}, []string{groups[0].Items[0].Message.ID, groups[0].Items[1].Message.ID})
	require.False(t, groups[1].Mine)
	require.Len(t, groups[1].Items, 2)
	require.False(t, groups[1].Items[0].Editable)
	require.False(t, groups[1].Items[0].Deletable)
	require.True(t, groups[2].Items[0].Editable)
	require.Equal(t, "m3", in[0].ID, "input untouched")
}

func TestRender_MediaIsDeletableNotEditable(t *testing.T) {
	img := msg("img", "p", ada.ID, 1)
	img.Kind = model.KindImage
	item := Render([]model.Message{img}, ada)[0].Items[0]
	require.False(t, item.Editable)
	require.True(t, item.Deletable)
}

func TestEditSession(t *testing.T) {
	ctx := context.Background()
	original := msg("m1", "p", ada.ID, 1)
	original.Content = "hello"

	_, err := BeginEdit(original, bob)
	require.ErrorIs(t, err, ErrNotSender)

	img := original
	img.Kind = model.KindImage
	_, err = BeginEdit(img, ada)
	require.ErrorIs(t, err, ErrNotEditable)

	ed := &recordingEditor{}
	session, err := BeginEdit(original, ada)
	require.NoError(t, err)
	require.Equal(t, "hello", session.Draft())

	session.SetDraft("  hello  ")
	sent, err := session.Commit(ctx, ed)
	require.NoError(t, err)
	require.False(t, sent, "unchanged after trimming")
	require.Empty(t, ed.edits)

	session.SetDraft("   ")
	_, err = session.Commit(ctx, ed)
	require.ErrorIs(t, err, ErrEmptyContent)

	session.SetDraft("goodbye")
	session.Cancel()
	require.Equal(t, "hello", session.Draft())

	session.SetDraft(" hello there ")
	sent, err = session.Commit(ctx, ed)
	require.NoError(t, err)
	require.True(t, sent)
	require.Equal(t, map[string]string{"m1": "hello there"}, ed.edits)
}

func TestDelete_SenderOnly(t *testing.T) {
	rm := &recordingEditor{}
	m := msg("m1", "p", ada.ID, 1)

	require.ErrorIs(t, Delete(context.Background(), m, bob, rm), ErrNotSender)
	require.Empty(t, rm.removed)
	require.NoError(t, Delete(context.Background(), m, ada, rm))
	require.Equal(t, []string{"m1"}, rm.removed)
}

func TestMediaState(t *testing.T) {
	var ms MediaState
	v1, v2 := msg("v1", "p", ada.ID, 1), msg("v2", "p", bob.ID, 2)
	v1.Kind, v2.Kind = model.KindVoice, model.KindVoice

	require.True(t, ms.Toggle(v1))
	require.True(t, ms.Toggle(v2))
	require.True(t, ms.Playing(v1.ID), "players are independent")
	require.False(t, ms.Toggle(v1))
	require.False(t, ms.Playing(v1.ID))
	ms.Ended(v2.ID)
	require.False(t, ms.Playing(v2.ID))

	require.False(t, ms.Toggle(msg("t", "p", ada.ID, 3)), "text has no player")

	img := msg("img", "p", ada.ID, 4)
	img.Kind = model.KindImage
	img.Content = "http://cdn/media/x.png"
	require.False(t, ms.OpenPreview(v1))
	require.True(t, ms.OpenPreview(img))
	require.Equal(t, img.Content, ms.Preview())
	ms.ClosePreview()
	require.Empty(t, ms.Preview())
}
