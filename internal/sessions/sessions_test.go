// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package sessions

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/expression-learner/pkg/types"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(types.StoreConfig{Path: filepath.Join(t.TempDir(), "db", "sessions.db")})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// seed creates a session with two completed turns.
func seed(t *testing.T, s *Store) types.Session {
	t.Helper()
	ctx := context.Background()

	sess, err := s.Create(ctx, types.VariantUK)
	require.NoError(t, err)

	_, err = s.CompleteTurn(ctx, sess.ID, types.Message{Content: "Hi there"}, "It's [[raining cats and dogs::raining heavily]] today.", []types.Expression{
		{Phrase: "raining cats and dogs", Meaning: "raining heavily"},
	})
	require.NoError(t, err)

	_, err = s.CompleteTurn(ctx, sess.ID, types.Message{Content: "Tell me more"}, "reply two", []types.Expression{
		{Phrase: "piece of cake", Meaning: "very easy"},
		{Phrase: "break the ice", Meaning: "start a conversation"},
	})
	require.NoError(t, err)
	return sess
}

func TestCreate(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	sess, err := s.Create(ctx, types.VariantUS)
	require.NoError(t, err)
	assert.Len(t, sess.ID, 36)
	assert.Equal(t, types.VariantUS, sess.Variant)
	assert.Zero(t, sess.TurnCount)

	other, err := s.Create(ctx, types.VariantUS)
	require.NoError(t, err)
	assert.NotEqual(t, sess.ID, other.ID)

	_, err = s.Create(ctx, "Klingon")
	assert.ErrorIs(t, err, ErrInvalidVariant)
}

func TestGet(t *testing.T) {
	s := testStore(t)
	sess := seed(t, s)

	got, err := s.Get(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, types.VariantUK, got.Variant)
	assert.Equal(t, 2, got.TurnCount)
	require.Len(t, got.Messages, 4)
	assert.Equal(t, types.RoleUser, got.Messages[0].Role)
	assert.Equal(t, "Hi there", got.Messages[0].Content)
	assert.Equal(t, types.RoleAssistant, got.Messages[3].Role)
	assert.Equal(t, "reply two", got.Messages[3].Content)
	assert.False(t, got.Messages[0].Timestamp.IsZero())
	assert.Equal(t, []types.Expression{
		{Phrase: "piece of cake", Meaning: "very easy"},
		{Phrase: "break the ice", Meaning: "start a conversation"},
	}, got.LastExpressions)
	assert.WithinDuration(t, sess.CreatedAt, got.CreatedAt, time.Millisecond)

	_, err = s.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSetTopic(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	sess, err := s.Create(ctx, types.VariantAU)
	require.NoError(t, err)

	require.NoError(t, s.SetTopic(ctx, sess.ID, "Markets rally"))
	got, err := s.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "Markets rally", got.Topic)

	assert.ErrorIs(t, s.SetTopic(ctx, "missing", "x"), ErrNotFound)
}

func TestUnknownSessionWrites(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	err := s.AppendMessage(ctx, "missing", types.Message{Role: types.RoleUser, Content: "hi"})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.CompleteTurn(ctx, "missing", types.Message{Content: "hi"}, "reply", nil)
	assert.ErrorIs(t, err, ErrNotFound)

	var orphans int
	require.NoError(t, s.db.QueryRow(`SELECT count(*) FROM messages`).Scan(&orphans))
	assert.Zero(t, orphans)

	results, err := s.SearchExpressions(ctx, QueryOptions{})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestCompleteTurn_EmptyExpressions(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	sess, err := s.Create(ctx, types.VariantCA)
	require.NoError(t, err)

	asked := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	turn, err := s.CompleteTurn(ctx, sess.ID,
		types.Message{Role: types.RoleAssistant, Content: "any idioms?", Timestamp: asked},
		"no idioms here", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, turn)

	got, err := s.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Empty(t, got.LastExpressions)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, types.RoleUser, got.Messages[0].Role)
	assert.True(t, asked.Equal(got.Messages[0].Timestamp))
	assert.Equal(t, types.RoleAssistant, got.Messages[1].Role)
}

func TestList(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var ids []string
	for i := range 3 {
		s.now = func() time.Time { return base.Add(time.Duration(i) * time.Hour) }
		sess, err := s.Create(ctx, types.VariantUS)
		require.NoError(t, err)
		ids = append(ids, sess.ID)
	}

	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, ids[2], list[0].ID)
	assert.Equal(t, ids[0], list[2].ID)
	assert.Nil(t, list[0].Messages)
}

func TestList_SameSecond(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 5, 0, time.UTC)
	offsets := []time.Duration{0, 500 * time.Millisecond, 120 * time.Millisecond, time.Second}
	ids := make(map[time.Duration]string)
	for _, off := range offsets {
		s.now = func() time.Time { return base.Add(off) }
		sess, err := s.Create(ctx, types.VariantUS)
		require.NoError(t, err)
		ids[off] = sess.ID
	}

	list, err := s.List(ctx)
	require.NoError(t, err)
	var got []string
	for _, sess := range list {
		got = append(got, sess.ID)
	}
	assert.Equal(t, []string{
		ids[time.Second], ids[500*time.Millisecond], ids[120*time.Millisecond], ids[0],
	}, got)
	assert.True(t, base.Add(500*time.Millisecond).Equal(list[1].CreatedAt))
}

func TestSearchExpressions(t *testing.T) {
	for _, fts := range []bool{true, false} {
		name := "like"
		if fts {
			name = "fts5"
		}
		t.Run(name, func(t *testing.T) {
			s := testStore(t)
			if fts && !s.FullText() {
				t.Skip("sqlite built without FTS5")
			}
			s.fts = fts
			sess := seed(t, s)
			other := seed(t, s)
			ctx := context.Background()

			results, err := s.SearchExpressions(ctx, QueryOptions{Query: "cake"})
			require.NoError(t, err)
			assert.Len(t, results, 2)
			for _, r := range results {
				assert.Equal(t, "piece of cake", r.Phrase)
				assert.Equal(t, 2, r.Turn)
			}

			results, err = s.SearchExpressions(ctx, QueryOptions{Query: "heavily", SessionID: other.ID})
			require.NoError(t, err)
			require.Len(t, results, 1)
			assert.Equal(t, other.ID, results[0].SessionID)
			assert.Equal(t, "raining cats and dogs", results[0].Phrase)

			results, err = s.SearchExpressions(ctx, QueryOptions{Query: "ice conversation"})
			require.NoError(t, err)
			require.Len(t, results, 2)
			assert.Equal(t, "break the ice", results[0].Phrase)

			results, err = s.SearchExpressions(ctx, QueryOptions{Query: `NEAR( "cake`})
			require.NoError(t, err)
			assert.Empty(t, results)

			results, err = s.SearchExpressions(ctx, QueryOptions{SessionID: sess.ID})
			require.NoError(t, err)
			assert.Len(t, results, 3)
			assert.Equal(t, 1, results[0].Turn)

			results, err = s.SearchExpressions(ctx, QueryOptions{MaxResults: 2})
			require.NoError(t, err)
			assert.Len(t, results, 2)

			results, err = s.SearchExpressions(ctx, QueryOptions{Query: "100%"})
			require.NoError(t, err)
			assert.Empty(t, results)
		})
	}
}

func TestExport(t *testing.T) {
	s := testStore(t)
	sess := seed(t, s)
	ctx := context.Background()

	var jbuf bytes.Buffer
	require.NoError(t, s.ExportJSON(ctx, &jbuf, QueryOptions{SessionID: sess.ID}))
	var fromJSON []map[string]any
	require.NoError(t, json.Unmarshal(jbuf.Bytes(), &fromJSON))
	require.Len(t, fromJSON, 3)
	assert.Equal(t, "raining cats and dogs", fromJSON[0]["phrase"])
	assert.Equal(t, sess.ID, fromJSON[0]["session_id"])

	var ybuf bytes.Buffer
	require.NoError(t, s.ExportYAML(ctx, &ybuf, QueryOptions{}))
	var fromYAML []map[string]any
	require.NoError(t, yaml.Unmarshal(ybuf.Bytes(), &fromYAML))
	require.Len(t, fromYAML, 3)
	assert.Equal(t, "very easy", fromYAML[1]["meaning"])
	assert.Equal(t, 2, fromYAML[1]["turn"])

	jbuf.Reset()
	require.NoError(t, s.ExportJSON(ctx, &jbuf, QueryOptions{Query: "nothing-matches"}))
	assert.Equal(t, "[]\n", jbuf.String())
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.db")
	s, err := Open(types.StoreConfig{Path: path})
	require.NoError(t, err)
	sess := seed(t, s)
	fts := s.FullText()
	require.NoError(t, s.Close())

	s, err = Open(types.StoreConfig{Path: path})
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, fts, s.FullText())

	got, err := s.Get(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.TurnCount)
}
