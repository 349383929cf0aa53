package repositories

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hms-sync/internal/db"
)

func TestValidEmoji(t *testing.T) {
	for _, ok := range []string{"😀", "👍🏽", "❤️", "👨‍⚕️", "#️⃣"} {
		assert.True(t, ValidEmoji(ok), ok)
	}
	for _, bad := range []string{"", "  ", "abc", "<script>", "😀😀😀😀😀😀😀😀😀"} {
		assert.False(t, ValidEmoji(bad), bad)
	}
}

// openTestDB connects to HMS_TEST_DSN; the tests are skipped without it.
func openTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	dsn := os.Getenv("HMS_TEST_DSN")
	if dsn == "" {
		t.Skip("HMS_TEST_DSN not set")
	}
	conn, err := db.Connect(dsn)
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = conn.Exec(`DELETE FROM recent_emojis WHERE user_id LIKE 'test-%'`)
		conn.Close()
	})
	return conn
}

func TestTouchOrdersAndTrims(t *testing.T) {
	conn := openTestDB(t)
	repo := NewEmojiRepo(conn)
	ctx := context.Background()
	user := fmt.Sprintf("test-%d", os.Getpid())

	emojis := []rune("😀😁😂🤣😃😄😅😆😉😊😋😎😍😘🥰😗😙😚🙂🤗🤩🤔🤨😐😑😶")
	for _, e := range emojis {
		require.NoError(t, repo.Touch(ctx, user, string(e)))
	}
	require.NoError(t, repo.Touch(ctx, user, string(emojis[2])))

	list, err := repo.List(ctx, user, 0)
	require.NoError(t, err)
	assert.Len(t, list, RecentEmojiLimit)
	assert.Equal(t, string(emojis[2]), list[0])
	assert.NotContains(t, list, string(emojis[0]))
}

func TestTouchRejectsInvalid(t *testing.T) {
	repo := NewEmojiRepo(nil)

	assert.ErrorIs(t, repo.Touch(context.Background(), "u", "hello"), ErrInvalidEmoji)
	assert.ErrorIs(t, repo.Touch(context.Background(), "", "😀"), ErrInvalidEmoji)
}
