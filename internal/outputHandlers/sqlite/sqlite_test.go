package sqlite

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func open(t *testing.T) *Journal {
	j := &Journal{Database: filepath.Join(t.TempDir(), "journal.db"), Log: zaptest.NewLogger(t)}
	require.NoError(t, j.Init(Run{Subsidiary: "ibs", Table: "open_purchase_orders", Option: 4}))
	return j
}

func count(t *testing.T, db, query string, args ...any) int {
	conn, err := sql.Open("sqlite3", db)
	require.NoError(t, err)
	defer conn.Close()
	var n int
	require.NoError(t, conn.QueryRow(query, args...).Scan(&n))
	return n
}

func TestJournalRecords(t *testing.T) {
	j := open(t)
	require.NotEmpty(t, j.RunID)

	require.NoError(t, j.HandlePage(3, "PO 3", "files_tab_html/PO_3.html", 2))
	require.NoError(t, j.HandleDownload("K1", "a.pdf", "http://x/a.pdf", "downloaded"))
	require.NoError(t, j.HandleDownload("K1", "b.pdf", "http://x/b.pdf", "downloaded"))
	require.NoError(t, j.HandleDownload("K2", "c.pdf", "http://x/c.pdf", "access_denied"))
	require.NoError(t, j.HandleMissing("K3", "d.pdf", "http://x/d.pdf"))

	outcomes, err := j.Outcomes()
	require.NoError(t, err)
	require.Equal(t, map[string]int{"downloaded": 2, "access_denied": 1}, outcomes)

	j.Cleanup()
	j.Cleanup()

	require.Equal(t, 1, count(t, j.Database, "SELECT count(*) FROM runs WHERE id = ?", j.RunID))
	require.Equal(t, 1, count(t, j.Database, "SELECT count(*) FROM pages WHERE key = 'PO 3' AND idx = 3"))
	require.Equal(t, 3, count(t, j.Database, "SELECT count(*) FROM downloads"))
	require.Equal(t, 1, count(t, j.Database, "SELECT count(*) FROM missing"))

	require.Error(t, j.HandlePage(0, "", "", 0))
}

func TestJournalRunsAreSeparate(t *testing.T) {
	j := open(t)
	require.NoError(t, j.HandleDownload("K1", "a.pdf", "u", "downloaded"))
	j.Cleanup()

	j2 := &Journal{Database: j.Database, Log: zaptest.NewLogger(t)}
	require.NoError(t, j2.Init(Run{Subsidiary: "ibs", Table: "open_purchase_orders", Option: 12}))
	defer j2.Cleanup()
	require.NotEqual(t, j.RunID, j2.RunID)

	outcomes, err := j2.Outcomes()
	require.NoError(t, err)
	require.Empty(t, outcomes)
}

func TestInitWithoutDatabase(t *testing.T) {
	require.Error(t, (&Journal{}).Init(Run{}))
}
