package sqlite

import (
	"database/sql"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

var schema = []string{
	"CREATE TABLE IF NOT EXISTS runs (id text not null primary key, started text, subsidiary text, table_name text, option integer, debug integer);",
	"CREATE TABLE IF NOT EXISTS pages (id integer not null primary key, run_id text, idx integer, key text, path text, rows integer, at text);",
	"CREATE TABLE IF NOT EXISTS downloads (id integer not null primary key, run_id text, key text, filename text, url text, outcome text, at text);",
	"CREATE TABLE IF NOT EXISTS missing (id integer not null primary key, run_id text, key text, filename text, url text, at text);",
}

type statement struct {
	query string
	args  []any
	// done is closed once every statement queued before it was written.
	done chan struct{}
}

// Journal records what every run did: saved files tabs, download outcomes
// and missing files reports. One run is one row in runs.
type Journal struct {
	Database string
	Log      *zap.Logger

	RunID string

	db     *sql.DB
	stmts  chan statement
	wg     sync.WaitGroup
	dbLock sync.Mutex
	closed bool
}

// Run describes the run being journaled.
type Run struct {
	Subsidiary string
	Table      string
	Option     int
	Debug      bool
}

func (o *Journal) Init(run Run) error {
	if o.Database == "" {
		return errors.New("sqlite database file not set")
	}
	if o.Log == nil {
		o.Log = zap.NewNop()
	}

	db, err := sql.Open("sqlite3", o.Database)
	if err != nil {
		return err
	}
	o.db = db

	for _, s := range schema {
		if _, err := db.Exec(s); err != nil {
			db.Close()
			return err
		}
	}

	o.RunID = uuid.NewString()
	if _, err := db.Exec("INSERT into runs(id, started, subsidiary, table_name, option, debug) values(?, ?, ?, ?, ?, ?);",
		o.RunID, now(), run.Subsidiary, run.Table, run.Option, run.Debug); err != nil {
		db.Close()
		return err
	}

	//Buffered channel as pages and downloads can come in bursts
	o.stmts = make(chan statement, 20)
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		for s := range o.stmts {
			if s.done != nil {
				close(s.done)
				continue
			}
			o.dbLock.Lock()
			_, err := db.Exec(s.query, s.args...)
			o.dbLock.Unlock()
			if err != nil {
				o.Log.Warn("failed writing journal", zap.String("query", s.query), zap.Error(err))
			}
		}
	}()
	return nil
}

func (o *Journal) Cleanup() {
	if o.closed || o.stmts == nil {
		return
	}
	o.closed = true
	close(o.stmts)
	o.wg.Wait()
	o.db.Close()
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func (o *Journal) queue(query string, args ...any) error {
	if o.stmts == nil || o.closed {
		return errors.New("journal not open")
	}
	o.stmts <- statement{query: query, args: args}
	return nil
}

// flush waits until everything queued so far is written.
func (o *Journal) flush() {
	done := make(chan struct{})
	o.stmts <- statement{done: done}
	<-done
}

// HandlePage is safe to use by multiple goroutines.
func (o *Journal) HandlePage(index int, key, path string, rows int) error {
	return o.queue("INSERT into pages(run_id, idx, key, path, rows, at) values(?, ?, ?, ?, ?, ?);",
		o.RunID, index, key, path, rows, now())
}

func (o *Journal) HandleDownload(key, filename, url, outcome string) error {
	return o.queue("INSERT into downloads(run_id, key, filename, url, outcome, at) values(?, ?, ?, ?, ?, ?);",
		o.RunID, key, filename, url, outcome, now())
}

func (o *Journal) HandleMissing(key, filename, url string) error {
	return o.queue("INSERT into missing(run_id, key, filename, url, at) values(?, ?, ?, ?, ?);",
		o.RunID, key, filename, url, now())
}

// Outcomes counts this run's downloads by outcome.
func (o *Journal) Outcomes() (map[string]int, error) {
	if o.stmts == nil || o.closed {
		return nil, errors.New("journal not open")
	}
	o.flush()

	o.dbLock.Lock()
	defer o.dbLock.Unlock()
	rows, err := o.db.Query("SELECT outcome, count(*) FROM downloads WHERE run_id = ? GROUP BY outcome;", o.RunID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	res := map[string]int{}
	for rows.Next() {
		var outcome string
		var n int
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, err
		}
		res[outcome] = n
	}
	return res, rows.Err()
}
