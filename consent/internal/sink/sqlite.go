// CLAUDE:SUMMARY SQLite sink persisting visits, banners, banner markup and interaction outcomes through dbopen.
package sink

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hazyhaar/bannerclick/consent/record"
	"github.com/hazyhaar/bannerclick/dbopen"
)

// Schema creates the sink tables.
const Schema = `
CREATE TABLE IF NOT EXISTS visits (
	id             TEXT PRIMARY KEY,
	seq            INTEGER NOT NULL,
	domain         TEXT NOT NULL,
	url            TEXT NOT NULL DEFAULT '',
	run_url        TEXT NOT NULL DEFAULT '',
	status         TEXT NOT NULL,
	status_code    INTEGER NOT NULL,
	lang           TEXT NOT NULL DEFAULT '',
	banners        INTEGER NOT NULL DEFAULT 0,
	ttw_ms         INTEGER NOT NULL DEFAULT 0,
	cmp            INTEGER NOT NULL DEFAULT 0,
	tcfapi         INTEGER NOT NULL DEFAULT 0,
	tcfapi_locator INTEGER NOT NULL DEFAULT 0,
	cmp_id         INTEGER NOT NULL DEFAULT 0,
	cmp_name       TEXT NOT NULL DEFAULT '',
	dnsmpi         TEXT NOT NULL DEFAULT '',
	body_html      TEXT NOT NULL DEFAULT '',
	started_at     INTEGER NOT NULL,
	finished_at    INTEGER NOT NULL,
	interacted_at  INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_visits_domain ON visits(domain);

CREATE TABLE IF NOT EXISTS banners (
	id            TEXT PRIMARY KEY,
	visit_id      TEXT NOT NULL REFERENCES visits(id) ON DELETE CASCADE,
	idx           INTEGER NOT NULL,
	domain        TEXT NOT NULL,
	kind          TEXT NOT NULL,
	strategy      TEXT NOT NULL,
	captured_area REAL NOT NULL,
	x REAL NOT NULL, y REAL NOT NULL, w REAL NOT NULL, h REAL NOT NULL,
	lang          TEXT NOT NULL DEFAULT '',
	keywords      TEXT NOT NULL DEFAULT '[]',
	text          TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_banners_visit ON banners(visit_id);

CREATE TABLE IF NOT EXISTS htmls (
	banner_id TEXT PRIMARY KEY REFERENCES banners(id) ON DELETE CASCADE,
	visit_id  TEXT NOT NULL,
	html      TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS interactions (
	visit_id         TEXT NOT NULL REFERENCES visits(id) ON DELETE CASCADE,
	banner_id        TEXT NOT NULL,
	choice           TEXT NOT NULL,
	explicit         INTEGER NOT NULL,
	success          INTEGER NOT NULL,
	source           TEXT NOT NULL DEFAULT '',
	settings_clicked INTEGER NOT NULL DEFAULT 0,
	btn_status       INTEGER NOT NULL,
	at               INTEGER NOT NULL,
	PRIMARY KEY (visit_id, banner_id)
);
`

// SQLite persists results into an SQLite database.
type SQLite struct {
	db    *sql.DB
	owned bool
}

// OpenSQLite opens (or creates) the database at path.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := dbopen.Open(path, dbopen.WithMkdirAll(), dbopen.WithSchema(Schema))
	if err != nil {
		return nil, fmt.Errorf("sink: sqlite: %w", err)
	}
	return &SQLite{db: db, owned: true}, nil
}

// NewSQLite wraps an open database and creates the tables. The caller
// keeps ownership of db.
func NewSQLite(ctx context.Context, db *sql.DB) (*SQLite, error) {
	if _, err := dbopen.Exec(ctx, db, Schema); err != nil {
		return nil, fmt.Errorf("sink: sqlite schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

// Send writes the whole result in one transaction.
func (s *SQLite) Send(ctx context.Context, res *record.Result) error {
	return dbopen.RunTx(ctx, s.db, func(tx *sql.Tx) error {
		v := res.Visit
		if _, err := tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO visits (id, seq, domain, url, run_url, status, status_code, lang,
				banners, ttw_ms, cmp, tcfapi, tcfapi_locator, cmp_id, cmp_name, dnsmpi, body_html,
				started_at, finished_at, interacted_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			v.ID, v.Seq, v.Domain, v.URL, v.RunURL, string(v.Status), v.Status.Code(), v.Lang,
			v.Banners, v.TTW.Milliseconds(), v.CMP.CMP, v.CMP.TCFAPI, v.CMP.TCFAPILocator,
			v.CMP.CMPID, v.CMP.Name, v.DNSMPI, v.BodyHTML,
			millis(v.StartedAt), millis(v.FinishedAt), millis(v.InteractedAt),
		); err != nil {
			return fmt.Errorf("sink: insert visit: %w", err)
		}

		for _, b := range res.Banners {
			kw, err := json.Marshal(b.Keywords)
			if err != nil {
				return fmt.Errorf("sink: keywords: %w", err)
			}
			if b.Keywords == nil {
				kw = []byte("[]")
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT OR REPLACE INTO banners (id, visit_id, idx, domain, kind, strategy,
					captured_area, x, y, w, h, lang, keywords, text)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				b.ID, b.VisitID, b.Index, b.Domain, string(b.Kind), b.Strategy,
				b.CapturedArea, b.X, b.Y, b.W, b.H, b.Lang, string(kw), b.Text,
			); err != nil {
				return fmt.Errorf("sink: insert banner: %w", err)
			}
			if b.HTML == "" {
				continue
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT OR REPLACE INTO htmls (banner_id, visit_id, html) VALUES (?, ?, ?)`,
				b.ID, b.VisitID, b.HTML,
			); err != nil {
				return fmt.Errorf("sink: insert html: %w", err)
			}
		}

		for _, o := range res.Interactions {
			if _, err := tx.ExecContext(ctx, `
				INSERT OR REPLACE INTO interactions (visit_id, banner_id, choice, explicit, success,
					source, settings_clicked, btn_status, at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				o.VisitID, o.BannerID, string(o.Choice), o.Explicit, o.Success,
				string(o.Source), o.SettingsClicked, o.ButtonStatus(), millis(o.At),
			); err != nil {
				return fmt.Errorf("sink: insert interaction: %w", err)
			}
		}
		return nil
	})
}

// ErrNotFound is returned by Get for an unknown visit.
var ErrNotFound = errors.New("sink: visit not found")

// Get reads back a persisted visit.
func (s *SQLite) Get(ctx context.Context, visitID string) (*record.Result, error) {
	res := &record.Result{}
	v := &res.Visit
	var status string
	var ttw, started, finished, interacted int64
	err := s.db.QueryRowContext(ctx, `
		SELECT id, seq, domain, url, run_url, status, lang, banners, ttw_ms,
			cmp, tcfapi, tcfapi_locator, cmp_id, cmp_name, dnsmpi, body_html,
			started_at, finished_at, interacted_at
		FROM visits WHERE id = ?`, visitID).Scan(
		&v.ID, &v.Seq, &v.Domain, &v.URL, &v.RunURL, &status, &v.Lang, &v.Banners, &ttw,
		&v.CMP.CMP, &v.CMP.TCFAPI, &v.CMP.TCFAPILocator, &v.CMP.CMPID, &v.CMP.Name, &v.DNSMPI, &v.BodyHTML,
		&started, &finished, &interacted)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sink: get visit: %w", err)
	}
	v.Status = record.Status(status)
	v.TTW = time.Duration(ttw) * time.Millisecond
	v.StartedAt, v.FinishedAt, v.InteractedAt = fromMillis(started), fromMillis(finished), fromMillis(interacted)

	rows, err := s.db.QueryContext(ctx, `
		SELECT b.id, b.visit_id, b.idx, b.domain, b.kind, b.strategy, b.captured_area,
			b.x, b.y, b.w, b.h, b.lang, b.keywords, b.text, COALESCE(h.html, '')
		FROM banners b LEFT JOIN htmls h ON h.banner_id = b.id
		WHERE b.visit_id = ? ORDER BY b.idx`, visitID)
	if err != nil {
		return nil, fmt.Errorf("sink: get banners: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var b record.BannerRecord
		var kind, kw string
		if err := rows.Scan(&b.ID, &b.VisitID, &b.Index, &b.Domain, &kind, &b.Strategy, &b.CapturedArea,
			&b.X, &b.Y, &b.W, &b.H, &b.Lang, &kw, &b.Text, &b.HTML); err != nil {
			return nil, err
		}
		b.Kind = record.Kind(kind)
		json.Unmarshal([]byte(kw), &b.Keywords)
		res.Banners = append(res.Banners, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	irows, err := s.db.QueryContext(ctx, `
		SELECT visit_id, banner_id, choice, explicit, success, source, settings_clicked, at
		FROM interactions WHERE visit_id = ? ORDER BY rowid`, visitID)
	if err != nil {
		return nil, fmt.Errorf("sink: get interactions: %w", err)
	}
	defer irows.Close()
	for irows.Next() {
		var o record.InteractionOutcome
		var choice, source string
		var at int64
		if err := irows.Scan(&o.VisitID, &o.BannerID, &choice, &o.Explicit, &o.Success,
			&source, &o.SettingsClicked, &at); err != nil {
			return nil, err
		}
		o.Choice, o.Source, o.At = record.Choice(choice), record.Source(source), fromMillis(at)
		res.Interactions = append(res.Interactions, o)
	}
	return res, irows.Err()
}

// Close closes the database when the sink opened it.
func (s *SQLite) Close() error {
	if s.owned {
		return s.db.Close()
	}
	return nil
}

func millis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
