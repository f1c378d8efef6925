package eventlog

import (
	"path/filepath"
	"strings"

	"hyperfireworks/internal/model"
	sqlitestore "hyperfireworks/internal/store/sqlite"
)

// OpenSource picks the source for path: an http(s) URL, a SQLite database
// (*.db, *.sqlite) or a JSON file. The returned func releases the source
// once the log is loaded.
func OpenSource(path string) (model.EventSource, func() error, error) {
	nop := func() error { return nil }
	switch ext := strings.ToLower(filepath.Ext(path)); {
	case IsRemote(path):
		return HTTPSource{URL: path}, nop, nil
	case ext == ".db" || ext == ".sqlite":
		r, err := sqlitestore.NewReader(path)
		if err != nil {
			return nil, nil, err
		}
		return r, r.Close, nil
	default:
		return FileSource{Path: path}, nop, nil
	}
}
