package queue

import (
	"log"
	"time"

	"github.com/pkg/errors"
	"github.com/yinyajiang/ytq/model"
	"github.com/yinyajiang/ytq/pkg/common"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrNotFound = errors.New("item not found")

// Store is one partition ("queue" or "done") of the items table, with an
// insertion-ordered in-memory view for dispatch and a DB-backed
// pagination path for large histories. The Queue serializes access to
// the in-memory view; the table itself is safe for concurrent reads.
type Store struct {
	db          *gorm.DB
	typ         string
	downloadDir string

	keys  []string
	items map[string]*Download
}

func NewStore(gdb *gorm.DB, typ, downloadDir string) *Store {
	return &Store{
		db:          gdb,
		typ:         typ,
		downloadDir: downloadDir,
		keys:        make([]string, 0),
		items:       make(map[string]*Download),
	}
}

func (s *Store) Type() string {
	return s.typ
}

// Load reads every persisted row of this partition, oldest first, and
// rebuilds the in-memory view. Items that were mid-download when the
// process died come back as pending so the loop re-attempts them.
func (s *Store) Load() error {
	var rows []model.ItemRecord
	err := s.db.Where(&model.ItemRecord{Type: s.typ}).
		Order("created_at ASC").Find(&rows).Error
	if err != nil {
		return errors.Wrapf(err, "load %s partition", s.typ)
	}
	s.keys = s.keys[:0]
	s.items = make(map[string]*Download, len(rows))
	for _, row := range rows {
		item, err := model.UnmarshalStored([]byte(row.Data), row.CreatedAt)
		if err != nil {
			log.Printf("store %s: skip unreadable row %s: %v", s.typ, row.ID, err)
			continue
		}
		if s.typ == model.StoreTypeQueue && model.IsInProgressStatus(item.Status) {
			item.Status = model.StatusPending
		}
		dir, err := common.SafeJoin(s.downloadDir, item.Folder)
		if err != nil {
			log.Printf("store %s: item %s: %v", s.typ, item.ID, err)
			dir = s.downloadDir
		}
		item.DownloadDir = dir
		s.keys = append(s.keys, item.ID)
		s.items[item.ID] = NewDownload(item)
	}
	return nil
}

func (s *Store) Exists(id string) bool {
	_, ok := s.items[id]
	return ok
}

func (s *Store) ExistsURL(url string) bool {
	for _, key := range s.keys {
		if s.items[key].Info.URL == url {
			return true
		}
	}
	return false
}

func (s *Store) Get(id string) (*Download, error) {
	d, ok := s.items[id]
	if !ok {
		return nil, errors.Wrap(ErrNotFound, id)
	}
	return d, nil
}

func (s *Store) GetByURL(url string) (*Download, error) {
	for _, key := range s.keys {
		if d := s.items[key]; d.Info.URL == url {
			return d, nil
		}
	}
	return nil, errors.Wrap(ErrNotFound, url)
}

// Put upserts the download into this partition, memory and table both.
// A failed table write is returned as-is: the two views must not be
// allowed to diverge silently.
func (s *Store) Put(d *Download) error {
	data, err := d.Info.MarshalStored()
	if err != nil {
		return errors.Wrapf(err, "serialize item %s", d.Info.ID)
	}
	now := time.Now()
	rec := model.ItemRecord{
		ID:        d.Info.ID,
		Type:      s.typ,
		URL:       d.Info.URL,
		Data:      string(data),
		CreatedAt: now,
	}
	err = s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}, {Name: "type"}},
		DoUpdates: clause.Assignments(map[string]any{
			"url":        rec.URL,
			"data":       rec.Data,
			"created_at": now,
		}),
	}).Create(&rec).Error
	if err != nil {
		return errors.Wrapf(err, "persist item %s", d.Info.ID)
	}
	if _, ok := s.items[d.Info.ID]; !ok {
		s.keys = append(s.keys, d.Info.ID)
	}
	s.items[d.Info.ID] = d
	if d.Info.Datetime == "" {
		d.Info.Datetime = now.Format(time.RFC1123Z)
	}
	return nil
}

func (s *Store) Delete(id string) error {
	s.removeKey(id)
	err := s.db.Where(&model.ItemRecord{ID: id, Type: s.typ}).
		Delete(&model.ItemRecord{}).Error
	if err != nil {
		return errors.Wrapf(err, "delete item %s", id)
	}
	return nil
}

// MoveTo transfers the download into dst in one transaction, so a crash
// between the delete and the put cannot lose the row.
func (s *Store) MoveTo(dst *Store, d *Download) error {
	data, err := d.Info.MarshalStored()
	if err != nil {
		return errors.Wrapf(err, "serialize item %s", d.Info.ID)
	}
	now := time.Now()
	rec := model.ItemRecord{
		ID:        d.Info.ID,
		Type:      dst.typ,
		URL:       d.Info.URL,
		Data:      string(data),
		CreatedAt: now,
	}
	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where(&model.ItemRecord{ID: d.Info.ID, Type: s.typ}).
			Delete(&model.ItemRecord{}).Error; err != nil {
			return err
		}
		return tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "id"}, {Name: "type"}},
			DoUpdates: clause.Assignments(map[string]any{
				"url":        rec.URL,
				"data":       rec.Data,
				"created_at": now,
			}),
		}).Create(&rec).Error
	})
	if err != nil {
		return errors.Wrapf(err, "move item %s to %s", d.Info.ID, dst.typ)
	}
	s.removeKey(d.Info.ID)
	if _, ok := dst.items[d.Info.ID]; !ok {
		dst.keys = append(dst.keys, d.Info.ID)
	}
	dst.items[d.Info.ID] = d
	d.Info.Datetime = now.Format(time.RFC1123Z)
	return nil
}

func (s *Store) Empty() bool {
	return len(s.keys) == 0
}

// Next returns the oldest-inserted entry. Callers check Empty first.
func (s *Store) Next() (string, *Download, error) {
	if len(s.keys) == 0 {
		return "", nil, errors.New("store is empty")
	}
	key := s.keys[0]
	return key, s.items[key], nil
}

func (s *Store) HasDownloads() bool {
	for _, key := range s.keys {
		if !s.items[key].Started() {
			return true
		}
	}
	return false
}

// NextDownload picks the oldest eligible entry, FIFO by insertion.
func (s *Store) NextDownload(globalPaused bool) *Download {
	for _, key := range s.keys {
		if d := s.items[key]; d.eligible(globalPaused) {
			return d
		}
	}
	return nil
}

func (s *Store) Len() int {
	return len(s.keys)
}

func (s *Store) All() []*Download {
	out := make([]*Download, 0, len(s.keys))
	for _, key := range s.keys {
		out = append(out, s.items[key])
	}
	return out
}

// Paginated queries the table directly, bypassing the in-memory view;
// the history partition can be far larger than anything worth keeping
// in memory. A "!status" filter negates, an overshooting page clamps to
// the last valid one.
func (s *Store) Paginated(page, perPage int, status string) (items []*model.Item, total int64, resolvedPage, totalPages int, err error) {
	if perPage <= 0 {
		perPage = 50
	}
	if page <= 0 {
		page = 1
	}

	tx := s.db.Model(&model.ItemRecord{}).Where("type = ?", s.typ)
	if status != "" {
		if status[0] == '!' {
			tx = tx.Where("json_extract(data, '$.status') != ?", status[1:])
		} else {
			tx = tx.Where("json_extract(data, '$.status') = ?", status)
		}
	}
	if err = tx.Count(&total).Error; err != nil {
		err = errors.Wrap(err, "count items")
		return
	}

	totalPages = int((total + int64(perPage) - 1) / int64(perPage))
	if totalPages == 0 {
		totalPages = 1
	}
	if page > totalPages {
		page = totalPages
	}
	resolvedPage = page

	var rows []model.ItemRecord
	err = tx.Order("created_at ASC").
		Offset((page - 1) * perPage).Limit(perPage).
		Find(&rows).Error
	if err != nil {
		err = errors.Wrap(err, "page items")
		return
	}
	items = make([]*model.Item, 0, len(rows))
	for _, row := range rows {
		item, e := model.UnmarshalStored([]byte(row.Data), row.CreatedAt)
		if e != nil {
			log.Printf("store %s: skip unreadable row %s: %v", s.typ, row.ID, e)
			continue
		}
		items = append(items, item)
	}
	return
}

func (s *Store) removeKey(id string) {
	if _, ok := s.items[id]; !ok {
		return
	}
	delete(s.items, id)
	for i, key := range s.keys {
		if key == id {
			s.keys = append(s.keys[:i], s.keys[i+1:]...)
			break
		}
	}
}
