package store

import (
	"context"

	"github.com/pkg/errors"
	"github.com/whitekid/goxp/fx"
	"github.com/whitekid/goxp/log"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"

	"slotca/pkg/helper/gormx"
	"slotca/store/models"
)

// sqlStoreImpl store to SQL server
type sqlStoreImpl struct {
	db *gorm.DB
}

var _ Interface = (*sqlStoreImpl)(nil)

// NewSQL create new SQL store
func NewSQL(dburl string) Interface {
	db, err := gormx.Open(dburl, &gorm.Config{
		NamingStrategy: schema.NamingStrategy{
			TablePrefix: "slotca_",
		},
	})
	if err != nil {
		panic(err)
	}

	if err := models.Migrate(db); err != nil {
		panic(err)
	}

	return &sqlStoreImpl{
		db: db,
	}
}

func (s *sqlStoreImpl) CreateRecord(ctx context.Context, record *Record) (*Record, error) {
	log.Debugf("CreateRecord(): serial=%s, cn=%s", record.Serial, record.CommonName)

	m := &models.Record{
		ID:          record.ID,
		Serial:      record.Serial,
		CommonName:  record.CommonName,
		Fingerprint: record.Fingerprint,
		Slot:        record.Slot,
		DNSNames:    gormx.Strings(record.DNSNames),
		Cert:        record.Cert,
		NotBefore:   record.NotBefore,
		NotAfter:    record.NotAfter,
	}
	if tx := s.db.WithContext(ctx).Create(m); tx.Error != nil {
		return nil, errors.Wrap(gormx.ConvertSQLError(tx.Error), "fail to create record")
	}

	return recordFromModel(m), nil
}

func (s *sqlStoreImpl) GetRecord(ctx context.Context, id string) (*Record, error) {
	log.Debugf("GetRecord(): id=%s", id)

	results, err := s.ListRecord(ctx, RecordListOpt{ID: id})
	if err != nil {
		return nil, errors.Wrap(err, "GetRecord() failed")
	}

	switch len(results) {
	case 0:
		return nil, gorm.ErrRecordNotFound
	case 1:
		return results[0], nil
	default:
		return nil, ErrMultipleRecord
	}
}

func (s *sqlStoreImpl) ListRecord(ctx context.Context, opts RecordListOpt) ([]*Record, error) {
	results, err := s.listRecord(ctx, opts)
	if err != nil {
		return nil, errors.Wrap(err, "fail to ListRecord()")
	}

	return fx.Map(results, recordFromModel), nil
}

func (s *sqlStoreImpl) listRecord(ctx context.Context, opts RecordListOpt) ([]*models.Record, error) {
	log.Debugf("listRecord(): opts=%+v", opts)

	w := &models.Record{
		ID:         opts.ID,
		Serial:     opts.Serial,
		CommonName: opts.CommonName,
	}

	tx := s.db.WithContext(ctx).Order("created_at")

	var results []*models.Record
	if tx := tx.Find(&results, w); tx.Error != nil {
		return nil, errors.Wrap(gormx.ConvertSQLError(tx.Error), "listRecord() failed")
	}

	return results, nil
}

func recordFromModel(m *models.Record) *Record {
	return &Record{
		ID:          m.ID,
		Serial:      m.Serial,
		CommonName:  m.CommonName,
		Fingerprint: m.Fingerprint,
		Slot:        m.Slot,
		DNSNames:    []string(m.DNSNames),
		Cert:        m.Cert,
		NotBefore:   m.NotBefore,
		NotAfter:    m.NotAfter,
		Created:     m.CreatedAt,
	}
}
