package sqlstore_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"github.com/okian/podium/internal/adapters/repository/sqlstore"
	"github.com/okian/podium/internal/config"
	. "github.com/smartystreets/goconvey/convey"
)

func sqliteDSN(t *testing.T) string {
	return filepath.Join(t.TempDir(), uuid.NewString()+".db")
}

func TestSQLiteStore(t *testing.T) {
	exerciseStore(t, config.StoreSQLite, func() *sqlstore.Store {
		s, err := sqlstore.Open(context.Background(), config.StoreSQLite, sqliteDSN(t))
		if err != nil {
			t.Fatalf("open sqlite: %v", err)
		}
		return s
	})
}

func TestMigrate(t *testing.T) {
	Convey("Given a fresh sqlite database", t, func() {
		dsn := sqliteDSN(t)

		Convey("When migrating up twice and then down", func() {
			first, err := sqlstore.Migrate(config.StoreSQLite, dsn, -1)
			So(err, ShouldBeNil)
			second, err := sqlstore.Migrate(config.StoreSQLite, dsn, -1)
			So(err, ShouldBeNil)
			down, err := sqlstore.Migrate(config.StoreSQLite, dsn, 0)
			So(err, ShouldBeNil)

			Convey("Then only the first up and the down change the schema", func() {
				So(first.Changed, ShouldBeTrue)
				So(first.To, ShouldEqual, 1)
				So(second.Changed, ShouldBeFalse)
				So(second.To, ShouldEqual, 1)
				So(down.Changed, ShouldBeTrue)
				So(down.To, ShouldEqual, 0)
			})
		})

		Convey("When opening without migrating", func() {
			s, err := sqlstore.Open(context.Background(), config.StoreSQLite, dsn, sqlstore.WithAutoMigrate(false))
			So(err, ShouldBeNil)
			Reset(func() { _ = s.Close() })

			Convey("Then queries fail because the tables are missing", func() {
				_, err := s.ListEvents(context.Background())
				So(err, ShouldNotBeNil)
			})
		})
	})

	Convey("Given unsupported configuration", t, func() {
		_, err := sqlstore.Open(context.Background(), "oracle", "dsn")
		So(err, ShouldNotBeNil)
		_, err = sqlstore.Migrate(config.StoreSQLite, "", -1)
		So(err, ShouldNotBeNil)
	})
}
